// Package fileutil locates configuration files for the CLI commands.
package fileutil

import (
	"os"
	"path/filepath"
)

// SearchPathsOptional returns the first path that exists, or an empty
// string when none do.
func SearchPathsOptional(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// DefaultConfigPaths returns the standard search locations for a config
// file: the current directory, ./config/, then the system-wide directory.
func DefaultConfigPaths(filename string) []string {
	return []string{
		filepath.Join(".", filename),
		filepath.Join(".", "config", filename),
		filepath.Join("/etc/webwrap", filename),
	}
}

// FindConfigOptional searches the default locations for a config file.
// Returns the path if found, or an empty string.
func FindConfigOptional(filename string) string {
	return SearchPathsOptional(DefaultConfigPaths(filename))
}

// DirExists checks if a directory exists.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
