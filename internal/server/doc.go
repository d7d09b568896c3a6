// Package server implements the HTTP API of the webwrap build service.
//
// This package provides:
//   - Build endpoints: trigger, list, get (with status reconciliation),
//     delete, and artifact download via signed redirect
//   - CI callback endpoint with HMAC signature verification
//   - Signed artifact file serving
//   - Per-IP rate limiting and structured request logging
//
// The server integrates with other packages:
//   - internal/build: the build lifecycle service and error codes
//   - internal/artifact: artifact storage and download link signing
//   - internal/security: request parameter validation
//
// Security features:
//   - HMAC-SHA256 callback signature verification
//   - HMAC-signed, expiring artifact download links
//   - Content-Type validation and payload size limits on POST bodies
//   - Rate limiting (global and per-trigger)
package server
