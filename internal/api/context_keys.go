// internal/api/context_keys.go
package api

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"
