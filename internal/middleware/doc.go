// Package middleware provides the HTTP middleware wrapped around the storage
// API: W3C request logging, Prometheus request metrics and gzip compression
// of JSON responses.
package middleware
