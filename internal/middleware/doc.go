// Package middleware provides HTTP middleware for the reporting API.
//
// It includes:
//   - Access logging in W3C Extended Log Format through zap
//   - Prometheus request metrics keyed by route template
//   - gzip compression of large JSON change listings (klauspost/compress gzhttp)
package middleware
