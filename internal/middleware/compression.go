package middleware

import (
	"fmt"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig tunes gzip for API responses.
type CompressionConfig struct {
	// MinSize is the body size below which a response is sent as is.
	MinSize int
	// Level is a gzip level from gzip.BestSpeed to gzip.BestCompression.
	Level int
	// ContentTypes lists the media types eligible for compression.
	ContentTypes []string
}

// DefaultCompressionConfig compresses JSON bodies of 4 KiB or more, about
// twenty change rows. Listings are produced per request, so the fastest
// level is used.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:      4 << 10,
		Level:        gzip.BestSpeed,
		ContentTypes: []string{"application/json"},
	}
}

// Compression returns middleware that gzips eligible responses for clients
// that accept it. It fails only on an invalid level or size.
func Compression(config CompressionConfig) (func(http.Handler) http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(
		gzhttp.MinSize(config.MinSize),
		gzhttp.CompressionLevel(config.Level),
		gzhttp.ContentTypes(config.ContentTypes),
	)
	if err != nil {
		return nil, fmt.Errorf("configure compression: %w", err)
	}
	return func(next http.Handler) http.Handler {
		return wrap(next)
	}, nil
}
