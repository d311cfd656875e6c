package crawler

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"fs-delta-tracker/internal/record"
)

const writerBufferSize = 256 * 1024

// SinkWriter is the single consumer of the record stream. It appends one
// line per record to the staging artifact in receipt order.
type SinkWriter struct {
	path   string
	logger *zap.Logger
}

// NewSinkWriter creates a writer for the artifact at path.
func NewSinkWriter(path string, logger *zap.Logger) *SinkWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SinkWriter{path: path, logger: logger}
}

// Path returns the artifact location.
func (s *SinkWriter) Path() string {
	return s.path
}

// Run drains in until it is closed, then flushes, syncs and closes the
// artifact. It returns the number of lines written. On failure it stops
// reading immediately; producers must observe cancellation to unblock.
func (s *SinkWriter) Run(in <-chan record.Record) (written int64, err error) {
	if dir := filepath.Dir(s.path); dir != "" {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return 0, fmt.Errorf("%w: create %s: %w", ErrWriterIO, dir, mkErr)
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrWriterIO, s.path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %w", ErrWriterIO, s.path, closeErr)
		}
	}()

	bw := bufio.NewWriterSize(f, writerBufferSize)
	line := make([]byte, 0, 512)

	for rec := range in {
		line = rec.AppendLine(line[:0])
		if _, err := bw.Write(line); err != nil {
			return written, fmt.Errorf("%w: write %s: %w", ErrWriterIO, s.path, err)
		}
		written++
	}

	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("%w: flush %s: %w", ErrWriterIO, s.path, err)
	}
	if err := f.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return written, fmt.Errorf("%w: sync %s: %w", ErrWriterIO, s.path, err)
	}

	s.logger.Debug("Staging artifact closed",
		zap.String("path", s.path), zap.Int64("lines", written))
	return written, nil
}
