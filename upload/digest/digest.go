// Package digest computes the whole-file SHA-256 content hash by absorbing the input
// in bounded windows, so the full content is never held in memory.
package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/docker/go-units"
)

// DefaultWindowSize is the read window used for hashing. It is independent of the transfer partition size.
const DefaultWindowSize = 32 * units.MiB

// Size is the length of a hex encoded digest.
const Size = sha256.Size * 2

// ErrInvalidWindowSize ...
var ErrInvalidWindowSize = errors.New("window size must be greater than 0")

// Compute reads exactly size bytes from r in windows of windowSize bytes and returns the
// lowercase hex SHA-256 of the content.
// The context is checked before each window; a truncated or failing source returns an error
// and never a partial digest.
func Compute(ctx context.Context, r io.Reader, size int64, windowSize int) (string, error) {
	if windowSize <= 0 {
		return "", ErrInvalidWindowSize
	}
	if size < 0 {
		return "", fmt.Errorf("invalid source size: %d", size)
	}

	bufSize := int64(windowSize)
	if size < bufSize {
		bufSize = size
	}
	window := make([]byte, bufSize)
	hash := sha256.New()

	var consumed int64
	for consumed < size {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("hashing interrupted after %d bytes: %w", consumed, err)
		}

		n := int64(len(window))
		if remaining := size - consumed; remaining < n {
			n = remaining
		}

		read, err := io.ReadFull(r, window[:n])
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return "", fmt.Errorf("read window at offset %d (%d of %d bytes): %w", consumed, read, n, err)
		}

		// hash.Hash never returns an error on Write
		hash.Write(window[:n])
		consumed += n
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// ComputeAt hashes the first size bytes of r through a private section reader.
func ComputeAt(ctx context.Context, r io.ReaderAt, size int64, windowSize int) (string, error) {
	return Compute(ctx, io.NewSectionReader(r, 0, size), size, windowSize)
}

// ComputeFile hashes the file at path.
func ComputeFile(ctx context.Context, path string, windowSize int) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat file for checksum: %w", err)
	}

	return ComputeAt(ctx, file, info.Size(), windowSize)
}

// IsValid reports whether s looks like a digest produced by this package.
func IsValid(s string) bool {
	if len(s) != Size {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
