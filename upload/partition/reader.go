package partition

import (
	"errors"
	"fmt"
	"io"
)

// Reader loads partition payloads from an io.ReaderAt.
// Every read goes through its own section, so it never moves a cursor shared with another phase.
type Reader struct {
	source io.ReaderAt
}

// NewReader ...
func NewReader(source io.ReaderAt) *Reader {
	return &Reader{source: source}
}

// Read returns exactly d.Length bytes starting at d.Offset.
// A source that ends early is reported as io.ErrUnexpectedEOF, the partial payload is dropped.
func (r *Reader) Read(d Descriptor) ([]byte, error) {
	if d.Length < 0 || d.Offset < 0 {
		return nil, fmt.Errorf("invalid partition %d: offset %d, length %d", d.Index, d.Offset, d.Length)
	}

	chunk := make([]byte, d.Length)
	n, err := io.ReadFull(io.NewSectionReader(r.source, d.Offset, d.Length), chunk)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read partition %d (%d of %d bytes at offset %d): %w", d.Index, n, d.Length, d.Offset, err)
	}

	return chunk, nil
}
