package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Source is a readable, fixed size file handed to the Uploader.
// Reads go through io.ReaderAt, so the hashing and the transfer phase never share a cursor.
type Source struct {
	name   string
	size   int64
	reader io.ReaderAt
	closer io.Closer
}

// NewSource wraps an already open reader. name is sent to the receiver as the file path.
func NewSource(name string, reader io.ReaderAt, size int64) *Source {
	return &Source{
		name:   name,
		size:   size,
		reader: reader,
	}
}

// OpenFile opens a local file for upload. Its size is fixed at open time.
// The caller must Close the returned Source.
func OpenFile(pth string) (*Source, error) {
	f, err := os.Open(pth)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", pth, err)
	}

	info, err := f.Stat()
	if err != nil {
		if cerr := f.Close(); cerr != nil {
			return nil, fmt.Errorf("stat %s: %w (close: %s)", pth, err, cerr)
		}
		return nil, fmt.Errorf("stat %s: %w", pth, err)
	}
	if info.IsDir() {
		if cerr := f.Close(); cerr != nil {
			return nil, fmt.Errorf("%s is a directory (close: %w)", pth, cerr)
		}
		return nil, fmt.Errorf("%s is a directory", pth)
	}

	return &Source{
		name:   filepath.Base(pth),
		size:   info.Size(),
		reader: f,
		closer: f,
	}, nil
}

// Name ...
func (s *Source) Name() string {
	return s.name
}

// Size ...
func (s *Source) Size() int64 {
	return s.size
}

// ReadAt ...
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	return s.reader.ReadAt(p, off)
}

// Close releases the underlying file. Sources created by NewSource are left to the caller.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
