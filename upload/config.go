package upload

import (
	"errors"
	"fmt"

	"github.com/tboxio/go-chunkupload/upload/digest"
	"github.com/tboxio/go-chunkupload/upload/partition"
	"github.com/tboxio/go-chunkupload/upload/transport"
)

var (
	// ErrMissingRepoID ...
	ErrMissingRepoID = errors.New("repository id must be set")
	// ErrMissingPath ...
	ErrMissingPath = errors.New("source name must be set")
	// ErrInvalidPartitionSize ...
	ErrInvalidPartitionSize = errors.New("partition size must be greater than 0")
	// ErrInvalidWindowSize ...
	ErrInvalidWindowSize = errors.New("hash window size must be greater than 0")
	// ErrInvalidDigest ...
	ErrInvalidDigest = errors.New("known digest must be a 64 character lowercase hex string")
)

// Config holds the settings of one Uploader.
type Config struct {
	// PartitionSize is the size of every partition except possibly the last one.
	// Default: 16 MiB
	PartitionSize int64

	// WindowSize is the read window of the digest pass, independent of PartitionSize.
	// Default: 32 MiB
	WindowSize int

	// RepoID identifies the destination repository.
	RepoID string

	// Op is sent with every partition.
	// Default: transport.OpWrite
	Op transport.OpCode

	// KnownDigest skips the hashing pass when set. It lets a retrying caller reuse the digest of a previous attempt.
	KnownDigest string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PartitionSize: partition.DefaultPartitionSize,
		WindowSize:    digest.DefaultWindowSize,
		Op:            transport.OpWrite,
	}
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.PartitionSize <= 0 {
		return ErrInvalidPartitionSize
	}
	if c.WindowSize <= 0 {
		return ErrInvalidWindowSize
	}
	if c.RepoID == "" {
		return ErrMissingRepoID
	}
	if c.KnownDigest != "" && !digest.IsValid(c.KnownDigest) {
		return fmt.Errorf("%w: %q", ErrInvalidDigest, c.KnownDigest)
	}
	return nil
}
