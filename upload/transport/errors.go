package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed partition send.
type ErrorKind int

// Error kinds.
const (
	KindUnknown ErrorKind = iota
	// KindRejected means the endpoint answered but did not accept the partition.
	KindRejected
	// KindTimeout means the request did not complete within the configured timeout.
	KindTimeout
	// KindConnectionFailed means the endpoint could not be reached or the connection broke.
	KindConnectionFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindTimeout:
		return "timeout"
	case KindConnectionFailed:
		return "connection failed"
	default:
		return "unknown"
	}
}

// Error is returned by Send when a partition was not acknowledged.
type Error struct {
	Kind           ErrorKind
	PartitionIndex int
	// StatusCode is set for KindRejected answers of the HTTP variants.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("partition %d %s (HTTP %d): %s", e.PartitionIndex, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("partition %d %s: %s", e.PartitionIndex, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether sending the same partition again may succeed.
func (e *Error) Temporary() bool {
	switch e.Kind {
	case KindTimeout, KindConnectionFailed:
		return true
	case KindRejected:
		return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Kind
	}
	return KindUnknown
}
