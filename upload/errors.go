package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/tboxio/go-chunkupload/upload/transport"
)

// Kind classifies an upload failure.
type Kind int

// Failure kinds.
const (
	KindIO Kind = iota
	KindInvalidArgument
	KindTransport
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindInvalidArgument:
		return "invalid argument"
	case KindTransport:
		return "transport"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Upload. PartitionIndex is -1 when the failure is not tied to a partition.
type Error struct {
	Kind           Kind
	PartitionIndex int
	Path           string
	Err            error
}

func (e *Error) Error() string {
	if e.PartitionIndex < 0 {
		return fmt.Sprintf("upload %s: %s error: %s", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("upload %s: partition %d: %s error: %s", e.Path, e.PartitionIndex, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TransportKind returns the transport failure kind of a KindTransport error.
func (e *Error) TransportKind() transport.ErrorKind {
	return transport.KindOf(e.Err)
}

// IsRetryable reports whether running the same upload again may succeed.
// Timeouts, broken connections and server side rejections are retryable; invalid arguments,
// cancellation, client side rejections and local I/O failures are not.
func IsRetryable(err error) bool {
	var uErr *Error
	if !errors.As(err, &uErr) || uErr.Kind != KindTransport {
		return false
	}

	var tErr *transport.Error
	if !errors.As(uErr.Err, &tErr) {
		return false
	}
	return tErr.Temporary()
}

// newError classifies err. Context errors take precedence, so an interrupted read or request reports KindCancelled.
func newError(kind Kind, index int, path string, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if transport.KindOf(err) == transport.KindUnknown {
			kind = KindCancelled
		}
	}
	return &Error{
		Kind:           kind,
		PartitionIndex: index,
		Path:           path,
		Err:            err,
	}
}
