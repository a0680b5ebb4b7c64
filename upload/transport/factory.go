package transport

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
)

// New creates the transport variant selected by kind.
// config is used by the HTTP variants, s3Config by the S3 one.
func New(ctx context.Context, kind Kind, config Config, s3Config S3Config, logger log.Logger) (Transport, error) {
	switch kind {
	case KindMultipart:
		t, err := NewMultipartTransport(config, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	case KindJSON:
		t, err := NewJSONTransport(config, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	case KindS3:
		t, err := NewS3Transport(ctx, s3Config, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}
