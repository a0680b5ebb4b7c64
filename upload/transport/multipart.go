package transport

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"path"

	"github.com/bitrise-io/go-utils/v2/log"
)

// MultipartTransport posts partitions as multipart forms with the payload as a raw binary part.
type MultipartTransport struct {
	client apiClient
	url    string
}

// NewMultipartTransport ...
func NewMultipartTransport(config Config, logger log.Logger) (*MultipartTransport, error) {
	client, err := newAPIClient(config, logger)
	if err != nil {
		return nil, err
	}

	binaryPath := config.BinaryPath
	if binaryPath == "" {
		binaryPath = DefaultBinaryPath
	}

	return &MultipartTransport{
		client: client,
		url:    config.endpoint(binaryPath),
	}, nil
}

// Send ...
func (t *MultipartTransport) Send(ctx context.Context, entry Entry) (Acknowledgement, error) {
	body, contentType, err := encodeMultipart(entry)
	if err != nil {
		return Acknowledgement{}, fmt.Errorf("encode partition %d: %w", entry.PartitionIndex, err)
	}

	return t.client.post(ctx, entry.PartitionIndex, t.url, contentType, body, nil)
}

// encodeMultipart builds the form body. The whole form is buffered so the request can be replayed.
func encodeMultipart(entry Entry) ([]byte, string, error) {
	var buf bytes.Buffer
	buf.Grow(len(entry.Payload) + 1024)
	w := multipart.NewWriter(&buf)

	fields := entry.Fields()
	for _, name := range scalarFields {
		if name == FieldRepoUUID {
			if err := writeContentPart(w, entry); err != nil {
				return nil, "", err
			}
		}
		if err := w.WriteField(name, fields[name]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeContentPart(w *multipart.Writer, entry Entry) error {
	part, err := w.CreateFormFile(FieldContent, path.Base(entry.Path))
	if err != nil {
		return fmt.Errorf("create content part: %w", err)
	}
	if _, err := part.Write(entry.Payload); err != nil {
		return fmt.Errorf("write content part: %w", err)
	}
	return nil
}
