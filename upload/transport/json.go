package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/klauspost/compress/gzip"
)

type jsonEntry struct {
	Path          string `json:"path"`
	SHA256        string `json:"sha256"`
	Size          int64  `json:"size"`
	PartitionSize int64  `json:"partition_size"`
	Content       string `json:"content"`
	RepoUUID      string `json:"repo_uuid"`
	PartitionNum  int    `json:"partition_num"`
	Op            int    `json:"op"`
}

// JSONTransport posts partitions as JSON documents with the payload base64 encoded.
// It inflates the payload by about a third and buffers the whole document, for receivers
// that cannot take multipart bodies.
type JSONTransport struct {
	client   apiClient
	url      string
	compress bool
}

// NewJSONTransport ...
func NewJSONTransport(config Config, logger log.Logger) (*JSONTransport, error) {
	client, err := newAPIClient(config, logger)
	if err != nil {
		return nil, err
	}

	jsonPath := config.JSONPath
	if jsonPath == "" {
		jsonPath = DefaultJSONPath
	}

	return &JSONTransport{
		client:   client,
		url:      config.endpoint(jsonPath),
		compress: config.CompressJSON,
	}, nil
}

// Send ...
func (t *JSONTransport) Send(ctx context.Context, entry Entry) (Acknowledgement, error) {
	body, err := encodeJSON(entry)
	if err != nil {
		return Acknowledgement{}, fmt.Errorf("encode partition %d: %w", entry.PartitionIndex, err)
	}

	var headers map[string]string
	if t.compress {
		if body, err = gzipBody(body); err != nil {
			return Acknowledgement{}, fmt.Errorf("compress partition %d: %w", entry.PartitionIndex, err)
		}
		headers = map[string]string{"Content-Encoding": "gzip"}
	}

	return t.client.post(ctx, entry.PartitionIndex, t.url, "application/json", body, headers)
}

func encodeJSON(entry Entry) ([]byte, error) {
	return json.Marshal(jsonEntry{
		Path:          entry.Path,
		SHA256:        entry.ContentHash,
		Size:          entry.TotalSize,
		PartitionSize: entry.PartitionSize,
		Content:       base64.StdEncoding.EncodeToString(entry.Payload),
		RepoUUID:      entry.RepoID,
		PartitionNum:  entry.PartitionIndex,
		Op:            int(entry.Op),
	})
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
