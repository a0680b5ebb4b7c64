// Package transport sends single upload partitions to the remote endpoint and waits for their acknowledgement.
// The variants (multipart form, JSON document, S3 object) are interchangeable and picked at configuration time.
package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// OpCode is the operation the receiver applies to a partition.
type OpCode int

// OpWrite writes (appends) the partition to the file.
const OpWrite OpCode = 1

// Wire field names shared by every variant.
const (
	FieldPath          = "path"
	FieldSHA256        = "sha256"
	FieldSize          = "size"
	FieldPartitionSize = "partition_size"
	FieldContent       = "content"
	FieldRepoUUID      = "repo_uuid"
	FieldPartitionNum  = "partition_num"
	FieldOp            = "op"
)

// scalarFields is the order scalar fields are written in; content goes between partition_size and repo_uuid.
var scalarFields = []string{FieldPath, FieldSHA256, FieldSize, FieldPartitionSize, FieldRepoUUID, FieldPartitionNum, FieldOp}

// Entry is the request payload of one partition.
// Every entry of an upload shares Path, ContentHash, TotalSize, PartitionSize and RepoID.
type Entry struct {
	Path           string
	ContentHash    string
	TotalSize      int64
	PartitionSize  int64
	Payload        []byte
	RepoID         string
	PartitionIndex int
	Op             OpCode
}

// Fields returns the scalar wire fields of the entry in their string form.
func (e Entry) Fields() map[string]string {
	return map[string]string{
		FieldPath:          e.Path,
		FieldSHA256:        e.ContentHash,
		FieldSize:          strconv.FormatInt(e.TotalSize, 10),
		FieldPartitionSize: strconv.FormatInt(e.PartitionSize, 10),
		FieldRepoUUID:      e.RepoID,
		FieldPartitionNum:  strconv.Itoa(e.PartitionIndex),
		FieldOp:            strconv.Itoa(int(e.Op)),
	}
}

// Acknowledgement confirms that the endpoint accepted a partition.
type Acknowledgement struct {
	PartitionIndex int
	StatusCode     int
	// Message is the trimmed response body, or the object ETag for the S3 variant.
	Message string
}

// Transport sends one partition and blocks until it is acknowledged.
type Transport interface {
	Send(ctx context.Context, entry Entry) (Acknowledgement, error)
}

// Kind selects a transport variant.
type Kind string

// Transport variants.
const (
	KindMultipart Kind = "multipart"
	KindJSON      Kind = "json"
	KindS3        Kind = "s3"
)

// ParseKind ...
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMultipart, KindJSON, KindS3:
		return k, nil
	default:
		return "", fmt.Errorf("unknown transport %q, valid values: %s, %s, %s", s, KindMultipart, KindJSON, KindS3)
	}
}
