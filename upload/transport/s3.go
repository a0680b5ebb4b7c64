package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const (
	numLookupRetries = 3
	s3PartMB         = 10
)

// S3Config holds configuration for the object store transport.
type S3Config struct {
	Bucket string
	Region string
	// Prefix is prepended to every object key.
	Prefix string
	// Endpoint overrides the S3 endpoint, for S3 compatible stores. Path style addressing is used with it.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// Timeout bounds a single partition upload. Zero disables it.
	Timeout time.Duration
}

// Validate ensures the configuration is valid.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket must not be empty")
	}
	if c.Region == "" {
		return fmt.Errorf("region must not be empty")
	}
	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

type objectClient interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Transport stores every partition as its own object, keyed by repository, content hash and partition index.
// A partition whose object already exists with the same hash and size is acknowledged without uploading it again.
type S3Transport struct {
	client     objectClient
	uploader   *manager.Uploader
	bucket     string
	prefix     string
	timeout    time.Duration
	lookupWait time.Duration
	logger     log.Logger
}

// NewS3Transport ...
func NewS3Transport(ctx context.Context, cfg S3Config, logger log.Logger) (*S3Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}

	client, err := newS3Client(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return newS3Transport(client, cfg, logger), nil
}

func newS3Transport(client objectClient, cfg S3Config, logger log.Logger) *S3Transport {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = s3PartMB * 1024 * 1024
	})

	return &S3Transport{
		client:     client,
		uploader:   uploader,
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		timeout:    cfg.Timeout,
		lookupWait: 5 * time.Second,
		logger:     logger,
	}
}

// Send ...
func (t *S3Transport) Send(ctx context.Context, entry Entry) (Acknowledgement, error) {
	reqCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	key := t.objectKey(entry)

	etag, found, err := t.findPartitionWithRetry(reqCtx, key, entry)
	if err != nil {
		return Acknowledgement{}, t.sendError(ctx, reqCtx, entry.PartitionIndex, fmt.Errorf("look up %s: %w", key, err))
	}
	if found {
		t.logger.Debugf("Partition %d is already stored as %s, skipping upload", entry.PartitionIndex, key)
		return Acknowledgement{PartitionIndex: entry.PartitionIndex, StatusCode: 200, Message: etag}, nil
	}

	out, err := t.uploader.Upload(reqCtx, &s3.PutObjectInput{
		Bucket:            aws.String(t.bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(entry.Payload),
		ContentLength:     aws.Int64(int64(len(entry.Payload))),
		ContentType:       aws.String("application/octet-stream"),
		Metadata:          objectMetadata(entry),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	})
	if err != nil {
		return Acknowledgement{}, t.sendError(ctx, reqCtx, entry.PartitionIndex, fmt.Errorf("put %s: %w", key, err))
	}

	return Acknowledgement{
		PartitionIndex: entry.PartitionIndex,
		StatusCode:     200,
		Message:        aws.ToString(out.ETag),
	}, nil
}

func (t *S3Transport) objectKey(entry Entry) string {
	return path.Join(t.prefix, entry.RepoID, entry.ContentHash, strconv.Itoa(entry.PartitionIndex))
}

// findPartitionWithRetry checks whether the partition object is already present.
// It only reports a match when the stored hash and length agree with the entry.
func (t *S3Transport) findPartitionWithRetry(ctx context.Context, key string, entry Entry) (string, bool, error) {
	var etag string
	var found bool
	err := retry.Times(numLookupRetries).Wait(t.lookupWait).TryWithAbort(func(attempt uint) (error, bool) {
		out, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(t.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) {
				switch apiError.(type) {
				case *types.NotFound:
					// continue with upload
					return nil, true
				}
			}
			if ctx.Err() != nil {
				return err, true
			}
			return fmt.Errorf("head object: %w", err), false
		}

		if out.Metadata[metadataKey(FieldSHA256)] == entry.ContentHash && aws.ToInt64(out.ContentLength) == int64(len(entry.Payload)) {
			etag = aws.ToString(out.ETag)
			found = true
		}
		return nil, true
	})

	return etag, found, err
}

func (t *S3Transport) sendError(ctx, reqCtx context.Context, index int, err error) error {
	if ctx.Err() == nil && reqCtx.Err() == nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) {
			status := 0
			var respErr *awshttp.ResponseError
			if errors.As(err, &respErr) {
				status = respErr.HTTPStatusCode()
			}
			return &Error{
				Kind:           KindRejected,
				PartitionIndex: index,
				StatusCode:     status,
				Err:            err,
			}
		}
	}
	return requestError(ctx, reqCtx, index, err)
}

// objectMetadata stores the scalar fields with the object. Metadata keys use dashes, as they travel as HTTP headers.
func objectMetadata(entry Entry) map[string]string {
	fields := entry.Fields()
	metadata := make(map[string]string, len(fields))
	for name, value := range fields {
		metadata[metadataKey(name)] = value
	}
	return metadata
}

func metadataKey(field string) string {
	return strings.ReplaceAll(field, "_", "-")
}

// newS3Client builds a client for cfg. Static keys are used when both are set, the default
// AWS credential chain otherwise.
func newS3Client(ctx context.Context, cfg S3Config, logger log.Logger) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		logger.Debugf("Using static AWS credentials")
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	} else {
		logger.Debugf("Using the default AWS credential chain")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
