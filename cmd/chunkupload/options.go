package main

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tboxio/go-chunkupload/upload"
	"github.com/tboxio/go-chunkupload/upload/transport"
)

// flagKeys maps upload flags to their viper keys. Nested keys become CHUNKUPLOAD_S3_* env vars.
var flagKeys = map[string]string{
	"endpoint":             "endpoint",
	"repo":                 "repo",
	"transport":            "transport",
	"partition-size":       "partition-size",
	"window-size":          "window-size",
	"retries":              "retries",
	"retry-wait":           "retry-wait",
	"timeout":              "timeout",
	"token":                "token",
	"compress-json":        "compress-json",
	"no-progress":          "no-progress",
	"s3-bucket":            "s3.bucket",
	"s3-region":            "s3.region",
	"s3-prefix":            "s3.prefix",
	"s3-endpoint":          "s3.endpoint",
	"s3-access-key-id":     "s3.access-key-id",
	"s3-secret-access-key": "s3.secret-access-key",
}

type uploadOptions struct {
	Endpoint      string
	RepoID        string
	Transport     transport.Kind
	PartitionSize int64
	WindowSize    int
	Retries       uint
	RetryWait     time.Duration
	Timeout       time.Duration
	Token         string
	CompressJSON  bool
	NoProgress    bool
	Verbose       bool
	S3            transport.S3Config
}

func registerUploadFlags(flags *pflag.FlagSet) {
	flags.String("endpoint", "", "Base URL of the receiver, e.g. http://127.0.0.1:10003")
	flags.String("repo", "", "Destination repository ID (required)")
	flags.String("transport", string(transport.KindMultipart), "Transport variant: multipart, json or s3")
	flags.String("partition-size", "16MiB", "Size of one partition")
	flags.String("window-size", "32MiB", "Read window of the checksum pass")
	flags.Uint("retries", 0, "Number of times a failed upload is retried")
	flags.Duration("retry-wait", 5*time.Second, "Wait between retries")
	flags.Duration("timeout", 5*time.Minute, "Timeout of a single partition request, 0 disables it")
	flags.String("token", "", "Bearer token sent to the receiver")
	flags.Bool("compress-json", false, "Gzip the body of the json transport")
	flags.Bool("no-progress", false, "Do not render a progress bar")
	flags.String("s3-bucket", "", "Bucket of the s3 transport")
	flags.String("s3-region", "", "Region of the s3 transport")
	flags.String("s3-prefix", "", "Object key prefix of the s3 transport")
	flags.String("s3-endpoint", "", "Endpoint of an S3 compatible store")
	flags.String("s3-access-key-id", "", "Access key ID of the s3 transport, the default AWS credential chain is used when empty")
	flags.String("s3-secret-access-key", "", "Secret access key of the s3 transport")
}

func bindUploadFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func loadUploadOptions(v *viper.Viper) (uploadOptions, error) {
	kind, err := transport.ParseKind(v.GetString("transport"))
	if err != nil {
		return uploadOptions{}, err
	}

	partitionSize, err := units.RAMInBytes(v.GetString("partition-size"))
	if err != nil {
		return uploadOptions{}, fmt.Errorf("invalid partition size: %w", err)
	}

	windowSize, err := units.RAMInBytes(v.GetString("window-size"))
	if err != nil {
		return uploadOptions{}, fmt.Errorf("invalid window size: %w", err)
	}
	if windowSize > int64(^uint(0)>>1) {
		return uploadOptions{}, fmt.Errorf("window size too large: %d", windowSize)
	}

	opts := uploadOptions{
		Endpoint:      v.GetString("endpoint"),
		RepoID:        v.GetString("repo"),
		Transport:     kind,
		PartitionSize: partitionSize,
		WindowSize:    int(windowSize),
		Retries:       v.GetUint("retries"),
		RetryWait:     v.GetDuration("retry-wait"),
		Timeout:       v.GetDuration("timeout"),
		Token:         v.GetString("token"),
		CompressJSON:  v.GetBool("compress-json"),
		NoProgress:    v.GetBool("no-progress"),
		Verbose:       v.GetBool("verbose"),
		S3: transport.S3Config{
			Bucket:          v.GetString("s3.bucket"),
			Region:          v.GetString("s3.region"),
			Prefix:          v.GetString("s3.prefix"),
			Endpoint:        v.GetString("s3.endpoint"),
			AccessKeyID:     v.GetString("s3.access-key-id"),
			SecretAccessKey: v.GetString("s3.secret-access-key"),
			Timeout:         v.GetDuration("timeout"),
		},
	}

	if err := opts.uploadConfig().Validate(); err != nil {
		return uploadOptions{}, err
	}

	return opts, nil
}

func (o uploadOptions) uploadConfig() upload.Config {
	config := upload.DefaultConfig()
	config.PartitionSize = o.PartitionSize
	config.WindowSize = o.WindowSize
	config.RepoID = o.RepoID
	return config
}

func (o uploadOptions) transportConfig() transport.Config {
	config := transport.DefaultConfig()
	config.BaseURL = o.Endpoint
	config.Token = o.Token
	config.Timeout = o.Timeout
	config.CompressJSON = o.CompressJSON
	return config
}
