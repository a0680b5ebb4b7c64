package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tboxio/go-chunkupload/upload"
	"github.com/tboxio/go-chunkupload/upload/transport"
)

func newUploadCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload [paths or URLs...]",
		Short: "Upload files partition by partition",
		Long: `Upload one or more files. Arguments may be file paths, glob patterns
(e.g. 'build/**/*.ipa') or http(s) URLs, which are downloaded first.
Files are uploaded one after another.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadUploadOptions(v)
			if err != nil {
				return err
			}

			logger := log.NewLogger()
			logger.EnableDebugLog(opts.Verbose)

			return runUpload(cmd.Context(), opts, args, cmd.ErrOrStderr(), logger)
		},
	}

	registerUploadFlags(cmd.Flags())
	if err := bindUploadFlags(v, cmd.Flags()); err != nil {
		panic(err)
	}

	return cmd
}

func runUpload(ctx context.Context, opts uploadOptions, args []string, progressOut io.Writer, logger log.Logger) error {
	resolver := newSourceResolver(logger)
	defer resolver.cleanup()

	paths, err := resolver.resolve(ctx, args)
	if err != nil {
		return err
	}

	t, err := transport.New(ctx, opts.Transport, opts.transportConfig(), opts.S3, logger)
	if err != nil {
		return fmt.Errorf("failed to create %s transport: %w", opts.Transport, err)
	}
	logger.Debugf("Using %s transport", opts.Transport)

	if opts.NoProgress {
		progressOut = io.Discard
	}

	for _, pth := range paths {
		result, err := uploadFile(ctx, opts, t, pth, progressOut, logger)
		if err != nil {
			return err
		}
		logger.Printf("%s: %s, %d partition(s), sha256 %s", pth, units.HumanSize(float64(result.Bytes)), result.Partitions, result.Digest)
	}

	return nil
}

// uploadFile uploads a single file, retrying the whole upload on retryable failures.
// The digest of the first attempt is reused by the retries.
func uploadFile(ctx context.Context, opts uploadOptions, t transport.Transport, pth string, progressOut io.Writer, logger log.Logger) (upload.Result, error) {
	source, err := upload.OpenFile(pth)
	if err != nil {
		return upload.Result{}, err
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warnf("Failed to close %s: %s", pth, err)
		}
	}()

	config := opts.uploadConfig()

	var result upload.Result
	err = retry.Times(opts.Retries).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			if err := waitForRetry(ctx, opts.RetryWait); err != nil {
				return &upload.Error{Kind: upload.KindCancelled, PartitionIndex: -1, Path: source.Name(), Err: err}, true
			}
			logger.Println()
			logger.Warnf("Retrying upload of %s (attempt %d)...", source.Name(), attempt+1)
		}

		uploader, err := upload.New(config, t, logger)
		if err != nil {
			return err, true
		}

		ui := newProgressUI(progressOut, source.Name(), source.Size())
		res, err := uploader.Upload(ctx, source, ui.callbacks())
		if err != nil {
			if res.Digest != "" {
				config.KnownDigest = res.Digest
			}
			if !upload.IsRetryable(err) || ctx.Err() != nil {
				return err, true
			}
			logger.Warnf("Upload attempt failed: %s", err)
			return err, false
		}

		result = res
		return nil, false
	})
	if err != nil {
		var uploadErr *upload.Error
		if errors.As(err, &uploadErr) && uploadErr.Kind == upload.KindCancelled {
			logger.Warnf("Upload of %s cancelled", source.Name())
		}
		return upload.Result{}, err
	}

	return result, nil
}

// waitForRetry sleeps for d or until ctx is done.
func waitForRetry(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
