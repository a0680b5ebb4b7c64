// Package upload sends a local file to a content addressed receiver in fixed size partitions.
// The whole-file SHA-256 is computed first, then partitions are sent one at a time in
// ascending order, each one acknowledged before the next is read.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/tboxio/go-chunkupload/upload/digest"
	"github.com/tboxio/go-chunkupload/upload/partition"
	"github.com/tboxio/go-chunkupload/upload/speed"
	"github.com/tboxio/go-chunkupload/upload/transport"
)

// State is the lifecycle phase of one upload.
type State int

// Upload states.
const (
	StateInit State = iota
	StateHashing
	StateTransferring
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateHashing:
		return "hashing"
	case StateTransferring:
		return "transferring"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Progress counts acknowledged partitions.
type Progress struct {
	Completed int
	Total     int
}

// Percent returns the share of acknowledged partitions in [0, 100].
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 100
	}
	return float64(p.Completed) * 100 / float64(p.Total)
}

// Callbacks observe an upload. They run synchronously on the goroutine calling Upload;
// a slow callback delays the next partition. Any of them may be nil.
type Callbacks struct {
	// OnProgress receives the completed percentage after every acknowledged partition.
	OnProgress func(percent float64)
	// OnSpeedUpdate receives the throughput of the last partition in MiB/s, before OnProgress.
	// It is speed.Unmeasured when the round trip was too short to measure.
	OnSpeedUpdate func(mbps float64)
	// OnStateChange receives every state transition. index is the partition being sent, or -1.
	OnStateChange func(state State, index int)
}

func (c Callbacks) progress(percent float64) {
	if c.OnProgress != nil {
		c.OnProgress(percent)
	}
}

func (c Callbacks) speedUpdate(mbps float64) {
	if c.OnSpeedUpdate != nil {
		c.OnSpeedUpdate(mbps)
	}
}

func (c Callbacks) stateChange(state State, index int) {
	if c.OnStateChange != nil {
		c.OnStateChange(state, index)
	}
}

// Result summarizes an upload.
type Result struct {
	Digest string
	// Partitions and Bytes count what the receiver acknowledged.
	Partitions  int
	Bytes       int64
	Elapsed     time.Duration
	AverageMBps float64
}

// Uploader sends sources through a single transport. It holds no per-upload state,
// so one Uploader may run several uploads one after another or concurrently.
type Uploader struct {
	config    Config
	transport transport.Transport
	logger    log.Logger
	sampler   *speed.Sampler
}

// New creates an Uploader.
func New(config Config, t transport.Transport, logger log.Logger) (*Uploader, error) {
	if err := config.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidArgument, PartitionIndex: -1, Err: err}
	}
	if t == nil {
		return nil, &Error{Kind: KindInvalidArgument, PartitionIndex: -1, Err: errors.New("transport must be set")}
	}
	if logger == nil {
		logger = log.NewLogger()
	}

	return &Uploader{
		config:    config,
		transport: t,
		logger:    logger,
		sampler:   speed.NewSampler(nil),
	}, nil
}

// Upload hashes source and sends it partition by partition.
// The first failure stops the upload; partitions acknowledged before it stay on the receiver.
// On failure the returned Result still reports the digest, when it was computed, and the
// partitions acknowledged so far.
func (u *Uploader) Upload(ctx context.Context, source *Source, callbacks Callbacks) (Result, error) {
	startTime := time.Now()
	var stats speed.Stats
	var result Result

	failed := func(err *Error) (Result, error) {
		result.Elapsed = time.Since(startTime)
		result.AverageMBps = stats.AverageMBps()
		callbacks.stateChange(StateFailed, err.PartitionIndex)
		u.logger.Errorf("%s", err)
		return result, err
	}

	callbacks.stateChange(StateInit, -1)

	if source == nil {
		return failed(&Error{Kind: KindInvalidArgument, PartitionIndex: -1, Err: errors.New("source must be set")})
	}
	name := source.Name()
	if strings.TrimSpace(name) == "" {
		return failed(&Error{Kind: KindInvalidArgument, PartitionIndex: -1, Err: ErrMissingPath})
	}
	size := source.Size()

	it, err := partition.Partitions(size, u.config.PartitionSize)
	if err != nil {
		return failed(newError(KindInvalidArgument, -1, name, err))
	}
	total := it.Count()

	contentHash, err := u.contentHash(ctx, source, callbacks)
	if err != nil {
		return failed(newError(KindIO, -1, name, err))
	}
	result.Digest = contentHash

	u.logger.Println()
	u.logger.Infof("Uploading %s (%s) in %d partition(s)...", name, units.HumanSizeWithPrecision(float64(size), 3), total)
	if total > 0 {
		u.logger.Debugf("Partition size %s, last partition %s", units.HumanSize(float64(u.config.PartitionSize)),
			units.HumanSize(float64(partition.LastPartitionSize(size, u.config.PartitionSize))))
	}

	reader := partition.NewReader(source)
	for {
		d, ok := it.Next()
		if !ok {
			break
		}

		if err := ctx.Err(); err != nil {
			return failed(newError(KindCancelled, d.Index, name, err))
		}
		callbacks.stateChange(StateTransferring, d.Index)

		payload, err := reader.Read(d)
		if err != nil {
			return failed(newError(KindIO, d.Index, name, err))
		}

		entry := transport.Entry{
			Path:           name,
			ContentHash:    contentHash,
			TotalSize:      size,
			PartitionSize:  u.config.PartitionSize,
			Payload:        payload,
			RepoID:         u.config.RepoID,
			PartitionIndex: d.Index,
			Op:             u.config.Op,
		}

		sample, err := u.sampler.Measure(d.Length, func() error {
			ack, err := u.transport.Send(ctx, entry)
			if err != nil {
				return err
			}
			if ack.Message != "" {
				u.logger.Debugf("Partition %d acknowledged: %s", d.Index, ack.Message)
			}
			return nil
		})
		if err != nil {
			return failed(newError(KindTransport, d.Index, name, err))
		}
		stats.Update(sample)
		result.Partitions++
		result.Bytes += d.Length

		mbps := sample.MBps()
		progress := Progress{Completed: d.Index + 1, Total: total}
		u.logger.Debugf("Partition %d/%d (%s) sent in %s, %.2f MB/s", progress.Completed, total,
			units.HumanSizeWithPrecision(float64(d.Length), 3), sample.Elapsed.Round(time.Millisecond), mbps)

		callbacks.speedUpdate(mbps)
		callbacks.progress(progress.Percent())
	}

	result.Elapsed = time.Since(startTime)
	result.AverageMBps = stats.AverageMBps()
	callbacks.stateChange(StateCompleted, -1)
	u.logger.Donef("Uploaded %s in %s (%.2f MB/s)", name, result.Elapsed.Round(time.Millisecond), result.AverageMBps)
	if result.Partitions > 0 {
		slowest := stats.Slowest()
		u.logger.Printf("Partition round trip: %s average, %s slowest (%.2f MB/s)",
			stats.Average().Round(time.Millisecond), slowest.Elapsed.Round(time.Millisecond), slowest.MBps())
	}

	return result, nil
}

func (u *Uploader) contentHash(ctx context.Context, source *Source, callbacks Callbacks) (string, error) {
	if u.config.KnownDigest != "" {
		u.logger.Debugf("Reusing checksum %s", u.config.KnownDigest)
		return u.config.KnownDigest, nil
	}

	callbacks.stateChange(StateHashing, -1)
	u.logger.Infof("Computing checksum of %s...", source.Name())
	hashStartTime := time.Now()

	contentHash, err := digest.ComputeAt(ctx, source, source.Size(), u.config.WindowSize)
	if err != nil {
		return "", fmt.Errorf("compute checksum: %w", err)
	}

	u.logger.Donef("Checksum computed in %s", time.Since(hashStartTime).Round(time.Millisecond))
	u.logger.Debugf("Checksum: %s", contentHash)
	u.logger.TDebugf("Checksum computed")

	return contentHash, nil
}
