package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tboxio/go-chunkupload/upload/transport"
)

const zeroes50Digest = "cc2786e1f9910a9d811400edcddaf7075195f7a16b216dcbefba3bc7c4f2ae51"

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, entry transport.Entry) (transport.Acknowledgement, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(transport.Acknowledgement), args.Error(1)
}

func partitionIndex(index int) interface{} {
	return mock.MatchedBy(func(entry transport.Entry) bool {
		return entry.PartitionIndex == index
	})
}

func testConfig(partitionSize int64) Config {
	config := DefaultConfig()
	config.PartitionSize = partitionSize
	config.WindowSize = 16
	config.RepoID = "2b1c8a3e-4f6d-4a5b-9c7e-1d2f3a4b5c6d"
	return config
}

type recorder struct {
	events   []string
	progress []float64
	speeds   []float64
	states   []string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(percent float64) {
			r.events = append(r.events, "progress")
			r.progress = append(r.progress, percent)
		},
		OnSpeedUpdate: func(mbps float64) {
			r.events = append(r.events, "speed")
			r.speeds = append(r.speeds, mbps)
		},
		OnStateChange: func(state State, index int) {
			r.states = append(r.states, fmt.Sprintf("%s:%d", state, index))
		},
	}
}

func TestUploader_Upload(t *testing.T) {
	var entries []transport.Entry
	sender := new(mockTransport)
	sender.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			entries = append(entries, args.Get(1).(transport.Entry))
		}).
		Return(transport.Acknowledgement{StatusCode: 200, Message: "ok"}, nil)

	uploader, err := New(testConfig(16), sender, log.NewLogger())
	require.NoError(t, err)

	rec := &recorder{}
	source := NewSource("zeroes.bin", bytes.NewReader(make([]byte, 50)), 50)
	result, err := uploader.Upload(context.Background(), source, rec.callbacks())
	require.NoError(t, err)

	assert.Equal(t, zeroes50Digest, result.Digest)
	assert.Equal(t, 4, result.Partitions)
	assert.Equal(t, int64(50), result.Bytes)
	assert.GreaterOrEqual(t, result.AverageMBps, 0.0)

	require.Len(t, entries, 4)
	wantLengths := []int{16, 16, 16, 2}
	for i, entry := range entries {
		assert.Equal(t, i, entry.PartitionIndex)
		assert.Equal(t, "zeroes.bin", entry.Path)
		assert.Equal(t, zeroes50Digest, entry.ContentHash)
		assert.Equal(t, int64(50), entry.TotalSize)
		assert.Equal(t, int64(16), entry.PartitionSize)
		assert.Equal(t, "2b1c8a3e-4f6d-4a5b-9c7e-1d2f3a4b5c6d", entry.RepoID)
		assert.Equal(t, transport.OpWrite, entry.Op)
		assert.Len(t, entry.Payload, wantLengths[i])
	}

	assert.Equal(t, []string{"speed", "progress", "speed", "progress", "speed", "progress", "speed", "progress"}, rec.events)
	assert.Equal(t, []float64{25, 50, 75, 100}, rec.progress)
	for _, s := range rec.speeds {
		assert.False(t, math.IsNaN(s) || math.IsInf(s, 0))
		assert.GreaterOrEqual(t, s, 0.0)
	}
	assert.Equal(t, []string{
		"init:-1", "hashing:-1",
		"transferring:0", "transferring:1", "transferring:2", "transferring:3",
		"completed:-1",
	}, rec.states)

	sender.AssertNumberOfCalls(t, "Send", 4)
}

func TestUploader_Upload_FailureStopsUpload(t *testing.T) {
	sender := new(mockTransport)
	sender.On("Send", mock.Anything, partitionIndex(0)).Return(transport.Acknowledgement{StatusCode: 200}, nil)
	sender.On("Send", mock.Anything, partitionIndex(1)).Return(transport.Acknowledgement{StatusCode: 200}, nil)
	sender.On("Send", mock.Anything, partitionIndex(2)).Return(transport.Acknowledgement{}, &transport.Error{
		Kind:           transport.KindRejected,
		PartitionIndex: 2,
		StatusCode:     500,
		Err:            errors.New("disk full"),
	})

	uploader, err := New(testConfig(10), sender, log.NewLogger())
	require.NoError(t, err)

	rec := &recorder{}
	source := NewSource("data.bin", bytes.NewReader(make([]byte, 50)), 50)
	result, err := uploader.Upload(context.Background(), source, rec.callbacks())
	require.Error(t, err)

	assert.Equal(t, zeroes50Digest, result.Digest)
	assert.Equal(t, 2, result.Partitions)
	assert.Equal(t, int64(20), result.Bytes)

	var uErr *Error
	require.True(t, errors.As(err, &uErr))
	assert.Equal(t, KindTransport, uErr.Kind)
	assert.Equal(t, 2, uErr.PartitionIndex)
	assert.Equal(t, "data.bin", uErr.Path)
	assert.Equal(t, transport.KindRejected, uErr.TransportKind())
	assert.True(t, IsRetryable(err))

	assert.Equal(t, []float64{20, 40}, rec.progress)
	assert.Len(t, rec.speeds, 2)
	assert.Equal(t, "failed:2", rec.states[len(rec.states)-1])
	sender.AssertNumberOfCalls(t, "Send", 3)
}

func TestUploader_Upload_EmptySource(t *testing.T) {
	sender := new(mockTransport)

	uploader, err := New(testConfig(16), sender, log.NewLogger())
	require.NoError(t, err)

	rec := &recorder{}
	result, err := uploader.Upload(context.Background(), NewSource("empty.bin", bytes.NewReader(nil), 0), rec.callbacks())
	require.NoError(t, err)

	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", result.Digest)
	assert.Equal(t, 0, result.Partitions)
	assert.Empty(t, rec.events)
	assert.Equal(t, []string{"init:-1", "hashing:-1", "completed:-1"}, rec.states)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestUploader_Upload_CancelledBeforeStart(t *testing.T) {
	sender := new(mockTransport)

	uploader, err := New(testConfig(16), sender, log.NewLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	_, err = uploader.Upload(ctx, NewSource("data.bin", bytes.NewReader(make([]byte, 50)), 50), rec.callbacks())
	require.Error(t, err)

	var uErr *Error
	require.True(t, errors.As(err, &uErr))
	assert.Equal(t, KindCancelled, uErr.Kind)
	assert.Equal(t, -1, uErr.PartitionIndex)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsRetryable(err))
	assert.Empty(t, rec.events)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestUploader_Upload_CancelledDuringSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := new(mockTransport)
	sender.On("Send", mock.Anything, partitionIndex(0)).Return(transport.Acknowledgement{StatusCode: 200}, nil)
	sender.On("Send", mock.Anything, partitionIndex(1)).
		Run(func(args mock.Arguments) { cancel() }).
		Return(transport.Acknowledgement{}, fmt.Errorf("partition 1: %w", context.Canceled))

	uploader, err := New(testConfig(16), sender, log.NewLogger())
	require.NoError(t, err)

	rec := &recorder{}
	_, err = uploader.Upload(ctx, NewSource("data.bin", bytes.NewReader(make([]byte, 50)), 50), rec.callbacks())
	require.Error(t, err)

	var uErr *Error
	require.True(t, errors.As(err, &uErr))
	assert.Equal(t, KindCancelled, uErr.Kind)
	assert.Equal(t, 1, uErr.PartitionIndex)
	assert.Equal(t, []float64{25}, rec.progress)
	sender.AssertNumberOfCalls(t, "Send", 2)
}

func TestUploader_Upload_TruncatedSource(t *testing.T) {
	sender := new(mockTransport)
	sender.On("Send", mock.Anything, partitionIndex(0)).Return(transport.Acknowledgement{StatusCode: 200}, nil)

	config := testConfig(16)
	config.KnownDigest = zeroes50Digest
	uploader, err := New(config, sender, log.NewLogger())
	require.NoError(t, err)

	_, err = uploader.Upload(context.Background(), NewSource("data.bin", bytes.NewReader(make([]byte, 30)), 50), Callbacks{})
	require.Error(t, err)

	var uErr *Error
	require.True(t, errors.As(err, &uErr))
	assert.Equal(t, KindIO, uErr.Kind)
	assert.Equal(t, 1, uErr.PartitionIndex)
	assert.False(t, IsRetryable(err))
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestUploader_Upload_TruncatedSourceWhileHashing(t *testing.T) {
	sender := new(mockTransport)

	uploader, err := New(testConfig(16), sender, log.NewLogger())
	require.NoError(t, err)

	_, err = uploader.Upload(context.Background(), NewSource("data.bin", bytes.NewReader(make([]byte, 30)), 50), Callbacks{})
	require.Error(t, err)

	var uErr *Error
	require.True(t, errors.As(err, &uErr))
	assert.Equal(t, KindIO, uErr.Kind)
	assert.Equal(t, -1, uErr.PartitionIndex)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestUploader_Upload_KnownDigestSkipsHashing(t *testing.T) {
	known := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

	var entries []transport.Entry
	sender := new(mockTransport)
	sender.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			entries = append(entries, args.Get(1).(transport.Entry))
		}).
		Return(transport.Acknowledgement{StatusCode: 200}, nil)

	config := testConfig(16)
	config.KnownDigest = known
	uploader, err := New(config, sender, log.NewLogger())
	require.NoError(t, err)

	rec := &recorder{}
	result, err := uploader.Upload(context.Background(), NewSource("hello.txt", bytes.NewReader([]byte("hello world")), 11), rec.callbacks())
	require.NoError(t, err)

	assert.Equal(t, known, result.Digest)
	assert.NotContains(t, rec.states, "hashing:-1")
	require.Len(t, entries, 1)
	assert.Equal(t, known, entries[0].ContentHash)
	assert.Equal(t, []byte("hello world"), entries[0].Payload)
}

func TestUploader_Upload_NilCallbacks(t *testing.T) {
	sender := new(mockTransport)
	sender.On("Send", mock.Anything, mock.Anything).Return(transport.Acknowledgement{StatusCode: 200}, nil)

	uploader, err := New(testConfig(4), sender, log.NewLogger())
	require.NoError(t, err)

	_, err = uploader.Upload(context.Background(), NewSource("a.txt", bytes.NewReader([]byte("hello world")), 11), Callbacks{})
	require.NoError(t, err)
	sender.AssertNumberOfCalls(t, "Send", 3)
}

func TestUploader_Upload_NilSource(t *testing.T) {
	uploader, err := New(testConfig(16), new(mockTransport), log.NewLogger())
	require.NoError(t, err)

	_, err = uploader.Upload(context.Background(), nil, Callbacks{})

	var uErr *Error
	require.True(t, errors.As(err, &uErr))
	assert.Equal(t, KindInvalidArgument, uErr.Kind)
}

func TestUploader_Upload_MissingSourceName(t *testing.T) {
	for _, name := range []string{"", "   "} {
		t.Run(fmt.Sprintf("%q", name), func(t *testing.T) {
			sender := new(mockTransport)
			uploader, err := New(testConfig(16), sender, log.NewLogger())
			require.NoError(t, err)

			rec := &recorder{}
			source := NewSource(name, bytes.NewReader(make([]byte, 20)), 20)
			result, err := uploader.Upload(context.Background(), source, rec.callbacks())

			var uErr *Error
			require.True(t, errors.As(err, &uErr))
			assert.Equal(t, KindInvalidArgument, uErr.Kind)
			assert.Equal(t, -1, uErr.PartitionIndex)
			assert.ErrorIs(t, err, ErrMissingPath)
			assert.Empty(t, result.Digest)
			assert.Equal(t, []string{"init:-1", "failed:-1"}, rec.states)
			sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "missing repo", mutate: func(c *Config) { c.RepoID = "" }, wantErr: ErrMissingRepoID},
		{name: "zero partition size", mutate: func(c *Config) { c.PartitionSize = 0 }, wantErr: ErrInvalidPartitionSize},
		{name: "negative window size", mutate: func(c *Config) { c.WindowSize = -1 }, wantErr: ErrInvalidWindowSize},
		{name: "malformed digest", mutate: func(c *Config) { c.KnownDigest = "ABC" }, wantErr: ErrInvalidDigest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig(16)
			tt.mutate(&config)

			_, err := New(config, new(mockTransport), log.NewLogger())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var uErr *Error
			require.True(t, errors.As(err, &uErr))
			assert.Equal(t, KindInvalidArgument, uErr.Kind)
			assert.Equal(t, -1, uErr.PartitionIndex)
		})
	}

	_, err := New(testConfig(16), nil, log.NewLogger())
	assert.Error(t, err)
}

func TestProgress_Percent(t *testing.T) {
	assert.Equal(t, 100.0, Progress{Completed: 0, Total: 0}.Percent())
	assert.Equal(t, 0.0, Progress{Completed: 0, Total: 3}.Percent())
	assert.Equal(t, 100.0, Progress{Completed: 3, Total: 3}.Percent())
	assert.InDelta(t, 33.333, Progress{Completed: 1, Total: 3}.Percent(), 0.001)
}
