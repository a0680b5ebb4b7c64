// Package partition splits a byte source of known size into ordered, fixed-size byte ranges
// and reads the payload of a single range without touching any shared read cursor.
package partition

import (
	"errors"

	"github.com/docker/go-units"
)

// DefaultPartitionSize is the transfer partition size used when none is configured.
const DefaultPartitionSize int64 = 16 * units.MiB

var (
	// ErrInvalidPartitionSize ...
	ErrInvalidPartitionSize = errors.New("partition size must be greater than 0")
	// ErrInvalidTotalSize ...
	ErrInvalidTotalSize = errors.New("total size must not be negative")
)

// Descriptor identifies one contiguous byte range of the source.
type Descriptor struct {
	Index  int
	Offset int64
	Length int64
}

// End returns the offset right after the last byte of the partition.
func (d Descriptor) End() int64 {
	return d.Offset + d.Length
}

// Iterator lazily produces the descriptors of one partitioning, in index order.
// It is not restartable: call Partitions again to start over from index 0.
type Iterator struct {
	totalSize     int64
	partitionSize int64
	count         int
	next          int
}

// Partitions returns an iterator over the partitions of a totalSize byte source.
// A zero totalSize yields no partitions.
func Partitions(totalSize, partitionSize int64) (*Iterator, error) {
	if partitionSize <= 0 {
		return nil, ErrInvalidPartitionSize
	}
	if totalSize < 0 {
		return nil, ErrInvalidTotalSize
	}

	return &Iterator{
		totalSize:     totalSize,
		partitionSize: partitionSize,
		count:         Count(totalSize, partitionSize),
	}, nil
}

// Count returns ceil(totalSize / partitionSize), or 0 for non-positive inputs.
func Count(totalSize, partitionSize int64) int {
	if totalSize <= 0 || partitionSize <= 0 {
		return 0
	}

	n := totalSize / partitionSize
	if totalSize%partitionSize != 0 {
		n++
	}
	return int(n)
}

// LastPartitionSize returns the length of the final partition.
func LastPartitionSize(totalSize, partitionSize int64) int64 {
	if totalSize <= 0 || partitionSize <= 0 {
		return 0
	}
	if rem := totalSize % partitionSize; rem != 0 {
		return rem
	}
	return partitionSize
}

// Count returns the total number of partitions, including the ones already produced.
func (it *Iterator) Count() int {
	return it.count
}

// Next returns the next descriptor, or false once every partition was produced.
func (it *Iterator) Next() (Descriptor, bool) {
	if it.next >= it.count {
		return Descriptor{}, false
	}

	offset := int64(it.next) * it.partitionSize
	length := it.partitionSize
	if remaining := it.totalSize - offset; remaining < length {
		length = remaining
	}

	d := Descriptor{
		Index:  it.next,
		Offset: offset,
		Length: length,
	}
	it.next++

	return d, true
}
