package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpudevice/memutils"
)

// BlockMetadata represents a single large allocation of memory within some system. It manages
// suballocations within the block, allowing ranges to be requested and returned, as well as
// enumerated and queried.
//
// Implementations are not safe for concurrent use: the consumer that owns the block is expected
// to serialize access.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. It gives the implementation an opportunity
	// to ensure that metadata structures are prepared for allocations, as well as allows the consumer
	// to inform the implementation of the size in bytes of the block of memory it will be managing,
	// via the size parameter.
	Init(size int)
	// Size retrieves the size in bytes that the block was initialized with
	Size() int

	// Validate performs internal consistency checks on the metadata. These checks may be expensive, depending
	// on the implementation. When the implementation is functioning correctly, it should not be possible
	// for this method to return an error, but this may assist in diagnosing issues with the implementation.
	Validate() error
	// AllocationCount returns the number of suballocations currently live in the implementation.
	AllocationCount() int
	// FreeRegionsCount returns the number of maximal runs of free memory in the block.
	FreeRegionsCount() int
	// SumFreeSize returns the number of allocatable free bytes of memory in the block.
	SumFreeSize() int
	// LargestFreeRegion returns the size in bytes of the largest contiguous run of free memory.
	LargestFreeRegion() int
	// IsEmpty will return true if this block has no live suballocations
	IsEmpty() bool

	// VisitAllRegions will call the provided callback once for each allocation and free region in
	// the block, in offset order. The callback's error, if any, stops the walk and is returned.
	VisitAllRegions(handleRegion func(offset int, size int, userData any, free bool) error) error

	// Allocate reserves a range of at least size bytes whose offset is a multiple of alignment and
	// returns that offset. userData is attached to the range and handed back by VisitAllRegions.
	// memutils.ErrOutOfMemory is returned, with no change to the block, when no such range exists.
	Allocate(size int, alignment uint, userData any) (int, error)
	// Free returns a range previously produced by Allocate. The implementation must return an error
	// if offset and size do not describe a live allocation.
	Free(offset int, size int) error

	// AddDetailedStatistics sums this block's allocation statistics into the statistics currently present
	// in the provided memutils.DetailedStatistics object.
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this block's allocation statistics into the statistics currently present in the
	// provided memutils.Statistics object.
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all allocations
	Clear()
	// BlockJsonData populates a json object with information about this block
	BlockJsonData(json jwriter.ObjectState)
}

// BlockMetadataBase is a simple struct that provides a few shared utilities for BlockMetadata
// implementations in the memutils module.
type BlockMetadataBase struct {
	size int
}

// Init prepares this structure for allocations and sizes the block in bytes based on the parameter size.
func (m *BlockMetadataBase) Init(size int) {
	m.size = size
}

// Size returns the size of the block in bytes
func (m *BlockMetadataBase) Size() int { return m.size }

// BlockJsonData populates a json object with information about this block
func (m *BlockMetadataBase) BlockJsonData(json jwriter.ObjectState, unusedBytes, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
