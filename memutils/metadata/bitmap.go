package metadata

import (
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpudevice/memutils"
)

// DefaultBitmapBlockSize is the tracking granularity used by pools that do not ask for another one
const DefaultBitmapBlockSize int = 32 * 1024

const wordBits = 64

type bitmapAllocation struct {
	firstBlock int
	blockCount int
	size       int
	userData   any
}

// BitmapBlockMetadata is a first-fit suballocator that tracks occupancy with one bit per fixed-size
// block. Fragmentation is bounded by the block size, allocation is O(blocks) in the worst case and
// freeing is O(allocation blocks).
type BitmapBlockMetadata struct {
	BlockMetadataBase

	blockSize  int
	blockCount int
	usedBlocks int
	words      []uint64

	// keyed by first block index
	allocations *swiss.Map[int, bitmapAllocation]
	allocCount  int
}

var _ BlockMetadata = &BitmapBlockMetadata{}

// NewBitmapBlockMetadata creates metadata tracking blockSize-byte blocks. blockSize must be a
// power of two; Init must be called before use.
func NewBitmapBlockMetadata(blockSize int) (*BitmapBlockMetadata, error) {
	err := memutils.CheckPow2(blockSize, "bitmap block size")
	if err != nil {
		return nil, err
	}

	return &BitmapBlockMetadata{
		blockSize: blockSize,
	}, nil
}

// Init sizes the bitmap for size bytes. Any tail smaller than one block is never handed out.
func (m *BitmapBlockMetadata) Init(size int) {
	m.BlockMetadataBase.Init(size)
	m.blockCount = size / m.blockSize
	m.words = make([]uint64, memutils.DivideRoundingUp(m.blockCount, wordBits))
	m.usedBlocks = 0
	m.allocCount = 0
	m.allocations = swiss.NewMap[int, bitmapAllocation](42)
}

func (m *BitmapBlockMetadata) BlockSize() int { return m.blockSize }

func (m *BitmapBlockMetadata) BlockCount() int { return m.blockCount }

func (m *BitmapBlockMetadata) AllocationCount() int { return m.allocCount }

func (m *BitmapBlockMetadata) SumFreeSize() int {
	return (m.blockCount - m.usedBlocks) * m.blockSize
}

func (m *BitmapBlockMetadata) IsEmpty() bool { return m.allocCount == 0 }

func (m *BitmapBlockMetadata) isUsed(block int) bool {
	return m.words[block/wordBits]&(uint64(1)<<(block%wordBits)) != 0
}

func (m *BitmapBlockMetadata) setRange(first, count int, used bool) {
	for block := first; block < first+count; {
		word := block / wordBits
		bit := block % wordBits
		span := wordBits - bit
		if remaining := first + count - block; remaining < span {
			span = remaining
		}

		var mask uint64
		if span == wordBits {
			mask = ^uint64(0)
		} else {
			mask = ((uint64(1) << span) - 1) << bit
		}

		if used {
			m.words[word] |= mask
		} else {
			m.words[word] &^= mask
		}
		block += span
	}
}

// firstUsed returns the index of the first used block in [from, to), or -1
func (m *BitmapBlockMetadata) firstUsed(from, to int) int {
	for block := from; block < to; {
		word := block / wordBits
		bit := block % wordBits
		value := m.words[word] >> bit
		if value != 0 {
			found := block + bits.TrailingZeros64(value)
			if found < to {
				return found
			}
			return -1
		}
		block += wordBits - bit
	}

	return -1
}

// firstFree returns the index of the first free block in [from, to), or to
func (m *BitmapBlockMetadata) firstFree(from, to int) int {
	for block := from; block < to; {
		word := block / wordBits
		bit := block % wordBits
		value := ^m.words[word] >> bit
		if value != 0 {
			found := block + bits.TrailingZeros64(value)
			if found < to {
				return found
			}
			return to
		}
		block += wordBits - bit
	}

	return to
}

// Allocate finds the first run of free blocks large enough for size whose starting byte is a
// multiple of alignment.
func (m *BitmapBlockMetadata) Allocate(size int, alignment uint, userData any) (int, error) {
	if size <= 0 {
		return 0, errors.Newf("attempted to allocate %d bytes", size)
	}
	if alignment == 0 {
		alignment = 1
	}
	err := memutils.CheckPow2(alignment, "allocation alignment")
	if err != nil {
		return 0, err
	}

	needed := memutils.DivideRoundingUp(size, m.blockSize)
	if needed > m.blockCount {
		return 0, errors.Wrapf(memutils.ErrOutOfMemory, "%d bytes requested from a %d byte block", size, m.Size())
	}

	// Block size and alignment are both powers of two, so either every block start is aligned or
	// only every stride-th one is.
	stride := 1
	if int(alignment) > m.blockSize {
		stride = int(alignment) / m.blockSize
	}

	for first := 0; first+needed <= m.blockCount; {
		used := m.firstUsed(first, first+needed)
		if used < 0 {
			m.setRange(first, needed, true)
			m.usedBlocks += needed
			m.allocCount++
			m.allocations.Put(first, bitmapAllocation{
				firstBlock: first,
				blockCount: needed,
				size:       size,
				userData:   userData,
			})
			return first * m.blockSize, nil
		}

		next := m.firstFree(used+1, m.blockCount)
		first = memutils.AlignUp(next, uint(stride))
	}

	return 0, errors.Wrapf(memutils.ErrOutOfMemory, "no free run of %d blocks with alignment %d", needed, alignment)
}

// Free releases the range beginning at offset. size must be the size originally passed to Allocate.
func (m *BitmapBlockMetadata) Free(offset int, size int) error {
	if offset < 0 || offset%m.blockSize != 0 {
		return errors.Newf("offset %d is not the start of an allocation", offset)
	}

	first := offset / m.blockSize
	alloc, ok := m.allocations.Get(first)
	if !ok {
		return errors.Newf("offset %d is not the start of an allocation", offset)
	}

	if memutils.DivideRoundingUp(size, m.blockSize) != alloc.blockCount {
		return errors.Newf("attempted to free %d bytes at offset %d, but the allocation there holds %d bytes", size, offset, alloc.size)
	}

	m.setRange(alloc.firstBlock, alloc.blockCount, false)
	m.usedBlocks -= alloc.blockCount
	m.allocCount--
	m.allocations.Delete(first)

	return nil
}

func (m *BitmapBlockMetadata) VisitAllRegions(handleRegion func(offset int, size int, userData any, free bool) error) error {
	for block := 0; block < m.blockCount; {
		if !m.isUsed(block) {
			end := m.firstUsed(block, m.blockCount)
			if end < 0 {
				end = m.blockCount
			}

			err := handleRegion(block*m.blockSize, (end-block)*m.blockSize, nil, true)
			if err != nil {
				return err
			}
			block = end
			continue
		}

		alloc, ok := m.allocations.Get(block)
		if !ok {
			return errors.Newf("block %d is in use but does not begin an allocation", block)
		}

		err := handleRegion(block*m.blockSize, alloc.blockCount*m.blockSize, alloc.userData, false)
		if err != nil {
			return err
		}
		block += alloc.blockCount
	}

	return nil
}

func (m *BitmapBlockMetadata) FreeRegionsCount() int {
	var count int
	_ = m.VisitAllRegions(func(offset int, size int, userData any, free bool) error {
		if free {
			count++
		}
		return nil
	})
	return count
}

func (m *BitmapBlockMetadata) LargestFreeRegion() int {
	var largest int
	_ = m.VisitAllRegions(func(offset int, size int, userData any, free bool) error {
		if free && size > largest {
			largest = size
		}
		return nil
	})
	return largest
}

func (m *BitmapBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.BlockBytes += m.Size()
	stats.AllocationCount += m.allocCount
	stats.AllocationBytes += m.usedBlocks * m.blockSize
}

func (m *BitmapBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += m.Size()

	_ = m.VisitAllRegions(func(offset int, size int, userData any, free bool) error {
		if free {
			stats.AddUnusedRange(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

func (m *BitmapBlockMetadata) Validate() error {
	if m.blockCount*m.blockSize > m.Size() {
		return errors.New("bitmap tracks more blocks than the block holds")
	}

	var allocCount, usedBlocks int
	err := m.VisitAllRegions(func(offset int, size int, userData any, free bool) error {
		if free {
			return nil
		}

		allocCount++
		usedBlocks += size / m.blockSize
		alloc, _ := m.allocations.Get(offset / m.blockSize)
		if alloc.size > size {
			return errors.Newf("allocation at offset %d holds %d bytes but only covers %d", offset, alloc.size, size)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if allocCount != m.allocCount {
		return errors.Newf("bitmap contains %d allocations but %d are recorded", allocCount, m.allocCount)
	}
	if usedBlocks != m.usedBlocks {
		return errors.Newf("bitmap contains %d used blocks but %d are recorded", usedBlocks, m.usedBlocks)
	}

	return nil
}

func (m *BitmapBlockMetadata) Clear() {
	for i := range m.words {
		m.words[i] = 0
	}
	m.usedBlocks = 0
	m.allocCount = 0
	m.allocations = swiss.NewMap[int, bitmapAllocation](42)
}

func (m *BitmapBlockMetadata) BlockJsonData(json jwriter.ObjectState) {
	// The base writes through a copy of json, so local properties must come first
	json.Name("BlockSize").Int(m.blockSize)
	m.BlockMetadataBase.BlockJsonData(json, m.SumFreeSize(), m.allocCount, m.FreeRegionsCount())
}
