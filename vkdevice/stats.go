package vkdevice

import (
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpudevice/memutils"
)

// BuildStatsString produces a json document describing the device's memory use. When detailed is
// true, every region of both pools is listed.
func (d *Device) BuildStatsString(detailed bool) string {
	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("Device").String(d.id.String())
	obj.Name("State").String(d.state.String())
	obj.Name("OutstandingBatches").Int(len(d.batches))

	if d.deviceMemory != nil {
		heaps := obj.Name("Heaps").Object()
		for heapIndex := 0; heapIndex < d.deviceMemory.MemoryHeapCount(); heapIndex++ {
			heap := heaps.Name(strconv.Itoa(heapIndex)).Object()
			heap.Name("Size").Int(d.deviceMemory.MemoryHeapProperties(heapIndex).Size)

			stats := d.deviceMemory.HeapStatistics(heapIndex)
			writeStatistics(heap, &stats)
			heap.End()
		}
		heaps.End()
	}

	if d.bufferPool != nil {
		pool := obj.Name("BufferPool").Object()
		d.bufferPool.PrintDetailedMap(pool, detailed)
		pool.End()
	}

	if d.imagePool != nil {
		pool := obj.Name("ImagePool").Object()
		d.imagePool.PrintDetailedMap(pool, detailed)
		pool.End()
	}

	obj.End()
	return string(writer.Bytes())
}

func writeStatistics(json jwriter.ObjectState, stats *memutils.Statistics) {
	json.Name("BlockCount").Int(stats.BlockCount)
	json.Name("BlockBytes").Int(stats.BlockBytes)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
}
