package vulkan

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpudevice/memutils"
)

// DeviceMemoryProperties tracks the physical device's memory table and every real allocation
// made from device memory, per heap
type DeviceMemoryProperties struct {
	// Number of real allocations that have been made from device memory
	blockCount [common.MaxMemoryHeaps]int32
	// Size of real allocations that have been made from device memory
	blockBytes [common.MaxMemoryHeaps]int64

	memoryCount uint32

	device           Device
	deviceProperties *core1_0.PhysicalDeviceProperties
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties
}

func NewDeviceMemoryProperties(
	device Device,
	physicalDevice PhysicalDevice,
) (*DeviceMemoryProperties, error) {
	deviceProperties := &DeviceMemoryProperties{
		device: device,
	}

	var err error
	deviceProperties.deviceProperties, err = physicalDevice.Properties()
	if err != nil {
		return nil, err
	}

	deviceProperties.memoryProperties = physicalDevice.MemoryProperties()

	if deviceProperties.deviceProperties.Limits == nil {
		return nil, errors.New("physical device did not report its limits")
	}

	err = memutils.CheckPow2(deviceProperties.deviceProperties.Limits.BufferImageGranularity, "device bufferImageGranularity")
	if err != nil {
		return nil, err
	}
	err = memutils.CheckPow2(deviceProperties.deviceProperties.Limits.NonCoherentAtomSize, "device nonCoherentAtomSize")
	if err != nil {
		return nil, err
	}

	if deviceProperties.MemoryHeapCount() > common.MaxMemoryHeaps {
		return nil, errors.Newf("physical device reports %d memory heaps, but at most %d are supported", deviceProperties.MemoryHeapCount(), common.MaxMemoryHeaps)
	}

	return deviceProperties, nil
}

func (m *DeviceMemoryProperties) MemoryTypeCount() int {
	return len(m.memoryProperties.MemoryTypes)
}

func (m *DeviceMemoryProperties) MemoryHeapCount() int {
	return len(m.memoryProperties.MemoryHeaps)
}

func (m *DeviceMemoryProperties) MemoryTypeIndexToHeapIndex(memTypeIndex int) int {
	return m.memoryProperties.MemoryTypes[memTypeIndex].HeapIndex
}

func (m *DeviceMemoryProperties) DeviceProperties() *core1_0.PhysicalDeviceProperties {
	return m.deviceProperties
}

func (m *DeviceMemoryProperties) MemoryTypeProperties(memoryTypeIndex int) core1_0.MemoryType {
	return m.memoryProperties.MemoryTypes[memoryTypeIndex]
}

func (m *DeviceMemoryProperties) MemoryHeapProperties(heapIndex int) core1_0.MemoryHeap {
	return m.memoryProperties.MemoryHeaps[heapIndex]
}

func (m *DeviceMemoryProperties) IsMemoryTypeHostNonCoherent(memoryTypeIndex int) bool {
	flags := m.memoryProperties.MemoryTypes[memoryTypeIndex].PropertyFlags

	return flags&(core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent) == core1_0.MemoryPropertyHostVisible
}

// FindMemoryTypeIndex returns the first memory type permitted by memoryTypeBits that carries every
// flag in requiredFlags
func (m *DeviceMemoryProperties) FindMemoryTypeIndex(memoryTypeBits uint32, requiredFlags core1_0.MemoryPropertyFlags) (int, error) {
	for memoryTypeIndex := 0; memoryTypeIndex < m.MemoryTypeCount(); memoryTypeIndex++ {
		if memoryTypeBits&(1<<memoryTypeIndex) == 0 {
			continue
		}

		if m.memoryProperties.MemoryTypes[memoryTypeIndex].PropertyFlags&requiredFlags == requiredFlags {
			return memoryTypeIndex, nil
		}
	}

	return -1, errors.Wrapf(memutils.ErrIncompatible, "no memory type in bits %#x has properties %s", memoryTypeBits, requiredFlags)
}

func (m *DeviceMemoryProperties) addBlockAllocationWithBudget(heapIndex, allocationSize, maxAllocatable int) error {
	for {
		currentVal := atomic.LoadInt64(&m.blockBytes[heapIndex])
		targetVal := currentVal + int64(allocationSize)

		if targetVal > int64(maxAllocatable) {
			return errors.Wrapf(core1_0.VKErrorOutOfDeviceMemory.ToError(), "heap %d holds %d bytes and cannot fit %d more", heapIndex, currentVal, allocationSize)
		}

		if atomic.CompareAndSwapInt64(&m.blockBytes[heapIndex], currentVal, targetVal) {
			break
		}
	}

	atomic.AddInt32(&m.blockCount[heapIndex], 1)
	return nil
}

func (m *DeviceMemoryProperties) removeBlockAllocation(heapIndex, allocationSize int) {
	newVal := atomic.AddInt64(&m.blockBytes[heapIndex], int64(-allocationSize))

	if newVal < 0 {
		panic(fmt.Sprintf("block bytes budget for heapIndex %d went negative", heapIndex))
	}

	newCountVal := atomic.AddInt32(&m.blockCount[heapIndex], -1)
	if newCountVal < 0 {
		panic(fmt.Sprintf("block count budget for heapIndex %d went negative", heapIndex))
	}
}

// AllocateVulkanMemory makes a real device allocation, enforcing the device's allocation count
// limit and the size of the target heap
func (m *DeviceMemoryProperties) AllocateVulkanMemory(
	allocateInfo core1_0.MemoryAllocateInfo,
) (mem DeviceMemory, err error) {
	newDeviceCount := atomic.AddUint32(&m.memoryCount, 1)
	defer func() {
		// If we failed out, roll back the device increment
		if err != nil {
			// Decrement
			atomic.AddUint32(&m.memoryCount, ^uint32(0))
		}
	}()

	maxCount := m.deviceProperties.Limits.MaxMemoryAllocationCount
	if maxCount > 0 && int(newDeviceCount) > maxCount {
		return nil, errors.Wrapf(core1_0.VKErrorTooManyObjects.ToError(), "device permits at most %d memory allocations", maxCount)
	}

	if allocateInfo.MemoryTypeIndex < 0 || allocateInfo.MemoryTypeIndex >= m.MemoryTypeCount() {
		return nil, errors.Newf("memory type index %d is out of range", allocateInfo.MemoryTypeIndex)
	}

	heapIndex := m.MemoryTypeIndexToHeapIndex(allocateInfo.MemoryTypeIndex)
	err = m.addBlockAllocationWithBudget(heapIndex, allocateInfo.AllocationSize, m.memoryProperties.MemoryHeaps[heapIndex].Size)
	if err != nil {
		return nil, err
	}
	defer func() {
		// If we failed out, roll back the block allocation
		if err != nil {
			m.removeBlockAllocation(heapIndex, allocateInfo.AllocationSize)
		}
	}()

	return m.device.AllocateMemory(allocateInfo)
}

func (m *DeviceMemoryProperties) FreeVulkanMemory(memoryType int, size int, memory DeviceMemory) {
	memory.Free()

	heapIndex := m.MemoryTypeIndexToHeapIndex(memoryType)
	m.removeBlockAllocation(heapIndex, size)
	// Decrement
	atomic.AddUint32(&m.memoryCount, ^uint32(0))
}

// HeapStatistics reports the real allocations made from a single heap
func (m *DeviceMemoryProperties) HeapStatistics(heapIndex int) memutils.Statistics {
	return memutils.Statistics{
		BlockCount: int(atomic.LoadInt32(&m.blockCount[heapIndex])),
		BlockBytes: int(atomic.LoadInt64(&m.blockBytes[heapIndex])),
	}
}

func (m *DeviceMemoryProperties) AllocationCount() uint32 {
	return atomic.LoadUint32(&m.memoryCount)
}

func (m *DeviceMemoryProperties) IsIntegratedGPU() bool {
	return m.deviceProperties.DriverType == core1_0.PhysicalDeviceTypeIntegratedGPU
}
