package vkdevice

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/utils"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
	"github.com/vkngwrapper/gpudevice/memutils"
	"github.com/vkngwrapper/gpudevice/memutils/metadata"
	"golang.org/x/exp/slog"
)

// BufferPool is a single host-visible device allocation backing one large buffer. Buffers created
// from the pool are ranges within that buffer.
type BufferPool struct {
	logger       *slog.Logger
	deviceMemory *vulkan.DeviceMemoryProperties

	usage          gpu.BufferUsage
	memoryType     int
	allocationSize int

	buffer vulkan.Buffer
	memory vulkan.DeviceMemory
	mapped unsafe.Pointer

	bufferAlignment  uint
	uniformAlignment uint

	mutex    utils.OptionalMutex
	metadata *metadata.BitmapBlockMetadata
}

type bufferPoolCreateInfo struct {
	Size         int
	BlockSize    int
	Usage        gpu.BufferUsage
	Properties   core1_0.MemoryPropertyFlags
	Synchronized bool
}

func newBufferPool(logger *slog.Logger, device vulkan.Device, deviceMemory *vulkan.DeviceMemoryProperties, info bufferPoolCreateInfo) (pool *BufferPool, err error) {
	md, err := metadata.NewBitmapBlockMetadata(info.BlockSize)
	if err != nil {
		return nil, err
	}
	md.Init(info.Size)

	pool = &BufferPool{
		logger:       logger,
		deviceMemory: deviceMemory,
		usage:        info.Usage,
		metadata:     md,
		mutex:        utils.OptionalMutex{UseMutex: info.Synchronized},
	}

	pool.buffer, err = device.CreateBuffer(core1_0.BufferCreateInfo{
		Size:        info.Size,
		Usage:       translateBufferUsage(info.Usage),
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create pool buffer")
	}
	defer func() {
		if err != nil {
			pool.buffer.Destroy()
		}
	}()

	requirements := pool.buffer.MemoryRequirements()
	pool.memoryType, err = deviceMemory.FindMemoryTypeIndex(requirements.MemoryTypeBits, info.Properties)
	if err != nil {
		return nil, err
	}

	pool.allocationSize = requirements.Size
	pool.memory, err = deviceMemory.AllocateVulkanMemory(core1_0.MemoryAllocateInfo{
		AllocationSize:  pool.allocationSize,
		MemoryTypeIndex: pool.memoryType,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not allocate buffer pool memory")
	}
	defer func() {
		if err != nil {
			deviceMemory.FreeVulkanMemory(pool.memoryType, pool.allocationSize, pool.memory)
		}
	}()

	err = pool.buffer.BindBufferMemory(pool.memory, 0)
	if err != nil {
		return nil, errors.Wrap(err, "could not bind buffer pool memory")
	}

	pool.mapped, err = pool.memory.Map(0, pool.allocationSize)
	if err != nil {
		return nil, errors.Wrap(err, "could not map buffer pool memory")
	}

	pool.bufferAlignment = uint(requirements.Alignment)
	if pool.bufferAlignment == 0 {
		pool.bufferAlignment = 1
	}
	pool.uniformAlignment = uint(deviceMemory.DeviceProperties().Limits.MinUniformBufferOffsetAlignment)
	memutils.DebugCheckPow2(pool.bufferAlignment, "buffer alignment")
	memutils.DebugCheckPow2(pool.uniformAlignment, "uniform buffer alignment")

	return pool, nil
}

// Buffer is the driver buffer every PooledBuffer is a range of
func (p *BufferPool) Buffer() vulkan.Buffer {
	return p.buffer
}

func (p *BufferPool) Usage() gpu.BufferUsage {
	return p.usage
}

// CreateBuffer vends a buffer with no range reserved. The range is carved on the first Allocate or
// Upload.
func (p *BufferPool) CreateBuffer(usage gpu.BufferUsage) (*PooledBuffer, error) {
	if usage&p.usage != usage {
		return nil, errors.Wrapf(memutils.ErrIncompatible, "buffer usage %s is not covered by the pool's usage %s", usage, p.usage)
	}

	buffer := &PooledBuffer{
		pool:  p,
		usage: usage,
	}
	buffer.refs.Init()
	return buffer, nil
}

func (p *BufferPool) alignmentFor(usage gpu.BufferUsage) uint {
	alignment := p.bufferAlignment
	if usage&gpu.BufferUsageUniform != 0 && p.uniformAlignment > alignment {
		alignment = p.uniformAlignment
	}
	return alignment
}

func (p *BufferPool) allocate(buffer *PooledBuffer, size int) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	offset, err := p.metadata.Allocate(size, p.alignmentFor(buffer.usage), buffer)
	if err != nil {
		return 0, err
	}

	memutils.DebugValidate(p.metadata)
	return offset, nil
}

func (p *BufferPool) free(offset, size int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	err := p.metadata.Free(offset, size)
	if err != nil {
		p.logger.LogAttrs(context.Background(), slog.LevelError, "could not return buffer range to pool",
			slog.Int("offset", offset),
			slog.Int("size", size),
			slog.Any("error", err))
		return
	}

	memutils.DebugValidate(p.metadata)
}

func (p *BufferPool) hostSlice(offset, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(p.mapped, offset)), size)
}

// Statistics summarizes the pool's occupancy
func (p *BufferPool) Statistics() memutils.DetailedStatistics {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	p.metadata.AddDetailedStatistics(&stats)
	return stats
}

// PrintDetailedMap writes the pool's block data and, when detailed, every region of the pool
func (p *BufferPool) PrintDetailedMap(json jwriter.ObjectState, detailed bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	json.Name("Usage").String(p.usage.String())
	json.Name("MemoryType").Int(p.memoryType)
	json.Name("HeapIndex").Int(p.deviceMemory.MemoryTypeProperties(p.memoryType).HeapIndex)
	p.metadata.BlockJsonData(json)

	if detailed {
		printSuballocations(p.metadata, json)
	}
}

// Destroy releases the pool's driver objects. Any range still held by a buffer is logged and
// reported as an error, but the driver objects are released regardless.
func (p *BufferPool) Destroy() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	err := checkUnreleased(p.logger, p.metadata, "buffer pool")

	p.memory.Unmap()
	p.mapped = nil
	p.buffer.Destroy()
	p.deviceMemory.FreeVulkanMemory(p.memoryType, p.allocationSize, p.memory)
	p.metadata.Clear()

	return err
}

// PooledBuffer is a range of a BufferPool's buffer
type PooledBuffer struct {
	resource

	pool      *BufferPool
	usage     gpu.BufferUsage
	offset    int
	size      int
	allocated bool
}

var _ gpu.Buffer = &PooledBuffer{}

func (b *PooledBuffer) Usage() gpu.BufferUsage {
	return b.usage
}

func (b *PooledBuffer) Size() int {
	return b.size
}

// Offset is the byte offset of this buffer's range within the pool's buffer
func (b *PooledBuffer) Offset() int {
	return b.offset
}

// Buffer is the driver buffer this range belongs to
func (b *PooledBuffer) Buffer() vulkan.Buffer {
	return b.pool.buffer
}

func (b *PooledBuffer) Allocate(size int) error {
	if b.refs.Count() == 0 {
		return errors.New("buffer has already been released")
	}
	if b.allocated {
		return errors.Newf("buffer already holds %d bytes", b.size)
	}

	offset, err := b.pool.allocate(b, size)
	if err != nil {
		return err
	}

	b.offset = offset
	b.size = size
	b.allocated = true
	return nil
}

func (b *PooledBuffer) Upload(data []byte) error {
	if !b.allocated {
		err := b.Allocate(len(data))
		if err != nil {
			return err
		}
	}

	if len(data) > b.size {
		return errors.Newf("attempted to upload %d bytes to a %d byte buffer", len(data), b.size)
	}

	copy(b.Mapped(), data)
	return nil
}

// Mapped is the host view of this buffer's range, or nil before a range has been reserved
func (b *PooledBuffer) Mapped() []byte {
	if !b.allocated {
		return nil
	}
	return b.pool.hostSlice(b.offset, b.size)
}

func (b *PooledBuffer) Release() {
	if !b.refs.Release() {
		return
	}

	if b.allocated {
		b.pool.free(b.offset, b.size)
		b.allocated = false
	}
}

func checkUnreleased(logger *slog.Logger, md metadata.BlockMetadata, poolName string) error {
	if md.IsEmpty() {
		return nil
	}

	err := md.VisitAllRegions(func(offset int, size int, userData any, free bool) error {
		if free {
			return nil
		}

		logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
			slog.String("pool", poolName),
			slog.Int("offset", offset),
			slog.Int("size", size),
			slog.String("resource", describeSuballocation(userData)),
		)
		return nil
	})
	if err != nil {
		logger.LogAttrs(context.Background(),
			slog.LevelError,
			"[UNRELEASED MEMORY] error while iterating unreleased memory",
			slog.Any("error", err))
	}

	return errors.Newf("%d allocations were not released before the destruction of the %s", md.AllocationCount(), poolName)
}

func printSuballocations(md metadata.BlockMetadata, json jwriter.ObjectState) {
	arrayState := json.Name("Suballocations").Array()
	defer arrayState.End()

	_ = md.VisitAllRegions(func(offset int, size int, userData any, free bool) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		if free {
			obj.Name("Type").String("FREE")
		} else {
			obj.Name("Type").String(describeSuballocation(userData))
		}

		return nil
	})
}

func describeSuballocation(userData any) string {
	switch res := userData.(type) {
	case *PooledBuffer:
		return "BUFFER " + res.usage.String()
	case *PooledImage:
		return "IMAGE " + res.format.String()
	}
	return "UNKNOWN"
}
