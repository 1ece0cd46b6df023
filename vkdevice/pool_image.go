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

// ImagePool is a single host-visible device allocation that linear images are bound into
type ImagePool struct {
	logger       *slog.Logger
	device       vulkan.Device
	deviceMemory *vulkan.DeviceMemoryProperties

	usage      gpu.ImageUsage
	memoryType int
	size       int

	memory vulkan.DeviceMemory
	mapped unsafe.Pointer

	mutex    utils.OptionalMutex
	metadata *metadata.BitmapBlockMetadata
}

type imagePoolCreateInfo struct {
	Size         int
	BlockSize    int
	Usage        gpu.ImageUsage
	Properties   core1_0.MemoryPropertyFlags
	Synchronized bool
}

func newImagePool(logger *slog.Logger, device vulkan.Device, deviceMemory *vulkan.DeviceMemoryProperties, info imagePoolCreateInfo) (pool *ImagePool, err error) {
	md, err := metadata.NewBitmapBlockMetadata(info.BlockSize)
	if err != nil {
		return nil, err
	}
	md.Init(info.Size)

	pool = &ImagePool{
		logger:       logger,
		device:       device,
		deviceMemory: deviceMemory,
		usage:        info.Usage,
		size:         info.Size,
		metadata:     md,
		mutex:        utils.OptionalMutex{UseMutex: info.Synchronized},
	}

	pool.memoryType, err = deviceMemory.FindMemoryTypeIndex(^uint32(0), info.Properties)
	if err != nil {
		return nil, err
	}

	pool.memory, err = deviceMemory.AllocateVulkanMemory(core1_0.MemoryAllocateInfo{
		AllocationSize:  info.Size,
		MemoryTypeIndex: pool.memoryType,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not allocate image pool memory")
	}

	pool.mapped, err = pool.memory.Map(0, info.Size)
	if err != nil {
		deviceMemory.FreeVulkanMemory(pool.memoryType, info.Size, pool.memory)
		return nil, errors.Wrap(err, "could not map image pool memory")
	}

	return pool, nil
}

func (p *ImagePool) Usage() gpu.ImageUsage {
	return p.usage
}

// CreateImage creates a linear image and binds it to a range of the pool. If the requested usage
// is not covered by the pool's usage, the format is unknown, or the image's memory requirements
// exclude the pool's memory type, memutils.ErrIncompatible is returned. If no range is large
// enough, memutils.ErrOutOfMemory is returned. On failure the pool is left unchanged.
func (p *ImagePool) CreateImage(info gpu.ImageCreateInfo) (*PooledImage, error) {
	if info.Usage&p.usage != info.Usage {
		return nil, errors.Wrapf(memutils.ErrIncompatible, "image usage %s is not covered by the pool's usage %s", info.Usage, p.usage)
	}

	format, err := translateImageFormat(info.Format)
	if err != nil {
		return nil, errors.Mark(err, memutils.ErrIncompatible)
	}

	if info.Extent.Width <= 0 || info.Extent.Height <= 0 {
		return nil, errors.Newf("invalid image extent %dx%d", info.Extent.Width, info.Extent.Height)
	}

	driverImage, err := p.device.CreateImage(core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Format:    format,
		Extent: core1_0.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       core1_0.Samples1,
		Tiling:        core1_0.ImageTilingLinear,
		Usage:         translateImageUsage(p.usage),
		SharingMode:   core1_0.SharingModeExclusive,
		InitialLayout: core1_0.ImageLayoutPreInitialized,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create image")
	}

	requirements := driverImage.MemoryRequirements()
	if requirements.MemoryTypeBits&(1<<p.memoryType) == 0 {
		driverImage.Destroy()
		return nil, errors.Wrapf(memutils.ErrIncompatible, "image accepts memory types %#x, but the pool uses memory type %d", requirements.MemoryTypeBits, p.memoryType)
	}

	image := &PooledImage{
		pool:   p,
		image:  driverImage,
		format: info.Format,
		extent: info.Extent,
		size:   requirements.Size,
	}
	image.refs.Init()

	alignment := uint(requirements.Alignment)
	if alignment == 0 {
		alignment = 1
	}

	image.offset, err = p.allocate(image, requirements.Size, alignment)
	if err != nil {
		driverImage.Destroy()
		return nil, err
	}

	err = driverImage.BindImageMemory(p.memory, image.offset)
	if err != nil {
		p.free(image.offset, image.size)
		driverImage.Destroy()
		return nil, errors.Wrap(err, "could not bind image memory")
	}

	image.layout = driverImage.SubresourceLayout(aspectForFormat(info.Format))
	return image, nil
}

func (p *ImagePool) allocate(image *PooledImage, size int, alignment uint) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	offset, err := p.metadata.Allocate(size, alignment, image)
	if err != nil {
		return 0, err
	}

	memutils.DebugValidate(p.metadata)
	return offset, nil
}

func (p *ImagePool) free(offset, size int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	err := p.metadata.Free(offset, size)
	if err != nil {
		p.logger.LogAttrs(context.Background(), slog.LevelError, "could not return image range to pool",
			slog.Int("offset", offset),
			slog.Int("size", size),
			slog.Any("error", err))
		return
	}

	memutils.DebugValidate(p.metadata)
}

func (p *ImagePool) hostSlice(offset, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(p.mapped, offset)), size)
}

// Statistics summarizes the pool's occupancy
func (p *ImagePool) Statistics() memutils.DetailedStatistics {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	p.metadata.AddDetailedStatistics(&stats)
	return stats
}

func (p *ImagePool) PrintDetailedMap(json jwriter.ObjectState, detailed bool) {
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

// Destroy releases the pool's memory. Images that are still live are logged and reported as an
// error, but the memory is freed regardless.
func (p *ImagePool) Destroy() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	err := checkUnreleased(p.logger, p.metadata, "image pool")

	p.memory.Unmap()
	p.mapped = nil
	p.deviceMemory.FreeVulkanMemory(p.memoryType, p.size, p.memory)
	p.metadata.Clear()

	return err
}

// PooledImage is a linear image bound to a range of an ImagePool
type PooledImage struct {
	resource

	pool   *ImagePool
	image  vulkan.Image
	format gpu.ImageFormat
	extent gpu.Extent
	layout *core1_0.SubresourceLayout

	offset int
	size   int
}

var _ gpu.Image = &PooledImage{}

func (i *PooledImage) Format() gpu.ImageFormat {
	return i.format
}

func (i *PooledImage) Extent() gpu.Extent {
	return i.extent
}

// Image is the driver image
func (i *PooledImage) Image() vulkan.Image {
	return i.image
}

func (i *PooledImage) Offset() int {
	return i.offset
}

func (i *PooledImage) Size() int {
	return i.size
}

func (i *PooledImage) Upload(data []byte) error {
	return i.UploadRegion(data, gpu.Offset{}, i.extent)
}

// UploadRegion copies tightly packed texel rows into a rectangle of the image, following the
// driver's row pitch
func (i *PooledImage) UploadRegion(data []byte, offset gpu.Offset, extent gpu.Extent) error {
	if i.refs.Count() == 0 {
		return errors.New("image has already been released")
	}

	bytesPerPixel := i.format.BytesPerPixel()
	if bytesPerPixel == 0 {
		return errors.Wrapf(memutils.ErrUnsupported, "host upload to an image of format %s", i.format)
	}

	if offset.X < 0 || offset.Y < 0 || extent.Width < 0 || extent.Height < 0 ||
		offset.X+extent.Width > i.extent.Width || offset.Y+extent.Height > i.extent.Height {
		return errors.Newf("region %dx%d at (%d, %d) does not fit within a %dx%d image",
			extent.Width, extent.Height, offset.X, offset.Y, i.extent.Width, i.extent.Height)
	}

	rowBytes := extent.Width * bytesPerPixel
	if len(data) != rowBytes*extent.Height {
		return errors.Newf("expected %d bytes for a %dx%d region, but received %d", rowBytes*extent.Height, extent.Width, extent.Height, len(data))
	}

	if i.layout == nil {
		return errors.New("image has no subresource layout")
	}

	host := i.pool.hostSlice(i.offset, i.size)
	for row := 0; row < extent.Height; row++ {
		dst := i.layout.Offset + (offset.Y+row)*i.layout.RowPitch + offset.X*bytesPerPixel
		if dst+rowBytes > len(host) {
			return errors.Newf("row %d falls outside of the image's memory", offset.Y+row)
		}

		copy(host[dst:dst+rowBytes], data[row*rowBytes:(row+1)*rowBytes])
	}

	return nil
}

func (i *PooledImage) CreateView() (gpu.ImageView, error) {
	view, err := createImageView(i.pool.device, i, i.image, i.format)
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (i *PooledImage) driverImage() vulkan.Image {
	return i.image
}

func (i *PooledImage) Release() {
	if !i.refs.Release() {
		return
	}

	i.image.Destroy()
	i.pool.free(i.offset, i.size)
}
