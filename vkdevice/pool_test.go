package vkdevice

import (
	"bytes"
	"sort"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan/mocks"
	"github.com/vkngwrapper/gpudevice/memutils"
	"go.uber.org/mock/gomock"
)

func TestBufferLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	buffer, err := device.CreateBuffer(gpu.BufferUsageVertex)
	require.NoError(t, err)
	require.Equal(t, gpu.BufferUsageVertex, buffer.Usage())
	require.Equal(t, 0, buffer.Size())

	data := bytes.Repeat([]byte{0xAB}, 16*1024)
	require.NoError(t, buffer.Upload(data))
	require.Equal(t, 16*1024, buffer.Size())

	pooled := buffer.(*PooledBuffer)
	require.Equal(t, data, rig.bufferBacking[pooled.Offset():pooled.Offset()+pooled.Size()])
	require.Equal(t, 1, device.BufferPool().Statistics().AllocationCount)

	buffer.Release()
	require.Equal(t, 0, device.BufferPool().Statistics().AllocationCount)

	require.NoError(t, device.Destroy())
	require.NotContains(t, rig.logs.String(), "UNRELEASED")
}

func TestBufferAllocateOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, device := readyDevice(t, ctrl, defaultSetup())

	buffer, err := device.CreateBuffer(gpu.BufferUsageIndex)
	require.NoError(t, err)
	require.NoError(t, buffer.Allocate(1000))
	require.Error(t, buffer.Allocate(1000))

	require.NoError(t, buffer.Upload(make([]byte, 500)))
	require.Equal(t, 1000, buffer.Size())
	require.Error(t, buffer.Upload(make([]byte, 1001)))

	buffer.Release()
	require.NoError(t, device.Destroy())
}

func TestBufferReleasedBeforeAllocation(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	buffer, err := device.CreateBuffer(gpu.BufferUsageVertex)
	require.NoError(t, err)
	buffer.Release()

	require.Error(t, buffer.Allocate(256))
	require.Error(t, buffer.Upload(make([]byte, 256)))
	require.Nil(t, buffer.(*PooledBuffer).Mapped())
	require.Equal(t, 0, device.BufferPool().Statistics().AllocationCount)

	uploaded, err := device.CreateBuffer(gpu.BufferUsageVertex)
	require.NoError(t, err)
	require.NoError(t, uploaded.Upload(make([]byte, 256)))
	uploaded.Release()

	require.Error(t, uploaded.Upload(make([]byte, 16)))
	require.Equal(t, 0, device.BufferPool().Statistics().AllocationCount)

	require.NoError(t, device.Destroy())
	require.NotContains(t, rig.logs.String(), "UNRELEASED")
}

func TestBufferPoolExhaustion(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, device := readyDevice(t, ctrl, defaultSetup())

	const size = 16 * 1024
	var buffers []*PooledBuffer
	for {
		buffer, err := device.CreateBuffer(gpu.BufferUsageVertex)
		require.NoError(t, err)

		err = buffer.Allocate(size)
		if err != nil {
			require.True(t, errors.Is(err, memutils.ErrOutOfMemory))
			buffer.Release()
			break
		}
		buffers = append(buffers, buffer.(*PooledBuffer))
	}
	require.Len(t, buffers, testBufferPoolBytes/size)

	freedOffset := buffers[1].Offset()
	buffers[1].Release()

	buffer, err := device.CreateBuffer(gpu.BufferUsageVertex)
	require.NoError(t, err)
	require.NoError(t, buffer.Allocate(size))
	require.LessOrEqual(t, buffer.(*PooledBuffer).Offset(), freedOffset)
	buffers[1] = buffer.(*PooledBuffer)

	for _, buffer := range buffers {
		buffer.Release()
	}
	require.NoError(t, device.Destroy())
}

func TestBufferRangesAreDisjoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, device := readyDevice(t, ctrl, defaultSetup())

	usages := []gpu.BufferUsage{gpu.BufferUsageVertex, gpu.BufferUsageIndex, gpu.BufferUsageUniform}
	sizes := []int{1, 255, 256, 257, 1000, 4096, 3}

	var buffers []*PooledBuffer
	for i := 0; i < 20; i++ {
		buffer, err := device.CreateBuffer(usages[i%len(usages)])
		require.NoError(t, err)
		require.NoError(t, buffer.Allocate(sizes[i%len(sizes)]))
		buffers = append(buffers, buffer.(*PooledBuffer))

		// Drop every third buffer to leave holes for later allocations
		if i%3 == 2 {
			buffers[len(buffers)-2].Release()
			buffers = append(buffers[:len(buffers)-2], buffers[len(buffers)-1])
		}
	}

	sort.Slice(buffers, func(i, j int) bool {
		return buffers[i].Offset() < buffers[j].Offset()
	})
	for i := 1; i < len(buffers); i++ {
		require.LessOrEqual(t, buffers[i-1].Offset()+buffers[i-1].Size(), buffers[i].Offset())
	}

	for _, buffer := range buffers {
		if buffer.Usage() == gpu.BufferUsageUniform {
			require.Zero(t, buffer.Offset()%testUniformAlign)
		}
		buffer.Release()
	}
	require.NoError(t, device.Destroy())
}

func TestBufferAlignment(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, device := readyDevice(t, ctrl, defaultSetup())

	pool := device.BufferPool()
	require.Equal(t, uint(testBufferAlign), pool.alignmentFor(gpu.BufferUsageVertex))
	require.Equal(t, uint(testUniformAlign), pool.alignmentFor(gpu.BufferUsageUniform))
	require.Equal(t, uint(testUniformAlign), pool.alignmentFor(gpu.BufferUsageUniform|gpu.BufferUsageVertex))

	require.NoError(t, device.Destroy())
}

func TestPoolDestroyReportsUnreleasedMemory(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	buffer, err := device.CreateBuffer(gpu.BufferUsageUniform)
	require.NoError(t, err)
	require.NoError(t, buffer.Allocate(64))

	err = device.Destroy()
	require.Error(t, err)
	require.Contains(t, rig.logs.String(), "[UNRELEASED MEMORY]")
	require.Contains(t, rig.logs.String(), "level=ERROR")
	require.Contains(t, rig.teardown, "bufferMemory.Free")
	require.Contains(t, rig.teardown, "instance")
	require.Equal(t, DeviceStateDestroyed, device.State())
}

func TestImageUpload(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	image, err := device.CreateImage(gpu.ImageCreateInfo{
		Format: gpu.ImageFormatRGBA8Unorm,
		Extent: gpu.Extent{Width: 4, Height: 2},
		Usage:  gpu.ImageUsageSampled,
	})
	require.NoError(t, err)
	require.Equal(t, gpu.ImageFormatRGBA8Unorm, image.Format())
	require.Len(t, rig.images, 1)
	require.Equal(t, 4, rig.images[0].info.Extent.Width)

	data := make([]byte, 4*2*4)
	for i := range data {
		data[i] = byte(i + 1)
	}
	require.NoError(t, image.Upload(data))

	pooled := image.(*PooledImage)
	require.Zero(t, pooled.Offset()%testImageAlign)
	for row := 0; row < 2; row++ {
		start := pooled.Offset() + row*testRowAlign
		require.Equal(t, data[row*16:(row+1)*16], rig.imageBacking[start:start+16])
	}

	region := []byte{0xF0, 0xF1, 0xF2, 0xF3}
	require.NoError(t, image.UploadRegion(region, gpu.Offset{X: 3, Y: 1}, gpu.Extent{Width: 1, Height: 1}))
	start := pooled.Offset() + testRowAlign + 12
	require.Equal(t, region, rig.imageBacking[start:start+4])

	require.Error(t, image.UploadRegion(region, gpu.Offset{X: 4, Y: 0}, gpu.Extent{Width: 1, Height: 1}))
	require.Error(t, image.UploadRegion(region[:3], gpu.Offset{}, gpu.Extent{Width: 1, Height: 1}))

	require.Equal(t, 1, device.ImagePool().Statistics().AllocationCount)
	image.Release()
	require.Equal(t, 1, rig.images[0].destroyed)
	require.Equal(t, 0, device.ImagePool().Statistics().AllocationCount)

	require.Error(t, image.Upload(data))
	require.Equal(t, region, rig.imageBacking[start:start+4])

	require.NoError(t, device.Destroy())
}

func TestImageIncompatibleMemory(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())
	rig.imageMemoryBits = 0b01

	before := device.ImagePool().Statistics()
	_, err := device.CreateImage(gpu.ImageCreateInfo{
		Format: gpu.ImageFormatRGBA8Unorm,
		Extent: gpu.Extent{Width: 16, Height: 16},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrIncompatible))
	require.Equal(t, before, device.ImagePool().Statistics())
	require.Equal(t, 1, rig.images[0].destroyed)

	require.NoError(t, device.Destroy())
}

func TestImageIncompatibleRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	before := device.ImagePool().Statistics()

	_, err := device.CreateImage(gpu.ImageCreateInfo{
		Format: gpu.ImageFormatRGBA8Unorm,
		Extent: gpu.Extent{Width: 4, Height: 4},
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageColorAttachment,
	})
	require.True(t, errors.Is(err, memutils.ErrIncompatible))

	_, err = device.CreateImage(gpu.ImageCreateInfo{
		Format: gpu.ImageFormatUndefined,
		Extent: gpu.Extent{Width: 4, Height: 4},
	})
	require.True(t, errors.Is(err, memutils.ErrIncompatible))

	require.Empty(t, rig.images)
	require.Equal(t, before, device.ImagePool().Statistics())

	image, err := device.CreateImage(gpu.ImageCreateInfo{
		Format: gpu.ImageFormatRGBA8Unorm,
		Extent: gpu.Extent{Width: 4, Height: 4},
		Usage:  gpu.ImageUsageTransferDst,
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.ImageUsageSampled|core1_0.ImageUsageTransferDst, rig.images[0].info.Usage)
	image.Release()

	require.NoError(t, device.Destroy())
}

func TestImagePoolExhaustion(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	_, err := device.CreateImage(gpu.ImageCreateInfo{
		Format: gpu.ImageFormatRGBA8Unorm,
		Extent: gpu.Extent{Width: 256, Height: 256},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrOutOfMemory))
	require.Equal(t, 1, rig.images[0].destroyed)
	require.Equal(t, 0, device.ImagePool().Statistics().AllocationCount)

	require.NoError(t, device.Destroy())
}

func TestImageUnsupportedUploads(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, device := readyDevice(t, ctrl, defaultSetup())

	depth, err := device.CreateImage(gpu.ImageCreateInfo{
		Format: gpu.ImageFormatD32Float,
		Extent: gpu.Extent{Width: 4, Height: 4},
	})
	require.NoError(t, err)
	err = depth.Upload(make([]byte, 64))
	require.True(t, errors.Is(err, memutils.ErrUnsupported))
	depth.Release()

	require.NoError(t, device.Destroy())
}

func TestImageViewRetainsImage(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	image, err := device.CreateImage(gpu.ImageCreateInfo{
		Format: gpu.ImageFormatBGRA8SRGB,
		Extent: gpu.Extent{Width: 8, Height: 8},
	})
	require.NoError(t, err)

	view, err := image.CreateView()
	require.NoError(t, err)
	require.Equal(t, image, view.Image())

	image.Release()
	require.Equal(t, 0, rig.images[0].destroyed)

	view.Release()
	require.Equal(t, 1, rig.images[0].destroyed)
	require.Contains(t, rig.teardown, "imageView")

	require.NoError(t, device.Destroy())
}

func TestSwapchainImage(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	driverImage := mocks.NewMockImage(ctrl)
	image, err := device.wrapSwapchainImage(driverImage, gpu.ImageFormatBGRA8Unorm, gpu.Extent{Width: 800, Height: 600})
	require.NoError(t, err)
	require.Equal(t, gpu.Extent{Width: 800, Height: 600}, image.Extent())

	err = image.Upload([]byte{1, 2, 3, 4})
	require.True(t, errors.Is(err, memutils.ErrUnsupported))
	err = image.UploadRegion([]byte{1, 2, 3, 4}, gpu.Offset{}, gpu.Extent{Width: 1, Height: 1})
	require.True(t, errors.Is(err, memutils.ErrUnsupported))

	view, err := image.CreateView()
	require.NoError(t, err)
	image.Release()
	view.Release()
	require.Contains(t, rig.teardown, "imageView")

	require.NoError(t, device.Destroy())
}
