package vkdevice

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
	"github.com/vkngwrapper/gpudevice/internal/vulkan/mocks"
	"github.com/vkngwrapper/gpudevice/memutils"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

const (
	testBufferPoolBytes = 64 * 1024
	testImagePoolBytes  = 128 * 1024
	testBlockBytes      = 256
	testUniformAlign    = 256
	testBufferAlign     = 16
	testImageAlign      = 512
	testRowAlign        = 64
)

type testSurface struct {
	extensions []string
	// families that cannot present; every other family can
	noPresent map[int]bool
	err       error
}

func (s *testSurface) ExtensionNames() []string {
	return s.extensions
}

func (s *testSurface) QueueFamilySupportsPresent(physicalDevice PhysicalDeviceInfo, queueFamilyIndex int) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return !s.noPresent[queueFamilyIndex], nil
}

type fenceState struct {
	signaled  bool
	err       error
	destroyed int
}

type imageState struct {
	info      core1_0.ImageCreateInfo
	layout    *core1_0.SubresourceLayout
	destroyed int
}

// DeviceSetup describes the driver the rig pretends to be
type DeviceSetup struct {
	Options             CreateOptions
	InstanceExtensions  []string
	Layers              []string
	Surface             *testSurface
	PhysicalDeviceTypes []core1_0.PhysicalDeviceType
	QueueFamilies       []*core1_0.QueueFamilyProperties
	DeviceExtensions    []string
}

func defaultSetup() DeviceSetup {
	return DeviceSetup{
		Options: CreateOptions{
			DynamicBufferPoolBytes: testBufferPoolBytes,
			HostImagePoolBytes:     testImagePoolBytes,
			AllocatorBlockBytes:    testBlockBytes,
			Validation:             ValidationDisabled,
		},
		InstanceExtensions:  []string{khr_surface.ExtensionName, ext_debug_utils.ExtensionName, "VK_KHR_test_surface"},
		Surface:             &testSurface{extensions: []string{"VK_KHR_test_surface"}},
		PhysicalDeviceTypes: []core1_0.PhysicalDeviceType{core1_0.PhysicalDeviceTypeDiscreteGPU},
		QueueFamilies: []*core1_0.QueueFamilyProperties{
			{QueueFlags: core1_0.QueueGraphics | core1_0.QueueTransfer | core1_0.QueueCompute, QueueCount: 1},
		},
		DeviceExtensions: []string{khr_swapchain.ExtensionName},
	}
}

type deviceRig struct {
	ctrl *gomock.Controller
	logs *bytes.Buffer

	loader          *mocks.MockLoader
	instance        *mocks.MockInstance
	physicalDevices []*mocks.MockPhysicalDevice
	driver          *mocks.MockDevice
	queue           *mocks.MockQueue
	messenger       *mocks.MockDebugMessenger
	poolBuffer      *mocks.MockBuffer
	bufferMemory    *mocks.MockDeviceMemory
	imageMemory     *mocks.MockDeviceMemory

	bufferBacking []byte
	imageBacking  []byte

	instanceInfo    core1_0.InstanceCreateInfo
	deviceInfo      core1_0.DeviceCreateInfo
	messengerInfo   vulkan.DebugMessengerCreateInfo
	imageMemoryBits uint32

	teardown []string
	fences   []*fenceState
	images   []*imageState
	submits  []vulkan.SubmitInfo

	submitErr           error
	semaphoresCreated   int
	semaphoresDestroyed int
	commandBuffersFreed int
	commandPoolsFreed   int
}

func (r *deviceRig) record(name string) {
	r.teardown = append(r.teardown, name)
}

func newDeviceRig(t *testing.T, ctrl *gomock.Controller, setup DeviceSetup) *deviceRig {
	rig := &deviceRig{
		ctrl:            ctrl,
		logs:            &bytes.Buffer{},
		loader:          mocks.NewMockLoader(ctrl),
		instance:        mocks.NewMockInstance(ctrl),
		driver:          mocks.NewMockDevice(ctrl),
		queue:           mocks.NewMockQueue(ctrl),
		messenger:       mocks.NewMockDebugMessenger(ctrl),
		poolBuffer:      mocks.NewMockBuffer(ctrl),
		bufferMemory:    mocks.NewMockDeviceMemory(ctrl),
		imageMemory:     mocks.NewMockDeviceMemory(ctrl),
		bufferBacking:   make([]byte, testBufferPoolBytes),
		imageBacking:    make([]byte, testImagePoolBytes),
		imageMemoryBits: 0b11,
	}

	instanceExtensions := make(map[string]*core1_0.ExtensionProperties)
	for _, name := range setup.InstanceExtensions {
		instanceExtensions[name] = &core1_0.ExtensionProperties{ExtensionName: name}
	}
	rig.loader.EXPECT().AvailableExtensions().Return(instanceExtensions, nil).AnyTimes()

	layers := make(map[string]*core1_0.LayerProperties)
	for _, name := range setup.Layers {
		layers[name] = &core1_0.LayerProperties{LayerName: name}
	}
	rig.loader.EXPECT().AvailableLayers().Return(layers, nil).AnyTimes()

	rig.loader.EXPECT().CreateInstance(gomock.Any()).DoAndReturn(func(info core1_0.InstanceCreateInfo) (vulkan.Instance, error) {
		rig.instanceInfo = info
		return rig.instance, nil
	}).AnyTimes()
	rig.instance.EXPECT().Destroy().Do(func() { rig.record("instance") }).AnyTimes()

	rig.instance.EXPECT().CreateDebugMessenger(gomock.Any()).DoAndReturn(func(info vulkan.DebugMessengerCreateInfo) (vulkan.DebugMessenger, error) {
		rig.messengerInfo = info
		return rig.messenger, nil
	}).AnyTimes()
	rig.messenger.EXPECT().Destroy().Do(func() { rig.record("messenger") }).AnyTimes()

	physicalDevices := make([]vulkan.PhysicalDevice, 0, len(setup.PhysicalDeviceTypes))
	deviceExtensions := make(map[string]*core1_0.ExtensionProperties)
	for _, name := range setup.DeviceExtensions {
		deviceExtensions[name] = &core1_0.ExtensionProperties{ExtensionName: name}
	}
	for _, deviceType := range setup.PhysicalDeviceTypes {
		physicalDevice := mocks.NewMockPhysicalDevice(ctrl)
		physicalDevice.EXPECT().Properties().Return(&core1_0.PhysicalDeviceProperties{
			DriverType: deviceType,
			DriverName: "Test GPU",
			Limits: &core1_0.PhysicalDeviceLimits{
				BufferImageGranularity:          1,
				NonCoherentAtomSize:             1,
				MaxMemoryAllocationCount:        4096,
				MinUniformBufferOffsetAlignment: testUniformAlign,
			},
		}, nil).AnyTimes()
		physicalDevice.EXPECT().QueueFamilyProperties().Return(setup.QueueFamilies).AnyTimes()
		physicalDevice.EXPECT().AvailableExtensions().Return(deviceExtensions, nil).AnyTimes()
		physicalDevice.EXPECT().MemoryProperties().Return(&core1_0.PhysicalDeviceMemoryProperties{
			MemoryTypes: []core1_0.MemoryType{
				{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
				{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
			},
			MemoryHeaps: []core1_0.MemoryHeap{
				{Size: 1 << 30, Flags: core1_0.MemoryHeapDeviceLocal},
				{Size: 1 << 30},
			},
		}).AnyTimes()
		physicalDevice.EXPECT().CreateDevice(gomock.Any()).DoAndReturn(func(info core1_0.DeviceCreateInfo) (vulkan.Device, error) {
			rig.deviceInfo = info
			return rig.driver, nil
		}).AnyTimes()

		rig.physicalDevices = append(rig.physicalDevices, physicalDevice)
		physicalDevices = append(physicalDevices, physicalDevice)
	}
	rig.instance.EXPECT().EnumeratePhysicalDevices().Return(physicalDevices, nil).AnyTimes()

	rig.driver.EXPECT().GetQueue(gomock.Any(), 0).Return(rig.queue).AnyTimes()
	rig.driver.EXPECT().Destroy().Do(func() { rig.record("device") }).AnyTimes()
	rig.driver.EXPECT().WaitIdle().DoAndReturn(func() error {
		for _, fence := range rig.fences {
			fence.signaled = true
		}
		return nil
	}).AnyTimes()

	rig.expectPools()
	rig.expectObjects()

	return rig
}

func (r *deviceRig) expectPools() {
	r.driver.EXPECT().CreateBuffer(gomock.Any()).Return(r.poolBuffer, nil).AnyTimes()
	r.poolBuffer.EXPECT().MemoryRequirements().Return(&core1_0.MemoryRequirements{
		Size:           testBufferPoolBytes,
		Alignment:      testBufferAlign,
		MemoryTypeBits: 0b11,
	}).AnyTimes()
	r.driver.EXPECT().AllocateMemory(core1_0.MemoryAllocateInfo{
		AllocationSize:  testBufferPoolBytes,
		MemoryTypeIndex: 1,
	}).Return(r.bufferMemory, nil).AnyTimes()
	r.poolBuffer.EXPECT().BindBufferMemory(r.bufferMemory, 0).Return(nil).AnyTimes()
	r.bufferMemory.EXPECT().Map(0, testBufferPoolBytes).Return(unsafe.Pointer(&r.bufferBacking[0]), nil).AnyTimes()
	r.bufferMemory.EXPECT().Unmap().Do(func() { r.record("bufferMemory.Unmap") }).AnyTimes()
	r.poolBuffer.EXPECT().Destroy().Do(func() { r.record("poolBuffer") }).AnyTimes()
	r.bufferMemory.EXPECT().Free().Do(func() { r.record("bufferMemory.Free") }).AnyTimes()

	r.driver.EXPECT().AllocateMemory(core1_0.MemoryAllocateInfo{
		AllocationSize:  testImagePoolBytes,
		MemoryTypeIndex: 1,
	}).Return(r.imageMemory, nil).AnyTimes()
	r.imageMemory.EXPECT().Map(0, testImagePoolBytes).Return(unsafe.Pointer(&r.imageBacking[0]), nil).AnyTimes()
	r.imageMemory.EXPECT().Unmap().Do(func() { r.record("imageMemory.Unmap") }).AnyTimes()
	r.imageMemory.EXPECT().Free().Do(func() { r.record("imageMemory.Free") }).AnyTimes()
}

func (r *deviceRig) expectObjects() {
	r.driver.EXPECT().CreateFence().DoAndReturn(func() (vulkan.Fence, error) {
		state := &fenceState{}
		r.fences = append(r.fences, state)

		fence := mocks.NewMockFence(r.ctrl)
		fence.EXPECT().Status().DoAndReturn(func() (bool, error) {
			return state.signaled, state.err
		}).AnyTimes()
		fence.EXPECT().Destroy().Do(func() { state.destroyed++ }).AnyTimes()
		return fence, nil
	}).AnyTimes()

	r.queue.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(func(fence vulkan.Fence, info vulkan.SubmitInfo) error {
		r.submits = append(r.submits, info)
		return r.submitErr
	}).AnyTimes()

	r.driver.EXPECT().CreateSemaphore().DoAndReturn(func() (vulkan.Semaphore, error) {
		r.semaphoresCreated++
		semaphore := mocks.NewMockSemaphore(r.ctrl)
		semaphore.EXPECT().Destroy().Do(func() { r.semaphoresDestroyed++ }).AnyTimes()
		return semaphore, nil
	}).AnyTimes()

	r.driver.EXPECT().CreateCommandPool(gomock.Any()).DoAndReturn(func(info core1_0.CommandPoolCreateInfo) (vulkan.CommandPool, error) {
		pool := mocks.NewMockCommandPool(r.ctrl)
		pool.EXPECT().AllocateCommandBuffers(1).DoAndReturn(func(count int) ([]vulkan.CommandBuffer, error) {
			buffer := mocks.NewMockCommandBuffer(r.ctrl)
			buffer.EXPECT().Begin().Return(nil).AnyTimes()
			buffer.EXPECT().End().Return(nil).AnyTimes()
			buffer.EXPECT().Free().Do(func() { r.commandBuffersFreed++ }).AnyTimes()
			return []vulkan.CommandBuffer{buffer}, nil
		}).AnyTimes()
		pool.EXPECT().Destroy().Do(func() { r.commandPoolsFreed++ }).AnyTimes()
		return pool, nil
	}).AnyTimes()

	r.driver.EXPECT().CreateImage(gomock.Any()).DoAndReturn(func(info core1_0.ImageCreateInfo) (vulkan.Image, error) {
		format := gpu.ImageFormatUndefined
		for gpuFormat, vkFormat := range imageFormats {
			if vkFormat == info.Format {
				format = gpuFormat
			}
		}

		bytesPerPixel := format.BytesPerPixel()
		if bytesPerPixel == 0 {
			bytesPerPixel = 4
		}

		rowPitch := memutils.AlignUp(info.Extent.Width*bytesPerPixel, testRowAlign)
		state := &imageState{
			info: info,
			layout: &core1_0.SubresourceLayout{
				Offset:   0,
				Size:     rowPitch * info.Extent.Height,
				RowPitch: rowPitch,
			},
		}
		r.images = append(r.images, state)

		image := mocks.NewMockImage(r.ctrl)
		image.EXPECT().MemoryRequirements().Return(&core1_0.MemoryRequirements{
			Size:           memutils.AlignUp(state.layout.Size, testImageAlign),
			Alignment:      testImageAlign,
			MemoryTypeBits: r.imageMemoryBits,
		}).AnyTimes()
		image.EXPECT().BindImageMemory(r.imageMemory, gomock.Any()).Return(nil).AnyTimes()
		image.EXPECT().SubresourceLayout(gomock.Any()).Return(state.layout).AnyTimes()
		image.EXPECT().Destroy().Do(func() { state.destroyed++ }).AnyTimes()
		return image, nil
	}).AnyTimes()

	r.driver.EXPECT().CreateImageView(gomock.Any()).DoAndReturn(func(info vulkan.ImageViewCreateInfo) (vulkan.ImageView, error) {
		view := mocks.NewMockImageView(r.ctrl)
		view.EXPECT().Destroy().Do(func() { r.record("imageView") }).AnyTimes()
		return view, nil
	}).AnyTimes()
}

func (r *deviceRig) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(r.logs))
}

func readyDevice(t *testing.T, ctrl *gomock.Controller, setup DeviceSetup) (*deviceRig, *Device) {
	rig := newDeviceRig(t, ctrl, setup)

	device, err := newWithLoader(rig.logger(), rig.loader, setup.Surface, setup.Options)
	require.NoError(t, err)
	require.Equal(t, DeviceStateReady, device.State())

	return rig, device
}

// recordNoop creates a command list that has been recorded with no commands
func recordNoop(t *testing.T, pool gpu.CommandPool) gpu.GraphicsCommandList {
	list, err := pool.CreateGraphicsCommandList()
	require.NoError(t, err)
	require.NoError(t, list.Begin())
	require.NoError(t, list.End())
	return list
}
