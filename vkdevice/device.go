package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
	"golang.org/x/exp/slog"
)

// Device is the Vulkan implementation of gpu.Device. It owns the driver instance, the logical
// device with its graphics queue, and the host-visible pools that buffers and images are carved
// from. A Device is meant to be driven from a single render thread.
type Device struct {
	logger  *slog.Logger
	id      uuid.UUID
	options CreateOptions
	loader  vulkan.Loader
	surface SurfaceProvider

	state DeviceState
	fault error

	instance           vulkan.Instance
	surfaceAttached    bool
	debugMessenger     vulkan.DebugMessenger
	physicalDevice     vulkan.PhysicalDevice
	physicalDeviceInfo PhysicalDeviceInfo

	device              vulkan.Device
	graphicsQueue       vulkan.Queue
	graphicsQueueFamily int
	deviceMemory        *vulkan.DeviceMemoryProperties

	bufferPool *BufferPool
	imagePool  *ImagePool

	batches []*batchResourceList
}

var _ gpu.Device = &Device{}

// New loads the system's Vulkan driver and initializes a device that can present to the
// provided surface. Every error returned is marked with ErrInitialization; on failure, all
// driver objects created along the way have already been destroyed.
func New(logger *slog.Logger, surface SurfaceProvider, options CreateOptions) (*Device, error) {
	loader, err := vulkan.NewSystemLoader()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "could not load the vulkan driver"), ErrInitialization)
	}

	return newWithLoader(logger, loader, surface, options)
}

type initStep struct {
	name string
	run  func() error
}

func newWithLoader(logger *slog.Logger, loader vulkan.Loader, surface SurfaceProvider, options CreateOptions) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if surface == nil {
		return nil, errors.Mark(errors.New("a surface provider is required"), ErrInitialization)
	}

	id := uuid.New()
	device := &Device{
		logger:  logger.With(slog.String("device", id.String())),
		id:      id,
		options: options.withDefaults(),
		loader:  loader,
		surface: surface,
		state:   DeviceStateInitializing,
	}

	steps := []initStep{
		{"createInstance", device.createInstance},
		{"createDebugMessenger", device.createDebugMessenger},
		{"selectPhysicalDevice", device.selectPhysicalDevice},
		{"createDeviceAndQueues", device.createDeviceAndQueues},
		{"createMemoryPools", device.createMemoryPools},
	}

	for _, step := range steps {
		start := hrtime.Now()
		err := step.run()
		device.logger.Debug("Device::"+step.name, slog.Duration("elapsed", hrtime.Since(start)))

		if err != nil {
			teardownErr := device.releaseDriverObjects()
			if teardownErr != nil {
				device.logger.Error("error while unwinding failed initialization", slog.Any("error", teardownErr))
			}
			device.state = DeviceStateUninitialized

			return nil, errors.Mark(errors.Wrapf(err, "%s failed", step.name), ErrInitialization)
		}
	}

	device.state = DeviceStateReady
	return device, nil
}

// ID distinguishes this device from others in the same process. It is attached to every log
// record the device emits.
func (d *Device) ID() uuid.UUID {
	return d.id
}

func (d *Device) State() DeviceState {
	return d.state
}

func (d *Device) Backend() gpu.Backend {
	return gpu.BackendVulkan
}

// Fault is the driver error that marked the device lost, or nil
func (d *Device) Fault() error {
	return d.fault
}

// PhysicalDevice describes the GPU the device was created on
func (d *Device) PhysicalDevice() PhysicalDeviceInfo {
	return d.physicalDeviceInfo
}

// GraphicsQueueFamily is the index of the queue family submissions are sent to
func (d *Device) GraphicsQueueFamily() int {
	return d.graphicsQueueFamily
}

// BufferPool is the pool backing every buffer created by the device
func (d *Device) BufferPool() *BufferPool {
	return d.bufferPool
}

// ImagePool is the pool backing every image created by the device
func (d *Device) ImagePool() *ImagePool {
	return d.imagePool
}

func (d *Device) checkReady() error {
	if d.fault != nil {
		return errors.Mark(errors.Wrap(d.fault, "device was lost"), ErrDeviceLost)
	}
	if d.state != DeviceStateReady {
		return errors.Wrapf(ErrDeviceNotReady, "device is in state %s", d.state)
	}
	return nil
}

func (d *Device) markFaulted(err error) {
	if d.fault == nil {
		d.fault = err
	}
}

func (d *Device) CreatePipelineCompiler() (gpu.PipelineCompiler, error) {
	d.logger.Debug("Device::CreatePipelineCompiler")

	err := d.checkReady()
	if err != nil {
		return nil, err
	}

	compiler := &PipelineCompiler{device: d.device}
	compiler.refs.Init()
	return compiler, nil
}

func (d *Device) CreateCommandPool() (gpu.CommandPool, error) {
	d.logger.Debug("Device::CreateCommandPool")

	err := d.checkReady()
	if err != nil {
		return nil, err
	}

	pool, err := d.device.CreateCommandPool(commandPoolCreateInfo(d.graphicsQueueFamily))
	if err != nil {
		return nil, errors.Wrap(err, "could not create command pool")
	}

	commandPool := &CommandPool{pool: pool}
	commandPool.refs.Init()
	return commandPool, nil
}

func (d *Device) CreateRenderPass(info gpu.RenderPassCreateInfo) (gpu.RenderPass, error) {
	d.logger.Debug("Device::CreateRenderPass")

	err := d.checkReady()
	if err != nil {
		return nil, err
	}

	createInfo, err := renderPassCreateInfo(info)
	if err != nil {
		return nil, err
	}

	renderPass, err := d.device.CreateRenderPass(createInfo)
	if err != nil {
		return nil, errors.Wrap(err, "could not create render pass")
	}

	pass := &RenderPass{
		renderPass:       renderPass,
		colorAttachments: len(info.ColorAttachments),
		hasDepth:         info.DepthAttachment != nil,
	}
	pass.refs.Init()
	return pass, nil
}

func (d *Device) CreateFramebuffer(size gpu.Extent, views ...gpu.ImageView) (gpu.Framebuffer, error) {
	d.logger.Debug("Device::CreateFramebuffer")

	err := d.checkReady()
	if err != nil {
		return nil, err
	}

	framebuffer, err := newFramebuffer(d.device, size, views)
	if err != nil {
		return nil, err
	}
	return framebuffer, nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.logger.Debug("Device::CreateSemaphore")

	err := d.checkReady()
	if err != nil {
		return nil, err
	}

	semaphore, err := d.device.CreateSemaphore()
	if err != nil {
		return nil, errors.Wrap(err, "could not create semaphore")
	}

	return newSemaphore(semaphore), nil
}

func (d *Device) CreateBuffer(usage gpu.BufferUsage) (gpu.Buffer, error) {
	d.logger.Debug("Device::CreateBuffer")

	err := d.checkReady()
	if err != nil {
		return nil, err
	}

	buffer, err := d.bufferPool.CreateBuffer(usage)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

func (d *Device) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	d.logger.Debug("Device::CreateImage")

	err := d.checkReady()
	if err != nil {
		return nil, err
	}

	image, err := d.imagePool.CreateImage(info)
	if err != nil {
		return nil, err
	}
	return image, nil
}

func (d *Device) CreateSampler(info gpu.SamplerCreateInfo) (gpu.Sampler, error) {
	d.logger.Debug("Device::CreateSampler")

	err := d.checkReady()
	if err != nil {
		return nil, err
	}

	createInfo, err := samplerCreateInfo(info)
	if err != nil {
		return nil, err
	}

	sampler, err := d.device.CreateSampler(createInfo)
	if err != nil {
		return nil, errors.Wrap(err, "could not create sampler")
	}

	s := &Sampler{sampler: sampler}
	s.refs.Init()
	return s, nil
}

// WrapSwapchainImage adapts an image owned by a swapchain so that it can be viewed and bound to
// framebuffers. Releasing the wrapper does not destroy the image.
func (d *Device) WrapSwapchainImage(image core1_0.Image, format gpu.ImageFormat, extent gpu.Extent) (*SwapchainImage, error) {
	if image == nil {
		return nil, errors.New("swapchain image is nil")
	}
	return d.wrapSwapchainImage(vulkan.WrapImage(image), format, extent)
}

func (d *Device) wrapSwapchainImage(image vulkan.Image, format gpu.ImageFormat, extent gpu.Extent) (*SwapchainImage, error) {
	d.logger.Debug("Device::WrapSwapchainImage")

	err := d.checkReady()
	if err != nil {
		return nil, err
	}

	_, err = translateImageFormat(format)
	if err != nil {
		return nil, err
	}

	swapchainImage := &SwapchainImage{
		device: d.device,
		image:  image,
		format: format,
		extent: extent,
	}
	swapchainImage.refs.Init()
	return swapchainImage, nil
}

// Destroy waits for outstanding work, releases every batch, and destroys the device's driver
// objects. Teardown always runs to completion; any errors along the way are combined and
// returned. Destroying an already destroyed device does nothing.
func (d *Device) Destroy() error {
	d.logger.Debug("Device::Destroy")

	if d.state == DeviceStateUninitialized || d.state == DeviceStateDestroyed {
		return nil
	}

	d.state = DeviceStateDraining

	var err error
	if d.device != nil {
		waitErr := d.device.WaitIdle()
		if waitErr != nil {
			err = errors.CombineErrors(err, errors.Wrap(waitErr, "could not wait for the device to go idle"))
		}
	}

	for _, batch := range d.batches {
		batch.release()
	}
	d.batches = nil

	err = errors.CombineErrors(err, d.releaseDriverObjects())
	d.state = DeviceStateDestroyed

	return err
}

// releaseDriverObjects destroys every driver object the device has created, in reverse order of
// creation. It is used both by Destroy and to unwind a failed initialization.
func (d *Device) releaseDriverObjects() error {
	var err error

	if d.imagePool != nil {
		err = errors.CombineErrors(err, d.imagePool.Destroy())
		d.imagePool = nil
	}

	if d.bufferPool != nil {
		err = errors.CombineErrors(err, d.bufferPool.Destroy())
		d.bufferPool = nil
	}

	if d.device != nil {
		d.device.Destroy()
		d.device = nil
		d.graphicsQueue = nil
		d.deviceMemory = nil
	}

	if d.debugMessenger != nil {
		d.debugMessenger.Destroy()
		d.debugMessenger = nil
	}

	if d.surfaceAttached {
		d.surface.(InstanceSurfaceProvider).DetachInstance()
		d.surfaceAttached = false
	}

	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}

	return err
}
