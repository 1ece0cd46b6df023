package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
)

// NewSystemLoader connects to the system's Vulkan loader library
func NewSystemLoader() (Loader, error) {
	loader, err := core.CreateSystemLoader()
	if err != nil {
		return nil, err
	}

	return &vkngLoader{loader: loader}, nil
}

type vkngLoader struct {
	loader *core.VulkanLoader
}

func (l *vkngLoader) AvailableExtensions() (map[string]*core1_0.ExtensionProperties, error) {
	extensions, _, err := l.loader.AvailableExtensions()
	return extensions, err
}

func (l *vkngLoader) AvailableLayers() (map[string]*core1_0.LayerProperties, error) {
	layers, _, err := l.loader.AvailableLayers()
	return layers, err
}

func (l *vkngLoader) CreateInstance(info core1_0.InstanceCreateInfo) (Instance, error) {
	instance, _, err := l.loader.CreateInstance(nil, info)
	if err != nil {
		return nil, err
	}

	return &vkngInstance{instance: instance}, nil
}

type vkngInstance struct {
	instance core1_0.Instance
}

func (i *vkngInstance) EnumeratePhysicalDevices() ([]PhysicalDevice, error) {
	physicalDevices, _, err := i.instance.EnumeratePhysicalDevices()
	if err != nil {
		return nil, err
	}

	result := make([]PhysicalDevice, 0, len(physicalDevices))
	for _, physicalDevice := range physicalDevices {
		result = append(result, &vkngPhysicalDevice{physicalDevice: physicalDevice})
	}
	return result, nil
}

func (i *vkngInstance) CreateDebugMessenger(info DebugMessengerCreateInfo) (DebugMessenger, error) {
	if !i.instance.IsInstanceExtensionActive(ext_debug_utils.ExtensionName) {
		return nil, errors.Newf("instance extension %s is not active", ext_debug_utils.ExtensionName)
	}

	callback := info.Callback
	extension := ext_debug_utils.CreateExtensionFromInstance(i.instance)
	messenger, _, err := extension.CreateDebugUtilsMessenger(i.instance, nil, ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: info.Severity,
		MessageType:     info.Type,
		UserCallback: func(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
			callback(convertDebugMessage(msgType, severity, data))
			return false
		},
	})
	if err != nil {
		return nil, err
	}

	return &vkngDebugMessenger{messenger: messenger}, nil
}

func (i *vkngInstance) Destroy() {
	i.instance.Destroy(nil)
}

type vkngPhysicalDevice struct {
	physicalDevice core1_0.PhysicalDevice
}

func (p *vkngPhysicalDevice) AvailableExtensions() (map[string]*core1_0.ExtensionProperties, error) {
	extensions, _, err := p.physicalDevice.EnumerateDeviceExtensionProperties()
	return extensions, err
}

func (p *vkngPhysicalDevice) Properties() (*core1_0.PhysicalDeviceProperties, error) {
	return p.physicalDevice.Properties()
}

func (p *vkngPhysicalDevice) QueueFamilyProperties() []*core1_0.QueueFamilyProperties {
	return p.physicalDevice.QueueFamilyProperties()
}

func (p *vkngPhysicalDevice) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return p.physicalDevice.MemoryProperties()
}

func (p *vkngPhysicalDevice) CreateDevice(info core1_0.DeviceCreateInfo) (Device, error) {
	device, _, err := p.physicalDevice.CreateDevice(nil, info)
	if err != nil {
		return nil, err
	}

	return &vkngDevice{device: device}, nil
}

type vkngDevice struct {
	device core1_0.Device
}

func (d *vkngDevice) GetQueue(queueFamilyIndex int, queueIndex int) Queue {
	return &vkngQueue{queue: d.device.GetQueue(queueFamilyIndex, queueIndex)}
}

func (d *vkngDevice) WaitIdle() error {
	_, err := d.device.WaitIdle()
	return err
}

func (d *vkngDevice) CreateFence() (Fence, error) {
	fence, _, err := d.device.CreateFence(nil, core1_0.FenceCreateInfo{})
	if err != nil {
		return nil, err
	}

	return &vkngFence{fence: fence}, nil
}

func (d *vkngDevice) CreateSemaphore() (Semaphore, error) {
	semaphore, _, err := d.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, err
	}

	return &vkngSemaphore{semaphore: semaphore}, nil
}

func (d *vkngDevice) CreateBuffer(info core1_0.BufferCreateInfo) (Buffer, error) {
	buffer, _, err := d.device.CreateBuffer(nil, info)
	if err != nil {
		return nil, err
	}

	return &vkngBuffer{buffer: buffer}, nil
}

func (d *vkngDevice) CreateImage(info core1_0.ImageCreateInfo) (Image, error) {
	image, _, err := d.device.CreateImage(nil, info)
	if err != nil {
		return nil, err
	}

	return &vkngImage{image: image}, nil
}

func (d *vkngDevice) CreateImageView(info ImageViewCreateInfo) (ImageView, error) {
	image, ok := info.Image.(*vkngImage)
	if !ok {
		return nil, errors.AssertionFailedf("image view requested for foreign image type %T", info.Image)
	}

	view, _, err := d.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:            image.image,
		ViewType:         info.ViewType,
		Format:           info.Format,
		SubresourceRange: info.SubresourceRange,
	})
	if err != nil {
		return nil, err
	}

	return &vkngImageView{view: view}, nil
}

func (d *vkngDevice) AllocateMemory(info core1_0.MemoryAllocateInfo) (DeviceMemory, error) {
	memory, _, err := d.device.AllocateMemory(nil, info)
	if err != nil {
		return nil, err
	}

	return &vkngDeviceMemory{memory: memory}, nil
}

func (d *vkngDevice) CreateSampler(info core1_0.SamplerCreateInfo) (Sampler, error) {
	sampler, _, err := d.device.CreateSampler(nil, info)
	if err != nil {
		return nil, err
	}

	return &vkngSampler{sampler: sampler}, nil
}

func (d *vkngDevice) CreateCommandPool(info core1_0.CommandPoolCreateInfo) (CommandPool, error) {
	pool, _, err := d.device.CreateCommandPool(nil, info)
	if err != nil {
		return nil, err
	}

	return &vkngCommandPool{device: d.device, pool: pool}, nil
}

func (d *vkngDevice) CreateRenderPass(info core1_0.RenderPassCreateInfo) (RenderPass, error) {
	renderPass, _, err := d.device.CreateRenderPass(nil, info)
	if err != nil {
		return nil, err
	}

	return &vkngRenderPass{renderPass: renderPass}, nil
}

func (d *vkngDevice) CreateFramebuffer(info FramebufferCreateInfo) (Framebuffer, error) {
	renderPass, ok := info.RenderPass.(*vkngRenderPass)
	if !ok {
		return nil, errors.AssertionFailedf("framebuffer requested for foreign render pass type %T", info.RenderPass)
	}

	attachments := make([]core1_0.ImageView, 0, len(info.Attachments))
	for _, attachment := range info.Attachments {
		view, ok := attachment.(*vkngImageView)
		if !ok {
			return nil, errors.AssertionFailedf("framebuffer requested for foreign image view type %T", attachment)
		}
		attachments = append(attachments, view.view)
	}

	framebuffer, _, err := d.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  renderPass.renderPass,
		Attachments: attachments,
		Width:       info.Width,
		Height:      info.Height,
		Layers:      info.Layers,
	})
	if err != nil {
		return nil, err
	}

	return &vkngFramebuffer{framebuffer: framebuffer}, nil
}

func (d *vkngDevice) CreateShaderModule(code []uint32) (ShaderModule, error) {
	module, _, err := d.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return nil, err
	}

	return &vkngShaderModule{module: module}, nil
}

func (d *vkngDevice) Destroy() {
	d.device.Destroy(nil)
}

type vkngQueue struct {
	queue core1_0.Queue
}

func (q *vkngQueue) Submit(fence Fence, info SubmitInfo) error {
	var driverFence core1_0.Fence
	if fence != nil {
		vkFence, ok := fence.(*vkngFence)
		if !ok {
			return errors.AssertionFailedf("submit requested with foreign fence type %T", fence)
		}
		driverFence = vkFence.fence
	}

	submit := core1_0.SubmitInfo{
		WaitDstStageMask: info.WaitDstStageMask,
	}

	for _, commandBuffer := range info.CommandBuffers {
		vkCommandBuffer, ok := commandBuffer.(*vkngCommandBuffer)
		if !ok {
			return errors.AssertionFailedf("submit requested with foreign command buffer type %T", commandBuffer)
		}
		submit.CommandBuffers = append(submit.CommandBuffers, vkCommandBuffer.commandBuffer)
	}

	for _, semaphore := range info.WaitSemaphores {
		vkSemaphore, ok := semaphore.(*vkngSemaphore)
		if !ok {
			return errors.AssertionFailedf("submit requested with foreign semaphore type %T", semaphore)
		}
		submit.WaitSemaphores = append(submit.WaitSemaphores, vkSemaphore.semaphore)
	}

	for _, semaphore := range info.SignalSemaphores {
		vkSemaphore, ok := semaphore.(*vkngSemaphore)
		if !ok {
			return errors.AssertionFailedf("submit requested with foreign semaphore type %T", semaphore)
		}
		submit.SignalSemaphores = append(submit.SignalSemaphores, vkSemaphore.semaphore)
	}

	_, err := q.queue.Submit(driverFence, []core1_0.SubmitInfo{submit})
	return err
}

type vkngFence struct {
	fence core1_0.Fence
}

func (f *vkngFence) Status() (bool, error) {
	res, err := f.fence.Status()
	if err != nil {
		return false, err
	}

	switch res {
	case core1_0.VKSuccess:
		return true, nil
	case core1_0.VKNotReady:
		return false, nil
	default:
		return false, errors.Newf("unexpected fence status: %s", res)
	}
}

func (f *vkngFence) Destroy() {
	f.fence.Destroy(nil)
}

type vkngSemaphore struct {
	semaphore core1_0.Semaphore
}

func (s *vkngSemaphore) Destroy() {
	s.semaphore.Destroy(nil)
}

func unwrapMemory(memory DeviceMemory) (core1_0.DeviceMemory, error) {
	vkMemory, ok := memory.(*vkngDeviceMemory)
	if !ok {
		return nil, errors.AssertionFailedf("bind requested with foreign device memory type %T", memory)
	}

	return vkMemory.memory, nil
}

type vkngBuffer struct {
	buffer core1_0.Buffer
}

func (b *vkngBuffer) MemoryRequirements() *core1_0.MemoryRequirements {
	return b.buffer.MemoryRequirements()
}

func (b *vkngBuffer) BindBufferMemory(memory DeviceMemory, offset int) error {
	vkMemory, err := unwrapMemory(memory)
	if err != nil {
		return err
	}

	_, err = b.buffer.BindBufferMemory(vkMemory, offset)
	return err
}

func (b *vkngBuffer) Destroy() {
	b.buffer.Destroy(nil)
}

type vkngImage struct {
	image core1_0.Image
}

func (i *vkngImage) MemoryRequirements() *core1_0.MemoryRequirements {
	return i.image.MemoryRequirements()
}

func (i *vkngImage) BindImageMemory(memory DeviceMemory, offset int) error {
	vkMemory, err := unwrapMemory(memory)
	if err != nil {
		return err
	}

	_, err = i.image.BindImageMemory(vkMemory, offset)
	return err
}

func (i *vkngImage) SubresourceLayout(aspect core1_0.ImageAspectFlags) *core1_0.SubresourceLayout {
	return i.image.SubresourceLayout(&core1_0.ImageSubresource{
		AspectMask: aspect,
	})
}

func (i *vkngImage) Destroy() {
	i.image.Destroy(nil)
}

type vkngDeviceMemory struct {
	memory core1_0.DeviceMemory
}

func (m *vkngDeviceMemory) Map(offset int, size int) (unsafe.Pointer, error) {
	data, _, err := m.memory.Map(offset, size, 0)
	return data, err
}

func (m *vkngDeviceMemory) Unmap() {
	m.memory.Unmap()
}

func (m *vkngDeviceMemory) Free() {
	m.memory.Free(nil)
}

type vkngCommandPool struct {
	device core1_0.Device
	pool   core1_0.CommandPool
}

func (p *vkngCommandPool) AllocateCommandBuffers(count int) ([]CommandBuffer, error) {
	buffers, _, err := p.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, err
	}

	result := make([]CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		result = append(result, &vkngCommandBuffer{device: p.device, commandBuffer: buffer})
	}
	return result, nil
}

func (p *vkngCommandPool) Reset() error {
	_, err := p.pool.Reset(0)
	return err
}

func (p *vkngCommandPool) Destroy() {
	p.pool.Destroy(nil)
}

type vkngCommandBuffer struct {
	device        core1_0.Device
	commandBuffer core1_0.CommandBuffer
}

func (b *vkngCommandBuffer) Begin() error {
	_, err := b.commandBuffer.Begin(core1_0.CommandBufferBeginInfo{})
	return err
}

func (b *vkngCommandBuffer) End() error {
	_, err := b.commandBuffer.End()
	return err
}

func (b *vkngCommandBuffer) Free() {
	b.device.FreeCommandBuffers([]core1_0.CommandBuffer{b.commandBuffer})
}

type vkngImageView struct {
	view core1_0.ImageView
}

func (v *vkngImageView) Destroy() {
	v.view.Destroy(nil)
}

type vkngSampler struct {
	sampler core1_0.Sampler
}

func (s *vkngSampler) Destroy() {
	s.sampler.Destroy(nil)
}

type vkngFramebuffer struct {
	framebuffer core1_0.Framebuffer
}

func (f *vkngFramebuffer) Destroy() {
	f.framebuffer.Destroy(nil)
}

type vkngShaderModule struct {
	module core1_0.ShaderModule
}

func (m *vkngShaderModule) Destroy() {
	m.module.Destroy(nil)
}

type vkngDebugMessenger struct {
	messenger ext_debug_utils.DebugUtilsMessenger
}

func (m *vkngDebugMessenger) Destroy() {
	m.messenger.Destroy(nil)
}

type vkngRenderPass struct {
	renderPass core1_0.RenderPass
}

func (r *vkngRenderPass) Destroy() {
	r.renderPass.Destroy(nil)
}

// CoreCommandBuffer exposes the driver command buffer behind a CommandBuffer for recording
func CoreCommandBuffer(commandBuffer CommandBuffer) (core1_0.CommandBuffer, bool) {
	vkCommandBuffer, ok := commandBuffer.(*vkngCommandBuffer)
	if !ok {
		return nil, false
	}
	return vkCommandBuffer.commandBuffer, true
}

// CoreInstance exposes the driver instance behind an Instance created by the system loader
func CoreInstance(instance Instance) (core1_0.Instance, bool) {
	vkInstance, ok := instance.(*vkngInstance)
	if !ok {
		return nil, false
	}
	return vkInstance.instance, true
}

// CorePhysicalDevice exposes the driver physical device behind a PhysicalDevice created by the
// system loader
func CorePhysicalDevice(physicalDevice PhysicalDevice) (core1_0.PhysicalDevice, bool) {
	vkPhysicalDevice, ok := physicalDevice.(*vkngPhysicalDevice)
	if !ok {
		return nil, false
	}
	return vkPhysicalDevice.physicalDevice, true
}

// WrapImage adapts an image owned elsewhere, such as a swapchain image, to Image
func WrapImage(image core1_0.Image) Image {
	return &vkngImage{image: image}
}
