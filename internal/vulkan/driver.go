package vulkan

import (
	"unsafe"

	"github.com/vkngwrapper/core/v2/core1_0"
)

//go:generate mockgen -source driver.go -destination mocks/driver.go -package mocks

// Loader is the entry point into the installed driver
type Loader interface {
	AvailableExtensions() (map[string]*core1_0.ExtensionProperties, error)
	AvailableLayers() (map[string]*core1_0.LayerProperties, error)
	CreateInstance(info core1_0.InstanceCreateInfo) (Instance, error)
}

type Instance interface {
	EnumeratePhysicalDevices() ([]PhysicalDevice, error)
	CreateDebugMessenger(info DebugMessengerCreateInfo) (DebugMessenger, error)
	Destroy()
}

type PhysicalDevice interface {
	AvailableExtensions() (map[string]*core1_0.ExtensionProperties, error)
	Properties() (*core1_0.PhysicalDeviceProperties, error)
	QueueFamilyProperties() []*core1_0.QueueFamilyProperties
	MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties
	CreateDevice(info core1_0.DeviceCreateInfo) (Device, error)
}

type Device interface {
	GetQueue(queueFamilyIndex int, queueIndex int) Queue
	WaitIdle() error

	CreateFence() (Fence, error)
	CreateSemaphore() (Semaphore, error)
	CreateBuffer(info core1_0.BufferCreateInfo) (Buffer, error)
	CreateImage(info core1_0.ImageCreateInfo) (Image, error)
	CreateImageView(info ImageViewCreateInfo) (ImageView, error)
	AllocateMemory(info core1_0.MemoryAllocateInfo) (DeviceMemory, error)
	CreateSampler(info core1_0.SamplerCreateInfo) (Sampler, error)
	CreateCommandPool(info core1_0.CommandPoolCreateInfo) (CommandPool, error)
	CreateRenderPass(info core1_0.RenderPassCreateInfo) (RenderPass, error)
	CreateFramebuffer(info FramebufferCreateInfo) (Framebuffer, error)
	CreateShaderModule(code []uint32) (ShaderModule, error)

	Destroy()
}

// SubmitInfo is a single queue submission. WaitDstStageMask must have one entry per wait semaphore.
type SubmitInfo struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	WaitDstStageMask []core1_0.PipelineStageFlags
	SignalSemaphores []Semaphore
}

type Queue interface {
	Submit(fence Fence, info SubmitInfo) error
}

type Fence interface {
	// Status reports whether the fence has been signaled without blocking
	Status() (bool, error)
	Destroy()
}

type Semaphore interface {
	Destroy()
}

type Buffer interface {
	MemoryRequirements() *core1_0.MemoryRequirements
	BindBufferMemory(memory DeviceMemory, offset int) error
	Destroy()
}

type Image interface {
	MemoryRequirements() *core1_0.MemoryRequirements
	BindImageMemory(memory DeviceMemory, offset int) error
	// SubresourceLayout retrieves the layout of the first mip level and array layer of a linear image
	SubresourceLayout(aspect core1_0.ImageAspectFlags) *core1_0.SubresourceLayout
	Destroy()
}

type ImageViewCreateInfo struct {
	Image            Image
	ViewType         core1_0.ImageViewType
	Format           core1_0.Format
	SubresourceRange core1_0.ImageSubresourceRange
}

type ImageView interface {
	Destroy()
}

type DeviceMemory interface {
	Map(offset int, size int) (unsafe.Pointer, error)
	Unmap()
	Free()
}

type Sampler interface {
	Destroy()
}

type CommandPool interface {
	AllocateCommandBuffers(count int) ([]CommandBuffer, error)
	Reset() error
	Destroy()
}

type CommandBuffer interface {
	Begin() error
	End() error
	Free()
}

type RenderPass interface {
	Destroy()
}

type FramebufferCreateInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Width       int
	Height      int
	Layers      uint32
}

type Framebuffer interface {
	Destroy()
}

type ShaderModule interface {
	Destroy()
}

type DebugMessenger interface {
	Destroy()
}
