package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
)

// PhysicalDeviceInfo describes the physical device a queue family belongs to
type PhysicalDeviceInfo struct {
	Index      int
	Properties *core1_0.PhysicalDeviceProperties
	// Core is the driver's physical device. It is nil when the device was not created through the
	// system loader.
	Core core1_0.PhysicalDevice
}

// SurfaceProvider connects the device to the window system. It names the instance extensions the
// platform's surface needs and decides which queue families can present to it.
type SurfaceProvider interface {
	ExtensionNames() []string
	QueueFamilySupportsPresent(physicalDevice PhysicalDeviceInfo, queueFamilyIndex int) (bool, error)
}

// InstanceSurfaceProvider is a SurfaceProvider whose surface depends on the instance the device
// creates. AttachInstance is called right after the instance is created, and DetachInstance right
// before it is destroyed.
type InstanceSurfaceProvider interface {
	SurfaceProvider
	AttachInstance(instance core1_0.Instance) error
	DetachInstance()
}

// KHRSurfaceProvider presents to a khr_surface surface created by the caller's windowing layer
type KHRSurfaceProvider struct {
	// PlatformExtensions are the window-system specific instance extensions, such as
	// VK_KHR_win32_surface
	PlatformExtensions []string
	// CreateSurface builds the window surface once the instance exists
	CreateSurface func(instance core1_0.Instance) (khr_surface.Surface, error)

	surface khr_surface.Surface
}

var _ InstanceSurfaceProvider = &KHRSurfaceProvider{}

func (p *KHRSurfaceProvider) ExtensionNames() []string {
	return append([]string{khr_surface.ExtensionName}, p.PlatformExtensions...)
}

func (p *KHRSurfaceProvider) AttachInstance(instance core1_0.Instance) error {
	if p.CreateSurface == nil {
		return errors.New("KHRSurfaceProvider.CreateSurface was not provided")
	}

	surface, err := p.CreateSurface(instance)
	if err != nil {
		return errors.Wrap(err, "could not create window surface")
	}

	p.surface = surface
	return nil
}

func (p *KHRSurfaceProvider) DetachInstance() {
	if p.surface != nil {
		p.surface.Destroy(nil)
		p.surface = nil
	}
}

// Surface is the window surface, or nil while no instance is attached
func (p *KHRSurfaceProvider) Surface() khr_surface.Surface {
	return p.surface
}

func (p *KHRSurfaceProvider) QueueFamilySupportsPresent(physicalDevice PhysicalDeviceInfo, queueFamilyIndex int) (bool, error) {
	if p.surface == nil {
		return false, errors.New("no window surface has been created")
	}
	if physicalDevice.Core == nil {
		return false, errors.Newf("physical device %d has no driver handle", physicalDevice.Index)
	}

	supported, _, err := p.surface.PhysicalDeviceSurfaceSupport(physicalDevice.Core, queueFamilyIndex)
	return supported, err
}
