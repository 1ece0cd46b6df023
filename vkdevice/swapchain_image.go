package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
	"github.com/vkngwrapper/gpudevice/memutils"
)

// SwapchainImage wraps an image owned by the presentation engine. It can be viewed and rendered
// to, but its memory is not host visible.
type SwapchainImage struct {
	resource

	device vulkan.Device
	image  vulkan.Image
	format gpu.ImageFormat
	extent gpu.Extent
}

var _ gpu.Image = &SwapchainImage{}

func (i *SwapchainImage) Format() gpu.ImageFormat {
	return i.format
}

func (i *SwapchainImage) Extent() gpu.Extent {
	return i.extent
}

func (i *SwapchainImage) Upload(data []byte) error {
	return errors.Wrap(memutils.ErrUnsupported, "swapchain images cannot be uploaded to")
}

func (i *SwapchainImage) UploadRegion(data []byte, offset gpu.Offset, extent gpu.Extent) error {
	return errors.Wrap(memutils.ErrUnsupported, "swapchain images cannot be uploaded to")
}

func (i *SwapchainImage) CreateView() (gpu.ImageView, error) {
	view, err := createImageView(i.device, i, i.image, i.format)
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (i *SwapchainImage) driverImage() vulkan.Image {
	return i.image
}

// Release drops the wrapper. The driver image belongs to the swapchain and is not destroyed.
func (i *SwapchainImage) Release() {
	i.refs.Release()
}
