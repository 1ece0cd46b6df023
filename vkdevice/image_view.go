package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
)

type imageResource interface {
	gpu.Image
	retain()
	driverImage() vulkan.Image
}

// ImageView is a 2D view over a whole image. The view keeps its image alive.
type ImageView struct {
	resource

	image imageResource
	view  vulkan.ImageView
}

var _ gpu.ImageView = &ImageView{}

func createImageView(device vulkan.Device, image imageResource, driverImage vulkan.Image, format gpu.ImageFormat) (*ImageView, error) {
	vkFormat, err := translateImageFormat(format)
	if err != nil {
		return nil, err
	}

	view, err := device.CreateImageView(vulkan.ImageViewCreateInfo{
		Image:    driverImage,
		ViewType: core1_0.ImageViewType2D,
		Format:   vkFormat,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspectForFormat(format),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create image view")
	}

	image.retain()
	imageView := &ImageView{
		image: image,
		view:  view,
	}
	imageView.refs.Init()
	return imageView, nil
}

func (v *ImageView) Image() gpu.Image {
	return v.image
}

// View is the driver image view
func (v *ImageView) View() vulkan.ImageView {
	return v.view
}

func (v *ImageView) Release() {
	if !v.refs.Release() {
		return
	}

	v.view.Destroy()
	v.image.Release()
}
