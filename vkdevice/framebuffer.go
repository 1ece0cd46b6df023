package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
)

type framebufferEntry struct {
	renderPass  *RenderPass
	framebuffer vulkan.Framebuffer
}

// Framebuffer binds a set of image views. The driver framebuffer for a render pass is created the
// first time the pair is used and cached until the Framebuffer is released.
type Framebuffer struct {
	resource

	device vulkan.Device
	size   gpu.Extent
	views  []*ImageView

	entries []framebufferEntry
	cache   *swiss.Map[*RenderPass, int]
}

var _ gpu.Framebuffer = &Framebuffer{}

func newFramebuffer(device vulkan.Device, size gpu.Extent, views []gpu.ImageView) (*Framebuffer, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, errors.Newf("invalid framebuffer size %dx%d", size.Width, size.Height)
	}
	if len(views) == 0 {
		return nil, errors.New("framebuffer has no attachments")
	}

	imageViews := make([]*ImageView, 0, len(views))
	for _, view := range views {
		imageView, ok := asBatchResource(view).(*ImageView)
		if !ok {
			panic(errors.AssertionFailedf("framebuffer attachment of type %T is not an image view", view))
		}
		imageViews = append(imageViews, imageView)
	}

	for _, view := range imageViews {
		view.retain()
	}

	framebuffer := &Framebuffer{
		device: device,
		size:   size,
		views:  imageViews,
		cache:  swiss.NewMap[*RenderPass, int](4),
	}
	framebuffer.refs.Init()
	return framebuffer, nil
}

func (f *Framebuffer) Size() gpu.Extent {
	return f.size
}

func (f *Framebuffer) Views() []gpu.ImageView {
	views := make([]gpu.ImageView, 0, len(f.views))
	for _, view := range f.views {
		views = append(views, view)
	}
	return views
}

// ForRenderPass retrieves the driver framebuffer binding these views to a render pass, creating it
// on first use
func (f *Framebuffer) ForRenderPass(renderPass gpu.RenderPass) (vulkan.Framebuffer, error) {
	pass, ok := asBatchResource(renderPass).(*RenderPass)
	if !ok {
		panic(errors.AssertionFailedf("resource of type %T is not a render pass", renderPass))
	}

	index, cached := f.cache.Get(pass)
	if cached {
		return f.entries[index].framebuffer, nil
	}

	if pass.AttachmentCount() != len(f.views) {
		return nil, errors.Newf("render pass expects %d attachments but the framebuffer has %d", pass.AttachmentCount(), len(f.views))
	}

	attachments := make([]vulkan.ImageView, 0, len(f.views))
	for _, view := range f.views {
		attachments = append(attachments, view.view)
	}

	framebuffer, err := f.device.CreateFramebuffer(vulkan.FramebufferCreateInfo{
		RenderPass:  pass.renderPass,
		Attachments: attachments,
		Width:       f.size.Width,
		Height:      f.size.Height,
		Layers:      1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create framebuffer")
	}

	pass.retain()
	f.cache.Put(pass, len(f.entries))
	f.entries = append(f.entries, framebufferEntry{
		renderPass:  pass,
		framebuffer: framebuffer,
	})

	return framebuffer, nil
}

func (f *Framebuffer) Release() {
	if !f.refs.Release() {
		return
	}

	for _, entry := range f.entries {
		entry.framebuffer.Destroy()
		entry.renderPass.Release()
	}
	f.entries = nil
	f.cache = nil

	for _, view := range f.views {
		view.Release()
	}
	f.views = nil
}
