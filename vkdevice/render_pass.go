package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
)

// RenderPass is a single graphics subpass over a fixed set of attachments
type RenderPass struct {
	resource

	renderPass       vulkan.RenderPass
	colorAttachments int
	hasDepth         bool
}

var _ gpu.RenderPass = &RenderPass{}

func translateAttachment(attachment gpu.AttachmentDescription, depth bool) (core1_0.AttachmentDescription, error) {
	format, err := translateImageFormat(attachment.Format)
	if err != nil {
		return core1_0.AttachmentDescription{}, err
	}
	if depth != isDepthFormat(attachment.Format) {
		return core1_0.AttachmentDescription{}, errors.Newf("format %s cannot be used for this attachment", attachment.Format)
	}

	loadOp, err := translateLoadOp(attachment.LoadOp)
	if err != nil {
		return core1_0.AttachmentDescription{}, err
	}
	storeOp, err := translateStoreOp(attachment.StoreOp)
	if err != nil {
		return core1_0.AttachmentDescription{}, err
	}

	finalLayout := core1_0.ImageLayoutColorAttachmentOptimal
	if depth {
		finalLayout = core1_0.ImageLayoutDepthStencilAttachmentOptimal
	} else if attachment.Present {
		finalLayout = khr_swapchain.ImageLayoutPresentSrc
	}

	initialLayout := core1_0.ImageLayoutUndefined
	if attachment.LoadOp == gpu.LoadOpLoad {
		initialLayout = finalLayout
	}

	return core1_0.AttachmentDescription{
		Format:         format,
		Samples:        core1_0.Samples1,
		LoadOp:         loadOp,
		StoreOp:        storeOp,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  initialLayout,
		FinalLayout:    finalLayout,
	}, nil
}

func renderPassCreateInfo(info gpu.RenderPassCreateInfo) (core1_0.RenderPassCreateInfo, error) {
	if len(info.ColorAttachments) == 0 && info.DepthAttachment == nil {
		return core1_0.RenderPassCreateInfo{}, errors.New("render pass has no attachments")
	}

	var attachments []core1_0.AttachmentDescription
	var colorReferences []core1_0.AttachmentReference
	for index, color := range info.ColorAttachments {
		attachment, err := translateAttachment(color, false)
		if err != nil {
			return core1_0.RenderPassCreateInfo{}, errors.Wrapf(err, "color attachment %d", index)
		}

		attachments = append(attachments, attachment)
		colorReferences = append(colorReferences, core1_0.AttachmentReference{
			Attachment: index,
			Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
		ColorAttachments:  colorReferences,
	}

	if info.DepthAttachment != nil {
		attachment, err := translateAttachment(*info.DepthAttachment, true)
		if err != nil {
			return core1_0.RenderPassCreateInfo{}, errors.Wrap(err, "depth attachment")
		}

		attachments = append(attachments, attachment)
		subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: len(attachments) - 1,
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	return core1_0.RenderPassCreateInfo{
		Attachments: attachments,
		Subpasses:   []core1_0.SubpassDescription{subpass},
	}, nil
}

// RenderPass is the driver render pass
func (r *RenderPass) RenderPass() vulkan.RenderPass {
	return r.renderPass
}

// AttachmentCount is the number of views a framebuffer must provide for this pass
func (r *RenderPass) AttachmentCount() int {
	count := r.colorAttachments
	if r.hasDepth {
		count++
	}
	return count
}

func (r *RenderPass) Release() {
	if r.refs.Release() {
		r.renderPass.Destroy()
	}
}
