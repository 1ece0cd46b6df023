package gpu

type Extent struct {
	Width  int
	Height int
}

type Offset struct {
	X int
	Y int
}

type ImageCreateInfo struct {
	Format ImageFormat
	Extent Extent
	Usage  ImageUsage
}

type SamplerCreateInfo struct {
	MinFilter    Filter
	MagFilter    Filter
	AddressModeU AddressMode
	AddressModeV AddressMode
	AddressModeW AddressMode
}

type AttachmentDescription struct {
	Format  ImageFormat
	LoadOp  LoadOp
	StoreOp StoreOp
	// Present marks the attachment as a swapchain image that is handed to the presentation engine
	// after the pass
	Present bool
}

// RenderPassCreateInfo describes a single-subpass render pass. Color attachments are bound in order;
// DepthAttachment, if set, follows them.
type RenderPassCreateInfo struct {
	ColorAttachments []AttachmentDescription
	DepthAttachment  *AttachmentDescription
}
