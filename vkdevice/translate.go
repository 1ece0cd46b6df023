package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/memutils"
)

var bufferUsages = map[gpu.BufferUsage]core1_0.BufferUsageFlags{
	gpu.BufferUsageVertex:  core1_0.BufferUsageVertexBuffer,
	gpu.BufferUsageIndex:   core1_0.BufferUsageIndexBuffer,
	gpu.BufferUsageUniform: core1_0.BufferUsageUniformBuffer,
}

var imageUsages = map[gpu.ImageUsage]core1_0.ImageUsageFlags{
	gpu.ImageUsageSampled:                core1_0.ImageUsageSampled,
	gpu.ImageUsageTransferDst:            core1_0.ImageUsageTransferDst,
	gpu.ImageUsageColorAttachment:        core1_0.ImageUsageColorAttachment,
	gpu.ImageUsageDepthStencilAttachment: core1_0.ImageUsageDepthStencilAttachment,
}

var pipelineStages = map[gpu.PipelineStage]core1_0.PipelineStageFlags{
	gpu.PipelineStageTopOfPipe:             core1_0.PipelineStageTopOfPipe,
	gpu.PipelineStageVertexInput:           core1_0.PipelineStageVertexInput,
	gpu.PipelineStageVertexShader:          core1_0.PipelineStageVertexShader,
	gpu.PipelineStageFragmentShader:        core1_0.PipelineStageFragmentShader,
	gpu.PipelineStageColorAttachmentOutput: core1_0.PipelineStageColorAttachmentOutput,
	gpu.PipelineStageTransfer:              core1_0.PipelineStageTransfer,
	gpu.PipelineStageBottomOfPipe:          core1_0.PipelineStageBottomOfPipe,
}

var imageFormats = map[gpu.ImageFormat]core1_0.Format{
	gpu.ImageFormatR8Unorm:     core1_0.FormatR8UnsignedNormalized,
	gpu.ImageFormatRGBA8Unorm:  core1_0.FormatR8G8B8A8UnsignedNormalized,
	gpu.ImageFormatRGBA8SRGB:   core1_0.FormatR8G8B8A8SRGB,
	gpu.ImageFormatBGRA8Unorm:  core1_0.FormatB8G8R8A8UnsignedNormalized,
	gpu.ImageFormatBGRA8SRGB:   core1_0.FormatB8G8R8A8SRGB,
	gpu.ImageFormatRGBA16Float: core1_0.FormatR16G16B16A16SignedFloat,
	gpu.ImageFormatRGBA32Float: core1_0.FormatR32G32B32A32SignedFloat,
	gpu.ImageFormatD32Float:    core1_0.FormatD32SignedFloat,
	gpu.ImageFormatD24UnormS8:  core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
}

var filters = map[gpu.Filter]core1_0.Filter{
	gpu.FilterNearest: core1_0.FilterNearest,
	gpu.FilterLinear:  core1_0.FilterLinear,
}

var addressModes = map[gpu.AddressMode]core1_0.SamplerAddressMode{
	gpu.AddressModeRepeat:         core1_0.SamplerAddressModeRepeat,
	gpu.AddressModeMirroredRepeat: core1_0.SamplerAddressModeMirroredRepeat,
	gpu.AddressModeClampToEdge:    core1_0.SamplerAddressModeClampToEdge,
	gpu.AddressModeClampToBorder:  core1_0.SamplerAddressModeClampToBorder,
}

var loadOps = map[gpu.LoadOp]core1_0.AttachmentLoadOp{
	gpu.LoadOpLoad:     core1_0.AttachmentLoadOpLoad,
	gpu.LoadOpClear:    core1_0.AttachmentLoadOpClear,
	gpu.LoadOpDontCare: core1_0.AttachmentLoadOpDontCare,
}

var storeOps = map[gpu.StoreOp]core1_0.AttachmentStoreOp{
	gpu.StoreOpStore:    core1_0.AttachmentStoreOpStore,
	gpu.StoreOpDontCare: core1_0.AttachmentStoreOpDontCare,
}

func translateBufferUsage(usage gpu.BufferUsage) core1_0.BufferUsageFlags {
	var flags core1_0.BufferUsageFlags
	for bit, flag := range bufferUsages {
		if usage&bit != 0 {
			flags |= flag
		}
	}
	return flags
}

func translateImageUsage(usage gpu.ImageUsage) core1_0.ImageUsageFlags {
	var flags core1_0.ImageUsageFlags
	for bit, flag := range imageUsages {
		if usage&bit != 0 {
			flags |= flag
		}
	}
	return flags
}

func translatePipelineStage(stage gpu.PipelineStage) core1_0.PipelineStageFlags {
	var flags core1_0.PipelineStageFlags
	for bit, flag := range pipelineStages {
		if stage&bit != 0 {
			flags |= flag
		}
	}
	return flags
}

func translateImageFormat(format gpu.ImageFormat) (core1_0.Format, error) {
	vkFormat, ok := imageFormats[format]
	if !ok {
		return 0, errors.Wrapf(memutils.ErrUnsupported, "image format %s", format)
	}
	return vkFormat, nil
}

func isDepthFormat(format gpu.ImageFormat) bool {
	return format == gpu.ImageFormatD32Float || format == gpu.ImageFormatD24UnormS8
}

func aspectForFormat(format gpu.ImageFormat) core1_0.ImageAspectFlags {
	switch format {
	case gpu.ImageFormatD32Float:
		return core1_0.ImageAspectDepth
	case gpu.ImageFormatD24UnormS8:
		return core1_0.ImageAspectDepth | core1_0.ImageAspectStencil
	}
	return core1_0.ImageAspectColor
}

func translateFilter(filter gpu.Filter) (core1_0.Filter, error) {
	vkFilter, ok := filters[filter]
	if !ok {
		return 0, errors.Newf("unknown filter %d", filter)
	}
	return vkFilter, nil
}

func translateAddressMode(mode gpu.AddressMode) (core1_0.SamplerAddressMode, error) {
	vkMode, ok := addressModes[mode]
	if !ok {
		return 0, errors.Newf("unknown address mode %d", mode)
	}
	return vkMode, nil
}

func translateLoadOp(op gpu.LoadOp) (core1_0.AttachmentLoadOp, error) {
	vkOp, ok := loadOps[op]
	if !ok {
		return 0, errors.Newf("unknown load op %d", op)
	}
	return vkOp, nil
}

func translateStoreOp(op gpu.StoreOp) (core1_0.AttachmentStoreOp, error) {
	vkOp, ok := storeOps[op]
	if !ok {
		return 0, errors.Newf("unknown store op %d", op)
	}
	return vkOp, nil
}
