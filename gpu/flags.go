package gpu

import "github.com/vkngwrapper/core/v2/common"

// BufferUsage describes the roles a buffer may play in GPU work
type BufferUsage int32

var bufferUsageMapping = common.NewFlagStringMapping[BufferUsage]()

func (f BufferUsage) Register(str string) {
	bufferUsageMapping.Register(f, str)
}
func (f BufferUsage) String() string {
	return bufferUsageMapping.FlagsToString(f)
}

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
)

// ImageUsage describes the roles an image may play in GPU work
type ImageUsage int32

var imageUsageMapping = common.NewFlagStringMapping[ImageUsage]()

func (f ImageUsage) Register(str string) {
	imageUsageMapping.Register(f, str)
}
func (f ImageUsage) String() string {
	return imageUsageMapping.FlagsToString(f)
}

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
)

// PipelineStage identifies the point in the pipeline at which a wait semaphore must be signaled
type PipelineStage int32

var pipelineStageMapping = common.NewFlagStringMapping[PipelineStage]()

func (f PipelineStage) Register(str string) {
	pipelineStageMapping.Register(f, str)
}
func (f PipelineStage) String() string {
	return pipelineStageMapping.FlagsToString(f)
}

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageVertexInput
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageColorAttachmentOutput
	PipelineStageTransfer
	PipelineStageBottomOfPipe
)

func init() {
	BufferUsageVertex.Register("BufferUsageVertex")
	BufferUsageIndex.Register("BufferUsageIndex")
	BufferUsageUniform.Register("BufferUsageUniform")

	ImageUsageSampled.Register("ImageUsageSampled")
	ImageUsageTransferDst.Register("ImageUsageTransferDst")
	ImageUsageColorAttachment.Register("ImageUsageColorAttachment")
	ImageUsageDepthStencilAttachment.Register("ImageUsageDepthStencilAttachment")

	PipelineStageTopOfPipe.Register("PipelineStageTopOfPipe")
	PipelineStageVertexInput.Register("PipelineStageVertexInput")
	PipelineStageVertexShader.Register("PipelineStageVertexShader")
	PipelineStageFragmentShader.Register("PipelineStageFragmentShader")
	PipelineStageColorAttachmentOutput.Register("PipelineStageColorAttachmentOutput")
	PipelineStageTransfer.Register("PipelineStageTransfer")
	PipelineStageBottomOfPipe.Register("PipelineStageBottomOfPipe")
}
