package gpu

type Buffer interface {
	Resource
	Usage() BufferUsage
	// Size is the number of bytes reserved for the buffer, or 0 if no range has been reserved yet
	Size() int
	// Allocate reserves size bytes for the buffer. A buffer may only be allocated once.
	Allocate(size int) error
	// Upload copies data into the buffer, reserving a range sized to data if none is reserved yet
	Upload(data []byte) error
}

type Image interface {
	Resource
	Format() ImageFormat
	Extent() Extent
	Upload(data []byte) error
	UploadRegion(data []byte, offset Offset, extent Extent) error
	CreateView() (ImageView, error)
}

type ImageView interface {
	Resource
	Image() Image
}

type Semaphore interface {
	Resource
}

type Sampler interface {
	Resource
}

type RenderPass interface {
	Resource
}

type Framebuffer interface {
	Resource
	Size() Extent
	Views() []ImageView
}

type ShaderModule interface {
	Resource
}

type PipelineCompiler interface {
	Resource
	// CompileShader wraps SPIR-V code in a shader module owned by the compiler
	CompileShader(code []uint32) (ShaderModule, error)
}

type GraphicsCommandList interface {
	Resource
	Begin() error
	End() error
	// Track keeps resources alive for as long as the command list is
	Track(resources ...Resource)
}

type CommandPool interface {
	Resource
	CreateGraphicsCommandList() (GraphicsCommandList, error)
}
