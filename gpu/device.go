package gpu

// Device is the engine's handle to a GPU. All operations are expected to happen on a single render
// thread.
type Device interface {
	Backend() Backend

	CreatePipelineCompiler() (PipelineCompiler, error)
	CreateCommandPool() (CommandPool, error)
	CreateRenderPass(info RenderPassCreateInfo) (RenderPass, error)
	CreateFramebuffer(size Extent, views ...ImageView) (Framebuffer, error)
	CreateSemaphore() (Semaphore, error)
	CreateBuffer(usage BufferUsage) (Buffer, error)
	CreateImage(info ImageCreateInfo) (Image, error)
	CreateSampler(info SamplerCreateInfo) (Sampler, error)

	// SubmitGraphicsJobs sends recorded command lists to the graphics queue. waitStages must have one
	// entry per wait semaphore. Every resource passed in is kept alive until the GPU finishes the work.
	SubmitGraphicsJobs(jobs []GraphicsCommandList, waitSemaphores []Semaphore, waitStages []PipelineStage, signalSemaphores []Semaphore) error
	// ReclaimResources releases the resources held by submissions the GPU has finished. It never blocks.
	ReclaimResources()
	// WaitIdle blocks until all submitted work has finished
	WaitIdle() error
	Destroy() error
}
