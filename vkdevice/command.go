package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
)

// CommandPool allocates graphics command lists. Command lists keep their pool alive.
type CommandPool struct {
	resource

	pool vulkan.CommandPool
}

var _ gpu.CommandPool = &CommandPool{}

func (p *CommandPool) CreateGraphicsCommandList() (gpu.GraphicsCommandList, error) {
	buffers, err := p.pool.AllocateCommandBuffers(1)
	if err != nil {
		return nil, errors.Wrap(err, "could not allocate command buffer")
	}
	if len(buffers) != 1 {
		return nil, errors.AssertionFailedf("requested 1 command buffer but received %d", len(buffers))
	}

	p.retain()
	list := &CommandList{
		pool:   p,
		buffer: buffers[0],
	}
	list.refs.Init()
	return list, nil
}

func (p *CommandPool) Release() {
	if p.refs.Release() {
		p.pool.Destroy()
	}
}

// CommandList is a primary command buffer on the graphics queue. Resources passed to Track stay
// alive until the list is re-recorded or released.
type CommandList struct {
	resource

	pool    *CommandPool
	buffer  vulkan.CommandBuffer
	tracked []batchResource
}

var _ gpu.GraphicsCommandList = &CommandList{}

// Begin starts recording. Resources tracked during the previous recording are released.
func (l *CommandList) Begin() error {
	l.releaseTracked()
	return l.buffer.Begin()
}

func (l *CommandList) End() error {
	return l.buffer.End()
}

func (l *CommandList) Track(resources ...gpu.Resource) {
	for _, res := range resources {
		tracked := asBatchResource(res)
		tracked.retain()
		l.tracked = append(l.tracked, tracked)
	}
}

// CommandBuffer is the driver command buffer
func (l *CommandList) CommandBuffer() vulkan.CommandBuffer {
	return l.buffer
}

// CoreCommandBuffer exposes the command buffer for recording with vkngwrapper. It returns false when
// the device was not created with the system loader.
func (l *CommandList) CoreCommandBuffer() (core1_0.CommandBuffer, bool) {
	return vulkan.CoreCommandBuffer(l.buffer)
}

func (l *CommandList) releaseTracked() {
	for _, res := range l.tracked {
		res.Release()
	}
	l.tracked = nil
}

func (l *CommandList) Release() {
	if !l.refs.Release() {
		return
	}

	l.buffer.Free()
	l.releaseTracked()
	l.pool.Release()
}

func commandPoolCreateInfo(queueFamilyIndex int) core1_0.CommandPoolCreateInfo {
	return core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: queueFamilyIndex,
	}
}
