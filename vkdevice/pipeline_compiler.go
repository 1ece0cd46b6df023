package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
)

// PipelineCompiler turns SPIR-V into shader modules. Every module keeps its compiler alive.
type PipelineCompiler struct {
	resource

	device vulkan.Device
}

var _ gpu.PipelineCompiler = &PipelineCompiler{}

func (c *PipelineCompiler) CompileShader(code []uint32) (gpu.ShaderModule, error) {
	if len(code) == 0 {
		return nil, errors.New("shader code is empty")
	}

	module, err := c.device.CreateShaderModule(code)
	if err != nil {
		return nil, errors.Wrap(err, "could not create shader module")
	}

	c.retain()
	shader := &ShaderModule{
		compiler: c,
		module:   module,
	}
	shader.refs.Init()
	return shader, nil
}

func (c *PipelineCompiler) Release() {
	c.refs.Release()
}

type ShaderModule struct {
	resource

	compiler *PipelineCompiler
	module   vulkan.ShaderModule
}

var _ gpu.ShaderModule = &ShaderModule{}

// Module is the driver shader module
func (m *ShaderModule) Module() vulkan.ShaderModule {
	return m.module
}

func (m *ShaderModule) Release() {
	if !m.refs.Release() {
		return
	}

	m.module.Destroy()
	m.compiler.Release()
}
