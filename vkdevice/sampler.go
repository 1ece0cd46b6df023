package vkdevice

import (
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
)

type Sampler struct {
	resource

	sampler vulkan.Sampler
}

var _ gpu.Sampler = &Sampler{}

func samplerCreateInfo(info gpu.SamplerCreateInfo) (core1_0.SamplerCreateInfo, error) {
	var createInfo core1_0.SamplerCreateInfo
	var err error

	createInfo.MinFilter, err = translateFilter(info.MinFilter)
	if err != nil {
		return createInfo, err
	}
	createInfo.MagFilter, err = translateFilter(info.MagFilter)
	if err != nil {
		return createInfo, err
	}
	createInfo.AddressModeU, err = translateAddressMode(info.AddressModeU)
	if err != nil {
		return createInfo, err
	}
	createInfo.AddressModeV, err = translateAddressMode(info.AddressModeV)
	if err != nil {
		return createInfo, err
	}
	createInfo.AddressModeW, err = translateAddressMode(info.AddressModeW)
	if err != nil {
		return createInfo, err
	}

	createInfo.MipmapMode = core1_0.SamplerMipmapModeLinear
	return createInfo, nil
}

// Sampler is the driver sampler
func (s *Sampler) Sampler() vulkan.Sampler {
	return s.sampler
}

func (s *Sampler) Release() {
	if s.refs.Release() {
		s.sampler.Destroy()
	}
}
