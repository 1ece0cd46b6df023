package vkdevice

import (
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
)

type Semaphore struct {
	resource

	semaphore vulkan.Semaphore
}

var _ gpu.Semaphore = &Semaphore{}

func newSemaphore(semaphore vulkan.Semaphore) *Semaphore {
	s := &Semaphore{semaphore: semaphore}
	s.refs.Init()
	return s
}

// Semaphore is the driver semaphore
func (s *Semaphore) Semaphore() vulkan.Semaphore {
	return s.semaphore
}

func (s *Semaphore) Release() {
	if s.refs.Release() {
		s.semaphore.Destroy()
	}
}
