package vkdevice

import (
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
)

// batchResourceList holds a reference to every resource used by one queue submission, together
// with the fence that signals the submission's completion
type batchResourceList struct {
	fence     vulkan.Fence
	resources []batchResource
}

func newBatchResourceList(fence vulkan.Fence, capacity int) *batchResourceList {
	return &batchResourceList{
		fence:     fence,
		resources: make([]batchResource, 0, capacity),
	}
}

func (l *batchResourceList) add(res batchResource) {
	res.retain()
	l.resources = append(l.resources, res)
}

// release drops every reference the batch holds and destroys its fence. The list cannot be used
// afterward.
func (l *batchResourceList) release() {
	for _, res := range l.resources {
		res.Release()
	}
	l.resources = nil

	if l.fence != nil {
		l.fence.Destroy()
		l.fence = nil
	}
}
