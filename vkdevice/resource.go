package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/utils"
)

// resource carries the reference count every object handed out by a Device shares. The creator
// holds the first reference; batches and dependent objects retain their own.
type resource struct {
	refs utils.RefCount
}

func (r *resource) Backend() gpu.Backend {
	return gpu.BackendVulkan
}

func (r *resource) retain() {
	r.refs.Retain()
}

// References is the number of live references to the object
func (r *resource) References() int {
	return r.refs.Count()
}

// batchResource is a resource that a submission can keep alive
type batchResource interface {
	gpu.Resource
	retain()
}

// asBatchResource downcasts a resource handed to the device. Resources from another backend, or
// foreign implementations of the gpu interfaces, cannot be tracked by a batch.
func asBatchResource(res gpu.Resource) batchResource {
	if res == nil {
		panic(errors.AssertionFailedf("nil resource"))
	}
	if res.Backend() != gpu.BackendVulkan {
		panic(errors.AssertionFailedf("resource of backend %s passed to a vulkan device", res.Backend()))
	}

	tracked, ok := res.(batchResource)
	if !ok {
		panic(errors.AssertionFailedf("resource of type %T was not created by a vulkan device", res))
	}
	return tracked
}
