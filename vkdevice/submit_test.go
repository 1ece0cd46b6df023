package vkdevice

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpudevice/gpu"
	"go.uber.org/mock/gomock"
)

func TestSubmitChainedBatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	pool, err := device.CreateCommandPool()
	require.NoError(t, err)

	semaphore, err := device.CreateSemaphore()
	require.NoError(t, err)

	first := recordNoop(t, pool)
	require.NoError(t, device.SubmitGraphicsJobs([]gpu.GraphicsCommandList{first}, nil, nil, []gpu.Semaphore{semaphore}))

	second := recordNoop(t, pool)
	require.NoError(t, device.SubmitGraphicsJobs([]gpu.GraphicsCommandList{second}, []gpu.Semaphore{semaphore}, []gpu.PipelineStage{gpu.PipelineStageTopOfPipe}, nil))

	require.Len(t, rig.submits, 2)
	require.Len(t, rig.submits[0].SignalSemaphores, 1)
	require.Equal(t, rig.submits[0].SignalSemaphores[0], rig.submits[1].WaitSemaphores[0])
	require.Equal(t, []core1_0.PipelineStageFlags{core1_0.PipelineStageTopOfPipe}, rig.submits[1].WaitDstStageMask)
	require.Equal(t, 2, device.OutstandingBatches())

	first.Release()
	second.Release()
	semaphore.Release()
	pool.Release()
	require.Equal(t, 0, rig.semaphoresDestroyed)
	require.Equal(t, 0, rig.commandBuffersFreed)

	require.NoError(t, device.WaitIdle())
	device.ReclaimResources()
	require.Equal(t, 0, device.OutstandingBatches())
	require.Equal(t, 1, rig.semaphoresDestroyed)
	require.Equal(t, 2, rig.commandBuffersFreed)
	require.Equal(t, 1, rig.commandPoolsFreed)
	for _, fence := range rig.fences {
		require.Equal(t, 1, fence.destroyed)
	}

	require.NoError(t, device.Destroy())
}

func TestReclaimManyBatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	pool, err := device.CreateCommandPool()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		list := recordNoop(t, pool)
		require.NoError(t, device.SubmitGraphicsJobs([]gpu.GraphicsCommandList{list}, nil, nil, nil))
		list.Release()
	}
	require.Equal(t, 10, device.OutstandingBatches())

	device.ReclaimResources()
	require.Equal(t, 10, device.OutstandingBatches())

	// Fences signal out of order
	rig.fences[3].signaled = true
	rig.fences[7].signaled = true
	device.ReclaimResources()
	require.Equal(t, 8, device.OutstandingBatches())
	require.Equal(t, 2, rig.commandBuffersFreed)

	require.NoError(t, device.WaitIdle())
	device.ReclaimResources()
	require.Equal(t, 0, device.OutstandingBatches())
	require.Equal(t, 10, rig.commandBuffersFreed)

	pool.Release()
	require.NoError(t, device.Destroy())
}

func TestBatchRetainsResources(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, device := readyDevice(t, ctrl, defaultSetup())

	buffer, err := device.CreateBuffer(gpu.BufferUsageVertex)
	require.NoError(t, err)
	require.NoError(t, buffer.Upload(make([]byte, 1024)))

	image, err := device.CreateImage(gpu.ImageCreateInfo{
		Format: gpu.ImageFormatRGBA8Unorm,
		Extent: gpu.Extent{Width: 4, Height: 4},
	})
	require.NoError(t, err)

	pool, err := device.CreateCommandPool()
	require.NoError(t, err)
	list := recordNoop(t, pool)
	list.Track(buffer, image)

	require.NoError(t, device.SubmitGraphicsJobs([]gpu.GraphicsCommandList{list}, nil, nil, nil))

	list.Release()
	buffer.Release()
	image.Release()
	pool.Release()

	require.Equal(t, 1, device.BufferPool().Statistics().AllocationCount)
	require.Equal(t, 1, device.ImagePool().Statistics().AllocationCount)

	device.ReclaimResources()
	require.Equal(t, 1, device.BufferPool().Statistics().AllocationCount)

	require.NoError(t, device.WaitIdle())
	device.ReclaimResources()
	require.Equal(t, 0, device.BufferPool().Statistics().AllocationCount)
	require.Equal(t, 0, device.ImagePool().Statistics().AllocationCount)

	require.NoError(t, device.Destroy())
}

func TestReclaimWithoutSubmissions(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, device := readyDevice(t, ctrl, defaultSetup())

	for i := 0; i < 100; i++ {
		device.ReclaimResources()
	}
	require.Equal(t, 0, device.OutstandingBatches())

	require.NoError(t, device.Destroy())
}

func TestWaitIdleRepeatedly(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	pool, err := device.CreateCommandPool()
	require.NoError(t, err)
	list := recordNoop(t, pool)
	require.NoError(t, device.SubmitGraphicsJobs([]gpu.GraphicsCommandList{list}, nil, nil, nil))

	for i := 0; i < 3; i++ {
		require.NoError(t, device.WaitIdle())
		for _, fence := range rig.fences {
			require.True(t, fence.signaled)
		}
	}

	list.Release()
	pool.Release()
	require.NoError(t, device.Destroy())
	require.Equal(t, 1, rig.commandBuffersFreed)
}

func TestSubmitRejectsMismatchedWaits(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	semaphore, err := device.CreateSemaphore()
	require.NoError(t, err)

	err = device.SubmitGraphicsJobs(nil, []gpu.Semaphore{semaphore}, nil, nil)
	require.Error(t, err)
	require.Empty(t, rig.submits)
	require.Empty(t, rig.fences)

	semaphore.Release()
	require.NoError(t, device.Destroy())
}

func TestSubmitFailureFaultsDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())
	rig.submitErr = core1_0.VKErrorDeviceLost.ToError()

	semaphore, err := device.CreateSemaphore()
	require.NoError(t, err)

	err = device.SubmitGraphicsJobs(nil, nil, nil, []gpu.Semaphore{semaphore})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDeviceLost))
	require.Equal(t, 0, device.OutstandingBatches())
	require.Equal(t, 1, rig.fences[0].destroyed)
	require.Equal(t, 1, semaphore.(*Semaphore).References())

	_, err = device.CreateSemaphore()
	require.True(t, errors.Is(err, ErrDeviceLost))
	require.NotNil(t, device.Fault())

	semaphore.Release()
	require.NoError(t, device.Destroy())
}

func TestReclaimFenceErrorFaultsDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	rig, device := readyDevice(t, ctrl, defaultSetup())

	pool, err := device.CreateCommandPool()
	require.NoError(t, err)
	list := recordNoop(t, pool)
	require.NoError(t, device.SubmitGraphicsJobs([]gpu.GraphicsCommandList{list}, nil, nil, nil))

	rig.fences[0].err = core1_0.VKErrorDeviceLost.ToError()
	device.ReclaimResources()

	require.Equal(t, 1, device.OutstandingBatches())
	require.Contains(t, rig.logs.String(), "could not query submission fence")
	require.NotNil(t, device.Fault())

	err = device.SubmitGraphicsJobs([]gpu.GraphicsCommandList{list}, nil, nil, nil)
	require.True(t, errors.Is(err, ErrDeviceLost))

	list.Release()
	pool.Release()
	require.NoError(t, device.Destroy())
	require.Equal(t, 1, rig.commandBuffersFreed)
}

type foreignResource struct{}

func (foreignResource) Backend() gpu.Backend { return gpu.BackendUnknown }
func (foreignResource) Release() {}
func (foreignResource) Begin() error { return nil }
func (foreignResource) End() error { return nil }
func (foreignResource) Track(...gpu.Resource) {}

func TestSubmitForeignResourcePanics(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, device := readyDevice(t, ctrl, defaultSetup())

	require.Panics(t, func() {
		_ = device.SubmitGraphicsJobs([]gpu.GraphicsCommandList{foreignResource{}}, nil, nil, nil)
	})

	pool, err := device.CreateCommandPool()
	require.NoError(t, err)
	list := recordNoop(t, pool)
	require.Panics(t, func() {
		list.Track(foreignResource{})
	})

	list.Release()
	pool.Release()
	require.NoError(t, device.Destroy())
}
