package vkdevice

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
	"golang.org/x/exp/slog"
)

func (d *Device) SubmitGraphicsJobs(jobs []gpu.GraphicsCommandList, waitSemaphores []gpu.Semaphore, waitStages []gpu.PipelineStage, signalSemaphores []gpu.Semaphore) error {
	d.logger.Debug("Device::SubmitGraphicsJobs", slog.Int("jobs", len(jobs)))

	err := d.checkReady()
	if err != nil {
		return err
	}

	if len(waitSemaphores) != len(waitStages) {
		return errors.Newf("%d wait semaphores were provided with %d wait stages", len(waitSemaphores), len(waitStages))
	}

	info := vulkan.SubmitInfo{
		CommandBuffers:   make([]vulkan.CommandBuffer, 0, len(jobs)),
		WaitSemaphores:   make([]vulkan.Semaphore, 0, len(waitSemaphores)),
		WaitDstStageMask: make([]core1_0.PipelineStageFlags, 0, len(waitStages)),
		SignalSemaphores: make([]vulkan.Semaphore, 0, len(signalSemaphores)),
	}

	commandLists := make([]*CommandList, 0, len(jobs))
	for _, job := range jobs {
		list, ok := asBatchResource(job).(*CommandList)
		if !ok {
			panic(errors.AssertionFailedf("job of type %T is not a command list", job))
		}
		commandLists = append(commandLists, list)
		info.CommandBuffers = append(info.CommandBuffers, list.buffer)
	}

	waits := make([]*Semaphore, 0, len(waitSemaphores))
	for index, semaphore := range waitSemaphores {
		wait := downcastSemaphore(semaphore)
		waits = append(waits, wait)
		info.WaitSemaphores = append(info.WaitSemaphores, wait.semaphore)
		info.WaitDstStageMask = append(info.WaitDstStageMask, translatePipelineStage(waitStages[index]))
	}

	signals := make([]*Semaphore, 0, len(signalSemaphores))
	for _, semaphore := range signalSemaphores {
		signal := downcastSemaphore(semaphore)
		signals = append(signals, signal)
		info.SignalSemaphores = append(info.SignalSemaphores, signal.semaphore)
	}

	fence, err := d.device.CreateFence()
	if err != nil {
		return errors.Wrap(err, "could not create submission fence")
	}

	batch := newBatchResourceList(fence, len(commandLists)+len(waits)+len(signals))
	for _, list := range commandLists {
		batch.add(list)
	}
	for _, semaphore := range waits {
		batch.add(semaphore)
	}
	for _, semaphore := range signals {
		batch.add(semaphore)
	}

	err = d.graphicsQueue.Submit(fence, info)
	if err != nil {
		batch.release()
		d.markFaulted(err)
		return errors.Mark(errors.Wrap(err, "queue submission failed"), ErrDeviceLost)
	}

	d.batches = append(d.batches, batch)
	return nil
}

func downcastSemaphore(semaphore gpu.Semaphore) *Semaphore {
	s, ok := asBatchResource(semaphore).(*Semaphore)
	if !ok {
		panic(errors.AssertionFailedf("resource of type %T is not a semaphore", semaphore))
	}
	return s
}

// ReclaimResources makes one non-blocking pass over outstanding submissions, in the order they
// were made, and releases every batch whose fence has signaled
func (d *Device) ReclaimResources() {
	d.logger.Debug("Device::ReclaimResources")

	remaining := d.batches[:0]
	for _, batch := range d.batches {
		signaled, err := batch.fence.Status()
		if err != nil {
			d.logger.LogAttrs(context.Background(), slog.LevelError, "could not query submission fence",
				slog.Any("error", err))
			d.markFaulted(err)
			remaining = append(remaining, batch)
			continue
		}

		if signaled {
			batch.release()
			continue
		}

		remaining = append(remaining, batch)
	}

	for index := len(remaining); index < len(d.batches); index++ {
		d.batches[index] = nil
	}
	d.batches = remaining
}

// OutstandingBatches is the number of submissions whose resources have not been reclaimed
func (d *Device) OutstandingBatches() int {
	return len(d.batches)
}

// WaitIdle blocks until the GPU has finished all submitted work. Resources are not reclaimed;
// call ReclaimResources afterward.
func (d *Device) WaitIdle() error {
	d.logger.Debug("Device::WaitIdle")

	if d.device == nil || d.state == DeviceStateDestroyed {
		return errors.Wrapf(ErrDeviceNotReady, "device is in state %s", d.state)
	}

	err := d.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "could not wait for the device to go idle")
	}
	return nil
}
