package framegraph

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// DeviceHandle provides GPU device access from the host application.
//
// The graph RECEIVES the device from the host, it does not create one:
// the host owns the instance, adapter, surface, and swapchain, and hands
// the graph a shared device through this interface. DeviceHandle is an
// alias for gpucontext.DeviceProvider so any provider from the
// gpucontext ecosystem plugs in directly.
type DeviceHandle = gpucontext.DeviceProvider

// HalFromProvider extracts the raw hal.Device and hal.Queue from a
// device provider. Providers that run on a wgpu HAL backend additionally
// expose HalDevice() any and HalQueue() any; graph compilation needs the
// raw HAL types because render pass descriptors and texture barriers are
// a HAL-level concern.
//
// Fails with ErrInvalidDescriptor when the provider does not expose HAL
// types (for example a software-only provider).
func HalFromProvider(provider any) (hal.Device, hal.Queue, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, nil, fmt.Errorf("%w: provider does not expose HAL types", ErrInvalidDescriptor)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrInvalidDescriptor)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrInvalidDescriptor)
	}
	return device, queue, nil
}
