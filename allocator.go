package framegraph

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// AllocatorConfig configures an Allocator.
//
// Field defaults:
//   - BudgetBytes: 0 disables budget enforcement (allocation is bounded
//     only by the device).
type AllocatorConfig struct {
	// BudgetBytes is the maximum total image memory the allocator will
	// hand out. Zero means unlimited.
	BudgetBytes uint64
}

// AllocatorStats contains image memory usage statistics.
type AllocatorStats struct {
	// BudgetBytes is the configured budget (0 = unlimited).
	BudgetBytes uint64

	// UsedBytes is the currently allocated image memory.
	UsedBytes uint64

	// TextureCount is the number of live textures.
	TextureCount int
}

// String returns a human-readable summary of the stats.
func (s AllocatorStats) String() string {
	return fmt.Sprintf("Allocator[%d/%d bytes, %d textures]",
		s.UsedBytes, s.BudgetBytes, s.TextureCount)
}

// Allocator creates and tracks the physical images backing a graph.
//
// It wraps hal.Device texture creation with byte accounting and an
// optional budget: an allocation that would exceed the budget fails with
// ErrDeviceResourceExhausted before touching the device.
//
// An Allocator is long-lived. Create it once next to the device, pass it
// to every Build, and destroy it after the last compiled graph is gone;
// rebuilds reuse it so accounting spans the whole application. It is not
// a global: ownership is explicit.
//
// Allocator is safe for concurrent use, although the graph itself only
// calls it from the compile path.
type Allocator struct {
	mu     sync.Mutex
	device hal.Device
	budget uint64
	used   uint64
	sizes  map[hal.Texture]uint64
}

// NewAllocator creates an Allocator on the given device.
func NewAllocator(device hal.Device, cfg AllocatorConfig) (*Allocator, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: allocator requires a device", ErrInvalidDescriptor)
	}
	return &Allocator{
		device: device,
		budget: cfg.BudgetBytes,
		sizes:  make(map[hal.Texture]uint64),
	}, nil
}

// CreateTexture allocates a texture, charging it against the budget.
func (a *Allocator) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	samples := desc.SampleCount
	if samples == 0 {
		samples = 1
	}
	size := uint64(desc.Size.Width) * uint64(desc.Size.Height) *
		uint64(samples) * formatBytes(desc.Format)

	a.mu.Lock()
	if a.budget != 0 && a.used+size > a.budget {
		used, budget := a.used, a.budget
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrDeviceResourceExhausted, size, used, budget)
	}
	a.mu.Unlock()

	tex, err := a.device.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}

	a.mu.Lock()
	a.used += size
	a.sizes[tex] = size
	a.mu.Unlock()

	Logger().Debug("allocated image",
		slog.String("label", desc.Label),
		slog.Uint64("bytes", size))
	return tex, nil
}

// DestroyTexture releases a texture and refunds its budget charge.
// Textures not created by this allocator are destroyed without accounting.
func (a *Allocator) DestroyTexture(tex hal.Texture) {
	if tex == nil {
		return
	}
	a.mu.Lock()
	if size, ok := a.sizes[tex]; ok {
		a.used -= size
		delete(a.sizes, tex)
	}
	a.mu.Unlock()
	a.device.DestroyTexture(tex)
}

// Stats returns a snapshot of current usage.
func (a *Allocator) Stats() AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AllocatorStats{
		BudgetBytes:  a.budget,
		UsedBytes:    a.used,
		TextureCount: len(a.sizes),
	}
}
