package framegraph

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// foreverTimeout is the fence wait used by the frame driver. There is no
// partial-frame cancellation path: a frame either fully records and
// submits or fails fatally, so waits are effectively infinite.
const foreverTimeout = time.Duration(math.MaxInt64)

// DefaultFramesInFlight is how many frames the CPU may run ahead of the
// GPU when FramesConfig.FramesInFlight is zero.
const DefaultFramesInFlight = 2

// SlotState is the lifecycle state of one frame-in-flight slot.
type SlotState int

const (
	// SlotIdle means the slot is not preparing a frame.
	SlotIdle SlotState = iota

	// SlotWaiting means the slot is blocked on its fence (the slot's
	// previous frame has not finished on the GPU).
	SlotWaiting

	// SlotRecording means the slot's command encoder is recording.
	SlotRecording

	// SlotSubmitted means the slot's commands are queued on the GPU.
	SlotSubmitted
)

// String returns the string representation of SlotState.
func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "Idle"
	case SlotWaiting:
		return "Waiting"
	case SlotRecording:
		return "Recording"
	case SlotSubmitted:
		return "Submitted"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// frameSlot owns the synchronization of one frame in flight: a fence and
// the value it was last told to signal.
type frameSlot struct {
	fence     hal.Fence
	submitted uint64 // last signaled fence value; 0 = never submitted
	state     SlotState
}

// FramesConfig configures the frame driver.
//
// Field defaults:
//   - FramesInFlight: 0 means DefaultFramesInFlight (2).
type FramesConfig struct {
	// FramesInFlight is how many frames the CPU may record before
	// blocking on the GPU.
	FramesInFlight int
}

// Frames drives per-frame execution of a compiled graph with N
// frames-in-flight slots. Each slot owns an independent fence while all
// slots share the same CompiledGraph resources; slot f+N cannot begin
// recording until slot f's submission has signaled.
//
// Slot state machine:
//
//	Idle -> Waiting (fence) -> Recording -> Submitted -> Idle
//
// Thread Safety: Frames is single-threaded by contract. One goroutine
// owns the queue and calls RenderFrame, Rebuild, WaitIdle, and Destroy;
// GPU execution is asynchronous relative to it.
type Frames struct {
	device   hal.Device
	queue    hal.Queue
	compiled *CompiledGraph
	slots    []frameSlot
	index    int
}

// NewFrames creates the frame driver for a compiled graph.
func NewFrames(device hal.Device, queue hal.Queue, compiled *CompiledGraph, cfg FramesConfig) (*Frames, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: frames require a device and queue", ErrInvalidDescriptor)
	}
	if compiled == nil {
		return nil, ErrNotCompiled
	}
	n := cfg.FramesInFlight
	if n <= 0 {
		n = DefaultFramesInFlight
	}

	f := &Frames{
		device:   device,
		queue:    queue,
		compiled: compiled,
		slots:    make([]frameSlot, n),
	}
	for i := range f.slots {
		fence, err := device.CreateFence()
		if err != nil {
			f.destroyFences()
			return nil, fmt.Errorf("create frame fence %d: %w", i, err)
		}
		f.slots[i].fence = fence
	}
	return f, nil
}

// Compiled returns the compiled graph currently driven by this Frames.
// It changes identity after Rebuild.
func (f *Frames) Compiled() *CompiledGraph { return f.compiled }

// RenderFrame records and submits one frame against the given backbuffer
// index: it blocks until this slot's previous frame has finished on the
// GPU, records every pass through CompiledGraph.ExecuteAtIndex, submits
// with the slot's fence, and advances to the next slot.
//
// Degenerate surface dimensions (zero width or height) skip the frame
// silently: a minimized window is not an error. A failed fence wait is
// fatal and returns ErrDeviceLost.
func (f *Frames) RenderFrame(width, height uint32, backbufferIndex int) error {
	if width == 0 || height == 0 {
		Logger().Warn("skipping zero-dimension frame",
			slog.Uint64("width", uint64(width)),
			slog.Uint64("height", uint64(height)))
		return nil
	}

	slot := &f.slots[f.index]

	slot.state = SlotWaiting
	if err := f.waitSlot(slot); err != nil {
		slot.state = SlotIdle
		return err
	}

	slot.state = SlotRecording
	encoder, err := f.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: fmt.Sprintf("framegraph_frame_%d", f.index),
	})
	if err != nil {
		slot.state = SlotIdle
		return fmt.Errorf("create frame encoder: %w", err)
	}
	if err := encoder.BeginEncoding("framegraph_frame"); err != nil {
		slot.state = SlotIdle
		return fmt.Errorf("begin encoding: %w", err)
	}

	if err := f.compiled.ExecuteAtIndex(encoder, backbufferIndex); err != nil {
		encoder.DiscardEncoding()
		slot.state = SlotIdle
		return err
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		slot.state = SlotIdle
		return fmt.Errorf("end encoding: %w", err)
	}
	defer f.device.FreeCommandBuffer(cmdBuf)

	slot.state = SlotSubmitted
	slot.submitted++
	if err := f.queue.Submit([]hal.CommandBuffer{cmdBuf}, slot.fence, slot.submitted); err != nil {
		slot.state = SlotIdle
		return fmt.Errorf("submit frame: %w", err)
	}

	slot.state = SlotIdle
	f.index = (f.index + 1) % len(f.slots)
	return nil
}

// Rebuild is the resize coordinator: it waits until no in-flight frame
// references the outgoing CompiledGraph, destroys it, recompiles the
// unchanged declaration against the new extent, re-binds the supplied
// backbuffer views, and swaps the replacement in. Registered recorders
// carry over because they belong to the declaration.
//
// Rebuilding to the dimensions already compiled is legal and yields a
// shape-identical graph. Zero dimensions skip the rebuild and keep the
// current graph (the next real resize rebuilds). Graphs without a
// backbuffer family (offscreen-only rendering) rebuild with nil views.
//
// View arguments are validated before the old graph is torn down, so a
// mismatched count (ErrBackbufferCount) or views supplied to a graph
// that declares no backbuffer (ErrNoBackbufferPass) leaves the current
// compiled graph intact and renderable.
func (f *Frames) Rebuild(width, height uint32, backbufferViews []hal.TextureView) (*CompiledGraph, error) {
	if width == 0 || height == 0 {
		Logger().Warn("skipping zero-dimension rebuild")
		return f.compiled, nil
	}

	graph := f.compiled.graph
	if _, ok := graph.backbufferNode(); !ok && len(backbufferViews) > 0 {
		return nil, fmt.Errorf("%w: no backbuffer image is declared", ErrNoBackbufferPass)
	}
	if n := graph.boundBackbufferCount(); n != 0 && n != len(backbufferViews) {
		return nil, fmt.Errorf("%w: bound %d, got %d", ErrBackbufferCount, n, len(backbufferViews))
	}

	if err := f.WaitIdle(); err != nil {
		return nil, err
	}

	alloc := f.compiled.alloc
	f.compiled.Destroy()

	graph.SetSurfaceExtent(width, height)
	rebuilt, err := graph.Build(f.device, alloc)
	if err != nil {
		return nil, fmt.Errorf("rebuild at %dx%d: %w", width, height, err)
	}
	if len(backbufferViews) > 0 {
		if err := rebuilt.InsertBackbufferImages(backbufferViews); err != nil {
			rebuilt.Destroy()
			return nil, err
		}
	}

	f.compiled = rebuilt
	Logger().Info("graph rebuilt",
		slog.Uint64("width", uint64(width)),
		slog.Uint64("height", uint64(height)))
	return rebuilt, nil
}

// WaitIdle blocks until every submitted frame has signaled its fence.
// Required before destroying a CompiledGraph outside of Rebuild.
func (f *Frames) WaitIdle() error {
	for i := range f.slots {
		if err := f.waitSlot(&f.slots[i]); err != nil {
			return err
		}
	}
	return nil
}

// Destroy waits for the GPU and releases the per-slot fences. It does
// not destroy the compiled graph; that stays with its owner.
func (f *Frames) Destroy() {
	if err := f.WaitIdle(); err != nil {
		Logger().Warn("destroying frames without idle device", slog.String("error", err.Error()))
	}
	f.destroyFences()
}

// waitSlot blocks on the slot's fence up to its last submitted value.
func (f *Frames) waitSlot(slot *frameSlot) error {
	if slot.submitted == 0 {
		return nil
	}
	ok, err := f.device.Wait(slot.fence, slot.submitted, foreverTimeout)
	if err != nil {
		return fmt.Errorf("%w: fence wait: %v", ErrDeviceLost, err)
	}
	if !ok {
		return fmt.Errorf("%w: fence wait timed out", ErrDeviceLost)
	}
	return nil
}

func (f *Frames) destroyFences() {
	for i := range f.slots {
		if f.slots[i].fence != nil {
			f.device.DestroyFence(f.slots[i].fence)
			f.slots[i].fence = nil
		}
	}
}
