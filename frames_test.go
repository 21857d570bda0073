package framegraph

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// eventDevice wraps a hal.Device and records fence waits and texture
// destruction so tests can assert their ordering.
type eventDevice struct {
	hal.Device
	events *[]string
}

func (d *eventDevice) Wait(fence hal.Fence, value uint64, timeout time.Duration) (bool, error) {
	*d.events = append(*d.events, "wait")
	return d.Device.Wait(fence, value, timeout)
}

func (d *eventDevice) DestroyTexture(tex hal.Texture) {
	*d.events = append(*d.events, "destroy_texture")
	d.Device.DestroyTexture(tex)
}

// countingQueue wraps a hal.Queue and counts submissions.
type countingQueue struct {
	hal.Queue
	submits int
}

func (q *countingQueue) Submit(cmdBufs []hal.CommandBuffer, fence hal.Fence, value uint64) error {
	q.submits++
	return q.Queue.Submit(cmdBufs, fence, value)
}

func TestSlotStateString(t *testing.T) {
	tests := []struct {
		state SlotState
		want  string
	}{
		{SlotIdle, "Idle"},
		{SlotWaiting, "Waiting"},
		{SlotRecording, "Recording"},
		{SlotSubmitted, "Submitted"},
		{SlotState(42), "Unknown(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("SlotState(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestNewFramesValidation(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	_, c := buildScene(t, device)

	if _, err := NewFrames(nil, queue, c, FramesConfig{}); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("nil device: expected ErrInvalidDescriptor, got %v", err)
	}
	if _, err := NewFrames(device, queue, nil, FramesConfig{}); !errors.Is(err, ErrNotCompiled) {
		t.Errorf("nil compiled: expected ErrNotCompiled, got %v", err)
	}

	f, err := NewFrames(device, queue, c, FramesConfig{})
	if err != nil {
		t.Fatalf("NewFrames failed: %v", err)
	}
	defer f.Destroy()
	if len(f.slots) != DefaultFramesInFlight {
		t.Errorf("expected %d default slots, got %d", DefaultFramesInFlight, len(f.slots))
	}

	f3, err := NewFrames(device, queue, c, FramesConfig{FramesInFlight: 3})
	if err != nil {
		t.Fatalf("NewFrames failed: %v", err)
	}
	defer f3.Destroy()
	if len(f3.slots) != 3 {
		t.Errorf("expected 3 slots, got %d", len(f3.slots))
	}
}

func TestRenderFrameSubmitsAndAdvances(t *testing.T) {
	device, rawQueue, cleanup := createNoopDevice(t)
	defer cleanup()
	queue := &countingQueue{Queue: rawQueue}

	_, c := buildScene(t, device)
	views, destroyViews := makeSwapchainViews(t, device, 2)
	defer destroyViews()
	if err := c.InsertBackbufferImages(views); err != nil {
		t.Fatalf("InsertBackbufferImages failed: %v", err)
	}

	f, err := NewFrames(device, queue, c, FramesConfig{})
	if err != nil {
		t.Fatalf("NewFrames failed: %v", err)
	}
	defer f.Destroy()

	if err := f.RenderFrame(800, 600, 0); err != nil {
		t.Fatalf("RenderFrame failed: %v", err)
	}
	if queue.submits != 1 {
		t.Errorf("expected 1 submission, got %d", queue.submits)
	}
	if f.index != 1 {
		t.Errorf("expected slot index to advance to 1, got %d", f.index)
	}
	if f.slots[0].submitted != 1 {
		t.Errorf("expected slot 0 fence value 1, got %d", f.slots[0].submitted)
	}

	// Slots round-robin back to the start.
	if err := f.RenderFrame(800, 600, 1); err != nil {
		t.Fatalf("second RenderFrame failed: %v", err)
	}
	if err := f.RenderFrame(800, 600, 0); err != nil {
		t.Fatalf("third RenderFrame failed: %v", err)
	}
	if f.index != 1 {
		t.Errorf("expected index 1 after wrap, got %d", f.index)
	}
	if f.slots[0].submitted != 2 {
		t.Errorf("expected slot 0 fence value 2, got %d", f.slots[0].submitted)
	}
}

func TestRenderFrameSkipsZeroDimensions(t *testing.T) {
	device, rawQueue, cleanup := createNoopDevice(t)
	defer cleanup()
	queue := &countingQueue{Queue: rawQueue}

	_, c := buildScene(t, device)
	f, err := NewFrames(device, queue, c, FramesConfig{})
	if err != nil {
		t.Fatalf("NewFrames failed: %v", err)
	}
	defer f.Destroy()

	if err := f.RenderFrame(0, 600, 0); err != nil {
		t.Errorf("zero width must skip, not fail: %v", err)
	}
	if err := f.RenderFrame(800, 0, 0); err != nil {
		t.Errorf("zero height must skip, not fail: %v", err)
	}
	if queue.submits != 0 {
		t.Errorf("expected no submissions, got %d", queue.submits)
	}
	if f.index != 0 {
		t.Errorf("skipped frames must not advance the slot, got index %d", f.index)
	}
}

func TestRebuildWaitsBeforeDestroying(t *testing.T) {
	var events []string
	rawDevice, rawQueue, cleanup := createNoopDevice(t)
	defer cleanup()
	device := &eventDevice{Device: rawDevice, events: &events}

	g := sceneGraph(t)
	g.SetSurfaceExtent(800, 600)
	c, err := g.Build(device, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	views, destroyViews := makeSwapchainViews(t, device, 2)
	defer destroyViews()
	if err := c.InsertBackbufferImages(views); err != nil {
		t.Fatalf("InsertBackbufferImages failed: %v", err)
	}

	f, err := NewFrames(device, rawQueue, c, FramesConfig{})
	if err != nil {
		t.Fatalf("NewFrames failed: %v", err)
	}
	defer f.Destroy()

	if err := f.RenderFrame(800, 600, 0); err != nil {
		t.Fatalf("RenderFrame failed: %v", err)
	}

	events = events[:0]
	rebuilt, err := f.Rebuild(1024, 768, views)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	defer rebuilt.Destroy()

	// Every in-flight fence must be waited before any texture of the old
	// build is destroyed.
	firstWait, firstDestroy := -1, -1
	for i, e := range events {
		if e == "wait" && firstWait == -1 {
			firstWait = i
		}
		if e == "destroy_texture" && firstDestroy == -1 {
			firstDestroy = i
		}
	}
	if firstWait == -1 {
		t.Fatal("rebuild never waited on the in-flight fence")
	}
	if firstDestroy == -1 {
		t.Fatal("rebuild never destroyed the old textures")
	}
	if firstWait > firstDestroy {
		t.Errorf("texture destroyed (event %d) before fence wait (event %d)", firstDestroy, firstWait)
	}

	if rebuilt == c {
		t.Error("rebuild must produce a new CompiledGraph")
	}
	if f.Compiled() != rebuilt {
		t.Error("frames must drive the rebuilt graph")
	}
	if w, h, err := rebuilt.ImageExtent("color"); err != nil || w != 1024 || h != 768 {
		t.Errorf("expected surface-sized image at 1024x768, got %dx%d (%v)", w, h, err)
	}
}

func TestRebuildKeepsRecordersAndShape(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	g, c := buildScene(t, device)
	views, destroyViews := makeSwapchainViews(t, device, 2)
	defer destroyViews()
	if err := c.InsertBackbufferImages(views); err != nil {
		t.Fatalf("InsertBackbufferImages failed: %v", err)
	}

	invoked := 0
	if err := g.SetRecorder("fullscreen", PassRecorderFunc(func(hal.RenderPassEncoder) error {
		invoked++
		return nil
	})); err != nil {
		t.Fatalf("SetRecorder failed: %v", err)
	}

	f, err := NewFrames(device, queue, c, FramesConfig{})
	if err != nil {
		t.Fatalf("NewFrames failed: %v", err)
	}
	defer f.Destroy()

	rebuilt, err := f.Rebuild(400, 300, views)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	defer rebuilt.Destroy()

	// Same pass set and order, new extent, recorders intact.
	order := rebuilt.Passes()
	if len(order) != 2 || order[0] != "offscreen" || order[1] != "fullscreen" {
		t.Errorf("rebuild changed pass order: %v", order)
	}
	if err := f.RenderFrame(400, 300, 0); err != nil {
		t.Fatalf("RenderFrame after rebuild failed: %v", err)
	}
	if invoked != 1 {
		t.Errorf("expected registered recorder to survive rebuild, invoked %d times", invoked)
	}

	// The wrong view count is rejected before teardown: the current
	// compiled graph stays live and renderable.
	one, destroyOne := makeSwapchainViews(t, device, 1)
	defer destroyOne()
	if _, err := f.Rebuild(500, 400, one); !errors.Is(err, ErrBackbufferCount) {
		t.Errorf("expected ErrBackbufferCount, got %v", err)
	}
	if f.Compiled() != rebuilt {
		t.Error("failed rebuild must keep the current compiled graph")
	}
	if err := f.RenderFrame(400, 300, 1); err != nil {
		t.Errorf("RenderFrame after rejected rebuild failed: %v", err)
	}
	if invoked != 2 {
		t.Errorf("expected recorder invoked twice, got %d", invoked)
	}
}

func TestRebuildWithoutBackbuffer(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	// Offscreen-only rendering: no backbuffer family declared.
	g := simpleGraph(t, ImageNode{Name: "target", Format: gputypes.TextureFormatRGBA8Unorm})
	g.SetSurfaceExtent(800, 600)
	c, err := g.Build(device, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Destroy)

	f, err := NewFrames(device, queue, c, FramesConfig{})
	if err != nil {
		t.Fatalf("NewFrames failed: %v", err)
	}
	defer f.Destroy()

	if err := f.RenderFrame(800, 600, 0); err != nil {
		t.Fatalf("RenderFrame failed: %v", err)
	}

	rebuilt, err := f.Rebuild(1024, 768, nil)
	if err != nil {
		t.Fatalf("Rebuild without backbuffer failed: %v", err)
	}
	defer rebuilt.Destroy()
	if w, h, err := rebuilt.ImageExtent("target"); err != nil || w != 1024 || h != 768 {
		t.Errorf("expected 1024x768, got %dx%d (%v)", w, h, err)
	}
	if err := f.RenderFrame(1024, 768, 0); err != nil {
		t.Errorf("RenderFrame after rebuild failed: %v", err)
	}

	// Supplying views to a graph with no backbuffer is rejected up front;
	// the driver keeps rendering.
	views, destroyViews := makeSwapchainViews(t, device, 1)
	defer destroyViews()
	if _, err := f.Rebuild(640, 480, views); !errors.Is(err, ErrNoBackbufferPass) {
		t.Errorf("expected ErrNoBackbufferPass, got %v", err)
	}
	if f.Compiled() != rebuilt {
		t.Error("rejected rebuild must keep the current compiled graph")
	}
	if err := f.RenderFrame(1024, 768, 0); err != nil {
		t.Errorf("RenderFrame after rejected rebuild failed: %v", err)
	}
}

func TestRebuildSkipsZeroDimensions(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	_, c := buildScene(t, device)
	f, err := NewFrames(device, queue, c, FramesConfig{})
	if err != nil {
		t.Fatalf("NewFrames failed: %v", err)
	}
	defer f.Destroy()

	same, err := f.Rebuild(0, 600, nil)
	if err != nil {
		t.Fatalf("zero-dimension rebuild must not fail: %v", err)
	}
	if same != c {
		t.Error("zero-dimension rebuild must keep the current compiled graph")
	}
}
