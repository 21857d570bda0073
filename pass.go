package framegraph

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// PassRecorder records the draw commands of one pass. The graph begins
// and ends the render pass around the call; the recorder must not end the
// pass or submit the encoder itself.
//
// Implementations are registered per pass name with Graph.SetRecorder and
// invoked once per execution in the pass's topological slot.
type PassRecorder interface {
	Record(rp hal.RenderPassEncoder) error
}

// PassRecorderFunc adapts a function to the PassRecorder interface.
type PassRecorderFunc func(rp hal.RenderPassEncoder) error

// Record calls f.
func (f PassRecorderFunc) Record(rp hal.RenderPassEncoder) error { return f(rp) }

// Pass is one compiled render pass: the cached descriptor(s) derived from
// the declaration, the usage transitions it needs around execution, and
// its extent.
//
// A Pass that writes the backbuffer holds one descriptor per backbuffer
// index (populated by InsertBackbufferImages); every other pass holds a
// single shared descriptor.
type Pass struct {
	name                 string
	presentsToBackbuffer bool

	// width/height are the render area: the minimum extent across the
	// attachments, matching how the framebuffer would be sized.
	width  uint32
	height uint32

	colors       []hal.RenderPassColorAttachment
	depthStencil *hal.RenderPassDepthStencilAttachment

	shared  *hal.RenderPassDescriptor   // nil for backbuffer passes
	byIndex []*hal.RenderPassDescriptor // nil until backbuffer binding

	// preBarriers run before the pass begins (attachment -> sampled for
	// inputs produced earlier); postBarriers restore attachment usage
	// after the last consumer so the next frame starts clean.
	preBarriers  []hal.TextureBarrier
	postBarriers []hal.TextureBarrier
}

// Name returns the declared pass name.
func (p *Pass) Name() string { return p.name }

// PresentsToBackbuffer reports whether the pass writes a backbuffer image.
func (p *Pass) PresentsToBackbuffer() bool { return p.presentsToBackbuffer }

// Extent returns the render area of the pass.
func (p *Pass) Extent() (width, height uint32) { return p.width, p.height }

// descriptorAt selects the descriptor for a backbuffer index. Passes that
// do not touch the backbuffer always return the shared descriptor.
func (p *Pass) descriptorAt(index int) (*hal.RenderPassDescriptor, error) {
	if !p.presentsToBackbuffer {
		return p.shared, nil
	}
	if p.byIndex == nil {
		return nil, fmt.Errorf("%w: pass %q awaits backbuffer images", ErrNotCompiled, p.name)
	}
	if index < 0 || index >= len(p.byIndex) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrBackbufferCount, index, len(p.byIndex))
	}
	return p.byIndex[index], nil
}

// execute begins the pass against the chosen descriptor, invokes the
// recorder, and ends the pass. Usage transitions recorded at compile run
// before the begin and after the end.
func (p *Pass) execute(encoder hal.CommandEncoder, desc *hal.RenderPassDescriptor, rec PassRecorder) error {
	if len(p.preBarriers) > 0 {
		encoder.TransitionTextures(p.preBarriers)
	}

	rp := encoder.BeginRenderPass(desc)
	if rec != nil {
		if err := rec.Record(rp); err != nil {
			rp.End()
			return fmt.Errorf("record pass %q: %w", p.name, err)
		}
	}
	rp.End()

	if len(p.postBarriers) > 0 {
		encoder.TransitionTextures(p.postBarriers)
	}
	return nil
}

// buildDescriptor assembles a RenderPassDescriptor from the compiled
// attachments. Backbuffer slots carry a nil view until binding;
// backbufferView fills them.
func (p *Pass) buildDescriptor(label string, backbufferView hal.TextureView) *hal.RenderPassDescriptor {
	colors := make([]hal.RenderPassColorAttachment, len(p.colors))
	copy(colors, p.colors)
	for i := range colors {
		if colors[i].View == nil {
			colors[i].View = backbufferView
		}
	}
	desc := &hal.RenderPassDescriptor{
		Label:            label,
		ColorAttachments: colors,
	}
	if p.depthStencil != nil {
		ds := *p.depthStencil
		desc.DepthStencilAttachment = &ds
	}
	return desc
}
