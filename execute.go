package framegraph

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// ExecuteAtIndex records every compiled pass into the encoder in
// topological order. For each pass it applies the pass's usage
// transitions, begins the render pass against the descriptor selected by
// backbufferIndex (passes that do not touch the backbuffer use their
// shared descriptor), invokes the registered recorder, and ends the
// pass. Passes are strictly ordered; the commands a recorder emits
// within its pass are opaque to the graph.
//
// The encoder must already be encoding; the caller finishes and submits
// it (see Frames.RenderFrame for the per-frame driver). Fails with
// ErrNotCompiled before backbuffer binding, or ErrBackbufferCount for an
// out-of-range index. Recorder errors abort execution and propagate.
func (c *CompiledGraph) ExecuteAtIndex(encoder hal.CommandEncoder, backbufferIndex int) error {
	if c.destroyed {
		return ErrNotCompiled
	}
	for _, name := range c.order {
		p := c.passes[name]
		desc, err := p.descriptorAt(backbufferIndex)
		if err != nil {
			return err
		}
		if err := p.execute(encoder, desc, c.graph.recorder(name)); err != nil {
			return err
		}
	}
	return nil
}

// ExecutePass records a single named pass with a one-off recorder,
// independent of the per-frame slot machinery. Offline workloads
// (environment map prefiltering, LUT baking) use this to run one pass of
// the graph outside the frame loop; see the bake package for a driver
// that also submits and waits.
//
// The same begin/record/end contract as ExecuteAtIndex applies. A nil
// recorder falls back to the pass's registered recorder.
func (c *CompiledGraph) ExecutePass(encoder hal.CommandEncoder, name string, backbufferIndex int, rec PassRecorder) error {
	if c.destroyed {
		return ErrNotCompiled
	}
	p, ok := c.passes[name]
	if !ok {
		return fmt.Errorf("%w: pass %q", ErrUnknownNode, name)
	}
	desc, err := p.descriptorAt(backbufferIndex)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = c.graph.recorder(name)
	}
	return p.execute(encoder, desc, rec)
}
