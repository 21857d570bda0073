package framegraph

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/wgpu/hal"
)

// InsertBackbufferImages binds the externally-owned presentation views
// into the compiled graph. Build produces attachment slots for the
// backbuffer family; this call supplies the concrete views, one per
// swapchain image, and materializes the per-index descriptor of every
// pass that writes the backbuffer.
//
// The views stay owned by the presentation layer: the graph never
// destroys them, and a rebuild must resupply the same count (the
// swapchain image count belongs to the presentation layer, not to the
// graph). Fails with ErrNoBackbufferPass if no declared pass writes the
// backbuffer, or ErrBackbufferCount when the count differs from the
// previous binding of the same declaration.
//
// The declared family node names the family, not a binding slot: after
// binding, views are looked up as BackbufferName(i) for i < len(views),
// regardless of the index spelled in the declaration.
func (c *CompiledGraph) InsertBackbufferImages(views []hal.TextureView) error {
	if c.destroyed {
		return ErrNotCompiled
	}
	if _, ok := c.graph.backbufferNode(); !ok {
		return fmt.Errorf("%w: no backbuffer image is declared", ErrNoBackbufferPass)
	}
	if n := c.graph.boundBackbufferCount(); n != 0 && n != len(views) {
		return fmt.Errorf("%w: bound %d, got %d", ErrBackbufferCount, n, len(views))
	}

	var presenting []*Pass
	for _, name := range c.order {
		if p := c.passes[name]; p.presentsToBackbuffer {
			presenting = append(presenting, p)
		}
	}
	if len(presenting) == 0 {
		return ErrNoBackbufferPass
	}

	for _, p := range presenting {
		p.byIndex = p.byIndex[:0]
	}
	for i, view := range views {
		name := BackbufferName(i)
		c.views[name] = view
		for _, p := range presenting {
			label := fmt.Sprintf("framegraph_%s_%s", p.name, name)
			p.byIndex = append(p.byIndex, p.buildDescriptor(label, view))
		}
	}
	c.backbufferLen = len(views)
	c.graph.setBoundBackbufferCount(len(views))

	Logger().Debug("backbuffer bound", slog.Int("images", len(views)))
	return nil
}

// BackbufferCount returns the number of bound backbuffer images, zero
// before InsertBackbufferImages.
func (c *CompiledGraph) BackbufferCount() int {
	return c.backbufferLen
}
