package framegraph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/internal/dag"
)

// DefaultSamplerName keys the linear clamp sampler created at Build.
const DefaultSamplerName = "default"

// CompiledGraph is the physical realization of a Graph at one surface
// extent: allocated images and views, cached render-pass descriptors, a
// default sampler, and the topological pass order.
//
// Exactly one CompiledGraph per Graph is live at a time. A resize
// destroys it wholesale (after the device is idle) and builds a
// replacement from the unchanged declaration.
//
// Views and samplers handed out by ImageView and Sampler are non-owning:
// their validity ends with Destroy. External renderers holding them must
// re-fetch after a rebuild.
//
// Thread Safety: a CompiledGraph must be compiled, executed, and
// destroyed from the single submitting goroutine.
type CompiledGraph struct {
	device hal.Device
	alloc  *Allocator
	graph  *Graph

	order  []string // topological pass order
	passes map[string]*Pass

	images   map[string]hal.Texture
	views    map[string]hal.TextureView
	samplers map[string]hal.Sampler

	// creation order for reverse-order teardown
	imageOrder   []string
	samplerOrder []string

	surfaceWidth  uint32
	surfaceHeight uint32
	backbufferLen int

	destroyed bool
}

// imageUse is the compiler's per-image view of the edge set.
type imageUse struct {
	node    ImageNode
	writers []string // passes writing the image, topological order
	readers []string // passes sampling the image, topological order
}

// Build compiles the declaration into a CompiledGraph: it validates and
// topologically sorts the passes, infers attachment roles, usage flags,
// and load/store ops, allocates one image and view per non-backbuffer
// resource, and caches one render-pass descriptor per pass (per
// backbuffer index for presenting passes, filled in by
// InsertBackbufferImages).
//
// alloc may be nil, in which case an unbudgeted Allocator is created on
// the device. Fails with ErrCycle (before any allocation), ErrUnknownNode
// (a consumed resource with no producer), ErrInvalidDescriptor, or
// ErrDeviceResourceExhausted.
func (g *Graph) Build(device hal.Device, alloc *Allocator) (*CompiledGraph, error) {
	if device == nil {
		return nil, fmt.Errorf("%w: build requires a device", ErrInvalidDescriptor)
	}
	if alloc == nil {
		var err error
		if alloc, err = NewAllocator(device, AllocatorConfig{}); err != nil {
			return nil, err
		}
	}

	order, err := g.sortPasses()
	if err != nil {
		return nil, err
	}
	uses, err := g.collectUses(order)
	if err != nil {
		return nil, err
	}

	c := &CompiledGraph{
		device:        device,
		alloc:         alloc,
		graph:         g,
		order:         order,
		passes:        make(map[string]*Pass),
		images:        make(map[string]hal.Texture),
		views:         make(map[string]hal.TextureView),
		samplers:      make(map[string]hal.Sampler),
		surfaceWidth:  g.surfaceWidth,
		surfaceHeight: g.surfaceHeight,
	}

	if err := c.allocateImages(uses); err != nil {
		c.Destroy()
		return nil, err
	}
	if err := c.buildPasses(uses); err != nil {
		c.Destroy()
		return nil, err
	}
	if err := c.createDefaultSampler(); err != nil {
		c.Destroy()
		return nil, err
	}

	Logger().Info("graph built",
		slog.Int("passes", len(c.order)),
		slog.Int("images", len(c.images)),
		slog.Uint64("width", uint64(c.surfaceWidth)),
		slog.Uint64("height", uint64(c.surfaceHeight)))
	return c, nil
}

// sortPasses derives the pass-level ordering graph from the edge set and
// returns the topological order. An edge P->X->Q over an image X orders
// pass P before pass Q; direct pass->pass edges order directly.
func (g *Graph) sortPasses() ([]string, error) {
	d := dag.New[string]()
	for _, p := range g.passes {
		if err := d.AddVertex(p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateName, err)
		}
	}

	addEdge := func(from, to string) error {
		err := d.AddEdge(from, to)
		if errors.Is(err, dag.ErrSelfReference) {
			// A pass both writing and sampling the same image is a
			// single-pass cycle.
			return fmt.Errorf("%w: pass %q consumes its own output", ErrCycle, from)
		}
		return err
	}

	for _, e := range g.edges {
		switch {
		case g.isPass(e.From) && g.isPass(e.To):
			if err := addEdge(e.From, e.To); err != nil {
				return nil, err
			}
		case g.isPass(e.From):
			// pass -> image: order the writer before every pass that
			// consumes the image.
			for _, consumer := range g.consumersOf(e.To) {
				if g.isPass(consumer) {
					if err := addEdge(e.From, consumer); err != nil {
						return nil, err
					}
				}
			}
		case g.isPass(e.To):
			// image -> pass: order every writer of the image before the
			// consuming pass.
			for _, producer := range g.producersOf(e.From) {
				if g.isPass(producer) {
					if err := addEdge(producer, e.To); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	order, err := d.TopologicalSort()
	if errors.Is(err, dag.ErrCycle) {
		return nil, ErrCycle
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// collectUses resolves each image's writers and readers against the
// topological order and validates the producer invariant: every consumed
// image has an earlier producer or belongs to the backbuffer family.
func (g *Graph) collectUses(order []string) (map[string]*imageUse, error) {
	rank := make(map[string]int, len(order))
	for i, p := range order {
		rank[p] = i
	}

	uses := make(map[string]*imageUse, len(g.imageList))
	for _, name := range g.imageList {
		uses[name] = &imageUse{node: g.images[name]}
	}

	for _, e := range g.edges {
		if g.isPass(e.From) && !g.isPass(e.To) {
			if u, ok := uses[e.To]; ok {
				u.writers = append(u.writers, e.From)
			} else {
				return nil, fmt.Errorf("%w: image %q", ErrUnknownNode, e.To)
			}
		}
		if !g.isPass(e.From) && g.isPass(e.To) {
			if u, ok := uses[e.From]; ok {
				u.readers = append(u.readers, e.To)
			} else {
				return nil, fmt.Errorf("%w: image %q", ErrUnknownNode, e.From)
			}
		}
	}

	byRank := func(passes []string) {
		for i := 1; i < len(passes); i++ {
			for j := i; j > 0 && rank[passes[j]] < rank[passes[j-1]]; j-- {
				passes[j], passes[j-1] = passes[j-1], passes[j]
			}
		}
	}

	for _, name := range g.imageList {
		u := uses[name]
		byRank(u.writers)
		byRank(u.readers)
		if len(u.readers) > 0 && len(u.writers) == 0 && !u.node.IsBackbuffer() {
			return nil, fmt.Errorf("%w: image %q is consumed but never produced",
				ErrUnknownNode, name)
		}
		if len(u.readers) == 0 && len(u.writers) == 0 {
			// Legal, but almost always a leftover declaration.
			Logger().Warn("unconsumed resource", slog.String("image", name))
		}
	}
	return uses, nil
}

// allocateImages creates one texture and view per non-backbuffer image at
// its resolved extent.
func (c *CompiledGraph) allocateImages(uses map[string]*imageUse) error {
	for _, name := range c.graph.imageList {
		u := uses[name]
		if u.node.IsBackbuffer() {
			continue
		}
		width, height := u.node.extentOr(c.surfaceWidth, c.surfaceHeight)
		if width == 0 || height == 0 {
			return fmt.Errorf("%w: image %q is surface-sized but no surface extent is set",
				ErrInvalidDescriptor, name)
		}

		sampled := len(u.readers) > 0
		tex, err := c.alloc.CreateTexture(u.node.textureDescriptor(width, height, sampled))
		if err != nil {
			return err
		}
		c.images[name] = tex
		c.imageOrder = append(c.imageOrder, name)

		view, err := c.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label: "framegraph_" + name + "_view",
		})
		if err != nil {
			return fmt.Errorf("create view for %q: %w", name, err)
		}
		c.views[name] = view
	}
	return nil
}

// buildPasses assembles the per-pass attachment lists, load/store ops,
// usage transitions, and cached descriptors.
func (c *CompiledGraph) buildPasses(uses map[string]*imageUse) error {
	rank := make(map[string]int, len(c.order))
	for i, p := range c.order {
		rank[p] = i
	}

	for _, passName := range c.order {
		p := &Pass{name: passName}

		minW, minH := ^uint32(0), ^uint32(0)
		for _, out := range c.graph.consumersOf(passName) {
			u, ok := uses[out]
			if !ok {
				continue // pass -> pass ordering edge
			}
			img := u.node

			loadOp := gputypes.LoadOpLoad
			if len(u.writers) > 0 && u.writers[0] == passName {
				loadOp = gputypes.LoadOpClear
			}

			storeOp := gputypes.StoreOpDiscard
			if img.ForceStore || img.Readback || img.IsBackbuffer() ||
				consumedAfter(u.readers, rank, rank[passName]) {
				storeOp = gputypes.StoreOpStore
			}

			width, height := img.extentOr(c.surfaceWidth, c.surfaceHeight)
			if width < minW {
				minW = width
			}
			if height < minH {
				minH = height
			}

			switch {
			case img.IsDepthStencil():
				if p.depthStencil != nil {
					return fmt.Errorf("%w: pass %q declares multiple depth attachments",
						ErrInvalidDescriptor, passName)
				}
				p.depthStencil = &hal.RenderPassDepthStencilAttachment{
					View:              c.views[img.Name],
					DepthLoadOp:       loadOp,
					DepthStoreOp:      storeOp,
					DepthClearValue:   img.ClearDepth,
					StencilLoadOp:     loadOp,
					StencilStoreOp:    storeOp,
					StencilClearValue: img.ClearStencil,
				}
			case img.IsResolve():
				// Resolve targets pair positionally with the color
				// attachments declared before them.
				paired := false
				for i := range p.colors {
					if p.colors[i].ResolveTarget == nil {
						p.colors[i].ResolveTarget = c.views[img.Name]
						paired = true
						break
					}
				}
				if !paired {
					return fmt.Errorf("%w: resolve image %q has no color attachment to pair with in pass %q",
						ErrInvalidDescriptor, img.Name, passName)
				}
			default:
				if img.IsBackbuffer() {
					p.presentsToBackbuffer = true
				}
				p.colors = append(p.colors, hal.RenderPassColorAttachment{
					View:       c.views[img.Name], // nil for backbuffer slots
					LoadOp:     loadOp,
					StoreOp:    storeOp,
					ClearValue: img.ClearColor,
				})
			}
		}

		if minW == ^uint32(0) {
			minW, minH = 0, 0
		}
		p.width, p.height = minW, minH

		if !p.presentsToBackbuffer {
			p.shared = p.buildDescriptor("framegraph_"+passName, nil)
		}
		c.passes[passName] = p

		Logger().Debug("pass compiled",
			slog.String("pass", passName),
			slog.Int("colors", len(p.colors)),
			slog.Bool("depth", p.depthStencil != nil),
			slog.Bool("backbuffer", p.presentsToBackbuffer))
	}

	c.buildBarriers(uses)
	return nil
}

// buildBarriers derives inter-pass synchronization from the edge set:
// before the first sampling consumer of an image the attachment
// transitions to texture binding usage, and after the last consumer it
// transitions back so the next frame's render pass sees attachment usage
// again.
func (c *CompiledGraph) buildBarriers(uses map[string]*imageUse) {
	for _, name := range c.graph.imageList {
		u := uses[name]
		if len(u.readers) == 0 || u.node.IsBackbuffer() {
			continue
		}
		tex := c.images[name]
		if tex == nil {
			continue
		}

		first := c.passes[u.readers[0]]
		first.preBarriers = append(first.preBarriers, hal.TextureBarrier{
			Texture: tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: gputypes.TextureUsageTextureBinding,
			},
		})

		last := c.passes[u.readers[len(u.readers)-1]]
		last.postBarriers = append(last.postBarriers, hal.TextureBarrier{
			Texture: tex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageTextureBinding,
				NewUsage: gputypes.TextureUsageRenderAttachment,
			},
		})
	}
}

// createDefaultSampler creates the linear clamp sampler shared by
// consumers that sample graph images.
func (c *CompiledGraph) createDefaultSampler() error {
	sampler, err := c.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "framegraph_default_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return fmt.Errorf("create default sampler: %w", err)
	}
	c.samplers[DefaultSamplerName] = sampler
	c.samplerOrder = append(c.samplerOrder, DefaultSamplerName)
	return nil
}

// consumedAfter reports whether any reader ranks strictly after the
// given pass rank.
func consumedAfter(readers []string, rank map[string]int, after int) bool {
	for _, r := range readers {
		if rank[r] > after {
			return true
		}
	}
	return false
}

// PassHandle returns the compiled pass with the given name.
func (c *CompiledGraph) PassHandle(name string) (*Pass, error) {
	p, ok := c.passes[name]
	if !ok {
		return nil, fmt.Errorf("%w: pass %q", ErrUnknownNode, name)
	}
	return p, nil
}

// Passes returns the compiled passes in topological order.
func (c *CompiledGraph) Passes() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Image returns the physical texture backing the named image.
func (c *CompiledGraph) Image(name string) (hal.Texture, error) {
	tex, ok := c.images[name]
	if !ok {
		return nil, fmt.Errorf("%w: image %q", ErrUnknownNode, name)
	}
	return tex, nil
}

// ImageDescriptor returns the declared descriptor of the named image.
func (c *CompiledGraph) ImageDescriptor(name string) (ImageNode, error) {
	node, ok := c.graph.images[name]
	if !ok {
		return ImageNode{}, fmt.Errorf("%w: image %q", ErrUnknownNode, name)
	}
	return node, nil
}

// ImageExtent returns the resolved pixel extent of the named image
// (surface-sized images report the extent compiled against).
func (c *CompiledGraph) ImageExtent(name string) (width, height uint32, err error) {
	node, ok := c.graph.images[name]
	if !ok {
		return 0, 0, fmt.Errorf("%w: image %q", ErrUnknownNode, name)
	}
	width, height = node.extentOr(c.surfaceWidth, c.surfaceHeight)
	return width, height, nil
}

// ImageView returns the view of the named image. The view is owned by the
// graph; it is valid until Destroy. Bound backbuffer views are keyed
// BackbufferName(i) for i below the bound count, not by the declared
// family node's name.
func (c *CompiledGraph) ImageView(name string) (hal.TextureView, error) {
	view, ok := c.views[name]
	if !ok {
		return nil, fmt.Errorf("%w: image view %q", ErrUnknownNode, name)
	}
	return view, nil
}

// Sampler returns the named sampler ("default" is always present).
func (c *CompiledGraph) Sampler(name string) (hal.Sampler, error) {
	s, ok := c.samplers[name]
	if !ok {
		return nil, fmt.Errorf("%w: sampler %q", ErrUnknownNode, name)
	}
	return s, nil
}

// Destroy releases every GPU object the build created, in reverse
// creation order: samplers, then views, then textures. The caller must
// ensure the device is idle first (see Frames.WaitIdle); no in-flight
// command buffer may still reference this graph.
//
// Destroy is idempotent.
func (c *CompiledGraph) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true

	for i := len(c.samplerOrder) - 1; i >= 0; i-- {
		name := c.samplerOrder[i]
		if s := c.samplers[name]; s != nil {
			c.device.DestroySampler(s)
		}
		delete(c.samplers, name)
	}
	for i := len(c.imageOrder) - 1; i >= 0; i-- {
		name := c.imageOrder[i]
		if v := c.views[name]; v != nil {
			c.device.DestroyTextureView(v)
		}
		delete(c.views, name)
	}
	for i := len(c.imageOrder) - 1; i >= 0; i-- {
		name := c.imageOrder[i]
		if tex := c.images[name]; tex != nil {
			c.alloc.DestroyTexture(tex)
		}
		delete(c.images, name)
	}
	// Remaining views are the bound backbuffer views. The presentation
	// layer owns them; drop the references without destroying.
	clear(c.views)
	c.imageOrder = nil

	Logger().Debug("graph destroyed")
}
