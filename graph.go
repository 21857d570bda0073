package framegraph

import (
	"fmt"
	"strings"
	"sync"
)

// Edge declares a producer -> consumer relationship. Either side may name
// a pass or an image:
//
//	{From: "offscreen", To: "color"}      // pass writes image
//	{From: "color", To: "postprocess"}    // pass samples image
//	{From: "shadow", To: "offscreen"}     // explicit pass ordering
//
// Edges define attachment membership (pass -> image), sampled inputs
// (image -> pass), and inter-pass ordering.
type Edge struct {
	From string
	To   string
}

// Graph is the declarative description of a render graph: named passes,
// named image resources, and the edges linking them.
//
// A Graph is built once with New (or populated with DeclarePass,
// DeclareImage, and DeclareEdge) and then compiled with Build. The
// description is immutable across rebuilds: a resize recompiles the same
// Graph against a new surface extent.
//
// Thread Safety: declaration and Build must happen from a single
// goroutine. SetRecorder may not be called concurrently with Build or
// with frame execution (see CompiledGraph).
type Graph struct {
	passes    []string // declaration order
	passSet   map[string]struct{}
	imageList []string // declaration order
	images    map[string]ImageNode
	edges     []Edge

	surfaceWidth  uint32
	surfaceHeight uint32

	// backbufferCount is fixed by the first InsertBackbufferImages and
	// enforced across rebuilds: the swapchain image count is owned by
	// the presentation layer, not the graph.
	backbufferCount int

	mu        sync.Mutex
	recorders map[string]PassRecorder
}

// New creates a Graph from a full declaration: the pass names, the image
// descriptors, and the edges linking them. Fails with ErrDuplicateName,
// ErrInvalidDescriptor, or ErrUnknownNode.
//
// Example (offscreen scene rendered, then composited to the swapchain):
//
//	g, err := framegraph.New(
//		[]string{"offscreen", "fullscreen"},
//		[]framegraph.ImageNode{
//			{Name: "color", Format: gputypes.TextureFormatRGBA8Unorm, Samples: 4},
//			{Name: "color_resolve", Format: gputypes.TextureFormatRGBA8Unorm},
//			{Name: "depth_stencil", Format: gputypes.TextureFormatDepth24PlusStencil8, Samples: 4, ClearDepth: 1},
//			{Name: framegraph.BackbufferName(0), Format: gputypes.TextureFormatBGRA8Unorm},
//		},
//		[]framegraph.Edge{
//			{"offscreen", "color"},
//			{"offscreen", "depth_stencil"},
//			{"offscreen", "color_resolve"},
//			{"color_resolve", "fullscreen"},
//			{"fullscreen", framegraph.BackbufferName(0)},
//		},
//	)
func New(passes []string, images []ImageNode, edges []Edge) (*Graph, error) {
	g := &Graph{
		passSet:   make(map[string]struct{}),
		images:    make(map[string]ImageNode),
		recorders: make(map[string]PassRecorder),
	}
	for _, name := range passes {
		if err := g.DeclarePass(name); err != nil {
			return nil, err
		}
	}
	for _, img := range images {
		if err := g.DeclareImage(img); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if err := g.DeclareEdge(e.From, e.To); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// DeclarePass adds a named pass. Fails with ErrDuplicateName if the name
// is already in use as a pass or image.
func (g *Graph) DeclarePass(name string) error {
	if name == "" {
		return fmt.Errorf("%w: pass name is empty", ErrInvalidDescriptor)
	}
	if g.hasNode(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if strings.HasPrefix(name, BackbufferPrefix) {
		return fmt.Errorf("%w: pass name %q uses the reserved backbuffer prefix",
			ErrInvalidDescriptor, name)
	}
	g.passes = append(g.passes, name)
	g.passSet[name] = struct{}{}
	return nil
}

// DeclareImage adds an image resource. The descriptor is validated; see
// ImageNode for field defaults. Fails with ErrDuplicateName or
// ErrInvalidDescriptor.
func (g *Graph) DeclareImage(img ImageNode) error {
	if err := img.validate(); err != nil {
		return err
	}
	if g.hasNode(img.Name) {
		return fmt.Errorf("%w: %q", ErrDuplicateName, img.Name)
	}
	g.imageList = append(g.imageList, img.Name)
	g.images[img.Name] = img
	return nil
}

// DeclareEdge links a producer to a consumer. Both endpoints must already
// be declared; the backbuffer family name is always a legal endpoint and
// may be declared after edges referencing it. Fails with ErrUnknownNode.
func (g *Graph) DeclareEdge(from, to string) error {
	if !g.hasNode(from) && !strings.HasPrefix(from, BackbufferPrefix) {
		return fmt.Errorf("%w: edge source %q", ErrUnknownNode, from)
	}
	if !g.hasNode(to) && !strings.HasPrefix(to, BackbufferPrefix) {
		return fmt.Errorf("%w: edge destination %q", ErrUnknownNode, to)
	}
	g.edges = append(g.edges, Edge{From: from, To: to})
	return nil
}

// SetSurfaceExtent records the presentation surface dimensions that
// surface-sized images (declared with a zero extent) resolve against at
// the next Build.
func (g *Graph) SetSurfaceExtent(width, height uint32) {
	g.surfaceWidth = width
	g.surfaceHeight = height
}

// SetRecorder registers the command recorder invoked when the named pass
// executes. Recorders belong to the declaration, not to one compiled
// build, so they carry across rebuilds unchanged.
//
// Fails with ErrUnknownNode for an undeclared pass. Passing nil removes
// the registration; a pass without a recorder still begins and ends its
// render pass (its attachments are cleared/stored per the compiled ops).
func (g *Graph) SetRecorder(pass string, r PassRecorder) error {
	if _, ok := g.passSet[pass]; !ok {
		return fmt.Errorf("%w: pass %q", ErrUnknownNode, pass)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if r == nil {
		delete(g.recorders, pass)
		return nil
	}
	g.recorders[pass] = r
	return nil
}

// recorder returns the registered recorder for a pass, or nil.
func (g *Graph) recorder(pass string) PassRecorder {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.recorders[pass]
}

// hasNode reports whether the name is declared as a pass or an image.
func (g *Graph) hasNode(name string) bool {
	if _, ok := g.passSet[name]; ok {
		return true
	}
	_, ok := g.images[name]
	return ok
}

// isPass reports whether the name is a declared pass.
func (g *Graph) isPass(name string) bool {
	_, ok := g.passSet[name]
	return ok
}

// boundBackbufferCount returns the backbuffer image count fixed by the
// first binding, zero if none has happened yet.
func (g *Graph) boundBackbufferCount() int { return g.backbufferCount }

// setBoundBackbufferCount records the backbuffer image count.
func (g *Graph) setBoundBackbufferCount(n int) { g.backbufferCount = n }

// backbufferNode returns the declared backbuffer family node.
func (g *Graph) backbufferNode() (ImageNode, bool) {
	for _, name := range g.imageList {
		img := g.images[name]
		if img.IsBackbuffer() {
			return img, true
		}
	}
	return ImageNode{}, false
}

// producersOf returns the names with an edge into the given node, in
// declaration order.
func (g *Graph) producersOf(name string) []string {
	var from []string
	for _, e := range g.edges {
		if e.To == name {
			from = append(from, e.From)
		}
	}
	return from
}

// consumersOf returns the names the given node has an edge into, in
// declaration order.
func (g *Graph) consumersOf(name string) []string {
	var to []string
	for _, e := range g.edges {
		if e.From == name {
			to = append(to, e.To)
		}
	}
	return to
}
