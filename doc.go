// Package framegraph provides a declarative render graph for Go.
//
// # Overview
//
// framegraph turns a declarative description of render passes and image
// resources into compiled GPU objects for the GoGPU ecosystem. The
// application declares WHAT to render (passes, images, and the edges
// linking them); the graph derives HOW: execution order, attachment
// load/store operations, usage transitions, and per-backbuffer render
// pass descriptors.
//
// # Quick Start
//
//	import "github.com/gogpu/framegraph"
//
//	// Declare passes, images, and edges.
//	g, err := framegraph.New(
//		[]string{"offscreen", "fullscreen"},
//		[]framegraph.ImageNode{
//			{Name: "color", Format: gputypes.TextureFormatRGBA8Unorm},
//			{Name: framegraph.BackbufferName(0), Format: gputypes.TextureFormatBGRA8Unorm},
//		},
//		[]framegraph.Edge{
//			{"offscreen", "color"},
//			{"color", "fullscreen"},
//			{"fullscreen", framegraph.BackbufferName(0)},
//		},
//	)
//
//	// Compile against the surface extent and bind swapchain views.
//	g.SetSurfaceExtent(width, height)
//	compiled, err := g.Build(device, nil)
//	err = compiled.InsertBackbufferImages(swapchainViews)
//
//	// Register recorders and drive frames.
//	g.SetRecorder("offscreen", scene)
//	frames, err := framegraph.NewFrames(device, queue, compiled, framegraph.FramesConfig{})
//	err = frames.RenderFrame(width, height, acquiredIndex)
//
// # Architecture
//
// The library is organized into:
//   - Declaration: Graph, ImageNode, Edge (graph.go, image.go)
//   - Compilation: CompiledGraph, Pass (compile.go, pass.go)
//   - Execution: ExecuteAtIndex, Frames driver (execute.go, frames.go)
//   - Budgeted allocation: Allocator (allocator.go)
//   - Offline passes: the bake subpackage
//
// # Naming Conventions
//
// Image names carry roles, mirroring how engines tag swapchain and depth
// targets. Names starting with "backbuffer" bind to swapchain views at
// InsertBackbufferImages; the name "depth_stencil" compiles to the depth
// attachment; names ending in "resolve" become MSAA resolve targets.
//
// # Lifecycle
//
// Graph declarations are immutable across rebuilds: a window resize
// recompiles the same Graph against a new extent (Frames.Rebuild), so
// recorders registered on the Graph survive recompilation.
package framegraph
