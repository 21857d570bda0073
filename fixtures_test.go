package framegraph

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// sceneGraph declares the canonical two-pass graph: an MSAA offscreen
// pass resolving into color_resolve, sampled by a fullscreen pass that
// writes the backbuffer.
func sceneGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := New(
		[]string{"offscreen", "fullscreen"},
		[]ImageNode{
			{Name: "color", Format: gputypes.TextureFormatRGBA8Unorm, Samples: 4},
			{Name: "color_resolve", Format: gputypes.TextureFormatRGBA8Unorm},
			{Name: DepthStencilName, Format: gputypes.TextureFormatDepth24PlusStencil8, Samples: 4, ClearDepth: 1},
			{Name: BackbufferName(0), Format: gputypes.TextureFormatBGRA8Unorm},
		},
		[]Edge{
			{"offscreen", "color"},
			{"offscreen", DepthStencilName},
			{"offscreen", "color_resolve"},
			{"color_resolve", "fullscreen"},
			{"fullscreen", BackbufferName(0)},
		},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

// simpleGraph declares a single pass writing a single offscreen image.
func simpleGraph(t *testing.T, img ImageNode) *Graph {
	t.Helper()
	g, err := New(
		[]string{"draw"},
		[]ImageNode{img},
		[]Edge{{"draw", img.Name}},
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

// buildScene compiles sceneGraph at 800x600 and registers cleanup.
func buildScene(t *testing.T, device hal.Device) (*Graph, *CompiledGraph) {
	t.Helper()
	g := sceneGraph(t)
	g.SetSurfaceExtent(800, 600)
	c, err := g.Build(device, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Destroy)
	return g, c
}

// makeSwapchainViews creates n standalone texture views standing in for
// presentation images. The returned cleanup destroys them.
func makeSwapchainViews(t *testing.T, device hal.Device, n int) ([]hal.TextureView, func()) {
	t.Helper()
	var textures []hal.Texture
	var views []hal.TextureView
	for i := 0; i < n; i++ {
		tex, err := device.CreateTexture(&hal.TextureDescriptor{
			Label:         "test_swapchain",
			Size:          hal.Extent3D{Width: 800, Height: 600, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        gputypes.TextureFormatBGRA8Unorm,
			Usage:         gputypes.TextureUsageRenderAttachment,
		})
		if err != nil {
			t.Fatalf("create swapchain texture: %v", err)
		}
		view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: "test_swapchain_view"})
		if err != nil {
			t.Fatalf("create swapchain view: %v", err)
		}
		textures = append(textures, tex)
		views = append(views, view)
	}
	cleanup := func() {
		for i := range views {
			device.DestroyTextureView(views[i])
			device.DestroyTexture(textures[i])
		}
	}
	return views, cleanup
}

// beginTestEncoder creates an encoder already encoding.
func beginTestEncoder(t *testing.T, device hal.Device) hal.CommandEncoder {
	t.Helper()
	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "test_encoder"})
	if err != nil {
		t.Fatalf("CreateCommandEncoder failed: %v", err)
	}
	if err := encoder.BeginEncoding("test"); err != nil {
		t.Fatalf("BeginEncoding failed: %v", err)
	}
	return encoder
}
