package framegraph

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Reserved node names. The graph derives attachment roles from naming
// rather than from extra descriptor fields:
//
//   - A name starting with BackbufferPrefix marks the presentation image
//     family. Its physical images are owned by the presentation layer and
//     injected with InsertBackbufferImages, never allocated by Build.
//   - The name DepthStencilName marks the depth/stencil attachment of the
//     passes that write it.
//   - A name ending in ResolveSuffix marks a single-sample resolve target,
//     paired positionally with the color attachments of the same pass.
//     Resolve targets are always declared explicitly; the compiler never
//     synthesizes one.
const (
	// BackbufferPrefix marks members of the backbuffer image family.
	BackbufferPrefix = "backbuffer"

	// DepthStencilName is the reserved name of the depth/stencil image.
	DepthStencilName = "depth_stencil"

	// ResolveSuffix marks multisample resolve targets.
	ResolveSuffix = "resolve"
)

// BackbufferName returns the reserved resource name for the backbuffer
// image at the given swapchain index ("backbuffer#0", "backbuffer#1", ...).
//
// The declaration contains a single family node (any index); after
// InsertBackbufferImages the compiled graph keys per-index resources by
// these names.
func BackbufferName(index int) string {
	return fmt.Sprintf("%s#%d", BackbufferPrefix, index)
}

// ImageNode describes one image resource of the graph.
//
// Field defaults (applied by DefaultImageNode and accepted by validation):
//   - Width, Height: 0 means "match the surface extent at build time".
//     Images declared with an explicit extent keep it across rebuilds
//     (shadow maps, LUTs); surface-sized images track resizes.
//   - Samples: 0 is treated as 1 (no multisampling).
//   - ClearDepth: depth images clear to 1.0 unless set otherwise.
//   - ForceStore: keep contents at pass end even without a consumer.
//   - ForceShaderRead: allocate with sampled usage even without a
//     sampled consumer in the graph.
//
// An ImageNode is pure description. Physical backing is allocated at
// Build and destroyed/reallocated on rebuild.
type ImageNode struct {
	// Name uniquely identifies the image within the graph.
	Name string

	// Width and Height are the image extent in pixels. Zero means
	// surface-sized.
	Width  uint32
	Height uint32

	// Format is the texel format.
	Format gputypes.TextureFormat

	// Samples is the multisample count. Zero or one means single-sampled.
	Samples uint32

	// ClearColor is used when the first writing pass clears the image.
	ClearColor gputypes.Color

	// ClearDepth and ClearStencil are used for the depth/stencil image.
	ClearDepth   float32
	ClearStencil uint32

	// ForceStore keeps the attachment contents at pass end even when no
	// later pass consumes them.
	ForceStore bool

	// ForceShaderRead adds sampled usage even when no pass in the graph
	// samples the image (for external consumers holding the view).
	ForceShaderRead bool

	// Readback adds copy-source usage so the image contents can be read
	// back to the CPU (see the bake package). Implies ForceStore.
	Readback bool
}

// DefaultImageNode returns an ImageNode with the documented defaults for
// the given name and format: surface-sized, single-sampled, depth clear 1.0.
func DefaultImageNode(name string, format gputypes.TextureFormat) ImageNode {
	return ImageNode{
		Name:       name,
		Format:     format,
		Samples:    1,
		ClearDepth: 1.0,
	}
}

// validate checks the required fields. Called by DeclareImage.
func (n ImageNode) validate() error {
	if n.Name == "" {
		return fmt.Errorf("%w: image name is empty", ErrInvalidDescriptor)
	}
	if (n.Width == 0) != (n.Height == 0) {
		return fmt.Errorf("%w: image %q has a partial extent %dx%d",
			ErrInvalidDescriptor, n.Name, n.Width, n.Height)
	}
	return nil
}

// IsBackbuffer reports whether the image belongs to the backbuffer family.
func (n ImageNode) IsBackbuffer() bool {
	return strings.HasPrefix(n.Name, BackbufferPrefix)
}

// IsDepthStencil reports whether the image is the depth/stencil attachment.
func (n ImageNode) IsDepthStencil() bool {
	return n.Name == DepthStencilName
}

// IsResolve reports whether the image is a multisample resolve target.
func (n ImageNode) IsResolve() bool {
	return strings.HasSuffix(n.Name, ResolveSuffix)
}

// sampleCount returns the effective multisample count.
func (n ImageNode) sampleCount() uint32 {
	if n.Samples == 0 {
		return 1
	}
	return n.Samples
}

// extentOr resolves the declared extent against the surface extent.
func (n ImageNode) extentOr(surfaceWidth, surfaceHeight uint32) (uint32, uint32) {
	if n.Width == 0 && n.Height == 0 {
		return surfaceWidth, surfaceHeight
	}
	return n.Width, n.Height
}

// usage derives the allocation usage flags. Every graph image is a render
// attachment; sampled usage is added when a later pass consumes the image
// as a texture or ForceShaderRead is set. An image with neither is
// transient: it only ever exists as an attachment.
func (n ImageNode) usage(sampledLater bool) gputypes.TextureUsage {
	usage := gputypes.TextureUsageRenderAttachment
	if sampledLater || n.ForceShaderRead {
		usage |= gputypes.TextureUsageTextureBinding
	}
	if n.Readback {
		usage |= gputypes.TextureUsageCopySrc
	}
	return usage
}

// textureDescriptor builds the allocation descriptor at the resolved extent.
func (n ImageNode) textureDescriptor(width, height uint32, sampledLater bool) *hal.TextureDescriptor {
	return &hal.TextureDescriptor{
		Label: "framegraph_" + n.Name,
		Size: hal.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   n.sampleCount(),
		Dimension:     gputypes.TextureDimension2D,
		Format:        n.Format,
		Usage:         n.usage(sampledLater),
	}
}

// formatBytes returns the approximate bytes per texel for budget
// accounting. Unknown formats are charged four bytes.
func formatBytes(format gputypes.TextureFormat) uint64 {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatDepth24PlusStencil8:
		return 4
	default:
		return 4
	}
}
