// Package bake runs render graph passes outside the frame loop.
//
// Offline workloads (environment map prefiltering, LUT generation,
// thumbnail capture) want to run one pass of a compiled graph once,
// block until the GPU finishes, and often read the result back to the
// CPU. The frame driver is the wrong tool for that: it amortizes over
// frames in flight and never reads back. This package provides the
// synchronous one-shot path instead.
package bake

import (
	"fmt"
	"image"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
)

// gpuTimeout bounds every fence wait. Offline passes are bounded
// workloads; a bake that takes longer than this is stuck.
const gpuTimeout = 5 * time.Second

// WebGPU and DX12 require buffer copy rows aligned to 256 bytes.
const copyPitchAlignment = 256

// Run executes a single named pass of the compiled graph synchronously:
// it records the pass with the given recorder, submits, and blocks until
// the GPU signals completion. A nil recorder falls back to the recorder
// registered on the declaration.
//
// Backbuffer-writing passes cannot be baked; bake targets are offscreen
// images declared on the graph.
func Run(device hal.Device, queue hal.Queue, c *framegraph.CompiledGraph, pass string, rec framegraph.PassRecorder) error {
	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "bake_" + pass,
	})
	if err != nil {
		return fmt.Errorf("create bake encoder: %w", err)
	}
	if err := encoder.BeginEncoding("bake_" + pass); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	if err := c.ExecutePass(encoder, pass, 0, rec); err != nil {
		encoder.DiscardEncoding()
		return err
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	return submitAndWait(device, queue, cmdBuf)
}

// Capture reads the named image back to the CPU as an RGBA image. The
// image must be declared with Readback set so its texture carries
// copy-source usage; four-byte color formats are supported.
//
// The readback encodes a usage transition to copy source, a texture to
// staging buffer copy with 256-byte row alignment, and a transition back
// to attachment usage, then submits, waits, and strips the row padding.
func Capture(device hal.Device, queue hal.Queue, c *framegraph.CompiledGraph, name string) (*image.RGBA, error) {
	node, err := c.ImageDescriptor(name)
	if err != nil {
		return nil, err
	}
	if !node.Readback {
		// Copying from a texture without copy-source usage is a device
		// validation error on real backends; fail before encoding.
		return nil, fmt.Errorf("%w: image %q is not declared for readback",
			framegraph.ErrInvalidDescriptor, name)
	}
	tex, err := c.Image(name)
	if err != nil {
		return nil, err
	}
	w, h, err := c.ImageExtent(name)
	if err != nil {
		return nil, err
	}
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("capture %q: zero extent", name)
	}

	bytesPerRow := w * 4
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ uint32(copyPitchAlignment-1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(h)

	stagingBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "bake_staging_" + name,
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer device.DestroyBuffer(stagingBuf)

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "bake_capture_" + name,
	})
	if err != nil {
		return nil, fmt.Errorf("create capture encoder: %w", err)
	}
	if err := encoder.BeginEncoding("bake_capture"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(tex, stagingBuf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	if err := submitAndWait(device, queue, cmdBuf); err != nil {
		return nil, err
	}

	readback := make([]byte, stagingSize)
	if err := queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("readback %q: %w", name, err)
	}

	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for row := uint32(0); row < h; row++ {
		src := readback[row*alignedBytesPerRow : row*alignedBytesPerRow+bytesPerRow]
		dst := img.Pix[int(row)*img.Stride : int(row)*img.Stride+int(bytesPerRow)]
		copy(dst, src)
	}
	return img, nil
}

// submitAndWait submits one command buffer with a fresh fence and blocks
// until it signals.
func submitAndWait(device hal.Device, queue hal.Queue, cmdBuf hal.CommandBuffer) error {
	fence, err := device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer device.DestroyFence(fence)

	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := device.Wait(fence, 1, gpuTimeout)
	if err != nil || !ok {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", ok, err)
	}
	return nil
}
