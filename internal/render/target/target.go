// Package target owns the renderer's render targets and tracks the layout
// and access state of each across a frame. A target is checked out while a
// pass uses it and must be returned before the frame ends.
package target

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ID names a render target.
type ID uint8

const (
	FP16 ID = iota
	ShadowMap
	DepthBuffer
	GBufferAlbedo
	GBufferNormal
	GBufferMetalRoughness
	GBufferWorldPos
	SSAOMask
	SSAOMaskBlended
	BackBuffer
	Count
)

var idNames = [Count]string{
	"fp16", "shadow_map", "depth_buffer",
	"gbuffer_albedo", "gbuffer_normal", "gbuffer_metal_roughness", "gbuffer_world_pos",
	"ssao_mask", "ssao_mask_blended", "back_buffer",
}

func (id ID) String() string {
	if id < Count {
		return idNames[id]
	}
	return fmt.Sprintf("target(%d)", uint8(id))
}

// ParseID resolves the data-table name of a target.
func ParseID(name string) (ID, bool) {
	for i, n := range idNames {
		if n == name {
			return ID(i), true
		}
	}
	return 0, false
}

// Spec describes how a target is allocated. A zero Size means the target
// follows the back buffer, scaled by Scale.
type Spec struct {
	Format gputypes.TextureFormat
	Size   uint32
	Scale  float32
	Usage  gputypes.TextureUsage
}

// Extent returns the size of the target for a back buffer of w x h.
func (s Spec) Extent(w, h uint32) (uint32, uint32) {
	if s.Size > 0 {
		return s.Size, s.Size
	}
	scale := s.Scale
	if scale <= 0 {
		scale = 1
	}
	return max(1, uint32(float32(w)*scale)), max(1, uint32(float32(h)*scale))
}

const DefaultShadowMapSize = 2048

// DefaultSpecs returns the built-in target table. BackBuffer is owned by
// the swapchain and its entry is ignored.
func DefaultSpecs(shadowMapSize uint32) [Count]Spec {
	if shadowMapSize == 0 {
		shadowMapSize = DefaultShadowMapSize
	}
	color := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	return [Count]Spec{
		FP16:                  {Format: gputypes.TextureFormatRGBA16Float, Scale: 1, Usage: color},
		ShadowMap:             {Format: gputypes.TextureFormatDepth16Unorm, Size: shadowMapSize, Usage: color},
		DepthBuffer:           {Format: gputypes.TextureFormatDepth32FloatStencil8, Scale: 1, Usage: color},
		GBufferAlbedo:         {Format: gputypes.TextureFormatRGBA8Unorm, Scale: 1, Usage: color},
		GBufferNormal:         {Format: gputypes.TextureFormatRGBA16Float, Scale: 1, Usage: color},
		GBufferMetalRoughness: {Format: gputypes.TextureFormatRGBA8Unorm, Scale: 1, Usage: color},
		GBufferWorldPos:       {Format: gputypes.TextureFormatRGBA32Float, Scale: 1, Usage: color},
		SSAOMask:              {Format: gputypes.TextureFormatR8Unorm, Scale: 1, Usage: color},
		SSAOMaskBlended:       {Format: gputypes.TextureFormatR8Unorm, Scale: 1, Usage: color},
	}
}
