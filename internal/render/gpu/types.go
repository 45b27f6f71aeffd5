// Package gpu describes the graphics device surface the renderer records
// against: resource descriptors, cache keys and the Device / CommandBuffer
// interfaces. Concrete bindings live in sub-packages.
package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Handle names a device object. Zero is the null handle.
type Handle uint64

const NullHandle Handle = 0

// ImageLayout is the tracked layout of an image.
type ImageLayout uint8

const (
	LayoutUndefined ImageLayout = iota
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutShaderReadOnly
	LayoutTransferDst
	LayoutPresentSrc
)

var layoutNames = [...]string{"undefined", "color-attachment", "depth-stencil-attachment", "shader-read-only", "transfer-dst", "present-src"}

func (l ImageLayout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("layout(%d)", uint8(l))
}

// Access is a set of memory access kinds.
type Access uint32

const (
	AccessColorAttachmentRead Access = 1 << iota
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessShaderRead
	AccessTransferWrite

	AccessNone    Access = 0
	AccessUnknown Access = ^Access(0)
)

// ShaderID selects a shader program (vertex + fragment pair).
type ShaderID uint8

// VertexFormatID selects a vertex input layout.
type VertexFormatID uint8

type Texture struct {
	Image     Handle
	View      Handle
	Format    gputypes.TextureFormat
	Width     uint32
	Height    uint32
	MipLevels uint32
	Label     string
}

func (t Texture) IsZero() bool { return t.Image == NullHandle }

type TextureDescriptor struct {
	Label     string
	Format    gputypes.TextureFormat
	Width     uint32
	Height    uint32
	MipLevels uint32
	Usage     gputypes.TextureUsage
	Data      []byte // optional initial contents of mip 0
}

type Buffer struct {
	Handle Handle
	Size   uint64
}

func (b Buffer) IsZero() bool { return b.Handle == NullHandle }

type BufferDescriptor struct {
	Label       string
	Size        uint64
	Usage       gputypes.BufferUsage
	HostVisible bool
	Data        []byte
}

type ShaderDescriptor struct {
	Label string
	Stage gputypes.ShaderStage
	Code  []byte
}

type Rect struct {
	X, Y          int32
	Width, Height uint32
}

type ClearValues struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// DescriptorKind is the binding type of a descriptor write.
type DescriptorKind uint8

const (
	DescriptorSampler DescriptorKind = iota
	DescriptorSampledImage
	DescriptorUniformBuffer
)

type DescriptorWrite struct {
	Binding uint32
	Kind    DescriptorKind
	View    Handle // image view or sampler
	Buffer  Handle
	Offset  uint64
	Range   uint64
}
