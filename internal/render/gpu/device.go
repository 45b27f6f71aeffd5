package gpu

import (
	"context"
	"errors"

	"github.com/gogpu/gputypes"
)

// ErrOutOfDate is returned by AcquireNextImage and Present when the
// swapchain no longer matches the surface and must be recreated.
var ErrOutOfDate = errors.New("gpu: swapchain out of date")

// Device is the graphics driver surface. Object creation takes the cache
// keys directly so a binding can derive its create-info from them.
// Frame-context calls take ctx to bound fence waits.
type Device interface {
	CreateTexture(desc TextureDescriptor) (Texture, error)
	DestroyTexture(t Texture)
	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	WriteBuffer(b Buffer, offset uint64, data []byte) error
	DestroyBuffer(b Buffer)
	CreateSampler(label string) (Handle, error)
	CreateShaderModule(desc ShaderDescriptor) (Handle, error)

	CreatePipelineLayout(key PipelineLayoutKey) (Handle, error)
	CreateRenderPass(key RenderPassKey) (Handle, error)
	CreateFramebuffer(key FramebufferKey, renderPass Handle) (Handle, error)
	CreatePipeline(key PipelineKey, layout, renderPass Handle) (Handle, error)
	// DestroyObject releases a layout, render pass, framebuffer, pipeline,
	// sampler or shader module.
	DestroyObject(h Handle)

	BackBufferFormat() gputypes.TextureFormat
	BackBufferSize() (width, height uint32)
	Resize(width, height uint32) error

	// Per frame context. frame is in [0, FramesInFlight).
	WaitFence(ctx context.Context, frame int) error
	ResetFence(frame int) error
	ResetDescriptorPool(frame int) error
	AllocateDescriptorSet(frame int, layout Handle) (Handle, error)
	UpdateDescriptorSet(set Handle, writes []DescriptorWrite)
	CommandBuffer(frame int) CommandBuffer
	AcquireNextImage(ctx context.Context, frame int) (Texture, error)
	Submit(frame int) error
	Present(frame int) error

	WaitIdle(ctx context.Context) error
	Close() error
}

// CommandBuffer records work for one frame context.
type CommandBuffer interface {
	Begin() error
	End() error
	TransitionLayout(t Texture, from, to ImageLayout, srcAccess, dstAccess Access)
	BeginRenderPass(renderPass, framebuffer Handle, width, height uint32, clears []ClearValues)
	EndRenderPass()
	BindPipeline(p Handle)
	BindDescriptorSet(layout, set Handle)
	PushConstants(layout Handle, data []byte)
	SetViewport(width, height uint32)
	SetScissor(r Rect)
	SetDepthBias(constant, slope float32)
	BindVertexBuffer(b Buffer, offset uint64)
	BindIndexBuffer(b Buffer, offset uint64)
	Draw(vertexCount, firstVertex uint32)
	DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32)
}
