// Package headless is a gpu.Device that allocates handles and records
// commands without touching a GPU. The renderer runs on it in tests and in
// the default build.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/render/gpu"
)

// Object kinds, used for accounting and failure injection.
const (
	KindTexture        = "texture"
	KindBuffer         = "buffer"
	KindSampler        = "sampler"
	KindShader         = "shader"
	KindPipelineLayout = "pipeline-layout"
	KindRenderPass     = "render-pass"
	KindFramebuffer    = "framebuffer"
	KindPipeline       = "pipeline"
	KindDescriptorSet  = "descriptor-set"
	KindView           = "view"
)

var (
	errFenceUnsignaled = errors.New("headless: fence waited on without a submit")
	errRecording       = errors.New("headless: command buffer already recording")
	errNotRecording    = errors.New("headless: command buffer not recording")
	errInsidePass      = errors.New("headless: command buffer ended inside a render pass")
)

type Config struct {
	Width           uint32
	Height          uint32
	Format          gputypes.TextureFormat
	FramesInFlight  int
	SwapchainImages int
}

type frameContext struct {
	cmd       *CommandBuffer
	signaled  bool
	sets      int
	submitted uint64
}

// Device implements gpu.Device. It is not safe for concurrent use, like
// the frame loop that drives it.
type Device struct {
	log *zap.Logger
	cfg Config

	next    gpu.Handle
	live    map[gpu.Handle]string
	created map[string]int
	fail    map[string]error
	buffers map[gpu.Handle][]byte

	frames     []frameContext
	swapchain  []gpu.Texture
	image      int
	lastWrites []gpu.DescriptorWrite

	submits  uint64
	presents uint64
	closed   bool
}

var _ gpu.Device = (*Device)(nil)

func New(cfg Config, log *zap.Logger) *Device {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FramesInFlight <= 0 {
		cfg.FramesInFlight = 2
	}
	if cfg.SwapchainImages <= 0 {
		cfg.SwapchainImages = 3
	}
	if cfg.Format == gputypes.TextureFormatUndefined {
		cfg.Format = gputypes.TextureFormatBGRA8Unorm
	}
	d := &Device{
		log:     log,
		cfg:     cfg,
		live:    make(map[gpu.Handle]string),
		created: make(map[string]int),
		fail:    make(map[string]error),
		buffers: make(map[gpu.Handle][]byte),
		frames:  make([]frameContext, cfg.FramesInFlight),
	}
	for i := range d.frames {
		d.frames[i] = frameContext{cmd: &CommandBuffer{}, signaled: true}
	}
	d.buildSwapchain()
	return d
}

func (d *Device) buildSwapchain() {
	for _, img := range d.swapchain {
		delete(d.live, img.Image)
		delete(d.live, img.View)
	}
	d.swapchain = d.swapchain[:0]
	for i := 0; i < d.cfg.SwapchainImages; i++ {
		d.swapchain = append(d.swapchain, gpu.Texture{
			Image:     d.alloc(KindTexture),
			View:      d.alloc(KindView),
			Format:    d.cfg.Format,
			Width:     d.cfg.Width,
			Height:    d.cfg.Height,
			MipLevels: 1,
			Label:     fmt.Sprintf("swapchain-%d", i),
		})
	}
	d.image = 0
}

func (d *Device) alloc(kind string) gpu.Handle {
	d.next++
	d.live[d.next] = kind
	d.created[kind]++
	return d.next
}

// FailNext makes the next creation of kind return err.
func (d *Device) FailNext(kind string, err error) { d.fail[kind] = err }

func (d *Device) injected(kind string) error {
	if err, ok := d.fail[kind]; ok {
		delete(d.fail, kind)
		return err
	}
	return nil
}

// Created returns how many objects of kind were ever created.
func (d *Device) Created(kind string) int { return d.created[kind] }

// Live returns how many objects of kind are currently alive.
func (d *Device) Live(kind string) int {
	n := 0
	for _, k := range d.live {
		if k == kind {
			n++
		}
	}
	return n
}

// LiveKinds returns a sorted "kind=count" summary of live objects.
func (d *Device) LiveKinds() []string {
	counts := make(map[string]int)
	for _, k := range d.live {
		counts[k]++
	}
	out := make([]string, 0, len(counts))
	for k, n := range counts {
		out = append(out, fmt.Sprintf("%s=%d", k, n))
	}
	sort.Strings(out)
	return out
}

func (d *Device) Submits() uint64  { return d.submits }
func (d *Device) Presents() uint64 { return d.presents }

// Recorded returns the commands recorded on frame context i since its last Begin.
func (d *Device) Recorded(frame int) []Command {
	return d.frames[frame].cmd.cmds
}

// BufferContents returns a copy of everything written to b.
func (d *Device) BufferContents(b gpu.Buffer) []byte {
	return append([]byte(nil), d.buffers[b.Handle]...)
}

func (d *Device) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	if err := d.injected(KindTexture); err != nil {
		return gpu.Texture{}, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return gpu.Texture{}, fmt.Errorf("headless: texture %q has zero extent %dx%d", desc.Label, desc.Width, desc.Height)
	}
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	return gpu.Texture{
		Image:     d.alloc(KindTexture),
		View:      d.alloc(KindView),
		Format:    desc.Format,
		Width:     desc.Width,
		Height:    desc.Height,
		MipLevels: mips,
		Label:     desc.Label,
	}, nil
}

func (d *Device) DestroyTexture(t gpu.Texture) {
	d.release(t.Image)
	d.release(t.View)
}

func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	if err := d.injected(KindBuffer); err != nil {
		return gpu.Buffer{}, err
	}
	if desc.Size == 0 {
		return gpu.Buffer{}, fmt.Errorf("headless: buffer %q has zero size", desc.Label)
	}
	b := gpu.Buffer{Handle: d.alloc(KindBuffer), Size: desc.Size}
	d.buffers[b.Handle] = make([]byte, desc.Size)
	if len(desc.Data) > 0 {
		if err := d.WriteBuffer(b, 0, desc.Data); err != nil {
			return gpu.Buffer{}, err
		}
	}
	return b, nil
}

func (d *Device) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	mem, ok := d.buffers[b.Handle]
	if !ok {
		return fmt.Errorf("headless: write to unknown buffer %d", b.Handle)
	}
	if offset+uint64(len(data)) > uint64(len(mem)) {
		return fmt.Errorf("headless: write of %d bytes at %d overflows buffer of %d", len(data), offset, len(mem))
	}
	copy(mem[offset:], data)
	return nil
}

func (d *Device) DestroyBuffer(b gpu.Buffer) {
	delete(d.buffers, b.Handle)
	d.release(b.Handle)
}

func (d *Device) CreateSampler(label string) (gpu.Handle, error) {
	if err := d.injected(KindSampler); err != nil {
		return gpu.NullHandle, err
	}
	return d.alloc(KindSampler), nil
}

func (d *Device) CreateShaderModule(desc gpu.ShaderDescriptor) (gpu.Handle, error) {
	if err := d.injected(KindShader); err != nil {
		return gpu.NullHandle, err
	}
	if len(desc.Code) == 0 {
		return gpu.NullHandle, fmt.Errorf("headless: shader %q is empty", desc.Label)
	}
	return d.alloc(KindShader), nil
}

func (d *Device) CreatePipelineLayout(key gpu.PipelineLayoutKey) (gpu.Handle, error) {
	if err := d.injected(KindPipelineLayout); err != nil {
		return gpu.NullHandle, err
	}
	return d.alloc(KindPipelineLayout), nil
}

func (d *Device) CreateRenderPass(key gpu.RenderPassKey) (gpu.Handle, error) {
	if err := d.injected(KindRenderPass); err != nil {
		return gpu.NullHandle, err
	}
	if key.ColorCount == 0 && !key.HasDepth {
		return gpu.NullHandle, errors.New("headless: render pass without attachments")
	}
	return d.alloc(KindRenderPass), nil
}

func (d *Device) CreateFramebuffer(key gpu.FramebufferKey, renderPass gpu.Handle) (gpu.Handle, error) {
	if err := d.injected(KindFramebuffer); err != nil {
		return gpu.NullHandle, err
	}
	if d.live[renderPass] != KindRenderPass {
		return gpu.NullHandle, fmt.Errorf("headless: framebuffer on unknown render pass %d", renderPass)
	}
	return d.alloc(KindFramebuffer), nil
}

func (d *Device) CreatePipeline(key gpu.PipelineKey, layout, renderPass gpu.Handle) (gpu.Handle, error) {
	if err := d.injected(KindPipeline); err != nil {
		return gpu.NullHandle, err
	}
	if d.live[layout] != KindPipelineLayout {
		return gpu.NullHandle, fmt.Errorf("headless: pipeline on unknown layout %d", layout)
	}
	if d.live[renderPass] != KindRenderPass {
		return gpu.NullHandle, fmt.Errorf("headless: pipeline on unknown render pass %d", renderPass)
	}
	return d.alloc(KindPipeline), nil
}

func (d *Device) DestroyObject(h gpu.Handle) { d.release(h) }

func (d *Device) release(h gpu.Handle) {
	if h == gpu.NullHandle {
		return
	}
	if _, ok := d.live[h]; !ok {
		d.log.Warn("destroy of unknown handle", zap.Uint64("handle", uint64(h)))
		return
	}
	delete(d.live, h)
}

func (d *Device) BackBufferFormat() gputypes.TextureFormat { return d.cfg.Format }

func (d *Device) BackBufferSize() (uint32, uint32) { return d.cfg.Width, d.cfg.Height }

func (d *Device) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("headless: resize to %dx%d", width, height)
	}
	d.cfg.Width, d.cfg.Height = width, height
	d.buildSwapchain()
	d.log.Debug("swapchain resized", zap.Uint32("width", width), zap.Uint32("height", height))
	return nil
}

func (d *Device) WaitFence(ctx context.Context, frame int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.frames[frame].signaled {
		return errFenceUnsignaled
	}
	return nil
}

func (d *Device) ResetFence(frame int) error {
	d.frames[frame].signaled = false
	return nil
}

func (d *Device) ResetDescriptorPool(frame int) error {
	d.frames[frame].sets = 0
	return nil
}

func (d *Device) AllocateDescriptorSet(frame int, layout gpu.Handle) (gpu.Handle, error) {
	if err := d.injected(KindDescriptorSet); err != nil {
		return gpu.NullHandle, err
	}
	d.frames[frame].sets++
	d.next++
	d.created[KindDescriptorSet]++
	return d.next, nil
}

// DescriptorSets returns the sets allocated from frame's pool since its last reset.
func (d *Device) DescriptorSets(frame int) int { return d.frames[frame].sets }

func (d *Device) UpdateDescriptorSet(set gpu.Handle, writes []gpu.DescriptorWrite) {
	d.lastWrites = append(d.lastWrites[:0], writes...)
}

// LastDescriptorWrites returns the writes of the most recent descriptor set update.
func (d *Device) LastDescriptorWrites() []gpu.DescriptorWrite { return d.lastWrites }

func (d *Device) CommandBuffer(frame int) gpu.CommandBuffer { return d.frames[frame].cmd }

func (d *Device) AcquireNextImage(ctx context.Context, frame int) (gpu.Texture, error) {
	if err := ctx.Err(); err != nil {
		return gpu.Texture{}, err
	}
	img := d.swapchain[d.image]
	d.image = (d.image + 1) % len(d.swapchain)
	return img, nil
}

func (d *Device) Submit(frame int) error {
	fc := &d.frames[frame]
	if fc.cmd.recording {
		return fmt.Errorf("headless: submit of frame %d while still recording", frame)
	}
	d.submits++
	fc.submitted = d.submits
	fc.signaled = true
	return nil
}

func (d *Device) Present(frame int) error {
	d.presents++
	return nil
}

func (d *Device) WaitIdle(ctx context.Context) error { return ctx.Err() }

func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	for _, img := range d.swapchain {
		delete(d.live, img.Image)
		delete(d.live, img.View)
	}
	if n := len(d.live); n > 0 {
		d.log.Warn("device closed with live objects", zap.Int("count", n), zap.Strings("kinds", d.LiveKinds()))
		return fmt.Errorf("headless: %d objects leaked", n)
	}
	return nil
}
