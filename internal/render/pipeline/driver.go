package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/gpu"
	"github.com/ecsrender/engine/internal/render/target"
)

const (
	DefaultFramesInFlight     = 2
	DefaultConstBufferEntries = 1024

	// constBufferAlign is the minimum uniform buffer offset alignment.
	constBufferAlign = 256

	// Sentinels that differ from every real id, so the first setter call
	// after an invalidation always dirties.
	noShader       = gpu.ShaderID(0xFF)
	noVertexFormat = gpu.VertexFormatID(0xFF)
)

var (
	ErrNoRenderPass = errors.New("pipeline: draw outside a render pass")
	ErrNoShader     = errors.New("pipeline: draw without a shader")
)

type Config struct {
	FramesInFlight     int
	ConstBufferEntries int
}

type constBuffer struct {
	buf     gpu.Buffer
	stride  uint64
	next    uint64 // next write offset
	last    uint64 // offset of the last fill
	filled  bool
	bound   bool
	boundAt uint64
}

type frameCounters struct {
	draws          uint64
	renderPasses   uint64
	descriptorSets uint64
}

// Stats is a snapshot of cache and frame counters.
type Stats struct {
	Frame          uint64
	FrameTime      time.Duration
	Draws          uint64
	RenderPasses   uint64
	DescriptorSets uint64
	Layouts        CacheStats
	RenderPassObjs CacheStats
	Framebuffers   CacheStats
	Pipelines      CacheStats
}

// Caches lists the four cache snapshots in resolve order.
func (s Stats) Caches() []CacheStats {
	return []CacheStats{s.Layouts, s.RenderPassObjs, s.Framebuffers, s.Pipelines}
}

// Driver records draw state into the current frame's command buffer.
// Setters only mark state dirty; the draw calls resolve it. It is not safe
// for concurrent use.
type Driver struct {
	dev     gpu.Device
	targets *target.Manager
	log     *zap.Logger

	layouts      *Cache[gpu.PipelineLayoutKey]
	renderPasses *Cache[gpu.RenderPassKey]
	framebuffers *Cache[gpu.FramebufferKey]
	pipelines    *Cache[gpu.PipelineKey]

	framesInFlight int
	frame          int
	frameID        uint64
	frameStart     time.Time
	frameTime      time.Duration
	cmd            gpu.CommandBuffer
	inFrame        bool
	inPass         bool

	layoutKey   gpu.PipelineLayoutKey
	pipeKey     gpu.PipelineKey
	layout      *Entry
	pipeline    *Entry
	renderPass  *Entry
	framebuffer *Entry

	dirtyLayout      bool
	dirtyPipeline    bool
	dirtyDescriptors bool

	scissor        gpu.Rect
	scissorDirty   bool
	depthBias      [2]float32
	depthBiasDirty bool

	textures   [effect.MaxTextureSlots]gpu.Handle
	constBufs  [effect.CBCount]constBuffer
	samplers   [effect.SamplerCount]gpu.Handle
	push       [effect.MaxPushConstantBytes]byte
	pushSize   int
	vertex     gpu.Buffer
	index      gpu.Buffer
	clearColor [4]float32

	cur, last frameCounters
}

var defaultClearColor = [4]float32{0, 0, 0, 1}

func NewDriver(dev gpu.Device, targets *target.Manager, cfg Config, log *zap.Logger) (*Driver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FramesInFlight <= 0 {
		cfg.FramesInFlight = DefaultFramesInFlight
	}
	if cfg.ConstBufferEntries <= 0 {
		cfg.ConstBufferEntries = DefaultConstBufferEntries
	}
	d := &Driver{
		dev:            dev,
		targets:        targets,
		log:            log,
		layouts:        NewCache[gpu.PipelineLayoutKey]("layouts"),
		renderPasses:   NewCache[gpu.RenderPassKey]("render_passes"),
		framebuffers:   NewCache[gpu.FramebufferKey]("framebuffers"),
		pipelines:      NewCache[gpu.PipelineKey]("pipelines"),
		framesInFlight: cfg.FramesInFlight,
		clearColor:     defaultClearColor,
	}
	for id := effect.ConstBuffer(0); id < effect.CBCount; id++ {
		stride := alignUp(uint64(id.Size()), constBufferAlign)
		buf, err := dev.CreateBuffer(gpu.BufferDescriptor{
			Label:       "cb_" + id.String(),
			Size:        stride * uint64(cfg.ConstBufferEntries),
			Usage:       gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			HostVisible: true,
		})
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("create const buffer %s: %w", id, err), d.Close(context.Background()))
		}
		d.constBufs[id] = constBuffer{buf: buf, stride: stride}
	}
	for i := range d.samplers {
		h, err := dev.CreateSampler(fmt.Sprintf("sampler_%d", i))
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("create sampler %d: %w", i, err), d.Close(context.Background()))
		}
		d.samplers[i] = h
	}
	for s := gpu.ShaderID(0); s < effect.ShaderCount; s++ {
		if _, err := d.layouts.Get(gpu.PipelineLayoutKey{Shader: s}, dev.CreatePipelineLayout); err != nil {
			return nil, multierr.Append(fmt.Errorf("create layout for %s: %w", effect.ShaderName(s), err), d.Close(context.Background()))
		}
	}
	d.invalidate()
	return d, nil
}

func alignUp(n, a uint64) uint64 { return (n + a - 1) / a * a }

// invalidate forgets all bound state so the next draw rebinds everything.
func (d *Driver) invalidate() {
	d.dirtyLayout, d.dirtyPipeline, d.dirtyDescriptors = true, true, true
	d.scissorDirty, d.depthBiasDirty = false, false

	d.layout, d.pipeline = nil, nil
	d.renderPass, d.framebuffer = nil, nil
	d.layoutKey = gpu.PipelineLayoutKey{Shader: noShader}
	d.pipeKey = gpu.PipelineKey{
		Shader:       noShader,
		VertexFormat: noVertexFormat,
		RenderPassID: d.pipeKey.RenderPassID,
	}

	clear(d.textures[:])
	for i := range d.constBufs {
		d.constBufs[i].bound = false
	}
	d.pushSize = 0
	d.vertex, d.index = gpu.Buffer{}, gpu.Buffer{}
	d.clearColor = defaultClearColor
}

// StartFrame waits for the frame context to retire, acquires the next
// swapchain image and opens the command buffer.
func (d *Driver) StartFrame(ctx context.Context) error {
	if d.inFrame {
		panic("pipeline: StartFrame inside a frame")
	}
	if err := d.dev.WaitFence(ctx, d.frame); err != nil {
		return fmt.Errorf("wait fence of frame context %d: %w", d.frame, err)
	}
	image, err := d.dev.AcquireNextImage(ctx, d.frame)
	if err != nil {
		return fmt.Errorf("acquire swapchain image: %w", err)
	}
	if err := d.dev.ResetFence(d.frame); err != nil {
		return fmt.Errorf("reset fence of frame context %d: %w", d.frame, err)
	}
	if err := d.dev.ResetDescriptorPool(d.frame); err != nil {
		return fmt.Errorf("reset descriptor pool of frame context %d: %w", d.frame, err)
	}
	d.cmd = d.dev.CommandBuffer(d.frame)
	if err := d.cmd.Begin(); err != nil {
		return fmt.Errorf("begin command buffer: %w", err)
	}
	d.targets.StartFrame(d.cmd, image)
	d.invalidate()
	d.cur = frameCounters{}
	d.frameStart = time.Now()
	d.inFrame = true
	return nil
}

// EndFrame presents the back buffer and advances to the next frame
// context. The context advances even when submit or present fail.
func (d *Driver) EndFrame() error {
	if !d.inFrame {
		panic("pipeline: EndFrame outside a frame")
	}
	if d.inPass {
		panic("pipeline: EndFrame inside a render pass")
	}
	d.targets.EndFrame()
	defer d.advance()
	if err := d.cmd.End(); err != nil {
		return fmt.Errorf("end command buffer: %w", err)
	}
	if err := d.dev.Submit(d.frame); err != nil {
		return fmt.Errorf("submit frame %d: %w", d.frameID, err)
	}
	if err := d.dev.Present(d.frame); err != nil {
		return fmt.Errorf("present frame %d: %w", d.frameID, err)
	}
	return nil
}

func (d *Driver) advance() {
	d.frameTime = time.Since(d.frameStart)
	d.last = d.cur
	d.frameID++
	d.frame = (d.frame + 1) % d.framesInFlight
	d.inFrame = false
	d.cmd = nil
}

func (d *Driver) FrameID() uint64     { return d.frameID }
func (d *Driver) FrameContext() int   { return d.frame }
func (d *Driver) InFrame() bool       { return d.inFrame }
func (d *Driver) InRenderPass() bool  { return d.inPass }
func (d *Driver) FramesInFlight() int { return d.framesInFlight }

func (d *Driver) Targets() *target.Manager { return d.targets }

// SetRenderTarget checks id out as colour attachment slot of the next pass.
func (d *Driver) SetRenderTarget(id target.ID, slot int, load gputypes.LoadOp, store gputypes.StoreOp) {
	d.targets.SetTextureAsRenderTarget(id, slot, load, store)
}

// SetDepthBuffer checks id out as the depth attachment of the next pass.
func (d *Driver) SetDepthBuffer(id target.ID, load gputypes.LoadOp, store gputypes.StoreOp) {
	d.targets.SetTextureAsDepthBuffer(id, load, store)
}

// SetRenderTargetAsShaderResource checks id out for sampling at slot.
func (d *Driver) SetRenderTargetAsShaderResource(id target.ID, slot uint32) {
	d.targets.SetTextureAsSRV(id, slot)
}

// SetClearColor sets the colour cleared into every colour attachment of
// the next pass.
func (d *Driver) SetClearColor(c [4]float32) { d.clearColor = c }

// BeginRenderPass resolves the pending attachments into a render pass and
// framebuffer and begins the pass. On error the pass is abandoned and its
// targets are returned.
func (d *Driver) BeginRenderPass() error {
	if !d.inFrame {
		panic("pipeline: BeginRenderPass outside a frame")
	}
	if d.inPass {
		panic("pipeline: nested BeginRenderPass")
	}
	pass := d.targets.Pass()
	rpKey, err := pass.RenderPassKey()
	if err != nil {
		d.abandonPass()
		return err
	}
	rp, err := d.renderPasses.Get(rpKey, d.dev.CreateRenderPass)
	if err != nil {
		d.abandonPass()
		return fmt.Errorf("create render pass %#x: %w", rpKey.Hash(), err)
	}
	fbKey, err := pass.FramebufferKey(rp.ID)
	if err != nil {
		d.abandonPass()
		return err
	}
	fb, err := d.framebuffers.Get(fbKey, func(k gpu.FramebufferKey) (gpu.Handle, error) {
		return d.dev.CreateFramebuffer(k, rp.Handle)
	})
	if err != nil {
		d.abandonPass()
		return fmt.Errorf("create framebuffer %#x: %w", fbKey.Hash(), err)
	}
	d.renderPass, d.framebuffer = rp, fb

	if d.pipeKey.RenderPassID != rp.ID {
		d.pipeKey.RenderPassID = rp.ID
		d.dirtyPipeline = true
	}
	if d.pipeKey.ViewportWidth != fbKey.Width || d.pipeKey.ViewportHeight != fbKey.Height {
		d.pipeKey.ViewportWidth, d.pipeKey.ViewportHeight = fbKey.Width, fbKey.Height
		d.dirtyPipeline = true
	}
	for _, srv := range pass.SRVs {
		d.SetTexture(srv.Texture, srv.Slot)
	}
	d.cmd.BeginRenderPass(rp.Handle, fb.Handle, fbKey.Width, fbKey.Height, pass.ClearValues(d.clearColor))
	d.inPass = true
	d.cur.renderPasses++
	return nil
}

func (d *Driver) abandonPass() {
	d.targets.ClearPass()
	d.targets.ReturnAll()
	d.invalidate()
}

// EndRenderPass ends the pass, forgets all bound state and returns every
// checked-out target.
func (d *Driver) EndRenderPass() {
	if !d.inPass {
		panic("pipeline: EndRenderPass without BeginRenderPass")
	}
	d.cmd.EndRenderPass()
	d.inPass = false
	d.targets.ClearPass()
	d.invalidate()
	d.targets.ReturnAll()
}

func (d *Driver) SetShader(id gpu.ShaderID) {
	if id >= effect.ShaderCount {
		panic(fmt.Sprintf("pipeline: unknown shader %d", id))
	}
	if d.pipeKey.Shader != id {
		d.layoutKey.Shader = id
		d.pipeKey.Shader = id
		d.dirtyLayout = true
		d.dirtyPipeline = true
	}
}

func (d *Driver) SetVertexFormat(f gpu.VertexFormatID) {
	if d.pipeKey.VertexFormat != f {
		d.pipeKey.VertexFormat = f
		d.dirtyPipeline = true
	}
}

func (d *Driver) SetDepthTestState(on bool) {
	if d.pipeKey.Depth.TestEnable != on {
		d.pipeKey.Depth.TestEnable = on
		d.dirtyPipeline = true
	}
}

func (d *Driver) SetDepthWriteState(on bool) {
	if d.pipeKey.Depth.WriteEnable != on {
		d.pipeKey.Depth.WriteEnable = on
		d.dirtyPipeline = true
	}
}

func (d *Driver) SetDepthCompare(fn gputypes.CompareFunction) {
	if d.pipeKey.Depth.Compare != fn {
		d.pipeKey.Depth.Compare = fn
		d.dirtyPipeline = true
	}
}

func (d *Driver) SetStencilTestState(on bool) {
	if d.pipeKey.Depth.StencilTestEnable != on {
		d.pipeKey.Depth.StencilTestEnable = on
		d.dirtyPipeline = true
	}
}

func (d *Driver) SetDynamicState(s gpu.DynamicState, on bool) {
	if m := d.pipeKey.Dynamic.With(s, on); m != d.pipeKey.Dynamic {
		d.pipeKey.Dynamic = m
		d.dirtyPipeline = true
	}
}

// SetTexture binds tex at slot; a zero texture unbinds the slot.
func (d *Driver) SetTexture(tex gpu.Texture, slot uint32) {
	if slot >= effect.MaxTextureSlots {
		panic(fmt.Sprintf("pipeline: texture slot %d out of range", slot))
	}
	if d.textures[slot] != tex.View {
		d.textures[slot] = tex.View
		d.dirtyDescriptors = true
	}
}

// FillConstBuffer copies data into the next ring slot of id. data must be
// exactly id.Size() bytes.
func (d *Driver) FillConstBuffer(id effect.ConstBuffer, data []byte) error {
	if uint32(len(data)) != id.Size() {
		panic(fmt.Sprintf("pipeline: const buffer %s takes %d bytes, got %d", id, id.Size(), len(data)))
	}
	cb := &d.constBufs[id]
	if cb.next+cb.stride > cb.buf.Size {
		cb.next = 0
	}
	if err := d.dev.WriteBuffer(cb.buf, cb.next, data); err != nil {
		return fmt.Errorf("fill const buffer %s: %w", id, err)
	}
	cb.last = cb.next
	cb.filled = true
	cb.next += cb.stride
	return nil
}

// SetConstBuffer binds the last fill of id.
func (d *Driver) SetConstBuffer(id effect.ConstBuffer) {
	cb := &d.constBufs[id]
	if !cb.filled {
		panic(fmt.Sprintf("pipeline: const buffer %s bound before it was filled", id))
	}
	if !cb.bound || cb.boundAt != cb.last {
		cb.bound = true
		cb.boundAt = cb.last
		d.dirtyDescriptors = true
	}
}

// FillPushConstants stages data for the next draw.
func (d *Driver) FillPushConstants(data []byte) {
	if len(data) > effect.MaxPushConstantBytes {
		panic(fmt.Sprintf("pipeline: %d bytes of push constants exceed %d", len(data), effect.MaxPushConstantBytes))
	}
	d.pushSize = copy(d.push[:], data)
}

func (d *Driver) SetScissorRect(r gpu.Rect) {
	d.scissor = r
	d.scissorDirty = true
}

func (d *Driver) SetDepthBias(constant, slope float32) {
	d.depthBias = [2]float32{constant, slope}
	d.depthBiasDirty = true
}

func (d *Driver) SetVertexBuffer(b gpu.Buffer) {
	if d.vertex != b {
		d.vertex = b
		d.cmd.BindVertexBuffer(b, 0)
	}
}

func (d *Driver) SetIndexBuffer(b gpu.Buffer) {
	if d.index != b {
		d.index = b
		d.cmd.BindIndexBuffer(b, 0)
	}
}

func (d *Driver) Draw(vertexCount uint32) error {
	if err := d.flush(); err != nil {
		return err
	}
	d.cmd.Draw(vertexCount, 0)
	d.cur.draws++
	return nil
}

func (d *Driver) DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32) error {
	if err := d.flush(); err != nil {
		return err
	}
	d.cmd.DrawIndexed(indexCount, firstIndex, vertexOffset)
	d.cur.draws++
	return nil
}

// DrawFullscreen draws the single triangle that covers the target.
func (d *Driver) DrawFullscreen() error { return d.Draw(3) }

// flush resolves dirty state in dependency order: the layout decides the
// descriptor set layout and is part of the pipeline key.
func (d *Driver) flush() error {
	if !d.inPass {
		return ErrNoRenderPass
	}
	if d.layoutKey.Shader == noShader {
		return ErrNoShader
	}
	bindSet := d.dirtyDescriptors
	if d.dirtyLayout {
		e, err := d.layouts.Get(d.layoutKey, d.dev.CreatePipelineLayout)
		if err != nil {
			return fmt.Errorf("pipeline layout for %s: %w", effect.ShaderName(d.layoutKey.Shader), err)
		}
		d.layout = e
		if d.pipeKey.LayoutID != e.ID {
			d.pipeKey.LayoutID = e.ID
			d.dirtyPipeline = true
			bindSet = true
		}
		d.dirtyLayout = false
	}
	if bindSet {
		set, err := d.dev.AllocateDescriptorSet(d.frame, d.layout.Handle)
		if err != nil {
			return fmt.Errorf("allocate descriptor set: %w", err)
		}
		d.dev.UpdateDescriptorSet(set, d.descriptorWrites())
		d.cmd.BindDescriptorSet(d.layout.Handle, set)
		d.dirtyDescriptors = false
		d.cur.descriptorSets++
	}
	if d.dirtyPipeline {
		e, err := d.pipelines.Get(d.pipeKey, func(k gpu.PipelineKey) (gpu.Handle, error) {
			return d.dev.CreatePipeline(k, d.layout.Handle, d.renderPass.Handle)
		})
		if err != nil {
			return fmt.Errorf("pipeline for %s: %w", effect.ShaderName(d.pipeKey.Shader), err)
		}
		if d.pipeline != e {
			d.pipeline = e
			d.cmd.BindPipeline(e.Handle)
		}
		d.dirtyPipeline = false
	}
	if d.pushSize > 0 {
		d.cmd.PushConstants(d.layout.Handle, d.push[:d.pushSize])
		d.pushSize = 0
	}
	if d.scissorDirty {
		d.cmd.SetScissor(d.scissor)
		d.scissorDirty = false
	}
	if d.depthBiasDirty {
		d.cmd.SetDepthBias(d.depthBias[0], d.depthBias[1])
		d.depthBiasDirty = false
	}
	return nil
}

func (d *Driver) descriptorWrites() []gpu.DescriptorWrite {
	writes := make([]gpu.DescriptorWrite, 0, len(d.samplers)+8)
	for i, s := range d.samplers {
		writes = append(writes, gpu.DescriptorWrite{
			Binding: effect.SamplerSlotBase + uint32(i),
			Kind:    gpu.DescriptorSampler,
			View:    s,
		})
	}
	for slot, view := range d.textures {
		if view != gpu.NullHandle {
			writes = append(writes, gpu.DescriptorWrite{
				Binding: uint32(slot),
				Kind:    gpu.DescriptorSampledImage,
				View:    view,
			})
		}
	}
	for id := effect.ConstBuffer(0); id < effect.CBCount; id++ {
		cb := &d.constBufs[id]
		if cb.bound {
			writes = append(writes, gpu.DescriptorWrite{
				Binding: id.Slot(),
				Kind:    gpu.DescriptorUniformBuffer,
				Buffer:  cb.buf.Handle,
				Offset:  cb.boundAt,
				Range:   uint64(id.Size()),
			})
		}
	}
	return writes
}

// DropPipelineCache destroys every cached device object. Shader reloads
// call it because pipelines reference the old shader modules. Counters
// survive.
func (d *Driver) DropPipelineCache(ctx context.Context) error {
	if d.inFrame {
		panic("pipeline: DropPipelineCache inside a frame")
	}
	if err := d.dev.WaitIdle(ctx); err != nil {
		return fmt.Errorf("wait idle before dropping pipelines: %w", err)
	}
	n := d.pipelines.Len()
	d.pipelines.Clear(d.dev.DestroyObject)
	d.framebuffers.Clear(d.dev.DestroyObject)
	d.renderPasses.Clear(d.dev.DestroyObject)
	d.layouts.Clear(d.dev.DestroyObject)
	d.pipeKey.RenderPassID = 0
	d.invalidate()
	d.log.Info("pipeline cache dropped", zap.Int("pipelines", n))
	return nil
}

// Resize resizes the swapchain and the back-buffer sized targets and drops
// the framebuffers that referenced the old views.
func (d *Driver) Resize(ctx context.Context, w, h uint32) error {
	if d.inFrame {
		panic("pipeline: Resize inside a frame")
	}
	if err := d.dev.WaitIdle(ctx); err != nil {
		return fmt.Errorf("wait idle before resize: %w", err)
	}
	if err := d.dev.Resize(w, h); err != nil {
		return fmt.Errorf("resize swapchain: %w", err)
	}
	if err := d.targets.Resize(w, h); err != nil {
		return err
	}
	d.framebuffers.Clear(d.dev.DestroyObject)
	return nil
}

func (d *Driver) Stats() Stats {
	return Stats{
		Frame:          d.frameID,
		FrameTime:      d.frameTime,
		Draws:          d.last.draws,
		RenderPasses:   d.last.renderPasses,
		DescriptorSets: d.last.descriptorSets,
		Layouts:        d.layouts.Stats(),
		RenderPassObjs: d.renderPasses.Stats(),
		Framebuffers:   d.framebuffers.Stats(),
		Pipelines:      d.pipelines.Stats(),
	}
}

// Close waits for the device and releases everything the driver created.
func (d *Driver) Close(ctx context.Context) error {
	err := d.dev.WaitIdle(ctx)
	d.pipelines.Clear(d.dev.DestroyObject)
	d.framebuffers.Clear(d.dev.DestroyObject)
	d.renderPasses.Clear(d.dev.DestroyObject)
	d.layouts.Clear(d.dev.DestroyObject)
	for i := range d.samplers {
		if d.samplers[i] != gpu.NullHandle {
			d.dev.DestroyObject(d.samplers[i])
			d.samplers[i] = gpu.NullHandle
		}
	}
	for i := range d.constBufs {
		if !d.constBufs[i].buf.IsZero() {
			d.dev.DestroyBuffer(d.constBufs[i].buf)
			d.constBufs[i] = constBuffer{}
		}
	}
	if err != nil {
		return fmt.Errorf("wait idle on close: %w", err)
	}
	return nil
}
