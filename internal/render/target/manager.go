package target

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/render/gpu"
)

// Allocator is the part of gpu.Device the manager needs.
type Allocator interface {
	CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error)
	DestroyTexture(t gpu.Texture)
	BackBufferFormat() gputypes.TextureFormat
	BackBufferSize() (uint32, uint32)
}

type state struct {
	layout       gpu.ImageLayout
	futureLayout gpu.ImageLayout
	access       gpu.Access
	futureAccess gpu.Access
	tex          gpu.Texture
}

func (s *state) invalidate() {
	s.layout, s.futureLayout = gpu.LayoutUndefined, gpu.LayoutUndefined
	s.access, s.futureAccess = gpu.AccessUnknown, gpu.AccessUnknown
}

// Manager is not safe for concurrent use; the frame loop is its only caller.
type Manager struct {
	dev   Allocator
	log   *zap.Logger
	specs [Count]Spec

	states     [Count]state
	checkedOut uint32
	cmd        gpu.CommandBuffer
	pass       PassResources

	width, height uint32
}

func New(dev Allocator, specs [Count]Spec, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{dev: dev, log: log, specs: specs}
	for i := range m.states {
		m.states[i].invalidate()
	}
	w, h := dev.BackBufferSize()
	if err := m.allocate(w, h, func(Spec) bool { return true }); err != nil {
		m.Close()
		return nil, err
	}
	m.width, m.height = w, h
	log.Info("render targets created",
		zap.Uint32("width", w),
		zap.Uint32("height", h),
		zap.Uint32("shadow_map", specs[ShadowMap].Size))
	return m, nil
}

// allocate (re)creates every owned target selected by which.
func (m *Manager) allocate(w, h uint32, which func(Spec) bool) error {
	for id := ID(0); id < BackBuffer; id++ {
		spec := m.specs[id]
		if !which(spec) {
			continue
		}
		if !m.states[id].tex.IsZero() {
			m.dev.DestroyTexture(m.states[id].tex)
			m.states[id].tex = gpu.Texture{}
		}
		tw, th := spec.Extent(w, h)
		tex, err := m.dev.CreateTexture(gpu.TextureDescriptor{
			Label:     id.String(),
			Format:    spec.Format,
			Width:     tw,
			Height:    th,
			MipLevels: 1,
			Usage:     spec.Usage,
		})
		if err != nil {
			return fmt.Errorf("create render target %s: %w", id, err)
		}
		m.states[id].tex = tex
		m.states[id].invalidate()
	}
	return nil
}

// Resize recreates the targets that follow the back buffer. It is a no-op
// when the size is unchanged.
func (m *Manager) Resize(w, h uint32) error {
	if w == m.width && h == m.height {
		return nil
	}
	if m.checkedOut != 0 {
		return fmt.Errorf("target: resize with targets checked out (%#x)", m.checkedOut)
	}
	if err := m.allocate(w, h, func(s Spec) bool { return s.Size == 0 }); err != nil {
		return err
	}
	m.width, m.height = w, h
	m.log.Info("render targets resized", zap.Uint32("width", w), zap.Uint32("height", h))
	return nil
}

// Close destroys the owned targets. The back buffer belongs to the swapchain.
func (m *Manager) Close() {
	for id := ID(0); id < BackBuffer; id++ {
		if !m.states[id].tex.IsZero() {
			m.dev.DestroyTexture(m.states[id].tex)
			m.states[id].tex = gpu.Texture{}
		}
	}
}

// StartFrame opens a frame recording into cmd. Content does not survive
// frames, so every layout is reset to undefined.
func (m *Manager) StartFrame(cmd gpu.CommandBuffer, backBuffer gpu.Texture) {
	if m.checkedOut != 0 {
		panic(fmt.Sprintf("target: frame started with targets still checked out: %s", m.describeCheckedOut()))
	}
	for i := range m.states {
		m.states[i].invalidate()
	}
	m.states[BackBuffer].tex = backBuffer
	m.cmd = cmd
	m.pass.Reset()
}

// EndFrame moves the back buffer to the present layout and returns it.
func (m *Manager) EndFrame() {
	m.Acquire(BackBuffer, gpu.AccessNone, gpu.LayoutPresentSrc)
	m.Return(BackBuffer)
	m.cmd = nil
}

// Acquire checks id out for the caller and records a layout transition
// when the tracked layout differs from layout. Acquiring a target that is
// already checked out is a programming error and panics.
func (m *Manager) Acquire(id ID, access gpu.Access, layout gpu.ImageLayout) gpu.Texture {
	if id >= Count {
		panic(fmt.Sprintf("target: unknown render target %d", id))
	}
	if m.cmd == nil {
		panic(fmt.Sprintf("target: %s acquired outside a frame", id))
	}
	if m.checkedOut&(1<<id) != 0 {
		panic(fmt.Sprintf("target: %s is already checked out", id))
	}
	m.checkedOut |= 1 << id
	s := &m.states[id]
	s.futureLayout = layout
	s.futureAccess = access
	if s.layout != s.futureLayout {
		m.cmd.TransitionLayout(s.tex, s.layout, s.futureLayout, s.access, s.futureAccess)
	}
	return s.tex
}

// Return commits the pending layout and access of id and makes it
// available again.
func (m *Manager) Return(id ID) {
	s := &m.states[id]
	s.layout = s.futureLayout
	s.access = s.futureAccess
	m.checkedOut &^= 1 << id
}

// ReturnAll returns every checked-out target.
func (m *Manager) ReturnAll() {
	for id := ID(0); id < Count; id++ {
		if m.checkedOut&(1<<id) != 0 {
			m.Return(id)
		}
	}
}

// SetTextureAsRenderTarget binds id as colour attachment slot.
func (m *Manager) SetTextureAsRenderTarget(id ID, slot int, load gputypes.LoadOp, store gputypes.StoreOp) {
	if slot < 0 || slot >= gpu.MaxColorAttachments {
		panic(fmt.Sprintf("target: colour slot %d out of range", slot))
	}
	if m.pass.HasColor(slot) {
		panic(fmt.Sprintf("target: colour slot %d already holds %s", slot, m.pass.Color[slot].Target))
	}
	prev := m.states[id].layout
	tex := m.Acquire(id, gpu.AccessColorAttachmentRead|gpu.AccessColorAttachmentWrite, gpu.LayoutColorAttachment)
	m.pass.Color[slot] = Attachment{
		Target:  id,
		Texture: tex,
		Key:     m.attachmentKey(id, tex, load, store, prev),
	}
	m.pass.colorSet |= 1 << slot
}

// SetTextureAsDepthBuffer binds id as the depth attachment.
func (m *Manager) SetTextureAsDepthBuffer(id ID, load gputypes.LoadOp, store gputypes.StoreOp) {
	if m.pass.HasDepth {
		panic(fmt.Sprintf("target: depth attachment already holds %s", m.pass.Depth.Target))
	}
	prev := m.states[id].layout
	tex := m.Acquire(id, gpu.AccessDepthStencilRead|gpu.AccessDepthStencilWrite, gpu.LayoutDepthStencilAttachment)
	m.pass.Depth = Attachment{
		Target:  id,
		Texture: tex,
		Key:     m.attachmentKey(id, tex, load, store, prev),
	}
	m.pass.HasDepth = true
}

// SetTextureAsSRV binds id for sampling at slot during the next pass.
func (m *Manager) SetTextureAsSRV(id ID, slot uint32) {
	tex := m.Acquire(id, gpu.AccessShaderRead, gpu.LayoutShaderReadOnly)
	m.pass.SRVs = append(m.pass.SRVs, ShaderResource{Target: id, Slot: slot, Texture: tex})
}

func (m *Manager) attachmentKey(id ID, tex gpu.Texture, load gputypes.LoadOp, store gputypes.StoreOp, prev gpu.ImageLayout) gpu.AttachmentKey {
	return gpu.AttachmentKey{
		Format:        tex.Format,
		Load:          load,
		Store:         store,
		InitialLayout: prev,
		FinalLayout:   m.states[id].futureLayout,
	}
}

// Pass returns the pending pass description.
func (m *Manager) Pass() *PassResources { return &m.pass }

// ClearPass drops the pending pass description without returning targets.
func (m *Manager) ClearPass() { m.pass.Reset() }

func (m *Manager) Available(id ID) bool { return m.checkedOut&(1<<id) == 0 }

// AllAvailable reports whether no target is checked out.
func (m *Manager) AllAvailable() bool { return m.checkedOut == 0 }

func (m *Manager) Texture(id ID) gpu.Texture { return m.states[id].tex }

func (m *Manager) Width(id ID) uint32 {
	if id == BackBuffer {
		w, _ := m.dev.BackBufferSize()
		return w
	}
	return m.states[id].tex.Width
}

func (m *Manager) Height(id ID) uint32 {
	if id == BackBuffer {
		_, h := m.dev.BackBufferSize()
		return h
	}
	return m.states[id].tex.Height
}

func (m *Manager) Format(id ID) gputypes.TextureFormat {
	if id == BackBuffer {
		return m.dev.BackBufferFormat()
	}
	return m.states[id].tex.Format
}

func (m *Manager) PrevLayout(id ID) gpu.ImageLayout   { return m.states[id].layout }
func (m *Manager) FutureLayout(id ID) gpu.ImageLayout { return m.states[id].futureLayout }
func (m *Manager) Access(id ID) gpu.Access            { return m.states[id].access }

func (m *Manager) describeCheckedOut() string {
	var s string
	for id := ID(0); id < Count; id++ {
		if m.checkedOut&(1<<id) != 0 {
			if s != "" {
				s += ","
			}
			s += id.String()
		}
	}
	return s
}
