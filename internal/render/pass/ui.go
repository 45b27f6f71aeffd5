package pass

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/gpu"
	"github.com/ecsrender/engine/internal/render/pipeline"
	"github.com/ecsrender/engine/internal/render/target"
)

const (
	DefaultMaxLines = 32

	glyphWidth = 8
	lineHeight = 16
	margin     = 8

	uiVertexSize = 20 // x, y, u, v float32 + packed RGBA
	uiIndexSize  = 4
)

// UIPass draws the overlay text lines on top of the back buffer, one
// scissored quad per line. Each frame context owns its own region of the
// vertex and index buffers so a frame in flight is never overwritten.
type UIPass struct {
	ecs.SystemBase
	dev      gpu.Device
	font     gpu.Texture
	vertices gpu.Buffer
	indices  gpu.Buffer
	maxLines int
	contexts int

	vbuf []byte
	ibuf []byte
}

func NewUIPass(w *ecs.World, dev gpu.Device, maxLines, framesInFlight int) (*UIPass, error) {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if framesInFlight <= 0 {
		framesInFlight = 1
	}
	p := &UIPass{dev: dev, maxLines: maxLines, contexts: framesInFlight}
	var err error
	p.font, err = dev.CreateTexture(gpu.TextureDescriptor{
		Label:     "ui_font",
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Width:     1,
		Height:    1,
		MipLevels: 1,
		Usage:     gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		Data:      []byte{0xFF, 0xFF, 0xFF, 0xFF},
	})
	if err != nil {
		return nil, fmt.Errorf("create ui font: %w", err)
	}
	quads := uint64(maxLines * framesInFlight)
	p.vertices, err = dev.CreateBuffer(gpu.BufferDescriptor{
		Label:       "ui_vertices",
		Size:        quads * 4 * uiVertexSize,
		Usage:       gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
		HostVisible: true,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create ui vertex buffer: %w", err)
	}
	p.indices, err = dev.CreateBuffer(gpu.BufferDescriptor{
		Label:       "ui_indices",
		Size:        quads * 6 * uiIndexSize,
		Usage:       gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
		HostVisible: true,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create ui index buffer: %w", err)
	}
	return ecs.RegisterSystem(w, p), nil
}

func (p *UIPass) Record(d *pipeline.Driver, f *Frame) error {
	lines := f.Overlay
	if len(lines) == 0 {
		return nil
	}
	if len(lines) > p.maxLines {
		lines = lines[:p.maxLines]
	}
	width := d.Targets().Width(target.BackBuffer)
	height := d.Targets().Height(target.BackBuffer)

	base := d.FrameContext() % p.contexts * p.maxLines
	rects := p.build(lines, width, height)
	if err := p.dev.WriteBuffer(p.vertices, uint64(base*4*uiVertexSize), p.vbuf); err != nil {
		return fmt.Errorf("upload ui vertices: %w", err)
	}
	if err := p.dev.WriteBuffer(p.indices, uint64(base*6*uiIndexSize), p.ibuf); err != nil {
		return fmt.Errorf("upload ui indices: %w", err)
	}

	d.SetRenderTarget(target.BackBuffer, 0, gputypes.LoadOpLoad, gputypes.StoreOpStore)
	if err := d.BeginRenderPass(); err != nil {
		return err
	}
	defer d.EndRenderPass()

	d.SetDynamicState(gpu.DynamicScissor, true)
	d.SetDepthTestState(false)
	d.SetDepthWriteState(false)
	d.SetShader(effect.ShaderUI)
	d.SetVertexFormat(effect.VertexUI)
	d.SetVertexBuffer(p.vertices)
	d.SetIndexBuffer(p.indices)
	d.SetTexture(p.font, effect.SlotAlbedo)

	// Pixel to clip space.
	push := effect.Bytes([4]float32{2 / float32(width), 2 / float32(height), -1, -1})
	for i, r := range rects {
		d.FillPushConstants(push)
		d.SetScissorRect(r)
		if err := d.DrawIndexed(6, uint32((base+i)*6), int32(base*4)); err != nil {
			return err
		}
	}
	return nil
}

// build encodes one quad per line into vbuf and ibuf and returns each
// quad's scissor rectangle clipped to the target.
func (p *UIPass) build(lines []string, width, height uint32) []gpu.Rect {
	p.vbuf = p.vbuf[:0]
	p.ibuf = p.ibuf[:0]
	rects := make([]gpu.Rect, 0, len(lines))
	for i, line := range lines {
		x0 := float32(margin)
		y0 := float32(margin + i*lineHeight)
		x1 := min(x0+float32(glyphWidth*len(line)), float32(width))
		y1 := min(y0+lineHeight-2, float32(height))
		for _, v := range [4][4]float32{{x0, y0, 0, 0}, {x1, y0, 1, 0}, {x1, y1, 1, 1}, {x0, y1, 0, 1}} {
			for _, c := range v {
				p.vbuf = binary.LittleEndian.AppendUint32(p.vbuf, math.Float32bits(c))
			}
			p.vbuf = binary.LittleEndian.AppendUint32(p.vbuf, 0xFFFFFFFF)
		}
		q := uint32(i * 4)
		for _, idx := range [6]uint32{q, q + 1, q + 2, q, q + 2, q + 3} {
			p.ibuf = binary.LittleEndian.AppendUint32(p.ibuf, idx)
		}
		rects = append(rects, gpu.Rect{
			X:      int32(x0),
			Y:      int32(y0),
			Width:  uint32(max(x1-x0, 0)),
			Height: uint32(max(y1-y0, 0)),
		})
	}
	return rects
}

func (p *UIPass) Close() {
	if !p.vertices.IsZero() {
		p.dev.DestroyBuffer(p.vertices)
		p.vertices = gpu.Buffer{}
	}
	if !p.indices.IsZero() {
		p.dev.DestroyBuffer(p.indices)
		p.indices = gpu.Buffer{}
	}
	if !p.font.IsZero() {
		p.dev.DestroyTexture(p.font)
		p.font = gpu.Texture{}
	}
}
