package target

import (
	"fmt"

	"github.com/ecsrender/engine/internal/render/gpu"
)

// Attachment is one colour or depth attachment of the pending pass.
type Attachment struct {
	Target  ID
	Texture gpu.Texture
	Key     gpu.AttachmentKey
}

// ShaderResource is a target bound for sampling during the pending pass.
type ShaderResource struct {
	Target  ID
	Slot    uint32
	Texture gpu.Texture
}

// PassResources collects what the next render pass attaches and samples.
type PassResources struct {
	Color    [gpu.MaxColorAttachments]Attachment
	colorSet uint8
	Depth    Attachment
	HasDepth bool
	SRVs     []ShaderResource
}

// ColorCount is one past the highest colour slot in use.
func (p *PassResources) ColorCount() int {
	n := 0
	for i := 0; i < gpu.MaxColorAttachments; i++ {
		if p.colorSet&(1<<i) != 0 {
			n = i + 1
		}
	}
	return n
}

func (p *PassResources) HasColor(slot int) bool { return p.colorSet&(1<<slot) != 0 }

// Empty reports whether the pass has no attachments.
func (p *PassResources) Empty() bool { return p.colorSet == 0 && !p.HasDepth }

func (p *PassResources) Reset() {
	*p = PassResources{SRVs: p.SRVs[:0]}
}

// Extent returns the shared size of the attachments. Attachments of
// different sizes cannot form one framebuffer.
func (p *PassResources) Extent() (uint32, uint32, error) {
	var w, h uint32
	check := func(a Attachment) error {
		if w == 0 {
			w, h = a.Texture.Width, a.Texture.Height
			return nil
		}
		if a.Texture.Width != w || a.Texture.Height != h {
			return fmt.Errorf("target: %s is %dx%d, pass is %dx%d", a.Target, a.Texture.Width, a.Texture.Height, w, h)
		}
		return nil
	}
	for i := 0; i < gpu.MaxColorAttachments; i++ {
		if p.HasColor(i) {
			if err := check(p.Color[i]); err != nil {
				return 0, 0, err
			}
		}
	}
	if p.HasDepth {
		if err := check(p.Depth); err != nil {
			return 0, 0, err
		}
	}
	if w == 0 {
		return 0, 0, fmt.Errorf("target: pass has no attachments")
	}
	return w, h, nil
}

// RenderPassKey describes the attachments for render pass lookup. Colour
// slots must be contiguous from zero.
func (p *PassResources) RenderPassKey() (gpu.RenderPassKey, error) {
	var key gpu.RenderPassKey
	n := p.ColorCount()
	for i := 0; i < n; i++ {
		if !p.HasColor(i) {
			return key, fmt.Errorf("target: colour slot %d unset below slot %d", i, n-1)
		}
		key.Color[i] = p.Color[i].Key
	}
	key.ColorCount = uint8(n)
	if p.HasDepth {
		key.HasDepth = true
		key.Depth = p.Depth.Key
	}
	return key, nil
}

// FramebufferKey describes the attachment views bound under renderPassID.
func (p *PassResources) FramebufferKey(renderPassID uint64) (gpu.FramebufferKey, error) {
	w, h, err := p.Extent()
	if err != nil {
		return gpu.FramebufferKey{}, err
	}
	key := gpu.FramebufferKey{RenderPassID: renderPassID, Width: w, Height: h}
	for i := 0; i < gpu.MaxColorAttachments; i++ {
		if p.HasColor(i) {
			key.Color[i] = p.Color[i].Texture.View
		}
	}
	if p.HasDepth {
		key.Depth = p.Depth.Texture.View
	}
	return key, nil
}

// ClearValues returns one clear value per attachment, colour first.
func (p *PassResources) ClearValues(color [4]float32) []gpu.ClearValues {
	n := p.ColorCount()
	out := make([]gpu.ClearValues, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, gpu.ClearValues{Color: color})
	}
	if p.HasDepth {
		out = append(out, gpu.ClearValues{Depth: 1})
	}
	return out
}
