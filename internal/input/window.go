// Package input samples the window. Window implementations report key and
// mouse state once per Update; the input system turns that into events.
package input

import (
	"github.com/ecsrender/engine/internal/core/event"
	"github.com/ecsrender/engine/internal/data"
)

// Window is the platform window as the frame loop sees it.
type Window interface {
	// Update pumps window messages. It returns false once the window closed.
	Update() bool
	Keys() event.KeyState
	// Mouse returns the cursor shift since the previous Update.
	Mouse() event.MouseState
	// Resized reports a new client size seen during the last Update.
	Resized() (width, height uint32, ok bool)
	Size() (width, height uint32)
	Close() error
}

// Headless replays an input track. It closes when the track runs out, or
// after maxFrames updates when maxFrames is positive; with both a positive
// maxFrames and a shorter track, the last step keeps repeating with its
// mouse shift cleared.
type Headless struct {
	track     *data.InputTrack
	maxFrames int
	frame     int

	step      int
	stepFrame int
	width     uint32
	height    uint32

	keys    event.KeyState
	mouse   event.MouseState
	resized bool
	closed  bool
	played  int
}

func NewHeadless(width, height uint32, track *data.InputTrack, maxFrames int) *Headless {
	if track == nil {
		track = &data.InputTrack{}
	}
	return &Headless{track: track, maxFrames: maxFrames, width: width, height: height}
}

func (h *Headless) Update() bool {
	if h.closed {
		return false
	}
	h.frame++
	h.resized = false
	if h.maxFrames > 0 && h.frame > h.maxFrames {
		h.closed = true
		return false
	}
	if h.step >= len(h.track.Steps) {
		if h.maxFrames <= 0 {
			h.closed = true
			return false
		}
		h.mouse = event.MouseState{}
		h.played++
		return true
	}

	s := &h.track.Steps[h.step]
	if h.stepFrame == 0 && s.Resize != nil && s.Resize.Width > 0 && s.Resize.Height > 0 {
		h.width, h.height = s.Resize.Width, s.Resize.Height
		h.resized = true
	}
	h.keys = s.KeyState()
	h.mouse = event.MouseState{DX: s.MouseDX, DY: s.MouseDY}
	h.stepFrame++
	if h.stepFrame >= s.Repeat {
		h.step++
		h.stepFrame = 0
	}
	h.played++
	return true
}

func (h *Headless) Keys() event.KeyState    { return h.keys }
func (h *Headless) Mouse() event.MouseState { return h.mouse }

func (h *Headless) Resized() (uint32, uint32, bool) { return h.width, h.height, h.resized }

func (h *Headless) Size() (uint32, uint32) { return h.width, h.height }

// Frames is the number of Update calls that returned true.
func (h *Headless) Frames() int { return h.played }

func (h *Headless) Close() error {
	h.closed = true
	return nil
}
