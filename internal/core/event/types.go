package event

import "github.com/ecsrender/engine/internal/core/ecs"

// Movement buttons in KeyState.Pressed.
const (
	KeyForward = iota
	KeyLeft
	KeyBackward
	KeyRight
	NumKeys
)

// KeyState is the state of the movement buttons sampled this tick.
type KeyState struct {
	Pressed [NumKeys]bool
}

func (k KeyState) Any() bool {
	for _, p := range k.Pressed {
		if p {
			return true
		}
	}
	return false
}

// MouseState carries the cursor shift since the previous sample, in pixels.
type MouseState struct {
	DX, DY float32
}

// UpdateCameraMatrix asks the matrix system to rebuild Entity's camera matrices.
type UpdateCameraMatrix struct {
	Entity ecs.EntityID
}

// ShaderReload reports shader binaries whose content changed on disk.
type ShaderReload struct {
	Shaders []string
}

// Resize reports a new back buffer size.
type Resize struct {
	Width, Height uint32
}
