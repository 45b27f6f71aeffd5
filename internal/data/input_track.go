package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ecsrender/engine/internal/core/event"
)

// InputStep holds the input state for Repeat consecutive frames.
type InputStep struct {
	Repeat  int      `yaml:"repeat"`
	Keys    []string `yaml:"keys"`
	MouseDX float32  `yaml:"mouse_dx"`
	MouseDY float32  `yaml:"mouse_dy"`
	// Resize applies on the first frame of the step only.
	Resize *struct {
		Width  uint32 `yaml:"width"`
		Height uint32 `yaml:"height"`
	} `yaml:"resize"`

	keys event.KeyState
}

var keyNames = map[string]int{
	"forward":  event.KeyForward,
	"left":     event.KeyLeft,
	"backward": event.KeyBackward,
	"right":    event.KeyRight,
}

// KeyState returns the parsed key set of the step.
func (s *InputStep) KeyState() event.KeyState { return s.keys }

// InputTrack is a scripted sequence of input steps replayed by the
// headless window.
type InputTrack struct {
	Steps []InputStep `yaml:"steps"`
}

// Frames is the total number of frames the track covers.
func (t *InputTrack) Frames() int {
	n := 0
	for _, s := range t.Steps {
		n += s.Repeat
	}
	return n
}

// LoadInputTrack loads an input track file such as input_track.yaml.
func LoadInputTrack(path string) (*InputTrack, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input track: %w", err)
	}
	return ParseInputTrack(raw)
}

// ParseInputTrack decodes a track and resolves key names. A step without a
// repeat count lasts one frame.
func ParseInputTrack(raw []byte) (*InputTrack, error) {
	var t InputTrack
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse input track: %w", err)
	}
	for i := range t.Steps {
		s := &t.Steps[i]
		if s.Repeat <= 0 {
			s.Repeat = 1
		}
		for _, k := range s.Keys {
			idx, ok := keyNames[k]
			if !ok {
				return nil, fmt.Errorf("input step %d: unknown key %q", i, k)
			}
			s.keys.Pressed[idx] = true
		}
	}
	return &t, nil
}
