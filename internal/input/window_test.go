package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsrender/engine/internal/core/event"
	"github.com/ecsrender/engine/internal/data"
)

const track = `
steps:
  - repeat: 2
    keys: [forward]
  - mouse_dx: 4
    mouse_dy: -2
    resize: {width: 640, height: 480}
`

func loadTrack(t *testing.T) *data.InputTrack {
	t.Helper()
	tr, err := data.ParseInputTrack([]byte(track))
	require.NoError(t, err)
	return tr
}

func TestHeadlessReplaysTrackThenCloses(t *testing.T) {
	h := NewHeadless(320, 240, loadTrack(t), 0)

	for range 2 {
		require.True(t, h.Update())
		assert.True(t, h.Keys().Pressed[event.KeyForward])
		_, _, resized := h.Resized()
		assert.False(t, resized)
	}

	require.True(t, h.Update())
	assert.False(t, h.Keys().Any())
	assert.Equal(t, event.MouseState{DX: 4, DY: -2}, h.Mouse())
	w, hgt, resized := h.Resized()
	assert.True(t, resized)
	assert.Equal(t, [2]uint32{640, 480}, [2]uint32{w, hgt})

	assert.False(t, h.Update())
	assert.False(t, h.Update())
	assert.Equal(t, 3, h.Frames())
}

func TestHeadlessMaxFramesOutlivesTrack(t *testing.T) {
	h := NewHeadless(320, 240, loadTrack(t), 5)
	for range 5 {
		require.True(t, h.Update())
	}
	// The last step's keys hold but its mouse shift does not repeat.
	assert.Equal(t, event.MouseState{}, h.Mouse())
	assert.False(t, h.Update())
	assert.Equal(t, 5, h.Frames())
}

func TestHeadlessMaxFramesCutsTrack(t *testing.T) {
	h := NewHeadless(320, 240, loadTrack(t), 1)
	require.True(t, h.Update())
	assert.False(t, h.Update())
}

func TestHeadlessWithoutTrack(t *testing.T) {
	h := NewHeadless(320, 240, nil, 0)
	assert.False(t, h.Update())

	h = NewHeadless(320, 240, nil, 2)
	require.True(t, h.Update())
	require.NoError(t, h.Close())
	assert.False(t, h.Update())
}
