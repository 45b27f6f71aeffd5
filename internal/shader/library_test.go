package shader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/core/event"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/gpu/headless"
)

func writeShaders(t *testing.T, dir string) {
	t.Helper()
	for id := range effect.ShaderCount {
		name := effect.ShaderName(id)
		for st := range stageCount {
			require.NoError(t, os.WriteFile(Path(dir, name, st), []byte(name+stageExt[st]), 0o644))
		}
	}
}

func TestNameOf(t *testing.T) {
	assert.Equal(t, "ssao_blend", NameOf("/x/ssao_blend.frag.spv"))
	assert.Equal(t, "ui", NameOf("ui.vert.spv"))
	assert.Equal(t, "", NameOf("notes.txt"))
	assert.Equal(t, "", NameOf(".vert.spv"))
}

func TestLoadCreatesEveryModule(t *testing.T) {
	dir := t.TempDir()
	writeShaders(t, dir)
	dev := headless.New(headless.Config{Width: 8, Height: 8}, nil)

	lib, err := Load(dev, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, int(effect.ShaderCount)*2, dev.Live(headless.KindShader))
	assert.NotEqual(t, lib.Module(effect.ShaderSSAO, Vertex), lib.Module(effect.ShaderSSAO, Fragment))

	lib.Close()
	assert.Zero(t, dev.Live(headless.KindShader))
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeShaders(t, dir)
	require.NoError(t, os.Remove(Path(dir, "ui", Fragment)))
	dev := headless.New(headless.Config{Width: 8, Height: 8}, nil)

	_, err := Load(dev, dir, nil)
	require.Error(t, err)
	assert.Zero(t, dev.Live(headless.KindShader))
}

func TestReloadReplacesOnlyChangedModules(t *testing.T) {
	dir := t.TempDir()
	writeShaders(t, dir)
	dev := headless.New(headless.Config{Width: 8, Height: 8}, nil)
	lib, err := Load(dev, dir, zap.NewNop())
	require.NoError(t, err)
	defer lib.Close()

	vert := lib.Module(effect.ShaderSSAO, Vertex)
	frag := lib.Module(effect.ShaderSSAO, Fragment)

	require.NoError(t, lib.Reload([]string{"ssao"}))
	assert.Zero(t, lib.Reloads(), "unchanged binaries are kept")

	require.NoError(t, os.WriteFile(Path(dir, "ssao", Fragment), []byte("new code"), 0o644))
	require.NoError(t, lib.Reload([]string{"ssao"}))
	assert.Equal(t, 1, lib.Reloads())
	assert.Equal(t, vert, lib.Module(effect.ShaderSSAO, Vertex))
	assert.NotEqual(t, frag, lib.Module(effect.ShaderSSAO, Fragment))
	assert.Equal(t, int(effect.ShaderCount)*2, dev.Live(headless.KindShader))
}

func TestReloadKeepsOldModuleOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeShaders(t, dir)
	dev := headless.New(headless.Config{Width: 8, Height: 8}, nil)
	lib, err := Load(dev, dir, nil)
	require.NoError(t, err)
	defer lib.Close()

	frag := lib.Module(effect.ShaderUI, Fragment)
	// The headless device rejects empty modules.
	require.NoError(t, os.WriteFile(Path(dir, "ui", Fragment), nil, 0o644))
	err = lib.Reload([]string{"ui", "bogus"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownShader)
	assert.Equal(t, frag, lib.Module(effect.ShaderUI, Fragment))
}

func TestWatcherPostsDebouncedReload(t *testing.T) {
	dir := t.TempDir()
	bus := event.NewBus()
	var got []event.ShaderReload
	event.Subscribe(bus, func(ev event.ShaderReload) { got = append(got, ev) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := Watch(ctx, dir, bus, 100*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ssao.frag.spv"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.vert.spv"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("c"), 0o644))

	require.Eventually(t, func() bool {
		bus.DispatchAll()
		return len(got) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"base", "ssao"}, got[0].Shaders)
}
