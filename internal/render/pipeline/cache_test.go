package pipeline

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecsrender/engine/internal/render/gpu"
)

type counter struct {
	calls int
	next  gpu.Handle
	err   error
}

func (c *counter) create(gpu.PipelineKey) (gpu.Handle, error) {
	c.calls++
	if c.err != nil {
		return gpu.NullHandle, c.err
	}
	c.next++
	return c.next, nil
}

func TestCacheReturnsSameEntryForEqualKeys(t *testing.T) {
	c := NewCache[gpu.PipelineKey]("pipelines")
	var ctr counter
	key := gpu.PipelineKey{Shader: 3, ViewportWidth: 640, ViewportHeight: 480}

	a, err := c.Get(key, ctr.create)
	require.NoError(t, err)
	b, err := c.Get(key, ctr.create)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, ctr.calls)
	assert.Equal(t, key.Hash(), a.Hash)
	st := c.Stats()
	assert.Equal(t, CacheStats{Name: "pipelines", Size: 1, Hits: 1, Misses: 1}, st)
	assert.InDelta(t, 0.5, st.HitRate(), 1e-9)
}

func TestCacheDistinguishesEveryField(t *testing.T) {
	c := NewCache[gpu.PipelineKey]("pipelines")
	var ctr counter
	base := gpu.PipelineKey{Shader: 1, LayoutID: 2, RenderPassID: 3}
	variants := []gpu.PipelineKey{base, base, base, base}
	variants[1].Depth.TestEnable = true
	variants[2].Depth.Compare = gputypes.CompareFunctionLess
	variants[3].Dynamic = variants[3].Dynamic.With(gpu.DynamicDepthBias, true)

	ids := map[uint64]bool{}
	for _, k := range variants {
		e, err := c.Get(k, ctr.create)
		require.NoError(t, err)
		ids[e.ID] = true
	}
	assert.Len(t, ids, 4)
	assert.Equal(t, 4, c.Len())
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	c := NewCache[gpu.PipelineKey]("pipelines")
	boom := errors.New("compile failed")
	ctr := counter{err: boom}
	key := gpu.PipelineKey{Shader: 2}

	_, err := c.Get(key, ctr.create)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	ctr.err = nil
	e, err := c.Get(key, ctr.create)
	require.NoError(t, err)
	assert.Equal(t, 2, ctr.calls)
	assert.NotEqual(t, gpu.NullHandle, e.Handle)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestCacheClearDestroysAndKeepsCounters(t *testing.T) {
	c := NewCache[gpu.PipelineKey]("pipelines")
	var ctr counter
	for s := gpu.ShaderID(0); s < 3; s++ {
		_, err := c.Get(gpu.PipelineKey{Shader: s}, ctr.create)
		require.NoError(t, err)
	}
	var destroyed []gpu.Handle
	c.Clear(func(h gpu.Handle) { destroyed = append(destroyed, h) })

	assert.ElementsMatch(t, []gpu.Handle{1, 2, 3}, destroyed)
	assert.Zero(t, c.Len())
	assert.Equal(t, uint64(3), c.Stats().Misses)
	_, ok := c.Lookup(gpu.PipelineKey{Shader: 0})
	assert.False(t, ok)
}

func TestEntryIDsAreUniqueAcrossCaches(t *testing.T) {
	layouts := NewCache[gpu.PipelineLayoutKey]("layouts")
	passes := NewCache[gpu.RenderPassKey]("render_passes")
	l, err := layouts.Get(gpu.PipelineLayoutKey{Shader: 1}, func(gpu.PipelineLayoutKey) (gpu.Handle, error) { return 10, nil })
	require.NoError(t, err)
	p, err := passes.Get(gpu.RenderPassKey{ColorCount: 1}, func(gpu.RenderPassKey) (gpu.Handle, error) { return 11, nil })
	require.NoError(t, err)
	assert.NotEqual(t, l.ID, p.ID)
}

func BenchmarkCacheHit(b *testing.B) {
	c := NewCache[gpu.PipelineKey]("pipelines")
	var ctr counter
	keys := make([]gpu.PipelineKey, 16)
	for i := range keys {
		keys[i] = gpu.PipelineKey{Shader: gpu.ShaderID(i % 9), LayoutID: uint64(i), ViewportWidth: 1280, ViewportHeight: 720}
		if _, err := c.Get(keys[i], ctr.create); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Get(keys[i%len(keys)], ctr.create); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkStructHash(b *testing.B) {
	key := gpu.RenderPassKey{ColorCount: 4, HasDepth: true}
	for i := 0; i < b.N; i++ {
		_ = key.Hash()
	}
}
