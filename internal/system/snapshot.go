package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	coresys "github.com/ecsrender/engine/internal/core/system"
	"github.com/ecsrender/engine/internal/persist"
	"github.com/ecsrender/engine/internal/render/pipeline"
)

// SceneStore persists scene snapshots. persist.SceneRepo implements it.
type SceneStore interface {
	Save(ctx context.Context, s *persist.SceneRow) (int64, error)
}

// StatsStore persists sampled frame stats. persist.StatsRepo implements it.
type StatsStore interface {
	Record(ctx context.Context, rows []persist.FrameStatRow) error
}

// StatsSource is the renderer as the snapshot system samples it.
type StatsSource interface {
	Stats() pipeline.Stats
}

// SnapshotSystem samples frame stats every tick and, every interval ticks,
// writes them out together with a snapshot of the scene. Phase 5 (Persist).
type SnapshotSystem struct {
	world    *ecs.World
	scenes   SceneStore
	stats    StatsStore
	source   StatsSource
	log      *zap.Logger
	name     string
	level    string
	runID    string
	interval int
	ticks    int
	pending  []persist.FrameStatRow
	timeout  time.Duration
}

// NewSnapshotSystem saves under name. Either store may be nil.
func NewSnapshotSystem(w *ecs.World, scenes SceneStore, stats StatsStore, source StatsSource,
	name, level, runID string, intervalTicks int, log *zap.Logger) *SnapshotSystem {
	return &SnapshotSystem{
		world:    w,
		scenes:   scenes,
		stats:    stats,
		source:   source,
		log:      log,
		name:     name,
		level:    level,
		runID:    runID,
		interval: max(intervalTicks, 1),
		timeout:  5 * time.Second,
	}
}

func (s *SnapshotSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *SnapshotSystem) Update(_ time.Duration) {
	if s.stats != nil && s.source != nil {
		st := s.source.Stats()
		s.pending = append(s.pending, persist.FrameStatRow{
			RunID:        s.runID,
			Frame:        st.Frame,
			FrameTime:    st.FrameTime,
			Draws:        st.Draws,
			RenderPasses: st.RenderPasses,
			Entities:     s.world.EntityCount(),
			Pipelines:    st.Pipelines.Size,
			PipelineHits: st.Pipelines.Hits,
			PipelineMiss: st.Pipelines.Misses,
		})
	}
	s.ticks++
	if s.ticks < s.interval {
		return
	}
	s.ticks = 0
	s.SaveNow()
}

// SaveNow flushes the sampled stats and saves a snapshot immediately.
// Called on shutdown so the last interval is not lost.
func (s *SnapshotSystem) SaveNow() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.stats != nil && len(s.pending) > 0 {
		if err := s.stats.Record(ctx, s.pending); err != nil {
			s.log.Error("frame stats save failed", zap.Int("rows", len(s.pending)), zap.Error(err))
		}
		s.pending = s.pending[:0]
	}
	if s.scenes == nil {
		return
	}
	var frame uint64
	if s.source != nil {
		frame = s.source.Stats().Frame
	}
	row := Capture(s.world, s.name, s.level, frame)
	id, err := s.scenes.Save(ctx, row)
	if err != nil {
		s.log.Error("scene snapshot failed", zap.String("scene", s.name), zap.Error(err))
		return
	}
	s.log.Info("scene snapshot saved",
		zap.Int64("id", id), zap.String("scene", s.name), zap.Int("entities", len(row.Entities)))
}

// Capture builds a snapshot of the first camera, every mesh entity with a
// Transform and every light.
func Capture(w *ecs.World, name, level string, frame uint64) *persist.SceneRow {
	row := &persist.SceneRow{Name: name, Level: level, Frame: frame, CameraDir: [3]float32{1, 0, 0}}
	for _, ct := range ecs.Query[component.CameraTransform](w) {
		row.CameraPos = vec3(ct.Position.X, ct.Position.Y, ct.Position.Z)
		row.CameraDir = vec3(ct.Direction.X, ct.Direction.Y, ct.Direction.Z)
		break
	}

	ecs.Each2(w, func(id ecs.EntityID, m *component.Mesh, t *component.Transform) {
		e := persist.EntityRow{
			Entity:   uint32(id),
			Kind:     persist.KindMesh,
			Mesh:     m.Name,
			Position: vec3(t.Position.X, t.Position.Y, t.Position.Z),
			Rotation: [4]float32{0, 0, 0, 1},
			Rendered: ecs.HasComponent[component.Rendered](w, id),
		}
		if r := ecs.GetComponent[component.Rotate](w, id); r != nil {
			e.Rotation = [4]float32{r.Quat.X, r.Quat.Y, r.Quat.Z, r.Quat.W}
		}
		if mat := ecs.GetComponent[component.Material](w, id); mat != nil {
			e.Material = mat.Name
		}
		row.Entities = append(row.Entities, e)
	})
	ecs.Each2(w, func(id ecs.EntityID, pl *component.PointLight, t *component.Transform) {
		row.Entities = append(row.Entities, persist.EntityRow{
			Entity:    uint32(id),
			Kind:      persist.KindPointLight,
			Position:  vec3(t.Position.X, t.Position.Y, t.Position.Z),
			Rotation:  [4]float32{0, 0, 0, 1},
			Color:     vec3(pl.Color.X, pl.Color.Y, pl.Color.Z),
			Intensity: pl.Intensity,
		})
	})
	ecs.Each(w, func(id ecs.EntityID, dl *component.DirectionalLight) {
		e := persist.EntityRow{
			Entity:    uint32(id),
			Kind:      persist.KindDirectionalLight,
			Rotation:  [4]float32{dl.Direction.X, dl.Direction.Y, dl.Direction.Z, 0},
			Color:     vec3(dl.Color.X, dl.Color.Y, dl.Color.Z),
			Intensity: dl.Intensity,
		}
		if t := ecs.GetComponent[component.Transform](w, id); t != nil {
			e.Position = vec3(t.Position.X, t.Position.Y, t.Position.Z)
		}
		row.Entities = append(row.Entities, e)
	})
	return row
}

func vec3(x, y, z float32) [3]float32 { return [3]float32{x, y, z} }
