// Package game assembles the renderer: device, render targets, pipeline
// driver, assets, passes and systems, and runs the frame loop over them.
package game

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/asset"
	"github.com/ecsrender/engine/internal/config"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/core/event"
	coresys "github.com/ecsrender/engine/internal/core/system"
	"github.com/ecsrender/engine/internal/data"
	"github.com/ecsrender/engine/internal/input"
	"github.com/ecsrender/engine/internal/persist"
	"github.com/ecsrender/engine/internal/render"
	"github.com/ecsrender/engine/internal/render/gpu/headless"
	"github.com/ecsrender/engine/internal/render/pass"
	"github.com/ecsrender/engine/internal/render/pipeline"
	"github.com/ecsrender/engine/internal/render/target"
	"github.com/ecsrender/engine/internal/scripting"
	"github.com/ecsrender/engine/internal/shader"
	"github.com/ecsrender/engine/internal/system"
)

// Data files read from config.Data.Dir.
const (
	TargetTableFile   = "render_targets.yaml"
	TextureTableFile  = "textures.yaml"
	MaterialTableFile = "materials.yaml"
)

// Options select what New loads into the world.
type Options struct {
	// Restore loads the scene snapshot with this id instead of running the
	// configured level. It needs a database.
	Restore int64
	// RunID tags the frame statistics of this run. Empty derives one from
	// the level name and the start time.
	RunID string
}

type Game struct {
	cfg *config.Config
	log *zap.Logger

	world  *ecs.World
	bus    *event.Bus
	runner *coresys.Runner

	dev      *headless.Device
	targets  *target.Manager
	drv      *pipeline.Driver
	assets   *asset.Library
	shaders  *shader.Library
	renderer *render.Renderer
	window   input.Window

	input    *system.InputSystem
	gui      *system.GUISystem
	snapshot *system.SnapshotSystem

	db      *persist.DB
	scenes  *persist.SceneRepo
	watcher *shader.Watcher
	script  *scripting.Engine
	spawned []ecs.EntityID
	seed    int64
}

// New builds everything cfg describes. On error whatever was already
// created is released before returning.
func New(ctx context.Context, cfg *config.Config, opts Options, log *zap.Logger) (*Game, error) {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Game{cfg: cfg, log: log}
	if err := g.build(ctx, opts); err != nil {
		// A half-built world is not worth a snapshot.
		g.snapshot = nil
		return nil, multierr.Append(err, g.Close(context.Background()))
	}
	return g, nil
}

func (g *Game) build(ctx context.Context, opts Options) error {
	g.world = ecs.NewWorld(ecs.WithInboxCapacity(g.cfg.Render.InboxCapacity), ecs.WithLogger(g.log))
	g.bus = event.NewBus()
	g.runner = coresys.NewRunner(g.world)

	if err := g.buildRenderer(ctx); err != nil {
		return err
	}
	if err := g.buildSystems(ctx, opts); err != nil {
		return err
	}
	if err := g.loadScene(ctx, opts); err != nil {
		return err
	}
	if g.cfg.Render.WatchShaders {
		// The watcher outlives the startup context; Close stops it.
		w, err := shader.Watch(context.Background(), g.cfg.Render.ShaderDir, g.bus, shader.DefaultDebounce, g.log)
		if err != nil {
			return fmt.Errorf("watch shaders: %w", err)
		}
		g.watcher = w
	}
	return nil
}

func (g *Game) buildRenderer(ctx context.Context) error {
	cfg := g.cfg
	g.dev = headless.New(headless.Config{
		Width:          cfg.Window.Width,
		Height:         cfg.Window.Height,
		FramesInFlight: cfg.Render.FramesInFlight,
	}, g.log)

	specs, err := data.LoadTargetTable(g.dataPath(TargetTableFile), target.DefaultSpecs(cfg.Render.ShadowMapSize))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		g.log.Info("no render target table, using defaults", zap.String("path", g.dataPath(TargetTableFile)))
	case err != nil:
		return err
	}
	if g.targets, err = target.New(g.dev, specs, g.log); err != nil {
		return fmt.Errorf("render targets: %w", err)
	}
	g.drv, err = pipeline.NewDriver(g.dev, g.targets, pipeline.Config{
		FramesInFlight:     cfg.Render.FramesInFlight,
		ConstBufferEntries: cfg.Render.ConstBufferEntries,
	}, g.log)
	if err != nil {
		return fmt.Errorf("pipeline driver: %w", err)
	}

	textures, err := data.LoadTextureTable(g.dataPath(TextureTableFile))
	if err != nil {
		return err
	}
	materials, err := data.LoadMaterialTable(g.dataPath(MaterialTableFile))
	if err != nil {
		return err
	}
	if g.assets, err = asset.Load(ctx, g.dev, textures, materials, g.log); err != nil {
		return fmt.Errorf("assets: %w", err)
	}
	if g.shaders, err = shader.Load(g.dev, cfg.Render.ShaderDir, g.log); err != nil {
		return fmt.Errorf("shaders: %w", err)
	}

	g.seed = cfg.Scripting.Seed
	if g.seed == 0 {
		g.seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(g.seed))

	ssao, err := pass.NewSSAOPass(g.world, g.dev, rng)
	if err != nil {
		return fmt.Errorf("ssao pass: %w", err)
	}
	ui, err := pass.NewUIPass(g.world, g.dev, 0, cfg.Render.FramesInFlight)
	if err != nil {
		ssao.Close()
		return fmt.Errorf("ui pass: %w", err)
	}
	passes := []pass.Pass{
		pass.NewShadowPass(g.world),
		pass.NewGBufferPass(g.world, g.assets.DefaultMaterial()),
		pass.NewShadePass(g.world),
		ssao,
		pass.NewSSAOBlendPass(g.world),
		pass.NewResolvePass(g.world),
		ui,
	}
	g.renderer = render.New(g.world, g.drv, passes, render.Settings{
		DrawMode: cfg.Render.DrawMode,
		SSAO: pass.SSAOSettings{
			Enabled: cfg.Render.SSAOEnabled,
			Radius:  cfg.Render.SSAORadius,
			Bias:    cfg.Render.SSAOBias,
		},
		DepthBias: [2]float32{cfg.Render.DepthBiasConstant, cfg.Render.DepthBiasSlope},
	}, g.log)
	g.renderer.SetShaderReloader(g.shaders)
	return nil
}

func (g *Game) buildSystems(ctx context.Context, opts Options) error {
	cfg := g.cfg

	var track *data.InputTrack
	if cfg.Window.InputTrack != "" {
		var err error
		if track, err = data.LoadInputTrack(g.dataPath(cfg.Window.InputTrack)); err != nil {
			return err
		}
	}
	g.window = input.NewHeadless(cfg.Window.Width, cfg.Window.Height, track, cfg.Window.MaxFrames)

	g.input = system.NewInputSystem(g.world, g.window, g.bus, g.log)
	g.gui = system.NewGUISystem(g.world, g.renderer, system.DebugSettings{
		DrawMode:    cfg.Render.DrawMode,
		SSAOEnabled: cfg.Render.SSAOEnabled,
		SSAORadius:  cfg.Render.SSAORadius,
		SSAOBias:    cfg.Render.SSAOBias,
	})
	g.runner.Register(g.input)
	g.runner.Register(system.NewCameraControlSystem(g.world))
	g.runner.Register(system.NewCameraMatrixSystem(g.world))
	g.runner.Register(system.NewLightCameraSystem(g.world))
	g.runner.Register(system.NewVisibilitySystem(g.world))
	g.runner.Register(g.gui)
	g.runner.Register(g.renderer)
	g.runner.Register(system.NewCleanupSystem(g.world))

	if cfg.Database.DSN == "" {
		return nil
	}
	var err error
	if g.db, err = persist.NewDB(ctx, cfg.Database, g.log); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err = persist.RunMigrations(ctx, g.db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	g.scenes = persist.NewSceneRepo(g.db)

	runID := opts.RunID
	if runID == "" {
		runID = fmt.Sprintf("%s-%d", cfg.Scripting.Level, time.Now().Unix())
	}
	g.snapshot = system.NewSnapshotSystem(g.world, g.scenes, persist.NewStatsRepo(g.db), g.renderer,
		cfg.Scripting.Level, cfg.Scripting.Level, runID, cfg.Database.SnapshotInterval, g.log)
	g.runner.Register(g.snapshot)
	return nil
}

func (g *Game) loadScene(ctx context.Context, opts Options) error {
	if opts.Restore != 0 {
		if g.scenes == nil {
			return fmt.Errorf("restore scene %d: no database configured", opts.Restore)
		}
		row, err := g.scenes.Load(ctx, opts.Restore)
		if err != nil {
			return fmt.Errorf("restore scene %d: %w", opts.Restore, err)
		}
		if g.spawned, err = Restore(g.world, g.assets, row); err != nil {
			return fmt.Errorf("restore scene %d: %w", opts.Restore, err)
		}
		g.log.Info("scene restored",
			zap.Int64("id", row.ID), zap.String("scene", row.Name), zap.Int("entities", len(g.spawned)))
		return nil
	}

	g.script = scripting.NewEngine(g.world, g.assets, rand.New(rand.NewSource(g.seed)), g.log)
	if err := g.script.RunLevel(g.cfg.Scripting.LevelDir, g.cfg.Scripting.Level); err != nil {
		return err
	}
	g.spawned = g.script.Spawned()
	g.log.Info("level loaded",
		zap.String("level", g.cfg.Scripting.Level), zap.Int("entities", len(g.spawned)), zap.Int64("seed", g.seed))
	return nil
}

func (g *Game) dataPath(name string) string { return filepath.Join(g.cfg.Data.Dir, name) }

// Step runs one tick of every system.
func (g *Game) Step(dt time.Duration) { g.runner.Tick(dt) }

// Run ticks until ctx is cancelled or the window closes. A zero tick rate
// renders frames back to back.
func (g *Game) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if rate := g.cfg.Render.TickRate; rate > 0 {
		ticker := time.NewTicker(rate)
		defer ticker.Stop()
		tick = ticker.C
	}

	last := time.Now()
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		now := time.Now()
		g.Step(now.Sub(last))
		last = now

		if g.input.Closed() {
			g.log.Info("frame loop stopped",
				zap.Uint64("ticks", g.runner.Ticks()), zap.Uint64("failed_frames", g.renderer.Failures()))
			return nil
		}
	}
}

func (g *Game) World() *ecs.World          { return g.world }
func (g *Game) Bus() *event.Bus            { return g.bus }
func (g *Game) Runner() *coresys.Runner    { return g.runner }
func (g *Game) Device() *headless.Device   { return g.dev }
func (g *Game) Renderer() *render.Renderer { return g.renderer }
func (g *Game) Assets() *asset.Library     { return g.assets }
func (g *Game) Shaders() *shader.Library   { return g.shaders }
func (g *Game) GUI() *system.GUISystem     { return g.gui }

// Spawned lists the entities the level or the restored snapshot created.
func (g *Game) Spawned() []ecs.EntityID { return g.spawned }

// Seed is the random seed the level ran with.
func (g *Game) Seed() int64 { return g.seed }

// Persistent reports whether snapshots and frame statistics are saved.
func (g *Game) Persistent() bool { return g.snapshot != nil }

// Close saves a last snapshot when persistence is on, then releases
// everything in reverse creation order.
func (g *Game) Close(ctx context.Context) error {
	var err error
	if g.watcher != nil {
		err = multierr.Append(err, g.watcher.Close())
		g.watcher = nil
	}
	if g.snapshot != nil {
		g.snapshot.SaveNow()
		g.snapshot = nil
	}
	if g.script != nil {
		g.script.Close()
		g.script = nil
	}
	if g.window != nil {
		err = multierr.Append(err, g.window.Close())
		g.window = nil
	}
	switch {
	case g.renderer != nil:
		err = multierr.Append(err, g.renderer.Close(ctx))
	case g.drv != nil:
		err = multierr.Append(err, g.drv.Close(ctx))
	}
	g.renderer, g.drv = nil, nil
	if g.shaders != nil {
		g.shaders.Close()
		g.shaders = nil
	}
	if g.assets != nil {
		g.assets.Close()
		g.assets = nil
	}
	if g.targets != nil {
		g.targets.Close()
		g.targets = nil
	}
	if g.dev != nil {
		err = multierr.Append(err, g.dev.Close())
		g.dev = nil
	}
	if g.db != nil {
		g.db.Close()
		g.db = nil
	}
	return err
}
