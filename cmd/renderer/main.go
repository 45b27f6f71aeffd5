// renderer runs a level through the deferred renderer on the headless
// device and reports frame and cache statistics.
//
// Usage:
//
//	go run ./cmd/renderer [-config path] [-level name] [-frames n] [-restore id] [-profile cpu|mem|trace]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ecsrender/engine/internal/config"
	"github.com/ecsrender/engine/internal/game"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/target"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func printBanner(title string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            ecsrender  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m     deferred renderer · headless device   \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mwindow:\033[0m %s\n\n", title)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

func run() error {
	cfgPath := flag.String("config", "config/renderer.toml", "config file; "+config.EnvPath+" overrides it")
	level := flag.String("level", "", "level script to run instead of scripting.level")
	frames := flag.Int("frames", -1, "stop after n frames; overrides window.max_frames")
	restore := flag.Int64("restore", 0, "restore the scene snapshot with this id instead of running a level")
	profMode := flag.String("profile", "", "cpu, mem or trace; overrides profiling.mode")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *level != "" {
		cfg.Scripting.Level = *level
	}
	if *frames >= 0 {
		cfg.Window.MaxFrames = *frames
	}
	if *profMode != "" {
		cfg.Profiling.Mode = *profMode
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	stopProfile, err := startProfile(cfg.Profiling)
	if err != nil {
		return err
	}
	defer stopProfile()

	printBanner(fmt.Sprintf("%s %dx%d", cfg.Window.Title, cfg.Window.Width, cfg.Window.Height))

	// 3. Build device, assets, passes and systems
	printSection("startup")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, err := game.New(ctx, cfg, game.Options{Restore: *restore}, log)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	printStat("render targets", int(target.Count))
	printStat("shader programs", int(effect.ShaderCount))
	printStat("entities", len(g.Spawned()))
	if *restore != 0 {
		printOK(fmt.Sprintf("scene snapshot %d restored", *restore))
	} else {
		printOK(fmt.Sprintf("level %s loaded (seed %d)", cfg.Scripting.Level, g.Seed()))
	}
	if g.Persistent() {
		printOK("scene snapshots enabled")
	}
	fmt.Println()

	// 4. Run the frame loop until the window closes or a signal arrives
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)
	go func() {
		select {
		case sig := <-shutdownCh:
			log.Info("shutdown signal", zap.String("signal", sig.String()))
			stop()
		case <-runCtx.Done():
		}
	}()

	printSection("running")
	if cfg.Render.TickRate > 0 {
		printReady(fmt.Sprintf("frame loop started (tick: %s)", cfg.Render.TickRate))
	} else {
		printReady("frame loop started (unthrottled)")
	}
	fmt.Println()

	start := time.Now()
	runErr := g.Run(runCtx)
	elapsed := time.Since(start)
	st := g.Renderer().Stats()
	failed := g.Renderer().Failures()

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelClose()
	closeErr := g.Close(closeCtx)

	printSection("summary")
	printStat("frames", int(st.Frame))
	printStat("failed frames", int(failed))
	for _, c := range st.Caches() {
		printStat(c.Name, c.Size)
	}
	if st.Frame > 0 {
		printReady(fmt.Sprintf("%.1f fps average over %s", float64(st.Frame)/elapsed.Seconds(), elapsed.Round(time.Millisecond)))
	}
	log.Info("renderer stopped", zap.Uint64("frames", st.Frame), zap.Duration("elapsed", elapsed))
	return multierr.Combine(runErr, closeErr)
}

// startProfile starts the profiler cfg selects and returns its stop function.
func startProfile(cfg config.ProfilingConfig) (func(), error) {
	var mode func(*profile.Profile)
	switch cfg.Mode {
	case "":
		return func() {}, nil
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfileAllocs
	case "trace":
		mode = profile.TraceProfile
	default:
		return nil, fmt.Errorf("unknown profiling mode %q", cfg.Mode)
	}
	p := profile.Start(mode, profile.ProfilePath(cfg.Dir), profile.NoShutdownHook, profile.Quiet)
	return p.Stop, nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	log, err := zapCfg.Build()
	if err != nil || cfg.File == "" {
		return log, err
	}

	// Rotated JSON file output next to the console.
	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), file, zapCfg.Level)
	return log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}
