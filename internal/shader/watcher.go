package shader

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/core/event"
)

// DefaultDebounce lets a compiler finish writing both stages of a program
// before the reload is requested.
const DefaultDebounce = 200 * time.Millisecond

// Watcher posts a ShaderReload to the bus when shader binaries in a
// directory change. It runs on its own goroutine and touches nothing but
// the bus.
type Watcher struct {
	fs       *fsnotify.Watcher
	bus      *event.Bus
	log      *zap.Logger
	debounce time.Duration
	done     chan struct{}
}

// Watch starts watching dir until ctx is cancelled or Close is called.
func Watch(ctx context.Context, dir string, bus *event.Bus, debounce time.Duration, log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("shader watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{fs: fw, bus: bus, log: log, debounce: debounce, done: make(chan struct{})}
	go w.run(ctx)
	log.Info("watching shaders", zap.String("dir", dir))
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := NameOf(ev.Name)
			if name == "" {
				continue
			}
			pending[name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("shader watcher error", zap.Error(err))
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			names := make([]string, 0, len(pending))
			for n := range pending {
				names = append(names, n)
			}
			slices.Sort(names)
			clear(pending)
			event.Post(w.bus, event.ShaderReload{Shaders: names})
			w.log.Debug("shader change detected", zap.Strings("shaders", names))
		}
	}
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}
