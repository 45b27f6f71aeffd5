// Package shader loads the compiled shader modules of every effect program
// and reloads the ones whose binaries changed on disk.
package shader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/gputypes"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/gpu"
)

// Stage indexes the two modules of a program.
type Stage int

const (
	Vertex Stage = iota
	Fragment
	stageCount
)

var stageExt = [stageCount]string{".vert.spv", ".frag.spv"}

var stageFlag = [stageCount]gputypes.ShaderStage{gputypes.ShaderStageVertex, gputypes.ShaderStageFragment}

// Fingerprint identifies a shader binary by content.
type Fingerprint [blake2b.Size256]byte

type module struct {
	handle gpu.Handle
	sum    Fingerprint
}

// Library holds one vertex and one fragment module per shader id.
type Library struct {
	dev     gpu.Device
	dir     string
	log     *zap.Logger
	modules [effect.ShaderCount][stageCount]module
	reloads int
}

// Path returns the file holding stage of the named program.
func Path(dir, name string, stage Stage) string {
	return filepath.Join(dir, name+stageExt[stage])
}

// NameOf maps a shader file back to its program name, or "" for files that
// are not shader binaries.
func NameOf(path string) string {
	base := filepath.Base(path)
	for _, ext := range stageExt {
		if len(base) > len(ext) && base[len(base)-len(ext):] == ext {
			return base[:len(base)-len(ext)]
		}
	}
	return ""
}

// Load creates modules for every program found in dir.
func Load(dev gpu.Device, dir string, log *zap.Logger) (*Library, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Library{dev: dev, dir: dir, log: log}
	for id := range effect.ShaderCount {
		for st := range stageCount {
			m, err := l.create(id, st)
			if err != nil {
				l.Close()
				return nil, err
			}
			l.modules[id][st] = m
		}
	}
	log.Info("shaders loaded", zap.String("dir", dir), zap.Int("programs", int(effect.ShaderCount)))
	return l, nil
}

func (l *Library) create(id gpu.ShaderID, st Stage) (module, error) {
	name := effect.ShaderName(id)
	path := Path(l.dir, name, st)
	code, err := os.ReadFile(path)
	if err != nil {
		return module{}, fmt.Errorf("read shader %s: %w", path, err)
	}
	h, err := l.dev.CreateShaderModule(gpu.ShaderDescriptor{Label: name, Stage: stageFlag[st], Code: code})
	if err != nil {
		return module{}, fmt.Errorf("create shader %s: %w", path, err)
	}
	return module{handle: h, sum: blake2b.Sum256(code)}, nil
}

// Module returns the current module of a program stage.
func (l *Library) Module(id gpu.ShaderID, st Stage) gpu.Handle { return l.modules[id][st].handle }

func (l *Library) Fingerprint(id gpu.ShaderID, st Stage) Fingerprint { return l.modules[id][st].sum }

// Reloads counts modules replaced since Load.
func (l *Library) Reloads() int { return l.reloads }

// ErrUnknownShader is returned by Reload for names no program uses.
var ErrUnknownShader = errors.New("unknown shader")

// Reload recreates the modules of the named programs whose binaries changed.
// A module that fails to build keeps its previous version. The caller must
// have waited for the device before the old modules are destroyed.
func (l *Library) Reload(names []string) error {
	var errs error
	for _, name := range names {
		id, ok := effect.ShaderByName(name)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%q: %w", name, ErrUnknownShader))
			continue
		}
		for st := range stageCount {
			old := l.modules[id][st]
			code, err := os.ReadFile(Path(l.dir, name, st))
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("read shader %s: %w", name, err))
				continue
			}
			if blake2b.Sum256(code) == old.sum {
				continue
			}
			m, err := l.create(id, st)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			l.dev.DestroyObject(old.handle)
			l.modules[id][st] = m
			l.reloads++
			l.log.Info("shader module replaced", zap.String("shader", name), zap.String("file", filepath.Base(Path(l.dir, name, st))))
		}
	}
	return errs
}

func (l *Library) Close() {
	for id := range l.modules {
		for st := range l.modules[id] {
			if h := l.modules[id][st].handle; h != gpu.NullHandle {
				l.dev.DestroyObject(h)
			}
			l.modules[id][st] = module{}
		}
	}
}
