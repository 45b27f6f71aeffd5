package system

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ecsrender/engine/internal/core/ecs"
	coresys "github.com/ecsrender/engine/internal/core/system"
	"github.com/ecsrender/engine/internal/render/pipeline"
)

// StatsView is the renderer as the GUI sees it.
type StatsView interface {
	Stats() pipeline.Stats
	SetOverlay(lines []string)
}

// DebugSettings are the debug variables shown in the overlay.
type DebugSettings struct {
	DrawMode    uint32
	SSAOEnabled bool
	SSAORadius  float32
	SSAOBias    float32
}

var drawModes = [...]string{"shaded", "albedo", "normal", "metal-roughness", "world-pos", "ssao"}

// GUISystem refreshes the stats overlay the UI pass draws. Frame rate is
// averaged over one-second windows. Phase 3 (Update).
type GUISystem struct {
	world    *ecs.World
	view     StatsView
	debug    DebugSettings
	printer  *message.Printer
	lines    []string
	window   time.Duration
	frames   int
	fps      float64
	disabled bool
}

func NewGUISystem(w *ecs.World, view StatsView, debug DebugSettings) *GUISystem {
	return &GUISystem{
		world:   w,
		view:    view,
		debug:   debug,
		printer: message.NewPrinter(language.English),
	}
}

func (s *GUISystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

// SetEnabled shows or hides the overlay.
func (s *GUISystem) SetEnabled(on bool) {
	s.disabled = !on
	if !on {
		s.view.SetOverlay(nil)
	}
}

func (s *GUISystem) Update(dt time.Duration) {
	if s.disabled {
		return
	}
	s.frames++
	s.window += dt
	if s.window >= time.Second {
		s.fps = float64(s.frames) / s.window.Seconds()
		s.frames = 0
		s.window = 0
	}
	s.view.SetOverlay(s.Lines(s.view.Stats()))
}

// Lines formats st and the debug settings. The returned slice is reused by
// the next call.
func (s *GUISystem) Lines(st pipeline.Stats) []string {
	p := s.printer
	s.lines = s.lines[:0]
	s.lines = append(s.lines,
		p.Sprintf("frame %d  %.1f fps  %.2f ms", st.Frame, s.fps, float64(st.FrameTime.Microseconds())/1000),
		p.Sprintf("entities %d  draws %d  passes %d  sets %d", s.world.EntityCount(), st.Draws, st.RenderPasses, st.DescriptorSets),
	)
	for _, c := range st.Caches() {
		s.lines = append(s.lines, p.Sprintf("%-13s %d  hit %.1f%%", c.Name, c.Size, c.HitRate()*100))
	}
	mode := "unknown"
	if int(s.debug.DrawMode) < len(drawModes) {
		mode = drawModes[s.debug.DrawMode]
	}
	ssao := "off"
	if s.debug.SSAOEnabled {
		ssao = p.Sprintf("radius %.3f bias %.3f", s.debug.SSAORadius, s.debug.SSAOBias)
	}
	s.lines = append(s.lines, p.Sprintf("draw mode %s  ssao %s", mode, ssao))
	return s.lines
}
