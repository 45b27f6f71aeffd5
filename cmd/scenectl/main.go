// scenectl manages the scene snapshots the renderer saves to PostgreSQL.
//
// Usage:
//
//	go run ./cmd/scenectl <command> [-config path] [flags] [id]
//
// Commands: list, export, delete, migrate
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/ecsrender/engine/internal/config"
	"github.com/ecsrender/engine/internal/persist"
)

// ---------------------------------------------------------------------------
// YAML output structs
// ---------------------------------------------------------------------------

type sceneYAML struct {
	ID        int64        `yaml:"id"`
	Name      string       `yaml:"name"`
	Level     string       `yaml:"level"`
	Frame     uint64       `yaml:"frame"`
	CreatedAt string       `yaml:"created_at"`
	Camera    cameraYAML   `yaml:"camera"`
	Entities  []entityYAML `yaml:"entities"`
}

type cameraYAML struct {
	Pos [3]float32 `yaml:"pos,flow"`
	Dir [3]float32 `yaml:"dir,flow"`
}

type entityYAML struct {
	Entity    uint32      `yaml:"entity"`
	Kind      string      `yaml:"kind"`
	Mesh      string      `yaml:"mesh,omitempty"`
	Material  string      `yaml:"material,omitempty"`
	Pos       [3]float32  `yaml:"pos,flow"`
	Rot       *[4]float32 `yaml:"rot,flow,omitempty"`
	Dir       *[3]float32 `yaml:"dir,flow,omitempty"`
	Color     *[3]float32 `yaml:"color,flow,omitempty"`
	Intensity float32     `yaml:"intensity,omitempty"`
	Rendered  bool        `yaml:"rendered,omitempty"`
}

func toYAML(s *persist.SceneRow) sceneYAML {
	out := sceneYAML{
		ID:        s.ID,
		Name:      s.Name,
		Level:     s.Level,
		Frame:     s.Frame,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		Camera:    cameraYAML{Pos: s.CameraPos, Dir: s.CameraDir},
		Entities:  make([]entityYAML, 0, len(s.Entities)),
	}
	for _, e := range s.Entities {
		y := entityYAML{
			Entity:   e.Entity,
			Kind:     e.Kind,
			Mesh:     e.Mesh,
			Material: e.Material,
			Pos:      e.Position,
			Rendered: e.Rendered,
		}
		switch e.Kind {
		case persist.KindMesh:
			rot := e.Rotation
			y.Rot = &rot
		case persist.KindDirectionalLight:
			dir := [3]float32{e.Rotation[0], e.Rotation[1], e.Rotation[2]}
			y.Dir = &dir
			fallthrough
		case persist.KindPointLight:
			color := e.Color
			y.Color = &color
			y.Intensity = e.Intensity
		}
		out.Entities = append(out.Entities, y)
	}
	return out
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

type options struct {
	name  string
	limit int
	out   string
	args  []string
	p     *message.Printer
	w     io.Writer
}

func (o *options) id() (int64, error) {
	if len(o.args) == 0 {
		return 0, errors.New("missing snapshot id")
	}
	id, err := strconv.ParseInt(o.args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad snapshot id %q", o.args[0])
	}
	return id, nil
}

func listScenes(ctx context.Context, db *persist.DB, o *options) error {
	rows, err := persist.NewSceneRepo(db).List(ctx, o.name, o.limit)
	if err != nil {
		return err
	}
	printList(o.w, o.p, rows)
	return nil
}

func printList(w io.Writer, p *message.Printer, rows []persist.SceneRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no snapshots")
		return
	}
	p.Fprintf(w, "%6s  %-16s %-12s %12s  %s\n", "id", "name", "level", "frame", "saved")
	for _, r := range rows {
		p.Fprintf(w, "%6d  %-16s %-12s %12d  %s\n", r.ID, r.Name, r.Level, r.Frame, r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

func exportScene(ctx context.Context, db *persist.DB, o *options) error {
	id, err := o.id()
	if err != nil {
		return err
	}
	row, err := persist.NewSceneRepo(db).Load(ctx, id)
	if err != nil {
		return err
	}
	comment := fmt.Sprintf("# scene snapshot %d (%d entities)", row.ID, len(row.Entities))
	if o.out == "" {
		return writeYAML(o.w, toYAML(row), comment)
	}
	f, err := os.Create(o.out)
	if err != nil {
		return fmt.Errorf("create %s: %w", o.out, err)
	}
	defer f.Close()
	if err := writeYAML(f, toYAML(row), comment); err != nil {
		return err
	}
	o.p.Fprintf(o.w, "wrote %s (%d entities)\n", o.out, len(row.Entities))
	return nil
}

func writeYAML(w io.Writer, data any, comment string) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if comment != "" {
		fmt.Fprintln(w, comment)
	}
	_, err = w.Write(out)
	return err
}

func deleteScene(ctx context.Context, db *persist.DB, o *options) error {
	id, err := o.id()
	if err != nil {
		return err
	}
	if err := persist.NewSceneRepo(db).Delete(ctx, id); err != nil {
		return err
	}
	o.p.Fprintf(o.w, "deleted snapshot %d\n", id)
	return nil
}

func migrate(ctx context.Context, db *persist.DB, o *options) error {
	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return err
	}
	v, err := persist.SchemaVersion(ctx, db.Pool)
	if err != nil {
		return err
	}
	o.p.Fprintf(o.w, "schema at version %d\n", v)
	return nil
}

func printUsage() {
	fmt.Println(`scenectl manages saved scene snapshots.

Usage:
  scenectl <command> [-config path] [flags] [id]

Commands:
  list      list snapshots, newest first (-name, -limit)
  export    write snapshot <id> as YAML (-out)
  delete    delete snapshot <id>
  migrate   apply pending schema migrations`)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	commands := map[string]func(context.Context, *persist.DB, *options) error{
		"list":    listScenes,
		"export":  exportScene,
		"delete":  deleteScene,
		"migrate": migrate,
	}
	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfgPath := fs.String("config", "config/renderer.toml", "config file; "+config.EnvPath+" overrides it")
	name := fs.String("name", "", "list: only snapshots saved under this name")
	limit := fs.Int("limit", 20, "list: maximum number of rows")
	out := fs.String("out", "", "export: output file, stdout when empty")
	_ = fs.Parse(os.Args[2:])

	o := &options{
		name:  *name,
		limit: *limit,
		out:   *out,
		args:  fs.Args(),
		p:     message.NewPrinter(language.English),
		w:     os.Stdout,
	}
	if err := execute(*cfgPath, fn, o); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func execute(cfgPath string, fn func(context.Context, *persist.DB, *options) error, o *options) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("%s: database.dsn is empty", cfgPath)
	}
	log, err := zap.NewDevelopment(zap.IncreaseLevel(zap.WarnLevel))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	return fn(ctx, db, o)
}
