package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TextureEntry describes a procedurally generated texture: a solid colour,
// or a checker of Color and Alt when Checker is set.
type TextureEntry struct {
	Name    string   `yaml:"name"`
	Width   uint32   `yaml:"width"`
	Height  uint32   `yaml:"height"`
	Format  string   `yaml:"format"`
	Color   [4]uint8 `yaml:"color"`
	Alt     [4]uint8 `yaml:"alt"`
	Checker uint32   `yaml:"checker"` // cell size in texels, 0 for solid
}

// TextureTable indexes texture entries by name.
type TextureTable struct {
	entries []TextureEntry
	byName  map[string]*TextureEntry
}

// LoadTextureTable loads textures.yaml.
func LoadTextureTable(path string) (*TextureTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read texture list: %w", err)
	}
	var entries []TextureEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse texture list: %w", err)
	}
	t := &TextureTable{
		entries: entries,
		byName:  make(map[string]*TextureEntry, len(entries)),
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.Width == 0 || e.Height == 0 {
			return nil, fmt.Errorf("texture %q: size %dx%d", e.Name, e.Width, e.Height)
		}
		if e.Format == "" {
			e.Format = "rgba8unorm"
		}
		if _, err := ParseFormat(e.Format); err != nil {
			return nil, fmt.Errorf("texture %q: %w", e.Name, err)
		}
		if _, dup := t.byName[e.Name]; dup {
			return nil, fmt.Errorf("texture %q listed twice", e.Name)
		}
		t.byName[e.Name] = e
	}
	return t, nil
}

// Get returns the named entry, or nil.
func (t *TextureTable) Get(name string) *TextureEntry { return t.byName[name] }

// All returns the entries in file order.
func (t *TextureTable) All() []TextureEntry { return t.entries }

func (t *TextureTable) Count() int { return len(t.entries) }

// Pixels fills an RGBA8 image of the entry's size.
func (e *TextureEntry) Pixels() []byte {
	out := make([]byte, 0, int(e.Width*e.Height*4))
	for y := range e.Height {
		for x := range e.Width {
			c := e.Color
			if e.Checker > 0 && (x/e.Checker+y/e.Checker)%2 == 1 {
				c = e.Alt
			}
			out = append(out, c[:]...)
		}
	}
	return out
}
