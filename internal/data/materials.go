package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MaterialEntry names the textures and factors of a material. Empty
// texture names fall back to the library defaults.
type MaterialEntry struct {
	Name           string     `yaml:"name"`
	Albedo         string     `yaml:"albedo"`
	Normal         string     `yaml:"normal"`
	MetalRoughness string     `yaml:"metal_roughness"`
	Metalness      [3]float32 `yaml:"metalness"`
	Roughness      float32    `yaml:"roughness"`
}

// MaterialTable indexes the material catalog by name.
type MaterialTable struct {
	entries []MaterialEntry
	byName  map[string]*MaterialEntry
}

// LoadMaterialTable loads materials.yaml.
func LoadMaterialTable(path string) (*MaterialTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read material list: %w", err)
	}
	var entries []MaterialEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse material list: %w", err)
	}
	t := &MaterialTable{
		entries: entries,
		byName:  make(map[string]*MaterialEntry, len(entries)),
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.Roughness < 0 || e.Roughness > 1 {
			return nil, fmt.Errorf("material %q: roughness %v out of [0,1]", e.Name, e.Roughness)
		}
		t.byName[e.Name] = e
	}
	return t, nil
}

func (t *MaterialTable) Get(name string) *MaterialEntry { return t.byName[name] }

func (t *MaterialTable) All() []MaterialEntry { return t.entries }

func (t *MaterialTable) Count() int { return len(t.entries) }
