package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Preset is a named set of visualization options loaded from a JSON file in
// the presets directory. Options holds a partial options object that request
// options are applied over.
type Preset struct {
	ID          string          `json:"id"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Options     json.RawMessage `json:"options"`
}

// PresetRegistry holds all loaded presets indexed by ID.
type PresetRegistry struct {
	presets map[string]*Preset
}

// NewPresetRegistry creates a new empty preset registry.
func NewPresetRegistry() *PresetRegistry {
	return &PresetRegistry{
		presets: make(map[string]*Preset),
	}
}

// LoadPresets loads presets from the JSON files in dir. An empty dir yields
// an empty registry.
func LoadPresets(dir string) (*PresetRegistry, error) {
	registry := NewPresetRegistry()
	if dir == "" {
		return registry, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access presets directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("presets path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets directory %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		preset, err := loadPresetFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load preset from %q: %w", path, err)
		}
		if err := registry.Add(preset); err != nil {
			return nil, fmt.Errorf("failed to add preset from %q: %w", path, err)
		}
	}

	return registry, nil
}

func loadPresetFile(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if err := validatePreset(&p); err != nil {
		return nil, fmt.Errorf("invalid preset: %w", err)
	}
	return &p, nil
}

func validatePreset(p *Preset) error {
	if p.ID == "" {
		return fmt.Errorf("preset ID is required")
	}
	opts := bytes.TrimSpace(p.Options)
	if len(opts) == 0 || opts[0] != '{' {
		return fmt.Errorf("preset %q options must be a JSON object", p.ID)
	}
	return nil
}

// Add registers a preset.
// Returns an error if a preset with the same ID already exists.
func (r *PresetRegistry) Add(p *Preset) error {
	if p == nil {
		return fmt.Errorf("cannot add nil preset")
	}
	if _, exists := r.presets[p.ID]; exists {
		return fmt.Errorf("preset with ID %q already exists", p.ID)
	}
	r.presets[p.ID] = p
	return nil
}

// Get retrieves a preset by ID, or nil.
func (r *PresetRegistry) Get(id string) *Preset {
	return r.presets[id]
}

// IDs returns the sorted preset IDs.
func (r *PresetRegistry) IDs() []string {
	ids := make([]string, 0, len(r.presets))
	for id := range r.presets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of presets in the registry.
func (r *PresetRegistry) Count() int {
	return len(r.presets)
}
