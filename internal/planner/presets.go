package planner

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxYaw   = 30.0
	defaultMaxPitch = 20.0
	maxAngle        = 90.0
)

// PreprocessPrompt converts an uploaded portrait into the front-facing base
// character every frame is generated from.
const PreprocessPrompt = "Transform this person into a 3D animated Pixar-style character. " +
	"Stylized 3D render, Disney Pixar animation style, smooth skin, big expressive eyes, soft lighting, " +
	"front facing, looking directly at camera, neutral expression, centered on pure black background. " +
	"Keep the same facial features and likeness but as a 3D animated cartoon character."

// Preset is a named style used to build frame prompts.
type Preset struct {
	Name        string  `yaml:"-" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Prompt      string  `yaml:"prompt" json:"prompt"`
	MaxYaw      float64 `yaml:"max_yaw" json:"maxYaw"`
	MaxPitch    float64 `yaml:"max_pitch" json:"maxPitch"`
}

var defaultPreset = Preset{
	Name:        DefaultPrefix,
	Description: "Pixar-style 3D character on a black background",
	Prompt: "A stylized 3D animated Pixar-style character render of the person in the reference image, " +
		"Disney Pixar animation style, smooth skin, big expressive eyes, soft studio lighting, neutral expression.",
	MaxYaw:   defaultMaxYaw,
	MaxPitch: defaultMaxPitch,
}

type presetFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

// Catalog holds the available style presets. It always contains the
// built-in default preset.
type Catalog struct {
	presets map[string]Preset
}

// DefaultCatalog returns a catalog with only the built-in preset.
func DefaultCatalog() *Catalog {
	return &Catalog{presets: map[string]Preset{defaultPreset.Name: defaultPreset}}
}

// LoadPresets reads a YAML catalog from path. An empty path yields the
// default catalog.
func LoadPresets(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("planner: read presets: %w", err)
	}
	return ParsePresets(data)
}

// ParsePresets decodes a YAML catalog of the form
//
//	presets:
//	  <name>:
//	    prompt: ...
//	    max_yaw: 30
//	    max_pitch: 20
//	    description: ...
//
// Entries override the built-in preset of the same name.
func ParsePresets(data []byte) (*Catalog, error) {
	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("planner: decode presets: %w", err)
	}
	catalog := DefaultCatalog()
	for rawName, preset := range file.Presets {
		name := strings.ToLower(strings.TrimSpace(rawName))
		if !prefixPattern.MatchString(name) {
			return nil, fmt.Errorf("planner: preset %q: invalid name", rawName)
		}
		preset.Name = name
		preset.Prompt = strings.TrimSpace(preset.Prompt)
		if preset.Prompt == "" {
			return nil, fmt.Errorf("planner: preset %q: prompt is required", name)
		}
		if preset.MaxYaw == 0 {
			preset.MaxYaw = defaultMaxYaw
		}
		if preset.MaxPitch == 0 {
			preset.MaxPitch = defaultMaxPitch
		}
		if preset.MaxYaw < 0 || preset.MaxYaw > maxAngle || preset.MaxPitch < 0 || preset.MaxPitch > maxAngle {
			return nil, fmt.Errorf("planner: preset %q: angles must be between 0 and %.0f degrees", name, maxAngle)
		}
		catalog.presets[name] = preset
	}
	return catalog, nil
}

// Lookup returns the preset registered under name.
func (c *Catalog) Lookup(name string) (Preset, bool) {
	p, ok := c.presets[name]
	return p, ok
}

// Resolve returns the preset for name, falling back to the default preset.
func (c *Catalog) Resolve(name string) Preset {
	if p, ok := c.presets[name]; ok {
		return p
	}
	if p, ok := c.presets[DefaultPrefix]; ok {
		return p
	}
	return defaultPreset
}

// List returns every preset sorted by name.
func (c *Catalog) List() []Preset {
	out := make([]Preset, 0, len(c.presets))
	for _, p := range c.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
