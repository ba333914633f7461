// Package workflow loads named investigation templates.
//
// A template binds a goal pattern and loop toggles under a name, so
// recurring investigation shapes ("due diligence on X", "sanctions
// exposure of X") run with one command. Templates come from a YAML
// file or from the built-in library.
package workflow

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/osinthq/inquest/internal/agent"
)

// targetPlaceholder marks where the target is substituted in the goal
// pattern.
const targetPlaceholder = "{target}"

// Template is one named investigation shape.
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Goal is the goal pattern; {target} is replaced by the target
	// argument.
	Goal string `yaml:"goal"`

	MaxTurns      int   `yaml:"max_turns,omitempty"`
	AutoSanctions *bool `yaml:"auto_sanctions,omitempty"`
	AutoNews      *bool `yaml:"auto_news,omitempty"`
	Enforce       *bool `yaml:"enforce,omitempty"`
}

// RequiresTarget reports whether the goal pattern has a placeholder.
func (t Template) RequiresTarget() bool {
	return strings.Contains(t.Goal, targetPlaceholder)
}

// ExpandGoal substitutes the target into the goal pattern.
func (t Template) ExpandGoal(target string) (string, error) {
	if t.RequiresTarget() && strings.TrimSpace(target) == "" {
		return "", fmt.Errorf("workflow %s requires a target", t.Name)
	}
	return strings.ReplaceAll(t.Goal, targetPlaceholder, target), nil
}

// Apply overlays the template's toggles on a loop config.
func (t Template) Apply(cfg agent.LoopConfig) agent.LoopConfig {
	if t.MaxTurns > 0 {
		cfg.MaxTurns = t.MaxTurns
	}
	if t.AutoSanctions != nil {
		cfg.AutoSanctionsScreen = *t.AutoSanctions
	}
	if t.AutoNews != nil {
		cfg.AutoNewsCheck = *t.AutoNews
	}
	if t.Enforce != nil {
		cfg.EnforceSafety = *t.Enforce
	}
	return cfg
}

// Library is a named set of templates.
type Library struct {
	templates map[string]Template
}

// document is the YAML file layout.
type document struct {
	Workflows []Template `yaml:"workflows"`
}

// Parse reads a template library from YAML.
func Parse(data []byte) (*Library, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing workflow file: %w", err)
	}
	lib := &Library{templates: make(map[string]Template)}
	for _, t := range doc.Workflows {
		if t.Name == "" {
			return nil, fmt.Errorf("workflow without a name")
		}
		if t.Goal == "" {
			return nil, fmt.Errorf("workflow %s has no goal pattern", t.Name)
		}
		if _, dup := lib.templates[t.Name]; dup {
			return nil, fmt.Errorf("duplicate workflow name %s", t.Name)
		}
		lib.templates[t.Name] = t
	}
	return lib, nil
}

// LoadFile reads a template library from a YAML file.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	return Parse(data)
}

// Builtin returns the built-in template library.
func Builtin() *Library {
	on := true
	off := false
	return &Library{templates: map[string]Template{
		"due_diligence": {
			Name:          "due_diligence",
			Description:   "Corporate due diligence: structure, officers, sanctions and media",
			Goal:          "due diligence investigation of {target}: corporate structure, officers, sanctions exposure and adverse media",
			AutoSanctions: &on,
			AutoNews:      &on,
		},
		"sanctions_exposure": {
			Name:          "sanctions_exposure",
			Description:   "Focused sanctions screening of an entity and its relationships",
			Goal:          "sanctions exposure of {target} including related entities and officers",
			MaxTurns:      8,
			AutoSanctions: &on,
			AutoNews:      &off,
		},
		"media_profile": {
			Name:          "media_profile",
			Description:   "Press coverage profile without sanctions screening",
			Goal:          "media coverage profile of {target}",
			MaxTurns:      6,
			AutoSanctions: &off,
			AutoNews:      &on,
		},
	}}
}

// Get returns the named template.
func (l *Library) Get(name string) (Template, error) {
	t, ok := l.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("unknown workflow %q (available: %s)", name, strings.Join(l.Names(), ", "))
	}
	return t, nil
}

// Names lists template names, sorted.
func (l *Library) Names() []string {
	out := make([]string, 0, len(l.templates))
	for name := range l.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
