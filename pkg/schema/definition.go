package schema

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Definition declares a machine as data: its states, their hierarchy, and
// the guarded transitions between them. Machines built from a Definition
// use string states and string triggers.
type Definition struct {
	Name     string                `yaml:"name,omitempty" json:"name,omitempty" mapstructure:"name"`
	Initial  string                `yaml:"initial" json:"initial" mapstructure:"initial"`
	States   map[string]StateDef   `yaml:"states" json:"states" mapstructure:"states"`
	Triggers map[string]TriggerDef `yaml:"triggers,omitempty" json:"triggers,omitempty" mapstructure:"triggers"`
}

// StateDef describes one state: its place in the hierarchy, the actions run
// on entry and exit, and how it handles triggers.
type StateDef struct {
	Superstate  string          `yaml:"superstate,omitempty" json:"superstate,omitempty" mapstructure:"superstate"`
	OnEntry     []string        `yaml:"on_entry,omitempty" json:"on_entry,omitempty" mapstructure:"on_entry"`
	OnExit      []string        `yaml:"on_exit,omitempty" json:"on_exit,omitempty" mapstructure:"on_exit"`
	Transitions []TransitionDef `yaml:"transitions,omitempty" json:"transitions,omitempty" mapstructure:"transitions"`
}

// TransitionDef describes how one trigger is handled in a state. Exactly
// one of To, Dynamic, Internal, or Ignore must be set. Guard names a
// registered guard and applies to every kind except Internal.
type TransitionDef struct {
	Trigger string `yaml:"trigger" json:"trigger" mapstructure:"trigger"`
	To      string `yaml:"to,omitempty" json:"to,omitempty" mapstructure:"to"`
	Guard   string `yaml:"guard,omitempty" json:"guard,omitempty" mapstructure:"guard"`

	// Dynamic names a registered destination resolver invoked with the
	// trigger arguments when the transition fires.
	Dynamic string `yaml:"dynamic,omitempty" json:"dynamic,omitempty" mapstructure:"dynamic"`

	// Internal names a registered action run without leaving the state.
	Internal string `yaml:"internal,omitempty" json:"internal,omitempty" mapstructure:"internal"`

	// Ignore accepts the trigger as a no-op.
	Ignore bool `yaml:"ignore,omitempty" json:"ignore,omitempty" mapstructure:"ignore"`
}

// TriggerDef declares the argument shape a trigger must be fired with.
// Params holds type names accepted by ParseType, in positional order.
type TriggerDef struct {
	Params []string `yaml:"params,omitempty" json:"params,omitempty" mapstructure:"params"`
}

// Parse decodes a YAML definition document.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}
	return &def, nil
}

// Load reads and parses a YAML definition from path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	return Parse(data)
}

// StateNames returns the declared states in sorted order.
func (d *Definition) StateNames() []string {
	return sortedKeys(d.States)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
