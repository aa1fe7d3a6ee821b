// Package tool holds the static table of tools the hub can launch, and the
// argument rules that turn a caller's input into a command line.
package tool

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool is returned when a tool id is not configured, or is configured with the wrong kind.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArgument is returned when a required argument is missing.
	ErrInvalidArgument = errors.New("invalid argument")
)

type Kind string

const (
	// KindService is a long-running process that binds its own port and is controlled via start/stop.
	KindService Kind = "service"
	// KindCLI is a one-shot process whose output is streamed to a single caller.
	KindCLI Kind = "cli"
)

// Descriptor is the static configuration of a single tool.
type Descriptor struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Kind        Kind   `yaml:"kind" json:"kind"`

	// Dir is the working directory of the process.
	Dir string `yaml:"dir" json:"-"`
	// Command is the executable. A relative path containing a separator is resolved against Dir.
	Command string `yaml:"command" json:"-"`
	// Args are the fixed arguments of a service. CLI tools get theirs from an ArgRule.
	Args []string `yaml:"args,omitempty" json:"-"`

	// URL is where a service can be reached once running.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
}

// Table is an immutable, ordered set of tools keyed by id.
type Table struct {
	order []string
	byID  map[string]Descriptor
}

// NewTable validates the descriptors and builds a table that preserves their order.
func NewTable(descs []Descriptor) (*Table, error) {
	t := &Table{byID: map[string]Descriptor{}}
	for _, d := range descs {
		if d.ID == "" {
			return nil, errors.New("tool with empty id")
		}
		if _, ok := t.byID[d.ID]; ok {
			return nil, fmt.Errorf("duplicate tool id %q", d.ID)
		}
		if d.Command == "" {
			return nil, fmt.Errorf("tool %q has no command", d.ID)
		}
		switch d.Kind {
		case KindService:
		case KindCLI:
			if _, ok := argRules[d.ID]; !ok {
				return nil, fmt.Errorf("cli tool %q has no argument rule", d.ID)
			}
		default:
			return nil, fmt.Errorf("tool %q has unsupported kind %q", d.ID, d.Kind)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		t.order = append(t.order, d.ID)
		t.byID[d.ID] = d
	}
	return t, nil
}

func (t *Table) Lookup(id string) (Descriptor, bool) {
	d, ok := t.byID[id]
	return d, ok
}

// Service returns the descriptor of a service tool, or ErrUnknownTool.
func (t *Table) Service(id string) (Descriptor, error) {
	return t.ofKind(id, KindService)
}

// CLI returns the descriptor of a CLI tool, or ErrUnknownTool.
func (t *Table) CLI(id string) (Descriptor, error) {
	return t.ofKind(id, KindCLI)
}

func (t *Table) ofKind(id string, kind Kind) (Descriptor, error) {
	d, ok := t.byID[id]
	if !ok || d.Kind != kind {
		return Descriptor{}, fmt.Errorf("%w: %q is not a %s tool", ErrUnknownTool, id, kind)
	}
	return d, nil
}

// All returns every tool in configuration order.
func (t *Table) All() []Descriptor {
	descs := make([]Descriptor, 0, len(t.order))
	for _, id := range t.order {
		descs = append(descs, t.byID[id])
	}
	return descs
}

// Services returns the service tools in configuration order.
func (t *Table) Services() []Descriptor {
	var descs []Descriptor
	for _, id := range t.order {
		if d := t.byID[id]; d.Kind == KindService {
			descs = append(descs, d)
		}
	}
	return descs
}
