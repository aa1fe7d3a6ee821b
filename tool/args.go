package tool

import (
	"fmt"
	"strings"
)

// ArgRule maps the caller's single argument to the argument vector of a CLI tool.
// The argument always ends up as exactly one element of the vector.
type ArgRule func(arg string) []string

var argRules = map[string]ArgRule{
	"sherlock": func(arg string) []string {
		return []string{"-m", "sherlock_project", arg, "--timeout", "5"}
	},
	"holehe": func(arg string) []string {
		return []string{arg, "--only-used"}
	},
	"theHarvester": func(arg string) []string {
		return []string{"-d", arg, "-b", "all"}
	},
	"photon": func(arg string) []string {
		return []string{"photon.py", "-u", arg}
	},
	"blackbird": func(arg string) []string {
		return []string{"blackbird.py", "-u", arg}
	},
	"sublist3r": func(arg string) []string {
		return []string{"sublist3r.py", "-d", arg}
	},
	"maigret": func(arg string) []string {
		return []string{"-m", "maigret", arg}
	},
	"dnsrecon": func(arg string) []string {
		return []string{"dnsrecon.py", "-d", arg}
	},
	"wafw00f": func(arg string) []string {
		return []string{"-m", "wafw00f.main", arg}
	},
}

// HasArgRule reports whether id has an argument rule.
func HasArgRule(id string) bool {
	_, ok := argRules[id]
	return ok
}

// BuildArgs applies the argument rule of the given tool.
func BuildArgs(id, arg string) ([]string, error) {
	rule, ok := argRules[id]
	if !ok {
		return nil, fmt.Errorf("%w: no argument rule for %q", ErrUnknownTool, id)
	}
	if strings.TrimSpace(arg) == "" {
		return nil, fmt.Errorf("%w: %s requires a target", ErrInvalidArgument, id)
	}
	return rule(arg), nil
}
