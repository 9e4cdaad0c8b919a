package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned by Discover when no config file exists.
var ErrNotFound = errors.New("config not found")

// ConfigError collects everything wrong with one config file.
type ConfigError struct {
	Path    string
	Missing []string // unresolved ${VAR} references
	Errors  []string // Validate output
}

type problemGroup struct {
	title string
	items []string
}

func (e *ConfigError) groups() []problemGroup {
	var g []problemGroup
	if len(e.Missing) > 0 {
		g = append(g, problemGroup{"missing environment variables", e.Missing})
	}
	if len(e.Errors) > 0 {
		g = append(g, problemGroup{"validation failed", e.Errors})
	}
	return g
}

func (e *ConfigError) Error() string {
	groups := e.groups()
	if len(groups) == 0 {
		return ""
	}

	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path + ":")
	}
	for _, g := range groups {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(g.title + ": ")
		b.WriteString(strings.Join(g.items, "; "))
	}
	return b.String()
}

// HasErrors reports whether anything is wrong.
func (e *ConfigError) HasErrors() bool {
	return len(e.groups()) > 0
}

// Report writes the problems as an indented list per group.
func (e *ConfigError) Report(w io.Writer) {
	for _, g := range e.groups() {
		fmt.Fprintf(w, "%s%s:\n", strings.ToUpper(g.title[:1]), g.title[1:])
		for _, item := range g.items {
			fmt.Fprintf(w, "  - %s\n", item)
		}
		fmt.Fprintln(w)
	}
}
