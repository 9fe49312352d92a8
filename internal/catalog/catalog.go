// Package catalog is the static registry of migration paths. Everything in
// here is pure data: predicates and statements are SQL text, execution
// belongs to the orchestrator.
package catalog

import (
	"sort"
	"strings"
)

// Script is one named, ordered, idempotent transformation step.
type Script struct {
	// ID is the stable identifier recorded in results and reports.
	ID          string
	Name        string
	Description string
	// Order is the ascending application key. Ties apply in declaration order.
	Order int
	// SQL is the transformation statement, executed in its own transaction.
	SQL string
	// PreCheck, when set, must yield a single boolean row. False skips the
	// script without mutating anything.
	PreCheck string
	// PostCheck, when set, must yield true after SQL ran, else the whole
	// run fails.
	PostCheck string
}

// Path pairs a source version prefix with its ordered script catalog.
type Path struct {
	ID            string
	SourcePrefix  string
	SourceVersion string
	TargetVersion string
	// RequiredTables must all exist before the path may begin.
	RequiredTables []string

	scripts []Script
}

// Scripts returns the path's scripts sorted ascending by Order, stable on
// ties.
func (p *Path) Scripts() []Script {
	out := make([]Script, len(p.scripts))
	copy(out, p.scripts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// ScriptByID returns the script with the given identifier.
func (p *Path) ScriptByID(id string) (Script, bool) {
	for _, s := range p.scripts {
		if s.ID == id {
			return s, true
		}
	}
	return Script{}, false
}

// NewPath assembles a path from its parts. The registry's own paths are
// declared statically; this exists for callers that bring their own catalog.
func NewPath(id, sourcePrefix, sourceVersion, targetVersion string, requiredTables []string, scripts []Script) *Path {
	return &Path{
		ID:             id,
		SourcePrefix:   sourcePrefix,
		SourceVersion:  sourceVersion,
		TargetVersion:  targetVersion,
		RequiredTables: requiredTables,
		scripts:        scripts,
	}
}

// Paths returns every registered migration path.
func Paths() []*Path {
	return []*Path{path16to17, path17to18}
}

// PathByID returns a registered path by its identifier.
func PathByID(id string) (*Path, bool) {
	for _, p := range Paths() {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// PathForVersion maps a version string to the path whose source prefix it
// carries, or nil when the prefix is unrecognized.
func PathForVersion(version string) *Path {
	for _, p := range Paths() {
		if strings.HasPrefix(version, p.SourcePrefix) {
			return p
		}
	}
	return nil
}
