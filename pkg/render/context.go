// Package render implements the multi-stage renderer pipeline (C1): a
// source unit's raw bytes are carried through a named chain of stages
// (templating, then structured-data parsing) into the canonical mapping
// the rest of the compiler consumes. Every stage is a pure function of
// (input, Context); the pipeline itself has no side effects beyond the
// read-only doer query calls a stage may make through Context.Query.
package render

import (
	"path"
	"strings"
)

// Context is the read-only snapshot a render stage operates under (§4.1).
// It is built once per compile and never mutated by a stage.
type Context struct {
	Grains  map[string]any
	Pillar  map[string]any
	Saltenv string

	// Unit is the dotted name of the source unit being rendered.
	Unit string

	// Query invokes a doer function in read-only mode, for interpolating
	// runtime facts into a declaration (e.g. `{{ salt.cmd.run(...) }}`).
	// A nil Query means no doer cross-calls are available in this context.
	Query func(module, function string, args map[string]any) (any, error)
}

// PathVars derives the slspath family of template variables from the
// context's Unit, matching the teacher's path-derivation helpers in
// internal/fileutil (dotted-name <-> filesystem path conversion).
type PathVars struct {
	Slspath     string // filesystem directory containing the unit
	Slsdotpath  string // dotted path with the leaf name stripped
	Slscolonpath string // slspath with ':' separators instead of '/'
	Tplfile     string // the rendered file's notional path
	Tpldir      string
	Tpldot      string // dotted form of Tpldir
}

// DerivePathVars computes the slspath family for a dotted unit name. The
// trailing "init" leaf (directory-indexed units) is stripped before
// deriving the directory form, per §3's "init is an implicit leaf name".
func DerivePathVars(unit string) PathVars {
	trimmed := strings.TrimSuffix(unit, ".init")
	slashed := strings.ReplaceAll(trimmed, ".", "/")
	dir := path.Dir(slashed)
	if dir == "." {
		dir = ""
	}
	dotdir := strings.ReplaceAll(dir, "/", ".")
	return PathVars{
		Slspath:      dir,
		Slsdotpath:   dotdir,
		Slscolonpath: strings.ReplaceAll(dir, "/", ":"),
		Tplfile:      slashed + ".sls",
		Tpldir:       dir,
		Tpldot:       dotdir,
	}
}

// TemplateVars builds the full variable set a templating stage (e.g. the
// Go text/template stage in template.go) exposes to a unit's text, merging
// grains/pillar/saltenv with the derived path family.
func (c Context) TemplateVars() map[string]any {
	pv := DerivePathVars(c.Unit)
	return map[string]any{
		"grains":       c.Grains,
		"pillar":       c.Pillar,
		"saltenv":      c.Saltenv,
		"slspath":      pv.Slspath,
		"slsdotpath":   pv.Slsdotpath,
		"slscolonpath": pv.Slscolonpath,
		"tplfile":      pv.Tplfile,
		"tpldir":       pv.Tpldir,
		"tpldot":       pv.Tpldot,
	}
}
