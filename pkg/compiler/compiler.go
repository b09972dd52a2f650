// Package compiler implements the include/exclude resolver (C3) and the
// high->low compiler (C4): it turns a frontier of selected source units
// into a flat, ordered list of chunk specs ready for the requisite/order
// resolver (pkg/graph).
package compiler

import (
	"fmt"

	"github.com/mattferris/statecraft/pkg/render"
	"github.com/mattferris/statecraft/pkg/state"
)

// Loader fetches a source unit's raw bytes and render-chain hint (§6
// "source loader interface"). The core treats it as an opaque
// collaborator; this package only calls it by (name, saltenv).
type Loader interface {
	Load(name, saltenv string) (state.SourceUnit, error)
}

// Options controls high->low compilation behavior (§6 config options
// relevant to C4).
type Options struct {
	// AutoOrder enables definition-order assignment; when false, the
	// baseline falls back to lexicographic (module, id, function) (§4.4).
	AutoOrder bool

	// ExcludeBeforeDuplicateCheck reverses the documented-but-odd default
	// ordering where duplicate-id detection runs before excludes are
	// applied (§4.3 "known constraint", §9 Open Question #1). Default
	// false reproduces the corpus's current behavior.
	ExcludeBeforeDuplicateCheck bool
}

// Result is everything C3/C4 produce for one environment's compile: the
// flat ChunkSpec list (not yet graph-resolved), plus any non-fatal
// diagnostics collected along the way (duplicate ids, unresolved extends).
type Result struct {
	Specs       []state.ChunkSpec
	Diagnostics []state.Diagnostic
}

// Compile resolves includes/excludes starting from the units named by
// unitNames (as selected by pkg/top) in saltenv, renders each with
// renderCtx (§4.1), merges them into high data (§4.3), applies extends,
// and normalizes to a flat chunk-spec list in definition order (§4.4).
func Compile(loader Loader, renderCtx render.Context, saltenv string, unitNames []string, opts Options) (Result, error) {
	rendered, err := resolveIncludes(loader, renderCtx, saltenv, unitNames)
	if err != nil {
		return Result{}, err
	}

	highData, extends, diags, err := mergeHighData(rendered, opts)
	if err != nil {
		return Result{}, err
	}

	specs, lowDiags := compileLowData(highData, opts)
	diags = append(diags, lowDiags...)

	specs, extendDiags := applyExtends(specs, extends)
	diags = append(diags, extendDiags...)

	diags = append(diags, rewriteInverseRequisites(specs)...)

	if !opts.AutoOrder {
		applyLexicographicBaseline(specs)
	}

	return Result{Specs: specs, Diagnostics: diags}, nil
}

// HighData resolves includes/excludes and renders the selected units
// (the C1-C3 half of Compile) without projecting to chunk specs, for the
// `show_highstate` diagnostic surface (§6).
func HighData(loader Loader, renderCtx render.Context, saltenv string, unitNames []string) ([]state.RenderedUnit, error) {
	return resolveIncludes(loader, renderCtx, saltenv, unitNames)
}

func newRenderError(unit string, err error) error {
	return fmt.Errorf("compiler: %q: %w", unit, err)
}
