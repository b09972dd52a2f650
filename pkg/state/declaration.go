package state

// Declaration is one top-level entry of a rendered source unit's mapping,
// before high->low compilation splits identifiers into ChunkSpecs (§4.3,
// §4.4).
type Declaration struct {
	Kind DeclKind

	// Includes holds the target unit names for a DeclInclude entry.
	Includes []string

	// Excludes holds the entries for a DeclExclude entry.
	Excludes []ExcludeEntry

	// ExtendID names the identifier an DeclExtend entry modifies, and
	// ExtendBody carries the raw per-module mapping to merge into it (§4.4 extend
	// semantics: additive merge over existing chunk specs, first-wins
	// still applies to the base definition).
	ExtendID string
	ExtendBody map[string]map[string]any

	// Identifier/Body hold a DeclIdentifier entry: an id mapped to one or
	// more module.function keys, each with its own argument list
	// (possibly including requisites and global keywords).
	Identifier string
	Body       map[string]map[string]any
}

// RenderedUnit is the canonical-mapping output of the render pipeline
// (C1): a source unit's bytes, reduced through templating and structured
// parsing to a dotted-name -> declaration mapping plus top-level order
// (map iteration order is not guaranteed, so DeclOrder preserves document
// order for the definition-order tiebreak in §4.4/§9).
type RenderedUnit struct {
	Unit string
	Saltenv string
	Declarations []Declaration

	// DeclOrder maps identifier (or "include"/"exclude"/"extend.<id>") to
	// its position in the rendered document.
	DeclOrder []string
}
