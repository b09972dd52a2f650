// Package state defines the canonical data model shared by every stage of
// the compiler: source units, declarations, chunk specs, chunks, and the
// return/run records the runtime produces. Nothing in this package has
// side effects; it is the contract other packages compile against.
package state

// DeclKind identifies the shape of a top-level entry in a source unit.
type DeclKind string

const (
	DeclInclude    DeclKind = "include"
	DeclExclude    DeclKind = "exclude"
	DeclExtend     DeclKind = "extend"
	DeclIdentifier DeclKind = "identifier"
)

// SourceUnit is a single named, addressable textual artifact. Name is a
// dotted path; "init" is the implicit leaf name for directory-indexed
// units (e.g. "webserver" resolves to webserver/init.sls on disk).
type SourceUnit struct {
	// Name is the dotted unit address, e.g. "webserver.config".
	Name string

	// Saltenv is the environment this unit was loaded from.
	Saltenv string

	// Raw is the unrendered byte content as returned by the loader.
	Raw []byte

	// RenderChain names the stages to apply, in order (e.g. ["jinja", "yaml"]).
	RenderChain []string

	// Path is a loader-provided hint for diagnostics (not used for addressing).
	Path string
}

// ExcludeEntry is a single entry of an `exclude:` declaration.
type ExcludeEntry struct {
	// Kind is "id" (drop a single identifier) or "sls" (drop an entire unit).
	Kind string
	// Value is the identifier or unit name to drop.
	Value string
}

// RequisiteKind names one of the relationship kinds a chunk spec can declare.
type RequisiteKind string

const (
	ReqRequire    RequisiteKind = "require"
	ReqRequireIn  RequisiteKind = "require_in"
	ReqWatch      RequisiteKind = "watch"
	ReqWatchIn    RequisiteKind = "watch_in"
	ReqPrereq     RequisiteKind = "prereq"
	ReqPrereqIn   RequisiteKind = "prereq_in"
	ReqUse        RequisiteKind = "use"
	ReqUseIn      RequisiteKind = "use_in"
	ReqOnfail     RequisiteKind = "onfail"
	ReqOnfailIn   RequisiteKind = "onfail_in"
	ReqOnchanges  RequisiteKind = "onchanges"
	ReqOnchangesIn RequisiteKind = "onchanges_in"
	ReqListen     RequisiteKind = "listen"
	ReqListenIn   RequisiteKind = "listen_in"
)

// inverseOf maps each "_in" requisite kind to the direct kind it rewrites
// to; Direct() consults it.
var inverseOf = map[RequisiteKind]RequisiteKind{
	ReqRequireIn:   ReqRequire,
	ReqWatchIn:     ReqWatch,
	ReqPrereqIn:    ReqPrereq,
	ReqUseIn:       ReqUse,
	ReqOnfailIn:    ReqOnfail,
	ReqOnchangesIn: ReqOnchanges,
	ReqListenIn:    ReqListen,
}

// IsInverse reports whether k is one of the "*_in" forms.
func (k RequisiteKind) IsInverse() bool {
	_, ok := inverseOf[k]
	return ok
}

// Direct returns the non-inverse form of an "*_in" requisite kind. For a
// kind that is already direct, it returns k unchanged.
func (k RequisiteKind) Direct() RequisiteKind {
	if d, ok := inverseOf[k]; ok {
		return d
	}
	return k
}

// CreatesOrderEdge reports whether k (or its direct form) creates a real
// graph edge (A depends on B): require, watch and prereq do; the rest affect
// gating, inheritance, or deferred reactions only (§4.5/§4.6).
func (k RequisiteKind) CreatesOrderEdge() bool {
	switch k.Direct() {
	case ReqRequire, ReqWatch, ReqPrereq:
		return true
	default:
		return false
	}
}

// RequisiteRef is a single reference inside a requisite list: {module, id-or-name}.
type RequisiteRef struct {
	// Module is the doer module the target chunk must belong to. Empty
	// means "any module" (matched by id only, per §4.5).
	Module string
	// ID is the identifier or name the reference targets.
	ID string
}

// Order is an explicit chunk ordering directive: a specific integer, or the
// first/last sentinel.
type Order struct {
	Explicit bool
	First    bool
	Last     bool
	Value    int
}

// ChunkSpec is the basic invocation declaration: one entry of an identifier
// after it has been split into one-spec-per-(module,function) (§3, §4.4).
type ChunkSpec struct {
	// ID is unique across the compiled run. First wins on collision.
	ID string

	// Module and Function identify the doer operation.
	Module   string
	Function string

	// Name overrides ID for the doer's `name` argument. Equals ID if unset.
	Name string

	// Args is the argument mapping passed to the doer.
	Args map[string]any

	// Requisites maps requisite kind to an ordered reference list.
	Requisites map[RequisiteKind][]RequisiteRef

	OrderDirective Order

	Parallel      bool
	Failhard      bool
	FireEvent     bool
	FireEventTag  string
	ReloadModules bool

	OnlyIf   []string
	Unless   []string
	CheckCmd []string

	// Unit is the originating source unit's name, for diagnostics and
	// relative-include resolution during compilation.
	Unit string

	// DefinitionOrder is the monotonically increasing counter assigned
	// during high->low compilation (§4.4); it is the tiebreak baseline.
	DefinitionOrder int
}

// Clone returns a deep-enough copy of a ChunkSpec for safe mutation (used
// when expanding `names:` into sibling chunks).
func (c ChunkSpec) Clone() ChunkSpec {
	out := c
	out.Args = make(map[string]any, len(c.Args))
	for k, v := range c.Args {
		out.Args[k] = v
	}
	out.Requisites = make(map[RequisiteKind][]RequisiteRef, len(c.Requisites))
	for k, v := range c.Requisites {
		cp := make([]RequisiteRef, len(v))
		copy(cp, v)
		out.Requisites[k] = cp
	}
	out.OnlyIf = append([]string(nil), c.OnlyIf...)
	out.Unless = append([]string(nil), c.Unless...)
	out.CheckCmd = append([]string(nil), c.CheckCmd...)
	return out
}
