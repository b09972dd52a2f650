package state

// DiagnosticKind classifies a non-fatal problem surfaced during compile or
// run, per §7's error-kind taxonomy. Load/render/reference/structural
// diagnostics come from the compiler; guard/doer diagnostics come from the
// runtime.
type DiagnosticKind string

const (
	DiagLoad      DiagnosticKind = "load"
	DiagRender    DiagnosticKind = "render"
	DiagReference DiagnosticKind = "reference"
	DiagStructural DiagnosticKind = "structural"
	DiagGuard     DiagnosticKind = "guard"
	DiagDoer      DiagnosticKind = "doer"
)

// Diagnostic is a single reported problem. Fatal diagnostics (structural
// cycles, unresolvable requisites that abort compilation) are returned as
// Go errors by the producing function instead of appended here; this type
// is for problems that are reported alongside an otherwise-usable result.
type Diagnostic struct {
	Kind    DiagnosticKind
	Unit    string
	ChunkID string
	Message string
}

func (d Diagnostic) String() string {
	if d.ChunkID != "" {
		return string(d.Kind) + ": " + d.ChunkID + ": " + d.Message
	}
	if d.Unit != "" {
		return string(d.Kind) + ": " + d.Unit + ": " + d.Message
	}
	return string(d.Kind) + ": " + d.Message
}
