package state

import "time"

// Status is the outcome of a single chunk (§3, §8 "pending/ok/fail"):
// Pending is a test-mode result whose doer predicted changes; Skipped
// marks a chunk that was not invoked (a failed or skipped requisite, a
// closed onfail gate, an unneeded prereq, or a failhard abort).
type Status string

const (
	StatusPending Status = "pending"
	StatusOK      Status = "ok"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
)

// ReturnRecord is what a doer hands back to the runtime after an
// invocation, and what the runtime stores keyed by chunk ID (§3, §4.7).
type ReturnRecord struct {
	ID       string
	Status   Status
	Comment  string
	Changes  map[string]any
	Started  time.Time
	Duration time.Duration

	// TestMode records whether this record came from a dry-run invocation
	// (§C9); Changes in that case are predicted, not applied.
	TestMode bool

	// SkippedReason is set when Status is StatusSkipped (§7): e.g.
	// "onfail: no target failed", "require/watch: predecessor \"x\" failed".
	SkippedReason string
}

// Succeeded reports whether the record represents a non-failing outcome.
func (r ReturnRecord) Succeeded() bool {
	return r.Status == StatusOK || r.Status == StatusSkipped
}

// HasChanges reports whether the record's Changes map is non-empty, the
// signal watch/listen reactions key off (§4.6).
func (r ReturnRecord) HasChanges() bool {
	return len(r.Changes) > 0
}

// RunRecord is the aggregate result of one compile+execute cycle: an
// ordered list of per-chunk return records plus run-level metadata, the
// unit the daemon's control API and `show_*` surface hand back (§6).
type RunRecord struct {
	ID        string
	Environment string
	TestMode  bool
	Started   time.Time
	Finished  time.Time

	// Order is the chunk IDs in compiled order (a deferred prereq target
	// keeps its compiled position although it runs after the chunk that
	// prereqs it), followed by the IDs of any listen reaction records.
	Order []string

	// Results is keyed by chunk ID.
	Results map[string]ReturnRecord

	// Diagnostics collects non-fatal load/render/reference/structural
	// problems surfaced alongside a run (§7).
	Diagnostics []Diagnostic

	// Aborted is set when a failhard chunk cut the run short (§7).
	Aborted bool
	AbortedAt string
}

// Succeeded reports whether every chunk in the run reached ok/skipped.
func (r RunRecord) Succeeded() bool {
	if r.Aborted {
		return false
	}
	for _, res := range r.Results {
		if res.Status == StatusFail {
			return false
		}
	}
	return true
}

// FailedChunks returns the IDs of chunks that failed, in run order.
func (r RunRecord) FailedChunks() []string {
	var out []string
	for _, id := range r.Order {
		if res, ok := r.Results[id]; ok && res.Status == StatusFail {
			out = append(out, id)
		}
	}
	return out
}
