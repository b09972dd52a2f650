// Package file implements the "file" doer module: file.managed writes a
// file's content and mode if they differ from what's declared, reporting
// an idempotent no-op when they already match (§4.9 test-mode harness
// relies on doers being able to predict this without mutating anything).
package file

import (
	"context"
	"fmt"
	"os"

	"github.com/mattferris/statecraft/pkg/state"
)

// Doer implements file.managed.
type Doer struct{}

func New() *Doer { return &Doer{} }

func (d *Doer) Metadata() state.DoerMetadata {
	return state.DoerMetadata{Module: "file", Description: "manage file content and mode", Functions: []string{"managed", "recurse"}}
}

func (d *Doer) ModInit(ctx context.Context, ic *state.InvocationContext) error { return nil }

func (d *Doer) Invoke(ctx context.Context, ic *state.InvocationContext) (state.ReturnRecord, error) {
	switch ic.Chunk.Function {
	case "managed":
		return d.managed(ic)
	case "recurse":
		return d.recurse(ic)
	default:
		return state.ReturnRecord{}, fmt.Errorf("file: unknown function %q", ic.Chunk.Function)
	}
}

func (d *Doer) managed(ic *state.InvocationContext) (state.ReturnRecord, error) {
	path, _ := ic.Chunk.Args["name"].(string)
	if path == "" {
		path = ic.Chunk.Name
	}
	contents, _ := ic.Chunk.Args["contents"].(string)
	var mode os.FileMode = 0644
	if m, ok := ic.Chunk.Args["mode"].(string); ok {
		if parsed, err := parseMode(m); err == nil {
			mode = parsed
		}
	}

	existing, err := os.ReadFile(path)
	contentChanged := err != nil || string(existing) != contents

	var modeChanged bool
	if info, statErr := os.Stat(path); statErr == nil {
		modeChanged = info.Mode().Perm() != mode.Perm()
	} else {
		modeChanged = true
	}

	if !contentChanged && !modeChanged {
		return state.ReturnRecord{Status: state.StatusOK, Comment: fmt.Sprintf("%s is already in the correct state", path)}, nil
	}

	changes := map[string]any{}
	if contentChanged {
		changes["contents"] = true
	}
	if modeChanged {
		changes["mode"] = mode.String()
	}

	if ic.TestMode {
		return state.ReturnRecord{Status: state.StatusPending, TestMode: true, Changes: changes,
			Comment: fmt.Sprintf("%s would be updated", path)}, nil
	}

	if err := os.WriteFile(path, []byte(contents), mode); err != nil {
		return state.ReturnRecord{Status: state.StatusFail, Comment: fmt.Sprintf("write %s: %v", path, err)}, nil
	}
	if err := os.Chmod(path, mode); err != nil {
		return state.ReturnRecord{Status: state.StatusFail, Comment: fmt.Sprintf("chmod %s: %v", path, err)}, nil
	}

	return state.ReturnRecord{Status: state.StatusOK, Changes: changes, Comment: fmt.Sprintf("updated %s", path)}, nil
}

// recurse is a narrow reference implementation: it only reports whether
// the target directory exists, as a stand-in for a real recursive
// directory sync, which is out of scope (§1 "individual domain doers").
func (d *Doer) recurse(ic *state.InvocationContext) (state.ReturnRecord, error) {
	path, _ := ic.Chunk.Args["name"].(string)
	if path == "" {
		path = ic.Chunk.Name
	}
	info, err := os.Stat(path)
	exists := err == nil && info.IsDir()

	if exists {
		return state.ReturnRecord{Status: state.StatusOK, Comment: fmt.Sprintf("%s already exists", path)}, nil
	}
	if ic.TestMode {
		return state.ReturnRecord{Status: state.StatusPending, TestMode: true,
			Changes: map[string]any{"directory": path}, Comment: fmt.Sprintf("%s would be created", path)}, nil
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return state.ReturnRecord{Status: state.StatusFail, Comment: fmt.Sprintf("mkdir %s: %v", path, err)}, nil
	}
	return state.ReturnRecord{Status: state.StatusOK, Changes: map[string]any{"directory": path},
		Comment: fmt.Sprintf("created %s", path)}, nil
}

func parseMode(s string) (os.FileMode, error) {
	var m uint32
	_, err := fmt.Sscanf(s, "%o", &m)
	return os.FileMode(m), err
}
