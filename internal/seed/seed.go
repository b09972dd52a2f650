// Package seed loads the static, read-only grains/pillar data this repo
// ships so the compiler is runnable standalone without a live dynamic
// grains/pillar provider wired in. Grounded on internal/config's own
// TOML Load/DefaultConfig pattern (same library, same
// read-file-then-decode-with-defaults shape), generalized from service
// configuration to arbitrary grains/pillar trees.
package seed

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Data is a decoded grains or pillar tree: TOML tables decode naturally
// into nested map[string]any, the shape pkg/render.Context and pkg/match
// already expect.
type Data map[string]any

// Load reads a TOML file into a Data tree. A missing file yields an empty
// Data rather than an error, mirroring internal/config.Load's
// missing-file-means-defaults behavior: a seed file is optional, not a
// precondition for compiling.
func Load(path string) (Data, error) {
	if path == "" {
		return Data{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Data{}, nil
	}

	var d Data
	if _, err := toml.DecodeFile(path, &d); err != nil {
		return nil, fmt.Errorf("parse seed file %q: %w", path, err)
	}
	if d == nil {
		d = Data{}
	}
	return d, nil
}

// Merge overlays patch onto base, patch winning on key collision at the
// top level only (grains/pillar seeds are shallow tables of scalars and
// lists in practice; a deep merge isn't needed for static seed data).
func Merge(base, patch Data) Data {
	out := make(Data, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
