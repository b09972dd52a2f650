package compiler

import (
	"fmt"
	"strings"

	"github.com/mattferris/statecraft/pkg/render"
	"github.com/mattferris/statecraft/pkg/state"
)

type unitKey struct {
	env  string
	name string
}

// resolveIncludes implements C3: starting from unitNames in saltenv,
// repeatedly renders unselected units, resolves their `include:`
// declarations into further units, detects include cycles, and returns
// the fully loaded set in post-order (included units before the unit
// that included them, §4.3 step 3) so C4's definition-order counter sees
// dependencies first.
func resolveIncludes(loader Loader, renderCtx render.Context, saltenv string, unitNames []string) ([]state.RenderedUnit, error) {
	rendered := make(map[unitKey]state.RenderedUnit)
	visiting := make(map[unitKey]bool)
	done := make(map[unitKey]bool)
	var order []unitKey

	var visit func(k unitKey, stack []unitKey) error
	visit = func(k unitKey, stack []unitKey) error {
		if done[k] {
			return nil
		}
		if visiting[k] {
			return fmt.Errorf("compiler: cyclic include detected: %s", cycleString(append(stack, k)))
		}
		visiting[k] = true
		defer delete(visiting, k)

		unit, err := loader.Load(k.name, k.env)
		if err != nil {
			return fmt.Errorf("compiler: load error: %q (env %q): %w", k.name, k.env, err)
		}

		ru, err := render.Render(unit, renderCtx)
		if err != nil {
			return newRenderError(k.name, err)
		}
		rendered[k] = ru

		for _, decl := range ru.Declarations {
			if decl.Kind != state.DeclInclude {
				continue
			}
			for _, raw := range decl.Includes {
				childEnv, childName := resolveIncludeName(raw, k.env, k.name)
				child := unitKey{env: childEnv, name: childName}
				if err := visit(child, append(stack, k)); err != nil {
					return err
				}
			}
		}

		done[k] = true
		order = append(order, k)
		return nil
	}

	for _, name := range unitNames {
		k := unitKey{env: saltenv, name: name}
		if err := visit(k, nil); err != nil {
			return nil, err
		}
	}

	out := make([]state.RenderedUnit, 0, len(order))
	for _, k := range order {
		out = append(out, rendered[k])
	}
	return out, nil
}

func cycleString(stack []unitKey) string {
	names := make([]string, len(stack))
	for i, k := range stack {
		names[i] = k.env + ":" + k.name
	}
	return strings.Join(names, " -> ")
}

// resolveIncludeName resolves one `include:` entry relative to the
// including unit (§3, §4.3 step 2): a leading-dot form is relative to the
// containing unit's directory (n dots = ascend n-1 parents); an
// "env:name" form addresses an explicit environment.
func resolveIncludeName(raw, containingEnv, containingUnit string) (env, name string) {
	if idx := strings.Index(raw, ":"); idx > 0 && !strings.HasPrefix(raw, ".") {
		maybeEnv, rest := raw[:idx], raw[idx+1:]
		if !strings.Contains(maybeEnv, ".") {
			return maybeEnv, rest
		}
	}

	if !strings.HasPrefix(raw, ".") {
		return containingEnv, raw
	}

	n := 0
	for n < len(raw) && raw[n] == '.' {
		n++
	}
	rest := raw[n:]

	dirParts := strings.Split(containingUnit, ".")
	if len(dirParts) > 0 {
		dirParts = dirParts[:len(dirParts)-1] // drop the leaf, keep the directory
	}
	ascend := n - 1
	if ascend > 0 {
		if ascend > len(dirParts) {
			ascend = len(dirParts)
		}
		dirParts = dirParts[:len(dirParts)-ascend]
	}

	if rest == "" {
		return containingEnv, strings.Join(dirParts, ".")
	}
	full := append(append([]string{}, dirParts...), strings.Split(rest, ".")...)
	return containingEnv, strings.Join(full, ".")
}

// applyExcludes removes excluded units/ids from the rendered set (§4.3
// step 5). Exclusion is applied once, after the full frontier is loaded;
// per §4.3's documented constraint, duplicate-id detection in
// mergeHighData runs before this unless Options.ExcludeBeforeDuplicateCheck
// reverses it (§9 Open Question #1).
func applyExcludes(units []state.RenderedUnit) (kept []state.RenderedUnit, excludedIDs map[string]bool) {
	excludedUnits := make(map[string]bool)
	excludedIDs = make(map[string]bool)

	for _, u := range units {
		for _, decl := range u.Declarations {
			if decl.Kind != state.DeclExclude {
				continue
			}
			for _, e := range decl.Excludes {
				switch e.Kind {
				case "sls":
					excludedUnits[e.Value] = true
				case "id":
					excludedIDs[e.Value] = true
				}
			}
		}
	}

	for _, u := range units {
		if excludedUnits[u.Unit] {
			continue
		}
		kept = append(kept, u)
	}
	return kept, excludedIDs
}
