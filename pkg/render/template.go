package render

import (
	"bytes"
	"fmt"
	"text/template"
)

// TemplateStage is the templating stage of the render chain. No
// third-party templating engine appears anywhere in the retrieval pack
// (see DESIGN.md), so this stage is built on text/template, the one
// ambient-stack piece of this package that is genuinely stdlib-only.
const TemplateStage = "template"

// RenderTemplate runs src through text/template with the context's
// variable set (§4.1's grains/pillar/saltenv/slspath family). Template
// func errors and parse errors are both surfaced as render errors; the
// caller attributes them to the unit.
func RenderTemplate(src []byte, ctx Context) ([]byte, error) {
	vars := ctx.TemplateVars()
	vars["query"] = func(module, function string) (any, error) {
		if ctx.Query == nil {
			return nil, fmt.Errorf("render: no query function available in this context")
		}
		return ctx.Query(module, function, nil)
	}

	tmpl, err := template.New(ctx.Unit).Option("missingkey=zero").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("render: template parse failed for %q: %w", ctx.Unit, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("render: template execution failed for %q: %w", ctx.Unit, err)
	}
	return buf.Bytes(), nil
}
