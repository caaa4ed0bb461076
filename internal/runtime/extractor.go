package runtime

import (
	"context"
	"fmt"

	"github.com/jward/arbor/internal/extract"
	"github.com/jward/arbor/internal/workspace"
)

// ScriptExtractor is an extract.Extractor backed by a Risor script.
//
// The script sees the globals source, file_path and language in addition
// to the runtime's host functions, and reports declarations through
// emit_type, emit_method, emit_field, emit_import and emit_package.
type ScriptExtractor struct {
	rt         *Runtime
	language   string
	extensions []string
	roots      []string
	script     string
}

// Compile-time check: *ScriptExtractor satisfies extract.Extractor.
var _ extract.Extractor = (*ScriptExtractor)(nil)

func NewScriptExtractor(rt *Runtime, s workspace.Script) *ScriptExtractor {
	return &ScriptExtractor{
		rt:         rt,
		language:   s.Language,
		extensions: s.Extensions,
		roots:      s.Roots,
		script:     s.Path,
	}
}

func (e *ScriptExtractor) Language() string     { return e.language }
func (e *ScriptExtractor) Extensions() []string { return e.extensions }
func (e *ScriptExtractor) RootTypes() []string  { return e.roots }

func (e *ScriptExtractor) Extract(ctx context.Context, path string, src []byte) (*extract.Unit, error) {
	c := &collector{unit: &extract.Unit{Path: path, Language: e.language}}
	globals := c.globals()
	globals["source"] = string(src)
	globals["file_path"] = path
	globals["language"] = e.language

	if err := e.rt.RunScript(ctx, e.script, globals); err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	c.unit.Unalias()
	return c.unit, nil
}

// RegisterScripts adds a ScriptExtractor to reg for every script entry in
// ws. Script entries take precedence over built-in extractors for the
// same extensions.
func RegisterScripts(reg *extract.Registry, rt *Runtime, ws *workspace.Workspace) {
	for _, s := range ws.Scripts {
		reg.Register(NewScriptExtractor(rt, s))
	}
}
