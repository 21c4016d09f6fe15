package tools

import (
	"fmt"
	"sort"
	"strings"

	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/llm"
)

// Handler is implemented by every table keyed by tool ID (backend routes,
// formatters). A registry refuses to build when a handler misses one of its
// tools.
type Handler interface {
	Supports(id ID) bool
}

// Option configures a registry.
type Option func(*Registry)

// WithHandler adds a table that must cover every tool of the registry.
func WithHandler(name string, h Handler) Option {
	return func(r *Registry) {
		if h != nil {
			r.handlers = append(r.handlers, namedHandler{name: name, Handler: h})
		}
	}
}

// WithDefinition overrides the catalogue schema of one tool. Used by tests
// and by deployments that want to reword a description.
func WithDefinition(id ID, def llm.ToolDefinition) Option {
	return func(r *Registry) {
		if r.overrides == nil {
			r.overrides = make(map[ID]llm.ToolDefinition)
		}
		r.overrides[id] = def
	}
}

type namedHandler struct {
	name string
	Handler
}

// Registry is the validated tool subset offered by one agent.
type Registry struct {
	ids       []ID
	defs      []llm.ToolDefinition
	byName    map[string]ID
	handlers  []namedHandler
	overrides map[ID]llm.ToolDefinition
}

// NewRegistry validates ids and builds the definitions list in the given order.
func NewRegistry(ids []ID, opts ...Option) (*Registry, error) {
	r := &Registry{byName: make(map[string]ID, len(ids))}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	var problems []string
	for _, id := range ids {
		def, ok := r.overrides[id]
		if !ok {
			def, ok = Definition(id)
		}
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: not in catalogue", id))
			continue
		}
		if _, dup := r.byName[def.Name]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate tool name", def.Name))
			continue
		}
		if missing := missingRequired(def.Parameters); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("%s: required fields %v absent from properties", def.Name, missing))
		}
		for _, h := range r.handlers {
			if !h.Supports(id) {
				problems = append(problems, fmt.Sprintf("%s: no %s entry", id, h.name))
			}
		}
		r.byName[def.Name] = id
		r.ids = append(r.ids, id)
		r.defs = append(r.defs, def)
	}

	if len(problems) > 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure,
			"invalid tool registry: "+strings.Join(problems, "; "))
	}
	return r, nil
}

// Definitions returns the schemas in registry order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// IDs returns the tool identifiers in registry order.
func (r *Registry) IDs() []ID {
	out := make([]ID, len(r.ids))
	copy(out, r.ids)
	return out
}

// Lookup resolves the tool name chosen by the LLM.
func (r *Registry) Lookup(name string) (ID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Len returns the number of tools.
func (r *Registry) Len() int { return len(r.ids) }

func missingRequired(schema map[string]any) []string {
	properties, _ := schema["properties"].(map[string]any)
	var required []string
	switch v := schema["required"].(type) {
	case []string:
		required = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				required = append(required, s)
			}
		}
	}
	var missing []string
	for _, field := range required {
		if _, ok := properties[field]; !ok {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}
