package toolmanager

import "context"

// Tool is a capability the model can call. A tool may advertise several
// declarations; the dispatcher puts the called name in the context so the
// tool can tell them apart (see CallNameFromContext).
type Tool interface {
	// Declarations describes the callable capabilities. It must be pure and
	// return fresh values on every call.
	Declarations() []Declaration

	// Execute runs the tool. Any downstream failure is returned once, unretried.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Declaration is the schema advertised to the model for one callable name.
type Declaration struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Parameters  *Schema `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Func adapts a single declaration and a function into a Tool.
type Func struct {
	Declaration Declaration
	Handler     func(ctx context.Context, args map[string]any) (any, error)
}

// Declarations returns the wrapped declaration.
func (f Func) Declarations() []Declaration {
	return []Declaration{f.Declaration.clone()}
}

// Execute calls the wrapped handler.
func (f Func) Execute(ctx context.Context, args map[string]any) (any, error) {
	if f.Handler == nil {
		return nil, ExecutionError("tool %s has no handler", f.Declaration.Name)
	}
	return f.Handler(ctx, args)
}

func (d Declaration) clone() Declaration {
	d.Parameters = d.Parameters.Clone()
	return d
}
