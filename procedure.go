package hostmcp

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/wagiedev/host-mcp-go/internal/registry"
)

// Re-export registry types for public API.
type (
	// Procedure is a registered tool or resource.
	Procedure = registry.Procedure

	// Handler runs a procedure on the host owner with validated parameters.
	// It must not retain ctx beyond its return.
	Handler = registry.Handler

	// ParamCheck inspects validated parameters before a call reaches the
	// host owner.
	ParamCheck = registry.ParamCheck

	// Descriptor is the discovery view of a procedure.
	Descriptor = registry.Descriptor

	// ProcedureKind distinguishes tools from resources.
	ProcedureKind = registry.Kind

	// Safety classifies whether a procedure may mutate host state.
	Safety = registry.Safety

	// Schema is a JSON Schema describing a procedure's parameters.
	Schema = jsonschema.Schema
)

// Procedure kinds and safety levels.
const (
	KindTool     = registry.KindTool
	KindResource = registry.KindResource

	Safe   = registry.Safe
	Unsafe = registry.Unsafe
)

// ProcedureOption configures a Procedure during construction.
type ProcedureOption func(*Procedure)

// AsUnsafe marks the procedure as mutating host state. It then only runs when
// the server was created with WithUnsafe(true).
func AsUnsafe() ProcedureOption {
	return func(p *Procedure) {
		p.Safety = registry.Unsafe
	}
}

// WithURI sets the URI a resource is published under. Defaults to
// host://<name>.
func WithURI(uri string) ProcedureOption {
	return func(p *Procedure) {
		p.URI = uri
	}
}

// WithMIMEType sets the MIME type of a resource's contents. Defaults to
// application/json.
func WithMIMEType(mimeType string) ProcedureOption {
	return func(p *Procedure) {
		p.MIMEType = mimeType
	}
}

// WithCheck sets a check that parameters must pass, after schema
// validation, before the call is queued for the host.
func WithCheck(check ParamCheck) ProcedureOption {
	return func(p *Procedure) {
		p.Check = check
	}
}

// NewTool creates a tool procedure. A nil schema accepts any object.
//
// Example:
//
//	add := hostmcp.NewTool("add", "Add two integers",
//	    hostmcp.SimpleSchema(map[string]string{"a": "int", "b": "int"}),
//	    func(ctx context.Context, params map[string]any) (any, error) {
//	        return params["a"].(float64) + params["b"].(float64), nil
//	    },
//	)
func NewTool(
	name, description string,
	schema *Schema,
	handler Handler,
	opts ...ProcedureOption,
) *Procedure {
	p := &Procedure{
		Name:        name,
		Kind:        registry.KindTool,
		Description: description,
		Schema:      schema,
		Handler:     handler,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// NewTypedTool creates a tool whose parameter schema is inferred from In.
//
// Example:
//
//	type addInput struct {
//	    A int `json:"a"`
//	    B int `json:"b"`
//	}
//
//	add, err := hostmcp.NewTypedTool("add", "Add two integers",
//	    func(ctx context.Context, in addInput) (int, error) {
//	        return in.A + in.B, nil
//	    },
//	)
func NewTypedTool[In, Out any](
	name, description string,
	fn func(ctx context.Context, in In) (Out, error),
	opts ...ProcedureOption,
) (*Procedure, error) {
	schema, err := registry.SchemaFor[In]()
	if err != nil {
		return nil, fmt.Errorf("infer schema for %s: %w", name, err)
	}

	opts = append([]ProcedureOption{WithCheck(registry.Decodes[In]())}, opts...)

	return NewTool(name, description, schema, registry.Typed(fn), opts...), nil
}

// NewResource creates a resource procedure. Resources take no parameters.
func NewResource(
	name, description string,
	read func(ctx context.Context) (any, error),
	opts ...ProcedureOption,
) *Procedure {
	p := &Procedure{
		Name:        name,
		Kind:        registry.KindResource,
		Description: description,
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			return read(ctx)
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Typed adapts a function taking a decoded input struct to a Handler.
// Register it together with WithCheck(Decodes[In]()).
func Typed[In, Out any](fn func(ctx context.Context, in In) (Out, error)) Handler {
	return registry.Typed(fn)
}

// Decodes returns a ParamCheck that accepts parameters only if they decode
// into In.
func Decodes[In any]() ParamCheck {
	return registry.Decodes[In]()
}

// SchemaFor infers an object schema from the struct type T using its json
// tags.
func SchemaFor[T any]() (*Schema, error) {
	return registry.SchemaFor[T]()
}

// SimpleSchema creates an object schema from a simple type map. Every listed
// property is required.
//
// Input format: {"a": "int", "b": "string"}
//
// Type mappings:
//   - "string"           → {"type": "string"}
//   - "int", "int64"     → {"type": "integer"}
//   - "float64", "float" → {"type": "number"}
//   - "bool"             → {"type": "boolean"}
//   - "[]string"         → {"type": "array", "items": {"type": "string"}}
//   - "any", "object"    → {"type": "object"}
func SimpleSchema(props map[string]string) *Schema {
	return registry.SimpleSchema(props)
}
