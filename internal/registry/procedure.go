package registry

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/wagiedev/host-mcp-go/internal/errors"
)

// Kind distinguishes callable tools from queryable resources.
type Kind string

const (
	// KindTool is an action a client invokes with parameters.
	KindTool Kind = "tool"
	// KindResource is read-only data a client queries.
	KindResource Kind = "resource"
)

// Safety classifies whether a procedure may mutate host state.
type Safety string

const (
	// Safe procedures are always callable.
	Safe Safety = "safe"
	// Unsafe procedures are callable only when unsafe execution is enabled.
	Unsafe Safety = "unsafe"
)

// Handler executes a procedure. Params have already been validated against
// the procedure's schema. The returned value must be JSON serializable.
//
// Handlers run on the bridge owner and may call non-thread-safe host APIs
// directly. Long-running handlers should poll ctx at safe checkpoints.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// ParamCheck inspects validated params before the call is submitted to the
// owner. A non-nil error rejects the call with InvalidParametersError.
type ParamCheck func(params map[string]any) error

// Procedure is a registered unit of callable functionality.
type Procedure struct {
	Name        string
	Kind        Kind
	Safety      Safety
	Description string

	// Schema is the parameter shape. A nil schema accepts any object.
	Schema *jsonschema.Schema

	// URI addresses a resource for protocol adapters that key resources by URI.
	// Defaults to "host://<name>" for resources.
	URI string

	// MIMEType of resource contents. Defaults to application/json for resources.
	MIMEType string

	Handler Handler

	// Check runs after schema validation, off the owner. Optional.
	Check ParamCheck

	resolved *jsonschema.Resolved
}

// Descriptor is the discovery view of a Procedure.
type Descriptor struct {
	Name           string             `json:"name"`
	Kind           Kind               `json:"kind"`
	Safety         Safety             `json:"safety"`
	ParameterShape *jsonschema.Schema `json:"parameter_shape"`
	Description    string             `json:"description,omitempty"`
	URI            string             `json:"uri,omitempty"`
}

// Describe returns the discovery descriptor for p.
func (p *Procedure) Describe() Descriptor {
	return Descriptor{
		Name:           p.Name,
		Kind:           p.Kind,
		Safety:         p.Safety,
		ParameterShape: p.Schema,
		Description:    p.Description,
		URI:            p.URI,
	}
}

// IsUnsafe reports whether p requires unsafe execution to be enabled.
func (p *Procedure) IsUnsafe() bool {
	return p.Safety == Unsafe
}

// Validate checks params against the procedure's schema and Check, and
// returns them with schema defaults applied. Nil params are treated as an empty object.
func (p *Procedure) Validate(params map[string]any) (map[string]any, error) {
	if params == nil {
		params = make(map[string]any)
	}

	if p.resolved != nil {
		if err := p.resolved.Validate(params); err != nil {
			return nil, &errors.InvalidParametersError{Procedure: p.Name, Err: err}
		}

		if err := p.resolved.ApplyDefaults(&params); err != nil {
			return nil, &errors.InvalidParametersError{Procedure: p.Name, Err: err}
		}
	}

	if p.Check != nil {
		if err := p.Check(params); err != nil {
			return nil, &errors.InvalidParametersError{Procedure: p.Name, Err: err}
		}
	}

	return params, nil
}

// prepare fills defaults and resolves the schema. It is called once by Register.
func (p *Procedure) prepare() error {
	if p.Name == "" {
		return fmt.Errorf("procedure name is required")
	}

	if p.Handler == nil {
		return fmt.Errorf("procedure %q has no handler", p.Name)
	}

	if p.Kind == "" {
		p.Kind = KindTool
	}

	if p.Kind != KindTool && p.Kind != KindResource {
		return fmt.Errorf("procedure %q has unknown kind %q", p.Name, p.Kind)
	}

	if p.Safety == "" {
		p.Safety = Safe
	}

	if p.Safety != Safe && p.Safety != Unsafe {
		return fmt.Errorf("procedure %q has unknown safety %q", p.Name, p.Safety)
	}

	if p.Schema == nil {
		p.Schema = &jsonschema.Schema{Type: "object"}
	}

	if p.Schema.Type != "object" {
		return fmt.Errorf("procedure %q: parameter shape must be an object schema, got %q", p.Name, p.Schema.Type)
	}

	if p.Kind == KindResource {
		if p.URI == "" {
			p.URI = "host://" + p.Name
		}

		if p.MIMEType == "" {
			p.MIMEType = "application/json"
		}
	}

	resolved, err := p.Schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return fmt.Errorf("procedure %q: resolve parameter shape: %w", p.Name, err)
	}

	p.resolved = resolved

	return nil
}
