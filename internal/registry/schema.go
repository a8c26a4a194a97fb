package registry

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/wagiedev/host-mcp-go/internal/errors"
)

var errNilProcedure = stderrors.New("nil procedure")

// SimpleSchema creates an object schema from a simple type map.
//
// Input format: {"a": "int", "b": "string"}. Every listed property is required.
func SimpleSchema(props map[string]string) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, len(props))
	required := make([]string, 0, len(props))

	for name, goType := range props {
		properties[name] = goTypeToJSONSchema(goType)
		required = append(required, name)
	}

	// Map iteration order is random; keep discovery output stable.
	slices.Sort(required)

	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// goTypeToJSONSchema converts a Go type string to a JSON Schema type.
func goTypeToJSONSchema(goType string) *jsonschema.Schema {
	switch goType {
	case "string":
		return &jsonschema.Schema{Type: "string"}
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		return &jsonschema.Schema{Type: "integer"}
	case "float32", "float64", "float", "number":
		return &jsonschema.Schema{Type: "number"}
	case "bool", "boolean":
		return &jsonschema.Schema{Type: "boolean"}
	case "any", "object", "map[string]any":
		return &jsonschema.Schema{Type: "object"}
	default:
		if len(goType) > 2 && goType[:2] == "[]" {
			return &jsonschema.Schema{
				Type:  "array",
				Items: goTypeToJSONSchema(goType[2:]),
			}
		}

		return &jsonschema.Schema{Type: "string"}
	}
}

// SchemaFor infers an object schema from the struct type T using its json tags.
func SchemaFor[T any]() (*jsonschema.Schema, error) {
	return jsonschema.For[T](nil)
}

// Typed adapts a handler taking a decoded input struct to a Handler.
// Params are decoded through their JSON form, so T's json tags apply.
// Pair it with Decodes[In] so mismatches are rejected before submission.
func Typed[In, Out any](fn func(ctx context.Context, in In) (Out, error)) Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		in, err := decode[In](params)
		if err != nil {
			return nil, &errors.InvalidParametersError{Err: err}
		}

		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}

		return out, nil
	}
}

// Decodes returns a ParamCheck that accepts params only if they decode into In.
func Decodes[In any]() ParamCheck {
	return func(params map[string]any) error {
		_, err := decode[In](params)

		return err
	}
}

func decode[In any](params map[string]any) (In, error) {
	var in In

	data, err := json.Marshal(params)
	if err != nil {
		return in, err
	}

	err = json.Unmarshal(data, &in)

	return in, err
}
