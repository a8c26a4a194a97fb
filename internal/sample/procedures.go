package sample

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/wagiedev/host-mcp-go/internal/bridge"
	"github.com/wagiedev/host-mcp-go/internal/protocol"
	"github.com/wagiedev/host-mcp-go/internal/registry"
)

type addInput struct {
	A int `json:"a"`
	B int `json:"b"`
}

type echoInput struct {
	Text string `json:"text"`
}

type keyInput struct {
	Key string `json:"key"`
}

type setInput struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type scanInput struct {
	Steps   int `json:"steps"`
	DelayMS int `json:"delay_ms"`
}

// SetResult is returned by set_value.
type SetResult struct {
	Key      string `json:"key"`
	Previous any    `json:"previous,omitempty"`
	Replaced bool   `json:"replaced"`
}

// ScanResult is returned by scan.
type ScanResult struct {
	Steps int      `json:"steps"`
	Keys  []string `json:"keys"`
}

func scanSchema() *jsonschema.Schema {
	minSteps, maxSteps := 1.0, 10000.0
	minDelay, maxDelay := 0.0, 60000.0

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"steps": {
				Type:        "integer",
				Description: "Number of scan steps.",
				Minimum:     &minSteps,
				Maximum:     &maxSteps,
				Default:     json.RawMessage("10"),
			},
			"delay_ms": {
				Type:        "integer",
				Description: "Time spent on the host per step.",
				Minimum:     &minDelay,
				Maximum:     &maxDelay,
				Default:     json.RawMessage("10"),
			},
		},
	}
}

// Register adds the sample procedures for h to reg.
func Register(reg *registry.Registry, h *Host) error {
	procedures, err := Procedures(h)
	if err != nil {
		return err
	}

	for _, p := range procedures {
		if err := reg.Register(p); err != nil {
			return err
		}
	}

	return nil
}

// Procedures returns the sample procedures for h in publication order.
func Procedures(h *Host) ([]*registry.Procedure, error) {
	keySchema, err := registry.SchemaFor[keyInput]()
	if err != nil {
		return nil, fmt.Errorf("key schema: %w", err)
	}

	setSchema, err := registry.SchemaFor[setInput]()
	if err != nil {
		return nil, fmt.Errorf("set schema: %w", err)
	}

	echoSchema, err := registry.SchemaFor[echoInput]()
	if err != nil {
		return nil, fmt.Errorf("echo schema: %w", err)
	}

	return []*registry.Procedure{
		{
			Name:        "add",
			Description: "Add two integers.",
			Schema:      registry.SimpleSchema(map[string]string{"a": "int", "b": "int"}),
			Check:       registry.Decodes[addInput](),
			Handler: registry.Typed(func(_ context.Context, in addInput) (int, error) {
				return in.A + in.B, nil
			}),
		},
		{
			Name:        "echo",
			Description: "Return the given text.",
			Schema:      echoSchema,
			Check:       registry.Decodes[echoInput](),
			Handler: registry.Typed(func(_ context.Context, in echoInput) (echoInput, error) {
				return in, nil
			}),
		},
		{
			Name:        "get_value",
			Description: "Read a value from the host table.",
			Schema:      keySchema,
			Check:       registry.Decodes[keyInput](),
			Handler: registry.Typed(func(_ context.Context, in keyInput) (any, error) {
				return h.Get(in.Key)
			}),
		},
		{
			Name:        "set_value",
			Description: "Store a value in the host table.",
			Safety:      registry.Unsafe,
			Schema:      setSchema,
			Check:       registry.Decodes[setInput](),
			Handler: registry.Typed(func(_ context.Context, in setInput) (*SetResult, error) {
				previous, replaced := h.Set(in.Key, in.Value)

				return &SetResult{Key: in.Key, Previous: previous, Replaced: replaced}, nil
			}),
		},
		{
			Name:        "delete_value",
			Description: "Remove a value from the host table.",
			Safety:      registry.Unsafe,
			Schema:      keySchema,
			Check:       registry.Decodes[keyInput](),
			Handler: registry.Typed(func(_ context.Context, in keyInput) (map[string]bool, error) {
				return map[string]bool{"deleted": h.Delete(in.Key)}, nil
			}),
		},
		{
			Name:        "scan",
			Description: "Walk the host in steps, reporting progress. Stops at the next step when cancelled.",
			Schema:      scanSchema(),
			Check:       registry.Decodes[scanInput](),
			Handler: registry.Typed(func(ctx context.Context, in scanInput) (*ScanResult, error) {
				return scan(ctx, h, in)
			}),
		},
		{
			Name:        "host_info",
			Kind:        registry.KindResource,
			Description: "Host metadata.",
			Handler: func(context.Context, map[string]any) (any, error) {
				return h.Info(), nil
			},
		},
		{
			Name:        "values",
			Kind:        registry.KindResource,
			Description: "Every value in the host table.",
			Handler: func(context.Context, map[string]any) (any, error) {
				return h.Values(), nil
			},
		},
	}, nil
}

func scan(ctx context.Context, h *Host, in scanInput) (*ScanResult, error) {
	delay := time.Duration(in.DelayMS) * time.Millisecond

	for i := range in.Steps {
		if err := bridge.Checkpoint(ctx); err != nil {
			return nil, err
		}

		h.Step(delay)

		_ = protocol.Progress(ctx, float64(i+1), float64(in.Steps), fmt.Sprintf("step %d/%d", i+1, in.Steps))
	}

	return &ScanResult{Steps: in.Steps, Keys: h.Keys()}, nil
}
