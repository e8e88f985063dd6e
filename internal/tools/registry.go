package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/akashmahlaz/rockreach-sub000/pkg/llm"
	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

// Invocation is the caller context every tool executes under. Tenant and user
// ids come from the authenticated request, never from tool arguments.
type Invocation struct {
	TenantID string
	UserID   string
}

// Tool is one named capability the agent may invoke. Parameters is the JSON
// schema advertised to the model; run receives raw arguments and returns a
// result envelope.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	run         func(ctx context.Context, inv Invocation, raw json.RawMessage) map[string]interface{}
}

// Registry is the fixed tool catalog for one service instance. Tool results
// are inert data for the model: expected failures come back as
// {success:false, error} envelopes, never as errors.
type Registry struct {
	tools    map[string]Tool
	order    []string
	validate *validator.Validate
	logger   logging.Logger
}

func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		validate: validator.New(),
		logger:   logger,
	}
}

func (r *Registry) register(t Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Catalog returns the tool definitions in registration order, shaped for the
// model.
func (r *Registry) Catalog() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, llm.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}

// Execute runs one tool call and always returns an envelope.
func (r *Registry) Execute(ctx context.Context, inv Invocation, name string, args json.RawMessage) map[string]interface{} {
	t, ok := r.tools[name]
	if !ok {
		return failure(fmt.Sprintf("unknown tool %q", name))
	}
	return t.run(ctx, inv, args)
}

// decodeInput unmarshals raw arguments into a typed input struct and runs
// struct validation. A nil return means the envelope in out should be
// returned to the model as-is.
func (r *Registry) decodeInput(raw json.RawMessage, input interface{}) map[string]interface{} {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, input); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err))
	}
	if err := r.validate.Struct(input); err != nil {
		return failure(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func failure(message string) map[string]interface{} {
	return map[string]interface{}{"success": false, "error": message}
}

func success(fields map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"success": true}
	for key, value := range fields {
		out[key] = value
	}
	return out
}

func toolParams(properties map[string]interface{}, required []string) map[string]interface{} {
	params := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return params
}
