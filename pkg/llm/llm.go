// Package llm defines the contract with text-generation services: a prompt
// goes in, a JSON value conforming to a schema comes out.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

var (
	ErrEmptyResponse  = errors.New("llm returned no content")
	ErrSchemaMismatch = errors.New("llm response does not match schema")
)

// Request is a single structured generation call.
type Request struct {
	System     string
	Prompt     string
	SchemaName string
	Schema     *jsonschema.Definition
}

// Provider is implemented by text-generation backends. Generate returns the
// raw JSON text of the reply.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// SchemaFor derives the JSON schema describing T from its json and
// description struct tags.
func SchemaFor[T any]() (*jsonschema.Definition, error) {
	var v T
	schema, err := jsonschema.GenerateSchemaForType(v)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}
	return schema, nil
}

// GenerateObject asks p for a value of type T and validates the reply
// against T's schema before decoding it.
func GenerateObject[T any](ctx context.Context, p Provider, name, system, prompt string) (T, error) {
	var out T

	schema, err := SchemaFor[T]()
	if err != nil {
		return out, err
	}

	content, err := p.Generate(ctx, Request{
		System:     system,
		Prompt:     prompt,
		SchemaName: name,
		Schema:     schema,
	})
	if err != nil {
		return out, err
	}

	content = stripCodeFence(content)
	if content == "" {
		return out, ErrEmptyResponse
	}

	if err := jsonschema.VerifySchemaAndUnmarshal(*schema, []byte(content), &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}
	return out, nil
}

// SchemaPrompt renders the schema as instructions for providers that only
// support a generic JSON mode.
func SchemaPrompt(schema *jsonschema.Definition) string {
	if schema == nil {
		return ""
	}
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return ""
	}
	return "Return the JSON object directly without any formatting or additional text. " +
		"The JSON object should have the following structure as defined in the schema. " +
		"Make sure to answer in valid json and include all necessary properties:" + string(raw)
}

// stripCodeFence removes a surrounding ```json fence some models add even in
// JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
