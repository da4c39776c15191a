package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type echoTool struct {
	name string
}

func (t *echoTool) Name() string             { return t.name }
func (t *echoTool) Description() string      { return "echoes its input" }
func (t *echoTool) Schema() json.RawMessage  { return json.RawMessage(`{"type":"object"}`) }
func (t *echoTool) Execute(_ context.Context, params json.RawMessage) (*Result, error) {
	return &Result{Content: string(params)}, nil
}

func TestRegistryRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "echo"})

	res, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError || res.Content != `{"a":1}` {
		t.Errorf("result = %+v", res)
	}
}

func TestRegistryUnknownToolIsErrorResult(t *testing.T) {
	r := NewRegistry()
	res, err := r.Execute(context.Background(), "missing", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "tool not found") {
		t.Errorf("result = %+v", res)
	}
}

func TestRegistryOversizedParams(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "echo"})
	big := json.RawMessage(strings.Repeat("x", MaxParamsSize+1))
	res, err := r.Execute(context.Background(), "echo", big)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Errorf("oversized params must produce an error result")
	}
}

func TestRegistryListKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "c"})
	r.Register(&echoTool{name: "a"})
	r.Register(&echoTool{name: "b"})
	r.Unregister("a")

	got := r.List()
	if len(got) != 2 || got[0].Name() != "c" || got[1].Name() != "b" {
		names := make([]string, len(got))
		for i, tool := range got {
			names[i] = tool.Name()
		}
		t.Errorf("order = %v", names)
	}
}

func TestSchemaForReadTopic(t *testing.T) {
	raw := SchemaFor(&readTopicParams{})
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("schema type = %v", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no properties: %s", raw)
	}
	topic, ok := props["topic"].(map[string]any)
	if !ok {
		t.Fatalf("schema has no topic property: %s", raw)
	}
	enum, ok := topic["enum"].([]any)
	if !ok || len(enum) != 4 {
		t.Errorf("topic enum = %v", topic["enum"])
	}
}
