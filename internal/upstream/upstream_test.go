package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRegistry() *Registry {
	return NewRegistry(
		Target{Name: "openai", BaseUrl: "https://api.openai.com/v1", Credential: "sk-default"},
		Target{Name: "qwen", BaseUrl: "https://api.groq.com/openai/v1", Credential: "sk-alt"},
	)
}

func TestSelect(t *testing.T) {
	registry := testRegistry()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"alternate model id", `{"model":"qwen-2.5-coder-32b"}`, "qwen"},
		{"default model", `{"model":"gpt-4"}`, "openai"},
		{"unknown model", `{"model":"llama-3"}`, "openai"},
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`, "openai"},
		{"non string model", `{"model":42}`, "openai"},
		{"null model", `{"model":null}`, "openai"},
		{"empty body", ``, "openai"},
		{"model nested only", `{"config":{"model":"qwen-2.5-coder-32b"}}`, "openai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, registry.Select([]byte(tt.body)).Name)
		})
	}
}

func TestSelectReturnsCredential(t *testing.T) {
	registry := testRegistry()

	assert.Equal(t, "sk-alt", registry.Select([]byte(`{"model":"qwen-2.5-coder-32b"}`)).Credential)
	assert.Equal(t, "sk-default", registry.Select([]byte(`{"model":"gpt-4"}`)).Credential)
}

func TestStreamRequested(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"boolean true", `{"stream":true}`, true},
		{"boolean false", `{"stream":false}`, false},
		{"string true", `{"stream":"true"}`, false},
		{"number", `{"stream":1}`, false},
		{"absent", `{"model":"gpt-4"}`, false},
		{"empty body", ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StreamRequested([]byte(tt.body)))
		})
	}
}
