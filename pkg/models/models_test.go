package models

import (
	"context"
	"testing"

	genai "github.com/google/generative-ai-go/genai"
)

func TestNewDummyLLMDefaultPrefix(t *testing.T) {
	llm := NewDummyLLM("")
	resp, err := llm.Generate(context.Background(), "line1\nline2")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got := resp.(string); got != "Dummy response: line2" {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestNewDummyLLMUsesLastNonEmptyLine(t *testing.T) {
	llm := NewDummyLLM("Prefix:")
	resp, err := llm.Generate(context.Background(), "first\n\nsecond\n  \nthird")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got := resp.(string); got != "Prefix: third" {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestNewLLMProviderErrorsOnUnknownProvider(t *testing.T) {
	if _, err := NewLLMProvider(context.Background(), "unknown", "model", ""); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestDummyLLMHandlesEmptyPrompt(t *testing.T) {
	llm := NewDummyLLM("Prefix")
	resp, err := llm.Generate(context.Background(), "\n\n\n")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got := resp.(string); got != "Prefix <empty prompt>" {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestNewLLMProviderBuildsDummy(t *testing.T) {
	agent, err := NewLLMProvider(context.Background(), " Dummy ", "", "Echo:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, _ := agent.Generate(context.Background(), "hello")
	if got := Text(resp); got != "Echo: hello" {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestTextCoercesProviderResponses(t *testing.T) {
	cases := map[string]any{
		"plain": "plain",
		"bytes": []byte("bytes"),
		"parts": []any{"pa", "rts"},
		"":      nil,
		"42":    42,
	}
	for want, in := range cases {
		if got := Text(in); got != want {
			t.Fatalf("Text(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestScriptedLLMReplaysResponses(t *testing.T) {
	llm := &ScriptedLLM{Responses: []string{"one", "two"}}
	for _, want := range []string{"one", "two", "two"} {
		resp, err := llm.Generate(context.Background(), "p")
		if err != nil || Text(resp) != want {
			t.Fatalf("got %v err=%v, want %q", resp, err, want)
		}
	}
	if len(llm.Prompts) != 3 {
		t.Fatalf("expected prompts to be recorded")
	}
}

func TestAnthropicSelectionParams(t *testing.T) {
	llm := &AnthropicLLM{Model: "claude-test", PromptPrefix: "Scene:"}
	p := llm.params("pick memories")
	if p.MaxTokens != SelectionMaxTokens {
		t.Fatalf("expected default max tokens %d, got %d", SelectionMaxTokens, p.MaxTokens)
	}
	if !p.Temperature.Valid() || p.Temperature.Value != 0 {
		t.Fatalf("expected temperature 0, got %+v", p.Temperature)
	}
	if len(p.System) != 1 || p.System[0].Text != JSONOnlyInstruction {
		t.Fatalf("expected JSON-only system prompt, got %+v", p.System)
	}
	if len(p.Messages) != 1 {
		t.Fatalf("expected a single user message, got %d", len(p.Messages))
	}

	llm.MaxTokens = 64
	if got := llm.params("x").MaxTokens; got != 64 {
		t.Fatalf("expected explicit max tokens, got %d", got)
	}
}

func TestGeminiSelectionConfig(t *testing.T) {
	m := &genai.GenerativeModel{}
	configureSelection(m)
	if m.Temperature == nil || *m.Temperature != 0 {
		t.Fatalf("expected temperature 0")
	}
	if m.MaxOutputTokens == nil || *m.MaxOutputTokens != SelectionMaxTokens {
		t.Fatalf("expected max output tokens %d", SelectionMaxTokens)
	}
	if m.ResponseMIMEType != "application/json" {
		t.Fatalf("expected JSON responses, got %q", m.ResponseMIMEType)
	}
	if m.SystemInstruction == nil || len(m.SystemInstruction.Parts) != 1 {
		t.Fatalf("expected a system instruction")
	}
	if got := Text(m.SystemInstruction.Parts[0]); got != JSONOnlyInstruction {
		t.Fatalf("unexpected system instruction %q", got)
	}
}
