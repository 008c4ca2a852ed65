package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLLM answers selection prompts with a model configured once for
// deterministic JSON output.
type GeminiLLM struct {
	Client       *genai.Client
	Model        string
	PromptPrefix string

	model *genai.GenerativeModel
}

func NewGeminiLLM(ctx context.Context, model, promptPrefix string) (*GeminiLLM, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	gm := client.GenerativeModel(model)
	configureSelection(gm)
	return &GeminiLLM{Client: client, Model: model, PromptPrefix: promptPrefix, model: gm}, nil
}

func configureSelection(m *genai.GenerativeModel) {
	m.SetTemperature(0)
	m.SetCandidateCount(1)
	m.SetMaxOutputTokens(SelectionMaxTokens)
	m.ResponseMIMEType = "application/json"
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(JSONOnlyInstruction)}}
}

func (g *GeminiLLM) Generate(ctx context.Context, prompt string) (any, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(withPrefix(g.PromptPrefix, prompt, " ")))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: empty response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

func (g *GeminiLLM) Close() error {
	return g.Client.Close()
}
