package embed

import (
	"context"
	"errors"
	"fmt"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiEmbedder struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	query  *genai.EmbeddingModel
}

func NewGeminiEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	key := apiKey(cfg, "GOOGLE_API_KEY", "GEMINI_API_KEY")
	if key == "" {
		return nil, errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	cli, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}
	docs := cli.EmbeddingModel(model)
	docs.TaskType = genai.TaskTypeRetrievalDocument
	queries := cli.EmbeddingModel(model)
	queries.TaskType = genai.TaskTypeRetrievalQuery
	return &GeminiEmbedder{client: cli, model: docs, query: queries}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedWith(ctx, e.model, text)
}

func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return embedWith(ctx, e.query, text)
}

func embedWith(ctx context.Context, m *genai.EmbeddingModel, text string) ([]float32, error) {
	resp, err := m.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, ErrNotSupported
	}
	return resp.Embedding.Values, nil
}

func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
