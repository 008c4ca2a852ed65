//go:build fastembed

package embed

import (
	"context"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedder runs a local ONNX embedding model through fastembed.
type FastEmbedder struct {
	m *fastembed.FlagEmbedding
}

func NewFastEmbedder(cfg Config) (Embedder, error) {
	init := &fastembed.InitOptions{
		Model:    fastembed.BGESmallENV15,
		CacheDir: ".fastembed",
	}
	if cfg.Model != "" {
		init.Model = fastembed.EmbeddingModel(cfg.Model)
	}
	if cfg.CacheDir != "" {
		init.CacheDir = cfg.CacheDir
	}
	m, err := fastembed.NewFlagEmbedding(init)
	if err != nil {
		return nil, err
	}
	return &FastEmbedder{m: m}, nil
}

// Embed embeds a memory summary as a passage.
func (e *FastEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	out, err := e.m.PassageEmbed([]string{"passage: " + text}, 1)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return nil, ErrNotSupported
	}
	return out[0], nil
}

func (e *FastEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vec, err := e.m.QueryEmbed(text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrNotSupported
	}
	return vec, nil
}

func (e *FastEmbedder) Close() error {
	if e.m != nil {
		e.m.Destroy()
	}
	return nil
}
