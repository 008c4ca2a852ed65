package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	defaultVoyageEndpoint = "https://api.voyageai.com/v1/embeddings"

	voyageDocument = "document"
	voyageQuery    = "query"
)

// VoyageEmbedder calls a Voyage-compatible HTTP embeddings endpoint, the
// embedding service Anthropic recommends.
type VoyageEmbedder struct {
	client   *http.Client
	apiKey   string
	model    string
	endpoint string
}

func NewVoyageEmbedder(cfg Config) (Embedder, error) {
	key := apiKey(cfg, "VOYAGE_API_KEY")
	if key == "" {
		return nil, errors.New("VOYAGE_API_KEY not set")
	}
	model := cfg.Model
	if model == "" {
		model = "voyage-3.5"
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("VOYAGE_API_BASE")
	}
	if endpoint == "" {
		endpoint = defaultVoyageEndpoint
	}
	return &VoyageEmbedder{
		client:   &http.Client{Timeout: 60 * time.Second},
		apiKey:   key,
		model:    model,
		endpoint: endpoint,
	}, nil
}

type voyageRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed embeds a memory summary as a retrieval document.
func (v *VoyageEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return v.embed(ctx, text, voyageDocument)
}

// EmbedQuery embeds scene text as a retrieval query.
func (v *VoyageEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return v.embed(ctx, text, voyageQuery)
}

func (v *VoyageEmbedder) embed(ctx context.Context, text, inputType string) ([]float32, error) {
	body, err := json.Marshal(voyageRequest{Input: []string{text}, Model: v.model, InputType: inputType})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("voyage embeddings HTTP %d: %s", resp.StatusCode, string(slurp))
	}

	var out voyageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode voyage response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, ErrNotSupported
	}
	vec := make([]float32, len(out.Data[0].Embedding))
	for i, x := range out.Data[0].Embedding {
		vec[i] = float32(x)
	}
	return vec, nil
}
