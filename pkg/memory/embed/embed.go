package embed

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
)

// Embedder is a pluggable text-embedding provider. Implementations may be
// called concurrently by the cache, up to its batch width.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// QueryEmbedder is implemented by providers that embed search queries
// differently from the documents they are matched against.
type QueryEmbedder interface {
	Embedder
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported is returned by providers that do not offer embeddings or
// that returned an empty vector.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// Config selects and configures a provider.
type Config struct {
	Provider   string `mapstructure:"provider" yaml:"provider"`
	Model      string `mapstructure:"model" yaml:"model"`
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	CacheDir   string `mapstructure:"cache_dir" yaml:"cache_dir,omitempty"`
	CacheSize  int    `mapstructure:"cache_size" yaml:"cache_size"`
	BatchWidth int    `mapstructure:"batch_width" yaml:"batch_width"`
}

// New builds the provider named by cfg.Provider. An empty provider defers
// to AutoEmbedder.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return AutoEmbedder(ctx), nil
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "google", "gemini", "vertex", "vertexai":
		return NewGeminiEmbedder(ctx, cfg)
	case "voyage", "claude", "anthropic":
		return NewVoyageEmbedder(cfg)
	case "fastembed", "local":
		return NewFastEmbedder(cfg)
	case "dummy", "hash":
		return DummyEmbedder{}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// AutoEmbedder chooses a provider from the environment:
// RECALL_EMBED_PROVIDER=openai|gemini|ollama|voyage|fastembed
// RECALL_EMBED_MODEL=<model>
// Without an explicit provider it infers one from available API keys or
// OLLAMA_HOST, else falls back to DummyEmbedder.
func AutoEmbedder(ctx context.Context) Embedder {
	cfg := Config{
		Provider: strings.ToLower(strings.TrimSpace(os.Getenv("RECALL_EMBED_PROVIDER"))),
		Model:    strings.TrimSpace(os.Getenv("RECALL_EMBED_MODEL")),
	}
	if cfg.Provider == "" {
		switch {
		case os.Getenv("OPENAI_API_KEY") != "":
			cfg.Provider = "openai"
		case os.Getenv("GOOGLE_API_KEY") != "" || os.Getenv("GEMINI_API_KEY") != "":
			cfg.Provider = "gemini"
		case os.Getenv("VOYAGE_API_KEY") != "":
			cfg.Provider = "voyage"
		case os.Getenv("OLLAMA_HOST") != "":
			cfg.Provider = "ollama"
		}
	}
	if cfg.Provider != "" && cfg.Provider != "auto" {
		if e, err := New(ctx, cfg); err == nil {
			return e
		} else {
			log.Warn().Err(err).Str("provider", cfg.Provider).Msg("embedding provider unavailable")
		}
	}
	log.Debug().Msg("AutoEmbedder: falling back to DummyEmbedder")
	return DummyEmbedder{}
}

// DummyDimensions is the vector size produced by DummyEmbedder.
const DummyDimensions = 256

// DummyEmbedder is an offline, deterministic bag-of-words embedder. Texts
// sharing words get similar vectors, which is enough for tests and demos.
type DummyEmbedder struct{}

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := DummyEmbedding(text)
	if vec == nil {
		return nil, ErrNotSupported
	}
	return vec, nil
}

// DummyEmbedding hashes each lower-cased word into a fixed-size vector and
// normalises it. Text without words yields nil.
func DummyEmbedding(text string) []float32 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		return nil
	}
	vec := make([]float32, DummyDimensions)
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum>>1)%DummyDimensions] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func apiKey(cfg Config, envs ...string) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	for _, env := range envs {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}
