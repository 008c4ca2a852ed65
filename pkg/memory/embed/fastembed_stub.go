//go:build !fastembed

package embed

import "errors"

// NewFastEmbedder reports that local embeddings were not compiled in.
func NewFastEmbedder(Config) (Embedder, error) {
	return nil, errors.New("fastembed support not included; rebuild with -tags fastembed")
}
