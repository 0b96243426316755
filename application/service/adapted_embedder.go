package service

import (
	"context"
	"fmt"

	"github.com/toolcat/visimatch/domain/catalog"
	"github.com/toolcat/visimatch/domain/embedding"
	"github.com/toolcat/visimatch/domain/training"
)

// AdaptedEmbedder composes a frozen base Embedder with a fine-tuned
// similarity Head: it calls through to the base encoder and reweights the
// result per-dimension before unit-normalizing. This is the embedder the
// Trainer installs after promoting a fine_tuned artifact — the backbone
// itself is never retrained in this stack, only this adapter.
type AdaptedEmbedder struct {
	base    catalog.Embedder
	head    training.Head
	version string
}

// NewAdaptedEmbedder wraps base with head, reporting version (normally the
// promoted artifact's version) from Version().
func NewAdaptedEmbedder(base catalog.Embedder, head training.Head, version string) *AdaptedEmbedder {
	return &AdaptedEmbedder{base: base, head: head, version: version}
}

// EmbedImageURL embeds source through the base encoder, then applies the
// head's learned per-dimension scaling before renormalizing.
func (a *AdaptedEmbedder) EmbedImageURL(ctx context.Context, source string) (embedding.Embedding, error) {
	raw, err := a.base.EmbedImageURL(ctx, source)
	if err != nil {
		return embedding.Embedding{}, err
	}

	values := raw.Values()
	if len(values) != len(a.head.Scale) {
		return embedding.Embedding{}, fmt.Errorf("adapted embedder: head dim %d does not match encoder dim %d", len(a.head.Scale), len(values))
	}
	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = v * a.head.Scale[i]
	}
	return embedding.Normalize(scaled)
}

// Version reports the adapted artifact's version, distinct from the base
// encoder's own version so Product.StaleAgainst correctly flags rows
// embedded before this adapter was promoted.
func (a *AdaptedEmbedder) Version() string { return a.version }

var _ catalog.Embedder = (*AdaptedEmbedder)(nil)
