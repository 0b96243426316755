package catalog

import (
	"context"
	"iter"

	"github.com/toolcat/visimatch/domain/embedding"
)

// Embedder is the subset of the embedding provider the catalog needs to
// re-embed its rows: given a product's picture URL, produce a vector and
// the version string of the model that produced it. Defined here (rather
// than imported from the provider package) to avoid a dependency cycle;
// the concrete provider satisfies it structurally.
type Embedder interface {
	EmbedImageURL(ctx context.Context, url string) (embedding.Embedding, error)
	Version() string
}

// Store is the authoritative catalog row store. Implementations must not
// cache vectors in memory; every read goes back to the backing store, per
// the single-source-of-truth requirement.
type Store interface {
	// Get returns the product for item_id, or ErrNotFound.
	Get(ctx context.Context, itemID string) (Product, error)

	// Iter lazily walks products ordered by item_id ascending. department
	// filters to a single department unless it is AllDepartments or empty.
	Iter(ctx context.Context, department string) iter.Seq2[Product, error]

	// Upsert inserts or replaces a product row by item_id.
	Upsert(ctx context.Context, p Product) error

	// Departments returns every distinct department currently present,
	// each with its product count.
	Departments(ctx context.Context) ([]Department, error)

	// ReEmbedAll re-embeds every product whose vector is stale against the
	// embedder's current model version, writing the new vector and
	// version back to each row. Returns the count of rows updated.
	ReEmbedAll(ctx context.Context, embedder Embedder) (int, error)
}
