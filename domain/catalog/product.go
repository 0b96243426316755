package catalog

import (
	"errors"

	"github.com/toolcat/visimatch/domain/embedding"
)

// ErrNotFound indicates no product exists for the requested item ID.
var ErrNotFound = errors.New("catalog: product not found")

// Product is a single catalog row: a hardware/tools item with an optional
// department, display metadata, and an optional vector. Vector is nil for
// rows that have not yet been embedded (e.g. freshly imported, or pending
// a re-embedding sweep after a model promotion).
type Product struct {
	ItemID      string
	Department  string // empty means unassigned, distinct from AllDepartments
	ProductName string
	URL         string
	Picture     string
	Vector      *embedding.Embedding
	ModelVersion string
}

// HasVector reports whether the product carries a usable query vector.
func (p Product) HasVector() bool {
	return p.Vector != nil
}

// StaleAgainst reports whether the product's vector was produced by a
// model version other than current, and so needs re-embedding.
func (p Product) StaleAgainst(currentModelVersion string) bool {
	return !p.HasVector() || p.ModelVersion != currentModelVersion
}
