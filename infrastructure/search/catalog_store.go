// Package search holds the GORM-backed implementations of the catalog row
// store and the retrieval candidate source.
package search

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"iter"

	"github.com/toolcat/visimatch/domain/catalog"
	"github.com/toolcat/visimatch/domain/embedding"
	"github.com/toolcat/visimatch/domain/repository"
	"github.com/toolcat/visimatch/domain/retrieval"
	"github.com/toolcat/visimatch/internal/database"
	"gorm.io/gorm/clause"
)

// productsTable is the fixed table name for catalog rows. Unlike the
// teacher's per-task embedding tables, there is exactly one catalog, so no
// dynamic table routing is needed.
const productsTable = "products"

// vectorColumn is a little-endian float32 blob — see embedding.Bytes — so
// the same column layout works unchanged across SQLite (BLOB) and Postgres
// (BYTEA); no dialect-specific vector type or extension is required because
// the retrieval engine always scores the full in-memory candidate set
// itself rather than pushing similarity search down into SQL.
type vectorColumn []byte

// Scan implements sql.Scanner.
func (v *vectorColumn) Scan(value any) error {
	if value == nil {
		*v = nil
		return nil
	}
	switch b := value.(type) {
	case []byte:
		cp := make([]byte, len(b))
		copy(cp, b)
		*v = cp
		return nil
	default:
		return fmt.Errorf("cannot scan %T into vectorColumn", value)
	}
}

// Value implements driver.Valuer.
func (v vectorColumn) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return []byte(v), nil
}

var _ driver.Valuer = vectorColumn{}

// productEntity is the GORM model backing the products table.
type productEntity struct {
	ItemID       string       `gorm:"column:item_id;primaryKey"`
	Department   string       `gorm:"column:department;index"`
	ProductName  string       `gorm:"column:product_name"`
	URL          string       `gorm:"column:url"`
	Picture      string       `gorm:"column:picture"`
	Vector       vectorColumn `gorm:"column:vector"`
	ModelVersion string       `gorm:"column:model_version"`
}

func (productEntity) TableName() string { return productsTable }

// Models returns the GORM models owned by this package, for callers that
// centralize schema migration (see infrastructure/persistence.AutoMigrate).
func Models() []any {
	return []any{&productEntity{}}
}

// productMapper converts between catalog.Product and its GORM row.
type productMapper struct{}

func (productMapper) ToDomain(e productEntity) catalog.Product {
	p := catalog.Product{
		ItemID:       e.ItemID,
		Department:   e.Department,
		ProductName:  e.ProductName,
		URL:          e.URL,
		Picture:      e.Picture,
		ModelVersion: e.ModelVersion,
	}
	if len(e.Vector) > 0 {
		if vec, err := embedding.FromBytes(e.Vector); err == nil {
			p.Vector = &vec
		}
	}
	return p
}

func (productMapper) ToModel(p catalog.Product) productEntity {
	e := productEntity{
		ItemID:       p.ItemID,
		Department:   p.Department,
		ProductName:  p.ProductName,
		URL:          p.URL,
		Picture:      p.Picture,
		ModelVersion: p.ModelVersion,
	}
	if p.Vector != nil {
		e.Vector = p.Vector.Bytes()
	}
	return e
}

// CatalogStore implements both catalog.Store and retrieval.Source against a
// single products table, shared by SQLite and Postgres deployments alike.
type CatalogStore struct {
	repo database.Repository[catalog.Product, productEntity]
	db   database.Database
}

// NewCatalogStore creates a CatalogStore. Schema creation is handled
// centrally by the persistence package's AutoMigrate, not here.
func NewCatalogStore(db database.Database) *CatalogStore {
	return &CatalogStore{
		repo: database.NewRepository[catalog.Product, productEntity](db, productMapper{}, "product"),
		db:   db,
	}
}

var _ catalog.Store = (*CatalogStore)(nil)
var _ retrieval.Source = (*CatalogStore)(nil)

// Get implements catalog.Store.
func (s *CatalogStore) Get(ctx context.Context, itemID string) (catalog.Product, error) {
	p, err := s.repo.FindOne(ctx, repository.WithCondition("item_id", itemID))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return catalog.Product{}, catalog.ErrNotFound
		}
		return catalog.Product{}, err
	}
	return p, nil
}

// Iter implements catalog.Store. It streams rows ordered by item_id
// ascending in fixed-size pages rather than materializing the whole table.
func (s *CatalogStore) Iter(ctx context.Context, department string) iter.Seq2[catalog.Product, error] {
	const pageSize = 500
	return func(yield func(catalog.Product, error) bool) {
		offset := 0
		for {
			opts := []repository.Option{
				repository.WithOrderAsc("item_id"),
				repository.WithLimit(pageSize),
				repository.WithOffset(offset),
			}
			if !catalog.IsAll(department) {
				opts = append(opts, repository.WithCondition("department", department))
			}

			page, err := s.repo.Find(ctx, opts...)
			if err != nil {
				yield(catalog.Product{}, err)
				return
			}
			for _, p := range page {
				if !yield(p, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			offset += pageSize
		}
	}
}

// Upsert implements catalog.Store.
func (s *CatalogStore) Upsert(ctx context.Context, p catalog.Product) error {
	entity := productMapper{}.ToModel(p)
	db := s.repo.DB(ctx)
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"department", "product_name", "url", "picture", "vector", "model_version",
		}),
	}).Create(&entity).Error
}

// Departments implements catalog.Store.
func (s *CatalogStore) Departments(ctx context.Context) ([]catalog.Department, error) {
	var rows []struct {
		Department string
		Count      int
	}
	err := s.repo.DB(ctx).
		Select("department, count(*) as count").
		Group("department").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}

	out := make([]catalog.Department, 0, len(rows))
	for _, r := range rows {
		if r.Department == "" {
			continue
		}
		out = append(out, catalog.Department{Name: r.Department, Count: r.Count})
	}
	return out, nil
}

// ReEmbedAll implements catalog.Store. It walks every row, re-embeds those
// whose model_version differs from the embedder's current version, and
// writes the new vector and version back in place.
func (s *CatalogStore) ReEmbedAll(ctx context.Context, embedder catalog.Embedder) (int, error) {
	current := embedder.Version()
	updated := 0

	for p, err := range s.Iter(ctx, catalog.AllDepartments) {
		if err != nil {
			return updated, err
		}
		if !p.StaleAgainst(current) {
			continue
		}
		if p.Picture == "" {
			continue
		}

		vec, err := embedder.EmbedImageURL(ctx, p.Picture)
		if err != nil {
			return updated, fmt.Errorf("re-embed %s: %w", p.ItemID, err)
		}
		p.Vector = &vec
		p.ModelVersion = current
		if err := s.Upsert(ctx, p); err != nil {
			return updated, fmt.Errorf("write re-embedded %s: %w", p.ItemID, err)
		}
		updated++
	}
	return updated, nil
}

// Candidates implements retrieval.Source. Rows without a usable vector are
// skipped rather than erroring, since a stale or not-yet-embedded product is
// simply absent from search results until the next re-embedding sweep.
func (s *CatalogStore) Candidates(ctx context.Context, department string) ([]retrieval.ScoredInput, error) {
	var entities []productEntity
	db := s.repo.DB(ctx)
	if !catalog.IsAll(department) {
		db = db.Where("department = ?", department)
	}
	if err := db.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	out := make([]retrieval.ScoredInput, 0, len(entities))
	for _, e := range entities {
		if len(e.Vector) == 0 {
			continue
		}
		vec, err := embedding.FromBytes(e.Vector)
		if err != nil {
			continue
		}
		out = append(out, retrieval.ScoredInput{
			ItemID:      e.ItemID,
			Picture:     e.Picture,
			URL:         e.URL,
			ProductName: e.ProductName,
			Department:  e.Department,
			Vector:      vec,
		})
	}
	return out, nil
}
