package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/toolcat/visimatch/domain/catalog"
	"github.com/toolcat/visimatch/domain/task"
)

// importCatalogRowHandler implements OperationImportCatalogRow: a single
// catalog row arrives via the task payload (from a bulk import job or an
// operator's one-off add) and is embedded and upserted. A row with no
// picture is stored unembedded, to be picked up by a later re-embed sweep
// once an image becomes available.
type importCatalogRowHandler struct {
	store    catalog.Store
	embedder catalog.Embedder
	logger   *slog.Logger
}

func newImportCatalogRowHandler(store catalog.Store, embedder catalog.Embedder, logger *slog.Logger) Handler {
	return &importCatalogRowHandler{store: store, embedder: embedder, logger: logger}
}

func (h *importCatalogRowHandler) Execute(ctx context.Context, payload map[string]any) error {
	itemID, _ := payload["item_id"].(string)
	if itemID == "" {
		return fmt.Errorf("import catalog row: payload missing item_id")
	}

	p := catalog.Product{
		ItemID:      itemID,
		Department:  stringField(payload, "department"),
		ProductName: stringField(payload, "product_name"),
		URL:         stringField(payload, "url"),
		Picture:     stringField(payload, "picture"),
	}

	if p.Picture != "" {
		vec, err := h.embedder.EmbedImageURL(ctx, p.Picture)
		if err != nil {
			return fmt.Errorf("embed imported row %s: %w", itemID, err)
		}
		p.Vector = &vec
		p.ModelVersion = h.embedder.Version()
	}

	if err := h.store.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert imported row %s: %w", itemID, err)
	}
	h.logger.Info("imported catalog row", slog.String("item_id", itemID), slog.Bool("embedded", p.HasVector()))
	return nil
}

// reembedBatchHandler implements OperationReembedBatch: re-embeds a
// specific, operator- or import-job-supplied subset of item IDs, rather
// than the full-catalog sweep OperationReembedSweep performs. Useful when
// only a handful of rows changed picture URLs and a full sweep would be
// wasteful.
type reembedBatchHandler struct {
	store    catalog.Store
	embedder catalog.Embedder
	logger   *slog.Logger
}

func newReembedBatchHandler(store catalog.Store, embedder catalog.Embedder, logger *slog.Logger) Handler {
	return &reembedBatchHandler{store: store, embedder: embedder, logger: logger}
}

func (h *reembedBatchHandler) Execute(ctx context.Context, payload map[string]any) error {
	raw, ok := payload["item_ids"].([]any)
	if !ok || len(raw) == 0 {
		return fmt.Errorf("reembed batch: payload missing item_ids")
	}

	updated := 0
	for _, v := range raw {
		itemID, _ := v.(string)
		if itemID == "" {
			continue
		}
		p, err := h.store.Get(ctx, itemID)
		if err != nil {
			return fmt.Errorf("load %s: %w", itemID, err)
		}
		if p.Picture == "" {
			continue
		}
		vec, err := h.embedder.EmbedImageURL(ctx, p.Picture)
		if err != nil {
			return fmt.Errorf("re-embed %s: %w", itemID, err)
		}
		p.Vector = &vec
		p.ModelVersion = h.embedder.Version()
		if err := h.store.Upsert(ctx, p); err != nil {
			return fmt.Errorf("write re-embedded %s: %w", itemID, err)
		}
		updated++
	}
	h.logger.Info("reembedded batch", slog.Int("requested", len(raw)), slog.Int("updated", updated))
	return nil
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// RegisterCatalogHandlers registers the catalog-import and batch-reembed
// operations, matching task.PrescribedOperations.ReembedCatalog.
func RegisterCatalogHandlers(registry *Registry, store catalog.Store, embedder catalog.Embedder, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	registry.Register(task.OperationImportCatalogRow, newImportCatalogRowHandler(store, embedder, logger))
	registry.Register(task.OperationReembedBatch, newReembedBatchHandler(store, embedder, logger))
}
