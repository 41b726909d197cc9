// Package catalog implements the Catalog Service (spec 4.4): upsert,
// index-backed query, and full-table scan over CatalogEntry rows.
package catalog

import (
	"context"

	"github.com/aristath/stockdata/internal/keycodec"
	"github.com/aristath/stockdata/internal/records"
	"github.com/aristath/stockdata/internal/store"
)

// Service upserts and queries catalog entries against a Repository.
type Service struct {
	repo store.Repository
}

// New builds a catalog Service over repo.
func New(repo store.Repository) *Service {
	return &Service{repo: repo}
}

// UpsertCatalog validates each row and batch-puts the resulting items.
// A single invalid row fails the whole call fast (spec 4.4).
func (s *Service) UpsertCatalog(ctx context.Context, rows []records.CatalogEntry) (int, error) {
	items := make([]store.Item, 0, len(rows))
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return 0, err
		}
		item, err := row.ToItem()
		if err != nil {
			return 0, err
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := s.repo.BatchPut(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// QueryCatalog queries the byMarketStatus index by market+status, then
// filters by assetType in memory, matching spec 4.4's rationale of
// keeping index cardinality low since asset_type has few distinct
// values. assetType == "" returns all asset types for the market/status.
func (s *Service) QueryCatalog(ctx context.Context, assetType records.AssetType, market string, status records.Status, limit int) ([]records.CatalogEntry, error) {
	pk, err := keycodec.GSI2PKMarketStatus(market, string(status))
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Query(ctx, store.QueryInput{
		IndexName:      "byMarketStatus",
		PartitionValue: pk,
		SortPrefix:     keycodec.GSI2SKEntity("CATALOG"),
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]records.CatalogEntry, 0, len(items))
	for _, it := range items {
		entry := records.CatalogEntryFromItem(it)
		if assetType != "" && entry.AssetType != assetType {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CatalogFilter narrows a ScanCatalog pass; zero-value fields are unfiltered.
type CatalogFilter struct {
	AssetType records.AssetType
	Market    string
	Status    records.Status
}

// ScanCatalog is the full-table scan fallback used when no secondary
// index matches the caller's access pattern. It scans every CATALOG#
// item to the end of the table (no limit is passed to the
// repository), then filters in memory and stops collecting once limit
// entries match.
func (s *Service) ScanCatalog(ctx context.Context, filter CatalogFilter, limit int) ([]records.CatalogEntry, error) {
	items, err := s.repo.Scan(ctx, store.ScanInput{PKPrefix: "CATALOG#", Limit: 0})
	if err != nil {
		return nil, err
	}

	out := make([]records.CatalogEntry, 0, len(items))
	for _, it := range items {
		entry := records.CatalogEntryFromItem(it)
		if filter.AssetType != "" && entry.AssetType != filter.AssetType {
			continue
		}
		if filter.Market != "" && entry.Market != filter.Market {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
