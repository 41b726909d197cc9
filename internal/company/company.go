// Package company implements the Company Service (spec 4.6): put,
// point lookup, score-ordered query, and batched multi-get.
package company

import (
	"context"

	"github.com/aristath/stockdata/internal/keycodec"
	"github.com/aristath/stockdata/internal/records"
	"github.com/aristath/stockdata/internal/store"
)

// Service reads and writes Company rows against a Repository.
type Service struct {
	repo store.Repository
}

// New builds a company Service over repo.
func New(repo store.Repository) *Service {
	return &Service{repo: repo}
}

// PutCompany validates and writes c, deep-converting its metrics to
// exact decimal and populating the score index.
func (s *Service) PutCompany(ctx context.Context, c records.Company) error {
	if err := c.Validate(); err != nil {
		return err
	}
	item, err := c.ToItem()
	if err != nil {
		return err
	}
	return s.repo.PutItem(ctx, item)
}

// GetCompany fetches one company by symbol.
func (s *Service) GetCompany(ctx context.Context, symbol string) (records.Company, bool, error) {
	pk, err := keycodec.PKCompany(symbol)
	if err != nil {
		return records.Company{}, false, err
	}
	item, found, err := s.repo.GetItem(ctx, pk, keycodec.SKMeta("COMPANY"))
	if err != nil || !found {
		return records.Company{}, false, err
	}
	return records.CompanyFromItem(item), true, nil
}

// QueryByScore returns companies with score >= minScore, ascending by
// score, via the score index's lexical >= comparison on the padded
// prefix.
func (s *Service) QueryByScore(ctx context.Context, minScore float64, limit int) ([]records.Company, error) {
	threshold, err := keycodec.PadScore(minScore)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Query(ctx, store.QueryInput{
		IndexName:      "byScore",
		PartitionValue: keycodec.ScorePK,
		SortGTE:        threshold,
		Limit:          limit,
		Direction:      store.Ascending,
	})
	if err != nil {
		return nil, err
	}
	out := make([]records.Company, 0, len(items))
	for _, it := range items {
		out = append(out, records.CompanyFromItem(it))
	}
	return out, nil
}

// BatchGetCompanies de-duplicates symbols and fetches them through the
// repository's batch-get protocol (chunked to groups of 100,
// unprocessed keys retried), returning a symbol -> Company map.
// Missing symbols are simply absent from the result.
func (s *Service) BatchGetCompanies(ctx context.Context, symbols []string) (map[string]records.Company, error) {
	seen := make(map[string]bool, len(symbols))
	keys := make([]store.ItemKey, 0, len(symbols))
	for _, sym := range symbols {
		if seen[sym] {
			continue
		}
		seen[sym] = true
		pk, err := keycodec.PKCompany(sym)
		if err != nil {
			return nil, err
		}
		keys = append(keys, store.ItemKey{PK: pk, SK: keycodec.SKMeta("COMPANY")})
	}
	if len(keys) == 0 {
		return map[string]records.Company{}, nil
	}

	items, err := s.repo.BatchGetItems(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]records.Company, len(items))
	for _, item := range items {
		c := records.CompanyFromItem(item)
		out[c.Symbol] = c
	}
	return out, nil
}
