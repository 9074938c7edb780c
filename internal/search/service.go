package search

import (
	"context"
	"log"

	"polyglot/api/internal/store"
)

// Service is the facade that tries Meilisearch for free-text queries and
// falls back to the store searcher. State-only queries always go to the
// store, which returns them in stable position order.
type Service struct {
	meili    *Meili
	fallback *StoreSearcher
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback *StoreSearcher) *Service {
	return &Service{meili: meili, fallback: fallback}
}

func (s *Service) SearchUnitIDs(ctx context.Context, translation store.Translation, q UnitQuery) ([]int64, error) {
	if q.Text != "" && s.meili != nil && s.meili.Healthy() {
		ids, err := s.meili.SearchUnitIDs(translation.ID, q)
		if err == nil {
			return ids, nil
		}
		log.Printf("search: meilisearch error, falling back to store: %v", err)
	}
	return s.fallback.SearchUnitIDs(ctx, translation, q)
}

// IndexUnit pushes a unit into the full-text index (fire-and-forget).
func (s *Service) IndexUnit(unit store.Unit) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexUnit(unit); err != nil {
			log.Printf("search: index unit %d: %v", unit.ID, err)
		}
	}()
}

// ReindexAll bulk-loads units into the full-text index, typically at boot.
func (s *Service) ReindexAll(units []store.Unit) {
	if s.meili == nil || !s.meili.Healthy() || len(units) == 0 {
		return
	}
	if err := s.meili.IndexUnits(units); err != nil {
		log.Printf("search: reindex units: %v", err)
	}
}
