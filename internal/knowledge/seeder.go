package knowledge

import (
	"context"

	"github.com/yungbote/deepresearch-backend/internal/domain"
	"github.com/yungbote/deepresearch-backend/internal/platform/envutil"
	"github.com/yungbote/deepresearch-backend/internal/platform/logger"
)

// ConceptLister is the read slice of the graph store the seeder needs.
type ConceptLister interface {
	ListConcepts(ctx context.Context, limit int) []domain.Concept
}

// GraphSeeder warms a fresh session catalog with concepts persisted by
// earlier runs, so normalization can merge onto them instead of minting
// duplicates across sessions.
type GraphSeeder struct {
	lister ConceptLister
	limit  int
	log    *logger.Logger
}

func NewGraphSeeder(lister ConceptLister, log *logger.Logger) *GraphSeeder {
	var l *logger.Logger
	if log != nil {
		l = log.With("service", "GraphSeeder")
	}
	return &GraphSeeder{
		lister: lister,
		limit:  envutil.Int("CATALOG_SEED_LIMIT", 200),
		log:    l,
	}
}

func (s *GraphSeeder) SeedCatalog(ctx context.Context, sessionID string, store CatalogStore) {
	if s.lister == nil {
		return
	}
	concepts := s.lister.ListConcepts(ctx, s.limit)
	for _, c := range concepts {
		store.Insert(ctx, sessionID, c.Name, c.Name)
		for _, alias := range c.Aliases {
			if alias == "" {
				continue
			}
			store.Insert(ctx, sessionID, alias, c.Name)
		}
	}
	if s.log != nil && len(concepts) > 0 {
		s.log.Info("seeded session catalog", "session_id", sessionID, "concepts", len(concepts))
	}
}
