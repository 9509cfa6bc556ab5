package knowledge

import (
	"context"
	"testing"

	"github.com/yungbote/deepresearch-backend/internal/domain"
)

type fakeLister struct {
	concepts []domain.Concept
}

func (f *fakeLister) ListConcepts(_ context.Context, _ int) []domain.Concept {
	return f.concepts
}

func TestGraphSeederWarmsCatalog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	lister := &fakeLister{concepts: []domain.Concept{
		{Name: "Apple Inc.", Aliases: []string{"Apple", "AAPL", ""}},
		{Name: "Quantum Computing"},
	}}
	seeder := NewGraphSeeder(lister, testLogger(t))

	store := NewMemoryCatalog()
	store.Create(ctx, "s1")
	seeder.SeedCatalog(ctx, "s1", store)

	canonical, ok := store.Lookup(ctx, "s1", "AAPL")
	if !ok || canonical != "Apple Inc." {
		t.Fatalf("alias seed: got=(%q,%v) want=(Apple Inc.,true)", canonical, ok)
	}
	if _, ok := store.Lookup(ctx, "s1", "Quantum Computing"); !ok {
		t.Fatalf("name seed missing")
	}

	got := store.Canonicals(ctx, "s1")
	if len(got) != 2 || got[0] != "Apple Inc." || got[1] != "Quantum Computing" {
		t.Fatalf("canonicals: got=%v", got)
	}
}
