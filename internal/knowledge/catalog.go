package knowledge

import (
	"context"
	"strings"
	"sync"
)

// CatalogStore is the backing store for per-session concept catalogs: a keyed
// map session id -> (surface name -> canonical name). The catalog is advisory;
// the graph store stays authoritative for canonical identity, so backend
// failures degrade to cache misses rather than errors.
type CatalogStore interface {
	Create(ctx context.Context, sessionID string)
	Lookup(ctx context.Context, sessionID, surfaceName string) (string, bool)
	Insert(ctx context.Context, sessionID, surfaceName, canonicalName string)
	// Canonicals returns the distinct canonical names recorded for the
	// session, oldest first.
	Canonicals(ctx context.Context, sessionID string) []string
	Dispose(ctx context.Context, sessionID string)
}

// CatalogSeeder pre-populates a freshly created session catalog, typically
// from concepts already persisted in the graph. The default build seeds
// nothing.
type CatalogSeeder interface {
	SeedCatalog(ctx context.Context, sessionID string, store CatalogStore)
}

// memoryCatalog is the default CatalogStore.
type memoryCatalog struct {
	mu       sync.Mutex
	sessions map[string]*sessionCatalog
}

type sessionCatalog struct {
	mapping map[string]string
	// canonical names in first-seen order, for bounded normalization prompts
	order []string
	seen  map[string]bool
}

func NewMemoryCatalog() CatalogStore {
	return &memoryCatalog{sessions: map[string]*sessionCatalog{}}
}

func (m *memoryCatalog) Create(_ context.Context, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = &sessionCatalog{
		mapping: map[string]string{},
		seen:    map[string]bool{},
	}
}

func (m *memoryCatalog) Lookup(_ context.Context, sessionID, surfaceName string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.sessions[sessionID]
	if !ok {
		return "", false
	}
	canonical, ok := sc.mapping[surfaceName]
	return canonical, ok
}

func (m *memoryCatalog) Insert(_ context.Context, sessionID, surfaceName, canonicalName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.sessions[sessionID]
	if !ok {
		sc = &sessionCatalog{mapping: map[string]string{}, seen: map[string]bool{}}
		m.sessions[sessionID] = sc
	}
	sc.mapping[surfaceName] = canonicalName
	if !sc.seen[canonicalName] {
		sc.seen[canonicalName] = true
		sc.order = append(sc.order, canonicalName)
	}
}

func (m *memoryCatalog) Canonicals(_ context.Context, sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]string, len(sc.order))
	copy(out, sc.order)
	return out
}

func (m *memoryCatalog) Dispose(_ context.Context, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Resolution is the per-candidate outcome of catalog resolution.
type Resolution struct {
	CanonicalName string
	// FromCache means the surface name was already resolved this session
	// and no normalization call was made.
	FromCache bool
	// IsNew means the concept was judged distinct from everything seen this
	// session and should be stored as a new node.
	IsNew       bool
	Explanation string
}

// Normalizer is the merge-or-new capability, satisfied by Extractor.
type Normalizer interface {
	Normalize(ctx context.Context, candidate ConceptCandidate, existingNames []string) Normalization
}

// ConceptCatalog resolves surface concept names to canonical names for one
// session. Resolve is not safe for concurrent use; callers serialize the
// resolution phase.
type ConceptCatalog struct {
	sessionID  string
	store      CatalogStore
	normalizer Normalizer
}

func NewConceptCatalog(sessionID string, store CatalogStore, normalizer Normalizer) *ConceptCatalog {
	return &ConceptCatalog{sessionID: sessionID, store: store, normalizer: normalizer}
}

// Resolve returns the canonical name for a candidate. Known surface names hit
// the cache without a normalization call; new names are normalized against the
// canonical names established so far and recorded before returning.
func (c *ConceptCatalog) Resolve(ctx context.Context, candidate ConceptCandidate) Resolution {
	name := strings.TrimSpace(candidate.Name)
	if name == "" {
		return Resolution{CanonicalName: "", FromCache: false, IsNew: false, Explanation: "empty concept name"}
	}

	if canonical, ok := c.store.Lookup(ctx, c.sessionID, name); ok {
		return Resolution{CanonicalName: canonical, FromCache: true}
	}

	decision := c.normalizer.Normalize(ctx, candidate, c.store.Canonicals(ctx, c.sessionID))
	canonical := strings.TrimSpace(decision.CanonicalName)
	if canonical == "" {
		canonical = name
	}
	c.store.Insert(ctx, c.sessionID, name, canonical)

	return Resolution{
		CanonicalName: canonical,
		IsNew:         !decision.IsSimilar,
		Explanation:   decision.Explanation,
	}
}
