package knowledge

import (
	"context"
	"sync"
	"testing"

	"github.com/yungbote/deepresearch-backend/internal/domain"
)

// fakeGraph records writes and lets tests fail individual operations.
type fakeGraph struct {
	mu sync.Mutex

	failAgentRun bool
	failSource   bool
	failClaims   bool
	failConcepts map[string]bool

	runs     []domain.AgentRun
	sources  []domain.Source
	claims   []domain.Claim
	concepts []domain.Concept
	links    map[string][]string
	closed   bool
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{links: map[string][]string{}, failConcepts: map[string]bool{}}
}

func (g *fakeGraph) Enabled() bool { return true }

func (g *fakeGraph) StoreAgentRun(_ context.Context, run domain.AgentRun) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAgentRun {
		return false
	}
	g.runs = append(g.runs, run)
	return true
}

func (g *fakeGraph) StoreSource(_ context.Context, src domain.Source) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSource {
		return false
	}
	g.sources = append(g.sources, src)
	return true
}

func (g *fakeGraph) StoreClaim(_ context.Context, claim domain.Claim, _ string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failClaims {
		return false
	}
	g.claims = append(g.claims, claim)
	return true
}

func (g *fakeGraph) StoreConcept(_ context.Context, concept domain.Concept) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failConcepts[concept.Name] {
		return false
	}
	g.concepts = append(g.concepts, concept)
	return true
}

func (g *fakeGraph) LinkClaimToConcepts(_ context.Context, claimID string, conceptNames []string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.links[claimID] = append(g.links[claimID], conceptNames...)
	return true
}

func (g *fakeGraph) LinkClaims(_ context.Context, _, _, kind string) bool {
	return kind == "SUPPORTS" || kind == "CONTRADICTS"
}

func (g *fakeGraph) Close(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// fakeOracle returns a scripted extraction and normalizes via a decision map.
type fakeOracle struct {
	extraction ExtractionResult
	decisions  map[string]Normalization
}

func (o *fakeOracle) Extract(_ context.Context, _, _ string) ExtractionResult {
	return o.extraction
}

func (o *fakeOracle) Normalize(_ context.Context, candidate ConceptCandidate, _ []string) Normalization {
	if d, ok := o.decisions[candidate.Name]; ok {
		return d
	}
	return Normalization{IsSimilar: false, CanonicalName: candidate.Name, Explanation: "new"}
}

func newTestIntegrator(t *testing.T, g Graph, o Oracle) *Integrator {
	t.Helper()
	return NewIntegrator(g, o, NewMemoryCatalog(), nil, testLogger(t))
}

func TestBeginSessionStoresAgentRun(t *testing.T) {
	t.Parallel()

	g := newFakeGraph()
	integ := newTestIntegrator(t, g, &fakeOracle{})

	runID, ok := integ.BeginSession(context.Background(), "what is quantum computing", "a brief")
	if !ok || runID == "" {
		t.Fatalf("BeginSession: got=(%q,%v) want non-empty id", runID, ok)
	}
	if len(g.runs) != 1 {
		t.Fatalf("agent runs stored: got=%d want=1", len(g.runs))
	}
	run := g.runs[0]
	if run.InitialQuery != "what is quantum computing" {
		t.Fatalf("initial query: got=%q", run.InitialQuery)
	}
	if run.Metadata["research_brief"] != "a brief" {
		t.Fatalf("research brief not recorded: %v", run.Metadata)
	}
}

func TestBeginSessionAbortsOnStoreFailure(t *testing.T) {
	t.Parallel()

	g := newFakeGraph()
	g.failAgentRun = true
	integ := newTestIntegrator(t, g, &fakeOracle{})

	runID, ok := integ.BeginSession(context.Background(), "query", "")
	if ok || runID != "" {
		t.Fatalf("BeginSession must fail when the run cannot be stored")
	}

	// Still uninitialized: ingest is a no-op.
	report := integ.Ingest(context.Background(), "content", "topic", nil)
	if report.OK || report.SourceStored {
		t.Fatalf("ingest without session must be a no-op: %+v", report)
	}
	if len(g.sources) != 0 {
		t.Fatalf("no source may be stored without a session")
	}
}

func TestBeginSessionRejectsSecondCall(t *testing.T) {
	t.Parallel()

	g := newFakeGraph()
	integ := newTestIntegrator(t, g, &fakeOracle{})

	if _, ok := integ.BeginSession(context.Background(), "q", ""); !ok {
		t.Fatalf("first BeginSession failed")
	}
	if _, ok := integ.BeginSession(context.Background(), "q2", ""); ok {
		t.Fatalf("second BeginSession must be rejected")
	}
}

func TestIngestStoresAndLinks(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{
		extraction: ExtractionResult{
			Claims: []ClaimCandidate{
				{Text: "Apple released a new chip.", Quote: "new chip", Confidence: 0.9},
				{Text: "Unrelated statement about weather.", Confidence: 0.4},
			},
			Concepts: []ConceptCandidate{
				{Name: "Apple", Type: "Organization", Aliases: []string{"AAPL"}},
			},
			Insights: []string{"Hardware cadence is increasing."},
		},
		decisions: map[string]Normalization{
			"Apple": {IsSimilar: false, CanonicalName: "Apple Inc.", Explanation: "canonical form"},
		},
	}
	g := newFakeGraph()
	integ := newTestIntegrator(t, g, oracle)
	integ.BeginSession(context.Background(), "q", "")

	report := integ.Ingest(context.Background(), "content", "Apple hardware",
		map[string]any{"url": "https://example.com/apple", "title": "Apple launch"})

	if !report.OK || !report.SourceStored {
		t.Fatalf("ingest should succeed: %+v", report)
	}
	if len(g.sources) != 1 {
		t.Fatalf("sources stored: got=%d want=1", len(g.sources))
	}
	if len(report.ConceptsStored) != 1 || report.ConceptsStored[0] != "Apple Inc." {
		t.Fatalf("concepts stored: got=%v", report.ConceptsStored)
	}
	// Surface name differed from canonical, so it joins the aliases.
	concept := g.concepts[0]
	if !containsString(concept.Aliases, "AAPL") || !containsString(concept.Aliases, "Apple") {
		t.Fatalf("aliases: got=%v want AAPL and Apple", concept.Aliases)
	}
	if len(report.ClaimsStored) != 2 {
		t.Fatalf("claims stored: got=%d want=2", len(report.ClaimsStored))
	}

	// Substring matching links only the claim that mentions the surface form.
	var linked, unlinked int
	for _, names := range report.Links {
		if len(names) > 0 {
			linked++
			if names[0] != "Apple Inc." {
				t.Fatalf("link target: got=%v want Apple Inc.", names)
			}
		} else {
			unlinked++
		}
	}
	if linked != 1 || unlinked != 1 {
		t.Fatalf("links: linked=%d unlinked=%d want 1/1", linked, unlinked)
	}
}

func TestIngestMergesRepeatedSurfaceForms(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{
		extraction: ExtractionResult{
			Concepts: []ConceptCandidate{
				{Name: "Apple Inc.", Type: "Organization"},
				{Name: "Apple", Type: "Organization"},
			},
		},
		decisions: map[string]Normalization{
			"Apple": {IsSimilar: true, CanonicalName: "Apple Inc.", Explanation: "same company"},
		},
	}
	g := newFakeGraph()
	integ := newTestIntegrator(t, g, oracle)
	integ.BeginSession(context.Background(), "q", "")

	report := integ.Ingest(context.Background(), "content", "topic", nil)

	if len(g.concepts) != 1 {
		t.Fatalf("concept nodes: got=%d want=1", len(g.concepts))
	}
	if len(report.ConceptsMerged) != 1 || report.ConceptsMerged[0] != "Apple" {
		t.Fatalf("merged: got=%v want [Apple]", report.ConceptsMerged)
	}

	// Second batch with the same surface form resolves from cache; still one node.
	integ.Ingest(context.Background(), "more content", "topic", nil)
	if len(g.concepts) != 1 {
		t.Fatalf("cache hit minted a duplicate node: %d", len(g.concepts))
	}
}

func TestIngestFailOpenOnEmptyExtraction(t *testing.T) {
	t.Parallel()

	g := newFakeGraph()
	integ := newTestIntegrator(t, g, &fakeOracle{})
	integ.BeginSession(context.Background(), "q", "")

	report := integ.Ingest(context.Background(), "content", "topic", nil)

	if !report.OK {
		t.Fatalf("empty extraction must still succeed: %+v", report)
	}
	if len(g.sources) != 1 {
		t.Fatalf("source must be stored even with empty extraction")
	}
	if len(report.ClaimsStored) != 0 || len(report.ConceptsStored) != 0 {
		t.Fatalf("nothing should be stored beyond the source: %+v", report)
	}
}

func TestIngestReportsSourceFailure(t *testing.T) {
	t.Parallel()

	g := newFakeGraph()
	g.failSource = true
	integ := newTestIntegrator(t, g, &fakeOracle{
		extraction: ExtractionResult{
			Claims: []ClaimCandidate{{Text: "a claim", Confidence: 0.5}},
		},
	})
	integ.BeginSession(context.Background(), "q", "")

	report := integ.Ingest(context.Background(), "content", "topic", nil)

	if report.OK || report.SourceStored {
		t.Fatalf("source failure must clear OK: %+v", report)
	}
	// Claims still attempted best-effort.
	if len(report.ClaimsStored) != 1 {
		t.Fatalf("claims: got=%d want=1", len(report.ClaimsStored))
	}
}

func TestIngestSkipsFailedConceptWrites(t *testing.T) {
	t.Parallel()

	g := newFakeGraph()
	g.failConcepts["Broken"] = true
	integ := newTestIntegrator(t, g, &fakeOracle{
		extraction: ExtractionResult{
			Concepts: []ConceptCandidate{
				{Name: "Broken", Type: "Topic"},
				{Name: "Fine", Type: "Topic"},
			},
		},
	})
	integ.BeginSession(context.Background(), "q", "")

	report := integ.Ingest(context.Background(), "content", "topic", nil)

	if !report.OK {
		t.Fatalf("concept failure must not clear OK")
	}
	if len(report.ConceptsSkipped) != 1 || report.ConceptsSkipped[0] != "Broken" {
		t.Fatalf("skipped: got=%v", report.ConceptsSkipped)
	}
	if len(report.ConceptsStored) != 1 || report.ConceptsStored[0] != "Fine" {
		t.Fatalf("stored: got=%v", report.ConceptsStored)
	}
}

func TestInferSourceType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		meta map[string]any
		want domain.SourceType
	}{
		{map[string]any{"url": "https://arxiv.org/abs/2401.1"}, domain.SourceResearchPaper},
		{map[string]any{"url": "https://x.com", "title": "New Research on Fusion"}, domain.SourceResearchPaper},
		{map[string]any{"url": "https://youtube.com/watch?v=1"}, domain.SourceVideo},
		{map[string]any{"url": "https://example.com/post"}, domain.SourceWebsite},
		{map[string]any{"title": "Internal memo"}, domain.SourceDocument},
		{nil, domain.SourceDocument},
	}
	for _, tc := range cases {
		if got := inferSourceType(tc.meta); got != tc.want {
			t.Fatalf("inferSourceType(%v): got=%q want=%q", tc.meta, got, tc.want)
		}
	}
}

func TestBuildSourceDefaultsTitleToTopic(t *testing.T) {
	t.Parallel()

	src := buildSource("fusion energy", map[string]any{"url": "https://example.com"})
	if src.Title != "fusion energy" {
		t.Fatalf("title: got=%q want topic", src.Title)
	}
	if src.ID == "" {
		t.Fatalf("source must get an id")
	}
}

func TestEndSessionIdempotent(t *testing.T) {
	t.Parallel()

	g := newFakeGraph()
	integ := newTestIntegrator(t, g, &fakeOracle{})

	// No-op before a session exists.
	integ.EndSession(context.Background())
	if g.closed {
		t.Fatalf("close before session must be a no-op")
	}

	integ.BeginSession(context.Background(), "q", "")
	integ.EndSession(context.Background())
	if !g.closed {
		t.Fatalf("EndSession must close the store")
	}

	// Second call is a no-op, and the session stays closed.
	integ.EndSession(context.Background())
	report := integ.Ingest(context.Background(), "content", "topic", nil)
	if report.OK {
		t.Fatalf("ingest after EndSession must be rejected")
	}
}

func TestLinkClaimsRequiresActiveSession(t *testing.T) {
	t.Parallel()

	g := newFakeGraph()
	integ := newTestIntegrator(t, g, &fakeOracle{})

	if integ.LinkClaims(context.Background(), "a", "b", "SUPPORTS") {
		t.Fatalf("link without session must fail")
	}

	integ.BeginSession(context.Background(), "q", "")
	if !integ.LinkClaims(context.Background(), "a", "b", "SUPPORTS") {
		t.Fatalf("link with active session should pass through")
	}
	if integ.LinkClaims(context.Background(), "a", "b", "CAUSES") {
		t.Fatalf("invalid relationship must be rejected by the store")
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
