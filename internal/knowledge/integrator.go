package knowledge

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/deepresearch-backend/internal/domain"
	"github.com/yungbote/deepresearch-backend/internal/observability"
	"github.com/yungbote/deepresearch-backend/internal/platform/envutil"
	"github.com/yungbote/deepresearch-backend/internal/platform/logger"
)

// Graph is the slice of the graph store the pipeline writes through.
// Satisfied by data/graph.Store and by fakes in tests.
type Graph interface {
	Enabled() bool
	StoreAgentRun(ctx context.Context, run domain.AgentRun) bool
	StoreSource(ctx context.Context, src domain.Source) bool
	StoreClaim(ctx context.Context, claim domain.Claim, agentRunID string) bool
	StoreConcept(ctx context.Context, concept domain.Concept) bool
	LinkClaimToConcepts(ctx context.Context, claimID string, conceptNames []string) bool
	LinkClaims(ctx context.Context, claim1ID, claim2ID, kind string) bool
	Close(ctx context.Context) error
}

// Oracle is the extraction capability. Satisfied by Extractor and by fakes.
type Oracle interface {
	Extract(ctx context.Context, content, topic string) ExtractionResult
	Normalize(ctx context.Context, candidate ConceptCandidate, existingNames []string) Normalization
}

type sessionState int

const (
	stateUninitialized sessionState = iota
	stateActive
	stateClosed
)

// IngestReport records per-item outcomes of one ingest batch so callers can
// see exactly which sub-operations succeeded.
type IngestReport struct {
	OK           bool
	SourceID     string
	SourceStored bool

	ConceptsStored  []string // canonical names newly created
	ConceptsMerged  []string // surface names resolved onto existing canonicals
	ConceptsSkipped []string // candidates whose node write failed

	ClaimsStored []string // claim ids
	ClaimsFailed int
	// Links maps claim id to the canonical concepts it mentions.
	Links map[string][]string

	Insights []string
}

// Integrator orchestrates ingestion for one research session at a time:
// UNINITIALIZED -> ACTIVE -> CLOSED.
type Integrator struct {
	graph        Graph
	oracle       Oracle
	catalogStore CatalogStore
	seeder       CatalogSeeder
	log          *logger.Logger

	agentVersion     string
	claimConcurrency int

	// mu serializes session state changes and the concept-resolution phase;
	// concurrent resolves could mint two canonical nodes for one entity.
	mu         sync.Mutex
	state      sessionState
	agentRunID string
	catalog    *ConceptCatalog
}

// NewIntegrator wires the pipeline. seeder may be nil; the catalog then
// starts empty, which is the minimal contract.
func NewIntegrator(g Graph, oracle Oracle, catalogStore CatalogStore, seeder CatalogSeeder, log *logger.Logger) *Integrator {
	var l *logger.Logger
	if log != nil {
		l = log.With("service", "Integrator")
	}
	if catalogStore == nil {
		catalogStore = NewMemoryCatalog()
	}
	return &Integrator{
		graph:            g,
		oracle:           oracle,
		catalogStore:     catalogStore,
		seeder:           seeder,
		log:              l,
		agentVersion:     envutil.Str("AGENT_VERSION", "deepresearch_v1"),
		claimConcurrency: envutil.Int("INGEST_CLAIM_CONCURRENCY", 4),
	}
}

// BeginSession creates and stores the session's AgentRun. On storage failure
// it returns ("", false) and the integrator stays uninitialized; a session
// cannot exist without its root node.
func (i *Integrator) BeginSession(ctx context.Context, initialQuery, researchBrief string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != stateUninitialized {
		if i.log != nil {
			i.log.Warn("begin session ignored: session already started")
		}
		return "", false
	}
	if i.graph == nil || !i.graph.Enabled() {
		if i.log != nil {
			i.log.Warn("begin session failed: graph storage disabled")
		}
		return "", false
	}

	run := domain.AgentRun{
		ID:           domain.NewID(),
		InitialQuery: initialQuery,
		Timestamp:    time.Now().UTC(),
		AgentVersion: i.agentVersion,
		Status:       "completed",
		Metadata:     map[string]any{"research_brief": researchBrief},
	}
	if !i.graph.StoreAgentRun(ctx, run) {
		return "", false
	}

	i.catalogStore.Create(ctx, run.ID)
	if i.seeder != nil {
		i.seeder.SeedCatalog(ctx, run.ID, i.catalogStore)
	}
	i.catalog = NewConceptCatalog(run.ID, i.catalogStore, i.oracle)
	i.agentRunID = run.ID
	i.state = stateActive

	if i.log != nil {
		i.log.Info("session started", "agent_run_id", run.ID)
	}
	return run.ID, true
}

// Ingest processes one content batch: extract, store the source, resolve and
// store concepts, store claims, link claims to mentioned concepts. Individual
// concept/claim failures are recorded and skipped; OK reflects only whether
// extraction ran and the source was stored.
func (i *Integrator) Ingest(ctx context.Context, content, topic string, sourceMetadata map[string]any) IngestReport {
	report := IngestReport{Links: map[string][]string{}}

	i.mu.Lock()
	if i.state != stateActive {
		i.mu.Unlock()
		if i.log != nil {
			i.log.Warn("ingest ignored: no active session")
		}
		return report
	}
	agentRunID := i.agentRunID
	catalog := i.catalog

	extraction := i.oracle.Extract(ctx, content, topic)
	report.Insights = extraction.Insights

	source := buildSource(topic, sourceMetadata)
	report.SourceID = source.ID
	report.SourceStored = i.graph.StoreSource(ctx, source)
	report.OK = report.SourceStored

	// Resolution phase: strictly sequential under the session mutex.
	type resolved struct {
		surface   string
		canonical string
	}
	pairs := make([]resolved, 0, len(extraction.Concepts))
	for _, candidate := range extraction.Concepts {
		res := catalog.Resolve(ctx, candidate)
		if res.CanonicalName == "" {
			continue
		}
		pairs = append(pairs, resolved{surface: candidate.Name, canonical: res.CanonicalName})

		if res.FromCache {
			continue
		}
		if i.log != nil {
			i.log.Info("normalized concept",
				"surface", candidate.Name,
				"canonical", res.CanonicalName,
				"is_new", res.IsNew,
				"explanation", res.Explanation,
			)
		}
		if !res.IsNew {
			report.ConceptsMerged = append(report.ConceptsMerged, candidate.Name)
			continue
		}

		aliases := append([]string{}, candidate.Aliases...)
		if candidate.Name != res.CanonicalName {
			aliases = append(aliases, candidate.Name)
		}
		concept := domain.Concept{
			ID:          domain.NewID(),
			Name:        res.CanonicalName,
			ConceptType: domain.ParseConceptType(candidate.Type),
			Aliases:     aliases,
			Description: candidate.Description,
		}
		if i.graph.StoreConcept(ctx, concept) {
			report.ConceptsStored = append(report.ConceptsStored, res.CanonicalName)
		} else {
			report.ConceptsSkipped = append(report.ConceptsSkipped, candidate.Name)
		}
	}
	i.mu.Unlock()

	// Claim phase: resolution is done, writes are idempotent upserts, so
	// claims can be dispatched concurrently.
	var reportMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.claimConcurrency)

	for _, candidate := range extraction.Claims {
		claim := domain.Claim{
			ID:              domain.NewID(),
			Text:            candidate.Text,
			Quote:           candidate.Quote,
			ConfidenceScore: clamp01(candidate.Confidence),
			Timestamp:       time.Now().UTC(),
			SourceID:        source.ID,
		}
		g.Go(func() error {
			if !i.graph.StoreClaim(gctx, claim, agentRunID) {
				reportMu.Lock()
				report.ClaimsFailed++
				reportMu.Unlock()
				return nil
			}

			var relevant []string
			seen := map[string]bool{}
			claimLower := strings.ToLower(claim.Text)
			for _, p := range pairs {
				if !strings.Contains(claimLower, strings.ToLower(p.surface)) {
					continue
				}
				if seen[p.canonical] {
					continue
				}
				seen[p.canonical] = true
				relevant = append(relevant, p.canonical)
			}
			if len(relevant) > 0 {
				i.graph.LinkClaimToConcepts(gctx, claim.ID, relevant)
			}

			reportMu.Lock()
			report.ClaimsStored = append(report.ClaimsStored, claim.ID)
			report.Links[claim.ID] = relevant
			reportMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if m := observability.Current(); m != nil {
		m.ObserveIngestBatch(report.OK)
	}
	if i.log != nil {
		i.log.Info("processed research batch",
			"topic", topic,
			"claims", len(report.ClaimsStored),
			"concepts_stored", len(report.ConceptsStored),
			"concepts_merged", len(report.ConceptsMerged),
			"ok", report.OK,
		)
	}
	return report
}

// LinkClaims exposes SUPPORTS/CONTRADICTS linking between stored claims.
func (i *Integrator) LinkClaims(ctx context.Context, claim1ID, claim2ID, kind string) bool {
	i.mu.Lock()
	active := i.state == stateActive
	i.mu.Unlock()
	if !active {
		return false
	}
	return i.graph.LinkClaims(ctx, claim1ID, claim2ID, kind)
}

// EndSession disposes the session catalog and releases the store connection.
// Idempotent; a no-op when no session was ever started.
func (i *Integrator) EndSession(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != stateActive {
		return
	}
	i.catalogStore.Dispose(ctx, i.agentRunID)
	i.catalog = nil
	i.state = stateClosed

	if i.graph != nil {
		if err := i.graph.Close(ctx); err != nil && i.log != nil {
			i.log.Warn("graph close failed", "error", err)
		}
	}
	if i.log != nil {
		i.log.Info("session ended", "agent_run_id", i.agentRunID)
	}
}

func buildSource(topic string, metadata map[string]any) domain.Source {
	url := metaString(metadata, "url")
	title := metaString(metadata, "title")
	if title == "" {
		title = topic
	}
	return domain.Source{
		ID:         domain.NewID(),
		URL:        url,
		Title:      title,
		Author:     metaString(metadata, "author"),
		SourceType: inferSourceType(metadata),
		Metadata:   metadata,
	}
}

// inferSourceType keeps the original heuristic: arxiv urls or "research"
// titles are papers, youtube is video, any other url is a website, no url is
// a document.
func inferSourceType(metadata map[string]any) domain.SourceType {
	url := strings.ToLower(metaString(metadata, "url"))
	title := strings.ToLower(metaString(metadata, "title"))

	switch {
	case strings.Contains(url, "arxiv") || strings.Contains(title, "research"):
		return domain.SourceResearchPaper
	case strings.Contains(url, "youtube"):
		return domain.SourceVideo
	case url != "":
		return domain.SourceWebsite
	default:
		return domain.SourceDocument
	}
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
