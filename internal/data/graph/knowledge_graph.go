package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/deepresearch-backend/internal/domain"
	"github.com/yungbote/deepresearch-backend/internal/observability"
	"github.com/yungbote/deepresearch-backend/internal/platform/logger"
	"github.com/yungbote/deepresearch-backend/internal/platform/neo4jdb"
)

// Store owns all persistence against the property graph. Every write opens
// its own scoped session, returns false instead of an error on failure, and
// never retries; retry policy belongs to the caller.
type Store struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewStore(client *neo4jdb.Client, log *logger.Logger) *Store {
	var l *logger.Logger
	if log != nil {
		l = log.With("service", "GraphStore")
	}
	return &Store{client: client, log: l}
}

func (s *Store) Enabled() bool {
	return s != nil && s.client != nil && s.client.Driver != nil
}

func (s *Store) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.client.Close(ctx)
}

func (s *Store) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
}

func (s *Store) readSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
}

// EnsureSchema creates indexes best-effort; restricted users may not be
// allowed to, so failures are logged and ignored.
func (s *Store) EnsureSchema(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	queries := []string{
		`CREATE INDEX source_id_index IF NOT EXISTS FOR (s:Source) ON (s.id)`,
		`CREATE INDEX source_url_index IF NOT EXISTS FOR (s:Source) ON (s.url)`,
		`CREATE INDEX claim_id_index IF NOT EXISTS FOR (c:Claim) ON (c.id)`,
		`CREATE INDEX claim_source_id_index IF NOT EXISTS FOR (c:Claim) ON (c.source_id)`,
		`CREATE INDEX claim_timestamp_index IF NOT EXISTS FOR (c:Claim) ON (c.timestamp)`,
		`CREATE INDEX concept_id_index IF NOT EXISTS FOR (con:Concept) ON (con.id)`,
		`CREATE INDEX concept_name_index IF NOT EXISTS FOR (con:Concept) ON (con.name)`,
		`CREATE TEXT INDEX concept_aliases_index IF NOT EXISTS FOR (con:Concept) ON (con.aliases)`,
		`CREATE INDEX agent_run_id_index IF NOT EXISTS FOR (ar:AgentRun) ON (ar.id)`,
		`CREATE INDEX agent_run_timestamp_index IF NOT EXISTS FOR (ar:AgentRun) ON (ar.timestamp)`,
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	for _, q := range queries {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			if s.log != nil {
				s.log.Warn("schema init failed (continuing)", "error", err)
			}
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (s *Store) write(ctx context.Context, entity, cypher string, params map[string]any) bool {
	if !s.Enabled() {
		if s.log != nil {
			s.log.Error("no graph connection available", "entity", entity)
		}
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if m := observability.Current(); m != nil {
		m.ObserveGraphWrite(entity, err == nil, time.Since(start))
	}
	if err != nil {
		if s.log != nil {
			s.log.Error("graph write failed", "entity", entity, "error", err)
		}
		return false
	}
	return true
}

func (s *Store) StoreAgentRun(ctx context.Context, run domain.AgentRun) bool {
	ok := s.write(ctx, "agent_run", `
MERGE (ar:AgentRun {id: $id})
SET ar.initial_query = $initial_query,
    ar.timestamp = $timestamp,
    ar.agent_version = $agent_version,
    ar.status = $status,
    ar.metadata_json = $metadata_json
`, map[string]any{
		"id":            run.ID,
		"initial_query": run.InitialQuery,
		"timestamp":     run.Timestamp.UTC().Format(time.RFC3339Nano),
		"agent_version": run.AgentVersion,
		"status":        run.Status,
		"metadata_json": marshalMetadata(run.Metadata),
	})
	if ok && s.log != nil {
		s.log.Info("stored agent run", "agent_run_id", run.ID)
	}
	return ok
}

func (s *Store) StoreSource(ctx context.Context, src domain.Source) bool {
	// Secondary label comes from the validated enum only.
	sourceType := domain.ParseSourceType(string(src.SourceType))
	var pubDate any
	if src.PublicationDate != nil {
		pubDate = src.PublicationDate.UTC().Format(time.RFC3339Nano)
	}
	ok := s.write(ctx, "source", fmt.Sprintf(`
MERGE (s:Source:%s {id: $id})
SET s.url = $url,
    s.title = $title,
    s.author = $author,
    s.publication_date = $publication_date,
    s.source_type = $source_type,
    s.metadata_json = $metadata_json
`, sourceType), map[string]any{
		"id":               src.ID,
		"url":              src.URL,
		"title":            src.Title,
		"author":           src.Author,
		"publication_date": pubDate,
		"source_type":      string(sourceType),
		"metadata_json":    marshalMetadata(src.Metadata),
	})
	if ok && s.log != nil {
		s.log.Info("stored source", "source_id", src.ID, "source_type", string(sourceType))
	}
	return ok
}

// StoreClaim writes the claim node and its EXTRACTED_FROM / GENERATED edges
// as one atomic unit.
func (s *Store) StoreClaim(ctx context.Context, claim domain.Claim, agentRunID string) bool {
	ok := s.write(ctx, "claim", `
MERGE (c:Claim {id: $id})
SET c.text = $text,
    c.quote = $quote,
    c.confidence_score = $confidence_score,
    c.timestamp = $timestamp,
    c.source_id = $source_id
WITH c
MATCH (s:Source {id: $source_id})
MERGE (c)-[:EXTRACTED_FROM]->(s)
WITH c
MATCH (ar:AgentRun {id: $agent_run_id})
MERGE (ar)-[:GENERATED]->(c)
`, map[string]any{
		"id":               claim.ID,
		"text":             claim.Text,
		"quote":            claim.Quote,
		"confidence_score": claim.ConfidenceScore,
		"timestamp":        claim.Timestamp.UTC().Format(time.RFC3339Nano),
		"source_id":        claim.SourceID,
		"agent_run_id":     agentRunID,
	})
	if ok && s.log != nil {
		s.log.Info("stored claim", "claim_id", claim.ID)
	}
	return ok
}

// StoreConcept upserts a concept keyed by canonical name. The caller is
// responsible for passing aliases that already union old and new.
func (s *Store) StoreConcept(ctx context.Context, concept domain.Concept) bool {
	conceptType := domain.ParseConceptType(string(concept.ConceptType))
	aliases := concept.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	ok := s.write(ctx, "concept", fmt.Sprintf(`
MERGE (con:Concept:%s {name: $name})
ON CREATE SET con.created_at = $created_at
SET con.id = $id,
    con.aliases = $aliases,
    con.description = $description,
    con.concept_type = $concept_type
`, conceptType), map[string]any{
		"id":           concept.ID,
		"name":         concept.Name,
		"aliases":      aliases,
		"description":  concept.Description,
		"concept_type": string(conceptType),
		"created_at":   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if ok && s.log != nil {
		s.log.Info("stored concept", "name", concept.Name, "concept_type", string(conceptType))
	}
	return ok
}

// LinkClaimToConcepts creates MENTIONS edges. Names with no matching Concept
// node are silently skipped by the MATCH.
func (s *Store) LinkClaimToConcepts(ctx context.Context, claimID string, conceptNames []string) bool {
	if len(conceptNames) == 0 {
		return true
	}
	return s.write(ctx, "mentions", `
MATCH (c:Claim {id: $claim_id})
UNWIND $concept_names AS concept_name
MATCH (con:Concept {name: concept_name})
MERGE (c)-[:MENTIONS]->(con)
`, map[string]any{
		"claim_id":      claimID,
		"concept_names": conceptNames,
	})
}

// LinkClaims creates a SUPPORTS or CONTRADICTS edge between two claims.
func (s *Store) LinkClaims(ctx context.Context, claim1ID, claim2ID, kind string) bool {
	// Relationship types cannot be parameterized; only values from the
	// closed set may be interpolated.
	if kind != "SUPPORTS" && kind != "CONTRADICTS" {
		if s.log != nil {
			s.log.Error("invalid claim relationship type", "kind", kind)
		}
		return false
	}
	return s.write(ctx, "claim_link", fmt.Sprintf(`
MATCH (c1:Claim {id: $claim1_id})
MATCH (c2:Claim {id: $claim2_id})
MERGE (c1)-[:%s]->(c2)
`, kind), map[string]any{
		"claim1_id": claim1ID,
		"claim2_id": claim2ID,
	})
}

// FindClaimsByConcepts returns claims mentioning any of the given concepts,
// highest confidence first, newest first within equal confidence.
func (s *Store) FindClaimsByConcepts(ctx context.Context, conceptNames []string, limit int) []domain.ClaimSummary {
	if !s.Enabled() {
		if s.log != nil {
			s.log.Error("no graph connection available", "entity", "claim_search")
		}
		return []domain.ClaimSummary{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 10
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Claim)-[:MENTIONS]->(con:Concept)
WHERE con.name IN $concept_names
OPTIONAL MATCH (c)-[:EXTRACTED_FROM]->(s:Source)
RETURN DISTINCT c.id AS claim_id, c.text AS claim_text,
       c.confidence_score AS confidence_score,
       c.timestamp AS timestamp,
       s.title AS source_title, s.url AS source_url,
       COLLECT(DISTINCT con.name) AS mentioned_concepts
ORDER BY c.confidence_score DESC, c.timestamp DESC
LIMIT $limit
`, map[string]any{"concept_names": conceptNames, "limit": limit})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		if s.log != nil {
			s.log.Error("claim search failed", "error", err)
		}
		return []domain.ClaimSummary{}
	}

	rows, _ := records.([]*neo4j.Record)
	out := make([]domain.ClaimSummary, 0, len(rows))
	for _, rec := range rows {
		out = append(out, domain.ClaimSummary{
			ClaimID:           recString(rec, "claim_id"),
			ClaimText:         recString(rec, "claim_text"),
			ConfidenceScore:   recFloat(rec, "confidence_score"),
			Timestamp:         recString(rec, "timestamp"),
			SourceTitle:       recString(rec, "source_title"),
			SourceURL:         recString(rec, "source_url"),
			MentionedConcepts: recStrings(rec, "mentioned_concepts"),
		})
	}
	if s.log != nil {
		s.log.Info("claim search", "concepts", conceptNames, "found", len(out))
	}
	return out
}

// ListConcepts returns known concepts oldest-first, used to warm a fresh
// session catalog with what previous runs already extracted.
func (s *Store) ListConcepts(ctx context.Context, limit int) []domain.Concept {
	if !s.Enabled() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 200
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:Concept)
RETURN c.name AS name, c.aliases AS aliases, c.description AS description
ORDER BY c.created_at ASC
LIMIT $limit
`, map[string]any{"limit": limit})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		if s.log != nil {
			s.log.Warn("concept listing failed", "error", err)
		}
		return nil
	}

	rows, _ := records.([]*neo4j.Record)
	out := make([]domain.Concept, 0, len(rows))
	for _, rec := range rows {
		name := recString(rec, "name")
		if name == "" {
			continue
		}
		out = append(out, domain.Concept{
			Name:        name,
			Aliases:     recStrings(rec, "aliases"),
			Description: recString(rec, "description"),
		})
	}
	return out
}

// GetAgentRunSummary returns the run plus totals and claim details; claim
// rows without an id (from the OPTIONAL MATCH) are filtered out.
func (s *Store) GetAgentRunSummary(ctx context.Context, agentRunID string) *domain.RunSummary {
	if !s.Enabled() {
		if s.log != nil {
			s.log.Error("no graph connection available", "entity", "run_summary")
		}
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	record, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (ar:AgentRun {id: $agent_run_id})
OPTIONAL MATCH (ar)-[:GENERATED]->(c:Claim)-[:EXTRACTED_FROM]->(s:Source)
OPTIONAL MATCH (c)-[:MENTIONS]->(con:Concept)
WITH ar, c, s, COLLECT(DISTINCT con.name) AS concept_names
RETURN ar,
       COUNT(DISTINCT c) AS total_claims,
       COUNT(DISTINCT s) AS total_sources,
       COLLECT(DISTINCT {
           claim_id: c.id,
           claim_text: c.text,
           confidence_score: c.confidence_score,
           source_title: s.title,
           concepts: concept_names
       }) AS claims_details
`, map[string]any{"agent_run_id": agentRunID})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		if s.log != nil {
			s.log.Error("run summary failed", "agent_run_id", agentRunID, "error", err)
		}
		return nil
	}

	rec, ok := record.(*neo4j.Record)
	if !ok || rec == nil {
		return nil
	}

	summary := &domain.RunSummary{
		TotalClaims:  recInt(rec, "total_claims"),
		TotalSources: recInt(rec, "total_sources"),
		Claims:       []domain.RunClaimDetail{},
	}

	if arAny, found := rec.Get("ar"); found {
		if node, isNode := arAny.(neo4j.Node); isNode {
			ts, _ := time.Parse(time.RFC3339Nano, nodeString(node, "timestamp"))
			summary.AgentRun = domain.AgentRun{
				ID:           nodeString(node, "id"),
				InitialQuery: nodeString(node, "initial_query"),
				Timestamp:    ts,
				AgentVersion: nodeString(node, "agent_version"),
				Status:       nodeString(node, "status"),
			}
		}
	}

	if detailsAny, found := rec.Get("claims_details"); found {
		if details, isList := detailsAny.([]any); isList {
			for _, d := range details {
				m, isMap := d.(map[string]any)
				if !isMap {
					continue
				}
				id, _ := m["claim_id"].(string)
				if id == "" {
					continue
				}
				text, _ := m["claim_text"].(string)
				conf, _ := m["confidence_score"].(float64)
				title, _ := m["source_title"].(string)
				summary.Claims = append(summary.Claims, domain.RunClaimDetail{
					ClaimID:         id,
					ClaimText:       text,
					ConfidenceScore: conf,
					SourceTitle:     title,
					Concepts:        anyStrings(m["concepts"]),
				})
			}
		}
	}
	summary.TotalConcepts = distinctConceptCount(summary.Claims)

	return summary
}

// distinctConceptCount counts each concept once across the run, no matter how
// many claims mention it.
func distinctConceptCount(claims []domain.RunClaimDetail) int64 {
	seen := map[string]struct{}{}
	for _, c := range claims {
		for _, name := range c.Concepts {
			if name == "" {
				continue
			}
			seen[name] = struct{}{}
		}
	}
	return int64(len(seen))
}

func marshalMetadata(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func recString(rec *neo4j.Record, key string) string {
	v, found := rec.Get(key)
	if !found || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recFloat(rec *neo4j.Record, key string) float64 {
	v, found := rec.Get(key)
	if !found || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func recInt(rec *neo4j.Record, key string) int64 {
	v, found := rec.Get(key)
	if !found || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func recStrings(rec *neo4j.Record, key string) []string {
	v, found := rec.Get(key)
	if !found {
		return nil
	}
	return anyStrings(v)
}

func anyStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, isStr := item.(string); isStr && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nodeString(node neo4j.Node, key string) string {
	v, ok := node.Props[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
