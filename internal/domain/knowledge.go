package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceType is the closed set of source kinds. The value doubles as a
// secondary node label, so anything outside this set must never reach the
// graph store.
type SourceType string

const (
	SourceArticle       SourceType = "Article"
	SourceResearchPaper SourceType = "ResearchPaper"
	SourceWebsite       SourceType = "Website"
	SourceVideo         SourceType = "Video"
	SourceDocument      SourceType = "Document"
	SourceAPI           SourceType = "API"
)

// ParseSourceType maps free-form input onto the closed set; unknown values
// fall back to Document.
func ParseSourceType(s string) SourceType {
	switch SourceType(strings.TrimSpace(s)) {
	case SourceArticle, SourceResearchPaper, SourceWebsite, SourceVideo, SourceDocument, SourceAPI:
		return SourceType(strings.TrimSpace(s))
	default:
		return SourceDocument
	}
}

// ConceptType is the closed set of concept kinds, also used as a secondary
// node label.
type ConceptType string

const (
	ConceptPerson       ConceptType = "Person"
	ConceptOrganization ConceptType = "Organization"
	ConceptTopic        ConceptType = "Topic"
	ConceptTechnology   ConceptType = "Technology"
	ConceptLocation     ConceptType = "Location"
	ConceptEvent        ConceptType = "Event"
)

// ParseConceptType maps free-form input onto the closed set; unknown values
// fall back to Topic.
func ParseConceptType(s string) ConceptType {
	switch ConceptType(strings.TrimSpace(s)) {
	case ConceptPerson, ConceptOrganization, ConceptTopic, ConceptTechnology, ConceptLocation, ConceptEvent:
		return ConceptType(strings.TrimSpace(s))
	default:
		return ConceptTopic
	}
}

// AgentRun is one research session. Immutable after creation except status.
type AgentRun struct {
	ID           string
	InitialQuery string
	Timestamp    time.Time
	AgentVersion string
	Status       string
	Metadata     map[string]any
}

// Source is one content batch handed to Ingest. One Source per batch.
type Source struct {
	ID              string
	URL             string
	Title           string
	Author          string
	PublicationDate *time.Time
	SourceType      SourceType
	Metadata        map[string]any
}

// Claim is an individual verifiable statement extracted from a source.
type Claim struct {
	ID              string
	Text            string
	Quote           string
	ConfidenceScore float64
	Timestamp       time.Time
	SourceID        string
}

// Concept is a normalized entity or topic. Keyed by canonical Name in the
// graph; ID is a secondary attribute.
type Concept struct {
	ID          string
	Name        string
	ConceptType ConceptType
	Aliases     []string
	Description string
}

// ClaimSummary is the read model returned by concept-scoped claim searches.
type ClaimSummary struct {
	ClaimID           string   `json:"claim_id"`
	ClaimText         string   `json:"claim_text"`
	ConfidenceScore   float64  `json:"confidence_score"`
	Timestamp         string   `json:"timestamp"`
	SourceTitle       string   `json:"source_title"`
	SourceURL         string   `json:"source_url"`
	MentionedConcepts []string `json:"mentioned_concepts"`
}

// RunClaimDetail is one claim row inside a run summary.
type RunClaimDetail struct {
	ClaimID         string   `json:"claim_id"`
	ClaimText       string   `json:"claim_text"`
	ConfidenceScore float64  `json:"confidence_score"`
	SourceTitle     string   `json:"source_title"`
	Concepts        []string `json:"concepts"`
}

// RunSummary aggregates everything a session generated.
type RunSummary struct {
	AgentRun      AgentRun         `json:"agent_run"`
	TotalClaims   int64            `json:"total_claims"`
	TotalSources  int64            `json:"total_sources"`
	TotalConcepts int64            `json:"total_concepts"`
	Claims        []RunClaimDetail `json:"claims"`
}

// NewID returns a fresh opaque node id.
func NewID() string {
	return uuid.NewString()
}
