package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/deepresearch-backend/internal/platform/envutil"
	"github.com/yungbote/deepresearch-backend/internal/platform/logger"
	"github.com/yungbote/deepresearch-backend/internal/platform/openai"
)

// ClaimCandidate is one claim proposed by the extraction model.
type ClaimCandidate struct {
	Text         string  `json:"claim_text"`
	Quote        string  `json:"quote"`
	Confidence   float64 `json:"confidence"`
	EvidenceNote string  `json:"key_evidence"`
}

// ConceptCandidate is one concept proposed by the extraction model.
type ConceptCandidate struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
	Importance  float64  `json:"importance"`
}

// ExtractionResult is the structured bundle produced from one content batch.
type ExtractionResult struct {
	Claims   []ClaimCandidate   `json:"claims"`
	Concepts []ConceptCandidate `json:"concepts"`
	Insights []string           `json:"key_insights"`
}

// Normalization is the merge-or-new decision for a concept candidate.
type Normalization struct {
	IsSimilar     bool   `json:"is_similar"`
	CanonicalName string `json:"canonical_name"`
	Explanation   string `json:"explanation"`
}

const (
	defaultMaxContentChars = 8000
	maxExistingInPrompt    = 20
)

// Extractor turns raw research content into structured claims and concepts,
// and decides whether a candidate concept matches an existing canonical one.
// Both calls fail open: extraction to an empty result, normalization to "new
// concept".
type Extractor struct {
	llm             openai.Client
	log             *logger.Logger
	maxContentChars int
}

func NewExtractor(llm openai.Client, log *logger.Logger) *Extractor {
	var l *logger.Logger
	if log != nil {
		l = log.With("service", "Extractor")
	}
	return &Extractor{
		llm:             llm,
		log:             l,
		maxContentChars: envutil.Int("EXTRACT_MAX_CONTENT_CHARS", defaultMaxContentChars),
	}
}

func (e *Extractor) Extract(ctx context.Context, content, topic string) ExtractionResult {
	empty := ExtractionResult{Claims: []ClaimCandidate{}, Concepts: []ConceptCandidate{}, Insights: []string{}}
	if e == nil || e.llm == nil {
		return empty
	}

	// Bounded-cost contract: always keep the prefix, trimmed back to a rune
	// boundary so the oracle never sees a split character.
	if len(content) > e.maxContentChars {
		cut := e.maxContentChars
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}

	prompt := fmt.Sprintf(`You are a research analyst tasked with extracting key claims and concepts from research content.

RESEARCH TOPIC: %s

RESEARCH CONTENT:
%s

Your task:
1. Extract 3-7 key CLAIMS - factual statements that can be verified
2. Extract 5-12 CONCEPTS - important entities, topics, or ideas mentioned
3. Provide 2-4 high-level INSIGHTS or conclusions

Guidelines for CLAIMS:
- Must be specific and factual
- Should be verifiable from the source material
- Include direct quotes when possible
- Avoid opinions or speculation
- Focus on novel or important information

Guidelines for CONCEPTS:
- Include people, organizations, technologies, topics, locations, events
- Use canonical names (e.g., "Artificial Intelligence" not "AI")
- Provide clear, brief descriptions
- List common aliases or synonyms
- Rate importance based on relevance to research topic

Be precise and focus on quality over quantity.`, topic, content)

	obj, err := e.llm.GenerateJSON(ctx,
		"You are an expert research analyst specializing in knowledge extraction.",
		prompt, "research_extraction", extractionSchema())
	if err != nil {
		if e.log != nil {
			e.log.Error("extraction failed, returning empty result", "topic", topic, "error", err)
		}
		return empty
	}

	var result ExtractionResult
	if err := decodeInto(obj, &result); err != nil {
		if e.log != nil {
			e.log.Error("extraction response malformed, returning empty result", "error", err)
		}
		return empty
	}
	if result.Claims == nil {
		result.Claims = []ClaimCandidate{}
	}
	if result.Concepts == nil {
		result.Concepts = []ConceptCandidate{}
	}
	if result.Insights == nil {
		result.Insights = []string{}
	}
	for i := range result.Claims {
		result.Claims[i].Confidence = clamp01(result.Claims[i].Confidence)
	}
	for i := range result.Concepts {
		result.Concepts[i].Importance = clamp01(result.Concepts[i].Importance)
	}

	if e.log != nil {
		e.log.Info("extracted knowledge",
			"claims", len(result.Claims),
			"concepts", len(result.Concepts),
			"insights", len(result.Insights),
		)
	}
	return result
}

// Normalize decides whether a candidate should merge into an existing
// canonical concept. Merging the unrelated corrupts the graph while a missed
// merge only duplicates, so the prompt is biased against merging and every
// failure path lands on "new concept".
func (e *Extractor) Normalize(ctx context.Context, candidate ConceptCandidate, existingNames []string) Normalization {
	asNew := Normalization{
		IsSimilar:     false,
		CanonicalName: candidate.Name,
	}
	if len(existingNames) == 0 {
		asNew.Explanation = "No existing concepts to compare against"
		return asNew
	}
	if e == nil || e.llm == nil {
		asNew.Explanation = "Normalization unavailable"
		return asNew
	}

	names := existingNames
	if len(names) > maxExistingInPrompt {
		names = names[:maxExistingInPrompt]
	}
	var existing strings.Builder
	for _, n := range names {
		existing.WriteString("- ")
		existing.WriteString(n)
		existing.WriteString("\n")
	}

	prompt := fmt.Sprintf(`You are tasked with concept normalization in a knowledge graph.

NEW CONCEPT:
Name: %s
Type: %s
Description: %s
Aliases: %s

EXISTING CONCEPTS:
%s
Task: Determine if the NEW CONCEPT should be merged with any EXISTING CONCEPT.

Consider:
1. Semantic similarity (same entity/topic with different names)
2. Hierarchical relationships (parent/child topics)
3. Aliases and abbreviations
4. Domain-specific terminology

If similar concept found:
- Set is_similar = true
- Use the existing concept name as canonical_name
- Explain the similarity

If no similar concept:
- Set is_similar = false
- Use new concept name as canonical_name
- Explain why it's distinct

Be conservative - only merge if concepts are clearly the same entity or very closely related.`,
		candidate.Name, candidate.Type, candidate.Description,
		strings.Join(candidate.Aliases, ", "), existing.String())

	obj, err := e.llm.GenerateJSON(ctx,
		"You are an expert in knowledge graph concept normalization.",
		prompt, "concept_normalization", normalizationSchema())
	if err != nil {
		if e.log != nil {
			e.log.Error("normalization failed, treating as new concept", "name", candidate.Name, "error", err)
		}
		asNew.Explanation = fmt.Sprintf("Error during normalization: %v", err)
		return asNew
	}

	var result Normalization
	if err := decodeInto(obj, &result); err != nil || strings.TrimSpace(result.CanonicalName) == "" {
		if e.log != nil {
			e.log.Error("normalization response malformed, treating as new concept", "name", candidate.Name)
		}
		asNew.Explanation = "Malformed normalization response"
		return asNew
	}
	return result
}

func extractionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"claims": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"claim_text":   map[string]any{"type": "string", "description": "A concise, factual statement extracted from the source"},
						"quote":        map[string]any{"type": "string", "description": "Direct quote from source that supports this claim"},
						"confidence":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						"key_evidence": map[string]any{"type": "string", "description": "Brief explanation of what makes this claim important"},
					},
					"required":             []string{"claim_text", "quote", "confidence", "key_evidence"},
					"additionalProperties": false,
				},
			},
			"concepts": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":        map[string]any{"type": "string", "description": "Canonical name for the concept"},
						"type":        map[string]any{"type": "string", "description": "Type: Person, Organization, Topic, Technology, Location, Event"},
						"description": map[string]any{"type": "string"},
						"aliases":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"importance":  map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					},
					"required":             []string{"name", "type", "description", "aliases", "importance"},
					"additionalProperties": false,
				},
			},
			"key_insights": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []string{"claims", "concepts", "key_insights"},
		"additionalProperties": false,
	}
}

func normalizationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_similar":     map[string]any{"type": "boolean", "description": "Whether the concept is similar to existing ones"},
			"canonical_name": map[string]any{"type": "string", "description": "The canonical name to use (existing or new)"},
			"explanation":    map[string]any{"type": "string", "description": "Explanation of the normalization decision"},
		},
		"required":             []string{"is_similar", "canonical_name", "explanation"},
		"additionalProperties": false,
	}
}

func decodeInto(obj map[string]any, out any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
