// Package model holds the per-request data types shared by every pipeline component.
package model

import (
	"strings"
	"time"
)

// Intent is the single classification assigned to a query
type Intent string

const (
	IntentConceptExplanation    Intent = "concept_explanation"
	IntentProblemRecommendation Intent = "problem_recommendation"
	IntentSimilarProblems       Intent = "similar_problems"
	IntentGeneralQuery          Intent = "general_query"
)

// Intents lists every intent in a stable order
var Intents = []Intent{
	IntentConceptExplanation,
	IntentProblemRecommendation,
	IntentSimilarProblems,
	IntentGeneralQuery,
}

// ParseIntent returns the intent named by s, or false when s is not a known intent
func ParseIntent(s string) (Intent, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, in := range Intents {
		if string(in) == s {
			return in, true
		}
	}
	return "", false
}

// EntityType is the kind of a knowledge graph entity
type EntityType string

const (
	EntityProblem       EntityType = "Problem"
	EntityAlgorithm     EntityType = "Algorithm"
	EntityDataStructure EntityType = "DataStructure"
	EntityTechnique     EntityType = "Technique"
	EntityConcept       EntityType = "Concept"
	EntityUnknown       EntityType = "Unknown"
)

// ParseEntityType maps free text to an entity type, falling back to EntityUnknown
func ParseEntityType(s string) EntityType {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "problem":
		return EntityProblem
	case "algorithm":
		return EntityAlgorithm
	case "datastructure":
		return EntityDataStructure
	case "technique":
		return EntityTechnique
	case "concept":
		return EntityConcept
	default:
		return EntityUnknown
	}
}

// Turn is one prior message of a conversation
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryRequest is an accepted query. It is not modified after acceptance.
type QueryRequest struct {
	Text       string `json:"text"`
	SessionID  string `json:"sessionId"`
	Context    []Turn `json:"context,omitempty"`
	IntentHint Intent `json:"intentHint,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// EntityMention is a span of the query text that names an entity.
// ID is empty when the mention could not be resolved to a canonical entity.
type EntityMention struct {
	Text string     `json:"text"`
	ID   string     `json:"id,omitempty"`
	Type EntityType `json:"type"`
}

// Resolved reports whether the mention carries a canonical id
func (m EntityMention) Resolved() bool {
	return m.ID != ""
}

// Focus returns the first resolved mention
func Focus(mentions []EntityMention) (EntityMention, bool) {
	for _, m := range mentions {
		if m.Resolved() {
			return m, true
		}
	}
	return EntityMention{}, false
}

// Entity is a resolved focus entity with its canonical display name
type Entity struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type EntityType `json:"type"`
}

// GraphNode ids are unique within one GraphData only
type GraphNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	IsCenter   bool           `json:"isCenter"`
}

type GraphEdge struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// GraphData is a visualizable subgraph. Every edge endpoint and the center id are
// members of Nodes.
type GraphData struct {
	Nodes    []GraphNode `json:"nodes"`
	Edges    []GraphEdge `json:"edges"`
	CenterID string      `json:"centerId"`
	Layout   string      `json:"layout"`
}

// Recommendation sources
const (
	SourceGraph     = "graph"
	SourceEmbedding = "embedding"
	SourceStatic    = "static"
)

type RecommendationItem struct {
	ID     string   `json:"id,omitempty"`
	Title  string   `json:"title"`
	Score  float64  `json:"score"`
	Tags   []string `json:"tags"`
	Source string   `json:"source"`
}

// ReasoningStep is never revised after it has been emitted
type ReasoningStep struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type PipelineResult struct {
	ResponseID      string               `json:"responseId"`
	Intent          Intent               `json:"intent"`
	Entities        []EntityMention      `json:"entities"`
	Answer          string               `json:"answer"`
	Steps           []ReasoningStep      `json:"steps"`
	Recommendations []RecommendationItem `json:"recommendations"`
	GraphData       *GraphData           `json:"graph_data"`
	Duration        time.Duration        `json:"duration"`
}
