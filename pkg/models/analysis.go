// Package models contains domain models for nurturenote.
package models

import (
	json "github.com/goccy/go-json"
)

// Canonical field names of the analysis result.
const (
	FieldMaternalFeedback         = "maternal_feedback"
	FieldChildDevelopmentInsights = "child_development_insights"
	FieldParentingGuidelines      = "parenting_guidelines"
	FieldSources                  = "sources"
	FieldDisclaimer               = "disclaimer"
)

// CanonicalOutputKeys lists the keys the model is instructed to emit.
var CanonicalOutputKeys = []string{
	FieldMaternalFeedback,
	FieldChildDevelopmentInsights,
	FieldParentingGuidelines,
	FieldSources,
}

// Source is a citation attached to an analysis.
// Identity for deduplication is URL when present, otherwise Text.
type Source struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

// NormalizedAnalysis is the canonical analysis result.
// Every field is always present on the wire, even when empty.
type NormalizedAnalysis struct {
	Disclaimer               string   `json:"disclaimer"`
	MaternalFeedback         []string `json:"maternal_feedback"`
	ChildDevelopmentInsights []string `json:"child_development_insights"`
	ParentingGuidelines      []string `json:"parenting_guidelines"`
	Sources                  []Source `json:"sources"`
}

// EmptyAnalysis returns the well-formed empty result carrying the given disclaimer.
func EmptyAnalysis(disclaimer string) NormalizedAnalysis {
	return NormalizedAnalysis{
		MaternalFeedback:         []string{},
		ChildDevelopmentInsights: []string{},
		ParentingGuidelines:      []string{},
		Sources:                  []Source{},
		Disclaimer:               disclaimer,
	}
}

// IsEmpty reports whether the analysis carries no content besides the disclaimer.
func (a NormalizedAnalysis) IsEmpty() bool {
	return len(a.MaternalFeedback) == 0 &&
		len(a.ChildDevelopmentInsights) == 0 &&
		len(a.ParentingGuidelines) == 0 &&
		len(a.Sources) == 0
}

// analysisJSON mirrors NormalizedAnalysis without its MarshalJSON method.
type analysisJSON NormalizedAnalysis

// MarshalJSON implements json.Marshaler.
// nil slices are written as empty arrays so the wire shape never carries null.
func (a NormalizedAnalysis) MarshalJSON() ([]byte, error) {
	out := analysisJSON(a)
	if out.MaternalFeedback == nil {
		out.MaternalFeedback = []string{}
	}
	if out.ChildDevelopmentInsights == nil {
		out.ChildDevelopmentInsights = []string{}
	}
	if out.ParentingGuidelines == nil {
		out.ParentingGuidelines = []string{}
	}
	if out.Sources == nil {
		out.Sources = []Source{}
	}
	return json.Marshal(out)
}

// RawModelOutput is the unparsed text returned by an upstream protocol,
// with the decoded payload and protocol side-channel data.
type RawModelOutput struct {
	// Payload is Text decoded as a JSON object.
	Payload map[string]any
	// Metadata holds protocol identifiers such as response, thread or run IDs.
	Metadata    map[string]any
	Text        string
	Annotations []Source
}

// AuditRecord is the durable log of one request/response exchange.
// Fields are declared in the order they appear in the written document.
type AuditRecord struct {
	Timestamp        string          `json:"timestamp"`
	ModelName        string          `json:"model_name"`
	KnowledgeStoreID string          `json:"knowledge_store_id"`
	Question         string          `json:"question"`
	Entries          []EntrySnapshot `json:"entries"`
	Response         any             `json:"response"`
	Metadata         map[string]any  `json:"metadata"`
}
