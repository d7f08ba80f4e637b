// Package normalize maps heterogeneous model payloads onto the canonical analysis schema.
//
// Normalization is total: any decoded JSON value, including nil, scalars and
// payloads mixing schema generations, yields a well-formed NormalizedAnalysis.
package normalize

import (
	"github.com/thebtf/nurturenote/pkg/models"
)

// DefaultDisclaimer is used when a payload carries no usable disclaimer.
const DefaultDisclaimer = "This is general information, not a medical diagnosis."

// Legacy field names from the first response schema.
const (
	legacyObservations = "observations"
	legacyEvidence     = "evidence"
	legacyAdvice       = "advice"
	legacyCitations    = "citations"
)

// SchemaVersion identifies which response schema generation a payload follows.
type SchemaVersion string

const (
	SchemaCanonical SchemaVersion = "canonical"
	SchemaLegacy    SchemaVersion = "legacy"
	SchemaMixed     SchemaVersion = "mixed"
	SchemaUnknown   SchemaVersion = "unknown"
)

var (
	canonicalKeys = []string{
		models.FieldMaternalFeedback,
		models.FieldChildDevelopmentInsights,
		models.FieldParentingGuidelines,
		models.FieldSources,
	}
	legacyKeys = []string{legacyObservations, legacyEvidence, legacyAdvice, legacyCitations}
)

// DetectSchema reports which schema generation raw follows.
// A payload carrying keys from both generations is SchemaMixed.
func DetectSchema(raw any) SchemaVersion {
	payload, ok := raw.(map[string]any)
	if !ok {
		return SchemaUnknown
	}
	hasCanonical := hasAny(payload, canonicalKeys)
	hasLegacy := hasAny(payload, legacyKeys)
	switch {
	case hasCanonical && hasLegacy:
		return SchemaMixed
	case hasCanonical:
		return SchemaCanonical
	case hasLegacy:
		return SchemaLegacy
	default:
		return SchemaUnknown
	}
}

func hasAny(payload map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := payload[k]; ok {
			return true
		}
	}
	return false
}

// resolver reads one canonical field from a payload, reporting whether it applied.
type resolver func(payload map[string]any) (any, bool)

// field resolves a key that is present with a non-null value.
func field(name string) resolver {
	return func(payload map[string]any) (any, bool) {
		v, ok := payload[name]
		return v, ok && v != nil
	}
}

// evidenceSummaries derives insight lines from legacy evidence items.
func evidenceSummaries(payload map[string]any) (any, bool) {
	raw, ok := payload[legacyEvidence]
	if !ok || raw == nil {
		return nil, false
	}
	var lines []any
	for _, item := range asList(raw) {
		switch v := item.(type) {
		case map[string]any:
			if s := firstText(v, "summary", "text", "quote"); s != "" {
				lines = append(lines, s)
			}
		default:
			lines = append(lines, v)
		}
	}
	return lines, true
}

// Resolution chains, highest priority first.
var (
	feedbackChain   = []resolver{field(models.FieldMaternalFeedback), field(legacyObservations)}
	insightsChain   = []resolver{field(models.FieldChildDevelopmentInsights), field(legacyObservations), evidenceSummaries}
	guidelinesChain = []resolver{field(models.FieldParentingGuidelines), field(legacyAdvice)}
	sourcesChain    = []resolver{field(models.FieldSources), field(legacyCitations)}
)

func resolve(payload map[string]any, chain []resolver) any {
	for _, r := range chain {
		if v, ok := r(payload); ok {
			return v
		}
	}
	return nil
}

// Normalizer turns raw payloads into canonical results.
type Normalizer struct {
	disclaimer string
}

// New creates a Normalizer that falls back to defaultDisclaimer.
// An empty defaultDisclaimer selects DefaultDisclaimer.
func New(defaultDisclaimer string) *Normalizer {
	if defaultDisclaimer == "" {
		defaultDisclaimer = DefaultDisclaimer
	}
	return &Normalizer{disclaimer: defaultDisclaimer}
}

// Normalize normalizes raw with the package default disclaimer.
func Normalize(raw any, existing []models.Source) models.NormalizedAnalysis {
	return New(DefaultDisclaimer).Normalize(raw, existing)
}

// Normalize maps raw onto the canonical schema.
//
// The payload's own sources come first, then existing (for example annotation
// citations collected by the extractor), then trailing parentheticals split out
// of guideline lines. Duplicates are dropped, first occurrence wins.
func (n *Normalizer) Normalize(raw any, existing []models.Source) models.NormalizedAnalysis {
	if raw == nil {
		return models.EmptyAnalysis(n.disclaimer)
	}

	payload, ok := raw.(map[string]any)
	if !ok {
		result := models.EmptyAnalysis(n.disclaimer)
		if s := stringify(raw); s != "" {
			result.MaternalFeedback = []string{s}
		}
		return result
	}

	sources := MergeSources(toSources(resolve(payload, sourcesChain)), existing)
	guidelines, sources := splitGuidelines(toStrings(resolve(payload, guidelinesChain)), sources)

	return models.NormalizedAnalysis{
		MaternalFeedback:         toStrings(resolve(payload, feedbackChain)),
		ChildDevelopmentInsights: toStrings(resolve(payload, insightsChain)),
		ParentingGuidelines:      guidelines,
		Sources:                  sources,
		Disclaimer:               ResolveDisclaimer(payload[models.FieldDisclaimer], n.disclaimer),
	}
}
