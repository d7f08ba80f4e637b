// Package models contains domain models for nurturenote.
package models

import (
	"strings"
)

// EntrySnapshot is an immutable view of one diary entry.
type EntrySnapshot struct {
	CreatedAt string `json:"created_at"`
	Mood      string `json:"mood"`
	Body      string `json:"body"`
	ID        int64  `json:"id"`
}

// PromptLine renders the entry as a single "created_at | mood | body" line.
// Newlines inside the body are folded into spaces.
func (e EntrySnapshot) PromptLine() string {
	body := strings.TrimSpace(strings.ReplaceAll(e.Body, "\n", " "))
	return e.CreatedAt + " | " + e.Mood + " | " + body
}

// Entry is a stored diary entry together with its latest analysis, if any.
type Entry struct {
	Analysis *NormalizedAnalysis `json:"analysis"`
	EntrySnapshot
}

// Snapshots returns the read-only snapshots of the given entries.
func Snapshots(entries []*Entry) []EntrySnapshot {
	out := make([]EntrySnapshot, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		out = append(out, e.EntrySnapshot)
	}
	return out
}

// Mode selects how analysis failures reach the caller.
type Mode int

const (
	// ModeStrict propagates upstream failures to the caller.
	ModeStrict Mode = iota
	// ModeBestEffort degrades upstream failures to the empty canonical result.
	ModeBestEffort
)

func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModeBestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
}

// AnalysisRequest carries one invocation of the analysis pipeline.
type AnalysisRequest struct {
	// WebSearchOverride wins over the configured feature flag when non-nil.
	WebSearchOverride *bool
	Metadata          map[string]any
	Question          string
	Entries           []EntrySnapshot
}
