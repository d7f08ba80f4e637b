package worker

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/nurturenote/internal/analysis"
	dbgorm "github.com/thebtf/nurturenote/internal/db/gorm"
	"github.com/thebtf/nurturenote/internal/worker/sse"
	"github.com/thebtf/nurturenote/pkg/models"
)

// EntryAnalyzed is the payload of an entry_analyzed event.
type EntryAnalyzed struct {
	Analysis models.NormalizedAnalysis `json:"analysis"`
	EntryID  int64                     `json:"entry_id"`
}

// analyzeEntry runs the best-effort single-entry analysis for a freshly
// stored entry, persists the result and notifies stream subscribers.
// A failed analysis is stored as the empty result.
func (s *Service) analyzeEntry(id int64, webSearch *bool) {
	ctx := s.ctx

	entry, err := s.store.GetEntry(ctx, id)
	if errors.Is(err, dbgorm.ErrNotFound) {
		log.Warn().Int64("entry_id", id).Msg("Entry not found for background analysis")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("entry_id", id).Msg("Failed to load entry for background analysis")
		return
	}

	result, err := s.analyzer.Produce(ctx, models.AnalysisRequest{
		Entries:           []models.EntrySnapshot{entry.EntrySnapshot},
		Question:          analysis.SingleEntryQuestion,
		WebSearchOverride: webSearch,
		Metadata: map[string]any{
			"type":       "single_entry_async",
			"entry_id":   entry.ID,
			"created_at": entry.CreatedAt,
		},
	}, models.ModeBestEffort)
	if err != nil {
		log.Error().Err(err).Int64("entry_id", id).Msg("Background analysis failed")
		result = s.analyzer.Empty()
	}
	if result.IsEmpty() {
		log.Info().Int64("entry_id", id).Msg("Analysis returned empty payload")
	}

	if err := s.store.PersistAnalysis(ctx, id, result); err != nil {
		log.Error().Err(err).Int64("entry_id", id).Msg("Failed to persist analysis")
		return
	}

	s.sseBroadcaster.Broadcast(sse.Event{
		Type: sse.EventEntryAnalyzed,
		Data: EntryAnalyzed{EntryID: id, Analysis: result},
	})
}
