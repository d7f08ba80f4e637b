// Package gorm provides GORM-based database operations for nurturenote.
package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/thebtf/nurturenote/internal/normalize"
	"github.com/thebtf/nurturenote/pkg/models"
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("entry not found")

// timestampLayout renders created_at as ISO-8601 with seconds and a numeric offset.
const timestampLayout = "2006-01-02T15:04:05-07:00"

// EntryStore provides diary entry operations using GORM.
type EntryStore struct {
	db         *gorm.DB
	loc        *time.Location
	normalizer *normalize.Normalizer
	now        func() time.Time
}

// NewEntryStore creates an entry store. Timestamps are stamped in loc (UTC
// when nil); stored analyses are re-normalized with disclaimer as default.
func NewEntryStore(store *Store, loc *time.Location, disclaimer string) *EntryStore {
	if loc == nil {
		loc = time.UTC
	}
	return &EntryStore{
		db:         store.DB,
		loc:        loc,
		normalizer: normalize.New(disclaimer),
		now:        time.Now,
	}
}

// CreateEntry stores a new entry stamped with the current time.
func (s *EntryStore) CreateEntry(ctx context.Context, mood, body string) (*models.Entry, error) {
	now := s.now().In(s.loc)
	row := &Entry{
		CreatedAt:      now.Format(timestampLayout),
		CreatedAtEpoch: now.UnixMilli(),
		Mood:           mood,
		Body:           body,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}
	return s.toModel(row), nil
}

// GetEntry returns the entry with id, or ErrNotFound.
func (s *EntryStore) GetEntry(ctx context.Context, id int64) (*models.Entry, error) {
	var row Entry
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	return s.toModel(&row), nil
}

// EntriesInRange returns entries created within the last days days, newest first.
func (s *EntryStore) EntriesInRange(ctx context.Context, days int) ([]*models.Entry, error) {
	if days <= 0 {
		return nil, fmt.Errorf("range days must be positive, got %d", days)
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()

	var rows []Entry
	err := s.db.WithContext(ctx).
		Where("created_at_epoch >= ?", cutoff).
		Order("created_at_epoch DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("entries in range: %w", err)
	}
	return s.toModels(rows), nil
}

// ListRecent returns at most limit entries, newest first.
func (s *EntryStore) ListRecent(ctx context.Context, limit int) ([]*models.Entry, error) {
	var rows []Entry
	err := s.db.WithContext(ctx).
		Order("created_at_epoch DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return s.toModels(rows), nil
}

// PersistAnalysis stores the canonical analysis for an entry.
func (s *EntryStore) PersistAnalysis(ctx context.Context, id int64, analysis models.NormalizedAnalysis) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode analysis for entry %d: %w", id, err)
	}

	res := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("id = ?", id).
		Update("analysis_json", string(data))
	if res.Error != nil {
		return fmt.Errorf("persist analysis for entry %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	log.Info().Int64("entry_id", id).Msg("Analysis persisted")
	return nil
}

func (s *EntryStore) toModels(rows []Entry) []*models.Entry {
	out := make([]*models.Entry, 0, len(rows))
	for i := range rows {
		out = append(out, s.toModel(&rows[i]))
	}
	return out
}

func (s *EntryStore) toModel(row *Entry) *models.Entry {
	return &models.Entry{
		EntrySnapshot: models.EntrySnapshot{
			ID:        row.ID,
			CreatedAt: row.CreatedAt,
			Mood:      row.Mood,
			Body:      row.Body,
		},
		Analysis: s.decodeAnalysis(row.ID, row.AnalysisJSON),
	}
}

// decodeAnalysis re-normalizes a stored blob so rows written under an older
// schema come back in the canonical shape.
func (s *EntryStore) decodeAnalysis(id int64, blob sql.NullString) *models.NormalizedAnalysis {
	if !blob.Valid || blob.String == "" {
		return nil
	}
	var raw any
	if err := json.Unmarshal([]byte(blob.String), &raw); err != nil {
		log.Warn().Err(err).Int64("entry_id", id).Msg("Failed to parse stored analysis")
		return nil
	}
	analysis := s.normalizer.Normalize(raw, nil)
	return &analysis
}
