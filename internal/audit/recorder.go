// Package audit writes one durable JSON document per upstream exchange.
package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/nurturenote/pkg/models"
)

// MaxAttempts bounds filename generation when names collide.
const MaxAttempts = 10

const (
	fileStampLayout   = "20060102T150405"
	recordStampLayout = "2006-01-02T15:04:05-07:00"
)

// ErrPersistence is returned when a record could not be written.
var ErrPersistence = errors.New("audit persistence failed")

// Recorder writes audit records into a directory.
type Recorder struct {
	dir      string
	model    string
	storeID  string
	location *time.Location
	now      func() time.Time
	newID    func() string
}

// Config holds recorder configuration.
type Config struct {
	Dir              string
	ModelName        string
	KnowledgeStoreID string
	Location         *time.Location // defaults to UTC
}

// NewRecorder creates a Recorder writing into cfg.Dir.
func NewRecorder(cfg Config) *Recorder {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Recorder{
		dir:      cfg.Dir,
		model:    cfg.ModelName,
		storeID:  cfg.KnowledgeStoreID,
		location: loc,
		now:      time.Now,
		newID:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Build captures one exchange as a record stamped with the current time.
func (r *Recorder) Build(entries []models.EntrySnapshot, question string, payload any, metadata map[string]any) models.AuditRecord {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return models.AuditRecord{
		Timestamp:        r.now().In(r.location).Format(recordStampLayout),
		ModelName:        r.model,
		KnowledgeStoreID: r.storeID,
		Question:         question,
		Entries:          append([]models.EntrySnapshot{}, entries...),
		Response:         payload,
		Metadata:         meta,
	}
}

// Write stores rec under a new <timestamp>_<hex>.json name and returns its path.
// A name collision is retried with a fresh suffix up to MaxAttempts times.
// Any other failure aborts at once. Errors wrap ErrPersistence.
func (r *Recorder) Write(rec models.AuditRecord) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create directory: %w", ErrPersistence, err)
	}

	var lastErr error
	for range MaxAttempts {
		name := r.now().In(r.location).Format(fileStampLayout) + "_" + r.newID() + ".json"
		path := filepath.Join(r.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			lastErr = err
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: open %s: %w", ErrPersistence, path, err)
		}

		if err := encode(f, rec); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("%w: write %s: %w", ErrPersistence, path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("%w: close %s: %w", ErrPersistence, path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: %d name collisions: %w", ErrPersistence, MaxAttempts, lastErr)
}

// Persist builds and writes a record. Failures are logged and never returned.
func (r *Recorder) Persist(entries []models.EntrySnapshot, question string, payload any, metadata map[string]any) {
	r.Save(r.Build(entries, question, payload, metadata))
}

// Save writes rec and logs the outcome. It reports whether the write succeeded.
func (r *Recorder) Save(rec models.AuditRecord) bool {
	path, err := r.Write(rec)
	if err != nil {
		log.Error().Err(err).Str("dir", r.dir).Msg("Failed to persist model response")
		return false
	}
	log.Info().Str("response_file", path).Int("entry_count", len(rec.Entries)).Msg("Model response persisted")
	return true
}

func encode(f *os.File, rec models.AuditRecord) error {
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
