package worker

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/nurturenote/internal/config"
	dbgorm "github.com/thebtf/nurturenote/internal/db/gorm"
	"github.com/thebtf/nurturenote/internal/llm"
	"github.com/thebtf/nurturenote/pkg/models"
)

// Listing limits for GET /entries.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

const timeLayout = "2006-01-02T15:04:05-07:00"

// EntryCreateRequest is the body of POST /entries.
type EntryCreateRequest struct {
	UseWebSearch *bool  `json:"use_web_search"`
	Mood         string `json:"mood" validate:"required,max=200"`
	Body         string `json:"body" validate:"required"`
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	RangeDays    *int    `json:"range_days" validate:"omitempty,min=1,max=90"`
	Question     *string `json:"question" validate:"omitempty,max=500"`
	UseWebSearch *bool   `json:"use_web_search"`
}

// WindowInfo describes the entries an analysis covered.
type WindowInfo struct {
	RangeDays  int `json:"range_days"`
	EntryCount int `json:"entry_count"`
}

// AnalyzeResponse is the body returned by POST /analyze.
type AnalyzeResponse struct {
	Window                   WindowInfo      `json:"window"`
	MaternalFeedback         []string        `json:"maternal_feedback"`
	ChildDevelopmentInsights []string        `json:"child_development_insights"`
	ParentingGuidelines      []string        `json:"parenting_guidelines"`
	Sources                  []models.Source `json:"sources"`
	Disclaimer               string          `json:"disclaimer"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError reports a request body that failed validation.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

// decodeJSON reads the request body into dst. An empty body leaves dst at its zero value.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &validationError{msg: "invalid JSON body: " + err.Error()}
	}
	return nil
}

// check validates a decoded body and flattens field errors into one message.
func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &validationError{msg: err.Error()}
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: failed on '%s'", fe.Field(), fe.Tag()))
	}
	return &validationError{msg: strings.Join(parts, "; ")}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// statusFor maps an error onto an HTTP status.
func statusFor(err error) int {
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dbgorm.ErrNotFound):
		return http.StatusNotFound
	case llm.IsConfiguration(err):
		return http.StatusInternalServerError
	case llm.IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"app":    config.AppName,
		"time":   s.now().In(s.config.Location()).Format(timeLayout),
	})
}

func (s *Service) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Mood = strings.TrimSpace(req.Mood)
	req.Body = strings.TrimSpace(req.Body)
	if err := s.check(&req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := s.store.CreateEntry(r.Context(), req.Mood, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	s.background.Go(func() {
		s.analyzeEntry(entry.ID, req.UseWebSearch)
	})

	log.Info().Int64("entry_id", entry.ID).Str("mood", entry.Mood).Msg("Entry saved (analysis queued)")
	writeJSON(w, http.StatusOK, entry)
}

func (s *Service) handleListEntries(w http.ResponseWriter, r *http.Request) {
	limit := dbgorm.ParseLimitParam(r, DefaultListLimit, MaxListLimit)

	entries, err := s.store.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().Int("count", len(entries)).Int("limit", limit).Msg("Fetched entries")
	writeJSON(w, http.StatusOK, entries)
}

func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.check(&req); err != nil {
		writeError(w, err)
		return
	}

	rangeDays := s.config.RangeDays
	if req.RangeDays != nil {
		rangeDays = *req.RangeDays
	}
	question := ""
	if req.Question != nil {
		question = *req.Question
	}

	entries, err := s.store.EntriesInRange(r.Context(), rangeDays)
	if err != nil {
		writeError(w, err)
		return
	}

	meta := map[string]any{
		"type":                     "window_analysis",
		"range_days":               rangeDays,
		"entry_count":              len(entries),
		"user_web_search_override": req.UseWebSearch,
	}

	result, err := s.analyzer.Produce(r.Context(), models.AnalysisRequest{
		Entries:           models.Snapshots(entries),
		Question:          question,
		WebSearchOverride: req.UseWebSearch,
		Metadata:          meta,
	}, models.ModeStrict)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Info().Int("entries", len(entries)).Int("range_days", rangeDays).Msg("Analysis completed")
	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Window:                   WindowInfo{RangeDays: rangeDays, EntryCount: len(entries)},
		MaternalFeedback:         nonNil(result.MaternalFeedback),
		ChildDevelopmentInsights: nonNil(result.ChildDevelopmentInsights),
		ParentingGuidelines:      nonNil(result.ParentingGuidelines),
		Sources:                  nonNil(result.Sources),
		Disclaimer:               result.Disclaimer,
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
