package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/nurturenote/internal/analysis"
	"github.com/thebtf/nurturenote/internal/config"
	dbgorm "github.com/thebtf/nurturenote/internal/db/gorm"
	"github.com/thebtf/nurturenote/internal/llm"
	"github.com/thebtf/nurturenote/pkg/models"
)

// fakeStore is an in-memory EntryStore.
type fakeStore struct {
	mu        sync.Mutex
	entries   map[int64]*models.Entry
	nextID    int64
	lastLimit int
	lastDays  int
	persisted map[int64]models.NormalizedAnalysis
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries:   map[int64]*models.Entry{},
		persisted: map[int64]models.NormalizedAnalysis{},
	}
}

func (f *fakeStore) CreateEntry(_ context.Context, mood, body string) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	e := &models.Entry{EntrySnapshot: models.EntrySnapshot{
		ID: f.nextID, CreatedAt: "2025-05-10T18:30:15+09:00", Mood: mood, Body: body,
	}}
	f.entries[e.ID] = e
	return e, nil
}

func (f *fakeStore) GetEntry(_ context.Context, id int64) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, dbgorm.ErrNotFound
	}
	return e, nil
}

func (f *fakeStore) EntriesInRange(_ context.Context, days int) ([]*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDays = days
	out := make([]*models.Entry, 0, len(f.entries))
	for i := f.nextID; i > 0; i-- {
		if e, ok := f.entries[i]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRecent(ctx context.Context, limit int) ([]*models.Entry, error) {
	f.mu.Lock()
	f.lastLimit = limit
	f.mu.Unlock()
	all, _ := f.EntriesInRange(ctx, 0)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeStore) PersistAnalysis(_ context.Context, id int64, a models.NormalizedAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[id]; !ok {
		return dbgorm.ErrNotFound
	}
	f.persisted[id] = a
	return nil
}

// fakeAnalyzer records every request.
type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  []models.AnalysisRequest
	modes  []models.Mode
	result models.NormalizedAnalysis
	err    error
	empty  models.NormalizedAnalysis
}

func (f *fakeAnalyzer) Produce(_ context.Context, req models.AnalysisRequest, mode models.Mode) (models.NormalizedAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	f.modes = append(f.modes, mode)
	if f.err != nil {
		return models.NormalizedAnalysis{}, f.err
	}
	return f.result, nil
}

func (f *fakeAnalyzer) Empty() models.NormalizedAnalysis { return f.empty }

type HandlersSuite struct {
	suite.Suite
	store    *fakeStore
	analyzer *fakeAnalyzer
	svc      *Service
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) SetupTest() {
	s.store = newFakeStore()
	s.analyzer = &fakeAnalyzer{
		result: models.NormalizedAnalysis{
			MaternalFeedback:         []string{"잘하고 있어요"},
			ChildDevelopmentInsights: []string{},
			ParentingGuidelines:      []string{"Keep a routine"},
			Sources:                  []models.Source{{URL: "https://who.int"}},
			Disclaimer:               "d",
		},
		empty: models.EmptyAnalysis("d"),
	}
	s.svc = NewService(config.Default(), s.store, s.analyzer, "test-version")
	s.svc.now = func() time.Time { return time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC) }
}

func (s *HandlersSuite) TearDownTest() {
	s.svc.background.Wait()
	s.NoError(s.svc.Shutdown(context.Background()))
}

func (s *HandlersSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.svc.Handler().ServeHTTP(rec, req)
	return rec
}

func (s *HandlersSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *HandlersSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, rec.Code)

	body := s.decode(rec)
	s.Equal("ok", body["status"])
	s.Equal(config.AppName, body["app"])
	s.Equal("2025-05-10T09:00:00+09:00", body["time"])
}

func (s *HandlersSuite) TestCreateEntry_QueuesBackgroundAnalysis() {
	// Subscribe a stream client before the entry arrives.
	stream := httptest.NewRecorder()
	_, err := s.svc.sseBroadcaster.AddClient(stream)
	s.Require().NoError(err)

	rec := s.do(http.MethodPost, "/entries", `{"mood": "  tired ", "body": " up at 3am ", "use_web_search": true}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	body := s.decode(rec)
	s.Equal("tired", body["mood"])
	s.Equal("up at 3am", body["body"])
	s.Nil(body["analysis"])
	id := int64(body["id"].(float64))

	s.svc.background.Wait()

	s.Require().Len(s.analyzer.calls, 1)
	call := s.analyzer.calls[0]
	s.Equal(models.ModeBestEffort, s.analyzer.modes[0])
	s.Equal(analysis.SingleEntryQuestion, call.Question)
	s.Require().NotNil(call.WebSearchOverride)
	s.True(*call.WebSearchOverride)
	s.Equal("single_entry_async", call.Metadata["type"])
	s.Equal(id, call.Metadata["entry_id"])
	s.Require().Len(call.Entries, 1)
	s.Equal("up at 3am", call.Entries[0].Body)

	s.Equal(s.analyzer.result, s.store.persisted[id])
	s.Contains(stream.Body.String(), "event: entry_analyzed")
	s.Contains(stream.Body.String(), `"entry_id":1`)
}

func (s *HandlersSuite) TestCreateEntry_FailedAnalysisStoresEmpty() {
	s.analyzer.err = errors.New("boom")

	rec := s.do(http.MethodPost, "/entries", `{"mood": "ok", "body": "b"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.svc.background.Wait()

	s.Equal(models.EmptyAnalysis("d"), s.store.persisted[1])
	s.Nil(s.analyzer.calls[0].WebSearchOverride)
}

func (s *HandlersSuite) TestCreateEntry_Validation() {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"missing mood", `{"body": "b"}`, "mood"},
		{"blank body", `{"mood": "m", "body": "   "}`, "body"},
		{"mood too long", `{"mood": "` + strings.Repeat("가", 201) + `", "body": "b"}`, "max"},
		{"invalid json", `{"mood":`, "invalid JSON"},
		{"empty body", ``, "required"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(http.MethodPost, "/entries", tt.body)
			s.Equal(http.StatusUnprocessableEntity, rec.Code)
			s.Contains(s.decode(rec)["detail"], tt.detail)
		})
	}
	s.Empty(s.store.entries)
	s.Empty(s.analyzer.calls)
}

func (s *HandlersSuite) TestCreateEntry_Mood200RunesAccepted() {
	rec := s.do(http.MethodPost, "/entries", `{"mood": "`+strings.Repeat("가", 200)+`", "body": "b"}`)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlersSuite) TestListEntries() {
	for i := range 3 {
		_, err := s.store.CreateEntry(context.Background(), "m", fmt.Sprintf("b%d", i))
		s.Require().NoError(err)
	}

	tests := []struct {
		query     string
		wantLimit int
		wantCount int
	}{
		{"", DefaultListLimit, 3},
		{"?limit=2", 2, 2},
		{"?limit=500", DefaultListLimit, 3},
		{"?limit=nope", DefaultListLimit, 3},
	}
	for _, tt := range tests {
		rec := s.do(http.MethodGet, "/entries"+tt.query, "")
		s.Require().Equal(http.StatusOK, rec.Code)

		var got []map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		s.Len(got, tt.wantCount, "query %q", tt.query)
		s.Equal(tt.wantLimit, s.store.lastLimit, "query %q", tt.query)
		s.Equal("b2", got[0]["body"], "newest first")
	}
}

func (s *HandlersSuite) TestAnalyze_Defaults() {
	_, err := s.store.CreateEntry(context.Background(), "m", "b")
	s.Require().NoError(err)

	rec := s.do(http.MethodPost, "/analyze", ``)
	s.Require().Equal(http.StatusOK, rec.Code)

	body := s.decode(rec)
	s.Equal(map[string]any{"range_days": float64(14), "entry_count": float64(1)}, body["window"])
	s.Equal([]any{"잘하고 있어요"}, body["maternal_feedback"])
	s.Equal([]any{}, body["child_development_insights"])
	s.Equal("d", body["disclaimer"])

	s.Equal(14, s.store.lastDays)
	s.Require().Len(s.analyzer.calls, 1)
	s.Equal(models.ModeStrict, s.analyzer.modes[0])
	call := s.analyzer.calls[0]
	s.Empty(call.Question)
	s.Nil(call.WebSearchOverride)
	s.Equal("window_analysis", call.Metadata["type"])
	s.Equal(1, call.Metadata["entry_count"])
}

func (s *HandlersSuite) TestAnalyze_WithOptions() {
	rec := s.do(http.MethodPost, "/analyze", `{"range_days": 30, "question": "잠은?", "use_web_search": false}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	s.Equal(30, s.store.lastDays)
	call := s.analyzer.calls[0]
	s.Equal("잠은?", call.Question)
	s.Require().NotNil(call.WebSearchOverride)
	s.False(*call.WebSearchOverride)
	s.Equal(30, call.Metadata["range_days"])
}

func (s *HandlersSuite) TestAnalyze_Errors() {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"range too small", `{"range_days": 0}`, nil, http.StatusUnprocessableEntity},
		{"range too large", `{"range_days": 91}`, nil, http.StatusUnprocessableEntity},
		{"question too long", `{"question": "` + strings.Repeat("a", 501) + `"}`, nil, http.StatusUnprocessableEntity},
		{"configuration", `{}`, fmt.Errorf("produce analysis: %w", &llm.Error{Kind: llm.ErrConfiguration, Op: "client"}), http.StatusInternalServerError},
		{"upstream", `{}`, fmt.Errorf("produce analysis: %w", &llm.Error{Kind: llm.ErrUpstream, Op: "responses"}), http.StatusBadGateway},
		{"run not completed", `{}`, &llm.Error{Kind: llm.ErrRunNotCompleted, Op: "poll"}, http.StatusBadGateway},
		{"malformed json", `{}`, &llm.Error{Kind: llm.ErrMalformedJSON, Op: "parse"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.analyzer.err = tt.err
			rec := s.do(http.MethodPost, "/analyze", tt.body)
			s.Equal(tt.wantStatus, rec.Code)
			s.NotEmpty(s.decode(rec)["detail"])
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&validationError{msg: "x"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("get: %w", dbgorm.ErrNotFound), http.StatusNotFound},
		{&llm.Error{Kind: llm.ErrConfiguration}, http.StatusInternalServerError},
		{&llm.Error{Kind: llm.ErrPollTimeout}, http.StatusBadGateway},
		{&llm.Error{Kind: llm.ErrEmptyOutput}, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "error %v", tt.err)
	}
}

func TestEvents_Route(t *testing.T) {
	svc := NewService(config.Default(), newFakeStore(), &fakeAnalyzer{}, "test")
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return svc.sseBroadcaster.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
}
