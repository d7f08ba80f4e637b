package gorm

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/thebtf/nurturenote/pkg/models"
)

type EntryStoreSuite struct {
	suite.Suite
	store   *Store
	entries *EntryStore
	clock   time.Time
	ctx     context.Context
}

func TestEntryStoreSuite(t *testing.T) {
	suite.Run(t, new(EntryStoreSuite))
}

func (s *EntryStoreSuite) SetupTest() {
	var err error
	s.store, err = NewStore(Config{
		Path:     filepath.Join(s.T().TempDir(), "entries.db"),
		LogLevel: logger.Silent,
	})
	s.Require().NoError(err)

	s.clock = time.Date(2025, 5, 10, 9, 30, 15, 0, time.UTC)
	s.entries = NewEntryStore(s.store, time.FixedZone("KST", 9*60*60), "custom disclaimer")
	s.entries.now = func() time.Time { return s.clock }
	s.ctx = context.Background()
}

func (s *EntryStoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

// at creates an entry as if written at t.
func (s *EntryStoreSuite) at(t time.Time, mood, body string) *models.Entry {
	prev := s.clock
	s.clock = t
	defer func() { s.clock = prev }()
	e, err := s.entries.CreateEntry(s.ctx, mood, body)
	s.Require().NoError(err)
	return e
}

func (s *EntryStoreSuite) TestCreateEntry() {
	e, err := s.entries.CreateEntry(s.ctx, "calm", "first smile")
	s.Require().NoError(err)

	s.Positive(e.ID)
	s.Equal("2025-05-10T18:30:15+09:00", e.CreatedAt)
	s.Equal("calm", e.Mood)
	s.Equal("first smile", e.Body)
	s.Nil(e.Analysis)
}

func (s *EntryStoreSuite) TestGetEntry_NotFound() {
	_, err := s.entries.GetEntry(s.ctx, 999)
	s.ErrorIs(err, ErrNotFound)
}

func (s *EntryStoreSuite) TestPersistAnalysis_RoundTrip() {
	e := s.at(s.clock, "calm", "b")
	analysis := models.NormalizedAnalysis{
		MaternalFeedback:    []string{"잘하고 있어요"},
		ParentingGuidelines: []string{"Keep a routine"},
		Sources:             []models.Source{{URL: "https://who.int", Title: "WHO"}},
		Disclaimer:          "d",
	}
	s.Require().NoError(s.entries.PersistAnalysis(s.ctx, e.ID, analysis))

	got, err := s.entries.GetEntry(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.Analysis)
	s.Equal([]string{"잘하고 있어요"}, got.Analysis.MaternalFeedback)
	s.Equal([]string{}, got.Analysis.ChildDevelopmentInsights)
	s.Equal(analysis.Sources, got.Analysis.Sources)
	s.Equal("d", got.Analysis.Disclaimer)
}

func (s *EntryStoreSuite) TestPersistAnalysis_EmptyUsesDefaultDisclaimerOnRead() {
	e := s.at(s.clock, "calm", "b")
	s.Require().NoError(s.store.DB.Model(&Entry{}).Where("id = ?", e.ID).
		Update("analysis_json", `{"advice": ["rest"]}`).Error)

	got, err := s.entries.GetEntry(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.Analysis)
	s.Equal([]string{"rest"}, got.Analysis.ParentingGuidelines)
	s.Equal("custom disclaimer", got.Analysis.Disclaimer)
}

func (s *EntryStoreSuite) TestPersistAnalysis_MissingEntry() {
	err := s.entries.PersistAnalysis(s.ctx, 42, models.EmptyAnalysis("d"))
	s.ErrorIs(err, ErrNotFound)
}

func (s *EntryStoreSuite) TestCorruptBlobReadsAsNoAnalysis() {
	e := s.at(s.clock, "calm", "b")
	s.Require().NoError(s.store.DB.Model(&Entry{}).Where("id = ?", e.ID).
		Update("analysis_json", "{not json").Error)

	got, err := s.entries.GetEntry(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Nil(got.Analysis)
}

func (s *EntryStoreSuite) TestEntriesInRange() {
	day := 24 * time.Hour
	old := s.at(s.clock.Add(-20*day), "old", "outside")
	mid := s.at(s.clock.Add(-5*day), "mid", "inside")
	recent := s.at(s.clock.Add(-time.Hour), "new", "inside")

	got, err := s.entries.EntriesInRange(s.ctx, 14)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(recent.ID, got[0].ID)
	s.Equal(mid.ID, got[1].ID)

	got, err = s.entries.EntriesInRange(s.ctx, 30)
	s.Require().NoError(err)
	s.Len(got, 3)
	s.Equal(old.ID, got[2].ID)

	_, err = s.entries.EntriesInRange(s.ctx, 0)
	s.Error(err)
}

func (s *EntryStoreSuite) TestListRecent() {
	for i := range 5 {
		s.at(s.clock.Add(time.Duration(i)*time.Minute), "m", "b")
	}

	got, err := s.entries.ListRecent(s.ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Greater(got[0].ID, got[1].ID)
	s.Greater(got[1].ID, got[2].ID)
	s.Equal(models.Snapshots(got)[0].ID, got[0].ID)
}

func TestParseLimitParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=100", 100},
		{"limit=101", 20},
		{"limit=0", 20},
		{"limit=-3", 20},
		{"limit=abc", 20},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/entries?"+tt.query, nil)
		assert.Equal(t, tt.want, ParseLimitParam(r, 20, 100), "query %q", tt.query)
	}
}
