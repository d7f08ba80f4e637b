// Package gorm provides GORM-based database operations for nurturenote.
package gorm

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/gorm/logger"
)

func TestNewStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "gorm_test_*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := Config{
		Path:     filepath.Join(tmpDir, "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	}

	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if store.Dialect() != DialectSQLite {
		t.Errorf("expected sqlite dialect, got %q", store.Dialect())
	}

	// Verify WAL mode is enabled
	var journalMode string
	if err := store.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error; err != nil {
		t.Fatalf("query journal_mode failed: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected WAL mode, got %q", journalMode)
	}

	var busyTimeout int
	if err := store.DB.Raw("PRAGMA busy_timeout").Scan(&busyTimeout).Error; err != nil {
		t.Fatalf("query busy_timeout failed: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("expected busy_timeout 5000, got %d", busyTimeout)
	}

	if !store.DB.Migrator().HasTable("entries") {
		t.Errorf("table entries does not exist")
	}
	for _, column := range []string{"analysis_json", "created_at_epoch"} {
		if !store.DB.Migrator().HasColumn(&Entry{}, column) {
			t.Errorf("column %q does not exist", column)
		}
	}
}

func TestMigrationIdempotency(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "gorm_idempotency_*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := Config{
		Path:     filepath.Join(tmpDir, "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	}

	store1, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore (first) failed: %v", err)
	}
	if err := store1.DB.Create(&Entry{CreatedAt: "2025-01-01T09:00:00+09:00", Mood: "calm", Body: "b"}).Error; err != nil {
		t.Fatalf("create entry: %v", err)
	}
	store1.Close()

	store2, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore (second) failed: %v", err)
	}
	defer store2.Close()

	var count int64
	store2.DB.Model(&Entry{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 entry after second migration, got %d", count)
	}
}

// TestLegacyDatabase opens a file created by the earlier schema, which had
// no epoch column.
func TestLegacyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	raw, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	stmts := []string{
		`CREATE TABLE entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			mood TEXT NOT NULL,
			body TEXT NOT NULL,
			analysis_json TEXT
		)`,
		`INSERT INTO entries (created_at, mood, body, analysis_json) VALUES
			('2025-03-01T08:00:00+09:00', 'tired', 'old', '{"observations": ["slept late"], "advice": "nap"}'),
			('2025-03-02T08:00:00+09:00', 'happy', 'newer', NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := raw.Exec(stmt); err != nil {
			t.Fatalf("seed legacy schema: %v", err)
		}
	}
	raw.Close()

	store, err := NewStore(Config{Path: dbPath, LogLevel: logger.Silent})
	if err != nil {
		t.Fatalf("NewStore on legacy file failed: %v", err)
	}
	defer store.Close()

	var rows []Entry
	if err := store.DB.Order("created_at_epoch DESC").Find(&rows).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Body != "newer" || rows[0].CreatedAtEpoch == 0 || rows[1].CreatedAtEpoch == 0 {
		t.Errorf("epochs not backfilled: %+v", rows)
	}

	entries := NewEntryStore(store, nil, "")
	got, err := entries.GetEntry(t.Context(), rows[1].ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got.Analysis == nil {
		t.Fatalf("expected legacy analysis to be decoded")
	}
	if len(got.Analysis.MaternalFeedback) != 1 || got.Analysis.ParentingGuidelines[0] != "nap" {
		t.Errorf("legacy analysis not normalized: %+v", got.Analysis)
	}
}

func TestIsPostgres(t *testing.T) {
	tests := map[string]bool{
		"postgres://u:p@localhost/db":   true,
		"postgresql://localhost/db":     true,
		"":                              false,
		"/var/lib/nurturenote/app.db":   false,
		"sqlite:///tmp/x.db":            false,
		"postgres-but-not-a-url.sqlite": false,
	}
	for dsn, want := range tests {
		if got := IsPostgres(dsn); got != want {
			t.Errorf("IsPostgres(%q) = %v, want %v", dsn, got, want)
		}
	}
}
