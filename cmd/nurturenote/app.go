package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/nurturenote/internal/analysis"
	"github.com/thebtf/nurturenote/internal/audit"
	"github.com/thebtf/nurturenote/internal/config"
	dbgorm "github.com/thebtf/nurturenote/internal/db/gorm"
	"github.com/thebtf/nurturenote/internal/domains"
	"github.com/thebtf/nurturenote/internal/llm"
	"github.com/thebtf/nurturenote/internal/logging"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	db       *dbgorm.Store
	entries  *dbgorm.EntryStore
	analyzer *analysis.Service
	logFile  io.Closer
}

// newApp loads configuration, installs logging, opens the database and
// builds the analysis pipeline.
func newApp(debug bool) (*app, error) {
	if err := config.EnsureAll(); err != nil {
		return nil, fmt.Errorf("ensure data directories: %w", err)
	}

	cfg := config.Get()

	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	logFile, err := logging.Setup(logging.Options{
		Dir:      config.LogDir(),
		Level:    level,
		Location: cfg.Location(),
	})
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	store, err := dbgorm.NewStore(dbgorm.Config{
		Path:     config.DBPath(),
		DSN:      cfg.DatabaseURL,
		MaxConns: 4,
	})
	if err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	registry, err := domains.Load(cfg.DomainsFile)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.DomainsFile).Msg("Failed to load domain registry, using configured domains only")
		registry, _ = domains.Load("")
	}
	for _, host := range registry.Sorted() {
		d, _ := registry.Get(host)
		log.Debug().Str("host", host).Str("description", d.Description).Msg("Allowed domain from registry")
	}
	allowed := registry.Merge(cfg.AllowedDomains)

	provider := llm.NewProvider(llm.Options{
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		Model:           cfg.Model,
		VectorStoreID:   cfg.VectorStoreID,
		AssistantID:     cfg.AssistantID,
		AssistantIDFile: config.AssistantIDFile(),
		RequestTimeout:  cfg.HTTPTimeout(),
		PollInterval:    cfg.PollInterval(),
		PollTimeout:     cfg.PollTimeout(),
		IgnoreProxyEnv:  cfg.IgnoreProxyEnv,
	})

	recorder := audit.NewRecorder(audit.Config{
		Dir:              config.ResponsesDir(),
		ModelName:        cfg.Model,
		KnowledgeStoreID: cfg.VectorStoreID,
		Location:         cfg.Location(),
	})

	opts := []analysis.Option{analysis.WithTokenCounter(analysis.NewTokenCounter())}
	if metrics, err := analysis.NewMetrics(nil); err != nil {
		log.Warn().Err(err).Msg("Analysis metrics disabled")
	} else {
		opts = append(opts, analysis.WithMetrics(metrics))
	}

	analyzer := analysis.NewService(analysis.Config{
		AllowedDomains: allowed,
		Disclaimer:     cfg.Disclaimer,
		WebSearch:      cfg.WebSearch,
	}, llm.NewSingleShot(provider), llm.NewThreadedRun(provider), recorder, opts...)

	log.Debug().
		Str("model", cfg.Model).
		Bool("web_search", cfg.WebSearch).
		Int("allowed_domains", len(allowed)).
		Str("dialect", store.Dialect()).
		Msg("Components wired")

	return &app{
		cfg:      cfg,
		db:       store,
		entries:  dbgorm.NewEntryStore(store, cfg.Location(), cfg.Disclaimer),
		analyzer: analyzer,
		logFile:  logFile,
	}, nil
}

// Close flushes pending audit writes and releases the database and log file.
func (a *app) Close() {
	a.analyzer.Wait()
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
	_ = a.logFile.Close()
}
