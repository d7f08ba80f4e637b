// Package worker provides the HTTP service for nurturenote: entry intake,
// window analysis and the event stream.
package worker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/nurturenote/internal/config"
	"github.com/thebtf/nurturenote/internal/worker/sse"
	"github.com/thebtf/nurturenote/pkg/models"
)

// EntryStore is the storage the worker reads and writes.
type EntryStore interface {
	CreateEntry(ctx context.Context, mood, body string) (*models.Entry, error)
	GetEntry(ctx context.Context, id int64) (*models.Entry, error)
	EntriesInRange(ctx context.Context, days int) ([]*models.Entry, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Entry, error)
	PersistAnalysis(ctx context.Context, id int64, analysis models.NormalizedAnalysis) error
}

// Analyzer produces analyses.
type Analyzer interface {
	Produce(ctx context.Context, req models.AnalysisRequest, mode models.Mode) (models.NormalizedAnalysis, error)
	Empty() models.NormalizedAnalysis
}

// Service is the worker HTTP service.
type Service struct {
	version        string
	config         *config.Config
	store          EntryStore
	analyzer       Analyzer
	sseBroadcaster *sse.Broadcaster
	validate       *validator.Validate
	router         chi.Router
	server         *http.Server
	ctx            context.Context
	cancel         context.CancelFunc
	background     sync.WaitGroup
	now            func() time.Time
}

// NewService wires the router over store and analyzer.
func NewService(cfg *config.Config, store EntryStore, analyzer Analyzer, version string) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		version:        version,
		config:         cfg,
		store:          store,
		analyzer:       analyzer,
		sseBroadcaster: sse.NewBroadcaster(),
		validate:       newValidator(),
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		now:            time.Now,
	}
	svc.setupRoutes()
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Get("/health", s.handleHealth)
	s.router.Post("/entries", s.handleCreateEntry)
	s.router.Get("/entries", s.handleListEntries)
	s.router.Post("/analyze", s.handleAnalyze)
	s.router.Get("/events", s.sseBroadcaster.HandleSSE)
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Start serves on the configured port until Shutdown is called.
func (s *Service) Start() error {
	addr := net.JoinHostPort("", strconv.Itoa(s.config.Port))
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.server.RegisterOnShutdown(s.sseBroadcaster.CloseAll)

	log.Info().Str("addr", addr).Str("version", s.version).Msg("Worker listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and waits for background analyses, bounded by ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Shutdown deadline reached with background analyses still running")
	}
	s.cancel()
	return err
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
