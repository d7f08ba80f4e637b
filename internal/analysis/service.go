// Package analysis orchestrates one analysis call: prompt building, protocol
// selection with fallback, normalization and audit recording.
package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/nurturenote/internal/llm"
	"github.com/thebtf/nurturenote/internal/normalize"
	"github.com/thebtf/nurturenote/pkg/models"
)

// Engine names recorded in metadata.
const (
	EngineSingleShot  = "single-shot"
	EngineThreadedRun = "threaded-run"
)

// Metadata keys set by the orchestrator.
const (
	MetaEngine            = "engine"
	MetaWebSearchEnabled  = "web_search_enabled"
	MetaWebSearchOverride = "user_web_search_override"
	MetaAllowedDomains    = "allowed_domains"
	MetaFallback          = "fallback_from_single_shot"
	MetaFallbackReason    = "fallback_reason"
	MetaSchemaVersion     = "schema_version"
	MetaPromptTokens      = "prompt_tokens"
	MetaAnnotationSources = "annotation_sources"
	MetaMode              = "mode"
)

// SingleShotCaller issues one Responses call carrying file and web search.
type SingleShotCaller interface {
	Call(ctx context.Context, system, user string, allowedDomains []string) (models.RawModelOutput, error)
}

// ThreadedCaller runs an assistant thread to completion.
type ThreadedCaller interface {
	Call(ctx context.Context, system, user string) (models.RawModelOutput, error)
}

// Auditor records exchanges. Build must capture its inputs so Save can run later.
type Auditor interface {
	Build(entries []models.EntrySnapshot, question string, payload any, metadata map[string]any) models.AuditRecord
	Save(rec models.AuditRecord) bool
}

// Config holds orchestrator settings.
type Config struct {
	AllowedDomains []string
	Disclaimer     string
	WebSearch      bool // default when a request carries no override
}

// Service produces normalized analyses from diary entries.
type Service struct {
	single     SingleShotCaller
	threaded   ThreadedCaller
	auditor    Auditor
	normalizer *normalize.Normalizer
	metrics    *Metrics
	tokens     *TokenCounter
	cfg        Config
	pending    sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTokenCounter sets the prompt token counter.
func WithTokenCounter(c *TokenCounter) Option {
	return func(s *Service) { s.tokens = c }
}

// NewService creates a Service over the two protocol clients.
func NewService(cfg Config, single SingleShotCaller, threaded ThreadedCaller, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		single:     single,
		threaded:   threaded,
		auditor:    auditor,
		normalizer: normalize.New(cfg.Disclaimer),
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Empty returns the canonical empty result.
func (s *Service) Empty() models.NormalizedAnalysis {
	return s.normalizer.Normalize(nil, nil)
}

// attempt is one protocol invocation.
type attempt func(ctx context.Context) (models.RawModelOutput, error)

// orElse runs primary and, when it fails with an upstream-family error, runs
// fallback exactly once. Configuration errors never fall back.
func orElse(primary, fallback attempt, onFallback func(error)) attempt {
	return func(ctx context.Context) (models.RawModelOutput, error) {
		out, err := primary(ctx)
		if err == nil || !llm.IsUpstream(err) {
			return out, err
		}
		if onFallback != nil {
			onFallback(err)
		}
		return fallback(ctx)
	}
}

// Produce runs the pipeline for req.
//
// An empty entry list returns the empty result with no upstream call and no
// audit record. In ModeBestEffort every failure degrades to the empty result
// and a warning; in ModeStrict it is returned.
func (s *Service) Produce(ctx context.Context, req models.AnalysisRequest, mode models.Mode) (models.NormalizedAnalysis, error) {
	if len(req.Entries) == 0 {
		log.Info().Msg("No entries available for analysis")
		return s.Empty(), nil
	}

	question := Question(req.Question)
	system := BuildSystemPrompt()
	user := BuildUserPrompt(req.Entries, question)

	useWeb := s.cfg.WebSearch
	if req.WebSearchOverride != nil {
		useWeb = *req.WebSearchOverride
	}

	log.Info().
		Int("entries", len(req.Entries)).
		Bool("web_search", useWeb).
		Str("mode", mode.String()).
		Msg("Requesting analysis")

	// 1. Call upstream
	var fallbackReason error
	call := s.threadedAttempt(system, user)
	if useWeb {
		call = orElse(s.singleShotAttempt(system, user), call, func(err error) {
			fallbackReason = err
			s.metrics.recordFallback(ctx)
			log.Warn().Err(err).Msg("Single-shot path failed, falling back to threaded run")
		})
	}

	start := time.Now()
	out, err := call(ctx)
	engine, _ := out.Metadata[MetaEngine].(string)
	if err != nil {
		if engine == "" {
			engine = EngineThreadedRun
		}
		return s.fail(ctx, err, mode, engine, time.Since(start))
	}
	s.metrics.recordRequest(ctx, engine, outcomeSuccess, time.Since(start))

	// 2. Normalize
	schema := normalize.DetectSchema(out.Payload)
	if schema == normalize.SchemaMixed {
		log.Warn().Str("engine", engine).Msg("Model payload mixes canonical and legacy keys")
	}
	result := s.normalizer.Normalize(out.Payload, out.Annotations)

	// 3. Record
	meta := make(map[string]any, len(req.Metadata)+len(out.Metadata)+6)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	for k, v := range out.Metadata {
		meta[k] = v
	}
	if req.WebSearchOverride != nil {
		meta[MetaWebSearchOverride] = *req.WebSearchOverride
	}
	if fallbackReason != nil {
		meta[MetaFallback] = true
		meta[MetaFallbackReason] = fallbackReason.Error()
	}
	meta[MetaSchemaVersion] = string(schema)
	meta[MetaMode] = mode.String()
	if s.tokens != nil {
		meta[MetaPromptTokens] = s.tokens.Count(system, user)
	}
	if len(out.Annotations) > 0 {
		meta[MetaAnnotationSources] = out.Annotations
	}
	s.recordAsync(ctx, req.Entries, question, out.Payload, meta)

	return result, nil
}

func (s *Service) fail(ctx context.Context, err error, mode models.Mode, engine string, elapsed time.Duration) (models.NormalizedAnalysis, error) {
	if mode == models.ModeBestEffort {
		s.metrics.recordRequest(ctx, engine, outcomeDegraded, elapsed)
		log.Warn().Err(err).Msg("Analysis skipped due to upstream error")
		return s.Empty(), nil
	}
	s.metrics.recordRequest(ctx, engine, outcomeError, elapsed)
	log.Error().Err(err).Str("engine", engine).Msg("Analysis failed")
	return models.NormalizedAnalysis{}, fmt.Errorf("produce analysis: %w", err)
}

func (s *Service) singleShotAttempt(system, user string) attempt {
	domains := append([]string(nil), s.cfg.AllowedDomains...)
	return func(ctx context.Context) (models.RawModelOutput, error) {
		out, err := s.single.Call(ctx, system, user, domains)
		out.Metadata = withEngine(out.Metadata, EngineSingleShot, true)
		out.Metadata[MetaAllowedDomains] = domains
		return out, err
	}
}

func (s *Service) threadedAttempt(system, user string) attempt {
	return func(ctx context.Context) (models.RawModelOutput, error) {
		out, err := s.threaded.Call(ctx, system, user)
		out.Metadata = withEngine(out.Metadata, EngineThreadedRun, false)
		return out, err
	}
}

func withEngine(meta map[string]any, engine string, webSearch bool) map[string]any {
	out := make(map[string]any, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}
	out[MetaEngine] = engine
	out[MetaWebSearchEnabled] = webSearch
	return out
}

// recordAsync captures the exchange now and writes it in the background.
func (s *Service) recordAsync(ctx context.Context, entries []models.EntrySnapshot, question string, payload any, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	rec := s.auditor.Build(entries, question, payload, meta)
	ctx = context.WithoutCancel(ctx)
	s.pending.Go(func() {
		if !s.auditor.Save(rec) {
			s.metrics.recordAuditFailure(ctx)
		}
	})
}

// Wait blocks until background audit writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}
