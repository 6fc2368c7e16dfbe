// Package runtime assembles the workflow engine and its collaborators from
// configuration. Both binaries build their engine through New.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jeeves-cluster-organization/assistant/commbus"
	"github.com/jeeves-cluster-organization/assistant/coreengine/capabilities"
	"github.com/jeeves-cluster-organization/assistant/coreengine/config"
	"github.com/jeeves-cluster-organization/assistant/coreengine/corpus"
	"github.com/jeeves-cluster-organization/assistant/coreengine/graph"
	"github.com/jeeves-cluster-organization/assistant/coreengine/llm"
	"github.com/jeeves-cluster-organization/assistant/coreengine/memory"
	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"github.com/jeeves-cluster-organization/assistant/coreengine/session"
	"github.com/jeeves-cluster-organization/assistant/coreengine/speech"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
)

// Runtime holds a fully wired engine.
type Runtime struct {
	Config       *config.Config
	Logger       observability.Logger
	Orchestrator *graph.Orchestrator
	Tracker      *session.Tracker
	Bus          *commbus.InMemoryCommBus
	Corpus       *corpus.MemoryStore
	// Memory is nil when conversation memory is disabled.
	Memory memory.Store

	closers []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	provider   llm.Provider
	httpClient *http.Client
	clock      func() time.Time
}

// WithLLMProvider replaces the Ollama provider.
func WithLLMProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithHTTPClient sets the client used for Ollama and the speech server.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClock overrides time.Now for the tracker and orchestrator.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// New builds the engine. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, logger observability.Logger, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	o := &options{clock: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	r := &Runtime{Config: cfg, Logger: logger}

	mem, err := r.openMemory(ctx)
	if err != nil {
		return nil, err
	}
	r.Memory = mem

	r.Corpus = corpus.NewMemoryStore(cfg.Corpus.ChunkSize, cfg.Corpus.ChunkOverlap)
	reader := corpus.NewFileReader(cfg.Corpus.MaxFileSize)
	r.seedCorpus(ctx, reader)

	provider := o.provider
	if provider == nil {
		provider = llm.NewOllamaProvider(llm.OllamaConfig{
			BaseURL:           cfg.LLM.Host,
			Model:             cfg.LLM.Model,
			Temperature:       cfg.LLM.Temperature,
			MaxTokens:         cfg.LLM.MaxTokens,
			Timeout:           time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
			Burst:             cfg.LLM.Burst,
		}, o.httpClient, logger)
	}

	// Interface-typed so a disabled capability stays an untyped nil.
	var transcriber stages.Transcriber
	var synthesizer stages.Synthesizer
	speechCfg := speech.Config{
		BaseURL:  cfg.Speech.BaseURL,
		STTModel: cfg.Speech.WhisperModel,
		TTSModel: cfg.Speech.TTSModel,
		Voice:    cfg.Speech.Voice,
		AudioDir: cfg.Speech.AudioDir,
		Timeout:  time.Duration(cfg.Speech.TimeoutSeconds) * time.Second,
	}
	if cfg.Speech.STTEnabled {
		transcriber = speech.NewTranscriber(speechCfg, o.httpClient, logger)
	}
	if cfg.Speech.TTSEnabled {
		synthesizer = speech.NewSynthesizer(speechCfg, o.httpClient, logger)
	}

	caps := capabilities.New(provider, r.Corpus, transcriber, synthesizer, capabilities.Options{
		Temperature:          cfg.LLM.Temperature,
		MaxTokens:            cfg.LLM.MaxTokens,
		VisionModel:          cfg.LLM.VisionModel,
		ImprovementThreshold: cfg.Workflow.ImprovementThreshold,
	})
	stageSet := stages.NewSet(caps, stages.Options{
		Timeout:  cfg.StageTimeout(),
		Timeouts: cfg.StageTimeoutOverrides(),
		Logger:   logger,
		Clock:    o.clock,
	})

	r.Bus = commbus.NewInMemoryCommBus(logger)
	r.Bus.AddMiddleware(commbus.NewLoggingMiddleware(logger))
	if err := r.connectEvents(); err != nil {
		_ = r.Close()
		return nil, err
	}

	r.Tracker = session.NewTracker(logger, o.clock)

	r.Orchestrator, err = graph.NewOrchestrator(graph.Dependencies{
		Stages:  stageSet,
		Tracker: r.Tracker,
		Corpus:  r.Corpus,
		Reader:  reader,
		Memory:  mem,
		Events:  r.Bus,
		Logger:  logger,
	}, graph.Options{
		Gate: graph.RetryGate{
			RetryLimit:           cfg.Workflow.RetryLimit,
			CritiqueAttemptLimit: cfg.Workflow.CritiqueAttemptLimit,
		},
		SummaryTargetLength: cfg.Workflow.SummaryTargetLength,
		RetrieveLimit:       cfg.Workflow.RetrieveLimit,
		HistoryLimit:        cfg.Memory.HistoryLimit,
		MaxHops:             cfg.Workflow.MaxHops,
		Clock:               o.clock,
	})
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	logger.Info("runtime_ready",
		"model", cfg.LLM.Model,
		"memory", cfg.Memory.Type,
		"stt", cfg.Speech.STTEnabled,
		"tts", cfg.Speech.TTSEnabled,
		"events_forwarded", cfg.Events.NATSURL != "",
	)
	return r, nil
}

// openMemory returns nil for MemoryTypeNone.
func (r *Runtime) openMemory(ctx context.Context) (memory.Store, error) {
	cfg := r.Config.Memory
	ttl := time.Duration(cfg.TTLSeconds) * time.Second

	switch cfg.Type {
	case config.MemoryTypeRedis:
		client, err := memory.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, client.Close)
		return memory.NewRedisStore(client, ttl, cfg.MaxEntries), nil
	case config.MemoryTypeMemory:
		return memory.NewCacheStore(ttl, cfg.MaxEntries), nil
	default:
		return nil, nil
	}
}

// seedCorpus ingests configured documents. Failures are logged and skipped.
func (r *Runtime) seedCorpus(ctx context.Context, reader *corpus.FileReader) {
	for _, path := range r.Config.Corpus.SeedPaths {
		text, err := reader.Read(ctx, path)
		if err == nil {
			var chunks int
			chunks, err = r.Corpus.AddDocument(ctx, path, text)
			if err == nil {
				r.Logger.Info("corpus_seeded", "source", path, "chunks", chunks)
				continue
			}
		}
		r.Logger.Warn("corpus_seed_failed", "source", path, "error", err.Error())
	}
}

func (r *Runtime) connectEvents() error {
	cfg := r.Config.Events
	if cfg.NATSURL == "" {
		return nil
	}
	nc, err := commbus.ConnectNATS(cfg.NATSURL, r.Logger)
	if err != nil {
		return err
	}
	unsubscribe := commbus.NewNATSForwarder(nc, cfg.SubjectPrefix, r.Logger).Attach(r.Bus)
	r.closers = append(r.closers,
		func() error { unsubscribe(); return nil },
		nc.Drain,
	)
	return nil
}

// StartCleanup starts the session eviction loop and returns its stop func.
func (r *Runtime) StartCleanup() func() {
	return r.Tracker.StartCleanupLoop(session.CleanupConfig{
		Interval: r.Config.CleanupInterval(),
		Timeout:  r.Config.SessionTimeout(),
	})
}

// Close releases connections in reverse order of opening.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
