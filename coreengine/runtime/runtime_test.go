package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/assistant/commbus"
	"github.com/jeeves-cluster-organization/assistant/coreengine/config"
	"github.com/jeeves-cluster-organization/assistant/coreengine/memory"
	"github.com/jeeves-cluster-organization/assistant/coreengine/session"
	"github.com/jeeves-cluster-organization/assistant/coreengine/state"
	"github.com/jeeves-cluster-organization/assistant/coreengine/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Speech.TTSEnabled = false
	cfg.Speech.STTEnabled = false
	cfg.Memory.Type = config.MemoryTypeNone
	cfg.Speech.AudioDir = t.TempDir()
	return cfg
}

func newRuntime(t *testing.T, cfg *config.Config, opts ...Option) (*Runtime, *testutil.MockLogger) {
	t.Helper()
	logger := testutil.NewMockLogger()
	if len(opts) == 0 {
		opts = []Option{WithLLMProvider(testutil.NewMockLLMProvider().WithResponse("Classify", "research 0.9"))}
	}
	r, err := New(context.Background(), cfg, logger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, logger
}

func TestNew_MemoryDisabled(t *testing.T) {
	r, logger := newRuntime(t, testConfig(t))

	assert.Nil(t, r.Memory)
	assert.NotNil(t, r.Orchestrator)
	assert.NotNil(t, r.Tracker)
	assert.True(t, logger.HasLog("info", "runtime_ready"))

	s, err := r.Orchestrator.Process(context.Background(), state.Request{Query: "What is Go?", SessionID: "s-1"})
	require.NoError(t, err)
	require.NotNil(t, s.FinalResult)
	assert.NotEmpty(t, s.FinalResult.Summary)

	snap, ok := r.Tracker.GetStatus("s-1")
	require.True(t, ok)
	assert.Equal(t, session.StatusCompleted, snap.Status)
}

func TestNew_SpeechDisabledDegradesTTS(t *testing.T) {
	r, _ := newRuntime(t, testConfig(t))

	s, err := r.Orchestrator.Process(context.Background(), state.Request{Query: "read this aloud", EnableTTS: true})
	require.NoError(t, err)
	require.NotNil(t, s.FinalResult)
	assert.False(t, s.AudioGenerated)
	assert.Nil(t, s.AudioFile)
}

func TestNew_CacheMemoryRecordsExchanges(t *testing.T) {
	cfg := testConfig(t)
	cfg.Memory.Type = config.MemoryTypeMemory
	r, _ := newRuntime(t, cfg)
	require.IsType(t, &memory.CacheStore{}, r.Memory)

	_, err := r.Orchestrator.Process(context.Background(), state.Request{Query: "first", SessionID: "conv"})
	require.NoError(t, err)

	history, err := r.Memory.History(context.Background(), "conv", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Query)
}

func TestNew_RedisMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Memory.Type = config.MemoryTypeRedis
	cfg.Memory.RedisURL = "redis://" + mr.Addr()

	r, _ := newRuntime(t, cfg)
	require.IsType(t, &memory.RedisStore{}, r.Memory)

	_, err := r.Orchestrator.Process(context.Background(), state.Request{Query: "remember me", SessionID: "r1"})
	require.NoError(t, err)

	history, err := r.Memory.History(context.Background(), "r1", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "remember me", history[0].Query)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestNew_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Memory.Type = config.MemoryTypeRedis
	cfg.Memory.RedisURL = "not-a-url"

	_, err := New(context.Background(), cfg, testutil.NewMockLogger(),
		WithLLMProvider(testutil.NewMockLLMProvider()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestNew_SeedsCorpus(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Goroutines are lightweight threads managed by the Go runtime."), 0o600))

	cfg := testConfig(t)
	cfg.Corpus.SeedPaths = []string{doc, filepath.Join(dir, "missing.txt")}
	r, logger := newRuntime(t, cfg)

	stats, err := r.Corpus.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sources)
	assert.True(t, logger.HasLog("info", "corpus_seeded"))
	assert.True(t, logger.HasLog("warn", "corpus_seed_failed"))
}

func TestNew_OllamaProvider(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   req.Model,
			"done":    true,
			"message": map[string]string{"role": "assistant", "content": "general 0.8"},
		})
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t)
	cfg.LLM.Host = srv.URL
	r, _ := newRuntime(t, cfg, WithHTTPClient(srv.Client()))

	s, err := r.Orchestrator.Process(context.Background(), state.Request{Query: "hello"})
	require.NoError(t, err)
	require.NotNil(t, s.FinalResult)
	assert.Positive(t, calls.Load())
}

func TestNew_EventsReachBus(t *testing.T) {
	r, _ := newRuntime(t, testConfig(t))

	var completed atomic.Int32
	r.Bus.Subscribe("WorkflowCompleted", func(context.Context, commbus.Message) error {
		completed.Add(1)
		return nil
	})

	_, err := r.Orchestrator.Process(context.Background(), state.Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), completed.Load())
}

func TestStartCleanup(t *testing.T) {
	r, _ := newRuntime(t, testConfig(t))
	stop := r.StartCleanup()
	stop()
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	r, err := New(context.Background(), nil, nil, WithLLMProvider(testutil.NewMockLLMProvider()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	assert.Equal(t, config.MemoryTypeMemory, r.Config.Memory.Type)
}
