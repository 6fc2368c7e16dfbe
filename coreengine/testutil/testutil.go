// Package testutil provides shared test utilities and mocks.
//
// All mocks in this package are designed for testing the coreengine components
// in isolation without requiring external dependencies.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/assistant/commbus"
	"github.com/jeeves-cluster-organization/assistant/coreengine/llm"
	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
	"github.com/jeeves-cluster-organization/assistant/coreengine/state"
)

// =============================================================================
// MOCK LLM PROVIDER
// =============================================================================

// MockLLMProvider implements llm.Provider for testing.
// Responses are matched by prompt substring in registration order.
type MockLLMProvider struct {
	// DefaultResponse is returned when no rule matches.
	DefaultResponse string

	// Delay simulates LLM latency.
	Delay time.Duration

	// Error causes every call to fail.
	Error error

	// GenerateFunc, if set, replaces rule matching.
	GenerateFunc func(ctx context.Context, prompt string, opts llm.Options) (string, error)

	rules []responseRule
	calls []LLMCall
	mu    sync.Mutex
}

type responseRule struct {
	contains string
	response string
}

// LLMCall records a single call for assertion.
type LLMCall struct {
	Prompt  string
	Options llm.Options
	Images  []string
}

var _ llm.Provider = (*MockLLMProvider)(nil)

// NewMockLLMProvider creates a MockLLMProvider with a neutral default response.
func NewMockLLMProvider() *MockLLMProvider {
	return &MockLLMProvider{DefaultResponse: "Mock response"}
}

// WithResponse answers prompts containing substr with response.
func (m *MockLLMProvider) WithResponse(substr, response string) *MockLLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, responseRule{contains: substr, response: response})
	return m
}

// WithError configures the mock to return an error.
func (m *MockLLMProvider) WithError(err error) *MockLLMProvider {
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockLLMProvider) WithDelay(d time.Duration) *MockLLMProvider {
	m.Delay = d
	return m
}

// Chat implements llm.Provider. The prompt is the concatenation of all message contents.
func (m *MockLLMProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	var options llm.Options
	for _, opt := range opts {
		opt(&options)
	}
	parts := make([]string, 0, len(history))
	var images []string
	for _, msg := range history {
		parts = append(parts, msg.Content)
		images = append(images, msg.Images...)
	}
	prompt := strings.Join(parts, "\n")

	m.mu.Lock()
	m.calls = append(m.calls, LLMCall{Prompt: prompt, Options: options, Images: images})
	customFunc := m.GenerateFunc
	rules := append([]responseRule(nil), m.rules...)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if customFunc != nil {
		return customFunc(ctx, prompt, options)
	}
	if m.Error != nil {
		return "", m.Error
	}
	for _, r := range rules {
		if strings.Contains(prompt, r.contains) {
			return r.response, nil
		}
	}
	return m.DefaultResponse, nil
}

// Generate implements llm.Provider.
func (m *MockLLMProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return m.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockLLMProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of recorded calls.
func (m *MockLLMProvider) Calls() []LLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LLMCall(nil), m.calls...)
}

// Reset clears call history.
func (m *MockLLMProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// =============================================================================
// MOCK CAPABILITIES
// =============================================================================

// MockCapabilities implements every stage capability with overridable funcs
// and deterministic defaults. Calls are counted per stage.
type MockCapabilities struct {
	ClassifyFunc   func(ctx context.Context, in stages.ClassifyInput) (stages.Classification, error)
	ResearchFunc   func(ctx context.Context, in stages.ResearchInput) (stages.ContentOutput, error)
	CompareFunc    func(ctx context.Context, in stages.CompareInput) (stages.ContentOutput, error)
	RetrieveFunc   func(ctx context.Context, in stages.RetrieveInput) (stages.ContentOutput, error)
	SummarizeFunc  func(ctx context.Context, in stages.SummarizeInput) (stages.Summary, error)
	CritiqueFunc   func(ctx context.Context, in stages.CritiqueInput) (stages.Critique, error)
	DescribeFunc   func(ctx context.Context, in stages.MediaInput) (stages.TextOutput, error)
	OCRFunc        func(ctx context.Context, in stages.MediaInput) (stages.TextOutput, error)
	TranscribeFunc func(ctx context.Context, in stages.MediaInput) (stages.TextOutput, error)
	SynthesizeFunc func(ctx context.Context, in stages.SpeechInput) (stages.Audio, error)

	counts map[string]int
	mu     sync.Mutex
}

// NewMockCapabilities returns capabilities that classify every query with
// the given intent and always pass critique.
func NewMockCapabilities(intent string) *MockCapabilities {
	return &MockCapabilities{
		ClassifyFunc: func(_ context.Context, in stages.ClassifyInput) (stages.Classification, error) {
			return stages.Classification{Intent: intent, Confidence: 0.9, Entities: []string{}}, nil
		},
		CritiqueFunc: func(context.Context, stages.CritiqueInput) (stages.Critique, error) {
			return stages.Critique{QualityScore: 8.0, NeedsImprovement: false, Feedback: "good"}, nil
		},
		counts: make(map[string]int),
	}
}

// Capabilities bundles the mock for stages.NewSet.
func (m *MockCapabilities) Capabilities() stages.Capabilities {
	return stages.Capabilities{
		Classifier:  m,
		Researcher:  m,
		Comparer:    m,
		Retriever:   m,
		Summarizer:  m,
		Critic:      m,
		Vision:      m,
		OCR:         ocrAdapter{m},
		Transcriber: m,
		Synthesizer: m,
	}
}

// Calls returns how many times a stage was invoked.
func (m *MockCapabilities) Calls(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[stage]
}

func (m *MockCapabilities) record(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[stage]++
}

func (m *MockCapabilities) Classify(ctx context.Context, in stages.ClassifyInput) (stages.Classification, error) {
	m.record(stages.StageClassify)
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, in)
	}
	return stages.Classification{Intent: state.IntentGeneral, Confidence: 0.9, Entities: []string{}}, nil
}

func (m *MockCapabilities) Research(ctx context.Context, in stages.ResearchInput) (stages.ContentOutput, error) {
	m.record(stages.StageResearch)
	if m.ResearchFunc != nil {
		return m.ResearchFunc(ctx, in)
	}
	return stages.ContentOutput{Content: "Research findings about " + in.Query, Confidence: 0.9}, nil
}

func (m *MockCapabilities) Compare(ctx context.Context, in stages.CompareInput) (stages.ContentOutput, error) {
	m.record(stages.StageCompare)
	if m.CompareFunc != nil {
		return m.CompareFunc(ctx, in)
	}
	return stages.ContentOutput{Content: "Comparison of " + strings.Join(in.Entities, " and "), Confidence: 0.9}, nil
}

func (m *MockCapabilities) Retrieve(ctx context.Context, in stages.RetrieveInput) (stages.ContentOutput, error) {
	m.record(stages.StageRetrieve)
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, in)
	}
	return stages.ContentOutput{Content: "Retrieved answer for " + in.Query, Confidence: 0.8, Sources: []string{"doc.txt"}}, nil
}

func (m *MockCapabilities) Summarize(ctx context.Context, in stages.SummarizeInput) (stages.Summary, error) {
	m.record(stages.StageSummarize)
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, in)
	}
	summary := "Summary: " + in.Content
	return stages.Summary{Summary: summary, KeyPoints: []string{in.Content}, WordCount: stages.WordCount(summary)}, nil
}

func (m *MockCapabilities) Critique(ctx context.Context, in stages.CritiqueInput) (stages.Critique, error) {
	m.record(stages.StageCritique)
	if m.CritiqueFunc != nil {
		return m.CritiqueFunc(ctx, in)
	}
	return stages.Critique{QualityScore: 8.0}, nil
}

func (m *MockCapabilities) Describe(ctx context.Context, in stages.MediaInput) (stages.TextOutput, error) {
	m.record(stages.StageVision)
	if m.DescribeFunc != nil {
		return m.DescribeFunc(ctx, in)
	}
	return stages.TextOutput{Text: "An image", Confidence: 0.9}, nil
}

func (m *MockCapabilities) Transcribe(ctx context.Context, in stages.MediaInput) (stages.TextOutput, error) {
	m.record(stages.StageSTT)
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, in)
	}
	return stages.TextOutput{Text: "transcribed question", Confidence: 0.9}, nil
}

func (m *MockCapabilities) Synthesize(ctx context.Context, in stages.SpeechInput) (stages.Audio, error) {
	m.record(stages.StageTTS)
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, in)
	}
	return stages.Audio{File: "/audio/" + in.SessionID + ".wav", Generated: true}, nil
}

// ocrAdapter exposes the OCR func under the TextExtractor method name.
type ocrAdapter struct{ m *MockCapabilities }

func (a ocrAdapter) ExtractText(ctx context.Context, in stages.MediaInput) (stages.TextOutput, error) {
	a.m.record(stages.StageOCR)
	if a.m.OCRFunc != nil {
		return a.m.OCRFunc(ctx, in)
	}
	return stages.TextOutput{Text: "", Confidence: 0}, nil
}

// =============================================================================
// RECORDING PUBLISHER
// =============================================================================

// RecordingPublisher captures published events for assertion.
type RecordingPublisher struct {
	events []commbus.Message
	err    error
	mu     sync.Mutex
}

var _ commbus.Publisher = (*RecordingPublisher)(nil)

// NewRecordingPublisher creates an empty RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// WithError makes Publish fail after recording.
func (p *RecordingPublisher) WithError(err error) *RecordingPublisher {
	p.err = err
	return p
}

// Publish implements commbus.Publisher.
func (p *RecordingPublisher) Publish(_ context.Context, event commbus.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

// Events returns a copy of captured events.
func (p *RecordingPublisher) Events() []commbus.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]commbus.Message(nil), p.events...)
}

// Types returns captured event type names in publish order.
func (p *RecordingPublisher) Types() []string {
	events := p.Events()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = commbus.GetMessageType(e)
	}
	return types
}

// StartedNodes returns node names from StepStarted events in order.
func (p *RecordingPublisher) StartedNodes() []string {
	var nodes []string
	for _, e := range p.Events() {
		if started, ok := e.(*commbus.StepStarted); ok {
			nodes = append(nodes, started.Node)
		}
	}
	return nodes
}

// =============================================================================
// MOCK LOGGER
// =============================================================================

// MockLogger implements observability.Logger for testing.
type MockLogger struct {
	logs   *[]LogEntry
	fields []any
	mu     *sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  []any
}

var _ observability.Logger = (*MockLogger)(nil)

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{logs: &[]LogEntry{}, mu: &sync.Mutex{}}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) { m.log("debug", msg, keysAndValues...) }
func (m *MockLogger) Info(msg string, keysAndValues ...any)  { m.log("info", msg, keysAndValues...) }
func (m *MockLogger) Warn(msg string, keysAndValues ...any)  { m.log("warn", msg, keysAndValues...) }
func (m *MockLogger) Error(msg string, keysAndValues ...any) { m.log("error", msg, keysAndValues...) }

// Bind returns a logger sharing the capture buffer with extra fields.
func (m *MockLogger) Bind(fields ...any) observability.Logger {
	return &MockLogger{
		logs:   m.logs,
		fields: append(append([]any(nil), m.fields...), fields...),
		mu:     m.mu,
	}
}

func (m *MockLogger) log(level, msg string, keysAndValues ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields := append(append([]any(nil), m.fields...), keysAndValues...)
	*m.logs = append(*m.logs, LogEntry{Level: level, Message: msg, Fields: fields})
}

// GetLogs returns captured logs (thread-safe).
func (m *MockLogger) GetLogs() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), *m.logs...)
}

// HasLog checks if a log message exists at the given level.
func (m *MockLogger) HasLog(level, message string) bool {
	for _, entry := range m.GetLogs() {
		if entry.Level == level && entry.Message == message {
			return true
		}
	}
	return false
}

// =============================================================================
// STATE HELPERS
// =============================================================================

// NewTestState creates a state for a text query with test defaults.
func NewTestState(query string) *state.WorkflowState {
	return state.New(state.Request{Query: query, SessionID: "test-session"}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

// =============================================================================
// ASSERTION HELPERS
// =============================================================================

// AssertStepsOrdered checks that steps are numbered 1..n in order with
// non-decreasing timestamps.
func AssertStepsOrdered(s *state.WorkflowState) error {
	for i, step := range s.ProcessingSteps {
		if step.Step != i+1 {
			return fmt.Errorf("step %d has number %d", i+1, step.Step)
		}
		if i > 0 && step.Timestamp.Before(s.ProcessingSteps[i-1].Timestamp) {
			return fmt.Errorf("step %d timestamp goes backwards", step.Step)
		}
	}
	return nil
}

// AssertCompleted checks that the last step is completed and numbered with
// the total step count.
func AssertCompleted(s *state.WorkflowState) error {
	last, ok := s.LastStep()
	if !ok {
		return fmt.Errorf("no steps recorded")
	}
	if last.Status != state.StepStatusCompleted {
		return fmt.Errorf("last step status is %s", last.Status)
	}
	if last.Step != len(s.ProcessingSteps) {
		return fmt.Errorf("last step number %d, want %d", last.Step, len(s.ProcessingSteps))
	}
	if s.FinalResult == nil {
		return fmt.Errorf("final result not set")
	}
	return nil
}
