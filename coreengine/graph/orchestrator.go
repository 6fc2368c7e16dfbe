package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jeeves-cluster-organization/assistant/commbus"
	"github.com/jeeves-cluster-organization/assistant/coreengine/corpus"
	"github.com/jeeves-cluster-organization/assistant/coreengine/memory"
	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
	"github.com/jeeves-cluster-organization/assistant/coreengine/state"
)

var tracer = otel.Tracer("assistant/graph")

// DefaultMaxHops bounds a single traversal.
const DefaultMaxHops = 32

// Tracker is the session bookkeeping the orchestrator mirrors steps into.
// *session.Tracker satisfies it.
type Tracker interface {
	Create(sessionID string) error
	UpdateStep(sessionID, message string, step int) bool
	IsCancelled(sessionID string) bool
	Cancel(sessionID string) bool
	Complete(sessionID string, result *state.FinalResult) bool
	Fail(sessionID string, err error) bool
}

// DocumentReader extracts text from an uploaded document.
type DocumentReader interface {
	Read(ctx context.Context, path string) (string, error)
}

// Dependencies are the collaborators of an Orchestrator. Only Stages is
// required; missing collaborators disable the features that use them.
type Dependencies struct {
	Stages  *stages.Set
	Tracker Tracker
	Corpus  corpus.Store
	Reader  DocumentReader
	Memory  memory.Store
	Events  commbus.Publisher
	Logger  observability.Logger
}

// Options tune traversal.
type Options struct {
	Gate                RetryGate
	SummaryTargetLength int
	RetrieveLimit       int
	HistoryLimit        int
	MaxHops             int
	Clock               func() time.Time
}

// DefaultOptions returns the standard traversal settings.
func DefaultOptions() Options {
	return Options{
		Gate:                DefaultRetryGate(),
		SummaryTargetLength: 200,
		RetrieveLimit:       5,
		HistoryLimit:        memory.DefaultHistoryLimit,
		MaxHops:             DefaultMaxHops,
		Clock:               time.Now,
	}
}

type handlerFunc func(ctx context.Context, s *state.WorkflowState)

type node struct {
	handle handlerFunc
	// Exactly one of next and route is set unless the node is terminal.
	next     NodeID
	route    func(s *state.WorkflowState) Decision
	terminal bool
}

// Orchestrator drives a WorkflowState through the node table.
type Orchestrator struct {
	stages   *stages.Set
	tracker  Tracker
	corpus   corpus.Store
	reader   DocumentReader
	memory   memory.Store
	events   commbus.Publisher
	logger   observability.Logger
	validate *validator.Validate

	gate          RetryGate
	targetLength  int
	retrieveLimit int
	historyLimit  int
	maxHops       int
	clock         func() time.Time

	nodes map[NodeID]node
}

// NewOrchestrator builds the node table and validates it.
func NewOrchestrator(deps Dependencies, opts Options) (*Orchestrator, error) {
	if deps.Stages == nil {
		return nil, errors.New("stages are required")
	}
	defaults := DefaultOptions()
	if opts.Gate == (RetryGate{}) {
		opts.Gate = defaults.Gate
	}
	if opts.SummaryTargetLength <= 0 {
		opts.SummaryTargetLength = defaults.SummaryTargetLength
	}
	if opts.RetrieveLimit <= 0 {
		opts.RetrieveLimit = defaults.RetrieveLimit
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaults.HistoryLimit
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = defaults.MaxHops
	}
	if opts.Clock == nil {
		opts.Clock = defaults.Clock
	}

	o := &Orchestrator{
		stages:        deps.Stages,
		tracker:       deps.Tracker,
		corpus:        deps.Corpus,
		reader:        deps.Reader,
		memory:        deps.Memory,
		events:        deps.Events,
		logger:        deps.Logger,
		validate:      validator.New(),
		gate:          opts.Gate,
		targetLength:  opts.SummaryTargetLength,
		retrieveLimit: opts.RetrieveLimit,
		historyLimit:  opts.HistoryLimit,
		maxHops:       opts.MaxHops,
		clock:         opts.Clock,
	}
	if o.tracker == nil {
		o.tracker = nopTracker{}
	}
	if o.logger == nil {
		o.logger = observability.NewNopLogger()
	}

	o.nodes = map[NodeID]node{
		NodePreprocess:           {handle: o.preprocess, next: NodeIntentClassification},
		NodeIntentClassification: {handle: o.classifyIntent, route: func(s *state.WorkflowState) Decision { return Decision{Next: RouteAfterIntent(s)} }},
		NodeMultimodalProcessing: {handle: o.processMultimodal, next: NodeSummarize},
		NodeResearch:             {handle: o.research, next: NodeSummarize},
		NodeCompare:              {handle: o.compare, next: NodeSummarize},
		NodeRetrieve:             {handle: o.retrieve, next: NodeSummarize},
		NodeSummarize:            {handle: o.summarize, route: func(s *state.WorkflowState) Decision { return Decision{Next: o.gate.ShouldCritique(s)} }},
		NodeCritique:             {handle: o.critique, route: o.gate.HandleCritiqueResult},
		NodeTextToSpeech:         {handle: o.textToSpeech, next: NodeFinalize},
		NodeFinalize:             {handle: o.finalize, terminal: true},
	}

	if err := o.validateGraph(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) validateGraph() error {
	if _, ok := o.nodes[EntryNode]; !ok {
		return &RoutingError{From: EntryNode, Reason: "entry node is not registered"}
	}
	for id, n := range o.nodes {
		if n.handle == nil {
			return &RoutingError{From: id, Reason: "node has no handler"}
		}
		if n.terminal {
			if n.next != "" || n.route != nil {
				return &RoutingError{From: id, Reason: "terminal node has a successor"}
			}
			continue
		}
		if (n.next == "") == (n.route == nil) {
			return &RoutingError{From: id, Reason: "node needs exactly one of a fixed successor or a router"}
		}
		if n.next != "" {
			if _, ok := o.nodes[n.next]; !ok {
				return &RoutingError{From: id, To: n.next, Reason: "unknown successor"}
			}
		}
	}
	return nil
}

// Stages returns the status of every stage executor.
func (o *Orchestrator) Stages() []stages.Snapshot {
	return o.stages.Snapshots()
}

// Execute traverses the graph from the entry node until Finalize completes,
// cancellation is observed or an orchestration failure occurs. The partial
// state is returned in every case.
func (o *Orchestrator) Execute(ctx context.Context, s *state.WorkflowState) (out *state.WorkflowState, err error) {
	logger := o.logger.Bind("session_id", s.SessionID)
	current := EntryNode

	defer func() {
		if r := recover(); r != nil {
			logger.Error("graph_panic", "node", string(current), "panic", fmt.Sprintf("%v", r))
			out = s
			err = fmt.Errorf("%w: panic in node %s: %v", ErrOrchestration, current, r)
		}
	}()

	for hops := 0; ; hops++ {
		if hops >= o.maxHops {
			logger.Error("hop_limit_exceeded", "node", string(current), "max_hops", o.maxHops)
			return s, fmt.Errorf("%w: %w after %d hops", ErrOrchestration, ErrHopLimitExceeded, o.maxHops)
		}

		if o.isCancelled(ctx, s) {
			s.Cancelled = true
			logger.Info("workflow_cancelled", "node", string(current), "step", s.CurrentStep)
			o.publish(ctx, &commbus.WorkflowCancelled{SessionID: s.SessionID, Step: s.CurrentStep})
			return s, nil
		}

		n, ok := o.nodes[current]
		if !ok {
			return s, &RoutingError{From: current, Reason: "node is not registered"}
		}

		o.runNode(ctx, current, n, s)

		if n.terminal {
			return s, nil
		}

		var d Decision
		if n.route != nil {
			d = n.route(s)
		} else {
			d = Decision{Next: n.next}
		}
		if _, ok := o.nodes[d.Next]; !ok {
			logger.Error("routing_failed", "from", string(current), "to", string(d.Next))
			return s, &RoutingError{From: current, To: d.Next, Reason: "router returned an unknown node"}
		}
		if d.Retry {
			s.RetryCount++
			observability.RecordWorkflowRetry(s.Intent)
			logger.Info("quality_retry", "retry_count", s.RetryCount, "quality_score", deref(s.QualityScore))
		}

		observability.RecordRoutingDecision(string(current), string(d.Next))
		logger.Debug("node_transition", "from", string(current), "to", string(d.Next))
		current = d.Next
	}
}

// runNode applies the per-node contract: record an active step, run the
// handler, complete the step.
func (o *Orchestrator) runNode(ctx context.Context, id NodeID, n node, s *state.WorkflowState) {
	ctx, span := tracer.Start(ctx, "graph.node",
		trace.WithAttributes(
			attribute.String("assistant.node", string(id)),
			attribute.String("assistant.session_id", s.SessionID),
		),
	)
	defer span.End()

	start := o.clock()
	message := StepMessage(id, s)
	step := s.BeginStep(message, start)
	o.tracker.UpdateStep(s.SessionID, message, step)
	o.publish(ctx, &commbus.StepStarted{
		SessionID: s.SessionID,
		Node:      string(id),
		Step:      step,
		Message:   message,
		Timestamp: s.ProcessingSteps[step-1].Timestamp,
	})

	degradedBefore := len(s.Degraded)
	n.handle(ctx, s)
	s.CompleteStep(step)

	// The result is built while Finalize is still active.
	if s.FinalResult != nil && id == NodeFinalize {
		s.FinalResult.Steps = append([]state.ProcessingStep(nil), s.ProcessingSteps...)
	}

	degraded := len(s.Degraded) > degradedBefore
	if degraded {
		span.SetStatus(codes.Error, "stage degraded")
	}
	o.publish(ctx, &commbus.StepCompleted{
		SessionID:  s.SessionID,
		Node:       string(id),
		Step:       step,
		DurationMS: int(o.clock().Sub(start).Milliseconds()),
		Degraded:   degraded,
	})
}

// Process runs a request end to end with session bookkeeping.
func (o *Orchestrator) Process(ctx context.Context, req state.Request) (s *state.WorkflowState, err error) {
	if verr := o.validate.Struct(req); verr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, verr)
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	if cerr := o.tracker.Create(req.SessionID); cerr != nil {
		return nil, fmt.Errorf("failed to create session: %w", cerr)
	}

	ctx, span := tracer.Start(ctx, "workflow.process",
		trace.WithAttributes(attribute.String("assistant.session_id", req.SessionID)),
	)
	defer span.End()

	start := o.clock()
	s = state.New(req, start)
	logger := o.logger.Bind("session_id", s.SessionID)
	logger.Info("workflow_started", "has_file", req.FilePath != "", "enable_tts", req.EnableTTS)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrOrchestration, r)
			o.fail(ctx, s, err, start)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	s, err = o.Execute(ctx, s)
	if err != nil {
		o.fail(ctx, s, err, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return s, fmt.Errorf("workflow %s failed: %w", s.SessionID, err)
	}

	durationMS := int(o.clock().Sub(start).Milliseconds())
	if s.Cancelled {
		o.tracker.Cancel(s.SessionID)
		observability.RecordWorkflowExecution(string(s.InputType), "cancelled", durationMS)
		span.SetStatus(codes.Error, "cancelled")
		return s, ErrCancelled
	}

	o.tracker.Complete(s.SessionID, s.FinalResult)
	observability.RecordWorkflowExecution(string(s.InputType), "completed", durationMS)
	o.publish(ctx, &commbus.WorkflowCompleted{
		SessionID:  s.SessionID,
		Intent:     s.Intent,
		InputType:  string(s.InputType),
		RetryCount: s.RetryCount,
		Quality:    deref(s.QualityScore),
		DurationMS: durationMS,
	})
	span.SetStatus(codes.Ok, "")
	logger.Info("workflow_completed",
		"intent", s.Intent,
		"retry_count", s.RetryCount,
		"steps", len(s.ProcessingSteps),
		"degraded_stages", len(s.Degraded),
		"duration_ms", durationMS,
	)
	return s, nil
}

func (o *Orchestrator) fail(ctx context.Context, s *state.WorkflowState, err error, start time.Time) {
	o.tracker.Fail(s.SessionID, err)
	observability.RecordWorkflowExecution(string(s.InputType), "error", int(o.clock().Sub(start).Milliseconds()))
	o.publish(ctx, &commbus.WorkflowFailed{SessionID: s.SessionID, Error: err.Error(), Step: s.CurrentStep})
	o.logger.Error("workflow_failed", "session_id", s.SessionID, "step", s.CurrentStep, "error", err.Error())
}

func (o *Orchestrator) isCancelled(ctx context.Context, s *state.WorkflowState) bool {
	if ctx.Err() != nil {
		return true
	}
	return o.tracker.IsCancelled(s.SessionID)
}

func (o *Orchestrator) publish(ctx context.Context, msg commbus.Message) {
	if o.events == nil {
		return
	}
	if err := o.events.Publish(context.WithoutCancel(ctx), msg); err != nil {
		o.logger.Warn("event_publish_failed", "type", commbus.GetMessageType(msg), "error", err.Error())
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

type nopTracker struct{}

func (nopTracker) Create(string) error                      { return nil }
func (nopTracker) UpdateStep(string, string, int) bool      { return false }
func (nopTracker) IsCancelled(string) bool                  { return false }
func (nopTracker) Cancel(string) bool                       { return false }
func (nopTracker) Complete(string, *state.FinalResult) bool { return false }
func (nopTracker) Fail(string, error) bool                  { return false }
