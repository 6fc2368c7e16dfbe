package state

import (
	"time"
)

// Request is the caller-supplied input that seeds a WorkflowState.
type Request struct {
	Query     string `json:"query" yaml:"query" validate:"required_without=FilePath,max=8000"`
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	FilePath  string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	EnableTTS bool   `json:"enable_tts" yaml:"enable_tts"`
}

// ProcessingStep is one entry of the append-only step log.
type ProcessingStep struct {
	Step      int        `json:"step"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Status    StepStatus `json:"status"`
}

// StageError records a stage failure that was absorbed with a fallback payload.
type StageError struct {
	Stage string    `json:"stage"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// WorkflowState is the single mutable record passed through the graph for one request.
//
// Optional content is modelled with pointers; nil means the producing stage has not run.
// A WorkflowState is owned by exactly one traversal and is not safe for concurrent use.
type WorkflowState struct {
	// Input
	Query     string    `json:"query"`
	SessionID string    `json:"session_id"`
	InputType InputType `json:"input_type"`
	FilePath  *string   `json:"file_path,omitempty"`
	EnableTTS bool      `json:"enable_tts"`

	// Classification
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   []string `json:"entities"`

	// Number of documents in the retrieval corpus, captured during classification.
	CorpusDocuments int `json:"corpus_documents"`

	// Content
	ResearchContent  *string `json:"research_content,omitempty"`
	ComparisonResult *string `json:"comparison_result,omitempty"`
	VisionResult     *string `json:"vision_result,omitempty"`
	OCRResult        *string `json:"ocr_result,omitempty"`
	Transcription    *string `json:"transcription,omitempty"`
	RetrievedContent *string `json:"retrieved_content,omitempty"`

	// Summary
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	WordCount int      `json:"word_count"`

	// Quality
	QualityScore     *float64 `json:"quality_score,omitempty"`
	NeedsImprovement bool     `json:"needs_improvement"`
	RetryCount       int      `json:"retry_count"`
	CritiqueCount    int      `json:"critique_count"`

	// Output
	FinalResult    *FinalResult `json:"final_result,omitempty"`
	AudioFile      *string      `json:"audio_file,omitempty"`
	AudioGenerated bool         `json:"audio_generated"`

	// Metadata
	ProcessingSteps []ProcessingStep `json:"processing_steps"`
	StartTime       time.Time        `json:"start_time"`
	CurrentStep     int              `json:"current_step"`
	Degraded        []StageError     `json:"degraded,omitempty"`
	Cancelled       bool             `json:"cancelled"`
}

// New creates the initial state for a request.
func New(req Request, now time.Time) *WorkflowState {
	s := &WorkflowState{
		Query:           req.Query,
		SessionID:       req.SessionID,
		InputType:       InputTypeText,
		EnableTTS:       req.EnableTTS,
		Entities:        []string{},
		KeyPoints:       []string{},
		ProcessingSteps: []ProcessingStep{},
		StartTime:       now,
	}
	if req.FilePath != "" {
		s.FilePath = StringPtr(req.FilePath)
	}
	return s
}

// BeginStep appends an active step and returns its number.
// Timestamps never go backwards even if the supplied clock does.
func (s *WorkflowState) BeginStep(message string, now time.Time) int {
	if n := len(s.ProcessingSteps); n > 0 {
		if last := s.ProcessingSteps[n-1].Timestamp; now.Before(last) {
			now = last
		}
	}
	step := len(s.ProcessingSteps) + 1
	s.ProcessingSteps = append(s.ProcessingSteps, ProcessingStep{
		Step:      step,
		Message:   message,
		Timestamp: now,
		Status:    StepStatusActive,
	})
	s.CurrentStep = step
	return step
}

// CompleteStep marks a previously recorded step as completed.
func (s *WorkflowState) CompleteStep(step int) {
	if step < 1 || step > len(s.ProcessingSteps) {
		return
	}
	s.ProcessingSteps[step-1].Status = StepStatusCompleted
}

// RecordDegraded records an absorbed stage failure.
func (s *WorkflowState) RecordDegraded(stage string, err error, now time.Time) {
	if err == nil {
		return
	}
	s.Degraded = append(s.Degraded, StageError{Stage: stage, Error: err.Error(), At: now})
}

// FileName returns the attached file path or "".
func (s *WorkflowState) FileName() string {
	if s.FilePath == nil {
		return ""
	}
	return *s.FilePath
}

// PrimaryContent returns the content Summarize works on.
func (s *WorkflowState) PrimaryContent() string {
	if s.ResearchContent != nil && *s.ResearchContent != "" {
		return *s.ResearchContent
	}
	if s.ComparisonResult != nil {
		return *s.ComparisonResult
	}
	return ""
}

// HasContent reports whether a content-producing branch has populated state.
func (s *WorkflowState) HasContent() bool {
	return s.PrimaryContent() != ""
}

// SetFinalResult stores the terminal result. Only the Finalize node calls it.
func (s *WorkflowState) SetFinalResult(r *FinalResult) {
	s.FinalResult = r
}

// LastStep returns the most recent step, if any.
func (s *WorkflowState) LastStep() (ProcessingStep, bool) {
	if len(s.ProcessingSteps) == 0 {
		return ProcessingStep{}, false
	}
	return s.ProcessingSteps[len(s.ProcessingSteps)-1], true
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

// Deref returns the pointed-to string or "".
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
