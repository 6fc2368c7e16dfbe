// Package stages provides the StageExecutor adapter that wraps every assistant
// capability behind a failure-absorbing contract.
//
// A capability returns (output, error). The Executor turns every error, panic
// or timeout into the stage's fallback payload so that graph traversal never
// aborts on a single stage.
package stages

// Stage names.
const (
	StageClassify  = "classify"
	StageResearch  = "research"
	StageCompare   = "compare"
	StageRetrieve  = "retrieve"
	StageSummarize = "summarize"
	StageCritique  = "critique"
	StageVision    = "vision"
	StageOCR       = "ocr"
	StageSTT       = "stt"
	StageTTS       = "tts"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

// ClassifyInput is the projection classification works on.
type ClassifyInput struct {
	Query string
}

// Classification is the classification stage output.
type Classification struct {
	Intent     string
	Confidence float64
	Entities   []string
}

// =============================================================================
// CONTENT (research / compare / retrieve)
// =============================================================================

// ResearchInput is the projection research works on.
type ResearchInput struct {
	Query    string
	Intent   string
	Entities []string
	// Context is recent conversation history, may be empty.
	Context string
}

// CompareInput is the projection comparison works on.
type CompareInput struct {
	Query    string
	Entities []string
}

// RetrieveInput is the projection retrieval works on.
type RetrieveInput struct {
	Query string
	Limit int
}

// ContentOutput is shared by research, compare and retrieve.
type ContentOutput struct {
	Content    string
	Confidence float64
	Sources    []string
}

// =============================================================================
// SUMMARY / CRITIQUE
// =============================================================================

// SummarizeInput is the projection summarization works on.
type SummarizeInput struct {
	Content      string
	TargetLength int
}

// Summary is the summarization stage output.
type Summary struct {
	Summary   string
	KeyPoints []string
	WordCount int
}

// CritiqueInput is the projection critique works on.
type CritiqueInput struct {
	Query   string
	Content string
	Summary string
}

// Critique is the critique stage output.
type Critique struct {
	QualityScore     float64
	NeedsImprovement bool
	Feedback         string
}

// =============================================================================
// MEDIA (vision / ocr / stt / tts)
// =============================================================================

// MediaInput points at an uploaded file.
type MediaInput struct {
	FilePath string
	Prompt   string
}

// TextOutput is shared by vision, OCR and speech-to-text.
type TextOutput struct {
	Text       string
	Confidence float64
}

// SpeechInput is the projection text-to-speech works on.
type SpeechInput struct {
	Text      string
	SessionID string
}

// Audio is the text-to-speech stage output. File is empty when nothing was generated.
type Audio struct {
	File      string
	Generated bool
}
