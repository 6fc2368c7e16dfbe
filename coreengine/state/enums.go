// Package state provides the typed WorkflowState threaded through the assistant graph.
//
// Kept small on purpose:
//   - enums.go: input types, step status, well-known intents
//   - state.go: WorkflowState and the step log
//   - result.go: FinalResult produced by the terminal node
package state

import (
	"path/filepath"
	"strings"
)

// InputType classifies the modality of a request.
type InputType string

const (
	// InputTypeText is a plain text query without an attached file.
	InputTypeText InputType = "text"
	// InputTypeImage is an attached image.
	InputTypeImage InputType = "image"
	// InputTypeAudio is an attached audio recording.
	InputTypeAudio InputType = "audio"
	// InputTypeDocument is an attached document (pdf, docx, txt).
	InputTypeDocument InputType = "document"
	// InputTypeUnknown is an attached file with an unrecognised extension.
	InputTypeUnknown InputType = "unknown"
)

// IsMultimodal reports whether the input must go through multimodal processing.
func (t InputType) IsMultimodal() bool {
	switch t {
	case InputTypeImage, InputTypeAudio, InputTypeDocument:
		return true
	}
	return false
}

var extensionTypes = map[string]InputType{
	".png":  InputTypeImage,
	".jpg":  InputTypeImage,
	".jpeg": InputTypeImage,
	".gif":  InputTypeImage,
	".bmp":  InputTypeImage,
	".wav":  InputTypeAudio,
	".mp3":  InputTypeAudio,
	".m4a":  InputTypeAudio,
	".flac": InputTypeAudio,
	".pdf":  InputTypeDocument,
	".docx": InputTypeDocument,
	".txt":  InputTypeDocument,
}

// DetectInputType maps a file path to its input type. An empty path is text.
func DetectInputType(filePath string) InputType {
	if filePath == "" {
		return InputTypeText
	}
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(filePath))]; ok {
		return t
	}
	return InputTypeUnknown
}

// StepStatus is the status of a recorded processing step.
type StepStatus string

const (
	// StepStatusActive marks a step whose stage is running.
	StepStatusActive StepStatus = "active"
	// StepStatusCompleted marks a step whose output has been merged.
	StepStatusCompleted StepStatus = "completed"
)

// Well-known intents produced by classification.
const (
	IntentCompare   = "compare"
	IntentSummarize = "summarize"
	IntentResearch  = "research"
	IntentExplain   = "explain"
	IntentAnalyze   = "analyze"
	IntentReadAloud = "read_aloud"
	IntentVision    = "vision"
	IntentGeneral   = "general"
)

// KnownIntents lists the labels the classifier is allowed to return.
var KnownIntents = []string{
	IntentSummarize, IntentCompare, IntentResearch, IntentExplain,
	IntentAnalyze, IntentReadAloud, IntentVision, IntentGeneral,
}

// IsRetrievalIntent reports whether an intent may be answered from the corpus.
func IsRetrievalIntent(intent string) bool {
	switch intent {
	case IntentSummarize, IntentResearch, IntentExplain, IntentAnalyze:
		return true
	}
	return false
}
