package state

import (
	"strings"
	"time"
)

// secondsPerWord estimates spoken duration of synthesized audio.
const secondsPerWord = 0.6

// AudioInfo describes the optional synthesized rendering of the summary.
type AudioInfo struct {
	Generated       bool    `json:"generated" yaml:"generated"`
	File            *string `json:"file,omitempty" yaml:"file,omitempty"`
	DurationSeconds float64 `json:"duration" yaml:"duration"`
}

// FinalResult is the structured output assembled by the Finalize node.
type FinalResult struct {
	Query          string           `json:"query" yaml:"query"`
	Intent         string           `json:"intent" yaml:"intent"`
	InputType      InputType        `json:"input_type" yaml:"input_type"`
	Research       string           `json:"research" yaml:"research"`
	Summary        string           `json:"summary" yaml:"summary"`
	KeyPoints      []string         `json:"key_points" yaml:"key_points"`
	WordCount      int              `json:"word_count" yaml:"word_count"`
	Confidence     float64          `json:"confidence" yaml:"confidence"`
	QualityScore   float64          `json:"quality_score" yaml:"quality_score"`
	ProcessingTime float64          `json:"processing_time" yaml:"processing_time"`
	Steps          []ProcessingStep `json:"steps" yaml:"steps"`
	VisionAnalysis *string          `json:"vision_analysis,omitempty" yaml:"vision_analysis,omitempty"`
	ExtractedText  *string          `json:"extracted_text,omitempty" yaml:"extracted_text,omitempty"`
	Transcription  *string          `json:"transcription,omitempty" yaml:"transcription,omitempty"`
	Audio          AudioInfo        `json:"audio" yaml:"audio"`
	Degraded       []StageError     `json:"degraded,omitempty" yaml:"degraded,omitempty"`
}

// BuildFinalResult assembles the result from the current state.
func (s *WorkflowState) BuildFinalResult(now time.Time) *FinalResult {
	quality := 0.0
	if s.QualityScore != nil {
		quality = *s.QualityScore
	}

	steps := make([]ProcessingStep, len(s.ProcessingSteps))
	copy(steps, s.ProcessingSteps)

	audio := AudioInfo{Generated: s.AudioGenerated && s.AudioFile != nil}
	if audio.Generated {
		audio.File = StringPtr(*s.AudioFile)
		audio.DurationSeconds = float64(len(strings.Fields(s.Summary))) * secondsPerWord
	}

	return &FinalResult{
		Query:          s.Query,
		Intent:         s.Intent,
		InputType:      s.InputType,
		Research:       s.PrimaryContent(),
		Summary:        s.Summary,
		KeyPoints:      append([]string(nil), s.KeyPoints...),
		WordCount:      s.WordCount,
		Confidence:     s.Confidence,
		QualityScore:   quality,
		ProcessingTime: now.Sub(s.StartTime).Seconds(),
		Steps:          steps,
		VisionAnalysis: s.VisionResult,
		ExtractedText:  s.OCRResult,
		Transcription:  s.Transcription,
		Audio:          audio,
		Degraded:       append([]StageError(nil), s.Degraded...),
	}
}

// Clone returns a deep copy of r. A nil receiver yields nil.
func (r *FinalResult) Clone() *FinalResult {
	if r == nil {
		return nil
	}
	c := *r
	c.KeyPoints = append([]string(nil), r.KeyPoints...)
	c.Steps = append([]ProcessingStep(nil), r.Steps...)
	c.Degraded = append([]StageError(nil), r.Degraded...)
	c.VisionAnalysis = clonePtr(r.VisionAnalysis)
	c.ExtractedText = clonePtr(r.ExtractedText)
	c.Transcription = clonePtr(r.Transcription)
	c.Audio.File = clonePtr(r.Audio.File)
	return &c
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	return StringPtr(*p)
}
