package graph

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jeeves-cluster-organization/assistant/coreengine/memory"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
	"github.com/jeeves-cluster-organization/assistant/coreengine/state"
)

// Stage name used in Degraded when the document reader fails.
const stageDocument = "document"

func (o *Orchestrator) absorb(s *state.WorkflowState, stage string, err error) {
	if err != nil {
		s.RecordDegraded(stage, err, o.clock())
	}
}

func (o *Orchestrator) preprocess(_ context.Context, s *state.WorkflowState) {
	s.InputType = state.DetectInputType(s.FileName())
}

func (o *Orchestrator) classifyIntent(ctx context.Context, s *state.WorkflowState) {
	out := o.stages.Classify.Execute(ctx, stages.ClassifyInput{Query: s.Query})
	o.absorb(s, stages.StageClassify, out.Err)
	s.Intent = out.Output.Intent
	s.Confidence = out.Output.Confidence
	s.Entities = append([]string{}, out.Output.Entities...)

	s.CorpusDocuments = 0
	if o.corpus == nil {
		return
	}
	stats, err := o.corpus.Stats(ctx)
	if err != nil {
		o.logger.Warn("corpus_stats_failed", "session_id", s.SessionID, "error", err.Error())
		return
	}
	s.CorpusDocuments = stats.TotalDocuments
}

func (o *Orchestrator) processMultimodal(ctx context.Context, s *state.WorkflowState) {
	switch s.InputType {
	case state.InputTypeImage:
		o.processImage(ctx, s)
	case state.InputTypeAudio:
		o.processAudio(ctx, s)
	case state.InputTypeDocument:
		o.processDocument(ctx, s)
	default:
		o.research(ctx, s)
	}
}

// Content written when a media branch produced nothing usable.
const (
	audioFailureText = "Failed to transcribe audio"
	imageFailureText = "Failed to analyze image"
)

// processImage runs vision and OCR concurrently and joins before merging.
func (o *Orchestrator) processImage(ctx context.Context, s *state.WorkflowState) {
	in := stages.MediaInput{FilePath: s.FileName(), Prompt: s.Query}
	var vision, ocr stages.Outcome[stages.TextOutput]

	var g errgroup.Group
	g.Go(func() error {
		vision = o.stages.Vision.Execute(ctx, in)
		return nil
	})
	g.Go(func() error {
		ocr = o.stages.OCR.Execute(ctx, in)
		return nil
	})
	_ = g.Wait()

	o.absorb(s, stages.StageVision, vision.Err)
	o.absorb(s, stages.StageOCR, ocr.Err)

	var sections []string
	if text := strings.TrimSpace(vision.Output.Text); text != "" {
		s.VisionResult = state.StringPtr(text)
		sections = append(sections, "Image Analysis: "+text)
	}
	if text := strings.TrimSpace(ocr.Output.Text); text != "" {
		s.OCRResult = state.StringPtr(text)
		sections = append(sections, "Extracted Text: "+text)
	}
	if len(sections) == 0 {
		sections = append(sections, imageFailureText)
	}
	s.ResearchContent = state.StringPtr(strings.Join(sections, "\n\n"))
}

func (o *Orchestrator) processAudio(ctx context.Context, s *state.WorkflowState) {
	out := o.stages.STT.Execute(ctx, stages.MediaInput{FilePath: s.FileName()})
	o.absorb(s, stages.StageSTT, out.Err)

	text := strings.TrimSpace(out.Output.Text)
	if text == "" {
		s.Transcription = state.StringPtr(audioFailureText)
		s.ResearchContent = state.StringPtr(audioFailureText)
		return
	}
	s.Transcription = state.StringPtr(text)
	s.Query = text
	s.ResearchContent = state.StringPtr(text)
}

func (o *Orchestrator) processDocument(ctx context.Context, s *state.WorkflowState) {
	if o.reader == nil {
		err := fmt.Errorf("no document reader configured")
		o.absorb(s, stageDocument, err)
		s.ResearchContent = state.StringPtr("Failed to process document: " + err.Error())
		return
	}

	text, err := o.reader.Read(ctx, s.FileName())
	if err != nil {
		o.absorb(s, stageDocument, err)
		s.ResearchContent = state.StringPtr("Failed to process document: " + err.Error())
		return
	}
	s.ResearchContent = state.StringPtr(text)

	if o.corpus == nil {
		return
	}
	chunks, err := o.corpus.AddDocument(ctx, s.FileName(), text)
	if err != nil {
		o.logger.Warn("document_ingest_failed", "session_id", s.SessionID, "source", s.FileName(), "error", err.Error())
		return
	}
	o.logger.Info("document_ingested", "session_id", s.SessionID, "source", s.FileName(), "chunks", chunks)
}

func (o *Orchestrator) research(ctx context.Context, s *state.WorkflowState) {
	in := stages.ResearchInput{
		Query:    s.Query,
		Intent:   s.Intent,
		Entities: s.Entities,
		Context:  o.conversationContext(ctx, s),
	}
	out := o.stages.Research.Execute(ctx, in)
	o.absorb(s, stages.StageResearch, out.Err)
	s.ResearchContent = state.StringPtr(out.Output.Content)
}

func (o *Orchestrator) conversationContext(ctx context.Context, s *state.WorkflowState) string {
	if o.memory == nil {
		return ""
	}
	history, err := memory.Context(ctx, o.memory, s.SessionID, o.historyLimit)
	if err != nil {
		o.logger.Warn("memory_read_failed", "session_id", s.SessionID, "error", err.Error())
		return ""
	}
	return history
}

func (o *Orchestrator) compare(ctx context.Context, s *state.WorkflowState) {
	out := o.stages.Compare.Execute(ctx, stages.CompareInput{Query: s.Query, Entities: s.Entities})
	o.absorb(s, stages.StageCompare, out.Err)
	s.ComparisonResult = state.StringPtr(out.Output.Content)
	s.ResearchContent = state.StringPtr(out.Output.Content)
}

func (o *Orchestrator) retrieve(ctx context.Context, s *state.WorkflowState) {
	out := o.stages.Retrieve.Execute(ctx, stages.RetrieveInput{Query: s.Query, Limit: o.retrieveLimit})
	o.absorb(s, stages.StageRetrieve, out.Err)
	s.RetrievedContent = state.StringPtr(out.Output.Content)
	s.ResearchContent = state.StringPtr(out.Output.Content)
}

func (o *Orchestrator) summarize(ctx context.Context, s *state.WorkflowState) {
	out := o.stages.Summarize.Execute(ctx, stages.SummarizeInput{
		Content:      s.PrimaryContent(),
		TargetLength: o.targetLength,
	})
	o.absorb(s, stages.StageSummarize, out.Err)
	s.Summary = out.Output.Summary
	s.KeyPoints = append([]string{}, out.Output.KeyPoints...)
	s.WordCount = out.Output.WordCount
}

func (o *Orchestrator) critique(ctx context.Context, s *state.WorkflowState) {
	out := o.stages.Critique.Execute(ctx, stages.CritiqueInput{
		Query:   s.Query,
		Content: s.PrimaryContent(),
		Summary: s.Summary,
	})
	o.absorb(s, stages.StageCritique, out.Err)
	s.QualityScore = state.Float64Ptr(out.Output.QualityScore)
	s.NeedsImprovement = out.Output.NeedsImprovement
	s.CritiqueCount++
}

func (o *Orchestrator) textToSpeech(ctx context.Context, s *state.WorkflowState) {
	out := o.stages.TTS.Execute(ctx, stages.SpeechInput{Text: s.Summary, SessionID: s.SessionID})
	o.absorb(s, stages.StageTTS, out.Err)
	s.AudioGenerated = out.Output.Generated && out.Output.File != ""
	if s.AudioGenerated {
		s.AudioFile = state.StringPtr(out.Output.File)
	}
}

func (o *Orchestrator) finalize(ctx context.Context, s *state.WorkflowState) {
	s.SetFinalResult(s.BuildFinalResult(o.clock()))

	if o.memory == nil {
		return
	}
	err := o.memory.Append(ctx, s.SessionID, memory.Exchange{
		Query:     s.Query,
		Intent:    s.Intent,
		InputType: string(s.InputType),
		Summary:   s.Summary,
		Timestamp: o.clock(),
	})
	if err != nil {
		o.logger.Warn("memory_write_failed", "session_id", s.SessionID, "error", err.Error())
	}
}
