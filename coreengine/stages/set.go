package stages

// Set holds one executor per stage.
type Set struct {
	Classify  *Executor[ClassifyInput, Classification]
	Research  *Executor[ResearchInput, ContentOutput]
	Compare   *Executor[CompareInput, ContentOutput]
	Retrieve  *Executor[RetrieveInput, ContentOutput]
	Summarize *Executor[SummarizeInput, Summary]
	Critique  *Executor[CritiqueInput, Critique]
	Vision    *Executor[MediaInput, TextOutput]
	OCR       *Executor[MediaInput, TextOutput]
	STT       *Executor[MediaInput, TextOutput]
	TTS       *Executor[SpeechInput, Audio]
}

// NewSet wires capabilities into executors with their fallbacks.
func NewSet(caps Capabilities, opts Options) *Set {
	s := &Set{}

	var classify Func[ClassifyInput, Classification]
	if caps.Classifier != nil {
		classify = caps.Classifier.Classify
	}
	s.Classify = NewExecutor(StageClassify, classify, ClassifyFallback, opts)

	var research Func[ResearchInput, ContentOutput]
	if caps.Researcher != nil {
		research = caps.Researcher.Research
	}
	s.Research = NewExecutor(StageResearch, research, ResearchFallback, opts)

	var compare Func[CompareInput, ContentOutput]
	if caps.Comparer != nil {
		compare = caps.Comparer.Compare
	}
	s.Compare = NewExecutor(StageCompare, compare, CompareFallback, opts)

	var retrieve Func[RetrieveInput, ContentOutput]
	if caps.Retriever != nil {
		retrieve = caps.Retriever.Retrieve
	}
	s.Retrieve = NewExecutor(StageRetrieve, retrieve, RetrieveFallback, opts)

	var summarize Func[SummarizeInput, Summary]
	if caps.Summarizer != nil {
		summarize = caps.Summarizer.Summarize
	}
	s.Summarize = NewExecutor(StageSummarize, summarize, SummarizeFallback, opts)

	var critique Func[CritiqueInput, Critique]
	if caps.Critic != nil {
		critique = caps.Critic.Critique
	}
	s.Critique = NewExecutor(StageCritique, critique, CritiqueFallback, opts)

	var vision Func[MediaInput, TextOutput]
	if caps.Vision != nil {
		vision = caps.Vision.Describe
	}
	s.Vision = NewExecutor(StageVision, vision, TextFallback, opts)

	var ocr Func[MediaInput, TextOutput]
	if caps.OCR != nil {
		ocr = caps.OCR.ExtractText
	}
	s.OCR = NewExecutor(StageOCR, ocr, TextFallback, opts)

	var stt Func[MediaInput, TextOutput]
	if caps.Transcriber != nil {
		stt = caps.Transcriber.Transcribe
	}
	s.STT = NewExecutor(StageSTT, stt, TextFallback, opts)

	var tts Func[SpeechInput, Audio]
	if caps.Synthesizer != nil {
		tts = caps.Synthesizer.Synthesize
	}
	s.TTS = NewExecutor(StageTTS, tts, AudioFallback, opts)

	return s
}

// Snapshots returns the status of every executor in pipeline order.
func (s *Set) Snapshots() []Snapshot {
	return []Snapshot{
		s.Classify.Snapshot(),
		s.Vision.Snapshot(),
		s.OCR.Snapshot(),
		s.STT.Snapshot(),
		s.Research.Snapshot(),
		s.Compare.Snapshot(),
		s.Retrieve.Snapshot(),
		s.Summarize.Snapshot(),
		s.Critique.Snapshot(),
		s.TTS.Snapshot(),
	}
}
