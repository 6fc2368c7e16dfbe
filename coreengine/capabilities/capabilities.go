package capabilities

import (
	"github.com/jeeves-cluster-organization/assistant/coreengine/corpus"
	"github.com/jeeves-cluster-organization/assistant/coreengine/llm"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
)

// Options configure the default capability bundle.
type Options struct {
	Temperature          float64
	MaxTokens            int
	VisionModel          string
	ImprovementThreshold float64
}

// New wires the LLM-backed capabilities. Speech capabilities are supplied by
// the caller since they talk to a separate server; nil leaves them unavailable.
func New(provider llm.Provider, store corpus.Store, transcriber stages.Transcriber, synthesizer stages.Synthesizer, opts Options) stages.Capabilities {
	vision := NewVision(provider, opts.VisionModel)
	caps := stages.Capabilities{
		Classifier:  NewClassifier(provider),
		Researcher:  NewResearcher(provider, opts.Temperature, opts.MaxTokens),
		Comparer:    NewComparer(provider),
		Summarizer:  NewSummarizer(provider),
		Critic:      NewCritic(provider, opts.ImprovementThreshold),
		Vision:      vision,
		OCR:         vision,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
	}
	if store != nil {
		caps.Retriever = NewRetriever(store, provider)
	}
	return caps
}
