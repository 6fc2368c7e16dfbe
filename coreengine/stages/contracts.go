package stages

import "context"

// Classifier resolves intent and entities for a query.
type Classifier interface {
	Classify(ctx context.Context, in ClassifyInput) (Classification, error)
}

// Researcher produces research content for a query.
type Researcher interface {
	Research(ctx context.Context, in ResearchInput) (ContentOutput, error)
}

// Comparer produces a structured comparison between entities.
type Comparer interface {
	Compare(ctx context.Context, in CompareInput) (ContentOutput, error)
}

// Retriever answers from the document corpus.
type Retriever interface {
	Retrieve(ctx context.Context, in RetrieveInput) (ContentOutput, error)
}

// Summarizer condenses content.
type Summarizer interface {
	Summarize(ctx context.Context, in SummarizeInput) (Summary, error)
}

// Critic scores the quality of a summary.
type Critic interface {
	Critique(ctx context.Context, in CritiqueInput) (Critique, error)
}

// VisionAnalyzer describes an image.
type VisionAnalyzer interface {
	Describe(ctx context.Context, in MediaInput) (TextOutput, error)
}

// TextExtractor extracts text from an image (OCR).
type TextExtractor interface {
	ExtractText(ctx context.Context, in MediaInput) (TextOutput, error)
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, in MediaInput) (TextOutput, error)
}

// Synthesizer renders text to an audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, in SpeechInput) (Audio, error)
}

// Capabilities bundles the collaborators behind each stage.
// A nil capability makes its stage always return the fallback payload.
type Capabilities struct {
	Classifier  Classifier
	Researcher  Researcher
	Comparer    Comparer
	Retriever   Retriever
	Summarizer  Summarizer
	Critic      Critic
	Vision      VisionAnalyzer
	OCR         TextExtractor
	Transcriber Transcriber
	Synthesizer Synthesizer
}
