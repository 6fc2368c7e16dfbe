package capabilities

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeeves-cluster-organization/assistant/coreengine/corpus"
	"github.com/jeeves-cluster-organization/assistant/coreengine/llm"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
)

// NoDocumentsMessage is returned when the corpus has nothing relevant.
const NoDocumentsMessage = "No relevant documents found in the knowledge base."

const noDocumentsConfidence = 0.2

// Retriever answers from the corpus: it searches, then asks the model to
// synthesize the matched chunks.
type Retriever struct {
	store    corpus.Store
	provider llm.Provider
}

// NewRetriever creates a Retriever.
func NewRetriever(store corpus.Store, provider llm.Provider) *Retriever {
	return &Retriever{store: store, provider: provider}
}

// Retrieve implements stages.Retriever.
func (r *Retriever) Retrieve(ctx context.Context, in stages.RetrieveInput) (stages.ContentOutput, error) {
	results, err := r.store.Search(ctx, in.Query, in.Limit)
	if err != nil {
		return stages.ContentOutput{}, fmt.Errorf("search corpus: %w", err)
	}
	if len(results) == 0 {
		return stages.ContentOutput{Content: NoDocumentsMessage, Confidence: noDocumentsConfidence, Sources: []string{}}, nil
	}

	var docs strings.Builder
	sources := make([]string, 0, len(results))
	seen := make(map[string]bool, len(results))
	best := 0.0
	for i, res := range results {
		if i > 0 {
			docs.WriteString("\n\n")
		}
		fmt.Fprintf(&docs, "Document %d: %s", i+1, res.Document.Text)
		if !seen[res.Document.Source] {
			seen[res.Document.Source] = true
			sources = append(sources, res.Document.Source)
		}
		if res.Score > best {
			best = res.Score
		}
	}

	resp, err := r.provider.Generate(ctx, fmt.Sprintf(retrievePrompt, in.Query, docs.String()))
	if err != nil {
		return stages.ContentOutput{}, fmt.Errorf("retrieve: %w", err)
	}
	return stages.ContentOutput{Content: resp, Confidence: best, Sources: sources}, nil
}
