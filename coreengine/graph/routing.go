package graph

import "github.com/jeeves-cluster-organization/assistant/coreengine/state"

// Decision is the outcome of a routing function.
type Decision struct {
	Next NodeID
	// Retry asks the engine to increment the retry counter while taking the edge.
	Retry bool
}

// RouteAfterIntent picks the content branch after classification.
// Multimodal input always wins; retrieval needs a non-empty corpus.
func RouteAfterIntent(s *state.WorkflowState) NodeID {
	switch {
	case s.InputType.IsMultimodal():
		return NodeMultimodalProcessing
	case s.Intent == state.IntentCompare:
		return NodeCompare
	case state.IsRetrievalIntent(s.Intent) && s.CorpusDocuments > 0:
		return NodeRetrieve
	default:
		return NodeResearch
	}
}
