// Package graph provides the Orchestrator: an explicit finite-state machine
// that drives one WorkflowState through the assistant's stages.
//
// Every node maps to a handler plus either a fixed successor or a pure
// routing function. Routing functions read state only; the engine applies
// edge effects (the retry counter) after the decision is made.
package graph

import "github.com/jeeves-cluster-organization/assistant/coreengine/state"

// NodeID identifies a graph node.
type NodeID string

const (
	NodePreprocess           NodeID = "preprocess"
	NodeIntentClassification NodeID = "intent_classification"
	NodeMultimodalProcessing NodeID = "multimodal_processing"
	NodeResearch             NodeID = "research"
	NodeCompare              NodeID = "compare"
	NodeRetrieve             NodeID = "retrieve"
	NodeSummarize            NodeID = "summarize"
	NodeCritique             NodeID = "critique"
	NodeTextToSpeech         NodeID = "text_to_speech"
	NodeFinalize             NodeID = "finalize"
)

// EntryNode is where every traversal starts.
const EntryNode = NodePreprocess

// AllNodes is the closed set of node identifiers.
var AllNodes = []NodeID{
	NodePreprocess, NodeIntentClassification, NodeMultimodalProcessing,
	NodeResearch, NodeCompare, NodeRetrieve, NodeSummarize, NodeCritique,
	NodeTextToSpeech, NodeFinalize,
}

// StepMessage is the progress message recorded when a node starts.
func StepMessage(id NodeID, s *state.WorkflowState) string {
	switch id {
	case NodePreprocess:
		return "Preprocessing input..."
	case NodeIntentClassification:
		return "Understanding your query..."
	case NodeMultimodalProcessing:
		switch s.InputType {
		case state.InputTypeImage:
			return "Analyzing image..."
		case state.InputTypeAudio:
			return "Transcribing audio..."
		case state.InputTypeDocument:
			return "Processing document..."
		}
		return "Processing file..."
	case NodeResearch:
		return "Researching information..."
	case NodeCompare:
		return "Comparing entities..."
	case NodeRetrieve:
		return "Searching knowledge base..."
	case NodeSummarize:
		return "Analyzing and summarizing..."
	case NodeCritique:
		return "Evaluating response quality..."
	case NodeTextToSpeech:
		return "Generating audio..."
	case NodeFinalize:
		return "Complete"
	}
	return string(id)
}
