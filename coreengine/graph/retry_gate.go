package graph

import "github.com/jeeves-cluster-organization/assistant/coreengine/state"

// Default quality-loop bounds.
const (
	DefaultRetryLimit           = 1
	DefaultCritiqueAttemptLimit = 2
)

// RetryGate bounds the critique loop.
type RetryGate struct {
	// RetryLimit is the maximum number of forced returns to research.
	RetryLimit int
	// CritiqueAttemptLimit gates entry into critique by retry count.
	CritiqueAttemptLimit int
}

// DefaultRetryGate allows one retry and two critique attempts.
func DefaultRetryGate() RetryGate {
	return RetryGate{RetryLimit: DefaultRetryLimit, CritiqueAttemptLimit: DefaultCritiqueAttemptLimit}
}

// ShouldCritique runs after Summarize.
func (g RetryGate) ShouldCritique(s *state.WorkflowState) NodeID {
	if s.RetryCount < g.CritiqueAttemptLimit {
		return NodeCritique
	}
	return afterQuality(s)
}

// HandleCritiqueResult runs after Critique. Once the retry cap is reached the
// pipeline proceeds whatever the quality.
func (g RetryGate) HandleCritiqueResult(s *state.WorkflowState) Decision {
	if s.NeedsImprovement && s.RetryCount < g.RetryLimit {
		return Decision{Next: NodeResearch, Retry: true}
	}
	return Decision{Next: afterQuality(s)}
}

func afterQuality(s *state.WorkflowState) NodeID {
	if s.EnableTTS {
		return NodeTextToSpeech
	}
	return NodeFinalize
}
