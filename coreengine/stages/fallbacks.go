package stages

import (
	"fmt"
	"strings"
)

// Fallback payloads returned when a capability fails.

// Fallback confidence and quality values.
const (
	FallbackClassifyConfidence = 0.5
	FallbackContentConfidence  = 0.3
	FallbackRetrieveConfidence = 0.1
	FallbackQualityScore       = 7.0
)

// ClassifyFallback resolves to the general intent.
func ClassifyFallback(_ ClassifyInput, _ error) Classification {
	return Classification{Intent: "general", Confidence: FallbackClassifyConfidence, Entities: []string{}}
}

// ResearchFallback explains that research is unavailable.
func ResearchFallback(in ResearchInput, _ error) ContentOutput {
	return ContentOutput{
		Content: fmt.Sprintf("I apologize, but I'm currently unable to process your research request: %s. "+
			"Please ensure the local LLM is running and try again.", in.Query),
		Confidence: FallbackContentConfidence,
		Sources:    []string{},
	}
}

// CompareFallback explains that comparison is unavailable.
func CompareFallback(in CompareInput, _ error) ContentOutput {
	return ContentOutput{
		Content:    fmt.Sprintf("Unable to perform comparison for: %s", in.Query),
		Confidence: FallbackContentConfidence,
		Sources:    []string{},
	}
}

// RetrieveFallback explains that the knowledge base could not be searched.
func RetrieveFallback(in RetrieveInput, _ error) ContentOutput {
	return ContentOutput{
		Content:    fmt.Sprintf("Unable to retrieve relevant information for: %s", in.Query),
		Confidence: FallbackRetrieveConfidence,
		Sources:    []string{},
	}
}

// SummarizeFallback truncates the content to the target length.
func SummarizeFallback(in SummarizeInput, _ error) Summary {
	if strings.TrimSpace(in.Content) == "" {
		return Summary{Summary: "No content to summarize", KeyPoints: []string{}}
	}
	truncated := TruncateWords(in.Content, in.TargetLength)
	return Summary{
		Summary:   truncated,
		KeyPoints: ExtractKeyPoints(truncated),
		WordCount: WordCount(truncated),
	}
}

// CritiqueFallback accepts the response as-is.
func CritiqueFallback(_ CritiqueInput, _ error) Critique {
	return Critique{QualityScore: FallbackQualityScore, NeedsImprovement: false, Feedback: "Unable to evaluate response quality"}
}

// TextFallback is shared by vision, OCR and speech-to-text.
func TextFallback(_ MediaInput, _ error) TextOutput {
	return TextOutput{}
}

// AudioFallback reports that no audio was generated.
func AudioFallback(_ SpeechInput, _ error) Audio {
	return Audio{}
}

// =============================================================================
// TEXT HELPERS
// =============================================================================

const (
	maxKeyPoints       = 5
	minKeyPointLength  = 20
	defaultTruncLength = 200
)

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// TruncateWords keeps the first n words and marks the cut with "...".
func TruncateWords(s string, n int) string {
	if n <= 0 {
		n = defaultTruncLength
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}

// ExtractKeyPoints takes up to five of the first sentences longer than twenty characters.
func ExtractKeyPoints(s string) []string {
	points := []string{}
	sentences := strings.Split(s, ". ")
	if len(sentences) > maxKeyPoints {
		sentences = sentences[:maxKeyPoints]
	}
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) > minKeyPointLength {
			points = append(points, sentence)
		}
	}
	return points
}
