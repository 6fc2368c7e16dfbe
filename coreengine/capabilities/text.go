// Package capabilities provides the default LLM-backed implementations of
// the stage capability contracts.
package capabilities

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/jeeves-cluster-organization/assistant/coreengine/llm"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
	"github.com/jeeves-cluster-organization/assistant/coreengine/state"
)

// Tunables shared by the text capabilities.
const (
	defaultIntentConfidence = 0.8
	contentConfidence       = 0.9
	shortContentWords       = 100
	summaryTemperature      = 0.3
	critiqueTemperature     = 0.2
	defaultQualityScore     = 7.5
	// ImprovementThreshold is the quality score below which a retry is requested.
	ImprovementThreshold = 6.0
)

var errEmptyQuery = errors.New("empty query")

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classifier labels a query with one of state.KnownIntents.
type Classifier struct {
	provider llm.Provider
}

// NewClassifier creates a Classifier.
func NewClassifier(provider llm.Provider) *Classifier {
	return &Classifier{provider: provider}
}

// Classify implements stages.Classifier.
func (c *Classifier) Classify(ctx context.Context, in stages.ClassifyInput) (stages.Classification, error) {
	if strings.TrimSpace(in.Query) == "" {
		return stages.Classification{}, errEmptyQuery
	}
	resp, err := c.provider.Generate(ctx, fmt.Sprintf(classifyPrompt, in.Query), llm.WithTemperature(0.1))
	if err != nil {
		return stages.Classification{}, fmt.Errorf("classify: %w", err)
	}
	intent, confidence := ParseIntent(resp)
	return stages.Classification{
		Intent:     intent,
		Confidence: confidence,
		Entities:   ExtractEntities(in.Query),
	}, nil
}

// ParseIntent reads an "intent:confidence" answer. Unknown intents resolve
// to general; an unparsable confidence defaults to 0.8.
func ParseIntent(resp string) (string, float64) {
	line := strings.TrimSpace(resp)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	label, rawConfidence, found := strings.Cut(line, ":")
	intent := normalizeIntent(label)

	confidence := defaultIntentConfidence
	if found {
		if v, err := strconv.ParseFloat(strings.TrimSpace(rawConfidence), 64); err == nil && v >= 0 && v <= 1 {
			confidence = v
		}
	}
	return intent, confidence
}

func normalizeIntent(label string) string {
	label = strings.ToLower(strings.Trim(strings.TrimSpace(label), "\"'`*. "))
	label = strings.ReplaceAll(label, " ", "_")
	for _, known := range state.KnownIntents {
		if label == known {
			return known
		}
	}
	return state.IntentGeneral
}

// ExtractEntities returns title-case and upper-case words of the query.
func ExtractEntities(query string) []string {
	entities := []string{}
	for _, word := range strings.Fields(query) {
		word = strings.TrimFunc(word, unicode.IsPunct)
		if word == "" {
			continue
		}
		if isUpper(word) || isTitle(word) {
			entities = append(entities, word)
		}
	}
	return entities
}

func isUpper(word string) bool {
	hasLetter := false
	for _, r := range word {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func isTitle(word string) bool {
	runes := []rune(word)
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// =============================================================================
// RESEARCHER / COMPARER
// =============================================================================

// Researcher answers a query from the model's own knowledge.
type Researcher struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
}

// NewResearcher creates a Researcher.
func NewResearcher(provider llm.Provider, temperature float64, maxTokens int) *Researcher {
	return &Researcher{provider: provider, temperature: temperature, maxTokens: maxTokens}
}

// Research implements stages.Researcher.
func (r *Researcher) Research(ctx context.Context, in stages.ResearchInput) (stages.ContentOutput, error) {
	intent := in.Intent
	if intent == "" {
		intent = state.IntentGeneral
	}
	prompt := fmt.Sprintf(researchPrompt, in.Query, intent, in.Context)

	var opts []llm.Option
	if r.temperature > 0 {
		opts = append(opts, llm.WithTemperature(r.temperature))
	}
	if r.maxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(r.maxTokens))
	}
	resp, err := r.provider.Generate(ctx, prompt, opts...)
	if err != nil {
		return stages.ContentOutput{}, fmt.Errorf("research: %w", err)
	}
	return stages.ContentOutput{Content: resp, Confidence: contentConfidence, Sources: []string{}}, nil
}

// Comparer produces a structured comparison of entities.
type Comparer struct {
	provider llm.Provider
}

// NewComparer creates a Comparer.
func NewComparer(provider llm.Provider) *Comparer {
	return &Comparer{provider: provider}
}

// Compare implements stages.Comparer.
func (c *Comparer) Compare(ctx context.Context, in stages.CompareInput) (stages.ContentOutput, error) {
	entities := "entities mentioned in the query"
	if len(in.Entities) > 0 {
		entities = strings.Join(in.Entities, ", ")
	}
	resp, err := c.provider.Generate(ctx, fmt.Sprintf(comparePrompt, in.Query, entities))
	if err != nil {
		return stages.ContentOutput{}, fmt.Errorf("compare: %w", err)
	}
	return stages.ContentOutput{Content: resp, Confidence: contentConfidence, Sources: []string{}}, nil
}

// =============================================================================
// SUMMARIZER
// =============================================================================

// Summarizer condenses content. Short content is returned unchanged.
type Summarizer struct {
	provider llm.Provider
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(provider llm.Provider) *Summarizer {
	return &Summarizer{provider: provider}
}

// Summarize implements stages.Summarizer.
func (s *Summarizer) Summarize(ctx context.Context, in stages.SummarizeInput) (stages.Summary, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return stages.Summary{Summary: "No content to summarize", KeyPoints: []string{}}, nil
	}
	if words := stages.WordCount(content); words < shortContentWords {
		return stages.Summary{Summary: content, KeyPoints: stages.ExtractKeyPoints(content), WordCount: words}, nil
	}

	target := in.TargetLength
	if target <= 0 {
		target = 150
	}
	resp, err := s.provider.Generate(ctx, fmt.Sprintf(summarizePrompt, target, content), llm.WithTemperature(summaryTemperature))
	if err != nil {
		return stages.Summary{}, fmt.Errorf("summarize: %w", err)
	}
	return stages.Summary{Summary: resp, KeyPoints: stages.ExtractKeyPoints(resp), WordCount: stages.WordCount(resp)}, nil
}

// =============================================================================
// CRITIC
// =============================================================================

// Critic scores a response from 0 to 10.
type Critic struct {
	provider  llm.Provider
	threshold float64
}

// NewCritic creates a Critic. A non-positive threshold uses ImprovementThreshold.
func NewCritic(provider llm.Provider, threshold float64) *Critic {
	if threshold <= 0 {
		threshold = ImprovementThreshold
	}
	return &Critic{provider: provider, threshold: threshold}
}

// Critique implements stages.Critic.
func (c *Critic) Critique(ctx context.Context, in stages.CritiqueInput) (stages.Critique, error) {
	response := in.Summary
	if response == "" {
		response = in.Content
	}
	evaluation, err := c.provider.Generate(ctx,
		fmt.Sprintf(critiquePrompt, in.Query, response, critiqueCriteria),
		llm.WithTemperature(critiqueTemperature),
	)
	if err != nil {
		return stages.Critique{}, fmt.Errorf("critique: %w", err)
	}
	score := ParseQualityScore(evaluation)
	return stages.Critique{
		QualityScore:     score,
		NeedsImprovement: score < c.threshold,
		Feedback:         evaluation,
	}, nil
}

var (
	scorePattern  = regexp.MustCompile(`(?i)score[^0-9]{0,20}(\d+(?:\.\d+)?)`)
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
	// Scale hints such as "(0-10)" echoed from the critique prompt.
	rangePattern  = regexp.MustCompile(`\(\s*\d+\s*(?:-|to)\s*\d+\s*\)`)
)

// ParseQualityScore finds the score in an evaluation. Values above 10 are
// treated as out of 100; without a score the default 7.5 is used.
func ParseQualityScore(evaluation string) float64 {
	if !strings.Contains(strings.ToLower(evaluation), "score") {
		return defaultQualityScore
	}
	evaluation = rangePattern.ReplaceAllString(evaluation, "")
	raw := ""
	if m := scorePattern.FindStringSubmatch(evaluation); m != nil {
		raw = m[1]
	} else if m := numberPattern.FindString(evaluation); m != "" {
		raw = m
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultQualityScore
	}
	if score > 10 {
		score /= 10
	}
	if score > 10 {
		score = 10
	}
	return score
}
