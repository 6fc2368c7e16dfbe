package capabilities

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jeeves-cluster-organization/assistant/coreengine/llm"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
)

const visionConfidence = 0.9

// Vision describes images and extracts their text with a multimodal model.
type Vision struct {
	provider llm.Provider
	model    string
}

// NewVision creates a Vision capability using model for every call.
func NewVision(provider llm.Provider, model string) *Vision {
	return &Vision{provider: provider, model: model}
}

// Describe implements stages.VisionAnalyzer.
func (v *Vision) Describe(ctx context.Context, in stages.MediaInput) (stages.TextOutput, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		prompt = defaultVisionPrompt
	}
	text, err := v.ask(ctx, in.FilePath, prompt)
	if err != nil {
		return stages.TextOutput{}, fmt.Errorf("describe image: %w", err)
	}
	return stages.TextOutput{Text: text, Confidence: visionConfidence}, nil
}

// ExtractText implements stages.TextExtractor.
func (v *Vision) ExtractText(ctx context.Context, in stages.MediaInput) (stages.TextOutput, error) {
	text, err := v.ask(ctx, in.FilePath, ocrPrompt)
	if err != nil {
		return stages.TextOutput{}, fmt.Errorf("extract text: %w", err)
	}
	text = strings.TrimSpace(text)
	confidence := 0.0
	if text != "" {
		confidence = visionConfidence
	}
	return stages.TextOutput{Text: text, Confidence: confidence}, nil
}

func (v *Vision) ask(ctx context.Context, path, prompt string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no valid image provided: %w", err)
	}
	var opts []llm.Option
	if v.model != "" {
		opts = append(opts, llm.WithModel(v.model))
	}
	return v.provider.Chat(ctx, []llm.Message{{Role: "user", Content: prompt, Images: []string{path}}}, opts...)
}
