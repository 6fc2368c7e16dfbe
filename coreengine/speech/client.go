// Package speech provides HTTP clients for speech-to-text and text-to-speech
// servers exposing the OpenAI-compatible audio endpoints
// (/v1/audio/transcriptions and /v1/audio/speech).
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
)

// ErrNoText is returned when there is nothing to synthesize.
var ErrNoText = errors.New("no text to speak")

// Config configures both clients.
type Config struct {
	BaseURL  string
	STTModel string
	TTSModel string
	Voice    string
	// AudioDir is where synthesized files are written.
	AudioDir string
	// URLPrefix is prepended to generated file names in results.
	URLPrefix string
	Timeout   time.Duration
}

func (c Config) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func newHTTPClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// =============================================================================
// SPEECH TO TEXT
// =============================================================================

// Transcriber posts audio files for transcription.
type Transcriber struct {
	cfg    Config
	client *http.Client
	logger observability.Logger
}

var _ stages.Transcriber = (*Transcriber)(nil)

// NewTranscriber creates a speech-to-text client.
func NewTranscriber(cfg Config, client *http.Client, logger observability.Logger) *Transcriber {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Transcriber{cfg: cfg, client: newHTTPClient(client, cfg.Timeout), logger: logger.Bind("component", "stt")}
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcribe implements stages.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, in stages.MediaInput) (stages.TextOutput, error) {
	f, err := os.Open(in.FilePath)
	if err != nil {
		return stages.TextOutput{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(in.FilePath))
	if err != nil {
		return stages.TextOutput{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return stages.TextOutput{}, fmt.Errorf("copy audio: %w", err)
	}
	if t.cfg.STTModel != "" {
		if err := w.WriteField("model", t.cfg.STTModel); err != nil {
			return stages.TextOutput{}, fmt.Errorf("write model field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return stages.TextOutput{}, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.endpoint("/v1/audio/transcriptions"), &body)
	if err != nil {
		return stages.TextOutput{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	respBody, err := doRequest(t.client, req)
	if err != nil {
		return stages.TextOutput{}, err
	}

	var out transcriptionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return stages.TextOutput{}, fmt.Errorf("unmarshal transcription: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	t.logger.Info("audio_transcribed", "file", filepath.Base(in.FilePath), "words", stages.WordCount(text))

	confidence := 0.0
	if text != "" {
		confidence = 0.9
	}
	return stages.TextOutput{Text: text, Confidence: confidence}, nil
}

// =============================================================================
// TEXT TO SPEECH
// =============================================================================

// Synthesizer renders text to an audio file in AudioDir.
type Synthesizer struct {
	cfg    Config
	client *http.Client
	logger observability.Logger
}

var _ stages.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer creates a text-to-speech client.
func NewSynthesizer(cfg Config, client *http.Client, logger observability.Logger) *Synthesizer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/audio/"
	}
	return &Synthesizer{cfg: cfg, client: newHTTPClient(client, cfg.Timeout), logger: logger.Bind("component", "tts")}
}

type speechRequest struct {
	Model          string `json:"model,omitempty"`
	Input          string `json:"input"`
	Voice          string `json:"voice,omitempty"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize implements stages.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, in stages.SpeechInput) (stages.Audio, error) {
	if strings.TrimSpace(in.Text) == "" {
		return stages.Audio{}, ErrNoText
	}

	payload, err := json.Marshal(speechRequest{
		Model:          s.cfg.TTSModel,
		Input:          in.Text,
		Voice:          s.cfg.Voice,
		ResponseFormat: "wav",
	})
	if err != nil {
		return stages.Audio{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.endpoint("/v1/audio/speech"), bytes.NewReader(payload))
	if err != nil {
		return stages.Audio{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	audio, err := doRequest(s.client, req)
	if err != nil {
		return stages.Audio{}, err
	}
	if len(audio) == 0 {
		return stages.Audio{}, errors.New("empty audio response")
	}

	if err := os.MkdirAll(s.cfg.AudioDir, 0o755); err != nil {
		return stages.Audio{}, fmt.Errorf("create audio dir: %w", err)
	}
	name := fmt.Sprintf("tts_output_%s.wav", uuid.New().String())
	if err := os.WriteFile(filepath.Join(s.cfg.AudioDir, name), audio, 0o644); err != nil {
		return stages.Audio{}, fmt.Errorf("write audio: %w", err)
	}

	s.logger.Info("audio_generated", "session_id", in.SessionID, "file", name, "bytes", len(audio))
	return stages.Audio{File: s.cfg.URLPrefix + name, Generated: true}, nil
}

func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech server error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
