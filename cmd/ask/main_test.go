package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeeves-cluster-organization/assistant/coreengine/graph"
	assistantgrpc "github.com/jeeves-cluster-organization/assistant/coreengine/grpc"
	"github.com/jeeves-cluster-organization/assistant/coreengine/session"
	"github.com/jeeves-cluster-organization/assistant/coreengine/stages"
	"github.com/jeeves-cluster-organization/assistant/coreengine/state"
	"github.com/jeeves-cluster-organization/assistant/coreengine/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// runCLI executes the CLI in process with the given args and stdin.
func runCLI(t *testing.T, input string, args ...string) (string, string, int) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(input), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// parseJSON parses JSON output into a map.
func parseJSON(t *testing.T, output string) map[string]any {
	t.Helper()

	var result map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &result); err != nil {
		t.Fatalf("Failed to parse JSON output: %v\nOutput: %s", err, output)
	}
	return result
}

// localEnv points in-process runs at a fake Ollama server with speech and
// memory disabled.
func localEnv(t *testing.T) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"done":    true,
			"message": map[string]string{"role": "assistant", "content": "general 0.8"},
		})
	}))
	t.Cleanup(srv.Close)

	t.Setenv("ASSISTANT_LLM_HOST", srv.URL)
	t.Setenv("ASSISTANT_SPEECH_TTS_ENABLED", "false")
	t.Setenv("ASSISTANT_SPEECH_STT_ENABLED", "false")
	t.Setenv("ASSISTANT_MEMORY_TYPE", "none")
}

// startServer runs an assistant server backed by mock capabilities.
func startServer(t *testing.T, caps *testutil.MockCapabilities) (string, *session.Tracker) {
	t.Helper()

	tracker := session.NewTracker(nil, nil)
	orch, err := graph.NewOrchestrator(graph.Dependencies{
		Stages:  stages.NewSet(caps.Capabilities(), stages.Options{}),
		Tracker: tracker,
	}, graph.Options{})
	require.NoError(t, err)

	srv := assistantgrpc.NewGracefulServer(assistantgrpc.NewAssistantServer(orch, tracker, nil), "127.0.0.1:0", nil)
	_, err = srv.StartBackground()
	require.NoError(t, err)
	t.Cleanup(func() { srv.ShutdownWithTimeout(time.Second) })

	return srv.Address(), tracker
}

// =============================================================================
// FLAGS AND USAGE
// =============================================================================

func TestCLI_Version(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "", "version")

	assert.Equal(t, 0, exitCode)
	assert.Equal(t, Version, parseJSON(t, stdout)["version"])
}

func TestCLI_VersionYAML(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "", "-format", "yaml", "version")
	require.Equal(t, 0, exitCode)

	var out map[string]string
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, Version, out["version"])
}

func TestCLI_UsageErrors(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		stderr string
	}{
		{"no command", nil, "Usage: ask"},
		{"unknown command", []string{"explode"}, "Unknown command: explode"},
		{"bad format", []string{"-format", "xml", "version"}, "Unknown format: xml"},
		{"bad flag", []string{"-nope"}, "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, exitCode := runCLI(t, "", tt.args...)
			assert.Equal(t, 2, exitCode)
			assert.Contains(t, stderr, tt.stderr)
		})
	}
}

func TestCLI_RemoteOnlyCommands(t *testing.T) {
	tests := []struct {
		args    []string
		message string
	}{
		{[]string{"status", "abc"}, "status requires -addr"},
		{[]string{"cancel", "abc"}, "cancel requires -addr"},
		{[]string{"sessions"}, "sessions requires -addr"},
		{[]string{"status"}, "status requires exactly one session id"},
	}
	for _, tt := range tests {
		stdout, _, exitCode := runCLI(t, "", tt.args...)
		assert.Equal(t, 1, exitCode)

		result := parseJSON(t, stdout)
		assert.Equal(t, true, result["error"])
		assert.Equal(t, "usage", result["code"])
		assert.Equal(t, tt.message, result["message"])
	}
}

// =============================================================================
// IN-PROCESS MODE
// =============================================================================

func TestCLI_ProcessLocal_FromArgs(t *testing.T) {
	localEnv(t)

	stdout, stderr, exitCode := runCLI(t, "", "process", "What", "is", "a", "goroutine?")
	require.Equal(t, 0, exitCode, stderr)

	var resp assistantgrpc.ProcessResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, assistantgrpc.ProcessStatusCompleted, resp.Status)
	assert.NotEmpty(t, resp.SessionID)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "What is a goroutine?", resp.Result.Query)
	assert.NotEmpty(t, resp.Steps)
}

func TestCLI_ProcessLocal_FromStdin(t *testing.T) {
	localEnv(t)

	inputs := map[string]string{
		"json": `{"query": "Explain channels", "session_id": "cli-json"}`,
		"yaml": "query: Explain channels\nsession_id: cli-yaml\n",
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			stdout, stderr, exitCode := runCLI(t, input, "process")
			require.Equal(t, 0, exitCode, stderr)

			result := parseJSON(t, stdout)
			assert.Equal(t, "cli-"+name, result["session_id"])
			assert.Equal(t, assistantgrpc.ProcessStatusCompleted, result["status"])
		})
	}
}

func TestCLI_ProcessLocal_YAMLOutput(t *testing.T) {
	localEnv(t)

	stdout, stderr, exitCode := runCLI(t, "", "-format", "yaml", "process", "hello")
	require.Equal(t, 0, exitCode, stderr)

	var out map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, assistantgrpc.ProcessStatusCompleted, out["status"])
	assert.Contains(t, out, "steps")
	assert.Contains(t, out, "session_id")
}

func TestCLI_ProcessLocal_Errors(t *testing.T) {
	localEnv(t)

	tests := []struct {
		name  string
		input string
		code  string
	}{
		{"empty request", `{}`, "invalid_request"},
		{"malformed json", `{"query": `, "parse_error"},
		{"malformed yaml", "query: [unclosed", "parse_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, exitCode := runCLI(t, tt.input, "process")
			assert.Equal(t, 1, exitCode)

			result := parseJSON(t, stdout)
			assert.Equal(t, true, result["error"])
			assert.Equal(t, tt.code, result["code"])
		})
	}
}

func TestCLI_StagesLocal(t *testing.T) {
	localEnv(t)

	stdout, stderr, exitCode := runCLI(t, "", "stages")
	require.Equal(t, 0, exitCode, stderr)

	var snaps []stages.Snapshot
	require.NoError(t, json.Unmarshal([]byte(stdout), &snaps))
	assert.Len(t, snaps, 10)
}

func TestCLI_ConfigError(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "", "-config", "/does/not/exist.yaml", "stages")
	assert.Equal(t, 1, exitCode)
	assert.Equal(t, "config_error", parseJSON(t, stdout)["code"])
}

// =============================================================================
// REMOTE MODE
// =============================================================================

func TestCLI_Remote(t *testing.T) {
	addr, _ := startServer(t, testutil.NewMockCapabilities(state.IntentGeneral))

	stdout, stderr, exitCode := runCLI(t, `{"query": "remote question", "session_id": "r-1"}`, "-addr", addr, "process")
	require.Equal(t, 0, exitCode, stderr)
	result := parseJSON(t, stdout)
	assert.Equal(t, "r-1", result["session_id"])
	assert.Equal(t, assistantgrpc.ProcessStatusCompleted, result["status"])

	stdout, _, exitCode = runCLI(t, "", "-addr", addr, "status", "r-1")
	require.Equal(t, 0, exitCode)
	assert.Equal(t, string(session.StatusCompleted), parseJSON(t, stdout)["status"])

	stdout, _, exitCode = runCLI(t, "", "-addr", addr, "sessions")
	require.Equal(t, 0, exitCode)
	var list []session.Snapshot
	require.NoError(t, json.Unmarshal([]byte(stdout), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "r-1", list[0].SessionID)

	stdout, _, exitCode = runCLI(t, "", "-addr", addr, "stages")
	require.Equal(t, 0, exitCode)
	var snaps []stages.Snapshot
	require.NoError(t, json.Unmarshal([]byte(stdout), &snaps))
	assert.Len(t, snaps, 10)
}

func TestCLI_RemoteCancel(t *testing.T) {
	addr, tracker := startServer(t, testutil.NewMockCapabilities(state.IntentGeneral))
	require.NoError(t, tracker.Create("pending"))

	stdout, _, exitCode := runCLI(t, "", "-addr", addr, "cancel", "pending")
	require.Equal(t, 0, exitCode)
	result := parseJSON(t, stdout)
	assert.Equal(t, "pending", result["session_id"])
	assert.Equal(t, true, result["cancelled"])
	assert.True(t, tracker.IsCancelled("pending"))
}

func TestCLI_RemoteErrors(t *testing.T) {
	addr, _ := startServer(t, testutil.NewMockCapabilities(state.IntentGeneral))

	stdout, _, exitCode := runCLI(t, "", "-addr", addr, "status", "missing")
	assert.Equal(t, 1, exitCode)
	assert.Equal(t, "not_found", parseJSON(t, stdout)["code"])

	stdout, _, exitCode = runCLI(t, `{}`, "-addr", addr, "process")
	assert.Equal(t, 1, exitCode)
	assert.Equal(t, "invalid_argument", parseJSON(t, stdout)["code"])
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "not_found", snakeCase("NotFound"))
	assert.Equal(t, "invalid_argument", snakeCase("InvalidArgument"))
	assert.Equal(t, "internal", snakeCase("Internal"))
}
