// Package main provides the ask CLI.
//
// ask runs a single request through the assistant workflow, either in
// process or against a running assistant server, and prints the result.
//
// Usage:
//
//	# Run a request in process (reads a JSON or YAML request from stdin)
//	echo '{"query": "What is a goroutine?"}' | ask process
//
//	# Query given on the command line
//	ask process What is a goroutine?
//
//	# Against a server
//	ask -addr localhost:50051 process What is a goroutine?
//	ask -addr localhost:50051 status <session-id>
//	ask -addr localhost:50051 cancel <session-id>
//	ask -addr localhost:50051 sessions
//	ask -addr localhost:50051 -format yaml stages
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"

	"github.com/jeeves-cluster-organization/assistant/coreengine/config"
	"github.com/jeeves-cluster-organization/assistant/coreengine/graph"
	assistantgrpc "github.com/jeeves-cluster-organization/assistant/coreengine/grpc"
	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"github.com/jeeves-cluster-organization/assistant/coreengine/runtime"
	"github.com/jeeves-cluster-organization/assistant/coreengine/state"
)

const (
	cmdProcess  = "process"
	cmdStatus   = "status"
	cmdCancel   = "cancel"
	cmdSessions = "sessions"
	cmdStages   = "stages"
	cmdVersion  = "version"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// cli carries the parsed flags and streams of one invocation.
type cli struct {
	configPath string
	addr       string
	format     string
	verbose    bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}

	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&c.configPath, "config", "", "path to a YAML config file (in-process mode)")
	fs.StringVar(&c.addr, "addr", "", "assistant server address; empty runs in process")
	fs.StringVar(&c.format, "format", formatJSON, "output format: json or yaml")
	fs.BoolVar(&c.verbose, "v", false, "log engine activity to stderr")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if c.format != formatJSON && c.format != formatYAML {
		fmt.Fprintf(stderr, "Unknown format: %s\n", c.format)
		return 2
	}
	if fs.NArg() < 1 {
		printUsage(stderr, fs)
		return 2
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	var err error
	switch cmd {
	case cmdVersion:
		err = c.write(map[string]string{"version": Version})
	case cmdProcess:
		err = c.process(ctx, rest)
	case cmdStatus, cmdCancel:
		err = c.sessionCommand(ctx, cmd, rest)
	case cmdSessions:
		err = c.sessions(ctx)
	case cmdStages:
		err = c.stages(ctx)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr, fs)
		return 2
	}
	if err != nil {
		c.writeError(err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, `Usage: ask [flags] <command> [args]

Commands:
  process [query]   Run a request; without a query, read JSON or YAML from stdin
  status <id>       Show a session (requires -addr)
  cancel <id>       Cancel a session (requires -addr)
  sessions          List sessions (requires -addr)
  stages            Show stage executor status
  version           Print version information

Flags:`)
	fs.PrintDefaults()
}

// cliError is the machine readable failure written to stdout.
type cliError struct {
	code    string
	message string
}

func (e *cliError) Error() string { return e.message }

func newCLIError(code, format string, args ...any) error {
	return &cliError{code: code, message: fmt.Sprintf(format, args...)}
}

func (c *cli) process(ctx context.Context, args []string) error {
	req, err := c.readRequest(args)
	if err != nil {
		return err
	}

	if c.addr != "" {
		return c.withClient(func(client *assistantgrpc.Client) error {
			resp, err := client.Process(ctx, req)
			if err != nil {
				return err
			}
			return c.write(resp)
		})
	}

	rt, err := c.localRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ws, err := rt.Orchestrator.Process(ctx, req)
	switch {
	case err == nil:
		return c.write(assistantgrpc.ProcessResponse{
			SessionID: ws.SessionID,
			Status:    assistantgrpc.ProcessStatusCompleted,
			Result:    ws.FinalResult,
			Steps:     ws.ProcessingSteps,
		})
	case errors.Is(err, graph.ErrCancelled):
		return c.write(assistantgrpc.ProcessResponse{
			SessionID: ws.SessionID,
			Status:    assistantgrpc.ProcessStatusCancelled,
			Steps:     ws.ProcessingSteps,
		})
	case errors.Is(err, graph.ErrInvalidRequest):
		return newCLIError("invalid_request", "%s", err.Error())
	default:
		return err
	}
}

// readRequest builds a request from the remaining args or from stdin.
func (c *cli) readRequest(args []string) (state.Request, error) {
	var req state.Request
	if len(args) > 0 {
		req.Query = strings.Join(args, " ")
		return req, nil
	}

	input, err := io.ReadAll(c.stdin)
	if err != nil {
		return req, newCLIError("read_error", "%s", err.Error())
	}
	decode := yaml.Unmarshal
	if trimmed := bytes.TrimSpace(input); len(trimmed) > 0 && trimmed[0] == '{' {
		decode = json.Unmarshal
	}
	if err := decode(input, &req); err != nil {
		return req, newCLIError("parse_error", "Invalid request: %s", err.Error())
	}
	return req, nil
}

func (c *cli) sessionCommand(ctx context.Context, cmd string, args []string) error {
	if len(args) != 1 {
		return newCLIError("usage", "%s requires exactly one session id", cmd)
	}
	if c.addr == "" {
		return newCLIError("usage", "%s requires -addr", cmd)
	}
	return c.withClient(func(client *assistantgrpc.Client) error {
		if cmd == cmdStatus {
			snap, err := client.GetStatus(ctx, args[0])
			if err != nil {
				return err
			}
			return c.write(snap)
		}
		ok, err := client.Cancel(ctx, args[0])
		if err != nil {
			return err
		}
		return c.write(map[string]any{"session_id": args[0], "cancelled": ok})
	})
}

func (c *cli) sessions(ctx context.Context) error {
	if c.addr == "" {
		return newCLIError("usage", "sessions requires -addr")
	}
	return c.withClient(func(client *assistantgrpc.Client) error {
		list, err := client.ListSessions(ctx)
		if err != nil {
			return err
		}
		return c.write(list)
	})
}

func (c *cli) stages(ctx context.Context) error {
	if c.addr != "" {
		return c.withClient(func(client *assistantgrpc.Client) error {
			snaps, err := client.ListStages(ctx)
			if err != nil {
				return err
			}
			return c.write(snaps)
		})
	}

	rt, err := c.localRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return c.write(rt.Orchestrator.Stages())
}

func (c *cli) withClient(fn func(*assistantgrpc.Client) error) error {
	conn, err := grpc.NewClient(c.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return newCLIError("connect_error", "%s", err.Error())
	}
	defer conn.Close()
	return fn(assistantgrpc.NewClient(conn))
}

func (c *cli) localRuntime(ctx context.Context) (*runtime.Runtime, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, newCLIError("config_error", "%s", err.Error())
	}

	logger := observability.NewNopLogger()
	if c.verbose {
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(zapcore.AddSync(c.stderr)),
			zapcore.DebugLevel,
		)
		logger = observability.NewZapLogger(zap.New(core))
	}
	return runtime.New(ctx, cfg, logger)
}

// write renders v in the selected format. YAML output goes through the
// JSON form so field names match the wire names.
func (c *cli) write(v any) error {
	if c.format == formatJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(c.stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}

// writeError writes an error object to stdout in the selected format.
func (c *cli) writeError(err error) {
	code := "error"
	message := err.Error()

	var ce *cliError
	if errors.As(err, &ce) {
		code = ce.code
	} else if st, ok := status.FromError(err); ok {
		code = snakeCase(st.Code().String())
		message = st.Message()
	}

	if werr := c.write(map[string]any{"error": true, "code": code, "message": message}); werr != nil {
		fmt.Fprintf(c.stderr, "Error encoding output: %s\n", werr.Error())
	}
}

// snakeCase turns a gRPC code name such as NotFound into not_found.
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
