// Package claude invokes the claude CLI as a worker subprocess and
// records each turn for later session resumption.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// classification sentinels for invocation failures.
var (
	// ErrInvalidArgument marks a caller mistake: empty prompt or
	// a non-positive timeout.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTimeout marks an invocation killed by its deadline.
	ErrTimeout = errors.New("invocation timed out")

	// ErrProvider marks a subprocess that exited nonzero or returned
	// an unparseable envelope.
	ErrProvider = errors.New("provider failure")
)

const (
	// stderrLimit caps how much subprocess stderr is folded into an
	// error message.
	stderrLimit = 1000

	// killGrace is how long a timed-out process has to exit after
	// SIGTERM before it is force-killed.
	killGrace = 10 * time.Second
)

// Invoker runs the claude binary. The zero value is not usable; construct
// with NewInvoker.
type Invoker struct {
	// Binary is the executable to run, typically "claude" resolved
	// from PATH or an absolute path from config.
	Binary string

	// WorkDir is the subprocess working directory. Empty means inherit.
	WorkDir string

	// Timeout bounds each invocation.
	Timeout time.Duration

	// MCPConfig, when set, is passed as --mcp-config with
	// --strict-mcp-config so only the named servers load.
	MCPConfig string

	// SessionDir is where response records are persisted. Empty
	// disables persistence.
	SessionDir string

	log *slog.Logger
}

// NewInvoker builds an Invoker with the given binary and timeout.
func NewInvoker(binary string, timeout time.Duration) *Invoker {
	if binary == "" {
		binary = "claude"
	}
	return &Invoker{
		Binary:  binary,
		Timeout: timeout,
		log:     slog.Default(),
	}
}

// Validate checks that the configured binary is runnable. A failure is
// advisory: the caller may still attempt invocations, which will then
// fail with a clearer error.
func (iv *Invoker) Validate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, iv.Binary, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s --version: %w: %s", iv.Binary, err, truncate(string(out), stderrLimit))
	}
	iv.log.Debug("provider binary validated", "binary", iv.Binary, "version", strings.TrimSpace(string(out)))
	return nil
}

// Invoke runs one turn: the prompt goes to the subprocess on stdin and
// the final JSON envelope comes back on stdout. resumeSession, when
// non-empty, continues an existing conversation.
func (iv *Invoker) Invoke(ctx context.Context, prompt, resumeSession string) (*InvocationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrInvalidArgument)
	}
	if iv.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidArgument, iv.Timeout)
	}

	ctx, cancel := context.WithTimeout(ctx, iv.Timeout)
	defer cancel()

	args := []string{"-p", "", "--output-format", "json"}
	if resumeSession != "" {
		args = append(args, "--resume", resumeSession)
	}
	if iv.MCPConfig != "" {
		args = append(args, "--mcp-config", iv.MCPConfig, "--strict-mcp-config")
	}

	cmd := exec.CommandContext(ctx, iv.Binary, args...)
	cmd.Dir = iv.WorkDir
	cmd.Env = buildEnv(os.Environ())
	cmd.Stdin = strings.NewReader(prompt)
	cmd.SysProcAttr = sessionAttr()
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	cmd.WaitDelay = killGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	iv.log.Debug("invoking provider", "binary", iv.Binary, "resume", resumeSession != "", "workdir", iv.WorkDir)
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, iv.Timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrProvider, iv.Binary, err, truncate(stderr.String(), stderrLimit))
	}

	var resp CLIResponse
	if uerr := json.Unmarshal(stdout.Bytes(), &resp); uerr != nil {
		return nil, fmt.Errorf("%w: parse response: %v: %s", ErrProvider, uerr, truncate(stdout.String(), stderrLimit))
	}
	if resp.IsError {
		return nil, fmt.Errorf("%w: %s", ErrProvider, truncate(resp.Result, stderrLimit))
	}
	if resumedDifferentSession(resumeSession, resp.SessionID) {
		iv.log.Warn("provider resumed a different session", "requested", resumeSession, "got", resp.SessionID)
	}

	iv.log.Info("provider turn complete",
		"session", resp.SessionID,
		"turns", resp.NumTurns,
		"cost_usd", resp.TotalCostUSD,
		"elapsed", elapsed.Round(time.Millisecond))

	if iv.SessionDir != "" {
		rec := &ResponseRecord{
			Version:   RecordVersion,
			Timestamp: start.UTC(),
			Prompt:    prompt,
			Text:      resp.Result,
			SessionID: resp.SessionID,
			Method:    MethodCLI,
			Provider:  "claude",
			Raw:       json.RawMessage(stdout.Bytes()),
		}
		if perr := PersistRecord(iv.SessionDir, rec); perr != nil {
			iv.log.Warn("failed to persist response record", "error", perr)
		}
	}

	return &InvocationResult{
		Text:       resp.Result,
		SessionID:  resp.SessionID,
		CostUSD:    resp.TotalCostUSD,
		DurationMs: resp.DurationMs,
		NumTurns:   resp.NumTurns,
	}, nil
}

// buildEnv filters the parent environment for the subprocess: the
// CLAUDECODE nesting marker is stripped and MCP consent popups are
// disabled so the worker never blocks on a prompt.
func buildEnv(parent []string) []string {
	env := make([]string, 0, len(parent)+1)
	for _, kv := range parent {
		if strings.HasPrefix(kv, "CLAUDECODE=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "CLAUDE_CODE_DISABLE_MCP_POPUPS=1")
}

// resumedDifferentSession reports whether a resume was requested and the
// provider answered under another session ID. That happens when the CLI
// forks or compacts a conversation; it is worth a warning, not an error.
func resumedDifferentSession(requested, got string) bool {
	return requested != "" && got != "" && got != requested
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
