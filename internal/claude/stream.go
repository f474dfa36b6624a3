package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// streamEnvelope is the wire shape of one stream-json line.
type streamEnvelope struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   struct {
		Content []json.RawMessage `json:"content"`
	} `json:"message"`
	Subtype      string  `json:"subtype"`
	IsError      bool    `json:"is_error"`
	Result       string  `json:"result"`
	DurationMs   int64   `json:"duration_ms"`
	NumTurns     int     `json:"num_turns"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// blockEnvelope is the wire shape of one content block inside an
// assistant or user message.
type blockEnvelope struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Name    string          `json:"name"`
	Content json.RawMessage `json:"content"`
}

// InvokeStreaming runs one turn in stream-json mode, delivering each
// normalized message to onMessage as it arrives. The final result
// envelope is also returned as an InvocationResult. onMessage may be
// nil when the caller only wants the final result.
func (iv *Invoker) InvokeStreaming(ctx context.Context, prompt, resumeSession string, onMessage func(StreamMessage)) (*InvocationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrInvalidArgument)
	}
	if iv.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidArgument, iv.Timeout)
	}

	ctx, cancel := context.WithTimeout(ctx, iv.Timeout)
	defer cancel()

	args := []string{"-p", "", "--output-format", "stream-json", "--verbose"}
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

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrProvider, iv.Binary, err)
	}

	start := time.Now()
	var result *InvocationResult
	var resultErr error
	var text strings.Builder

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, env, perr := parseStreamLine(line)
		if perr != nil {
			iv.log.Warn("skipping malformed stream line", "error", perr)
			continue
		}
		if onMessage != nil {
			onMessage(msg)
		}
		for _, b := range msg.Blocks {
			if b.Kind == BlockText {
				text.WriteString(b.Text)
			}
		}
		if env.Type == "result" {
			if env.IsError {
				resultErr = fmt.Errorf("%w: %s", ErrProvider, truncate(env.Result, stderrLimit))
			}
			result = &InvocationResult{
				Text:       env.Result,
				SessionID:  env.SessionID,
				CostUSD:    env.TotalCostUSD,
				DurationMs: env.DurationMs,
				NumTurns:   env.NumTurns,
			}
		}
	}
	if serr := scanner.Err(); serr != nil && resultErr == nil {
		resultErr = fmt.Errorf("%w: read stream: %v", ErrProvider, serr)
	}

	werr := cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, iv.Timeout)
	}
	if resultErr != nil {
		return nil, resultErr
	}
	if werr != nil {
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrProvider, iv.Binary, werr, truncate(stderr.String(), stderrLimit))
	}
	if result == nil {
		return nil, fmt.Errorf("%w: stream ended without result envelope", ErrProvider)
	}
	if result.Text == "" {
		result.Text = text.String()
	}
	if resumedDifferentSession(resumeSession, result.SessionID) {
		iv.log.Warn("provider resumed a different session", "requested", resumeSession, "got", result.SessionID)
	}

	iv.log.Info("provider turn complete",
		"session", result.SessionID,
		"turns", result.NumTurns,
		"cost_usd", result.CostUSD,
		"elapsed", time.Since(start).Round(time.Millisecond))

	if iv.SessionDir != "" {
		rec := &ResponseRecord{
			Version:   RecordVersion,
			Timestamp: start.UTC(),
			Prompt:    prompt,
			Text:      result.Text,
			SessionID: result.SessionID,
			Method:    MethodAPI,
			Provider:  "claude",
		}
		if perr := PersistRecord(iv.SessionDir, rec); perr != nil {
			iv.log.Warn("failed to persist response record", "error", perr)
		}
	}
	return result, nil
}

// parseStreamLine normalizes one stream-json line into a StreamMessage.
// Unknown content-block types are preserved with their raw JSON rather
// than dropped.
func parseStreamLine(line []byte) (StreamMessage, streamEnvelope, error) {
	var env streamEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return StreamMessage{}, env, fmt.Errorf("parse envelope: %w", err)
	}

	msg := StreamMessage{
		Type:      env.Type,
		SessionID: env.SessionID,
		Raw:       json.RawMessage(append([]byte(nil), line...)),
	}
	for _, raw := range env.Message.Content {
		var be blockEnvelope
		if err := json.Unmarshal(raw, &be); err != nil {
			msg.Blocks = append(msg.Blocks, ContentBlock{Kind: BlockUnknown, Raw: raw})
			continue
		}
		switch be.Type {
		case "text":
			msg.Blocks = append(msg.Blocks, ContentBlock{Kind: BlockText, Text: be.Text})
		case "tool_use":
			msg.Blocks = append(msg.Blocks, ContentBlock{Kind: BlockToolUse, ToolName: be.Name, Raw: raw})
		case "tool_result":
			msg.Blocks = append(msg.Blocks, ContentBlock{Kind: BlockToolResult, Raw: raw})
		default:
			msg.Blocks = append(msg.Blocks, ContentBlock{Kind: BlockUnknown, Raw: raw})
		}
	}
	return msg, env, nil
}
