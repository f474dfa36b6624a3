package claude

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInvokeRejectsBadArguments(t *testing.T) {
	iv := NewInvoker("claude", time.Minute)

	if _, err := iv.Invoke(context.Background(), "   ", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty prompt: got %v, want ErrInvalidArgument", err)
	}

	iv.Timeout = 0
	if _, err := iv.Invoke(context.Background(), "do the thing", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("zero timeout: got %v, want ErrInvalidArgument", err)
	}
}

func TestRecordFileNames(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if got, want := RecordFileName(ts), "response_2026-03-14T09-26-53.json"; got != want {
		t.Errorf("RecordFileName = %q, want %q", got, want)
	}
	if got, want := StepFileName(ts, "generate-pr-text"), "2026-03-14T09-26-53_generate-pr-text.json"; got != want {
		t.Errorf("StepFileName = %q, want %q", got, want)
	}
}

func TestPersistAndFindLatestSession(t *testing.T) {
	dir := t.TempDir()

	for i, rec := range []*ResponseRecord{
		{Version: RecordVersion, Timestamp: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), SessionID: "older", Method: MethodCLI, Provider: "claude"},
		{Version: RecordVersion, Timestamp: time.Date(2026, 1, 2, 11, 30, 5, 0, time.UTC), SessionID: "newest", Method: MethodCLI, Provider: "claude"},
	} {
		if err := PersistRecord(dir, rec); err != nil {
			t.Fatalf("persist %d: %v", i, err)
		}
	}

	// Non-matching and malformed-timestamp files must be ignored.
	for _, name := range []string{
		"notes.txt",
		"response_latest.json",
		"response_2026-99-99T99-99-99.json",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(`{"session_id":"decoy"}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := FindLatestSession(dir)
	if err != nil {
		t.Fatalf("FindLatestSession: %v", err)
	}
	if got != "newest" {
		t.Errorf("FindLatestSession = %q, want %q", got, "newest")
	}
}

func TestFindLatestSessionMissingDir(t *testing.T) {
	got, err := FindLatestSession(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty session", got)
	}
}

func TestExtractSessionID(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"top level snake", `{"session_id":"abc"}`, "abc"},
		{"top level camel", `{"sessionId":"def"}`, "def"},
		{"nested raw", `{"raw":{"session_id":"ghi"}}`, "ghi"},
		{"nested response", `{"response":{"session_id":"jkl"}}`, "jkl"},
		{"precedence", `{"session_id":"top","raw":{"session_id":"nested"}}`, "top"},
		{"absent", `{"text":"hello"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractSessionID([]byte(tt.doc))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := ExtractSessionID([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseStreamLine(t *testing.T) {
	line := []byte(`{"type":"assistant","session_id":"s1","message":{"content":[` +
		`{"type":"text","text":"hello"},` +
		`{"type":"tool_use","name":"Bash","input":{"command":"ls"}},` +
		`{"type":"mystery","payload":42}]}}`)

	msg, env, err := parseStreamLine(line)
	if err != nil {
		t.Fatalf("parseStreamLine: %v", err)
	}
	if env.Type != "assistant" || msg.SessionID != "s1" {
		t.Errorf("envelope type=%q session=%q", env.Type, msg.SessionID)
	}
	if len(msg.Blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(msg.Blocks))
	}
	if msg.Blocks[0].Kind != BlockText || msg.Blocks[0].Text != "hello" {
		t.Errorf("block 0 = %+v", msg.Blocks[0])
	}
	if msg.Blocks[1].Kind != BlockToolUse || msg.Blocks[1].ToolName != "Bash" {
		t.Errorf("block 1 = %+v", msg.Blocks[1])
	}
	if msg.Blocks[2].Kind != BlockUnknown || len(msg.Blocks[2].Raw) == 0 {
		t.Errorf("block 2 = %+v", msg.Blocks[2])
	}
}

func TestParseStreamLineResult(t *testing.T) {
	line := []byte(`{"type":"result","subtype":"success","is_error":false,` +
		`"result":"done","session_id":"s2","num_turns":3,"total_cost_usd":0.12}`)
	_, env, err := parseStreamLine(line)
	if err != nil {
		t.Fatalf("parseStreamLine: %v", err)
	}
	if env.Result != "done" || env.NumTurns != 3 || env.SessionID != "s2" {
		t.Errorf("result envelope = %+v", env)
	}
}

func TestValidateHonorsCanceledContext(t *testing.T) {
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not installed")
	}
	iv := NewInvoker(path, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := iv.Validate(ctx); err == nil {
		t.Fatal("Validate succeeded under a canceled context")
	}
}

func TestResumedDifferentSession(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		got       string
		want      bool
	}{
		{"fresh invocation", "", "sess-new", false},
		{"resume honored", "sess-1", "sess-1", false},
		{"resume diverged", "sess-1", "sess-2", true},
		{"no id returned", "sess-1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resumedDifferentSession(tt.requested, tt.got); got != tt.want {
				t.Errorf("resumedDifferentSession(%q, %q) = %v, want %v", tt.requested, tt.got, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", stderrLimit+50)
	got := truncate(long, stderrLimit)
	if len(got) != stderrLimit+len("...(truncated)") {
		t.Errorf("len = %d", len(got))
	}
	if truncate("short", stderrLimit) != "short" {
		t.Error("short string should pass through")
	}
}

func TestBuildEnv(t *testing.T) {
	env := buildEnv([]string{"PATH=/bin", "CLAUDECODE=1", "HOME=/root"})
	for _, kv := range env {
		if strings.HasPrefix(kv, "CLAUDECODE=") {
			t.Errorf("nesting marker not stripped: %q", kv)
		}
	}
	found := false
	for _, kv := range env {
		if kv == "CLAUDE_CODE_DISABLE_MCP_POPUPS=1" {
			found = true
		}
	}
	if !found {
		t.Error("popup suppression variable missing")
	}
}
