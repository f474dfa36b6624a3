package claude

import (
	"encoding/json"
	"time"
)

// CLIResponse is the provider's final JSON envelope in --output-format
// json mode.
type CLIResponse struct {
	Type          string  `json:"type"`
	Subtype       string  `json:"subtype"`
	IsError       bool    `json:"is_error"`
	DurationMs    int64   `json:"duration_ms"`
	DurationAPIMs int64   `json:"duration_api_ms"`
	NumTurns      int     `json:"num_turns"`
	Result        string  `json:"result"`
	SessionID     string  `json:"session_id"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
}

// Method identifies how the provider was invoked.
type Method string

const (
	MethodCLI Method = "cli"
	MethodAPI Method = "api"
)

// ResponseRecord is the write-once on-disk record of one LLM turn:
// prompt, resolved text, session identifier, and the provider's raw
// envelope stream.
type ResponseRecord struct {
	Version   int             `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Prompt    string          `json:"prompt"`
	Text      string          `json:"text"`
	SessionID string          `json:"session_id,omitempty"`
	Method    Method          `json:"method"`
	Provider  string          `json:"provider"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// RecordVersion is the current ResponseRecord schema version.
const RecordVersion = 1

// InvocationResult is what callers get back from a successful invocation.
type InvocationResult struct {
	Text       string
	SessionID  string
	CostUSD    float64
	DurationMs int64
	NumTurns   int
}

// BlockKind tags the polymorphic content-block kinds the streaming
// method can deliver.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	BlockUnknown    BlockKind = "unknown"
)

// ContentBlock is the tagged variant the stream normalizer produces.
// Unknown block types carry their raw JSON for diagnostics.
type ContentBlock struct {
	Kind     BlockKind       `json:"kind"`
	Text     string          `json:"text,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// StreamMessage is one typed envelope from the streaming method.
type StreamMessage struct {
	Type      string          `json:"type"` // system, assistant, user, result
	SessionID string          `json:"session_id,omitempty"`
	Blocks    []ContentBlock  `json:"blocks,omitempty"`
	Raw       json.RawMessage `json:"raw"`
}
