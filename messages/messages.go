// Package messages defines the normalized message model produced by the
// Azure OpenAI bridge: incremental assistant messages built from ordered
// content blocks, and the terminal result message that ends every stream.
package messages

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Message type tags.
const (
	TypeAssistant = "assistant"
	TypeResult    = "result"
)

// Content block type tags.
const (
	BlockText    = "text"
	BlockToolUse = "tool_use"
)

// Message is implemented by every normalized message emitted by a stream.
type Message interface {
	// MessageType returns the wire type tag, TypeAssistant or TypeResult.
	MessageType() string
}

// ContentBlock is one element of an assistant message's content list.
type ContentBlock struct {
	// Type determines how the content block is interpreted.
	Type string `json:"type"`
	// Text carries plain text content for text blocks.
	Text string `json:"text,omitempty"`
	// ID identifies a tool call, when Type == tool_use.
	ID string `json:"id,omitempty"`
	// Name specifies the tool name for tool_use blocks.
	Name string `json:"name,omitempty"`
	// Input holds the fully parsed tool input for tool_use blocks.
	Input any `json:"input,omitempty"`
}

// AssistantContent is the payload of an assistant message.
type AssistantContent struct {
	// Role is always "assistant".
	Role string `json:"role"`
	// Content is the ordered list of blocks carried by this increment.
	Content []ContentBlock `json:"content"`
	// Model labels the model that produced this increment.
	Model string `json:"model"`
}

// Assistant is one incremental assistant message. A streaming response
// produces a sequence of these, each self-contained.
type Assistant struct {
	// Type is always "assistant".
	Type string `json:"type"`
	// Message carries the assistant payload.
	Message AssistantContent `json:"message"`
	// SessionID scopes the message to a stream session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the message.
	UUID string `json:"uuid"`
}

// MessageType implements Message.
func (a *Assistant) MessageType() string { return TypeAssistant }

// Result is the terminal message of a stream. Exactly one is emitted per
// completed stream, after [DONE] or end of input.
type Result struct {
	// Type is always "result".
	Type string `json:"type"`
	// Subtype describes how the stream ended.
	Subtype string `json:"subtype"`
	// IsError reports whether the stream ended in error.
	IsError bool `json:"is_error"`
	// DurationMS is total runtime in milliseconds; the bridge does not
	// measure timing and always reports zero.
	DurationMS int64 `json:"duration_ms"`
	// DurationAPIMS is API time in milliseconds; always zero, as above.
	DurationAPIMS int64 `json:"duration_api_ms"`
	// NumTurns is the number of turns processed.
	NumTurns int `json:"num_turns"`
	// Result optionally carries the aggregated assistant text.
	Result string `json:"result,omitempty"`
	// SessionID scopes the message to a stream session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the message.
	UUID string `json:"uuid"`
}

// MessageType implements Message.
func (r *Result) MessageType() string { return TypeResult }

// NewUUID returns a new identifier for messages and sessions.
func NewUUID() string {
	return uuid.NewString()
}

// NewAssistant constructs an assistant message from content blocks.
func NewAssistant(sessionID string, model string, blocks []ContentBlock) *Assistant {
	return &Assistant{
		Type: TypeAssistant,
		Message: AssistantContent{
			Role:    "assistant",
			Content: blocks,
			Model:   model,
		},
		SessionID: sessionID,
		UUID:      NewUUID(),
	}
}

// NewResult constructs the terminal result message for a session. Timing
// fields are zero; measuring duration is the caller's concern.
func NewResult(sessionID string) *Result {
	return &Result{
		Type:      TypeResult,
		Subtype:   "end",
		NumTurns:  1,
		SessionID: sessionID,
		UUID:      NewUUID(),
	}
}

// TextBlock constructs a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock constructs a tool_use content block with parsed input.
func ToolUseBlock(id string, name string, input any) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ExtractText concatenates the text blocks of a message. Non-assistant
// messages and tool_use blocks contribute nothing.
func ExtractText(message Message) string {
	assistant, ok := message.(*Assistant)
	if !ok {
		return ""
	}
	var builder strings.Builder
	for _, block := range assistant.Message.Content {
		if block.Type == BlockText {
			builder.WriteString(block.Text)
		}
	}
	return builder.String()
}

// Decode parses one JSON-encoded message, dispatching on its type tag.
func Decode(data []byte) (Message, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch probe.Type {
	case TypeAssistant:
		var assistant Assistant
		if err := json.Unmarshal(data, &assistant); err != nil {
			return nil, fmt.Errorf("decode assistant message: %w", err)
		}
		return &assistant, nil
	case TypeResult:
		var result Result
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode result message: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("decode message: unknown type %q", probe.Type)
	}
}

// Writer emits messages as JSON Lines.
type Writer struct {
	writer io.Writer
}

// NewWriter constructs a JSON Lines message writer.
func NewWriter(writer io.Writer) *Writer {
	return &Writer{writer: writer}
}

// Write emits a single message as one JSON line.
func (w *Writer) Write(message Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
