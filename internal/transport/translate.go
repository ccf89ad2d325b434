package transport

import (
	"encoding/json"
	"strings"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/logging"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/messages"
)

// doneSentinel is the payload the gateway sends to end a stream early.
const doneSentinel = "[DONE]"

// translator maps assembled SSE event blocks into normalized messages for
// one session. Malformed payloads are logged and dropped; they never abort
// the stream.
type translator struct {
	sessionID string
	// model labels messages whose chunks carry no model field.
	model string
}

// translate processes one event block. It returns the normalized messages
// produced by the block's data lines and whether the [DONE] sentinel was
// seen; once done, no further payloads in the block are examined and the
// stream must not be read again.
func (t *translator) translate(block string) ([]messages.Message, bool) {
	var out []messages.Message
	for _, payload := range dataPayloads(block) {
		if payload == doneSentinel {
			return out, true
		}
		var chunk StreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			logging.Warn("transport", "skipping malformed stream payload: %v", err)
			continue
		}
		if message := t.chunkToMessage(chunk); message != nil {
			out = append(out, message)
		}
	}
	return out, false
}

// chunkToMessage maps one delta chunk to at most one assistant message.
// A role-only delta, or one with neither text nor complete tool calls,
// produces nothing.
func (t *translator) chunkToMessage(chunk StreamChunk) *messages.Assistant {
	if len(chunk.Choices) == 0 {
		return nil
	}
	delta := chunk.Choices[0].Delta

	var blocks []messages.ContentBlock
	if delta.Content != "" {
		blocks = append(blocks, messages.TextBlock(delta.Content))
	}
	for _, fragment := range delta.ToolCalls {
		if fragment.Function == nil || fragment.Function.Name == "" {
			logging.Warn("transport", "skipping tool call fragment without a function")
			continue
		}
		input, ok := parseToolArguments(fragment.Function.Arguments)
		if !ok {
			// Partial argument JSON: the fragment is dropped whole rather
			// than emitted with an empty or wrong payload.
			continue
		}
		blocks = append(blocks, messages.ToolUseBlock(fragment.ID, fragment.Function.Name, input))
	}
	if len(blocks) == 0 {
		return nil
	}

	model := chunk.Model
	if model == "" {
		model = t.model
	}
	return messages.NewAssistant(t.sessionID, model, blocks)
}

// parseToolArguments parses a tool call's argument text. Absent arguments
// mean an empty input object; text that is not complete JSON reports false.
func parseToolArguments(arguments string) (any, bool) {
	if arguments == "" {
		return map[string]any{}, true
	}
	var input any
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return nil, false
	}
	return input, true
}

// dataPayloads extracts the data line payloads from one event block,
// dropping comments and other SSE fields.
func dataPayloads(block string) []string {
	var payloads []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		payloads = append(payloads, payload)
	}
	return payloads
}
