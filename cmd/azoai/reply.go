package main

import (
	"strings"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/messages"
)

// replyBuilder aggregates a streamed turn into one completed reply: the
// concatenated text, the model label, the tools the model asked for, and the
// terminal result.
type replyBuilder struct {
	text      strings.Builder
	model     string
	toolNames []string
	result    *messages.Result
}

// newReplyBuilder constructs an empty aggregator.
func newReplyBuilder() *replyBuilder {
	return &replyBuilder{}
}

// Add folds one normalized message into the reply.
func (r *replyBuilder) Add(message messages.Message) {
	switch typed := message.(type) {
	case *messages.Assistant:
		if typed.Message.Model != "" {
			r.model = typed.Message.Model
		}
		for _, block := range typed.Message.Content {
			switch block.Type {
			case messages.BlockText:
				r.text.WriteString(block.Text)
			case messages.BlockToolUse:
				r.toolNames = append(r.toolNames, block.Name)
			}
		}
	case *messages.Result:
		r.result = typed
	}
}

// Text returns the concatenated assistant text.
func (r *replyBuilder) Text() string {
	return r.text.String()
}

// Model returns the model label seen last, empty when none streamed.
func (r *replyBuilder) Model() string {
	return r.model
}

// ToolNames returns the tool names requested during the turn, in order.
func (r *replyBuilder) ToolNames() []string {
	return r.toolNames
}

// Done reports whether the terminal result message arrived.
func (r *replyBuilder) Done() bool {
	return r.result != nil
}
