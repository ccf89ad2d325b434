package transport

// ChatRequest is the JSON body posted to the chat/completions endpoint.
type ChatRequest struct {
	// Messages is the conversation sent to the model.
	Messages []ChatMessage `json:"messages"`
	// Stream is always true; the bridge only speaks SSE.
	Stream bool `json:"stream"`
	// Model is the deployment or model name.
	Model string `json:"model"`
	// MaxTokens limits the model output.
	MaxTokens int `json:"max_tokens"`
	// Temperature controls randomness when set.
	Temperature *float64 `json:"temperature,omitempty"`
	// Tools advertises callable functions to the model.
	Tools []Tool `json:"tools,omitempty"`
}

// ChatMessage is one outbound conversation entry.
type ChatMessage struct {
	// Role is one of system, user, or assistant.
	Role string `json:"role"`
	// Content carries the message text.
	Content string `json:"content"`
}

// Tool describes a callable function for the model.
type Tool struct {
	// Type must be "function".
	Type string `json:"type"`
	// Function describes the callable function contract.
	Function ToolFunction `json:"function"`
}

// ToolFunction defines a function for tool calling.
type ToolFunction struct {
	// Name is the unique identifier for the function.
	Name string `json:"name"`
	// Description provides a natural language summary.
	Description string `json:"description,omitempty"`
	// Parameters is a JSON Schema object describing inputs.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// StreamChunk is one parsed SSE data payload from the gateway.
type StreamChunk struct {
	// ID is the provider request id.
	ID string `json:"id,omitempty"`
	// Model identifies the model that produced the chunk; when present it
	// overrides the configured model label on normalized messages.
	Model string `json:"model,omitempty"`
	// Choices carries incremental delta updates.
	Choices []StreamChoice `json:"choices,omitempty"`
}

// StreamChoice represents a streaming choice delta.
type StreamChoice struct {
	// Index is the choice index.
	Index int `json:"index"`
	// Delta holds the incremental message update.
	Delta StreamDelta `json:"delta"`
	// FinishReason signals why generation stopped.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// StreamDelta represents incremental message content.
type StreamDelta struct {
	// Role sets the assistant role on the first delta of a stream.
	Role string `json:"role,omitempty"`
	// Content holds streamed text.
	Content string `json:"content,omitempty"`
	// ToolCalls streams tool call fragments.
	ToolCalls []ToolCallFragment `json:"tool_calls,omitempty"`
}

// ToolCallFragment represents incremental tool call data. Arguments may be
// a partial JSON document while the call is still streaming.
type ToolCallFragment struct {
	// Index identifies the tool call position.
	Index int `json:"index"`
	// ID is the tool call id, present on the first fragment.
	ID string `json:"id,omitempty"`
	// Type is the tool call type, typically "function".
	Type string `json:"type,omitempty"`
	// Function contains the function name and argument text; nil when the
	// fragment carries no function payload at all.
	Function *ToolCallFunctionFragment `json:"function,omitempty"`
}

// ToolCallFunctionFragment carries incremental tool function fields.
type ToolCallFunctionFragment struct {
	// Name identifies the tool to invoke.
	Name string `json:"name,omitempty"`
	// Arguments contains JSON argument text, possibly truncated mid-stream.
	Arguments string `json:"arguments,omitempty"`
}
