// Package azureoai is a client bridge for chat completions served by an
// Azure OpenAI deployment behind an API Management gateway. It owns the
// OAuth2 client-credentials token cache and the streaming decoder that
// turns the gateway's SSE byte stream into normalized messages.
package azureoai

import (
	"context"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/auth"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/transport"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/messages"
)

// QueryStream sends one prompt and feeds every normalized message to the
// handler in arrival order, ending with exactly one terminal result message.
// Setup and HTTP failures return a *ConnectionError before or instead of
// further messages; an error returned by the handler aborts the stream and
// comes back wrapped, matchable with errors.Is.
func QueryStream(ctx context.Context, prompt string, options Options, handler func(messages.Message) error) error {
	if err := options.validate(); err != nil {
		return err
	}

	tokenCache := auth.NewTokenCache(auth.Credentials{
		TenantID:     options.TenantID,
		ClientID:     options.ClientID,
		ClientSecret: options.ClientSecret,
		Scope:        options.Scope,
		Authority:    options.Authority,
	}, options.HTTPClient)

	session := transport.NewStreamSession(prompt, tokenCache, transport.Config{
		Endpoint:        options.Endpoint,
		SubscriptionKey: options.SubscriptionKey,
		Model:           options.Model,
		MaxTokens:       options.MaxTokens,
		Temperature:     options.Temperature,
		Tools:           wireTools(options.Tools),
		HTTPClient:      options.HTTPClient,
	})
	defer session.Close()

	if err := session.Connect(ctx); err != nil {
		return &ConnectionError{msg: "failed to connect to azure openai", err: err}
	}
	if err := session.ReadMessages(ctx, handler); err != nil {
		return &ConnectionError{msg: "azure openai stream failed", err: err}
	}
	return nil
}

// Query sends one prompt and collects the full normalized message sequence,
// terminal result included.
func Query(ctx context.Context, prompt string, options Options) ([]messages.Message, error) {
	var collected []messages.Message
	err := QueryStream(ctx, prompt, options, func(message messages.Message) error {
		collected = append(collected, message)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return collected, nil
}

// wireTools maps the public tool shape onto the request wire format.
func wireTools(tools []Tool) []transport.Tool {
	if len(tools) == 0 {
		return nil
	}
	wired := make([]transport.Tool, 0, len(tools))
	for _, tool := range tools {
		wired = append(wired, transport.Tool{
			Type: "function",
			Function: transport.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return wired
}
