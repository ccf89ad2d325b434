package main

import (
	"context"

	azureoai "github.com/ucalyptus/azure-oai-agent-sdk-go"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/auth"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/transport"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/messages"
)

// bridge runs prompt turns against one shared token cache, so repeated turns
// in an interactive session reuse the cached bearer token instead of
// exchanging credentials on every prompt.
type bridge struct {
	tokens *auth.TokenCache
	config transport.Config
}

// newBridge wires resolved options into a reusable turn runner.
func newBridge(opts azureoai.Options) *bridge {
	return &bridge{
		tokens: auth.NewTokenCache(auth.Credentials{
			TenantID:     opts.TenantID,
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Scope:        opts.Scope,
			Authority:    opts.Authority,
		}, opts.HTTPClient),
		config: transport.Config{
			Endpoint:        opts.Endpoint,
			SubscriptionKey: opts.SubscriptionKey,
			Model:           opts.Model,
			MaxTokens:       opts.MaxTokens,
			Temperature:     opts.Temperature,
			HTTPClient:      opts.HTTPClient,
		},
	}
}

// runTurn streams one prompt, feeding every normalized message to the
// handler in arrival order. Each turn is its own stream session; the token
// cache is the only state shared between turns.
func (b *bridge) runTurn(ctx context.Context, prompt string, handler func(messages.Message) error) error {
	turn := transport.NewStreamSession(prompt, b.tokens, b.config)
	defer turn.Close()

	if err := turn.Connect(ctx); err != nil {
		return err
	}
	return turn.ReadMessages(ctx, handler)
}

// displayModel resolves the model label shown in headers and output.
func (b *bridge) displayModel() string {
	if b.config.Model != "" {
		return b.config.Model
	}
	return transport.DefaultModel
}
