// Package transport drives streaming chat completions against an Azure
// OpenAI deployment behind API Management: it issues the authenticated HTTP
// request and turns the SSE response into normalized messages.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/logging"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/sse"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/messages"
)

const (
	// DefaultModel applies when no deployment name is configured.
	DefaultModel = "gpt-4"
	// DefaultMaxTokens applies when no output limit is configured.
	DefaultMaxTokens = 4096

	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
)

// TokenSource supplies bearer tokens for outbound requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config carries the request-shaping configuration for a session.
type Config struct {
	// Endpoint is the APIM base URL, with or without a trailing slash.
	Endpoint string
	// SubscriptionKey is sent as Ocp-Apim-Subscription-Key when non-empty.
	SubscriptionKey string
	// Model is the deployment name; DefaultModel applies when empty.
	Model string
	// MaxTokens limits output length; DefaultMaxTokens applies when zero.
	MaxTokens int
	// Temperature is included in the request only when non-nil.
	Temperature *float64
	// Tools advertises callable functions to the model.
	Tools []Tool
	// HTTPClient executes requests; a client without a global timeout is
	// used when nil, since streams are bounded by the caller's context.
	HTTPClient *http.Client
}

// sessionState tracks the connect/stream/close lifecycle.
type sessionState int

const (
	stateUnconnected sessionState = iota
	stateConnecting
	stateReady
	stateClosed
)

// StreamSession owns one streaming conversation turn: connect, read the
// normalized message sequence, close. A session serves a single logical
// consumer; only Close may be called concurrently with other methods.
type StreamSession struct {
	prompt      string
	config      Config
	tokens      TokenSource
	httpClient  *http.Client
	endpointURL string
	sessionID   string

	mu         sync.Mutex
	state      sessionState
	cancelRead context.CancelFunc
}

// NewStreamSession builds a session for one prompt. Defaults are applied to
// the config; nothing touches the network until Connect.
func NewStreamSession(prompt string, tokens TokenSource, config Config) *StreamSession {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &StreamSession{
		prompt:      prompt,
		config:      config,
		tokens:      tokens,
		httpClient:  httpClient,
		endpointURL: completionsURL(config.Endpoint),
		sessionID:   messages.NewUUID(),
	}
}

// completionsURL normalizes the endpoint to a chat/completions URL.
func completionsURL(endpoint string) string {
	trimmed := strings.TrimRight(endpoint, "/")
	if strings.HasSuffix(trimmed, "/chat/completions") {
		return trimmed
	}
	return trimmed + "/chat/completions"
}

// SessionID returns the identifier carried by this session's messages.
func (s *StreamSession) SessionID() string {
	return s.sessionID
}

// Ready reports whether the session is connected and able to stream.
func (s *StreamSession) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady
}

// Connect validates credentials by acquiring a token. It is idempotent: a
// second call on a ready session is a no-op. Any failure moves the session
// to closed and wraps the cause.
func (s *StreamSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateReady:
		s.mu.Unlock()
		return nil
	case stateClosed:
		s.mu.Unlock()
		return fmt.Errorf("connect: %w", ErrSessionClosed)
	}
	s.state = stateConnecting
	s.mu.Unlock()

	if _, err := s.tokens.Token(ctx); err != nil {
		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()
		return fmt.Errorf("connect to azure openai: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return fmt.Errorf("connect: %w", ErrSessionClosed)
	}
	s.state = stateReady
	logging.Debug("transport", "session %s connected to %s", s.sessionID, s.endpointURL)
	return nil
}

// ReadMessages issues the completion request and feeds each normalized
// message to the handler in arrival order, ending with exactly one terminal
// result message. The response body is released on every exit path.
func (s *StreamSession) ReadMessages(ctx context.Context, handler func(messages.Message) error) error {
	s.mu.Lock()
	if s.state != stateReady {
		s.mu.Unlock()
		return ErrNotConnected
	}
	readCtx, cancel := context.WithCancel(ctx)
	s.cancelRead = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelRead = nil
		s.mu.Unlock()
		cancel()
	}()

	// The token is fetched per read, not at connect time, so a long-lived
	// session never presents an expired token.
	token, err := s.tokens.Token(readCtx)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}

	payload, err := json.Marshal(s.buildRequest())
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}
	request, err := http.NewRequestWithContext(readCtx, http.MethodPost, s.endpointURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create chat request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)
	if s.config.SubscriptionKey != "" {
		request.Header.Set(subscriptionKeyHeader, s.config.SubscriptionKey)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("send chat request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		body, readErr := io.ReadAll(response.Body)
		if readErr != nil {
			return fmt.Errorf("read error response: %w", readErr)
		}
		return &APIError{StatusCode: response.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	assembler := sse.NewAssembler(response.Body)
	tr := &translator{sessionID: s.sessionID, model: s.config.Model}
	for {
		if readCtx.Err() != nil {
			return readCtx.Err()
		}
		block, err := assembler.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read stream event: %w", err)
		}
		translated, done := tr.translate(block)
		for _, message := range translated {
			if err := handler(message); err != nil {
				return err
			}
		}
		if done {
			break
		}
	}
	return handler(messages.NewResult(s.sessionID))
}

// buildRequest shapes the outbound completion body for this session.
func (s *StreamSession) buildRequest() *ChatRequest {
	return &ChatRequest{
		Messages:    []ChatMessage{{Role: "user", Content: s.prompt}},
		Stream:      true,
		Model:       s.config.Model,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		Tools:       s.config.Tools,
	}
}

// Close releases the session. It is idempotent and safe to call while a
// read is in flight; the read's context is cancelled.
func (s *StreamSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return nil
	}
	s.state = stateClosed
	if s.cancelRead != nil {
		s.cancelRead()
		s.cancelRead = nil
	}
	logging.Debug("transport", "session %s closed", s.sessionID)
	return nil
}
