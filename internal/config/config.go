// Package config resolves CLI configuration for the Azure OpenAI bridge from
// a JSON file merged with environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	azureoai "github.com/ucalyptus/azure-oai-agent-sdk-go"
)

var (
	// ErrConfigMissing is returned when neither the config file nor the
	// environment supplies the required credentials.
	ErrConfigMissing = errors.New("configuration missing")
	// ErrConfigInvalid is returned when the config file exists but cannot
	// be parsed.
	ErrConfigInvalid = errors.New("configuration invalid")
)

// fileConfig mirrors the JSON layout of the config file.
type fileConfig struct {
	// TenantID is the Azure AD tenant for the client-credentials flow.
	TenantID string `json:"tenant_id"`
	// ClientID is the application (client) ID.
	ClientID string `json:"client_id"`
	// ClientSecret is the client secret value.
	ClientSecret string `json:"client_secret"`
	// Scope is the OAuth scope; empty means the Cognitive Services default.
	Scope string `json:"scope"`
	// Endpoint is the APIM base URL.
	Endpoint string `json:"endpoint"`
	// SubscriptionKey is the optional APIM subscription key.
	SubscriptionKey string `json:"subscription_key"`
	// Model is the deployment or model name.
	Model string `json:"model"`
	// MaxTokens limits output length.
	MaxTokens int `json:"max_tokens"`
	// Temperature controls randomness; omitted when null.
	Temperature *float64 `json:"temperature"`
}

// envOverrides maps environment variable names onto config fields. Variables
// set to a non-empty value take precedence over the file.
func (c *fileConfig) applyEnv() {
	overrides := []struct {
		name  string
		field *string
	}{
		{"AZURE_TENANT_ID", &c.TenantID},
		{"AZURE_CLIENT_ID", &c.ClientID},
		{"AZURE_CLIENT_SECRET", &c.ClientSecret},
		{"AZURE_OAUTH_SCOPE", &c.Scope},
		{"AZURE_APIM_ENDPOINT", &c.Endpoint},
		{"AZURE_APIM_SUBSCRIPTION_KEY", &c.SubscriptionKey},
		{"AZOAI_MODEL", &c.Model},
	}
	for _, override := range overrides {
		if value := os.Getenv(override.name); value != "" {
			*override.field = value
		}
	}
}

// Path returns the default config file location under the user's home.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".azoai", "config.json"), nil
}

// Load resolves query options from the config file at path (the default
// location when path is empty) merged with environment overrides. A missing
// file is not an error; the environment may carry everything required. Field
// validation is left to the caller so diagnostics can report partial state.
func Load(path string) (azureoai.Options, error) {
	if path == "" {
		var err error
		path, err = Path()
		if err != nil {
			return azureoai.Options{}, err
		}
	}

	var cfg fileConfig
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if parseErr := json.Unmarshal(raw, &cfg); parseErr != nil {
			return azureoai.Options{}, fmt.Errorf("%w: parse %s: %v", ErrConfigInvalid, path, parseErr)
		}
	case os.IsNotExist(err):
		// Fine; environment overrides may supply the required fields.
	default:
		return azureoai.Options{}, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()

	return azureoai.Options{
		TenantID:        cfg.TenantID,
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		Scope:           cfg.Scope,
		Endpoint:        cfg.Endpoint,
		SubscriptionKey: cfg.SubscriptionKey,
		Model:           cfg.Model,
		MaxTokens:       cfg.MaxTokens,
		Temperature:     cfg.Temperature,
	}, nil
}

// MissingRequired names the required fields the options do not carry, in a
// stable order suitable for error messages.
func MissingRequired(opts azureoai.Options) []string {
	var missing []string
	if opts.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if opts.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if opts.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if opts.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	return missing
}

// RequireComplete wraps the missing-field check into the error the CLI
// surfaces before attempting any network call.
func RequireComplete(opts azureoai.Options, path string) error {
	missing := MissingRequired(opts)
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: set %s in %s or the environment",
		ErrConfigMissing, strings.Join(missing, ", "), path)
}
