package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearBridgeEnv blanks every environment override so tests see only what
// they set themselves.
func clearBridgeEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"AZURE_TENANT_ID",
		"AZURE_CLIENT_ID",
		"AZURE_CLIENT_SECRET",
		"AZURE_OAUTH_SCOPE",
		"AZURE_APIM_ENDPOINT",
		"AZURE_APIM_SUBSCRIPTION_KEY",
		"AZOAI_MODEL",
	} {
		t.Setenv(name, "")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	clearBridgeEnv(t)
	path := writeConfigFile(t, `{
		"tenant_id": "tenant-file",
		"client_id": "client-file",
		"client_secret": "secret-file",
		"endpoint": "https://gw.example/openai",
		"subscription_key": "sub-file",
		"model": "gpt-4-turbo",
		"max_tokens": 2048,
		"temperature": 0.7
	}`)

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if opts.TenantID != "tenant-file" || opts.ClientID != "client-file" {
		t.Fatalf("unexpected credentials: %+v", opts)
	}
	if opts.Endpoint != "https://gw.example/openai" || opts.SubscriptionKey != "sub-file" {
		t.Fatalf("unexpected endpoint fields: %+v", opts)
	}
	if opts.Model != "gpt-4-turbo" || opts.MaxTokens != 2048 {
		t.Fatalf("unexpected model fields: %+v", opts)
	}
	if opts.Temperature == nil || *opts.Temperature != 0.7 {
		t.Fatalf("expected temperature 0.7, got %v", opts.Temperature)
	}
	if missing := MissingRequired(opts); len(missing) != 0 {
		t.Fatalf("expected no missing fields, got %v", missing)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearBridgeEnv(t)
	path := writeConfigFile(t, `{
		"tenant_id": "tenant-file",
		"client_id": "client-file",
		"client_secret": "secret-file",
		"endpoint": "https://file.example",
		"model": "gpt-4"
	}`)
	t.Setenv("AZURE_TENANT_ID", "tenant-env")
	t.Setenv("AZURE_APIM_ENDPOINT", "https://env.example")
	t.Setenv("AZOAI_MODEL", "gpt-4o")

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if opts.TenantID != "tenant-env" {
		t.Fatalf("expected env tenant, got %q", opts.TenantID)
	}
	if opts.Endpoint != "https://env.example" {
		t.Fatalf("expected env endpoint, got %q", opts.Endpoint)
	}
	if opts.Model != "gpt-4o" {
		t.Fatalf("expected env model, got %q", opts.Model)
	}
	// Fields without overrides keep the file values.
	if opts.ClientID != "client-file" || opts.ClientSecret != "secret-file" {
		t.Fatalf("file values lost: %+v", opts)
	}
}

func TestMissingFileWithFullEnvironment(t *testing.T) {
	clearBridgeEnv(t)
	t.Setenv("AZURE_TENANT_ID", "tenant-env")
	t.Setenv("AZURE_CLIENT_ID", "client-env")
	t.Setenv("AZURE_CLIENT_SECRET", "secret-env")
	t.Setenv("AZURE_APIM_ENDPOINT", "https://env.example")

	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	opts, err := Load(path)
	if err != nil {
		t.Fatalf("load config without file: %v", err)
	}
	if missing := MissingRequired(opts); len(missing) != 0 {
		t.Fatalf("expected env to satisfy required fields, got missing %v", missing)
	}
	if err := RequireComplete(opts, path); err != nil {
		t.Fatalf("expected complete config, got %v", err)
	}
}

func TestInvalidJSONIsConfigInvalid(t *testing.T) {
	clearBridgeEnv(t)
	path := writeConfigFile(t, `{not json`)

	_, err := Load(path)
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestRequireCompleteNamesMissingFields(t *testing.T) {
	clearBridgeEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("load empty config: %v", err)
	}
	err = RequireComplete(opts, path)
	if !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
	for _, field := range []string{"tenant_id", "client_id", "client_secret", "endpoint"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("expected error to name %s, got %v", field, err)
		}
	}
}

func TestPathResolvesUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := Path()
	if err != nil {
		t.Fatalf("resolve path: %v", err)
	}
	want := filepath.Join(home, ".azoai", "config.json")
	if path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}
}
