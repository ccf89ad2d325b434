package azureoai

import (
	"fmt"
	"net/http"
	"strings"
)

// Options configures a query against an Azure OpenAI deployment behind API
// Management. TenantID, ClientID, ClientSecret, and Endpoint are required;
// everything else has a usable default.
type Options struct {
	// TenantID is the Azure AD tenant used for the client-credentials flow.
	TenantID string
	// ClientID is the application (client) ID.
	ClientID string
	// ClientSecret is the client secret value. It is never logged.
	ClientSecret string
	// Scope is the OAuth scope; the Cognitive Services default applies
	// when empty.
	Scope string
	// Authority overrides the Azure AD endpoint base URL, for sovereign
	// clouds.
	Authority string
	// Endpoint is the APIM base URL, e.g. https://my-apim.azure-api.net/openai.
	Endpoint string
	// SubscriptionKey is the optional APIM subscription key.
	SubscriptionKey string
	// Model is the deployment or model name; defaults to gpt-4.
	Model string
	// MaxTokens limits output length; defaults to 4096.
	MaxTokens int
	// Temperature controls randomness; omitted from requests when nil.
	Temperature *float64
	// Tools advertises callable functions to the model. The bridge carries
	// tool definitions and normalizes tool-use deltas; it never executes
	// tools.
	Tools []Tool
	// HTTPClient overrides the HTTP client used for both the token
	// exchange and the completion request.
	HTTPClient *http.Client
}

// Tool describes one callable function advertised to the model.
type Tool struct {
	// Name is the unique function identifier.
	Name string
	// Description summarizes the function for the model.
	Description string
	// Parameters is a JSON Schema object describing the inputs.
	Parameters map[string]any
}

// validate reports the required fields that are missing.
func (o Options) validate() error {
	var missing []string
	if o.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if o.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if o.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if o.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required options: %s", strings.Join(missing, ", "))
	}
	return nil
}
