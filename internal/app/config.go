// Package app wires configuration and the HTTP server for the gateway
// binary. Precedence is flags > environment > config file.
package app

import (
	"errors"
	"strings"
)

// Defaults used when neither flags, env, nor a config file say otherwise.
const (
	DefaultListenAddr    = ":8010"
	DefaultModel         = "claude-4.1-opus"
	DefaultClientVersion = "v0.2025.08.06.08.12.stable_02"
	DefaultOSCategory    = "Windows"
	DefaultOSVersion     = "11"
	DefaultRequestType   = "Request"
	DefaultResponseType  = "Response"
)

// Config carries every runtime setting of the gateway.
type Config struct {
	// ListenAddr is the inbound bind address, e.g. ":8010".
	ListenAddr string

	// APIKey, when set, is required on every /v1 request. Empty disables
	// inbound auth.
	APIKey string

	// UpstreamURL is the agent send endpoint the gateway posts envelopes to.
	UpstreamURL string
	// BearerToken authenticates against the upstream.
	BearerToken string
	// RefreshURL, when set, is POSTed to obtain a fresh token after a
	// recognized quota rejection.
	RefreshURL string

	// RegistryURL points at the external schema-registry bridge used to
	// encode and decode wire messages. Empty selects the JSON codec.
	RegistryURL string
	// RegistryKey is sent as X-API-Key to the registry bridge.
	RegistryKey string

	// ModelsURL optionally proxies GET /v1/models.
	ModelsURL string

	// Model is the default base model when the caller names none.
	Model string

	// Client identification headers the upstream requires.
	ClientVersion string
	OSCategory    string
	OSVersion     string

	// Message-type tags handed to the codec.
	RequestMessageType  string
	ResponseMessageType string

	Verbose bool
}

// ApplyDefaults fills zero fields with the package defaults.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.ClientVersion == "" {
		c.ClientVersion = DefaultClientVersion
	}
	if c.OSCategory == "" {
		c.OSCategory = DefaultOSCategory
	}
	if c.OSVersion == "" {
		c.OSVersion = DefaultOSVersion
	}
	if c.RequestMessageType == "" {
		c.RequestMessageType = DefaultRequestType
	}
	if c.ResponseMessageType == "" {
		c.ResponseMessageType = DefaultResponseType
	}
}

// ValidateConfig checks the settings a server cannot start without.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.UpstreamURL) == "" {
		return errors.New("config: upstream URL is required (or set UPSTREAM_URL)")
	}
	if strings.TrimSpace(cfg.BearerToken) == "" && strings.TrimSpace(cfg.RefreshURL) == "" {
		return errors.New("config: a bearer token or a refresh URL is required")
	}
	return nil
}
