package app

import (
	"os"
	"strings"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	setString := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.APIKey, "API_KEY")
	setString(&cfg.UpstreamURL, "UPSTREAM_URL")
	// Support both BEARER_TOKEN and the older JWT name.
	setString(&cfg.BearerToken, "BEARER_TOKEN", "JWT")
	setString(&cfg.RefreshURL, "REFRESH_URL")
	setString(&cfg.RegistryURL, "REGISTRY_URL", "BRIDGE_BASE_URL")
	setString(&cfg.RegistryKey, "REGISTRY_KEY")
	setString(&cfg.ModelsURL, "MODELS_URL")
	setString(&cfg.Model, "MODEL")
	setString(&cfg.ClientVersion, "CLIENT_VERSION")
	setString(&cfg.OSCategory, "OS_CATEGORY")
	setString(&cfg.OSVersion, "OS_VERSION")
	setString(&cfg.RequestMessageType, "REQUEST_MESSAGE_TYPE")
	setString(&cfg.ResponseMessageType, "RESPONSE_MESSAGE_TYPE")

	if !cfg.Verbose {
		if s := strings.ToLower(strings.TrimSpace(os.Getenv("VERBOSE"))); s != "" {
			if s == "1" || s == "true" || s == "yes" || s == "on" {
				cfg.Verbose = true
			}
		}
	}
}

// ApplyEnvOverrides forcefully overrides cfg fields with environment variables
// when the corresponding env vars are set. This lets env take precedence over
// values coming from a config file while flags remain highest precedence.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	override := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
			}
		}
	}

	override(&cfg.ListenAddr, "LISTEN_ADDR")
	override(&cfg.APIKey, "API_KEY")
	override(&cfg.UpstreamURL, "UPSTREAM_URL")
	override(&cfg.BearerToken, "JWT", "BEARER_TOKEN")
	override(&cfg.RefreshURL, "REFRESH_URL")
	override(&cfg.RegistryURL, "BRIDGE_BASE_URL", "REGISTRY_URL")
	override(&cfg.RegistryKey, "REGISTRY_KEY")
	override(&cfg.ModelsURL, "MODELS_URL")
	override(&cfg.Model, "MODEL")
	override(&cfg.ClientVersion, "CLIENT_VERSION")
	override(&cfg.OSCategory, "OS_CATEGORY")
	override(&cfg.OSVersion, "OS_VERSION")
	override(&cfg.RequestMessageType, "REQUEST_MESSAGE_TYPE")
	override(&cfg.ResponseMessageType, "RESPONSE_MESSAGE_TYPE")

	if s := strings.ToLower(strings.TrimSpace(os.Getenv("VERBOSE"))); s != "" {
		switch s {
		case "1", "true", "yes", "on":
			cfg.Verbose = true
		case "0", "false", "no", "off":
			cfg.Verbose = false
		}
	}
}
