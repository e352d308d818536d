package app

import (
	"os"
	"path/filepath"
	"testing"
)

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LISTEN_ADDR", "API_KEY", "UPSTREAM_URL", "BEARER_TOKEN", "JWT",
		"REFRESH_URL", "REGISTRY_URL", "BRIDGE_BASE_URL", "REGISTRY_KEY",
		"MODELS_URL", "MODEL", "CLIENT_VERSION", "OS_CATEGORY", "OS_VERSION",
		"REQUEST_MESSAGE_TYPE", "RESPONSE_MESSAGE_TYPE", "VERBOSE",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("listen = %q", cfg.ListenAddr)
	}
	if cfg.Model != DefaultModel {
		t.Fatalf("model = %q", cfg.Model)
	}
	if cfg.RequestMessageType != DefaultRequestType || cfg.ResponseMessageType != DefaultResponseType {
		t.Fatalf("message types = %q %q", cfg.RequestMessageType, cfg.ResponseMessageType)
	}

	cfg = Config{Model: "custom"}
	cfg.ApplyDefaults()
	if cfg.Model != "custom" {
		t.Fatalf("explicit model overwritten: %q", cfg.Model)
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(Config{}); err == nil {
		t.Fatal("missing upstream URL must fail")
	}
	if err := ValidateConfig(Config{UpstreamURL: "https://up"}); err == nil {
		t.Fatal("missing credentials must fail")
	}
	if err := ValidateConfig(Config{UpstreamURL: "https://up", BearerToken: "t"}); err != nil {
		t.Fatalf("token-only config rejected: %v", err)
	}
	if err := ValidateConfig(Config{UpstreamURL: "https://up", RefreshURL: "https://r"}); err != nil {
		t.Fatalf("refresh-only config rejected: %v", err)
	}
}

func TestApplyEnvToConfigFillsUnset(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("UPSTREAM_URL", "https://env-upstream")
	t.Setenv("JWT", "env-token")
	t.Setenv("VERBOSE", "true")

	cfg := Config{UpstreamURL: "https://explicit"}
	ApplyEnvToConfig(&cfg)
	if cfg.UpstreamURL != "https://explicit" {
		t.Fatalf("explicit value overwritten: %q", cfg.UpstreamURL)
	}
	if cfg.BearerToken != "env-token" {
		t.Fatalf("JWT fallback not read: %q", cfg.BearerToken)
	}
	if !cfg.Verbose {
		t.Fatal("VERBOSE=true not applied")
	}
}

func TestApplyEnvOverridesBeatsFileValues(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("UPSTREAM_URL", "https://env-wins")
	t.Setenv("VERBOSE", "false")

	cfg := Config{UpstreamURL: "https://from-file", Verbose: true}
	ApplyEnvOverrides(&cfg)
	if cfg.UpstreamURL != "https://env-wins" {
		t.Fatalf("env override lost: %q", cfg.UpstreamURL)
	}
	if cfg.Verbose {
		t.Fatal("VERBOSE=false must disable verbose")
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	data := []byte(`
listen: ":9000"
apiKey: secret
upstream:
  url: https://upstream.example/agents
  token: tok
  refreshURL: https://upstream.example/token
registry:
  url: http://localhost:8019
model: claude-4-sonnet
client:
  version: v9
  osCategory: Linux
  osVersion: "6"
verbose: true
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	fc, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var cfg Config
	ApplyFileConfig(&cfg, fc)
	if cfg.ListenAddr != ":9000" || cfg.APIKey != "secret" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.UpstreamURL != "https://upstream.example/agents" || cfg.BearerToken != "tok" {
		t.Fatalf("upstream = %q %q", cfg.UpstreamURL, cfg.BearerToken)
	}
	if cfg.RefreshURL != "https://upstream.example/token" || cfg.RegistryURL != "http://localhost:8019" {
		t.Fatalf("urls = %q %q", cfg.RefreshURL, cfg.RegistryURL)
	}
	if cfg.Model != "claude-4-sonnet" || cfg.ClientVersion != "v9" || !cfg.Verbose {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestApplyFileConfigDoesNotOverride(t *testing.T) {
	var fc FileConfig
	fc.Model = "from-file"
	cfg := Config{Model: "from-flag"}
	ApplyFileConfig(&cfg, fc)
	if cfg.Model != "from-flag" {
		t.Fatalf("flag value overwritten: %q", cfg.Model)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.json")
	if err := os.WriteFile(path, []byte(`{"listen":":7000","upstream":{"url":"https://u"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	fc, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if fc.Listen != ":7000" || fc.Upstream.URL != "https://u" {
		t.Fatalf("fc = %+v", fc)
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}
}
