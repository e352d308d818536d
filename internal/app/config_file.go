package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the single-file configuration schema. Nested sections map
// naturally to flags and env.
type FileConfig struct {
	Listen string `yaml:"listen" json:"listen"`
	APIKey string `yaml:"apiKey" json:"apiKey"`

	Upstream struct {
		URL        string `yaml:"url" json:"url"`
		Token      string `yaml:"token" json:"token"`
		RefreshURL string `yaml:"refreshURL" json:"refreshURL"`
	} `yaml:"upstream" json:"upstream"`

	Registry struct {
		URL string `yaml:"url" json:"url"`
		Key string `yaml:"key" json:"key"`
	} `yaml:"registry" json:"registry"`

	ModelsURL string `yaml:"modelsURL" json:"modelsURL"`
	Model     string `yaml:"model" json:"model"`

	Client struct {
		Version    string `yaml:"version" json:"version"`
		OSCategory string `yaml:"osCategory" json:"osCategory"`
		OSVersion  string `yaml:"osVersion" json:"osVersion"`
	} `yaml:"client" json:"client"`

	Messages struct {
		RequestType  string `yaml:"requestType" json:"requestType"`
		ResponseType string `yaml:"responseType" json:"responseType"`
	} `yaml:"messages" json:"messages"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for fields that are
// currently unset. Flags and env should already have been applied; the file
// supplies defaults only.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	overlay := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
		}
	}
	overlay(&cfg.ListenAddr, fc.Listen)
	overlay(&cfg.APIKey, fc.APIKey)
	overlay(&cfg.UpstreamURL, fc.Upstream.URL)
	overlay(&cfg.BearerToken, fc.Upstream.Token)
	overlay(&cfg.RefreshURL, fc.Upstream.RefreshURL)
	overlay(&cfg.RegistryURL, fc.Registry.URL)
	overlay(&cfg.RegistryKey, fc.Registry.Key)
	overlay(&cfg.ModelsURL, fc.ModelsURL)
	overlay(&cfg.Model, fc.Model)
	overlay(&cfg.ClientVersion, fc.Client.Version)
	overlay(&cfg.OSCategory, fc.Client.OSCategory)
	overlay(&cfg.OSVersion, fc.Client.OSVersion)
	overlay(&cfg.RequestMessageType, fc.Messages.RequestType)
	overlay(&cfg.ResponseMessageType, fc.Messages.ResponseType)
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}
