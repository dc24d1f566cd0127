package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// DefaultProviderConfigPath is used when neither a flag nor
// DNS_PROVIDER_PATH names the provider configuration.
const DefaultProviderConfigPath = "configs/dns-provider.yaml"

// ProviderConfig holds the DNS provider type and its connection settings.
type ProviderConfig struct {
	Provider string            `yaml:"provider"`
	Settings map[string]string `yaml:"settings"`
}

// ProviderConfigPath picks the provider configuration file: the explicit
// path if given, then DNS_PROVIDER_PATH, then DefaultProviderConfigPath.
func ProviderConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if path := os.Getenv("DNS_PROVIDER_PATH"); path != "" {
		return path
	}
	return DefaultProviderConfigPath
}

// LoadProviderConfig reads the DNS provider configuration from path.
func LoadProviderConfig(path string) (*ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading provider config file: %w", err)
	}

	var cfg ProviderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing provider config file: %w", err)
	}

	if cfg.Provider == "" {
		return nil, fmt.Errorf("provider config: missing required field 'provider'")
	}
	if cfg.Settings == nil {
		cfg.Settings = map[string]string{}
	}

	// Expand ${ENV_VAR} references in setting values.
	for k, v := range cfg.Settings {
		cfg.Settings[k] = os.ExpandEnv(v)
	}

	return &cfg, nil
}
