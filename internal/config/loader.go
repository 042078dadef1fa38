package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of config.yaml: every field optional, a
// zero value meaning "use the default". It is merged onto the compiled-in
// defaults rather than unmarshaled straight into Config so that a partial
// file never zeroes out the fields it omits.
type fileConfig struct {
	Store    StoreConfig    `yaml:"store"`
	Queue    QueueConfig    `yaml:"queue"`
	Retry    RetryConfig    `yaml:"retry"`
	Mail     MailConfig     `yaml:"mail"`
	Provider ProviderConfig `yaml:"provider"`
}

// Load reads config.yaml from configDir (if present), expands environment
// variables, merges it onto the compiled-in defaults, and validates the
// result. A missing config.yaml is not an error — the engine runs on
// defaults alone, same as the teacher's loader falling back when no agent
// registry file exists.
func Load(configDir string) (*Config, error) {
	// .env is loaded best-effort so ExpandEnv below can see secrets kept
	// outside the YAML file; a missing .env is not an error.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	defaults := fileConfig{
		Store:    DefaultStoreConfig(),
		Queue:    DefaultQueueConfig(),
		Retry:    DefaultRetryConfig(),
		Mail:     DefaultMailConfig(),
		Provider: DefaultProviderConfig(),
	}

	path := filepath.Join(configDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{configDir: configDir, Store: defaults.Store, Queue: defaults.Queue, Retry: defaults.Retry, Mail: defaults.Mail, Provider: defaults.Provider}
			if verr := NewValidator(cfg).ValidateAll(); verr != nil {
				return nil, verr
			}
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(data)

	var parsed fileConfig
	if err := yaml.Unmarshal(expanded, &parsed); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	merged := defaults
	if err := mergo.Merge(&merged, parsed, mergo.WithOverride); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("merging defaults: %w", err))
	}

	cfg := &Config{
		configDir: configDir,
		Store:     merged.Store,
		Queue:     merged.Queue,
		Retry:     merged.Retry,
		Mail:      merged.Mail,
		Provider:  merged.Provider,
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, err
	}
	return cfg, nil
}
