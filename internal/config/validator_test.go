package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Store:    DefaultStoreConfig(),
		Queue:    DefaultQueueConfig(),
		Retry:    DefaultRetryConfig(),
		Mail:     DefaultMailConfig(),
		Provider: DefaultProviderConfig(),
	}
}

func TestValidateAll_DefaultsPass(t *testing.T) {
	assert.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidateAll_MissingStoreHost(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Host = ""
	err := NewValidator(cfg).ValidateAll()
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestValidateAll_ZeroRetryAttempts(t *testing.T) {
	cfg := validConfig()
	cfg.Retry.MaxAttempts = 0
	assert.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAll_GRPCProviderRequiresAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Provider.Kind = "grpc"
	cfg.Provider.GRPCAddress = ""
	assert.Error(t, NewValidator(cfg).ValidateAll())

	cfg.Provider.GRPCAddress = "localhost:9090"
	assert.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAll_IdleExceedsOpenConns(t *testing.T) {
	cfg := validConfig()
	cfg.Store.MaxOpenConns = 5
	cfg.Store.MaxIdleConns = 10
	assert.Error(t, NewValidator(cfg).ValidateAll())
}
