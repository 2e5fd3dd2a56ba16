package binanceclient

import (
	"context"
	"time"

	"hypertrader/internal/domain"
	"hypertrader/internal/ports"
)

// Factory implements ports.ClientFactory, constructing authenticated clients
// from decrypted credentials. The factory itself holds no key material.
type Factory struct {
	useTestnet      bool
	logger          ports.Logger
	requestsPerSec  int
	retryMaxElapsed time.Duration
}

// FactoryConfig holds the credential-independent client settings.
type FactoryConfig struct {
	UseTestnet      bool
	Logger          ports.Logger
	RequestsPerSec  int
	RetryMaxElapsed time.Duration
}

// NewFactory creates a client factory.
func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{
		useTestnet:      cfg.UseTestnet,
		logger:          cfg.Logger,
		requestsPerSec:  cfg.RequestsPerSec,
		retryMaxElapsed: cfg.RetryMaxElapsed,
	}
}

// NewClient builds an authenticated exchange client. The credentials are
// copied into the underlying HTTP client and the caller remains responsible
// for zeroing its own copy.
func (f *Factory) NewClient(ctx context.Context, creds *domain.Credentials) (ports.ExchangeClient, error) {
	return New(Config{
		APIKey:          creds.APIKey,
		SecretKey:       creds.APISecret,
		UseTestnet:      f.useTestnet,
		Logger:          f.logger,
		RequestsPerSec:  f.requestsPerSec,
		RetryMaxElapsed: f.retryMaxElapsed,
	})
}
