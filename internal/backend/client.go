// Package backend is the client for the managed backend: an auth API that
// issues sessions and a data API that serves table rows under row-level
// authorization.
package backend

import (
	"context"
	"log/slog"
	"time"

	"github.com/Atulx21/SevaConnect/pkg/httpclient"
)

// Config holds the backend endpoint and session settings.
type Config struct {
	URL     string
	AnonKey string
	Auth    AuthConfig
}

// DefaultConfig returns settings for the backend at url.
func DefaultConfig(url, anonKey string) Config {
	return Config{
		URL:     url,
		AnonKey: anonKey,
		Auth: AuthConfig{
			StorageKey:    "kaamconnect-auth-token",
			AutoRefresh:   true,
			RefreshMargin: 60 * time.Second,
			RefreshTick:   30 * time.Second,
		},
	}
}

// Client bundles the auth and data clients. Both share one transport, and
// data requests carry the auth client's current access token.
type Client struct {
	Auth *AuthClient
	Data *DataClient
	t    *transport
}

// New creates a Client. doer is usually an *httpclient.CircuitBreakerClient;
// storage persists session material and defaults to memory when nil.
func New(cfg Config, doer httpclient.Doer, storage Storage, logger *slog.Logger) *Client {
	t := newTransport(cfg.URL, cfg.AnonKey, doer)
	auth := newAuthClient(t, storage, cfg.Auth, logger.With(slog.String("component", "auth")))
	return &Client{
		Auth: auth,
		Data: newDataClient(t, auth),
		t:    t,
	}
}

// Ping checks that the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.t.Ping(ctx)
}
