// Package bustest runs an embedded NATS server for tests.
package bustest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/loqa-keywords/internal/bus"
	"github.com/loqalabs/loqa-keywords/internal/config"
	"github.com/loqalabs/loqa-keywords/internal/natsserver"
)

// Logger discards everything below error level.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Start launches a server on a random loopback port and returns a connected
// client. Both are torn down with the test.
func Start(t *testing.T) *bus.Client {
	t.Helper()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Host: "127.0.0.1", Port: -1}, Logger())
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return Connect(t, srv.ClientURL())
}

// Connect opens an additional client to url.
func Connect(t *testing.T, url string) *bus.Client {
	t.Helper()
	client, err := bus.Connect(context.Background(), config.BusConfig{Servers: []string{url}, ConnectTimeout: 2000}, Logger())
	if err != nil {
		t.Fatalf("connect nats: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}
