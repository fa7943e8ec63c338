package telemetry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/config"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "scrapbook-chat"}, slog.Default())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_WithEndpoint(t *testing.T) {
	cfg := config.TelemetryConfig{ServiceName: "scrapbook-chat", OTLPEndpoint: "localhost:4318", Insecure: true}

	shutdown, err := Setup(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// nothing was recorded so there is nothing to flush
	_ = shutdown(ctx)
}
