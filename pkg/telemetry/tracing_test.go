package telemetry

import (
	"context"
	"testing"

	"github.com/astralux/licensing/pkg/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetupTracingWithoutExporter(t *testing.T) {
	ctx := context.Background()
	provider, err := SetupTracing(ctx, config.TracingConfig{}, "test", zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, provider.Shutdown(ctx))
}

func TestSetupTracingRejectsEmptyEndpoint(t *testing.T) {
	_, err := SetupTracing(context.Background(), config.TracingConfig{Endpoint: "https://"}, "test", zerolog.Nop())
	require.Error(t, err)
}
