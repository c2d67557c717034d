package telemetry

import (
	"context"
	"testing"

	"github.com/Domenick1991/airways/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
