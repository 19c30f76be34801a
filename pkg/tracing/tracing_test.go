package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{}, config.AppConfig{Env: "dev"}, "orderflow-api")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestStripScheme(t *testing.T) {
	require.Equal(t, "collector:4317", stripScheme("http://collector:4317"))
	require.Equal(t, "collector:4317", stripScheme("https://collector:4317"))
	require.Equal(t, "collector:4317", stripScheme("collector:4317"))
}

func TestSampleRatioClamps(t *testing.T) {
	require.Equal(t, 0.0, sampleRatio(-1))
	require.Equal(t, 1.0, sampleRatio(3))
	require.Equal(t, 0.25, sampleRatio(0.25))
}
