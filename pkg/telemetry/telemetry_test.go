package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
)

func resetGlobalConfig() {
	globalConfig = nil
	configOnce = sync.Once{}
}

func TestInit_Disabled(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("OTEL_ENABLED", "false")

	ctx := context.Background()
	shutdown, err := Init(ctx)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, Enabled())
	assert.NotNil(t, Tracer())
}

func TestGetConfig_Cached(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("OTEL_SERVICE_NAME", "test-service")

	cfg := GetConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "test-service", cfg.ServiceName)

	t.Setenv("OTEL_SERVICE_NAME", "changed")
	assert.Same(t, cfg, GetConfig())
}

func TestBuildResource(t *testing.T) {
	cfg := &Config{
		ServiceName:    "exec-heatmap",
		ServiceVersion: "1.2.3",
		ResourceAttrs:  map[string]string{"deployment.environment": "test"},
	}

	res, err := buildResource(context.Background(), cfg)
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "exec-heatmap", attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
	assert.Equal(t, "test", attrs["deployment.environment"])
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		in        string
		endpoint  string
		plaintext bool
	}{
		{"", "", false},
		{"collector:4317", "collector:4317", false},
		{"http://collector:4318", "collector:4318", true},
		{"https://collector:4318", "collector:4318", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			endpoint, plaintext := splitEndpoint(tt.in)
			assert.Equal(t, tt.endpoint, endpoint)
			assert.Equal(t, tt.plaintext, plaintext)
		})
	}
}

func TestMetrics_ServesInstruments(t *testing.T) {
	m, err := NewMetrics(false)
	require.NoError(t, err)
	defer func() { _ = m.Shutdown(context.Background()) }()

	counter, err := m.Meter().Int64Counter("heatmap.test.events", metric.WithDescription("test counter"))
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Regexp(t, `heatmap[._]test[._]events`, string(body))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotNil(t, m.Meter())
	assert.NoError(t, m.Shutdown(context.Background()))
}
