package metricspush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/catering/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_job_runs_total",
		Help: "runs",
	}, []string{"job"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "notification_job_duration_seconds",
		Help: "duration",
	})
	registry.MustRegister(runs, duration)
	runs.WithLabelValues("meal_entry_pending_approval").Add(2)
	duration.Observe(0.2)
	return registry
}

func TestBuildRemoteWriteSeriesSkipsHistograms(t *testing.T) {
	families, err := testRegistry(t).Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, 1000)
	require.Len(t, series, 1)
	assert.Equal(t, []prompb.Label{
		{Name: "__name__", Value: "notification_job_runs_total"},
		{Name: "job", Value: "meal_entry_pending_approval"},
	}, series[0].Labels)
	assert.Equal(t, []prompb.Sample{{Value: 2, Timestamp: 1000}}, series[0].Samples)
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	var got prompb.WriteRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, proto.Unmarshal(decoded, protoadapt.MessageV2Of(&got)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "secret")
	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))
	assert.Equal(t, "Bearer secret", auth)
	require.Len(t, got.Timeseries, 1)
}

func TestRemoteWritePusherReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), testRegistry(t))
	assert.ErrorContains(t, err, "502")
}

func TestPushgatewayPusherUsesJobAndGrouping(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pusher := NewPushgatewayPusher(srv.URL, "catering", map[string]string{"environment": "test"})
	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))
	assert.Equal(t, "/metrics/job/catering/environment/test", path)
}

func TestNewPusherSelectsExporter(t *testing.T) {
	log := zap.NewNop()
	assert.Nil(t, NewPusher(config.Config{}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{Exporter: ExporterRemoteWrite}}, log))

	p := NewPusher(config.Config{AppName: "catering", MetricsPush: config.MetricsPushConfig{
		Exporter: ExporterPushgateway,
		Endpoint: "http://pushgateway:9091",
	}}, log)
	assert.IsType(t, &PushgatewayPusher{}, p)

	p = NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{
		Exporter: ExporterRemoteWrite,
		Endpoint: "http://prometheus:9090/api/v1/write",
	}}, log)
	assert.IsType(t, &RemoteWritePusher{}, p)
}
