package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopMetrics(t *testing.T) {
	var m Noop
	m.ObserveRequest("GET", "200", 0.1)
	m.IncRefresh("ok")
	m.IncDownloadsStarted()
	m.IncDownloadsFinished("completed")
	m.AddBytesPersisted(10)
}

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProm("sc", reg)

	m.ObserveRequest("GET", "200", 0.05)
	m.ObserveRequest("GET", "200", 0.07)
	m.ObserveRequest("POST", "401", 0.01)
	m.IncRefresh("ok")
	m.IncDownloadsStarted()
	m.IncDownloadsFinished("completed")
	m.IncDownloadsFinished("failed")
	m.AddBytesPersisted(1024)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.downloadsStart))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.downloadsFinish.WithLabelValues("failed")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.bytesPersisted))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"sc_api_requests_total",
		"sc_api_request_duration_seconds",
		"sc_token_refreshes_total",
		"sc_downloads_started_total",
		"sc_downloads_finished_total",
		"sc_download_bytes_persisted_total",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}
