package gateway

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nameatlas/nameatlas/internal/namepart"
	"github.com/nameatlas/nameatlas/internal/observability/metrics"
	"github.com/nameatlas/nameatlas/internal/provider"
)

// gatherFamily reads one metric family back from the registry by name.
func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s was not gathered", name)
	return nil
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mf := gatherFamily(t, reg, name)
	require.Len(t, mf.GetMetric(), 1)
	gauge := mf.GetMetric()[0].GetGauge()
	require.NotNil(t, gauge)
	return gauge.GetValue()
}

// The cached-parts gauge must track the cache entry count as parts are
// cached, for resolved parts and cached no-data answers alike, and reset
// on Flush.
func TestGateway_Lookup_TracksCachedPartsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewGatewayMetrics(reg)
	require.NoError(t, err)
	SetMetrics(m)

	p := &fakeProvider{name: "alpha", fn: func(_ context.Context, part namepart.Part) (*provider.PartMetadata, error) {
		if part.Key == "zyxxo" {
			return nil, provider.NewNotFoundError("alpha", part)
		}
		return &provider.PartMetadata{Gender: provider.GenderFemale}, nil
	}}
	g := newTestGateway(t, p)

	const gaugeName = "nameatlas_gateway_cached_parts"

	_, err = g.Lookup(context.Background(), mustPart(t, "Ana"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, gaugeValue(t, reg, gaugeName))

	_, err = g.Lookup(context.Background(), mustPart(t, "Zyxxo"))
	require.Error(t, err, "no provider has data for this part")
	assert.Equal(t, 2.0, gaugeValue(t, reg, gaugeName),
		"cached no-data answers count as cached parts")

	assert.Equal(t, float64(g.cache.ItemCount()), gaugeValue(t, reg, gaugeName),
		"gauge mirrors the cache entry count")

	g.Flush()
	assert.Equal(t, 0.0, gaugeValue(t, reg, gaugeName))
}
