package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usi-verification-and-security/ptplib/internal/solver"
	"github.com/usi-verification-and-security/ptplib/pkg/threadpool"
)

func TestCounters(t *testing.T) {
	m := New()

	m.CommandDispatched("solve")
	m.CommandDispatched("solve")
	m.CommandDispatched("stop")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("solve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("stop")))

	m.SearchFinished(solver.SAT, nil)
	m.SearchFinished(solver.UNKNOWN, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchResultsTotal.WithLabelValues("sat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchResultsTotal.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchFailuresTotal))

	m.LemmasPublished(12)
	m.LemmasPulled(5)
	m.ExchangeFailed("read")
	assert.Equal(t, 12.0, testutil.ToFloat64(m.lemmasPublishedTotal))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.lemmasPulledTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchangeErrorsTotal.WithLabelValues("read")))
}

func TestGauges(t *testing.T) {
	m := New()
	p := threadpool.New("search", 2)
	defer p.Shutdown()

	m.RegisterPool(p)
	m.RegisterGauge("channel_queue_length", "Commands waiting in the channel", func() float64 { return 3 })

	expected := `
# HELP ptp_channel_queue_length Commands waiting in the channel
# TYPE ptp_channel_queue_length gauge
ptp_channel_queue_length 3
# HELP ptp_pool_threads Worker goroutines
# TYPE ptp_pool_threads gauge
ptp_pool_threads{pool="search"} 2
`
	err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected),
		"ptp_channel_queue_length", "ptp_pool_threads")
	require.NoError(t, err)
}
