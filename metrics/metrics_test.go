package metrics

import (
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_DefaultNamespace(t *testing.T) {
	c := NewCollector("")
	require.NotNil(t, c.Registry())

	c.RecordCall("buy", time.Millisecond, nil)
	families, err := c.Registry().Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "settlement_engine_calls_total")
}

func TestCollector_RecordCall(t *testing.T) {
	c := NewCollector("test")
	c.RecordCall("buy", 2*time.Millisecond, nil)
	c.RecordCall("buy", time.Millisecond, errors.New("reverted"))
	c.RecordCall("buy", time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.callsTotal.WithLabelValues("buy", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.callsTotal.WithLabelValues("buy", "error")))
}

func TestCollector_CancellationsAndVolume(t *testing.T) {
	c := NewCollector("test")
	c.RecordCancellation("SellBySig")
	c.RecordVolume("buy", "native", big.NewInt(10000))
	c.RecordVolume("buy", "native", big.NewInt(0))
	c.RecordVolume("buy", "native", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cancellations.WithLabelValues("SellBySig")))
	assert.Equal(t, 10000.0, testutil.ToFloat64(c.volume.WithLabelValues("buy", "native")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("test")
	c.RecordCancellation("OfferSig")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `test_registry_cancellations_total{kind="OfferSig"} 1`)
}

func TestNoOpCollector(t *testing.T) {
	var r Recorder = NewNoOpCollector()
	r.RecordCall("buy", time.Second, nil)
	r.RecordCancellation("x")
	r.RecordVolume("buy", "native", big.NewInt(1))
}
