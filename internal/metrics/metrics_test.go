package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAdmission(t *testing.T) {
	c := New()
	c.RecordAdmission("create", "ok", 10*time.Millisecond)
	c.RecordAdmission("create", "slot_unavailable", time.Millisecond)
	c.RecordAdmission("create", "ok", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.admissions.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.admissions.WithLabelValues("create", "slot_unavailable")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordAdmission("create", "ok", time.Second)
		c.RecordLockWait(time.Second)
		c.RecordTransition("pending", "confirmed")
		c.RecordExpired(3)
		c.RecordHookDelivery("email", false)
		c.RecordHookDropped()
		c.RecordHTTPRequest("GET", "/", 200, time.Second)
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	c := New()
	c.RecordExpired(2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "scheduling_pending_expired_total 2")
}
