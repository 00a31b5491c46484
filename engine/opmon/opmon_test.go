package opmon

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestOperation(t *testing.T) {
	op := StartOperation("test.op")
	time.Sleep(time.Millisecond)
	op.Finish(time.Hour)

	var buf bytes.Buffer
	Dump(&buf)
	assert.T(t, strings.Contains(buf.String(), "test.op"), buf.String())

	buf.Reset()
	Dump(&buf)
	assert.T(t, !strings.Contains(buf.String(), "test.op"), "dump should reset the table")
}

func TestMetricsHandler(t *testing.T) {
	Connections.Set(3)
	ProtocolViolations.Inc()
	SectorFaults.WithLabelValues("alpha").Inc()
	StartOperation("metrics.op").Finish(time.Hour)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Equal(t, 200, rec.Code)
	assert.T(t, strings.Contains(body, "sectorworld_connections 3"), body)
	assert.T(t, strings.Contains(body, `sectorworld_sector_faults_total{sector="alpha"} 1`), body)
	assert.T(t, strings.Contains(body, `op="metrics.op"`), body)
}
