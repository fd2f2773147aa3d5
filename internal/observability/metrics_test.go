package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danmuck/protoforge/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("protoproxy", "GET", "/healthz", 200, 12*time.Millisecond)
	RecordPacket("serverbound", "handshaking", "handshake")
	RecordDecodeError("clientbound", "play", "malformed")

	before := testutil.ToFloat64(frames.WithLabelValues("serverbound", "true"))
	RecordFrame("serverbound", 512, true)
	if got := testutil.ToFloat64(frames.WithLabelValues("serverbound", "true")); got != before+1 {
		t.Fatalf("frames counter=%v want=%v", got, before+1)
	}

	active := testutil.ToFloat64(sessionsActive)
	SessionOpened()
	SessionClosed(time.Second)
	if got := testutil.ToFloat64(sessionsActive); got != active {
		t.Fatalf("sessions_active=%v want=%v", got, active)
	}
}
