package observability

import (
	"testing"
	"time"

	"github.com/danmuck/gforcelink/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordDispatch("0x06", "ok", 3)
	RecordDispatch("0x02", "busy", 0)
	RecordCompletion("0x06", "timeout", 1000*time.Millisecond)
	RecordInbound("command")
	RecordAnomaly("notify", "out_of_order")
	AddPending(1)
	AddPending(-1)

	log.Debug().Msg("observability/metrics: registration idempotent and recording paths executed")
}
