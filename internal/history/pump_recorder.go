package history

import (
	"context"

	"github.com/lukezbihlyj/icomfort-go/internal/icomfort"
)

// PumpRecorder decorates a PumpStats sink so reconnect attempts also land in
// the event log. All other callbacks pass straight through; the history write
// is best-effort and never blocks the pump on a storage error.
type PumpRecorder struct {
	ctx    context.Context
	next   icomfort.PumpStats
	events Store
}

var _ icomfort.PumpStats = (*PumpRecorder)(nil)

func NewPumpRecorder(ctx context.Context, next icomfort.PumpStats, events Store) *PumpRecorder {
	return &PumpRecorder{ctx: ctx, next: next, events: events}
}

func (r *PumpRecorder) Cycle()               { r.next.Cycle() }
func (r *PumpRecorder) CycleFailure()        { r.next.CycleFailure() }
func (r *PumpRecorder) MessagesRouted(n int) { r.next.MessagesRouted(n) }

func (r *PumpRecorder) ZoneSample(zoneID string, temperatureF, humidity float64) {
	r.next.ZoneSample(zoneID, temperatureF, humidity)
}

func (r *PumpRecorder) Reconnect() {
	r.next.Reconnect()
	if r.events == nil {
		return
	}
	_ = r.events.Append(r.ctx, Event{
		Type:        TypeReconnect,
		Description: "pump reconnecting",
	})
}
