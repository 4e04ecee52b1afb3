// Package metrics exposes prometheus collectors for the message pump and the
// zone telemetry it routes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pump implements the client's PumpStats callbacks on top of prometheus
// collectors. All methods are safe for concurrent use and never block.
type Pump struct {
	cycles     prometheus.Counter
	failures   prometheus.Counter
	reconnects prometheus.Counter
	routed     prometheus.Counter

	zoneTemperature *prometheus.GaugeVec
	zoneHumidity    *prometheus.GaugeVec
}

// NewPump builds and registers the pump collectors on the given registerer.
func NewPump(reg prometheus.Registerer) *Pump {
	p := &Pump{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "icomfort_pump_cycles_total",
			Help: "Poll cycles attempted by the message pump.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "icomfort_pump_failures_total",
			Help: "Poll cycles that ended in an absorbed error.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "icomfort_pump_reconnects_total",
			Help: "Reconnect attempts triggered by auth expiry or repeated failures.",
		}),
		routed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "icomfort_messages_routed_total",
			Help: "Inbound update messages routed into the data model.",
		}),
		zoneTemperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "icomfort_zone_temperature_fahrenheit",
			Help: "Last reported zone temperature.",
		}, []string{"zone"}),
		zoneHumidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "icomfort_zone_humidity_percent",
			Help: "Last reported zone relative humidity.",
		}, []string{"zone"}),
	}

	reg.MustRegister(p.cycles, p.failures, p.reconnects, p.routed, p.zoneTemperature, p.zoneHumidity)
	return p
}

func (p *Pump) Cycle()               { p.cycles.Inc() }
func (p *Pump) CycleFailure()        { p.failures.Inc() }
func (p *Pump) Reconnect()           { p.reconnects.Inc() }
func (p *Pump) MessagesRouted(n int) { p.routed.Add(float64(n)) }

func (p *Pump) ZoneSample(zoneID string, temperatureF, humidity float64) {
	p.zoneTemperature.WithLabelValues(zoneID).Set(temperatureF)
	p.zoneHumidity.WithLabelValues(zoneID).Set(humidity)
}
