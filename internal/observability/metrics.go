package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics коллекторы сервера. Методы безопасны для nil-получателя, чтобы
// тесты и утилиты могли работать без регистрации.
type Metrics struct {
	TickDuration   prometheus.Histogram
	TickOverruns   prometheus.Counter
	Sessions       prometheus.Gauge
	Packets        *prometheus.CounterVec
	LoadedChunks   prometheus.Gauge
	IntentsDropped prometheus.Counter
}

// NewMetrics создаёт коллекторы и регистрирует их в reg. При reg == nil
// коллекторы не регистрируются.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mc",
			Name:      "tick_duration_seconds",
			Help:      "Длительность игрового тика.",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		TickOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mc",
			Name:      "tick_overruns_total",
			Help:      "Тики, не уложившиеся в бюджет.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mc",
			Name:      "sessions",
			Help:      "Открытые соединения.",
		}),
		Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mc",
			Name:      "packets_total",
			Help:      "Пакеты по направлению и состоянию.",
		}, []string{"direction", "state"}),
		LoadedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mc",
			Name:      "loaded_chunks",
			Help:      "Чанки в памяти.",
		}),
		IntentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mc",
			Name:      "intents_dropped_total",
			Help:      "Намерения, отброшенные из-за переполненного почтового ящика.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.TickDuration, m.TickOverruns, m.Sessions, m.Packets, m.LoadedChunks, m.IntentsDropped)
	}
	return m
}

// ObserveTick записывает длительность тика и переполнение бюджета
func (m *Metrics) ObserveTick(seconds float64, overrun bool) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(seconds)
	if overrun {
		m.TickOverruns.Inc()
	}
}

// SessionOpened увеличивает число соединений
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.Sessions.Inc()
	}
}

// SessionClosed уменьшает число соединений
func (m *Metrics) SessionClosed() {
	if m != nil {
		m.Sessions.Dec()
	}
}

// Packet считает пакет
func (m *Metrics) Packet(direction, state string) {
	if m != nil {
		m.Packets.WithLabelValues(direction, state).Inc()
	}
}

// SetLoadedChunks публикует число загруженных чанков
func (m *Metrics) SetLoadedChunks(n int) {
	if m != nil {
		m.LoadedChunks.Set(float64(n))
	}
}

// IntentDropped считает отброшенное намерение
func (m *Metrics) IntentDropped() {
	if m != nil {
		m.IntentsDropped.Inc()
	}
}
