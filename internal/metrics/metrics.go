package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for engine traffic and finished games.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	engineLines     *prometheus.CounterVec
	games           *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lzui_gtp_commands_total",
				Help: "Total number of GTP commands answered, by engine, command and status",
			},
			[]string{"engine", "command", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lzui_gtp_command_duration_seconds",
				Help:    "Time from writing a GTP command to receiving its response",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"engine", "command"},
		),
		engineLines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lzui_engine_lines_total",
				Help: "Total number of lines read from engine stdout",
			},
			[]string{"engine"},
		),
		games: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lzui_games_total",
				Help: "Total number of finished games, by termination cause and winner",
			},
			[]string{"cause", "winner"},
		),
	}
	m.registry.MustRegister(m.commands, m.commandDuration, m.engineLines, m.games)
	return m
}

func (m *Metrics) ObserveCommand(engine, command, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(engine, command, status).Inc()
	m.commandDuration.WithLabelValues(engine, command).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLine(engine string) {
	if m == nil {
		return
	}
	m.engineLines.WithLabelValues(engine).Inc()
}

func (m *Metrics) ObserveGame(cause, winner string) {
	if m == nil {
		return
	}
	m.games.WithLabelValues(cause, winner).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
