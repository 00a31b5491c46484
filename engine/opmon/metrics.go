package opmon

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sectorworld"

var (
	// Registry holds every server metric
	Registry = prometheus.NewRegistry()

	factory = promauto.With(Registry)

	operationDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of monitored operations.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"op"})

	// Connections is the number of open client connections
	Connections = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections",
		Help:      "Open client connections.",
	})

	// Sessions is the number of logged in players
	Sessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Logged in players.",
	})

	// Sectors is the number of running sector actors
	Sectors = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sectors",
		Help:      "Running sector actors.",
	})

	// SectorFaults counts closures that failed inside a sector actor
	SectorFaults = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sector_faults_total",
		Help:      "Sector closures that returned an error or panicked.",
	}, []string{"sector"})

	// ProtocolViolations counts connections dropped for protocol violations
	ProtocolViolations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "protocol_violations_total",
		Help:      "Connections closed for protocol violations.",
	})

	// HandshakeFailures counts failed key exchanges
	HandshakeFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handshake_failures_total",
		Help:      "Failed key exchanges.",
	})

	bytesSent = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sent_bytes_total",
		Help:      "Bytes written to clients, framing included.",
	})

	bytesReceived = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "received_bytes_total",
		Help:      "Bytes read from clients, framing included.",
	})
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// AddBytesSent adds n to the sent bytes counter
func AddBytesSent(n int) {
	bytesSent.Add(float64(n))
}

// AddBytesReceived adds n to the received bytes counter
func AddBytesReceived(n int) {
	bytesReceived.Add(float64(n))
}

// Handler serves the metrics in the prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
