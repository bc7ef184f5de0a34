// Package metrics implements Prometheus metrics for scans. A scan is a short
// run, so metrics are written once in the text exposition format for the
// node_exporter textfile collector rather than served.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/echoscan/internal/flow"
	"firestige.xyz/echoscan/internal/scan"
)

// Collector accumulates the counters of every capture scanned in one run.
type Collector struct {
	registry *prometheus.Registry

	// RecordsTotal counts records by what happened to them
	RecordsTotal *prometheus.CounterVec
	// PacketsTotal counts emitted records by IP protocol
	PacketsTotal *prometheus.CounterVec
	// TransportErrorsTotal counts records emitted without their ICMP header
	TransportErrorsTotal *prometheus.CounterVec
	// InconsistentTotal counts records whose captured length exceeds their original length
	InconsistentTotal *prometheus.CounterVec
	// CaptureTruncated is 1 when the capture ended inside a record
	CaptureTruncated *prometheus.GaugeVec
	// FlowsTotal counts the flows reported
	FlowsTotal prometheus.Counter
	// FlowIntervalSeconds measures the gaps between packets of a flow
	FlowIntervalSeconds prometheus.Histogram
}

// Record outcomes
const (
	OutcomeEmitted      = "emitted"
	OutcomeFiltered     = "filtered"
	OutcomeLinkError    = "link_error"
	OutcomeNetworkError = "network_error"
)

// New creates a collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echoscan_records_total",
				Help: "Total number of capture records by outcome",
			},
			[]string{"file", "outcome"},
		),
		PacketsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echoscan_packets_total",
				Help: "Total number of emitted records by IP protocol",
			},
			[]string{"file", "protocol"},
		),
		TransportErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echoscan_transport_errors_total",
				Help: "Total number of records whose ICMP header could not be decoded",
			},
			[]string{"file"},
		),
		InconsistentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echoscan_inconsistent_records_total",
				Help: "Total number of records whose captured length exceeds their original length",
			},
			[]string{"file"},
		),
		CaptureTruncated: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "echoscan_capture_truncated",
				Help: "Whether the capture ended inside a record (0=no, 1=yes)",
			},
			[]string{"file"},
		),
		FlowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "echoscan_flows_total",
				Help: "Total number of flows reported",
			},
		),
		FlowIntervalSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "echoscan_flow_interval_seconds",
				Help:    "Gap between consecutive packets of a flow in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
			},
		),
	}
	c.registry.MustRegister(
		c.RecordsTotal,
		c.PacketsTotal,
		c.TransportErrorsTotal,
		c.InconsistentTotal,
		c.CaptureTruncated,
		c.FlowsTotal,
		c.FlowIntervalSeconds,
	)
	return c
}

// ObserveScan adds the counters of one finished scan.
func (c *Collector) ObserveScan(file string, st scan.Stats) {
	outcomes := map[string]int{
		OutcomeEmitted:      st.Emitted,
		OutcomeFiltered:     st.Filtered,
		OutcomeLinkError:    st.LinkErrors,
		OutcomeNetworkError: st.NetworkErrors,
	}
	for outcome, n := range outcomes {
		c.RecordsTotal.WithLabelValues(file, outcome).Add(float64(n))
	}

	protocols := map[string]int{
		"icmp":  st.ICMPPackets,
		"tcp":   st.TCPPackets,
		"udp":   st.UDPPackets,
		"other": st.OtherPackets,
	}
	for proto, n := range protocols {
		c.PacketsTotal.WithLabelValues(file, proto).Add(float64(n))
	}

	c.TransportErrorsTotal.WithLabelValues(file).Add(float64(st.TransportErrors))
	c.InconsistentTotal.WithLabelValues(file).Add(float64(st.Inconsistent))

	truncated := 0.0
	if st.Truncated {
		truncated = 1
	}
	c.CaptureTruncated.WithLabelValues(file).Set(truncated)
}

// ObserveFlows records the intervals of every flow.
func (c *Collector) ObserveFlows(flows []flow.Flow) {
	c.FlowsTotal.Add(float64(len(flows)))
	for _, f := range flows {
		for _, d := range f.Intervals() {
			c.FlowIntervalSeconds.Observe(d)
		}
	}
}

// Gatherer exposes the collected metrics.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// WriteTextfile writes the metrics to path atomically.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
