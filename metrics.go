package quic

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports endpoint-wide QUIC connection counters to Prometheus.
// It is registered by the caller and kept up to date by the endpoint's
// connection lifecycle events.
type Collector struct {
	mu          sync.Mutex
	accepted    uint64
	closed      uint64
	bytesSent   uint64
	bytesRecv   uint64
	activeConns int

	acceptedDesc *prometheus.Desc
	closedDesc   *prometheus.Desc
	bytesSentDesc *prometheus.Desc
	bytesRecvDesc *prometheus.Desc
	activeDesc   *prometheus.Desc
}

// NewCollector creates a Collector. Attach it to an endpoint with
// endpoint.SetCollector, then register it with a prometheus.Registry.
func NewCollector() *Collector {
	return &Collector{
		acceptedDesc:  prometheus.NewDesc("quic_connections_accepted_total", "Total connections established.", nil, nil),
		closedDesc:    prometheus.NewDesc("quic_connections_closed_total", "Total connections closed.", nil, nil),
		bytesSentDesc: prometheus.NewDesc("quic_bytes_sent_total", "Total bytes written to the socket.", nil, nil),
		bytesRecvDesc: prometheus.NewDesc("quic_bytes_received_total", "Total bytes read from the socket.", nil, nil),
		activeDesc:    prometheus.NewDesc("quic_connections_active", "Currently active connections.", nil, nil),
	}
}

func (c *Collector) onAccept() {
	c.mu.Lock()
	c.accepted++
	c.activeConns++
	c.mu.Unlock()
}

func (c *Collector) onClose() {
	c.mu.Lock()
	c.closed++
	c.activeConns--
	c.mu.Unlock()
}

func (c *Collector) onIO(sent, recv int) {
	c.mu.Lock()
	c.bytesSent += uint64(sent)
	c.bytesRecv += uint64(recv)
	c.mu.Unlock()
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.acceptedDesc
	descs <- c.closedDesc
	descs <- c.bytesSentDesc
	descs <- c.bytesRecvDesc
	descs <- c.activeDesc
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	metrics <- prometheus.MustNewConstMetric(c.acceptedDesc, prometheus.CounterValue, float64(c.accepted))
	metrics <- prometheus.MustNewConstMetric(c.closedDesc, prometheus.CounterValue, float64(c.closed))
	metrics <- prometheus.MustNewConstMetric(c.bytesSentDesc, prometheus.CounterValue, float64(c.bytesSent))
	metrics <- prometheus.MustNewConstMetric(c.bytesRecvDesc, prometheus.CounterValue, float64(c.bytesRecv))
	metrics <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, float64(c.activeConns))
}
