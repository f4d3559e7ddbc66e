// Package metrics exposes an optional Prometheus collector over the
// counters a socket's pattern already tracks: peer count, send/recv queue
// depths, high water mark rejections, and (for the safe variant) frames
// retransmitted and messages deduplicated. A socket never has to run this
// package to function; a socket whose Metrics() source is never added to a
// SocketCollector pays nothing for it.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Source is the subset of a pattern's counters the collector reads on
// every Collect call. Dealer, Radio, Dish, and SafeDealer all implement it.
type Source interface {
	Peers() int
	SendQueueDepth() int
	RecvQueueDepth() int
	SendHWMRejections() uint64
	RecvHWMRejections() uint64
	Retransmitted() uint64
	Deduplicated() uint64
}

type desc struct {
	peers             *prometheus.Desc
	sendQueueDepth    *prometheus.Desc
	recvQueueDepth    *prometheus.Desc
	sendHWMRejections *prometheus.Desc
	recvHWMRejections *prometheus.Desc
	retransmitted     *prometheus.Desc
	deduplicated      *prometheus.Desc
}

// SocketCollector is a prometheus.Collector over zero or more registered
// sockets, each identified by a caller-supplied name. Constructed the way
// the teacher's exporter builds a metric-name prefix and constant labels
// once, then locks a small map on every Add/Remove/Collect.
type SocketCollector struct {
	mu      sync.Mutex
	sockets map[string]Source
	descs   desc
}

// NewSocketCollector returns a collector whose metric names are prefixed
// with prefix (e.g. "nbmq") and which carries constLabels on every series
// it emits.
func NewSocketCollector(prefix string, constLabels prometheus.Labels) *SocketCollector {
	label := []string{"socket"}
	return &SocketCollector{
		sockets: make(map[string]Source),
		descs: desc{
			peers: prometheus.NewDesc(
				prefix+"_peers", "Number of peers currently known to the socket.", label, constLabels),
			sendQueueDepth: prometheus.NewDesc(
				prefix+"_send_queue_depth", "Outstanding outgoing frames across all peers.", label, constLabels),
			recvQueueDepth: prometheus.NewDesc(
				prefix+"_recv_queue_depth", "In-progress incoming messages awaiting completion.", label, constLabels),
			sendHWMRejections: prometheus.NewDesc(
				prefix+"_send_hwm_rejections_total", "Sends rejected for being at the send high water mark.", label, constLabels),
			recvHWMRejections: prometheus.NewDesc(
				prefix+"_recv_hwm_rejections_total", "Frames or messages rejected for being at the recv high water mark.", label, constLabels),
			retransmitted: prometheus.NewDesc(
				prefix+"_retransmitted_total", "Frames resent by the safe variant after a missed acknowledgement.", label, constLabels),
			deduplicated: prometheus.NewDesc(
				prefix+"_deduplicated_total", "Redeliveries suppressed by the safe variant's dedup window.", label, constLabels),
		},
	}
}

// Add registers source under name, replacing any existing registration with
// that name.
func (c *SocketCollector) Add(name string, source Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sockets[name] = source
}

// Remove unregisters name, if present.
func (c *SocketCollector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sockets, name)
}

// Describe implements prometheus.Collector.
func (c *SocketCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.descs.peers
	ch <- c.descs.sendQueueDepth
	ch <- c.descs.recvQueueDepth
	ch <- c.descs.sendHWMRejections
	ch <- c.descs.recvHWMRejections
	ch <- c.descs.retransmitted
	ch <- c.descs.deduplicated
}

// Collect implements prometheus.Collector. It never calls out to the
// network or blocks on anything beyond the collector's own mutex: every
// value it reads is a counter the pattern's tick() already maintains.
func (c *SocketCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, s := range c.sockets {
		ch <- prometheus.MustNewConstMetric(c.descs.peers, prometheus.GaugeValue, float64(s.Peers()), name)
		ch <- prometheus.MustNewConstMetric(c.descs.sendQueueDepth, prometheus.GaugeValue, float64(s.SendQueueDepth()), name)
		ch <- prometheus.MustNewConstMetric(c.descs.recvQueueDepth, prometheus.GaugeValue, float64(s.RecvQueueDepth()), name)
		ch <- prometheus.MustNewConstMetric(c.descs.sendHWMRejections, prometheus.CounterValue, float64(s.SendHWMRejections()), name)
		ch <- prometheus.MustNewConstMetric(c.descs.recvHWMRejections, prometheus.CounterValue, float64(s.RecvHWMRejections()), name)
		ch <- prometheus.MustNewConstMetric(c.descs.retransmitted, prometheus.CounterValue, float64(s.Retransmitted()), name)
		ch <- prometheus.MustNewConstMetric(c.descs.deduplicated, prometheus.CounterValue, float64(s.Deduplicated()), name)
	}
}
