package observability

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/hmibridge/hmibridge/internal/eventbus"
	"github.com/hmibridge/hmibridge/internal/plugins"
)

// BridgeSnapshot is a point-in-time view of the host and client connections.
type BridgeSnapshot struct {
	HostPeers        int
	FeedClients      int
	PedalboardLoaded bool
	Pedals           int
}

// PrometheusExporter renders daemon metrics in Prometheus' text format.
type PrometheusExporter struct {
	bus     *eventbus.Bus
	counter *EventCounter
	plugins func() plugins.Stats
	bridge  func() BridgeSnapshot
}

// NewPrometheusExporter constructs an exporter backed by the bus and its
// event counter.
func NewPrometheusExporter(bus *eventbus.Bus, counter *EventCounter) *PrometheusExporter {
	return &PrometheusExporter{bus: bus, counter: counter}
}

// WithPluginStats exports plugin cache counters.
func (e *PrometheusExporter) WithPluginStats(provider func() plugins.Stats) {
	e.plugins = provider
}

// WithBridge exports connection gauges.
func (e *PrometheusExporter) WithBridge(provider func() BridgeSnapshot) {
	e.bridge = provider
}

// Export produces the metrics payload.
func (e *PrometheusExporter) Export() []byte {
	var buf bytes.Buffer

	e.writeEventCounters(&buf)
	e.writeBusMetrics(&buf)
	e.writePluginMetrics(&buf)
	e.writeBridgeMetrics(&buf)

	return buf.Bytes()
}

func writeMetric(buf *bytes.Buffer, name, kind, help string, value any) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(buf, "%s %v\n", name, value)
}

func (e *PrometheusExporter) writeEventCounters(buf *bytes.Buffer) {
	if e.counter == nil {
		return
	}
	counts := e.counter.Snapshot()
	if len(counts) == 0 {
		return
	}

	buf.WriteString("# HELP hmibridge_events_total Total number of published events per topic.\n")
	buf.WriteString("# TYPE hmibridge_events_total counter\n")

	topics := make([]string, 0, len(counts))
	for topic := range counts {
		topics = append(topics, string(topic))
	}
	sort.Strings(topics)
	for _, topic := range topics {
		fmt.Fprintf(buf, "hmibridge_events_total{topic=%q} %d\n", topic, counts[eventbus.Topic(topic)])
	}
}

func (e *PrometheusExporter) writeBusMetrics(buf *bytes.Buffer) {
	if e.bus == nil {
		return
	}
	metrics := e.bus.Metrics()
	writeMetric(buf, "hmibridge_eventbus_publish_total", "counter",
		"Total number of events published on the bus.", metrics.PublishTotal)
	writeMetric(buf, "hmibridge_eventbus_dropped_total", "counter",
		"Total number of events dropped by slow subscribers.", metrics.DroppedTotal)
}

func (e *PrometheusExporter) writePluginMetrics(buf *bytes.Buffer) {
	if e.plugins == nil {
		return
	}
	stats := e.plugins()
	writeMetric(buf, "hmibridge_plugins_cached", "gauge",
		"Number of plugin descriptions held by the metadata cache.", stats.Entries)
	writeMetric(buf, "hmibridge_plugins_extractions_total", "counter",
		"Total number of plugin descriptions extracted from bundles.", stats.Extractions)
	writeMetric(buf, "hmibridge_plugins_scans_total", "counter",
		"Total number of bundle root scans.", stats.ScanCount)
}

func (e *PrometheusExporter) writeBridgeMetrics(buf *bytes.Buffer) {
	if e.bridge == nil {
		return
	}
	snap := e.bridge()
	loaded := 0
	if snap.PedalboardLoaded {
		loaded = 1
	}
	writeMetric(buf, "hmibridge_host_peers", "gauge",
		"Number of connected audio host peers.", snap.HostPeers)
	writeMetric(buf, "hmibridge_feed_clients", "gauge",
		"Number of connected event feed clients.", snap.FeedClients)
	writeMetric(buf, "hmibridge_pedalboard_loaded", "gauge",
		"Whether the host reports a loaded pedalboard.", loaded)
	writeMetric(buf, "hmibridge_pedalboard_pedals", "gauge",
		"Number of pedals on the loaded pedalboard.", snap.Pedals)
}
