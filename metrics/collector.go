package metrics

import (
	"net/http"

	"github.com/hugolhafner/go-spout/spout"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spout"

var _ prometheus.Collector = (*Collector)(nil)

type gaugeDesc struct {
	desc  *prometheus.Desc
	value func(spout.Stats) float64
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(spout.Stats) uint64
}

// Collector exposes spout snapshots to Prometheus. stats is called once per
// scrape and must be safe for concurrent use, as Spout.Stats is.
type Collector struct {
	stats    func() spout.Stats
	gauges   []gaugeDesc
	counters []counterDesc
}

func NewCollector(stats func() spout.Stats, constLabels prometheus.Labels) *Collector {
	gauge := func(name, help string, v func(spout.Stats) float64) gaugeDesc {
		return gaugeDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, constLabels),
			value: v,
		}
	}
	counter := func(name, help string, v func(spout.Stats) uint64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, constLabels),
			value: v,
		}
	}

	return &Collector{
		stats: stats,
		gauges: []gaugeDesc{
			gauge("active", "1 while the spout is activated.", func(s spout.Stats) float64 { return boolFloat(s.Active) }),
			gauge("initialized", "1 once the current assignment has been positioned.", func(s spout.Stats) float64 { return boolFloat(s.Initialized) }),
			gauge("assigned_partitions", "Partitions currently assigned.", func(s spout.Stats) float64 { return float64(s.AssignedPartitions) }),
			gauge("uncommitted_offsets", "Offsets fetched but not yet committed.", func(s spout.Stats) float64 { return float64(s.UncommittedOffsets) }),
			gauge("in_flight_tuples", "Tuples emitted and awaiting ack or fail.", func(s spout.Stats) float64 { return float64(s.InFlight) }),
			gauge("pending_commit_acks", "Acked offsets waiting behind a gap or the next commit.", func(s spout.Stats) float64 { return float64(s.PendingCommit) }),
			gauge("scheduled_retries", "Failed tuples scheduled for re-emission.", func(s spout.Stats) float64 { return float64(s.ScheduledRetries) }),
			gauge("buffered_records", "Polled records not yet considered for emission.", func(s spout.Stats) float64 { return float64(s.Buffered) }),
		},
		counters: []counterDesc{
			counter("records_polled_total", "Records returned by polls.", func(s spout.Stats) uint64 { return s.RecordsPolled }),
			counter("tuples_emitted_total", "Tuples handed to the collector.", func(s spout.Stats) uint64 { return s.TuplesEmitted }),
			counter("tuples_acked_total", "Tuples acknowledged by the host.", func(s spout.Stats) uint64 { return s.TuplesAcked }),
			counter("tuples_failed_total", "Tuple failures, including translation errors.", func(s spout.Stats) uint64 { return s.TuplesFailed }),
			counter("retries_exhausted_total", "Failures acknowledged after the retry budget ran out.", func(s spout.Stats) uint64 { return s.RetriesExhausted }),
			counter("offsets_committed_total", "Offsets moved past by commits.", func(s spout.Stats) uint64 { return s.OffsetsCommitted }),
			counter("commit_errors_total", "Failed commit attempts.", func(s spout.Stats) uint64 { return s.CommitErrors }),
			counter("poll_errors_total", "Failed polls.", func(s spout.Stats) uint64 { return s.PollErrors }),
		},
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
	for _, ct := range c.counters {
		ch <- ct.desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()
	for _, g := range c.gauges {
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, g.value(st))
	}
	for _, ct := range c.counters {
		ch <- prometheus.MustNewConstMetric(ct.desc, prometheus.CounterValue, float64(ct.value(st)))
	}
}

// Handler serves the metrics of g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
