package pebble

import (
	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = &Collector{}

// Collector exports the metrics of a Store's Pebble database to Prometheus.
type Collector struct {
	s *Store

	compactions  *prometheus.Desc
	compactDebt  *prometheus.Desc
	memtableSize *prometheus.Desc
	walSize      *prometheus.Desc
	diskUsage    *prometheus.Desc
}

// NewCollector produces a Collector for s.
func NewCollector(s *Store) *Collector {
	return &Collector{
		s: s,
		compactions: prometheus.NewDesc(
			"bucketset_pebble_compactions_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactDebt: prometheus.NewDesc(
			"bucketset_pebble_compaction_debt_bytes",
			"Estimated bytes that need compacting",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"bucketset_pebble_memtable_size_bytes",
			"Size of allocated memtables",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"bucketset_pebble_wal_size_bytes",
			"Size of live WAL data",
			nil, nil,
		),
		diskUsage: prometheus.NewDesc(
			"bucketset_pebble_disk_usage_bytes",
			"Total disk space used by the database",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compactions
	ch <- c.compactDebt
	ch <- c.memtableSize
	ch <- c.walSize
	ch <- c.diskUsage
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.s.db.Metrics()

	ch <- prometheus.MustNewConstMetric(c.compactions, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(c.compactDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(c.diskUsage, prometheus.GaugeValue, float64(m.DiskSpaceUsage()))
}
