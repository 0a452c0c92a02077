// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package collector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IndexerCollector counts scan activity. A nil collector ignores every call.
type IndexerCollector struct {
	ScansTotal       *prometheus.CounterVec
	FilesTotal       *prometheus.CounterVec
	ScanDuration     prometheus.Histogram
	AggregatedRows   prometheus.Counter
	EnrichQueueDrops prometheus.Counter
	WatcherRescans   prometheus.Counter
}

func NewIndexerCollector(r *prometheus.Registry) *IndexerCollector {
	m := &IndexerCollector{
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archivarr",
			Subsystem: "indexer",
			Name:      "scans_total",
			Help:      "Total number of scan runs by outcome",
		}, []string{"status"}),
		FilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archivarr",
			Subsystem: "indexer",
			Name:      "files_total",
			Help:      "Total number of video files visited by result",
		}, []string{"result"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "archivarr",
			Subsystem: "indexer",
			Name:      "scan_duration_seconds",
			Help:      "Duration of complete scan runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		AggregatedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "archivarr",
			Subsystem: "indexer",
			Name:      "aggregate_rows_changed_total",
			Help:      "Total number of season and media rows changed by aggregate recomputation",
		}),
		EnrichQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "archivarr",
			Subsystem: "indexer",
			Name:      "enrich_queue_drops_total",
			Help:      "Media touched during a scan that did not fit in the enrichment queue",
		}),
		WatcherRescans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "archivarr",
			Subsystem: "indexer",
			Name:      "watcher_rescans_total",
			Help:      "Total number of rescans triggered by filesystem events",
		}),
	}

	r.MustRegister(m.ScansTotal)
	r.MustRegister(m.FilesTotal)
	r.MustRegister(m.ScanDuration)
	r.MustRegister(m.AggregatedRows)
	r.MustRegister(m.EnrichQueueDrops)
	r.MustRegister(m.WatcherRescans)
	return m
}

func (m *IndexerCollector) ObserveScan(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(status).Inc()
	m.ScanDuration.Observe(took.Seconds())
}

func (m *IndexerCollector) IncFile(result string) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(result).Inc()
}

func (m *IndexerCollector) AddAggregated(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.AggregatedRows.Add(float64(n))
}

func (m *IndexerCollector) IncQueueDrop() {
	if m == nil {
		return
	}
	m.EnrichQueueDrops.Inc()
}

func (m *IndexerCollector) IncWatcherRescan() {
	if m == nil {
		return
	}
	m.WatcherRescans.Inc()
}
