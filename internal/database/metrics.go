// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var busyRetryTotal atomic.Uint64

func recordBusyRetry() {
	busyRetryTotal.Add(1)
}

// BusyRetries returns how many times a write was retried after SQLITE_BUSY.
func BusyRetries() uint64 {
	return busyRetryTotal.Load()
}

type MetricsCollector struct {
	busyRetryDesc *prometheus.Desc
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		busyRetryDesc: prometheus.NewDesc(
			"archivarr_db_busy_retry_total",
			"Number of times a write hit SQLITE_BUSY/SQLITE_LOCKED and was retried",
			nil,
			nil,
		),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.busyRetryDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		c.busyRetryDesc,
		prometheus.CounterValue,
		float64(busyRetryTotal.Load()),
	)
}
