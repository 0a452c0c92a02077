// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package collector

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EnrichmentCollector counts provider lookups and poster downloads. A nil
// collector ignores every call.
type EnrichmentCollector struct {
	LookupsTotal    *prometheus.CounterVec
	ResolvedTotal   *prometheus.CounterVec
	PosterDownloads *prometheus.CounterVec
}

func NewEnrichmentCollector(r *prometheus.Registry) *EnrichmentCollector {
	m := &EnrichmentCollector{
		LookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archivarr",
			Subsystem: "enrichment",
			Name:      "lookups_total",
			Help:      "Total number of provider lookups by tier and result",
		}, []string{"tier", "result"}),
		ResolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archivarr",
			Subsystem: "enrichment",
			Name:      "resolved_total",
			Help:      "Total number of enrichment requests by final outcome",
		}, []string{"outcome"}),
		PosterDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archivarr",
			Subsystem: "posters",
			Name:      "downloads_total",
			Help:      "Total number of image downloads by kind and result",
		}, []string{"kind", "result"}),
	}

	r.MustRegister(m.LookupsTotal)
	r.MustRegister(m.ResolvedTotal)
	r.MustRegister(m.PosterDownloads)
	return m
}

func (m *EnrichmentCollector) IncLookup(tier, result string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(tier, result).Inc()
}

func (m *EnrichmentCollector) IncResolved(outcome string) {
	if m == nil {
		return
	}
	m.ResolvedTotal.WithLabelValues(outcome).Inc()
}

func (m *EnrichmentCollector) IncPosterDownload(kind, result string) {
	if m == nil {
		return
	}
	m.PosterDownloads.WithLabelValues(kind, result).Inc()
}
