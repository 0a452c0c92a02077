// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/database"
	"github.com/autobrr/archivarr/internal/metrics/collector"
)

type Manager struct {
	registry         *prometheus.Registry
	archiveCollector *collector.ArchiveCollector

	Indexer    *collector.IndexerCollector
	Enrichment *collector.EnrichmentCollector
}

// NewManager builds a private registry with runtime, database, archive and
// engine metrics. stats may be nil.
func NewManager(stats collector.ArchiveStatsSource) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(database.NewMetricsCollector())

	archiveCollector := collector.NewArchiveCollector(stats)
	registry.MustRegister(archiveCollector)

	log.Info().Msg("Metrics manager initialized with archive collector")

	return &Manager{
		registry:         registry,
		archiveCollector: archiveCollector,
		Indexer:          collector.NewIndexerCollector(registry),
		Enrichment:       collector.NewEnrichmentCollector(registry),
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
