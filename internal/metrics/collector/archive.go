// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package collector

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/models"
)

// ArchiveStatsSource computes the archive statistics on every scrape.
type ArchiveStatsSource interface {
	Archive(ctx context.Context) (*models.ArchiveStats, error)
}

type ArchiveCollector struct {
	source ArchiveStatsSource

	mediaDesc        *prometheus.Desc
	episodesDesc     *prometheus.Desc
	sizeBytesDesc    *prometheus.Desc
	drivesDesc       *prometheus.Desc
	capacityDesc     *prometheus.Desc
	driveUsedDesc    *prometheus.Desc
	driveTotalDesc   *prometheus.Desc
	protectedDesc    *prometheus.Desc
	emptyMediaDesc   *prometheus.Desc
	scrapeErrorsDesc *prometheus.Desc
}

func NewArchiveCollector(source ArchiveStatsSource) *ArchiveCollector {
	return &ArchiveCollector{
		source: source,

		mediaDesc: prometheus.NewDesc(
			"archivarr_media",
			"Number of indexed titles by type",
			[]string{"type"},
			nil,
		),
		episodesDesc: prometheus.NewDesc(
			"archivarr_episodes",
			"Number of indexed episodes",
			nil,
			nil,
		),
		sizeBytesDesc: prometheus.NewDesc(
			"archivarr_media_size_bytes",
			"Total size of indexed titles in bytes by type",
			[]string{"type"},
			nil,
		),
		drivesDesc: prometheus.NewDesc(
			"archivarr_drives",
			"Number of configured drives",
			nil,
			nil,
		),
		capacityDesc: prometheus.NewDesc(
			"archivarr_drives_capacity_bytes",
			"Summed capacity of every drive in bytes",
			nil,
			nil,
		),
		driveUsedDesc: prometheus.NewDesc(
			"archivarr_drive_used_bytes",
			"Bytes of indexed media per drive",
			[]string{"drive"},
			nil,
		),
		driveTotalDesc: prometheus.NewDesc(
			"archivarr_drive_capacity_bytes",
			"Configured capacity per drive",
			[]string{"drive"},
			nil,
		),
		protectedDesc: prometheus.NewDesc(
			"archivarr_redundancy_protected_percent",
			"Percentage of titles with files on more than one drive",
			nil,
			nil,
		),
		emptyMediaDesc: prometheus.NewDesc(
			"archivarr_media_empty",
			"Number of titles with a total size of zero",
			nil,
			nil,
		),
		scrapeErrorsDesc: prometheus.NewDesc(
			"archivarr_archive_scrape_errors",
			"1 when the last archive statistics query failed",
			nil,
			nil,
		),
	}
}

func (c *ArchiveCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.mediaDesc
	ch <- c.episodesDesc
	ch <- c.sizeBytesDesc
	ch <- c.drivesDesc
	ch <- c.capacityDesc
	ch <- c.driveUsedDesc
	ch <- c.driveTotalDesc
	ch <- c.protectedDesc
	ch <- c.emptyMediaDesc
	ch <- c.scrapeErrorsDesc
}

func (c *ArchiveCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		log.Debug().Msg("Archive stats source is nil, skipping metrics collection")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := c.source.Archive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("metrics: failed to compute archive statistics")
		ch <- prometheus.MustNewConstMetric(c.scrapeErrorsDesc, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeErrorsDesc, prometheus.GaugeValue, 0)

	ch <- prometheus.MustNewConstMetric(c.mediaDesc, prometheus.GaugeValue, float64(st.Counts.Movies), "movie")
	ch <- prometheus.MustNewConstMetric(c.mediaDesc, prometheus.GaugeValue, float64(st.Counts.Series), "tv")
	ch <- prometheus.MustNewConstMetric(c.episodesDesc, prometheus.GaugeValue, float64(st.Counts.Episodes))
	ch <- prometheus.MustNewConstMetric(c.sizeBytesDesc, prometheus.GaugeValue, float64(st.Sizes.Movies), "movie")
	ch <- prometheus.MustNewConstMetric(c.sizeBytesDesc, prometheus.GaugeValue, float64(st.Sizes.Series), "tv")
	ch <- prometheus.MustNewConstMetric(c.drivesDesc, prometheus.GaugeValue, float64(st.Drives.Count))
	ch <- prometheus.MustNewConstMetric(c.capacityDesc, prometheus.GaugeValue, float64(st.Drives.Capacity))
	ch <- prometheus.MustNewConstMetric(c.protectedDesc, prometheus.GaugeValue, st.Redundancy.PercentProtected)
	ch <- prometheus.MustNewConstMetric(c.emptyMediaDesc, prometheus.GaugeValue, float64(st.Health.Empty))

	for _, du := range st.Utilization.PerDrive {
		ch <- prometheus.MustNewConstMetric(c.driveUsedDesc, prometheus.GaugeValue, float64(du.Used), du.Drive)
		ch <- prometheus.MustNewConstMetric(c.driveTotalDesc, prometheus.GaugeValue, float64(du.Total), du.Drive)
	}
}
