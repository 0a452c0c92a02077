// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package connectors

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/autobrr/archivarr/internal/domain"
)

type yamlConnector struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// ParseYAML reads a connector file keyed by app type:
//
//	radarr:
//	  base_url: http://radarr:7878
//	  api_key: abc
func ParseYAML(r io.Reader) ([]domain.ConnectorConfig, error) {
	var doc map[string]yamlConnector
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode connectors yaml: %w", err)
	}

	apps := make([]string, 0, len(doc))
	for app := range doc {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	out := make([]domain.ConnectorConfig, 0, len(apps))
	for _, app := range apps {
		c := doc[app]
		out = append(out, domain.ConnectorConfig{AppType: app, BaseURL: c.BaseURL, APIKey: c.APIKey})
	}
	return out, nil
}
