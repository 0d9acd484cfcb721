// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Load reads defaults, then overlays rdr's contents on top, the way
// the teacher's lib/config.Load merges a user file over DefaultYAML.
func Load(rdr io.Reader) (*Cluster, error) {
	var cfg Cluster
	if err := yaml.Unmarshal(DefaultYAML, &cfg); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}
	buf, err := io.ReadAll(rdr)
	if err != nil {
		return nil, fmt.Errorf("config: reading: %w", err)
	}
	if len(buf) == 0 {
		return &cfg, nil
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	if cfg.ThisHost == "" {
		return nil, fmt.Errorf("config: ThisHost must be set")
	}
	if cfg.Cores == 0 {
		return nil, fmt.Errorf("config: Cores must be greater than zero")
	}
	return &cfg, nil
}
