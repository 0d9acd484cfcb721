// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package config loads a host's cluster configuration from YAML,
// following the teacher's lib/config pattern of merging a user file
// on top of a built-in default.
package config

import "time"

// Cluster is everything a single faasrun-scheduler/faasrun-worker
// process needs to join a cluster and start accepting work.
type Cluster struct {
	ThisHost string   `yaml:"ThisHost"`
	Peers    []string `yaml:"Peers"`

	Cores uint32 `yaml:"Cores"`

	GRPC struct {
		ListenAddress string `yaml:"ListenAddress"`
	} `yaml:"GRPC"`

	KV struct {
		Backend string `yaml:"Backend"` // "memory" or "postgres"
		DSN     string `yaml:"DSN"`
	} `yaml:"KV"`

	Executor struct {
		UnboundTimeout time.Duration `yaml:"UnboundTimeout"`
		BoundTimeout   time.Duration `yaml:"BoundTimeout"`
		ThreadPoolSize int           `yaml:"ThreadPoolSize"`
	} `yaml:"Executor"`

	MPI struct {
		HostStateLen int           `yaml:"HostStateLen"`
		ResultTTL    time.Duration `yaml:"ResultTTL"`
	} `yaml:"MPI"`

	Log struct {
		Level  string `yaml:"Level"`
		Format string `yaml:"Format"`
	} `yaml:"Log"`
}
