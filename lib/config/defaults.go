// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

// DefaultYAML is merged underneath every loaded config file, so a
// user file only needs to set the fields it wants to override.
var DefaultYAML = []byte(`
ThisHost: localhost
Peers: []
Cores: 4
GRPC:
  ListenAddress: "127.0.0.1:9901"
KV:
  Backend: memory
  DSN: ""
Executor:
  UnboundTimeout: 10s
  BoundTimeout: 1m
  ThreadPoolSize: 4
MPI:
  HostStateLen: 128
  ResultTTL: 30s
Log:
  Level: info
  Format: text
`)
