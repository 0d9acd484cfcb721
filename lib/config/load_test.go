// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithEmptyReaderReturnsDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, "localhost", cfg.ThisHost)
	require.Equal(t, uint32(4), cfg.Cores)
	require.Equal(t, "127.0.0.1:9901", cfg.GRPC.ListenAddress)
	require.Equal(t, 10*time.Second, cfg.Executor.UnboundTimeout)
	require.Equal(t, 4, cfg.Executor.ThreadPoolSize)
}

func TestLoadOverlaysUserFileOnDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(`
ThisHost: host-a
Cores: 8
`))
	require.NoError(t, err)
	require.Equal(t, "host-a", cfg.ThisHost)
	require.Equal(t, uint32(8), cfg.Cores)
	// Fields the override omits keep their default value.
	require.Equal(t, "127.0.0.1:9901", cfg.GRPC.ListenAddress)
	require.Equal(t, "memory", cfg.KV.Backend)
}

func TestLoadRejectsZeroCores(t *testing.T) {
	_, err := Load(strings.NewReader("Cores: 0\n"))
	require.Error(t, err)
}

func TestLoadRejectsEmptyThisHost(t *testing.T) {
	_, err := Load(strings.NewReader("ThisHost: \"\"\n"))
	require.Error(t, err)
}
