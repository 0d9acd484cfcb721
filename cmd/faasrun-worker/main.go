// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Command faasrun-worker runs a single cluster host: it brings up the
// Scheduler Core, the Executor Pool, and the gRPC transport service,
// then blocks until asked to shut down. Every rank of an MPI job runs
// inside a faasrun-worker's Executor Pool; "faasrun-worker rank" takes
// no arguments because a rank's identity comes from the message that
// binds its executor, not from the command line.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/n-krueger/faabric/lib/cluster"
	"github.com/n-krueger/faabric/lib/config"
	"github.com/n-krueger/faabric/lib/executor"
	"github.com/n-krueger/faabric/lib/kv"
	"github.com/n-krueger/faabric/lib/message"
	"github.com/n-krueger/faabric/lib/mpi"
	"github.com/n-krueger/faabric/lib/queue"
	"github.com/n-krueger/faabric/lib/scheduler"
	"github.com/n-krueger/faabric/lib/transport"
	"github.com/n-krueger/faabric/sdk/go/ctxlog"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "faasrun-worker",
		Short: "Runs a single faasrun cluster host",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to cluster config YAML")

	root.AddCommand(&cobra.Command{
		Use:   "rank",
		Short: "Start this host's Scheduler Core, Executor Pool, and transport service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context())
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Cluster, error) {
	if configPath == "" {
		return config.Load(strings.NewReader(""))
	}
	f, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("opening config %s: %w", configPath, err)
	}
	defer f.Close()
	return config.Load(f)
}

func runHost(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctxlog.SetLevel(cfg.Log.Level)
	ctxlog.SetFormat(cfg.Log.Format)
	logger := ctxlog.FromContext(ctx).WithField("Host", cfg.ThisHost)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	resources := cluster.NewResources(cfg.Cores)
	hosts := cluster.NewHostRegistry(store)
	if err := hosts.Add(ctx, cfg.ThisHost); err != nil {
		return fmt.Errorf("registering this host: %w", err)
	}
	functions := cluster.NewFunctionRegistry(0)
	bindQueue := queue.New[*message.Message]()
	factory := message.NewFactory(hostPrefix(cfg.ThisHost))
	mpiRegistry := mpi.NewRegistry()

	pool := transport.NewPool()
	defer pool.CloseAll()

	sch := scheduler.New(scheduler.Config{
		ThisHost:  cfg.ThisHost,
		Factory:   factory,
		Resources: resources,
		Hosts:     hosts,
		Functions: functions,
		Store:     store,
		BindQueue: bindQueue,
		Peers:     transport.NewSchedulerPeers(pool),
		Logger:    logger,
	})
	sch.Start(ctx)
	defer sch.Stop()

	execPool := executor.NewPool(executor.Config{
		ThisHost:       cfg.ThisHost,
		BindQueue:      bindQueue,
		Resources:      resources,
		Functions:      functions,
		Recorder:       sch,
		Cores:          int(cfg.Cores),
		UnboundTimeout: cfg.Executor.UnboundTimeout,
		BoundTimeout:   cfg.Executor.BoundTimeout,
		ThreadPoolSize: cfg.Executor.ThreadPoolSize,
		Logger:         logger,
		MpiCreate: func(ctx context.Context, msg *message.Message) error {
			world, err := mpi.Create(ctx, msg.MpiWorldID, msg.MpiWorldSize, msg.User, msg.Function,
				cfg.ThisHost, msg.SnapshotKey,
				mpi.Config{Store: store, Transport: transport.NewPoolTransport(pool), UsableCores: int(cfg.Cores), HostStateLen: cfg.MPI.HostStateLen, Logger: logger},
				sch)
			if err != nil {
				return err
			}
			mpiRegistry.Register(world)
			return nil
		},
	})
	execPool.Start(ctx)
	defer execPool.Stop()

	server := transport.NewServerImpl(resources, func(ctx context.Context, req *transport.ForwardBatchRequest) (*transport.ForwardBatchResponse, error) {
		hosts, err := sch.CallFunctions(ctx, req.Batch)
		if err != nil {
			return nil, err
		}
		return &transport.ForwardBatchResponse{Hosts: hosts}, nil
	}, mpiRegistry, store)

	lis, err := net.Listen("tcp", cfg.GRPC.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.GRPC.ListenAddress, err)
	}
	grpcServer := grpc.NewServer()
	transport.RegisterServer(grpcServer, server)

	go func() {
		logger.WithField("Address", cfg.GRPC.ListenAddress).Info("transport service listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.WithError(err).Error("grpc server stopped")
		}
	}()

	waitForSignal(logger)
	grpcServer.GracefulStop()
	execPool.Drain(5 * time.Second)
	return nil
}

func openStore(ctx context.Context, cfg *config.Cluster) (kv.Store, error) {
	switch cfg.KV.Backend {
	case "", "memory":
		return kv.NewMemStore(), nil
	case "postgres":
		return kv.OpenPostgresStore(ctx, cfg.KV.DSN)
	default:
		return nil, fmt.Errorf("unknown KV backend %q", cfg.KV.Backend)
	}
}

func hostPrefix(host string) int64 {
	var h int64
	for _, c := range host {
		h = h*31 + int64(c)
	}
	if h < 0 {
		h = -h
	}
	return h % (1 << 20)
}

func waitForSignal(logger logrus.FieldLogger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig).Info("shutting down")
}
