// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Command faasrun-scheduler is the client-side entry point for
// submitting an MPI job to a running faasrun cluster: it is the
// "root process" of spec.md §6, playing rank 0 by submitting a CALL
// message tagged with the requested world size to a target host's
// transport service and letting that host's Scheduler Core take it
// from there (world creation, sibling dispatch, placement).
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/n-krueger/faabric/lib/message"
	"github.com/n-krueger/faabric/lib/transport"
)

func main() {
	var targetHost, user, function string

	root := &cobra.Command{
		Use:   "faasrun-scheduler",
		Short: "Submits jobs to a running faasrun cluster",
	}
	root.PersistentFlags().StringVar(&targetHost, "host", "127.0.0.1:9901", "address of a faasrun-worker's transport service")
	root.PersistentFlags().StringVar(&user, "user", "", "user owning the function")
	root.PersistentFlags().StringVar(&function, "function", "", "function to invoke")

	mpiRun := &cobra.Command{
		Use:   "mpi-run <worldSize>",
		Short: "Starts an MPI job with the given world size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			worldSize, err := strconv.Atoi(args[0])
			if err != nil || worldSize <= 0 {
				return fmt.Errorf("worldSize must be a positive integer, got %q", args[0])
			}
			if user == "" || function == "" {
				return fmt.Errorf("--user and --function are required")
			}
			return submitMpiRun(cmd.Context(), targetHost, user, function, worldSize)
		},
	}
	root.AddCommand(mpiRun)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func submitMpiRun(ctx context.Context, host, user, function string, worldSize int) error {
	client, err := transport.Dial(host)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", host, err)
	}
	defer client.Close()

	msg := &message.Message{
		Type:         message.TypeCall,
		User:         user,
		Function:     function,
		IsMpi:        true,
		MpiRank:      0,
		MpiWorldSize: worldSize,
	}
	batch := &message.BatchRequest{
		Type:     message.BatchFunctions,
		Messages: []*message.Message{msg},
	}
	resp, err := client.ForwardBatch(ctx, &transport.ForwardBatchRequest{Batch: batch})
	if err != nil {
		return fmt.Errorf("submitting mpi-run: %w", err)
	}
	fmt.Printf("rank 0 placed on %v\n", resp.Hosts)
	return nil
}
