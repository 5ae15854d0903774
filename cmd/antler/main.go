// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/wildsight/antler/pkg/bootstrap"
	"github.com/wildsight/antler/pkg/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := server.InitServerWithPreInitFunc(ctx, bootstrap.Init)

	// The listener has drained; now stop the workers, the loops and the
	// model runtimes before the process exits.
	bootstrap.Shutdown()

	if err != nil {
		panic(err)
	}
}
