package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"auction-service/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Stderr)
	stop()
	os.Exit(code)
}
