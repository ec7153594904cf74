package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// Embedded zone database for hosts without /usr/share/zoneinfo (slim CI images).
	_ "time/tzdata"

	"timetrigger/internal/config"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrInvalid), errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitUsage
	default:
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return exitFatal
	}
}
