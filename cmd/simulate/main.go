package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/posture/internal/simulate"
)

// defaultRunTimeout bounds the whole simulation.
const defaultRunTimeout = 30 * time.Minute

func main() {
	cfg, help, err := simulate.ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Stderr.WriteString("Invalid options: " + err.Error() + "\n")
		os.Exit(2)
	}
	if help {
		simulate.ShowHelp(os.Stdout)
		return
	}

	if err := simulate.SetupLogging(cfg.LogFile, cfg.Verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	if _, err := simulate.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1) //nolint:gocritic // exitAfterDefer: nothing left to flush
	}
}
