package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	if err := a.execute(ctx, os.Args[1:]); err != nil {
		a.logger().Error().Err(err).Msg("npimatch failed")
		stop()
		os.Exit(1)
	}
}

func init() {
	// Errors before configuration is loaded still go to stderr as JSON
	log.Logger = log.Output(os.Stderr)
}
