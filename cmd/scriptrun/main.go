package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(os.Stdout, loadApp).ExecuteContext(ctx)
	if err == nil {
		return
	}
	if !errors.Is(err, errFailureHandled) {
		fail(err)
	}
	stop()
	os.Exit(1)
}

func fail(err error) {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger.Fatal().Err(err).Msg("scriptrun failed")
}
