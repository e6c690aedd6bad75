package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"EnvData-Apps/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunPublisher(ctx, os.Args[1:], app.Env{Stdout: os.Stdout, Stderr: os.Stderr})
	stop()

	var argErr *app.ArgumentError
	if err != nil && !errors.As(err, &argErr) {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(app.ExitCode(err))
}
