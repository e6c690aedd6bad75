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
	err := app.RunSubscriber(ctx, os.Args[1:], app.Env{Stdout: os.Stdout, Stderr: os.Stderr})
	stop()

	var argErr *app.ArgumentError
	if errors.As(err, &argErr) {
		fmt.Fprintln(os.Stderr, "usage: env-subscriber [-config path] [-qos path]")
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(app.ExitCode(err))
}
