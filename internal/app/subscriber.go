package app

import (
	"context"
	"fmt"

	"EnvData-Apps/internal/config"
	"EnvData-Apps/internal/httpapi"
	"EnvData-Apps/internal/subscriber"
)

// RunSubscriber runs env-subscriber. It takes no positional arguments.
func RunSubscriber(ctx context.Context, args []string, env Env) (err error) {
	env = env.withDefaults()
	f, err := parseFlags("env-subscriber", args, env.Stderr)
	if err != nil {
		return err
	}
	if len(f.args) > 0 {
		return &ArgumentError{Name: "args", Msg: fmt.Sprintf("unexpected arguments %v", f.args)}
	}

	rt, err := setup(ctx, "subscriber", f, env)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	board := subscriber.NewBoard().WithLogger(rt.log)
	sub, err := subscriber.New(rt.participant, subscriber.Config{
		Period:    rt.cfg.Subscriber.Period,
		Observers: []subscriber.Observer{subscriber.NewConsoleObserver(env.Stdout), board},
		Console:   env.Stdout,
		Logger:    rt.log,
	})
	if err != nil {
		return err
	}
	if err := sub.Start(); err != nil {
		return err
	}
	defer func() {
		if serr := sub.Shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()

	rt.loader.Watch(rt.log, func(c config.Config) {
		if c.Subscriber.Period != sub.Period() {
			rt.log.Info("subscriber period changed", "period", c.Subscriber.Period)
			sub.SetPeriod(c.Subscriber.Period)
		}
	})
	rt.serveHTTP(ctx, httpapi.Options{
		Role:     "subscriber",
		State:    func() string { return sub.State().String() },
		Readings: board,
	})

	if err := sub.Run(ctx); err != nil {
		return fmt.Errorf("subscriber stopped: %w", err)
	}
	return nil
}
