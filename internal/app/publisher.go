package app

import (
	"context"
	"fmt"
	"strings"

	"EnvData-Apps/internal/config"
	"EnvData-Apps/internal/httpapi"
	"EnvData-Apps/internal/publisher"
)

// RunPublisher runs env-publisher. args are the command line without the
// program name: [-config path] [-qos path] <node-id>.
func RunPublisher(ctx context.Context, args []string, env Env) (err error) {
	env = env.withDefaults()
	f, err := parseFlags("env-publisher", args, env.Stderr)
	if err != nil {
		return err
	}
	if len(f.args) < 1 || strings.TrimSpace(f.args[0]) == "" {
		fmt.Fprintln(env.Stdout, missingNodeIDMessage)
		return &ArgumentError{Name: "node-id", Msg: missingNodeIDMessage}
	}
	nodeID := f.args[0]

	host, err := env.Hostname()
	if err != nil {
		return fmt.Errorf("hostname: %w", err)
	}

	rt, err := setup(ctx, "publisher", f, env)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	pub, err := publisher.New(rt.participant, publisher.Config{
		NodeID:  nodeID,
		Host:    host,
		Period:  rt.cfg.Publisher.Period,
		Console: env.Stdout,
		Logger:  rt.log,
	})
	if err != nil {
		return err
	}
	if err := pub.Start(); err != nil {
		return err
	}
	defer func() {
		if serr := pub.Shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()

	rt.loader.Watch(rt.log, func(c config.Config) {
		if c.Publisher.Period != pub.Period() {
			rt.log.Info("publisher period changed", "period", c.Publisher.Period)
			pub.SetPeriod(c.Publisher.Period)
		}
	})
	rt.serveHTTP(ctx, httpapi.Options{
		Role:  "publisher",
		State: func() string { return pub.State().String() },
	})

	if err := pub.Run(ctx); err != nil {
		return fmt.Errorf("publisher stopped: %w", err)
	}
	return nil
}
