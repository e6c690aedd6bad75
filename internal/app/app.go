// Package app wires configuration, logging, transport, metrics and HTTP
// around the publisher and subscriber loops. cmd/ mains are thin wrappers.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"EnvData-Apps/internal/channel"
	"EnvData-Apps/internal/config"
	"EnvData-Apps/internal/core/network"
	"EnvData-Apps/internal/httpapi"
	"EnvData-Apps/internal/logging"
	"EnvData-Apps/internal/metrics"
	"EnvData-Apps/internal/qos"
)

const missingNodeIDMessage = "ERROR: NODE ID MISSING! EXITING NOW..."

// ArgumentError reports a bad command line. It is raised before any
// channel is opened.
type ArgumentError struct {
	Name string
	Msg  string
}

func (e *ArgumentError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "invalid argument " + e.Name
}

// ExitCode maps a run result to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Env is the process environment a run works against.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	// Hostname defaults to os.Hostname.
	Hostname func() (string, error)
	// Transport replaces the configured backend. The caller keeps
	// ownership and closes it.
	Transport network.PubSub
}

func (e Env) withDefaults() Env {
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.Hostname == nil {
		e.Hostname = os.Hostname
	}
	return e
}

type flags struct {
	configPath string
	qosPath    string
	args       []string
}

func parseFlags(name string, args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "path to envdata.yaml")
	fs.StringVar(&f.qosPath, "qos", "", "path to the QoS profile (overrides qos_file)")
	if err := fs.Parse(args); err != nil {
		return f, &ArgumentError{Name: "flags", Msg: err.Error()}
	}
	f.args = fs.Args()
	return f, nil
}

// runtime is everything both roles set up before their loop starts.
type runtime struct {
	loader      *config.Loader
	cfg         config.Config
	log         *slog.Logger
	logCloser   io.Closer
	registry    *prometheus.Registry
	metrics     *metrics.Channel
	transport   network.PubSub
	ownsTrans   io.Closer
	participant *channel.Participant
}

func setup(ctx context.Context, role string, f flags, env Env) (*runtime, error) {
	loader, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	cfg := loader.Current()

	logger, logCloser, err := logging.New(cfg.LoggingOptions(), env.Stderr)
	if err != nil {
		return nil, err
	}
	logger = logger.With("role", role)
	rt := &runtime{loader: loader, cfg: cfg, log: logger, logCloser: logCloser}

	qosPath := cfg.QoSFile
	if f.qosPath != "" {
		qosPath = f.qosPath
	}
	profile, err := qos.Load(qosPath)
	if err != nil {
		rt.close()
		return nil, err
	}

	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.New(rt.registry)

	if env.Transport != nil {
		rt.transport = env.Transport
	} else {
		t, err := network.Open(ctx, cfg.TransportOptions(logger))
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("open transport: %w", err)
		}
		rt.transport = t
		rt.ownsTrans = t
	}
	logger.Info("transport ready", "kind", cfg.Transport.Kind, "qos_profile", profile.Name)

	rt.participant, err = channel.NewParticipant(rt.transport, channel.Options{
		Profile: &profile,
		Logger:  logger,
		Metrics: rt.metrics,
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// serveHTTP starts the HTTP API when an address is configured.
func (rt *runtime) serveHTTP(ctx context.Context, opts httpapi.Options) {
	addr := rt.cfg.HTTP.ListenAddr
	if addr == "" {
		return
	}
	opts.Gatherer = rt.registry
	opts.Logger = rt.log
	srv := httpapi.New(opts)
	go func() {
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			rt.log.Error("http server stopped", "error", err)
		}
	}()
}

func (rt *runtime) close() error {
	var errs []error
	if rt.participant != nil {
		if err := rt.participant.Close(); err != nil && !errors.Is(err, channel.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if rt.ownsTrans != nil {
		if err := rt.ownsTrans.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	if rt.logCloser != nil {
		_ = rt.logCloser.Close()
	}
	return errors.Join(errs...)
}
