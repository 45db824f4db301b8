// Package procstream runs one external command-line tool at a time, streams
// its output as deduplicated line events and reports a single completion per
// operation. It bundles the pieces a host application needs: configuration,
// the executor, an event bus, an embeddable HTTP API and metrics.
package procstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/procstream/internal/config"
	"github.com/loykin/procstream/internal/event"
	"github.com/loykin/procstream/internal/executor"
	"github.com/loykin/procstream/internal/history"
	"github.com/loykin/procstream/internal/history/factory"
	"github.com/loykin/procstream/internal/metrics"
	"github.com/loykin/procstream/internal/server"
	"github.com/loykin/procstream/internal/toolpath"
	"github.com/loykin/procstream/internal/transcript"
)

type (
	Config          = cfg.Config
	ServerConfig    = cfg.ServerConfig
	Invocation      = executor.Invocation
	Executor        = executor.Executor
	Run             = executor.Run
	Error           = executor.Error
	CommandInfo     = executor.CommandInfo
	LineEvent       = event.LineEvent
	CompletionEvent = event.CompletionEvent
	Message         = event.Message
	Sink            = event.Sink
	Bus             = event.Bus
	Router          = server.Router
	HistorySink     = history.Sink
)

var (
	ErrInvalid           = executor.ErrInvalid
	ErrSpawn             = executor.ErrSpawn
	ErrSubprocess        = executor.ErrSubprocess
	ErrInactivityTimeout = executor.ErrInactivityTimeout
	ErrCancelled         = executor.ErrCancelled
)

func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }

// LastCommand returns the last command launched in this process.
func LastCommand() (CommandInfo, bool) { return executor.LastCommand() }

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics from the default registry on addr. It blocks
// until the listener fails.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

// Engine is an executor wired from a Config: resolved tool binary, event bus,
// optional transcript and history sinks.
type Engine struct {
	cfg        *Config
	bus        *event.Bus
	exec       *executor.Executor
	tool       server.Tool
	history    history.Fanout
	transcript *transcript.Sink
}

// Open resolves the tool binary and working directory and opens every
// configured sink. Close releases them.
func Open(c *Config) (*Engine, error) {
	if c == nil {
		return nil, errors.New("nil config")
	}
	appDir := c.Tool.AppDir
	if appDir == "" {
		if d, err := toolpath.AppDir(c.Tool.Name); err == nil {
			appDir = d
		}
	}
	bin, err := toolpath.ResolveBinary(c.Tool.Name, c.Tool.Binary, appDir)
	if err != nil {
		return nil, err
	}
	if err := toolpath.EnsureExecutable(bin); err != nil {
		slog.Warn("Could not mark tool executable", "binary", bin, "error", err)
	}
	workDir := c.Tool.WorkDir
	if workDir == "" {
		if workDir, err = toolpath.WorkingDir(bin, appDir); err != nil {
			return nil, err
		}
	}
	env, err := c.Tool.ResolveEnv()
	if err != nil {
		return nil, fmt.Errorf("tool env: %w", err)
	}

	e := &Engine{
		cfg:  c,
		bus:  event.NewBus(0),
		tool: server.Tool{Binary: bin, WorkDir: workDir, Env: env},
	}
	sinks := event.Multi{e.bus}
	if c.Transcript.Enabled {
		ts, err := transcript.New(c.Transcript.FileConfig, c.Tool.Name)
		if err != nil {
			return nil, err
		}
		e.transcript = ts
		sinks = append(sinks, ts)
	}

	opts := []executor.Option{
		executor.WithInactivityTimeout(c.Engine.InactivityTimeout),
		executor.WithPollInterval(c.Engine.PollInterval),
		executor.WithDrainTimeout(c.Engine.DrainTimeout),
		executor.WithResourceSampling(c.Engine.SampleResources),
	}
	if c.History.Enabled {
		fan, err := factory.NewFanout(c.History.DSNs)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e.history = fan
		opts = append(opts, executor.WithHistory(fan))
	}
	e.exec = executor.New(sinks, opts...)

	slog.Info("Tool resolved", "name", c.Tool.Name, "binary", bin, "work_dir", workDir)
	return e, nil
}

func (e *Engine) Bus() *Bus { return e.bus }
func (e *Engine) Executor() *Executor { return e.exec }
func (e *Engine) Binary() string { return e.tool.Binary }
func (e *Engine) WorkDir() string { return e.tool.WorkDir }
func (e *Engine) Config() *Config { return e.cfg }
func (e *Engine) Cancel() error { return e.exec.Cancel() }
func (e *Engine) Subscribe(op string) *event.Subscription { return e.bus.Subscribe(op) }

// Invocation builds an invocation of the configured tool.
func (e *Engine) Invocation(operationID string, args ...string) Invocation {
	return Invocation{
		OperationID: operationID,
		Binary:      e.tool.Binary,
		Args:        args,
		WorkDir:     e.tool.WorkDir,
		Env:         e.tool.Env,
	}
}

// Execute runs the tool to completion and returns its captured stdout.
func (e *Engine) Execute(ctx context.Context, operationID string, args ...string) (string, error) {
	return e.exec.Execute(ctx, e.Invocation(operationID, args...))
}

// Start launches the tool and returns while it runs.
func (e *Engine) Start(ctx context.Context, operationID string, args ...string) (*Run, error) {
	return e.exec.Start(ctx, e.Invocation(operationID, args...))
}

// Version runs "<tool> --version" through the one-shot path.
func (e *Engine) Version(ctx context.Context) (string, error) {
	return executor.Output(ctx, e.Invocation("", "--version"))
}

// Router returns the HTTP API bound to this engine.
func (e *Engine) Router(basePath string) *Router {
	return server.NewRouter(e.exec, e.bus, e.tool, basePath)
}

// NewHTTPServer builds an HTTP(S) server for sc serving the engine's router.
func (e *Engine) NewHTTPServer(sc ServerConfig) (*http.Server, error) {
	return server.NewServer(sc, e.Router(sc.BasePath).Handler())
}

// Close releases transcript files and history sinks.
func (e *Engine) Close() error {
	var errs []error
	if e.transcript != nil {
		errs = append(errs, e.transcript.Close())
	}
	if e.history != nil {
		errs = append(errs, e.history.Close())
	}
	return errors.Join(errs...)
}
