package server

import (
	"context"
	"errors"
	"sync"
	"time"

	domrepo "MarketCore/internal/domain/repository"
	"MarketCore/internal/usecase"
	xhttp "MarketCore/pkg/http"
	pkgkafka "MarketCore/pkg/kafka"
	applogger "MarketCore/pkg/logger"
)

// Options are the long-lived parts of the service. Bars and Consumer are optional.
type Options struct {
	Symbols         []string
	Bootstrap       int
	Pipeline        *usecase.Pipeline
	Bars            domrepo.BarSource
	Consumer        *pkgkafka.Consumer
	HTTP            *xhttp.Server
	Logger          *applogger.Logger
	ShutdownTimeout time.Duration
}

const bootstrapParallelism = 4

// App owns the service lifecycle: warm up, serve, drain.
type App struct {
	opts Options
	log  *applogger.Logger
}

func New(opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = applogger.Nop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}
	return &App{opts: opts, log: opts.Logger.With(applogger.String("component", "app"))}
}

// Run bootstraps the configured symbols, starts ingest and the HTTP server,
// then blocks until ctx is cancelled. HTTP stops first, then the consumer
// drains; clients and producers are closed by the caller's cleanup.
func (a *App) Run(ctx context.Context) error {
	a.bootstrap(ctx)

	if a.opts.Consumer != nil {
		if err := a.opts.Consumer.Start(ctx); err != nil {
			return err
		}
	}
	if a.opts.HTTP != nil {
		if err := a.opts.HTTP.Start(); err != nil {
			return err
		}
	}
	a.log.Info("marketcore running", applogger.Strings("symbols", a.opts.Pipeline.Symbols()))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// bootstrap warms every symbol from the bar store concurrently. A symbol that
// fails is logged and left to warm up from the live stream.
func (a *App) bootstrap(ctx context.Context) {
	if a.opts.Bars == nil || a.opts.Bootstrap <= 0 || len(a.opts.Symbols) == 0 {
		return
	}
	start := time.Now()
	var wg sync.WaitGroup
	sem := make(chan struct{}, bootstrapParallelism)
	for _, sym := range a.opts.Symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; wg.Done() }()
			if err := a.opts.Pipeline.BootstrapFrom(ctx, a.opts.Bars, sym, a.opts.Bootstrap); err != nil {
				a.log.Warn("bootstrap failed", applogger.String("symbol", sym), applogger.Error(err))
			}
		}()
	}
	wg.Wait()
	a.log.Info("bootstrap complete",
		applogger.Int("symbols", len(a.opts.Symbols)),
		applogger.Duration("took", time.Since(start)),
	)
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.opts.HTTP != nil {
		if err := a.opts.HTTP.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.opts.Consumer != nil {
		if err := a.opts.Consumer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		a.log.Error("shutdown finished with errors", applogger.Error(err))
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}
