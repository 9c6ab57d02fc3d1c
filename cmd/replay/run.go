package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"MarketCore/internal/di"
	"MarketCore/internal/domain/models"
	repo "MarketCore/internal/repository"
	"MarketCore/internal/services/session"
	"MarketCore/internal/usecase"
	"MarketCore/pkg/cache"
	"MarketCore/pkg/config"
	applogger "MarketCore/pkg/logger"
)

type runOptions struct {
	file       string
	configPath string
	symbol     string
	interval   string
	stateDir   string
	displayTZ  string
	warmup     int
	every      int
	logLevel   string

	direction string
	price     float64
	trigger   string
}

func newRunCmd() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay one bar file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return o.run(ctx, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.file, "file", "", "bar file (.csv, .json or .jsonl)")
	f.StringVar(&o.configPath, "config", "", "optional config file for analysis thresholds")
	f.StringVar(&o.symbol, "symbol", "REPLAY", "symbol the bars belong to")
	f.StringVar(&o.interval, "interval", "", "analysis interval (defaults to analysis.interval)")
	f.StringVar(&o.stateDir, "state-dir", "", "persist session state here; empty keeps it in memory")
	f.StringVar(&o.displayTZ, "display-tz", "", "timezone for rendered session hours")
	f.IntVar(&o.warmup, "warmup", 300, "bars used to bootstrap before replaying one by one")
	f.IntVar(&o.every, "every", 0, "print a snapshot every N replayed bars; 0 prints only the last")
	f.StringVar(&o.logLevel, "log-level", "warn", "log level on stderr")
	f.StringVar(&o.direction, "direction", "", "score a LONG or SHORT candidate at the end")
	f.Float64Var(&o.price, "price", 0, "candidate entry price (defaults to the last close)")
	f.StringVar(&o.trigger, "trigger", "", "candidate trigger description")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (o *runOptions) config() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if o.interval != "" {
		cfg.Analysis.Interval = o.interval
	}
	if o.displayTZ != "" {
		cfg.Session.DisplayTZ = o.displayTZ
	}
	cfg.Session.Store = "memory"
	if o.stateDir != "" {
		cfg.Session.Store = "file"
		cfg.Session.Dir = o.stateDir
	}
	return cfg, nil
}

func (o *runOptions) pipeline(cfg *config.Config, log *applogger.Logger) (*usecase.Pipeline, error) {
	pc, err := di.ProvidePipelineConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, _, err := di.ProvideSessionStore(cfg, nil)
	if err != nil {
		return nil, err
	}
	clock, err := session.NewClock(cfg.Session.DisplayTZ)
	if err != nil {
		return nil, err
	}
	return usecase.NewPipeline(pc, usecase.PipelineDeps{
		Regime:    di.ProvideRegimeClassifier(cfg),
		Structure: di.ProvideStructureEngine(cfg),
		Scorer:    di.ProvideScorer(cfg),
		Projector: di.ProvideProjector(cfg, log),
		Sessions:  session.NewRegistry(store, clock, log, nil),
		Cache:     cache.NewMemoryCache(),
		Publisher: repo.NopAnalysisPublisher{},
		Log:       log,
	}), nil
}

func (o *runOptions) run(ctx context.Context, out io.Writer) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	log := applogger.NewWithWriter(os.Stderr, parseLevel(o.logLevel))
	p, err := o.pipeline(cfg, log)
	if err != nil {
		return err
	}

	src, err := repo.OpenBarFile(o.file)
	if err != nil {
		return err
	}
	bars, err := src.GetLatestNBars(ctx, o.symbol, math.MaxInt32, p.Interval())
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("%s: no usable bars", o.file)
	}

	warm := min(max(o.warmup, 1), len(bars))
	start := time.Now()
	if err := p.Bootstrap(ctx, o.symbol, bars[:warm]); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	enc := json.NewEncoder(out)
	var snap *models.AnalysisSnapshot
	for i, b := range bars[warm:] {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		snap, err = p.OnBar(ctx, o.symbol, b, true)
		if err != nil {
			log.Warn("bar skipped", applogger.Time("t", b.Time), applogger.Error(err))
			continue
		}
		if o.every > 0 && (i+1)%o.every == 0 {
			if err := enc.Encode(snap); err != nil {
				return err
			}
		}
	}
	if snap == nil || o.every == 0 || (len(bars)-warm)%o.every != 0 {
		if snap, err = p.Snapshot(ctx, o.symbol); err != nil {
			return err
		}
		if err := enc.Encode(snap); err != nil {
			return err
		}
	}
	log.Info("replay finished",
		applogger.Int("bars", len(bars)),
		applogger.Int("warmup", warm),
		applogger.Duration("took", time.Since(start)),
	)

	if o.direction == "" {
		return nil
	}
	return o.evaluate(ctx, p, bars[len(bars)-1], enc)
}

func (o *runOptions) evaluate(ctx context.Context, p *usecase.Pipeline, last models.Bar, enc *json.Encoder) error {
	dir, ok := models.ParseDirection(o.direction)
	if !ok {
		return fmt.Errorf("direction must be LONG or SHORT, got %q", o.direction)
	}
	price := o.price
	if price <= 0 {
		price = last.Close
	}
	res, err := p.Evaluate(ctx, o.symbol, models.Candidate{
		Direction:      dir,
		SuggestedPrice: price,
		Trigger:        o.trigger,
	}, nil, true)
	if err != nil {
		return err
	}
	return enc.Encode(res)
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.WarnLevel
	}
	return lvl
}
