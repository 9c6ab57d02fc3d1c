package di

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"MarketCore/internal/domain/repository"
	"MarketCore/internal/handler/api"
	repo "MarketCore/internal/repository"
	"MarketCore/internal/services/analytics"
	"MarketCore/internal/services/confluence"
	"MarketCore/internal/services/regime"
	"MarketCore/internal/services/session"
	"MarketCore/internal/services/structure"
	"MarketCore/internal/usecase"
	"MarketCore/pkg/cache"
	pkgch "MarketCore/pkg/clickhouse"
	"MarketCore/pkg/config"
	xhttp "MarketCore/pkg/http"
	pkgkafka "MarketCore/pkg/kafka"
	applogger "MarketCore/pkg/logger"
	"MarketCore/pkg/metrics"
	"MarketCore/pkg/server"
)

const dialTimeout = 5 * time.Second

// ProvideRegistry creates the Prometheus registry shared by every component.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, err
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.NewWithRegistry(reg)
}

// ProvideRedisClient dials Redis only when the session store or the snapshot
// cache needs it; otherwise it returns nil.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if cfg.Session.Store != "redis" && cfg.Pipeline.Cache != "redis" {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	cli, err := cache.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return cli, func() { _ = cli.Close() }, nil
}

// ProvideSessionStore selects the session persistence backend.
func ProvideSessionStore(cfg *config.Config, rdb *redis.Client) (repository.SessionStore, func(), error) {
	nop := func() {}
	switch cfg.Session.Store {
	case "memory":
		return repo.NewMemorySessionStore(), nop, nil
	case "redis":
		return repo.NewRedisSessionStore(rdb, cfg.Session.KeyPrefix, cfg.Session.TTL), nop, nil
	case "postgres":
		db, err := sqlx.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		store := repo.NewPostgresSessionStore(db, cfg.Postgres.QueryTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil
	default:
		store, err := repo.NewFileSessionStore(cfg.Session.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, nop, nil
	}
}

func ProvideClock(cfg *config.Config) (*session.Clock, error) {
	return session.NewClock(cfg.Session.DisplayTZ)
}

func ProvideSessionRegistry(store repository.SessionStore, clock *session.Clock, log *applogger.Logger, rec *metrics.Recorder) *session.Registry {
	return session.NewRegistry(store, clock, log.With(applogger.String("component", "session")), rec)
}

func ProvideRegimeClassifier(cfg *config.Config) *regime.Classifier {
	return regime.New(regime.Config(cfg.Analysis.Regime))
}

func ProvideStructureEngine(cfg *config.Config) *structure.Engine {
	return structure.New(structure.Config(cfg.Analysis.Structure))
}

func ProvideScorer(cfg *config.Config) *confluence.Scorer {
	return confluence.New(confluence.Config(cfg.Analysis.Confluence))
}

func ProvideProjector(cfg *config.Config, log *applogger.Logger) *analytics.HTTPProjector {
	return analytics.NewHTTPProjector(cfg.Projection, log.With(applogger.String("component", "projector")))
}

// ProvideCache returns the snapshot cache: Redis behind a short in-process L1,
// or memory only.
func ProvideCache(cfg *config.Config, rdb *redis.Client) (cache.Service, func()) {
	if cfg.Pipeline.Cache == "redis" && rdb != nil {
		c := cache.NewLayeredCache(cache.NewRedisCache(rdb, cfg.Session.KeyPrefix), 5*time.Second)
		return c, func() { _ = c.Close() }
	}
	c := cache.NewMemoryCache(cache.WithMemoryCleanup(time.Minute))
	return c, func() { _ = c.Close() }
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	p, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return p, func() { _ = p.Close() }, nil
}

// ProvideLogCollector ships aggregated error lines to the logs topic when Kafka is on.
func ProvideLogCollector(cfg *config.Config, log *applogger.Logger, producer *pkgkafka.Producer) (*applogger.Collector, func()) {
	if producer == nil || cfg.Kafka.LogsTopic == "" {
		return nil, func() {}
	}
	c := applogger.NewCollector(applogger.CollectorConfig{
		Interval:   30 * time.Second,
		MaxEntries: 100,
		Topic:      cfg.Kafka.LogsTopic,
		Service:    "marketcore",
		Publisher:  producer,
	})
	log.AttachCollector(c)
	return c, log.DetachCollector
}

func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.AnalysisPublisher {
	if producer == nil {
		return repo.NopAnalysisPublisher{}
	}
	return repo.NewKafkaAnalysisPublisher(producer, cfg.Kafka.AnalysisTopic)
}

// ProvideClickHouse connects and ensures the bar table; nil when disabled.
func ProvideClickHouse(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*dialTimeout)
	defer cancel()
	ch, err := pkgch.NewClient(ctx,
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ClickHouse.Table == repo.DefaultBarTable {
		if err := ch.InitSchema(ctx, "CREATE DATABASE IF NOT EXISTS marketcore", repo.BarTableSchema); err != nil {
			_ = ch.Close()
			return nil, nil, err
		}
	}
	return ch, func() { _ = ch.Close() }, nil
}

// ProvideBarSource returns nil when ClickHouse is disabled; history endpoints
// and bootstrap are then unavailable.
func ProvideBarSource(cfg *config.Config, ch *pkgch.Client, log *applogger.Logger) repository.BarSource {
	if ch == nil {
		return nil
	}
	s := repo.NewCHBarStoreDB(ch.DB(), cfg.ClickHouse.Table)
	s.SetLogger(log.With(applogger.String("component", "bar_store")))
	return s
}

func ProvideBarsUseCase(src repository.BarSource) *usecase.BarsUseCase {
	if src == nil {
		return nil
	}
	return usecase.NewBarsUseCase(src)
}

// ProvidePipelineConfig translates the analysis and pipeline sections.
func ProvidePipelineConfig(cfg *config.Config) (usecase.PipelineConfig, error) {
	iv, err := repository.ParseInterval(cfg.Analysis.Interval)
	if err != nil {
		return usecase.PipelineConfig{}, fmt.Errorf("analysis.interval: %w", err)
	}
	pc := usecase.PipelineConfig{
		Interval:      iv,
		History:       cfg.Pipeline.History,
		FastPathRate:  cfg.Pipeline.FastPathRate,
		FastPathBurst: cfg.Pipeline.FastPathBurst,
		CacheTTL:      cfg.Pipeline.CacheTTL,
		MTFDisabled:   cfg.Analysis.MTF.Disabled,
		MacroWeight:   cfg.Analysis.MTF.MacroWeight,
		BaseWeight:    cfg.Analysis.MTF.BaseWeight,
	}
	for _, s := range cfg.Analysis.MTF.Intervals {
		hi, err := repository.ParseInterval(s)
		if err != nil {
			return usecase.PipelineConfig{}, fmt.Errorf("analysis.mtf.intervals: %w", err)
		}
		pc.MTFIntervals = append(pc.MTFIntervals, hi)
	}
	return pc, nil
}

func ProvidePipeline(
	pc usecase.PipelineConfig,
	rc *regime.Classifier,
	se *structure.Engine,
	sc *confluence.Scorer,
	proj *analytics.HTTPProjector,
	sessions *session.Registry,
	c cache.Service,
	pub repository.AnalysisPublisher,
	rec *metrics.Recorder,
	log *applogger.Logger,
) *usecase.Pipeline {
	return usecase.NewPipeline(pc, usecase.PipelineDeps{
		Regime:    rc,
		Structure: se,
		Scorer:    sc,
		Projector: proj,
		Sessions:  sessions,
		Cache:     c,
		Publisher: pub,
		Metrics:   rec,
		Log:       log.With(applogger.String("component", "pipeline")),
	})
}

// ProvideKafkaConsumer wires the bars topic into the pipeline; nil when Kafka is disabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	reg *prometheus.Registry,
	log *applogger.Logger,
	p *usecase.Pipeline,
	rec *metrics.Recorder,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	cl := log.With(applogger.String("component", "kafka"))
	c, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerRegisterer(reg),
		pkgkafka.WithConsumerLogger(cl),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	c.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook(), pkgkafka.LoggingHook(cl)))
	c.RegisterHandler(usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, p.Interval(), p, rec, cl))
	return c, nil
}

func ProvideAnalysisHandler(log *applogger.Logger, p *usecase.Pipeline, bars *usecase.BarsUseCase) *api.AnalysisHandler {
	return api.NewAnalysisHandler(log.With(applogger.String("component", "api")), p, bars)
}

func ProvideHTTPServer(cfg *config.Config, h *api.AnalysisHandler, reg *prometheus.Registry, log *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(log.With(applogger.String("component", "http"))),
	}
	if !cfg.Metrics.Disabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg))
	} else {
		opts = append(opts, xhttp.WithMetrics("", nil))
	}
	return xhttp.NewServer(h, opts...)
}

func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	p *usecase.Pipeline,
	src repository.BarSource,
	consumer *pkgkafka.Consumer,
	srv *xhttp.Server,
	_ *applogger.Collector,
) *server.App {
	return server.New(server.Options{
		Symbols:         cfg.Pipeline.Symbols,
		Bootstrap:       cfg.Pipeline.Bootstrap,
		Pipeline:        p,
		Bars:            src,
		Consumer:        consumer,
		HTTP:            srv,
		Logger:          log,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
}
