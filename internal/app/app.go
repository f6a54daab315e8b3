package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/molaison/research-agent/internal/agent"
	"github.com/molaison/research-agent/internal/cache"
	"github.com/molaison/research-agent/internal/clock/system"
	"github.com/molaison/research-agent/internal/config"
	"github.com/molaison/research-agent/internal/export"
	"github.com/molaison/research-agent/internal/fetch"
	"github.com/molaison/research-agent/internal/fetch/detector"
	"github.com/molaison/research-agent/internal/fetch/headless"
	"github.com/molaison/research-agent/internal/parse"
	"github.com/molaison/research-agent/internal/research"

	collyfetcher "github.com/molaison/research-agent/internal/fetch/colly"
	historymemory "github.com/molaison/research-agent/internal/history/memory"
	historynoop "github.com/molaison/research-agent/internal/history/noop"
	historypostgres "github.com/molaison/research-agent/internal/history/postgres"
	storagegcs "github.com/molaison/research-agent/internal/storage/gcs"
	storagelocal "github.com/molaison/research-agent/internal/storage/local"
	storagememory "github.com/molaison/research-agent/internal/storage/memory"
	storagenoop "github.com/molaison/research-agent/internal/storage/noop"

	eventsnoop "github.com/molaison/research-agent/internal/events/noop"
	eventspubsub "github.com/molaison/research-agent/internal/events/pubsub"
)

// App holds the long-lived services and acts as the dependency injection
// container. It is built once at startup and handed to the HTTP layer.
type App struct {
	Agent    *Agent
	Exporter *export.Exporter
	Searcher *research.Searcher
	Analyzer *research.Analyzer

	logger  *zap.Logger
	closers []func()
}

// NewApp builds every service the configuration asks for. It fails fast:
// an unreachable backing service at startup is a deployment problem, not
// something to limp past.
func NewApp(ctx context.Context, cfg config.Config, version string, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}
	clk := system.New()

	resultCache, err := a.buildCache(cfg)
	if err != nil {
		return nil, err
	}
	blobStore, err := a.buildStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	historyStore, err := a.buildHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	publisher, err := a.buildEvents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var headlessFetcher agent.Fetcher
	if cfg.Headless.Enabled {
		hf, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize headless fetcher: %w", err)
		}
		a.closers = append(a.closers, hf.Close)
		headlessFetcher = hf
		logger.Info("headless rendering enabled",
			zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}

	a.Agent = NewAgent(AgentOptions{
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:    cfg.Fetch.UserAgent,
			Timeout:      time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		}),
		Headless: headlessFetcher,
		Detector: detector.NewHeuristic(cfg.Headless.PromotionThresh),
		Retry: fetch.NewExponentialRetryPolicy(
			cfg.Fetch.MaxRetries+1,
			time.Duration(cfg.Fetch.BackoffInitialMs)*time.Millisecond,
			time.Duration(cfg.Fetch.BackoffMaxMs)*time.Millisecond,
		),
		Gate: fetch.NewGate(fetch.GateConfig{
			HostRPS:          cfg.Fetch.HostRPS,
			Burst:            cfg.Fetch.HostBurst,
			BreakerThreshold: cfg.Fetch.BreakerThreshold,
			BreakerCooldown:  time.Duration(cfg.Fetch.BreakerCooldownS) * time.Second,
		}),
		Cache: resultCache,
		Parser: parse.New(parse.Config{
			MinContentLength: cfg.Parse.MinContentLength,
			MaxLinks:         cfg.Parse.MaxLinks,
			DetectLanguage:   cfg.Parse.DetectLanguage,
		}),
		History:   historyStore,
		Events:    publisher,
		Clock:     clk,
		Profiles:  cfg.Profiles,
		AgentName: cfg.Server.AgentName,
		Version:   version,
		Port:      cfg.Server.Port,
		Logger:    logger,
	})

	a.Exporter = export.New(blobStore, clk)

	researchClient := &http.Client{Timeout: time.Duration(cfg.Research.TimeoutSeconds) * time.Second}
	crossref := research.NewCrossRef(cfg.Research.CrossrefBase, cfg.Fetch.UserAgent, researchClient)
	pubmed := research.NewPubMed(cfg.Research.PubmedBase, cfg.Research.ContactEmail, cfg.Fetch.UserAgent, researchClient)
	a.Searcher = research.NewSearcher([]research.Source{pubmed, crossref}, crossref, clk, logger)
	a.Searcher.DefaultMax = cfg.Research.MaxResults
	a.Analyzer = research.NewAnalyzer(a.Searcher, clk, logger)

	logger.Info("application services initialized",
		zap.String("cache", cfg.Cache.Provider),
		zap.String("storage", cfg.Storage.Provider),
		zap.String("history", cfg.History.Provider),
		zap.String("events", cfg.Events.Provider),
		zap.Bool("headless", cfg.Headless.Enabled))

	return a, nil
}

func (a *App) buildCache(cfg config.Config) (agent.Cache, error) {
	switch cfg.Cache.Provider {
	case "memory":
		c := cache.NewMemory(cfg.Cache.MaxEntries)
		a.closers = append(a.closers, c.Close)
		return c, nil
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			return nil, fmt.Errorf("cache provider is %q but cache.redis_addr is not set", cfg.Cache.Provider)
		}
		c := cache.NewRedis(cfg.Cache.RedisAddr, "", time.Duration(cfg.Cache.RedisTTLS)*time.Second, a.logger)
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				a.logger.Warn("close redis cache", zap.Error(err))
			}
		})
		return c, nil
	case "off":
		return cache.NewOff(), nil
	default:
		return nil, fmt.Errorf("unknown cache provider: %s", cfg.Cache.Provider)
	}
}

func (a *App) buildStorage(ctx context.Context, cfg config.Config) (agent.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "local":
		return storagelocal.New(storagelocal.Config{BaseDir: cfg.Storage.BaseDir})
	case "gcs":
		if cfg.Storage.GCSBucket == "" {
			return nil, fmt.Errorf("storage provider is %q but storage.gcs_bucket is not set", cfg.Storage.Provider)
		}
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
		return storagegcs.New(client, storagegcs.Config{Bucket: cfg.Storage.GCSBucket})
	case "memory":
		return storagememory.NewBlobStore(), nil
	case "noop":
		return storagenoop.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}
}

func (a *App) buildHistory(ctx context.Context, cfg config.Config) (agent.HistoryStore, error) {
	switch cfg.History.Provider {
	case "postgres":
		if cfg.History.DSN == "" {
			return nil, fmt.Errorf("history provider is %q but history.dsn is not set", cfg.History.Provider)
		}
		store, err := historypostgres.New(ctx, historypostgres.StoreConfig{
			DSN:   cfg.History.DSN,
			Table: cfg.History.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize history store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "memory":
		return historymemory.New(0), nil
	case "noop":
		return historynoop.New(), nil
	default:
		return nil, fmt.Errorf("unknown history provider: %s", cfg.History.Provider)
	}
}

func (a *App) buildEvents(ctx context.Context, cfg config.Config) (agent.Publisher, error) {
	switch cfg.Events.Provider {
	case "pubsub":
		if cfg.Events.ProjectID == "" || cfg.Events.TopicName == "" {
			return nil, fmt.Errorf("events provider is %q but project_id or topic_name is not set", cfg.Events.Provider)
		}
		client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub client: %w", err)
		}
		publisher, err := eventspubsub.NewFromClient(client, cfg.Events.TopicName)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			publisher.Stop()
			if err := client.Close(); err != nil {
				a.logger.Warn("close pubsub client", zap.Error(err))
			}
		})
		return publisher, nil
	case "noop":
		return eventsnoop.New(), nil
	default:
		return nil, fmt.Errorf("unknown events provider: %s", cfg.Events.Provider)
	}
}

// Close shuts down every service in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.logger.Info("application services stopped")
}
