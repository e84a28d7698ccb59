// Package app wires the whole backend together: platform clients,
// cache, search proxy, indexing pool, agents, orchestrator, services,
// and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/regscout/regscout-backend/internal/agents"
	"github.com/regscout/regscout-backend/internal/cache"
	"github.com/regscout/regscout-backend/internal/db"
	apphttp "github.com/regscout/regscout-backend/internal/http"
	"github.com/regscout/regscout-backend/internal/http/handlers"
	"github.com/regscout/regscout-backend/internal/http/middleware"
	"github.com/regscout/regscout-backend/internal/indexer"
	"github.com/regscout/regscout-backend/internal/orchestrator"
	"github.com/regscout/regscout-backend/internal/platform/anthropic"
	"github.com/regscout/regscout-backend/internal/platform/embeddings"
	"github.com/regscout/regscout-backend/internal/platform/envutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
	"github.com/regscout/regscout-backend/internal/platform/objectstore"
	"github.com/regscout/regscout-backend/internal/platform/tracing"
	"github.com/regscout/regscout-backend/internal/searchproxy"
	"github.com/regscout/regscout-backend/internal/services"
	"github.com/regscout/regscout-backend/internal/tools"
)

type App struct {
	Log           *logger.Logger
	Server        *apphttp.Server
	Scheduler     *indexer.Scheduler
	Usage         services.UsageTracker
	traceShutdown func(context.Context) error
}

func New() (*App, error) {
	log, err := logger.New(envutil.Str("LOG_MODE", "dev"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	traceShutdown := tracing.Init(context.Background(), log)

	gdb, err := db.Open(log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	blobs, err := objectstore.NewGCS(log)
	if err != nil {
		// Local runs without a bucket keep everything in memory.
		log.Warn("Object storage not configured, using in-memory store", "error", err)
		blobs = objectstore.NewMemory()
	}
	docCache := cache.New(blobs, log)

	embedder, err := embeddings.NewClient(log)
	if err != nil {
		return nil, fmt.Errorf("init embeddings client: %w", err)
	}

	validIndexes := []string{
		envutil.Str("AZURE_SEARCH_INDEX", "faa-agent"),
		envutil.Str("AZURE_SEARCH_INDEX_NRC", "nrc-agent"),
		envutil.Str("AZURE_SEARCH_INDEX_DOD", "dod-agent"),
	}

	var proxy searchproxy.Proxy
	var global searchproxy.GlobalIndexer
	if p, err := searchproxy.New(log, embedder, validIndexes); err != nil {
		// Tools answer with a configuration error instead of failing
		// the whole process.
		log.Warn("Search proxy not configured, retrieval tools disabled", "error", err)
	} else {
		proxy = p
		if g, err := searchproxy.NewGlobal(log, validIndexes); err == nil {
			global = g
		}
	}

	ix := indexer.New(log, embedder, global, docCache, validIndexes[0])
	sched := indexer.NewScheduler(log, ix,
		envutil.Int("INDEXER_WORKERS", 0), envutil.Int("INDEXER_QUEUE_SIZE", 0))

	// Without a global indexer every indexing task can only fail, so
	// the fetch tools get no scheduler and skip auto-indexing.
	var autoIndex tools.Scheduler
	if global != nil {
		autoIndex = sched
	}

	llm, err := anthropic.NewClient(log)
	if err != nil {
		return nil, fmt.Errorf("init anthropic client: %w", err)
	}

	registry := agents.New(log, proxy, docCache, autoIndex)
	orch := orchestrator.New(log, llm, orchestrator.NewMemoryStore())

	auth, err := services.NewAuthService(log)
	if err != nil {
		return nil, err
	}
	geo := services.NewGeolocator(log)
	usage, err := services.NewUsageTracker(log, geo)
	if err != nil {
		return nil, err
	}
	codes := services.NewAccessCodeService(log, gdb)
	feedback := services.NewFeedbackService(log, gdb, blobs)

	server := apphttp.NewServer(apphttp.RouterConfig{
		Log:              log,
		AuthMiddleware:   middleware.NewAuthMiddleware(log, auth),
		AuthHandler:      handlers.NewAuthHandler(log, auth, usage, codes),
		ChatHandler:      handlers.NewChatHandler(log, registry, orch, usage),
		DocumentsHandler: handlers.NewDocumentsHandler(log, proxy),
		FeedbackHandler:  handlers.NewFeedbackHandler(log, feedback),
		AdminHandler:     handlers.NewAdminHandler(log, usage, feedback, codes),
	})

	return &App{
		Log:           log,
		Server:        server,
		Scheduler:     sched,
		Usage:         usage,
		traceShutdown: traceShutdown,
	}, nil
}

func (a *App) Run() error {
	addr := ":" + envutil.Str("PORT", "8080")
	a.Log.Info("Starting HTTP server", "addr", addr)
	return a.Server.Run(addr)
}

func (a *App) Close() {
	a.Scheduler.Close()
	if err := a.Usage.Close(); err != nil {
		a.Log.Warn("Failed to close usage tracker", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.traceShutdown(ctx); err != nil {
		a.Log.Warn("Failed to flush traces", "error", err)
	}
	a.Log.Sync()
}
