// Package app assembles the engine from configuration. Both binaries and the
// admin CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bananabot/internal/account"
	"bananabot/internal/adapter/memory"
	"bananabot/internal/adapter/repo"
	"bananabot/internal/bot"
	"bananabot/internal/conversation"
	"bananabot/internal/domain"
	"bananabot/internal/http/handlers"
	"bananabot/internal/http/httpapi"
	"bananabot/internal/infra"
	"bananabot/internal/infra/credentials"
	"bananabot/internal/ledger"
	"bananabot/internal/migrations"
	"bananabot/internal/orchestrator"
	"bananabot/internal/payment"
	"bananabot/internal/providers/genai"
	"bananabot/internal/providers/image"
	"bananabot/internal/providers/kie"
	"bananabot/internal/storage"
	"bananabot/internal/watchdog"
)

const (
	conversationTTL = 24 * time.Hour
	lockExpiry      = 30 * time.Second
	notifyTimeout   = 15 * time.Second
)

// Repositories groups the persistence ports.
type Repositories struct {
	Users     domain.UserRepository
	Tasks     domain.TaskRepository
	Records   domain.RecordRepository
	Purchases domain.PurchaseRepository
	Stats     domain.StatsRepository
}

// App is the assembled service graph.
type App struct {
	Config       *infra.Config
	Logger       zerolog.Logger
	Repos        Repositories
	Ledger       ledger.Store
	Accounts     *account.Service
	Payments     *payment.Service
	Orchestrator *orchestrator.Orchestrator
	Watchdog     *watchdog.Watchdog
	Engine       *bot.Engine
	Files        *storage.FileStore
	Links        *storage.Links
	Credentials  *credentials.Store

	pool    *pgxpool.Pool
	redis   *goredis.Client
	closers []func()
}

// Build wires every component described by cfg.
func Build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.assemble(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	if cfg.StoreBackend == infra.BackendPostgres || cfg.LedgerBackend == infra.BackendPostgres {
		if cfg.IsDevelopment() {
			if err := migrations.UpURL(ctx, cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
	}
	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		a.redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
	}
	return nil
}

func (a *App) assemble(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	var runner *infra.SQLRunner
	if a.pool != nil {
		runner = infra.NewSQLRunner(a.pool, logger)
		a.Credentials = credentials.NewStore(runner)
		if err := a.Credentials.Resolve(ctx, cfg); err != nil {
			logger.Warn().Err(err).Msg("app: load provider keys from store failed")
		}
	}

	switch cfg.StoreBackend {
	case infra.BackendPostgres:
		a.Repos = Repositories{
			Users:     repo.NewUserRepository(runner),
			Tasks:     repo.NewTaskRepository(runner),
			Records:   repo.NewRecordRepository(runner),
			Purchases: repo.NewPurchaseRepository(runner),
			Stats:     repo.NewStatsRepository(runner),
		}
	default:
		mem := memory.New()
		a.Repos = Repositories{
			Users:     mem.Users(),
			Tasks:     mem.Tasks(),
			Records:   mem.Records(),
			Purchases: mem.Purchases(),
			Stats:     mem.Stats(),
		}
	}

	var store ledger.Store
	switch cfg.LedgerBackend {
	case infra.BackendPostgres:
		store = ledger.NewPostgres(runner)
	case infra.BackendRedis:
		store = ledger.NewRedis(a.redis, ledger.WithKeyPrefix(cfg.RedisPrefix+"ledger:"))
	default:
		store = ledger.NewMemory()
	}
	a.Ledger = ledger.NewInstrumented(store, logger)

	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	files, err := storage.NewFileStore(storagePath)
	if err != nil {
		return fmt.Errorf("configure storage: %w", err)
	}
	a.Files = files

	catalog := payment.DefaultCatalog()
	if cfg.PackagesFile != "" {
		catalog, err = payment.LoadCatalog(cfg.PackagesFile)
		if err != nil {
			return err
		}
	}

	a.Accounts = account.NewService(a.Repos.Users, a.Repos.Records, a.Repos.Purchases, a.Ledger, account.Settings{
		StartBalance:  cfg.StartBalance,
		WelcomeBonus:  cfg.WelcomeBonus,
		ReferralBonus: cfg.ReferralBonus,
		BonusAmount:   cfg.BonusAmount,
	}, logger)
	a.Payments = payment.NewService(catalog, a.Repos.Purchases, a.Ledger, logger)

	deps := orchestrator.Deps{
		Ledger:    a.Ledger,
		Tasks:     a.Repos.Tasks,
		Records:   a.Repos.Records,
		Generator: NewGenerator(cfg, logger),
		Artifacts: files,
		Logger:    logger,
	}
	if cfg.PublicBaseURL != "" {
		a.Links, err = storage.NewLinks(cfg.PublicBaseURL, cfg.ArtifactLinkSecret, cfg.ArtifactLinkTTL)
		if err != nil {
			return fmt.Errorf("configure artifact links: %w", err)
		}
		deps.Links = a.Links
	} else {
		logger.Info().Msg("app: PUBLIC_BASE_URL unset, stored edit inputs go to providers inline only")
	}
	a.Orchestrator = orchestrator.New(deps, orchestrator.WithTimeout(cfg.ProviderTimeout))

	states, locker := conversationBackends(a.redis, cfg.RedisPrefix, logger)

	var notifier bot.Notifier = bot.NewLogNotifier(logger)
	if cfg.NotifyURL != "" {
		notifier = bot.NewHTTPNotifier(cfg.NotifyURL, cfg.NotifyToken, notifyTimeout)
	}

	a.Engine = bot.NewEngine(bot.Deps{
		Accounts:     a.Accounts,
		Payments:     a.Payments,
		Orchestrator: a.Orchestrator,
		States:       states,
		Locker:       locker,
		Notifier:     notifier,
		Costs:        conversation.Costs{Standard: cfg.CostStandard, Pro: cfg.CostPro},
		QuietPeriod:  cfg.BatchQuietPeriod,
		Logger:       logger,
	})
	a.Watchdog = watchdog.New(a.Repos.Tasks, a.Ledger, a.Engine, logger)
	return nil
}

// conversationBackends keeps states and locks in Redis when a client is
// configured. The constructors append their own key segments to prefix.
func conversationBackends(client *goredis.Client, prefix string, logger zerolog.Logger) (conversation.Store, conversation.Locker) {
	if client == nil {
		return conversation.NewMemoryStore(), conversation.NewLocalLocker()
	}
	return conversation.NewRedisStore(client, prefix, conversationTTL),
		conversation.NewRedisLocker(client, prefix, lockExpiry, logger)
}

// NewGenerator picks the image provider chain: Kie first with Gemini as the
// fallback, whichever has credentials, and the synthetic renderer when
// neither does.
func NewGenerator(cfg *infra.Config, logger zerolog.Logger) image.Generator {
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}

	var chain []image.Generator
	if cfg.KieAPIKey != "" {
		chain = append(chain, image.NewKieGenerator(kie.NewClient(kie.Options{
			APIKey:     cfg.KieAPIKey,
			BaseURL:    cfg.KieBaseURL,
			HTTPClient: httpClient,
			Logger:     logger,
		})))
	}
	if cfg.GeminiAPIKey != "" {
		chain = append(chain, image.NewGeminiGenerator(genai.NewClient(genai.Options{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			Model:      cfg.GeminiModel,
			HTTPClient: httpClient,
			Logger:     &logger,
		})))
	}

	switch len(chain) {
	case 0:
		logger.Warn().Msg("app: no provider api keys, using synthetic images")
		return image.NewSyntheticGenerator()
	case 1:
		return chain[0]
	default:
		return image.NewFallbackGenerator(chain[0], chain[1], logger)
	}
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	app := &handlers.App{
		Events:     a.Engine,
		Accounts:   a.Accounts,
		Payments:   a.Payments,
		Watchdog:   a.Watchdog,
		StaleAfter: a.Config.WatchdogStaleAfter,
		Stats:      a.Repos.Stats,
		Records:    a.Repos.Records,
		Artifacts:  a.Files,
		Notices:    a.Engine,
		Logger:     a.Logger,
	}
	if a.Links != nil {
		app.Links = a.Links
	}
	return httpapi.NewRouter(app, httpapi.Options{
		AdminToken:      a.Config.AdminToken,
		GatewayToken:    a.Config.GatewayToken,
		DefaultLocale:   "ru",
		RateLimitPerMin: a.Config.RateLimitPerMin,
		Logger:          a.Logger,
	})
}

// Scheduler returns the periodic stale task sweep.
func (a *App) Scheduler() *watchdog.Scheduler {
	return watchdog.NewScheduler(a.Watchdog, a.Config.WatchdogInterval, a.Config.WatchdogStaleAfter)
}

// RequireCredentials returns the key store, which only exists with Postgres.
func (a *App) RequireCredentials() (*credentials.Store, error) {
	if a.Credentials == nil {
		return nil, errors.New("provider keys are stored in Postgres; set DATABASE_URL")
	}
	return a.Credentials, nil
}

// Close waits for in-flight events and releases connections.
func (a *App) Close() {
	if a.Engine != nil {
		a.Engine.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
