package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"crossposter/internal/api"
	"crossposter/internal/config"
	"crossposter/internal/database"
	"crossposter/internal/domain"
	"crossposter/internal/events"
	"crossposter/internal/export"
	"crossposter/internal/logging"
	"crossposter/internal/metrics"
	"crossposter/internal/models"
	"crossposter/internal/platform"
	"crossposter/internal/platform/facebook"
	"crossposter/internal/platform/telegram"
	"crossposter/internal/platform/twitter"
	"crossposter/internal/platform/youtube"
	"crossposter/internal/poller"
	"crossposter/internal/processor"
	"crossposter/internal/queue"
	"crossposter/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, accounts, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := initDatabase(cfg, accounts, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	redisClient, markers := initMarkers(ctx, cfg, db, &logger)
	defer (func() { _ = repository.Close(redisClient) })()
	go markerCleanupLoop(ctx, markers, cfg.Pollers.MarkerRetention(), &logger)

	eventBus := events.NewEventBus()
	subscribeExecutionEvents(eventBus, &logger)

	refresher := platform.NewOAuthRefresher(db, &configResolver{cfg: cfg}, logger)
	refresher.SetEventPublisher(eventBus)
	dispatchers, fetchers := buildPlatforms(cfg, db, refresher, logger)

	execQueue := queue.New(cfg.Queue.MaxInFlight, &logger)
	dispatch := poller.NewDispatch(db, execQueue, dispatchers, eventBus, nil, logger)

	if cfg.Pollers.Twitter.Enabled {
		twitterPoller := poller.NewTwitterPoller(db, fetchers[models.PlatformTwitter], dispatch, nil, logger)
		twitterPoller.Start(ctx)
		defer twitterPoller.Stop()
	}
	if cfg.Pollers.Telegram.Enabled {
		telegramPoller := poller.NewTelegramPoller(
			db, fetchers[models.PlatformTelegram], markers, dispatch,
			cfg.Pollers.Telegram.AlbumQuietWindow(), cfg.Pollers.Telegram.AlbumMaxAge(),
			nil, logger,
		)
		telegramPoller.Start(ctx)
		defer telegramPoller.Stop()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	if cfg.API.Enabled {
		proc := processor.New(db, dispatchers, nil, logger)
		reporter := export.NewReporter(cfg.Exports.Path, logger)
		apiServer := api.NewServer(cfg.API, api.NewHandlers(db, proc, reporter, logger), logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Msg("Ретранслятор запущен...")
	<-ctx.Done()

	// Дорабатываем уже принятые пачки перед выходом
	execQueue.Close()
	execQueue.Wait()

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, []models.PlatformAccount, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "relay-main").Logger()

	accountsPath := os.Getenv("ACCOUNTS_PATH")
	if accountsPath == "" {
		accountsPath = "configs/accounts.yaml"
	}
	accountsData, err := os.ReadFile(accountsPath)
	if err != nil {
		logger.Error().Err(err).Msgf("Ошибка чтения %s", accountsPath)
		return nil, nil, zerolog.Logger{}, closer, err
	}

	var accountsConfig struct {
		Accounts []models.PlatformAccount `yaml:"accounts"`
	}
	if err := yaml.Unmarshal(accountsData, &accountsConfig); err != nil {
		logger.Error().Err(err).Msg("Ошибка парсинга accounts.yaml")
		return nil, nil, zerolog.Logger{}, closer, err
	}

	return cfg, accountsConfig.Accounts, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}
	if cfg.Media.TempDir != "" {
		if err := os.MkdirAll(cfg.Media.TempDir, 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для медиа")
			return err
		}
	}
	return nil
}

func initDatabase(cfg *config.Config, accounts []models.PlatformAccount, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return nil, err
	}

	if err := db.SyncAccounts(context.Background(), accounts); err != nil {
		logger.Error().Err(err).Msg("Ошибка синхронизации аккаунтов")
	}
	return db, nil
}

// initMarkers wires the dedup marker store: Redis when reachable, with the
// sqlite marker table behind the failover wrapper so dedup survives restarts
// even without Redis.
func initMarkers(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) (*redis.Client, domain.MarkerRepository) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	retention := cfg.Pollers.MarkerRetention()
	primary := repository.NewRedisMarkerRepository(redisClient, retention)
	fallback := database.NewMarkerStore(db)
	return redisClient, repository.NewFailoverMarkerRepository(primary, fallback, logger)
}

func markerCleanupLoop(ctx context.Context, markers domain.MarkerRepository, retention time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := markers.Cleanup(ctx, retention); err != nil {
				logger.Error().Err(err).Msg("marker cleanup failed")
			}
		}
	}
}

func buildPlatforms(
	cfg *config.Config,
	db *database.DB,
	refresher platform.Refresher,
	logger zerolog.Logger,
) (map[string]domain.Dispatcher, map[string]domain.ContentFetcher) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	twitterClient := twitter.NewClient(httpClient, logger)
	botPool := telegram.NewBotPool(telegram.DefaultBotFactory)

	dispatchers := map[string]domain.Dispatcher{
		models.PlatformTwitter:  twitter.NewDispatcher(twitterClient, refresher, cfg.Media.MaxDownloadBytes, logger),
		models.PlatformTelegram: telegram.NewDispatcher(botPool, logger),
		models.PlatformYouTube:  youtube.NewDispatcher(refresher, cfg.Media.MaxDownloadBytes, logger),
		// Facebook работает на долгоживущих page-токенах, обмена нет.
		models.PlatformFacebook: facebook.NewDispatcher(httpClient, nil, logger),
	}

	fetchers := map[string]domain.ContentFetcher{
		models.PlatformTwitter:  twitter.NewFetcher(twitterClient, refresher, logger),
		models.PlatformTelegram: telegram.NewFetcher(botPool, db, cfg.Pollers.Telegram.BatchSize, logger),
	}

	return dispatchers, fetchers
}

// configResolver adapts config to the credential resolver the token
// refresher consumes.
type configResolver struct {
	cfg *config.Config
}

func (r *configResolver) GetOAuthClientCredentials(owner, platformID string) (domain.ClientCredentials, error) {
	app, err := r.cfg.GetOAuthClientCredentials(owner, platformID)
	if err != nil {
		return domain.ClientCredentials{}, err
	}
	return domain.ClientCredentials{ClientID: app.ClientID, ClientSecret: app.ClientSecret}, nil
}

func subscribeExecutionEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventExecutionRecorded, func(ev *events.Event) error {
		var payload events.ExecutionEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}

		entry := logger.Info()
		if payload.Status == models.ExecutionFailed {
			entry = logger.Warn()
		}
		entry.
			Int64("task_id", payload.TaskID).
			Int64("source", payload.SourceAccount).
			Int64("target", payload.TargetAccount).
			Str("platform", payload.Platform).
			Str("status", payload.Status).
			Str("item_id", payload.ItemID).
			Msg("execution recorded")
		return nil
	})

	bus.Subscribe(events.EventTokensRotated, func(ev *events.Event) error {
		logger.Info().RawJSON("payload", ev.Payload).Msg("tokens rotated")
		return nil
	})
}
