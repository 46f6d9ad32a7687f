package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/session-orchestrator/internal/application"
	"github.com/example/session-orchestrator/internal/config"
	httptransport "github.com/example/session-orchestrator/internal/http"
	"github.com/example/session-orchestrator/internal/logging"
	"github.com/example/session-orchestrator/internal/notify"
	"github.com/example/session-orchestrator/internal/persistence/sqlite"
	"github.com/example/session-orchestrator/internal/persistence/sqlite/migration"
	"github.com/example/session-orchestrator/internal/provider/livekit"
	"github.com/example/session-orchestrator/internal/provider/loopback"
	"github.com/example/session-orchestrator/internal/recurrence"
	"github.com/example/session-orchestrator/internal/scheduler"
	"github.com/example/session-orchestrator/internal/timers"
)

const maxSeriesOccurrences = 366

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and breakout timers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// server holds everything serve constructs once per process.
type server struct {
	storage   *sqlite.Storage
	timers    *timers.Scheduler
	bus       *notify.Bus
	projects  *application.ProjectService
	sessions  *application.SessionService
	live      *application.LiveSessionService
	breakouts *application.BreakoutService
	handler   http.Handler
	logger    *slog.Logger
}

// newServer opens and migrates storage, then wires the services over it.
func newServer(ctx context.Context, cfg config.Config, clock timers.Clock, logger *slog.Logger) (*server, error) {
	storage, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLite.Path, cfg.SQLite.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := storage.Migrate(ctx, logger); err != nil {
		_ = storage.Close()
		return nil, err
	}

	zones, err := scheduler.NewZoneResolver(nil, cfg.Scheduler.ZoneCacheSize)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	provider, err := newRoomProvider(cfg, clock, logger)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	timerScheduler := timers.NewScheduler(clock)
	now := timerScheduler.Now
	bus := notify.NewBus(logger)
	bus.SubscribeAll(func(event notify.Event) {
		logger.Debug("notification",
			"topic", string(event.Topic),
			"session_id", event.SessionID,
			"breakout_index", event.BreakoutIndex,
			"identity", event.Identity,
		)
	})

	projects := newProjectRepositoryAdapter(storage.Projects)
	sessions := newSessionRepositoryAdapter(storage.Sessions)
	breakoutRepo := newBreakoutRepositoryAdapter(storage.Breakouts)

	s := &server{
		storage: storage,
		timers:  timerScheduler,
		bus:     bus,
		logger:  logger,
	}
	s.projects = application.NewProjectService(projects, zones, uuid.NewString, now, logger)
	s.sessions = application.NewSessionService(projects, sessions, zones, recurrence.NewEngine(maxSeriesOccurrences), uuid.NewString, now, logger)
	s.live = application.NewLiveSessionService(application.LiveSessionDependencies{
		Sessions:     sessions,
		Live:         newLiveSessionStoreAdapter(storage.LiveSessions),
		Activity:     newActivityLogAdapter(storage.Activity),
		Breakouts:    breakoutRepo,
		Provider:     provider,
		Publisher:    bus,
		CallTimeout:  cfg.Provider.CallTimeout,
		EmptyTimeout: cfg.Breakout.EmptyTimeout,
		Now:          now,
		Logger:       logger,
	})
	s.breakouts = application.NewBreakoutService(application.BreakoutDependencies{
		Sessions:  sessions,
		Breakouts: breakoutRepo,
		Provider:  provider,
		Publisher: bus,
		Timers:    timerScheduler,
		Config: application.BreakoutConfig{
			DefaultDuration: cfg.Breakout.DefaultDuration,
			EmptyTimeout:    cfg.Breakout.EmptyTimeout,
			WarningLead:     cfg.Breakout.WarningLead,
			CallTimeout:     cfg.Provider.CallTimeout,
			BulkConcurrency: cfg.Provider.BulkConcurrency,
		},
		Logger: logger,
	})

	s.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Projects:  httptransport.NewProjectHandler(s.projects, logger),
		Sessions:  httptransport.NewSessionHandler(s.sessions, logger),
		Live:      httptransport.NewLiveHandler(s.live, logger),
		Breakouts: httptransport.NewBreakoutHandler(s.breakouts, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Recover(logger),
		},
	})
	return s, nil
}

// Close stops pending timers before the database goes away.
func (s *server) Close() error {
	s.timers.Stop()
	return s.storage.Close()
}

func newRoomProvider(cfg config.Config, clock timers.Clock, logger *slog.Logger) (application.RoomProvider, error) {
	switch cfg.Provider.Kind {
	case config.ProviderLiveKit:
		return livekit.New(livekit.Config{
			URL:           cfg.LiveKit.URL,
			APIKey:        cfg.LiveKit.APIKey,
			APISecret:     cfg.LiveKit.APISecret,
			RecordingPath: cfg.LiveKit.RecordingPath,
			TokenTTL:      cfg.LiveKit.TokenTTL,
			Logger:        logger,
		})
	case config.ProviderLoopback:
		return loopback.New(loopback.Config{
			SigningKey:      []byte(cfg.Loopback.SigningKey),
			TokenTTL:        cfg.Loopback.TokenTTL,
			PlaybackBaseURL: cfg.Loopback.PlaybackBaseURL,
			Now:             clock.Now,
			Logger:          logger,
		})
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	s, err := newServer(ctx, cfg, timers.Real(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	restored, err := s.breakouts.RescheduleAllOnStartup(ctx)
	if err != nil {
		return fmt.Errorf("restore breakout timers: %w", err)
	}
	logger.Info("breakout timers restored", "count", restored)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("orchestrator listening", "addr", httpServer.Addr, "provider", cfg.Provider.Kind)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}
