package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guildwarden/internal/analytics"
	"guildwarden/internal/bot"
	"guildwarden/internal/config"
	"guildwarden/internal/gateway"
	"guildwarden/internal/modules/audit"
	"guildwarden/internal/modules/ladder"
	"guildwarden/internal/modules/moderation"
	"guildwarden/internal/modules/roles"
	"guildwarden/internal/schedule"
	"guildwarden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatal("session init failed", zap.Error(err))
	}

	auditLogger := audit.NewLogger(store, logger)
	gw := gateway.New(session, time.Duration(cfg.Scheduler.GatewayTimeoutSeconds)*time.Second)

	executor := schedule.NewExecutor(schedule.ExecutorConfig{
		WarnDecayPeriod: time.Duration(cfg.Moderation.WarnDecayDays) * 24 * time.Hour,
	}, gw, store, logger)
	scheduler := schedule.NewScheduler(schedule.SchedulerConfig{
		MaxConcurrentSubjects: cfg.Scheduler.MaxConcurrentSubjects,
		RetryInterval:         time.Duration(cfg.Scheduler.RetryIntervalSeconds) * time.Second,
	}, store, executor, logger)
	scheduler.SetReporter(auditLogger.LogOutcome)
	svc := schedule.NewService(store, scheduler, executor, logger)
	reconciler := schedule.NewReconciler(store, gw, executor, scheduler, logger)

	moderationModule := moderation.New(moderation.Config{
		WarnDecayPeriod: time.Duration(cfg.Moderation.WarnDecayDays) * 24 * time.Hour,
	}, store, gw, svc, auditLogger)
	rolesModule := roles.New(gw, svc, auditLogger)
	ladderEngine := ladder.NewEngine(ladder.Config{
		KFactor:    cfg.Ladder.KFactor,
		BaseRating: cfg.Ladder.BaseRating,
	}, store)
	analyticsService := analytics.New(store)

	botSvc := bot.New(cfg, logger, session, store, svc, reconciler,
		moderationModule, rolesModule, ladderEngine, auditLogger, analyticsService)

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started")

	// Recover runs before the timer loop so missed work executes once,
	// under reconciliation, not twice.
	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := reconciler.Recover(recoverCtx); err != nil {
		cancelRecover()
		logger.Fatal("startup recovery failed", zap.Error(err))
	}
	cancelRecover()

	scheduler.Start()
	reconciler.Start(time.Duration(cfg.Scheduler.ReconcileIntervalMinutes) * time.Minute)
	logger.Info("scheduler running")

	var server *http.Server
	if cfg.Health.Enabled {
		server = &http.Server{Addr: cfg.Health.Addr}
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	botSvc.Close()
	reconciler.Stop()
	scheduler.Stop()
}
