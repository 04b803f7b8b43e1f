package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"velvetcode/internal/api"
	"velvetcode/internal/config"
	"velvetcode/internal/exec"
	"velvetcode/internal/jobs"
	"velvetcode/internal/llm"
	_ "velvetcode/internal/llm/gemini"
	"velvetcode/internal/prompts"
	"velvetcode/internal/room_management"
	"velvetcode/internal/routers"
	"velvetcode/internal/services"
	"velvetcode/internal/session"
	"velvetcode/internal/utils"
)

const (
	shutdownTimeout = 10 * time.Second
	redisPingWait   = 2 * time.Second
	// Room creation is reported to Redis asynchronously; this bounds each call.
	feedCallTimeout = 5 * time.Second
)

var (
	listenAndServe = func(srv *http.Server) error { return srv.ListenAndServe() }
	exitFunc       = defaultExit
	exit           = os.Exit
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		exitFunc(err)
	}
}

func defaultExit(err error) {
	log.Printf("velvetcode exited: %v", err)
	exit(1)
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := utils.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	hub := session.NewHub(logger, session.RoomOptions{
		ChatLimit: cfg.ChatHistoryLimit,
		RunLimit:  cfg.RunHistoryLimit,
	})
	defer hub.Close()
	router := session.NewEventRouter(hub, session.NewTracker(cfg.JoinCooldown), logger)

	deps := api.Deps{
		Log:        logger,
		Router:     router,
		SendQueue:  cfg.SendQueueSize,
		RunTimeout: cfg.SandboxWallTime + 5*time.Second,
	}

	var publisher jobs.StatsPublisher
	if cfg.FeedEnabled() {
		rm := room_management.NewRoomManager(cfg.RedisAddr, logger)
		defer func() { _ = rm.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, redisPingWait)
		err := rm.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, room activity feed disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			hub.OnRoomCreated(func(roomID string) {
				go func() {
					callCtx, cancel := context.WithTimeout(context.Background(), feedCallTimeout)
					defer cancel()
					if err := rm.RoomCreated(callCtx, roomID); err != nil {
						logger.Warn("failed to record room", zap.String("room_id", roomID), zap.Error(err))
					}
				}()
			})
			go rm.SubscribeToProvisions(ctx, func(roomID string) { hub.GetOrCreate(roomID) })
			publisher = rm
			deps.Feed = rm
		}
	}

	statsJob := jobs.NewStatsJob(hub, publisher, cfg.StatsSchedule, logger)
	if err := statsJob.Start(); err != nil {
		return err
	}
	defer statsJob.Stop()

	if cfg.SandboxEnabled {
		runner, err := exec.NewRunner(exec.SandboxLimits{
			WallTime:  cfg.SandboxWallTime,
			MemoryB:   cfg.SandboxMemoryMB << 20,
			NanoCPUs:  1_000_000_000,
			PidsLimit: 128,
		})
		if err != nil {
			logger.Warn("code execution disabled", zap.Error(err))
		} else {
			deps.Runner = runner
		}
	}

	pm, err := prompts.NewPromptManager()
	if err != nil {
		return err
	}
	provider, err := llm.NewProvider(cfg.AIProvider)
	if err != nil {
		logger.Warn("AI assistant disabled", zap.String("provider", cfg.AIProvider), zap.Error(err))
	} else {
		deps.Assistant = services.NewAssistant(provider, pm)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routers.New(api.NewHandlers(deps), cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	served := make(chan struct{})
	defer close(served)
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown failed", zap.Error(err))
			}
		case <-served:
		}
	}()

	logger.Info("velvetcode listening", zap.String("addr", srv.Addr))
	if err := listenAndServe(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
