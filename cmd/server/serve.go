package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Podium/internal/adapters/http"
	"github.com/dkeye/Podium/internal/adapters/persist"
	wsignal "github.com/dkeye/Podium/internal/adapters/signal"
	"github.com/dkeye/Podium/internal/app"
	"github.com/dkeye/Podium/internal/app/orch"
	"github.com/dkeye/Podium/internal/config"
	"github.com/dkeye/Podium/internal/core"
)

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP listen port")
	serveCmd.Flags().String("mode", "release", "gin mode: debug or release")
	serveCmd.Flags().String("log-level", "info", "log level")
	serveCmd.Flags().String("config-env", "dev", "selects config/config.<env>.yaml")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the room coordinator over HTTP and WebSocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		setupLogger(cfg)

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx, cfg)
	},
}

func setupLogger(cfg *config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	policy, err := app.PolicyFromString(cfg.Rooms.Backpressure)
	if err != nil {
		return err
	}

	sink, closeSink, err := persist.Open(ctx, persist.Options{
		Drivers:      cfg.Persist.Drivers,
		SQLitePath:   cfg.Persist.SQLitePath,
		RedisAddr:    cfg.Persist.RedisAddr,
		RedisChannel: cfg.Persist.RedisChannel,
	})
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}
	defer func() {
		if err := closeSink(); err != nil {
			log.Error().Err(err).Msg("close persistence")
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	reg := app.NewRegistry()
	manager := app.NewRoomManager(ctx, core.RoomOptions{
		InboxSize: cfg.Rooms.InboxSize,
		OnDropped: app.DropHandler(policy, reg.Cancel),
	})

	o := &orch.Orchestrator{
		Registry: reg,
		Rooms:    manager,
	}
	if sink != nil {
		queue := persist.NewQueue(sink, cfg.Persist.QueueSize)
		o.Sink = queue
		g.Go(func() error { return queue.Run(ctx) })
	}

	limiter := wsignal.NewRoomRateLimiter(cfg.RateLimit.Responses, cfg.RateLimit.Interval)
	ctrl := wsignal.NewSignalWSController(o, limiter, cfg.WS)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, o, ctrl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Podium server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return manager.RunSweeper(ctx, cfg.Rooms.SweepInterval, cfg.Rooms.IdleTTL)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
