package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ahinestrog/xstock/stock"
	"github.com/ahinestrog/xstock/stock/sqlitestore"
)

func main() {
	// Logger
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg := LoadConfig()
	zerolog.SetGlobalLevel(cfg.LogLevel)
	logger := log.With().Str("service", cfg.ServiceName).Logger()
	logger.Info().
		Str("addr", cfg.GRPCAddr).
		Str("db", cfg.DBPath).
		Str("exchange", cfg.Exchange).
		Str("queue", cfg.Queue).
		Msg("starting stock service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	store, err := sqlitestore.Open(cfg.DBPath,
		sqlitestore.WithCacheSize(cfg.SettingsCache),
		sqlitestore.WithLogger(logger))
	must(err)
	defer store.Close()

	if cfg.SeedOnStart {
		must(store.Seed(ctx))
		logger.Info().Msg("seeded demo variations")
	}

	svc := stock.NewService(store, store, stock.Config{
		Logger:      logger,
		Policies:    []stock.AvailabilityPolicy{stock.MinimumQuantity},
		MaxAttempts: cfg.MaxAttempts,
	})

	// Rabbit
	rabbit, err := NewRabbit(cfg.RabbitURL, cfg.Exchange)
	must(err)
	defer rabbit.Close()
	handler := NewHandler(store, svc, rabbit, logger)

	// gRPC health
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	must(err)
	grpcSrv, hs := newGRPCServer(cfg.ServiceName)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rabbit.ConsumeTopic(ctx, cfg.Queue, Bindings, handler.Handle)
	})
	g.Go(func() error {
		logger.Info().Msg("gRPC listening")
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Warn().Msg("shutting down...")
		stopGRPC(grpcSrv, hs, ShutdownGrace)
		return nil
	})
	must(g.Wait())
	logger.Info().Msg("stopped")
}

func must(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}
