package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/config"
	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/dify"
	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/jetstream"
	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/processor"
	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/server"
	"github.com/DigitalAeolus/Waza-backend-wrapper/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	ctx := context.Background()

	natsServer, err := jetstream.NewServer(cfg.NATSStoreDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start embedded NATS")
	}
	defer natsServer.Shutdown()

	nc, err := natsServer.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to embedded NATS")
	}
	defer nc.Drain()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get JetStream context")
	}
	if err := jetstream.EnsureStream(js); err != nil {
		log.Fatal().Err(err).Msg("failed to create JetStream stream")
	}

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	var writer *storage.BatchWriter
	if cfg.DatabaseURL != "" {
		pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		if err := storage.RunMigrations(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}

		writer = storage.NewBatchWriter(pool, cfg.WriterBufferSize, cfg.WriterBatchSize,
			time.Duration(cfg.WriterFlushMs)*time.Millisecond)
		go processor.New(writer).StartConsumer(consumerCtx, js)
	} else {
		log.Info().Msg("DATABASE_URL not set, run log disabled")
	}

	client := dify.NewClient(cfg.DifyBaseURL, cfg.DifyAPIKey, cfg.DifyEndpoint,
		time.Duration(cfg.ChunkTimeout)*time.Second)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.New(cfg, client, js).Handler(),
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("upstream", cfg.DifyBaseURL).
			Msg("waza wrapper started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-done
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv.Shutdown(shutdownCtx)
	consumerCancel()
	nc.Drain()
	natsServer.Shutdown()
	if writer != nil {
		writer.Shutdown()
	}
	log.Info().Msg("shutdown complete")
}
