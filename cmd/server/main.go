package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"zapgate/internal/api"
	"zapgate/internal/config"
	"zapgate/internal/credstore"
	"zapgate/internal/gateway"
	"zapgate/internal/wa"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(cfg.Level())

	store := credstore.New(cfg.SessionDir, log)
	sup := wa.NewSupervisor(wa.NewFactory(store, log), store, log)
	gw := gateway.New(sup, log)
	srv := api.NewServer(sup, gw, log)

	// Start the session in the background; pairing state is polled over HTTP.
	go sup.Connect(context.Background())

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(cfg, srv, log),
	}

	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	// Drop the connection but keep credentials so the next start re-links
	// without a new pairing.
	sup.Close()
}
