package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/config"
	httpServer "github.com/adithyaathreya2264/beach-buggy-racing/backend/server/http"
	websocketServer "github.com/adithyaathreya2264/beach-buggy-racing/backend/server/websocket"
	"github.com/adithyaathreya2264/beach-buggy-racing/backend/service"
	store "github.com/adithyaathreya2264/beach-buggy-racing/backend/storage/memory"
	sw "github.com/adithyaathreya2264/beach-buggy-racing/backend/switch"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(os.Args[1:], &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	tracks, err := config.LoadTracks(cfg.TracksFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load tracks")
	}
	logger.Debug().Strs("maps", tracks.Maps()).Msg("tracks loaded")

	rooms := store.NewMemStore(store.Config{Logger: &logger})
	svc := service.NewService(service.Config{
		RoomStore:            rooms,
		Switch:               sw.NewSwitch(&logger),
		Tracks:               tracks,
		Logger:               &logger,
		PublicURL:            cfg.PublicURL,
		LatencyProbeInterval: cfg.LatencyProbeInterval,
		InputBufferSize:      cfg.InputBufferSize,
		InputMaxForwardDelta: cfg.InputMaxForwardDelta,
		InputMinDelta:        cfg.InputMinDelta,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  cfg.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:         &logger,
		SessionService: svc,
		ListenAddr:     cfg.WSListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(3)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)
	go rooms.RunSweeper(ctx, wg, cfg.SweepInterval, cfg.RoomTTL, svc.RoomExpired)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
