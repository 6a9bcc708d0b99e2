package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultSessionCloseTimeout = 2 * time.Second

	defaultWebsocketReadBufferSize   = 4096
	defaultWebsocketWriteBufferSize  = 4096
	defaultWebSocketHandshakeTimeout = 3 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	SessionService interface {
		CreateSession(context.Context, string, model.Wire) error
		DeleteSession(context.Context, string) error
	}

	Config struct {
		Logger         *zerolog.Logger
		SessionService SessionService
		ListenAddr     string
	}

	Server struct {
		svc SessionService
		ws  *websocket.Upgrader
		*http.Server

		// base is canceled on Shutdown, which closes every live session
		base context.Context

		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:    cfg.SessionService,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", srv.session)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	var stop context.CancelFunc
	srv.base, stop = context.WithCancel(context.Background())
	srv.RegisterOnShutdown(stop)
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

func (srv *Server) session(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	p := &peer{
		conn: conn,
		wire: model.NewWire(),
		logger: srv.logger.With().
			Str("connID", connID).
			Str("remote", r.RemoteAddr).
			Logger(),
	}

	// sessions outlive the upgrade request and end with the server
	ctx, cancel := context.WithCancel(srv.base)
	if err = srv.svc.CreateSession(ctx, connID, p.wire); err != nil {
		p.logger.Error().Err(err).Msg("failed to create session")
		cancel()
		p.close(websocket.CloseInternalServerErr)
		return
	}
	p.logger.Debug().Msg("session created")

	go func() {
		defer cancel()
		p.run(ctx)
		srv.destroySession(connID, &p.logger)
	}()
}

func (srv *Server) destroySession(connID string, logger *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSessionCloseTimeout)
	defer cancel()
	if err := srv.svc.DeleteSession(ctx, connID); err != nil {
		logger.Error().Err(err).Msg("failed to delete session")
		return
	}
	logger.Debug().Msg("session ended")
}
