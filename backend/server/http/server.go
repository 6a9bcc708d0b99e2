package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	qrSize     = 320
	maxQRInput = 1024
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type RoomService interface {
	RoomSnapshot(code string) (model.RoomSnapshot, error)
	JoinURL(code string) string
	RoomCount() int
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	svc    RoomService
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	RoomService RoomService
	ListenAddr  string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:    cfg.RoomService,
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /api/rooms/{code}", srv.getRoom)
	r.HandleFunc("GET /api/rooms/{code}/qr", srv.roomQR)
	r.HandleFunc("GET /api/qr", srv.qr)
	r.HandleFunc("GET /healthz", srv.health)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:         86400,
	})

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: c.Handler(r),
	}
	return srv
}

func (srv *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	snap, err := srv.svc.RoomSnapshot(code)
	if err != nil {
		srv.logger.Debug().Err(err).Str("roomCode", code).Msg("room lookup failed")
		writeJSON(w, http.StatusNotFound, &GenericResponse{Error: "room not found"})
		return
	}
	writeJSON(w, http.StatusOK, &GenericResponse{Data: snap})
}

// roomQR encodes the controller join link of an existing room.
func (srv *Server) roomQR(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if _, err := srv.svc.RoomSnapshot(code); err != nil {
		writeJSON(w, http.StatusNotFound, &GenericResponse{Error: "room not found"})
		return
	}
	srv.writeQR(w, srv.svc.JoinURL(code))
}

func (srv *Server) qr(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" || len(target) > maxQRInput {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "url parameter is required"})
		return
	}
	if u, err := url.Parse(target); err != nil || u.Scheme == "" || u.Host == "" {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "url must be absolute"})
		return
	}
	srv.writeQR(w, target)
}

func (srv *Server) writeQR(w http.ResponseWriter, content string) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		srv.logger.Error().Err(err).Msg("qr generation failed")
		writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "qr generation failed"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(png); err != nil {
		srv.logger.Error().Err(err).Msg("failed to write response")
	}
}

func (srv *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, &GenericResponse{
		Message: "OK",
		Data:    map[string]int{"rooms": srv.svc.RoomCount()},
	})
}

func writeJSON(w http.ResponseWriter, code int, resp *GenericResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, code, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
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
