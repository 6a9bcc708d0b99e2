package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/input"
	"github.com/adithyaathreya2264/beach-buggy-racing/backend/latency"
	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
	"github.com/adithyaathreya2264/beach-buggy-racing/backend/race"
	"github.com/adithyaathreya2264/beach-buggy-racing/backend/room"
)

var (
	ErrConnect     = errors.New("unable to connect")
	ErrDisconnect  = errors.New("unable to disconnect")
	ErrNoSession   = errors.New("connection has no session")
	ErrSend        = errors.New("unable to deliver message")
	ErrUnknownType = fmt.Errorf("unknown message type: %w", model.ErrValidation)
	ErrBadPayload  = fmt.Errorf("malformed payload: %w", model.ErrValidation)
	ErrRoomMissing = fmt.Errorf("room not found: %w", model.ErrNotFound)
	ErrHostOnly    = fmt.Errorf("host only message: %w", model.ErrUnauthorized)
	ErrNotInRoom   = fmt.Errorf("connection is not in this room: %w", model.ErrUnauthorized)
	ErrInOtherRoom = fmt.Errorf("connection already belongs to another room: %w", model.ErrCapacity)

	// errDropped marks outcomes that are logged but never reported to the sender.
	errDropped = errors.New("message dropped")
)

type (
	RoomStore interface {
		CreateRoom(hostConnID string) (*room.Room, error)
		GetRoom(code string) (*room.Room, bool)
		DeleteRoom(code string) bool
		FindRoomByConnection(connID string) (*room.Room, bool)
		Len() int
	}

	Switch interface {
		Connect(endpoint string, wire model.Wire) error
		Disconnect(endpoint string) error
		Join(roomCode, endpoint string)
		Leave(roomCode, endpoint string)
		CloseRoom(roomCode string)
		Send(ctx context.Context, endpoint string, env model.Envelope) bool
		Broadcast(ctx context.Context, roomCode string, env model.Envelope, except string) bool
	}

	TrackCatalog interface {
		Lookup(mapID string) race.Config
	}

	Service struct {
		store    RoomStore
		sw       Switch
		tracks   TrackCatalog
		clock    clockwork.Clock
		validate *validator.Validate
		logger   zerolog.Logger

		publicURL       string
		probeInterval   time.Duration
		bufferSize      int
		maxForwardDelta time.Duration
		minDelta        time.Duration

		mx       *sync.Mutex
		sessions map[string]*session
	}

	Config struct {
		RoomStore RoomStore
		Switch    Switch
		Tracks    TrackCatalog
		Clock     clockwork.Clock
		Logger    *zerolog.Logger

		PublicURL            string
		LatencyProbeInterval time.Duration
		InputBufferSize      int
		InputMaxForwardDelta time.Duration
		InputMinDelta        time.Duration
	}
)

func NewService(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Service{
		store:           cfg.RoomStore,
		sw:              cfg.Switch,
		tracks:          cfg.Tracks,
		clock:           cfg.Clock,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		logger:          cfg.Logger.With().Str("component", "session").Logger(),
		publicURL:       cfg.PublicURL,
		probeInterval:   cfg.LatencyProbeInterval,
		bufferSize:      cfg.InputBufferSize,
		maxForwardDelta: cfg.InputMaxForwardDelta,
		minDelta:        cfg.InputMinDelta,
		mx:              &sync.Mutex{},
		sessions:        make(map[string]*session),
	}
}

// session is the per-connection protocol state.
type session struct {
	id        string
	wire      model.Wire
	validator *input.Validator
	inputs    *input.Buffer
	monitor   *latency.Monitor
	cancel    context.CancelFunc
	done      chan struct{}
	logger    zerolog.Logger
}

// CreateSession attaches a transport connection and starts serving the
// envelopes it receives on wire.RX until ctx is done or DeleteSession is called.
func (svc *Service) CreateSession(ctx context.Context, connID string, wire model.Wire) error {
	if err := svc.sw.Connect(connID, wire); err != nil {
		return errors.Join(ErrConnect, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	logger := svc.logger.With().Str("connID", connID).Logger()
	sess := &session{
		id:   connID,
		wire: wire,
		validator: input.NewValidator(input.ValidatorConfig{
			MaxForwardDelta: svc.maxForwardDelta,
			MinDelta:        svc.minDelta,
		}),
		inputs: input.NewBuffer(input.BufferConfig{
			Capacity: svc.bufferSize,
			Clock:    svc.clock,
		}),
		monitor: latency.NewMonitor(latency.Config{
			Logger: &logger,
			Clock:  svc.clock,
		}),
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger,
	}
	sess.monitor.OnUpdate(func(st latency.Stats) {
		if r, ok := svc.store.FindRoomByConnection(connID); ok {
			r.SetLatency(connID, st.Average, string(st.Quality))
		}
	})

	svc.mx.Lock()
	svc.sessions[connID] = sess
	svc.mx.Unlock()

	sess.monitor.Start(ctx, latency.ProberFunc(func(ctx context.Context, sentAtMs int64) error {
		return svc.send(ctx, connID, model.EventLatencyProbe, model.LatencyProbe{ServerTime: sentAtMs})
	}), svc.probeInterval)

	go svc.serve(ctx, sess)

	logger.Debug().Msg("session created")
	return nil
}

// DeleteSession stops serving connID and applies the departure to its room.
func (svc *Service) DeleteSession(ctx context.Context, connID string) error {
	svc.mx.Lock()
	sess, ok := svc.sessions[connID]
	delete(svc.sessions, connID)
	svc.mx.Unlock()
	if !ok {
		return ErrNoSession
	}

	sess.cancel()
	sess.monitor.Stop()
	<-sess.done

	svc.depart(ctx, connID, &sess.logger)

	if err := svc.sw.Disconnect(connID); err != nil {
		return errors.Join(ErrDisconnect, err)
	}
	sess.logger.Debug().Msg("session deleted")
	return nil
}

func (svc *Service) depart(ctx context.Context, connID string, logger *zerolog.Logger) {
	r, ok := svc.store.FindRoomByConnection(connID)
	if !ok {
		return
	}
	code := r.Code()

	if r.IsHostConnection(connID) {
		svc.store.DeleteRoom(code)
		svc.closeRoom(ctx, code, model.ReasonHostDisconnected, connID)
		logger.Info().Str("roomCode", code).Msg("host left, room closed")
		return
	}

	d, ok := r.Leave(connID)
	svc.sw.Leave(code, connID)
	if !ok {
		return
	}
	svc.broadcast(ctx, code, model.EventPlayerLeft, model.PlayerLeftEvent{
		PlayerNumber: d.Player.PlayerNumber,
		DisplayName:  d.Player.DisplayName,
		Players:      r.Roster(),
	}, "")
	if d.RaceFinished {
		svc.broadcast(ctx, code, model.EventRaceFinished, model.RaceFinishedEvent{Race: r.RaceSnapshot()}, "")
	}
	logger.Info().
		Str("roomCode", code).
		Int("playerNumber", d.Player.PlayerNumber).
		Msg("player left")
}

func (svc *Service) RoomSnapshot(code string) (model.RoomSnapshot, error) {
	r, ok := svc.store.GetRoom(code)
	if !ok {
		return model.RoomSnapshot{}, ErrRoomMissing
	}
	return r.Snapshot(), nil
}

func (svc *Service) RoomCount() int {
	return svc.store.Len()
}

// RoomExpired notifies whoever is still attached to an evicted room.
func (svc *Service) RoomExpired(r *room.Room) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.closeRoom(ctx, r.Code(), model.ReasonRoomExpired, "")
}

func (svc *Service) closeRoom(ctx context.Context, code, reason, except string) {
	svc.broadcast(ctx, code, model.EventRoomClosed, model.RoomClosedEvent{Reason: reason}, except)
	svc.sw.CloseRoom(code)
}

func (svc *Service) serve(ctx context.Context, sess *session) {
	defer close(sess.done)
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-sess.wire.RX:
			svc.handle(ctx, sess, env)
		}
	}
}

// handle processes one envelope. A failure is confined to this envelope.
func (svc *Service) handle(ctx context.Context, sess *session, env model.Envelope) {
	logger := sess.logger.With().Str("type", env.Type).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("message handler failed")
		}
	}()

	payload, err := svc.dispatch(ctx, sess, env)
	switch {
	case err == nil:
	case errors.Is(err, errDropped), errors.Is(err, model.ErrUnauthorized):
		logger.Debug().Err(err).Msg("message dropped")
		return
	default:
		logger.Debug().Err(err).Msg("message rejected")
	}

	if env.ID == 0 {
		return
	}
	ack := model.Envelope{Type: model.TypeAck, ID: env.ID}
	if err != nil {
		ack.Error = publicError(err)
	} else if payload != nil {
		ack, err = model.NewEnvelope(model.TypeAck, payload)
		if err != nil {
			logger.Error().Err(err).Msg("failed to marshal ack")
			return
		}
		ack.ID = env.ID
	}
	if !svc.sw.Send(ctx, sess.id, ack) {
		logger.Debug().Uint64("id", env.ID).Msg("ack not delivered")
	}
}

func (svc *Service) send(ctx context.Context, connID, typ string, payload any) error {
	env, err := model.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	if !svc.sw.Send(ctx, connID, env) {
		return ErrSend
	}
	return nil
}

func (svc *Service) broadcast(ctx context.Context, code, typ string, payload any, except string) {
	env, err := model.NewEnvelope(typ, payload)
	if err != nil {
		svc.logger.Error().Err(err).Str("type", typ).Msg("failed to marshal event")
		return
	}
	svc.sw.Broadcast(ctx, code, env, except)
}

func publicError(err error) string {
	switch {
	case errors.Is(err, ErrRoomMissing):
		return "Room not found"
	case errors.Is(err, room.ErrRoomFull):
		return "Room is full"
	case errors.Is(err, ErrInOtherRoom):
		return "Already in another room"
	case errors.Is(err, room.ErrGameStarted):
		return "Game already started"
	case errors.Is(err, room.ErrNoPlayers):
		return "No players in room"
	case errors.Is(err, model.ErrResourceExhausted):
		return "No room codes available"
	case errors.Is(err, ErrUnknownType):
		return "Unknown message type"
	case errors.Is(err, model.ErrValidation):
		return "Invalid request"
	default:
		return "Internal error"
	}
}
