package _switch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
)

const (
	defaultFwdTimout = time.Second
)

// Switch routes outbound envelopes to connected endpoints, either to a single
// connection or to every connection grouped under a room code.
type Switch struct {
	logger    zerolog.Logger
	fwdTimout time.Duration

	mx        *sync.RWMutex
	endpoints map[string]model.Wire
	rooms     map[string]map[string]struct{}
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger:    logger.With().Str("component", "switch").Logger(),
		fwdTimout: defaultFwdTimout,
		mx:        &sync.RWMutex{},
		endpoints: make(map[string]model.Wire),
		rooms:     make(map[string]map[string]struct{}),
	}
}

func (sw *Switch) Connect(endpoint string, wire model.Wire) error {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("endpoint", endpoint).
			Msg("endpoint connected")
	}()

	sw.endpoints[endpoint] = wire
	return nil
}

// Disconnect forgets the endpoint and removes it from every room.
func (sw *Switch) Disconnect(endpoint string) error {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("endpoint", endpoint).
			Msg("endpoint disconnected")
	}()

	delete(sw.endpoints, endpoint)
	for code, members := range sw.rooms {
		delete(members, endpoint)
		if len(members) == 0 {
			delete(sw.rooms, code)
		}
	}
	return nil
}

func (sw *Switch) Join(roomCode, endpoint string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	members, ok := sw.rooms[roomCode]
	if !ok {
		members = make(map[string]struct{})
		sw.rooms[roomCode] = members
	}
	members[endpoint] = struct{}{}
}

func (sw *Switch) Leave(roomCode, endpoint string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	members, ok := sw.rooms[roomCode]
	if !ok {
		return
	}
	delete(members, endpoint)
	if len(members) == 0 {
		delete(sw.rooms, roomCode)
	}
}

// CloseRoom drops the room group; endpoints stay connected.
func (sw *Switch) CloseRoom(roomCode string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()
	delete(sw.rooms, roomCode)
}

// Send delivers env to one endpoint.
func (sw *Switch) Send(ctx context.Context, endpoint string, env model.Envelope) bool {
	sw.mx.RLock()
	wire, ok := sw.endpoints[endpoint]
	sw.mx.RUnlock()

	logger := sw.logger.With().
		Str("type", env.Type).
		Str("dst", endpoint).Logger()
	if !ok {
		logger.Debug().Msg("cannot forward, dst not found")
		return false
	}
	sent, _ := send(ctx, env, wire.TX, sw.fwdTimout, &logger)
	return sent
}

// Broadcast delivers env to every member of the room except one endpoint,
// which may be empty. It reports whether anyone received it.
func (sw *Switch) Broadcast(ctx context.Context, roomCode string, env model.Envelope, except string) bool {
	sw.mx.RLock()
	wires := make([]model.Wire, 0, len(sw.rooms[roomCode]))
	for ep := range sw.rooms[roomCode] {
		if ep == except {
			continue
		}
		if wire, ok := sw.endpoints[ep]; ok {
			wires = append(wires, wire)
		}
	}
	sw.mx.RUnlock()

	logger := sw.logger.With().
		Str("type", env.Type).
		Str("roomCode", roomCode).Logger()

	var sent bool
	for _, wire := range wires {
		ok, canceled := send(ctx, env, wire.TX, sw.fwdTimout, &logger)
		if canceled {
			break
		}
		if ok {
			sent = true
		}
	}
	if !sent {
		logger.Debug().Msg("broadcast did not reach anyone")
	}
	return sent
}

func send(ctx context.Context, env model.Envelope, tx chan<- model.Envelope, timeout time.Duration, logger *zerolog.Logger) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(timeout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		logger.Error().Msg("dead endpoint")
	case tx <- env:
		logger.Trace().Msg("envelope is forwarded")
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
