package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/input"
	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
	"github.com/adithyaathreya2264/beach-buggy-racing/backend/race"
	"github.com/adithyaathreya2264/beach-buggy-racing/backend/room"
)

func (svc *Service) dispatch(ctx context.Context, sess *session, env model.Envelope) (any, error) {
	switch env.Type {
	case model.TypeCreateRoom:
		return svc.createRoom(sess)
	case model.TypeJoinRoom:
		return svc.joinRoom(ctx, sess, env)
	case model.TypeGetRoomState:
		return svc.getRoomState(env)
	case model.TypeStartGame:
		return nil, svc.startGame(ctx, sess, env)
	case model.TypeControllerInput, model.TypeControllerInputSequenced:
		return nil, svc.controllerInput(ctx, sess, env)
	case model.TypeSelectCar:
		return nil, svc.selectCar(ctx, sess, env)
	case model.TypeSelectMap:
		return nil, svc.selectMap(ctx, sess, env)
	case model.TypeSelectGameMode:
		return nil, svc.selectGameMode(ctx, sess, env)
	case model.TypePlayerReady:
		return nil, svc.playerReady(ctx, sess, env)
	case model.TypeGameStateUpdate:
		return nil, svc.gameStateUpdate(ctx, sess, env)
	case model.TypeStateAcknowledged:
		return nil, svc.stateAcknowledged(sess, env)
	case model.TypePing:
		return svc.ping(env)
	case model.TypeLatencyReply:
		return nil, svc.latencyReply(sess, env)
	default:
		return nil, ErrUnknownType
	}
}

// decode unmarshals the payload into dst and checks its validation tags.
func (svc *Service) decode(env model.Envelope, dst any) error {
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, dst); err != nil {
			return errors.Join(ErrBadPayload, err)
		}
	}
	if err := svc.validate.Struct(dst); err != nil {
		return errors.Join(ErrBadPayload, err)
	}
	return nil
}

// lookup resolves a room for a message whose failures are never reported.
func (svc *Service) lookup(code string) (*room.Room, error) {
	r, ok := svc.store.GetRoom(code)
	if !ok {
		return nil, errors.Join(errDropped, ErrRoomMissing)
	}
	return r, nil
}

// hostRoom resolves a room for a host-only message.
func (svc *Service) hostRoom(sess *session, code string) (*room.Room, error) {
	r, err := svc.lookup(code)
	if err != nil {
		return nil, err
	}
	if !r.IsHostConnection(sess.id) {
		return nil, ErrHostOnly
	}
	return r, nil
}

// memberRoom resolves a room for a message only its players may send.
func (svc *Service) memberRoom(sess *session, code string) (*room.Room, room.Player, error) {
	r, err := svc.lookup(code)
	if err != nil {
		return nil, room.Player{}, err
	}
	p, ok := r.Player(sess.id)
	if !ok {
		return nil, room.Player{}, ErrNotInRoom
	}
	return r, p, nil
}

// JoinURL is the controller page link for a room.
func (svc *Service) JoinURL(code string) string {
	u, err := url.Parse(svc.publicURL)
	if err != nil {
		return svc.publicURL
	}
	u = u.JoinPath("controller")
	q := u.Query()
	q.Set("room", code)
	u.RawQuery = q.Encode()
	return u.String()
}

// createRoom returns the room the connection already owns, if any. A
// connection playing in someone else's room cannot open its own.
func (svc *Service) createRoom(sess *session) (any, error) {
	if r, ok := svc.store.FindRoomByConnection(sess.id); ok {
		if !r.IsHostConnection(sess.id) {
			return nil, ErrInOtherRoom
		}
		return model.CreateRoomResponse{RoomCode: r.Code(), HostJoinURL: svc.JoinURL(r.Code())}, nil
	}
	r, err := svc.store.CreateRoom(sess.id)
	if err != nil {
		sess.logger.Error().Err(err).Msg("failed to create room")
		return nil, err
	}
	svc.sw.Join(r.Code(), sess.id)

	sess.logger.Info().Str("roomCode", r.Code()).Msg("room created")
	return model.CreateRoomResponse{RoomCode: r.Code(), HostJoinURL: svc.JoinURL(r.Code())}, nil
}

func (svc *Service) joinRoom(ctx context.Context, sess *session, env model.Envelope) (any, error) {
	var req model.JoinRoomRequest
	if err := svc.decode(env, &req); err != nil {
		return nil, err
	}
	// a connection belongs to at most one room
	if cur, ok := svc.store.FindRoomByConnection(sess.id); ok && cur.Code() != req.RoomCode {
		return nil, ErrInOtherRoom
	}
	r, ok := svc.store.GetRoom(req.RoomCode)
	if !ok {
		return nil, ErrRoomMissing
	}
	p, err := r.Admit(sess.id, req.DisplayName, room.MaxPlayers)
	if err != nil {
		return nil, err
	}
	svc.sw.Join(r.Code(), sess.id)
	sess.validator.Reset()
	sess.inputs.Clear()

	svc.broadcast(ctx, r.Code(), model.EventPlayerJoined, model.PlayerJoinedEvent{
		Player:  p.Snapshot(),
		Players: r.Roster(),
	}, "")
	sess.logger.Info().
		Str("roomCode", r.Code()).
		Int("playerNumber", p.PlayerNumber).
		Msg("player joined")
	return model.JoinRoomResponse{RoomCode: r.Code(), PlayerNumber: p.PlayerNumber, IsHost: p.IsHost}, nil
}

func (svc *Service) getRoomState(env model.Envelope) (any, error) {
	var req model.RoomRequest
	if err := svc.decode(env, &req); err != nil {
		return nil, err
	}
	r, ok := svc.store.GetRoom(req.RoomCode)
	if !ok {
		return nil, ErrRoomMissing
	}
	return r.Snapshot(), nil
}

// startGame is accepted from the room owner or from player 1.
func (svc *Service) startGame(ctx context.Context, sess *session, env model.Envelope) error {
	var req model.RoomRequest
	if err := svc.decode(env, &req); err != nil {
		return err
	}
	r, err := svc.lookup(req.RoomCode)
	if err != nil {
		return err
	}
	if !r.IsHostConnection(sess.id) {
		if p, ok := r.Player(sess.id); !ok || !p.IsHost {
			return ErrHostOnly
		}
	}
	snap, err := r.StartGame()
	if err != nil {
		return err
	}
	svc.broadcast(ctx, r.Code(), model.EventGameStarting, model.GameStartingEvent{Room: snap}, "")
	sess.logger.Info().Str("roomCode", r.Code()).Msg("game started")
	return nil
}

func (svc *Service) controllerInput(ctx context.Context, sess *session, env model.Envelope) error {
	var req model.ControllerInputRequest
	if err := svc.decode(env, &req); err != nil {
		return err
	}
	r, _, err := svc.memberRoom(sess, req.RoomCode)
	if err != nil {
		return err
	}
	var raw input.RawSample
	if err = json.Unmarshal(req.Input, &raw); err != nil {
		return errors.Join(ErrBadPayload, err)
	}

	// a stale or out of range sample is dropped before it can move the
	// validator's timestamp anchor
	sequenced := env.Type == model.TypeControllerInputSequenced && req.Sequence != nil
	if sequenced {
		if err = sess.inputs.Check(*req.Sequence); err != nil {
			return errors.Join(errDropped, err)
		}
	}
	res := sess.validator.Validate(raw, svc.clock.Now())

	var in input.SequencedInput
	if sequenced {
		in, err = sess.inputs.Push(*req.Sequence, res.Sanitized)
		if err != nil {
			return errors.Join(errDropped, err)
		}
	} else {
		in = sess.inputs.AddInput(res.Sanitized)
	}

	if !res.Valid() {
		sess.logger.Debug().Err(res.Err()).Uint64("sequence", in.Sequence).Msg("input rejected")
		if err = svc.send(ctx, sess.id, model.EventInputRejected, model.InputRejectedEvent{
			Sequence: in.Sequence,
			Errors:   res.Errors,
		}); err != nil {
			sess.logger.Debug().Err(err).Msg("rejection report not delivered")
		}
	}

	p, err := r.ApplyInput(sess.id, res.Sanitized.State(), in.Sequence)
	if err != nil {
		return errors.Join(errDropped, err)
	}

	typ := model.EventPlayerInput
	if sequenced {
		typ = model.EventPlayerInputSequenced
	}
	if err = svc.send(ctx, r.HostConnectionID(), typ, model.PlayerInputEvent{
		PlayerNumber: p.PlayerNumber,
		Input:        p.Input,
		Sequence:     in.Sequence,
		Valid:        res.Valid(),
	}); err != nil {
		sess.logger.Trace().Err(err).Msg("input not relayed to host")
	}
	return nil
}

func (svc *Service) selectCar(ctx context.Context, sess *session, env model.Envelope) error {
	var req model.SelectCarRequest
	if err := svc.decode(env, &req); err != nil {
		return err
	}
	r, _, err := svc.memberRoom(sess, req.RoomCode)
	if err != nil {
		return err
	}
	p, all, err := r.SelectCar(sess.id, req.CarID)
	if err != nil {
		return errors.Join(errDropped, err)
	}
	svc.broadcast(ctx, r.Code(), model.EventCarSelected, model.CarSelectedEvent{
		PlayerNumber:    p.PlayerNumber,
		CarID:           p.SelectedCar,
		AllCarsSelected: all,
	}, "")
	return nil
}

func (svc *Service) selectMap(ctx context.Context, sess *session, env model.Envelope) error {
	var req model.SelectValueRequest
	if err := svc.decode(env, &req); err != nil {
		return err
	}
	r, err := svc.hostRoom(sess, req.RoomCode)
	if err != nil {
		return err
	}
	cfg := race.DefaultConfig()
	if svc.tracks != nil {
		cfg = svc.tracks.Lookup(req.Value)
	}
	cfg, err = r.SelectMap(req.Value, cfg)
	if err != nil {
		return err
	}
	svc.broadcast(ctx, r.Code(), model.EventMapSelected, model.MapSelectedEvent{
		MapID:             req.Value,
		MaxLaps:           cfg.MaxLaps,
		CheckpointsPerLap: cfg.CheckpointsPerLap,
	}, "")
	return nil
}

func (svc *Service) selectGameMode(ctx context.Context, sess *session, env model.Envelope) error {
	var req model.SelectValueRequest
	if err := svc.decode(env, &req); err != nil {
		return err
	}
	r, err := svc.hostRoom(sess, req.RoomCode)
	if err != nil {
		return err
	}
	if err = r.SetGameMode(req.Value); err != nil {
		return err
	}
	svc.broadcast(ctx, r.Code(), model.EventGameModeSelected, model.GameModeSelectedEvent{GameMode: req.Value}, "")
	return nil
}

func (svc *Service) playerReady(ctx context.Context, sess *session, env model.Envelope) error {
	var req model.PlayerReadyRequest
	if err := svc.decode(env, &req); err != nil {
		return err
	}
	r, _, err := svc.memberRoom(sess, req.RoomCode)
	if err != nil {
		return err
	}
	p, err := r.SetReady(sess.id, req.Ready)
	if err != nil {
		return errors.Join(errDropped, err)
	}
	svc.broadcast(ctx, r.Code(), model.EventPlayerReady, model.PlayerReadyEvent{
		PlayerNumber: p.PlayerNumber,
		Ready:        p.Ready,
	}, "")
	return nil
}

// gameStateUpdate relays the host simulation to the room and feeds the
// transforms and checkpoint events it carries into the room's race.
func (svc *Service) gameStateUpdate(ctx context.Context, sess *session, env model.Envelope) error {
	var req model.GameStateUpdateRequest
	if err := svc.decode(env, &req); err != nil {
		return err
	}
	r, err := svc.hostRoom(sess, req.RoomCode)
	if err != nil {
		return err
	}

	var hs model.HostState
	if len(req.State) > 0 {
		if err = json.Unmarshal(req.State, &hs); err != nil {
			sess.logger.Debug().Err(err).Msg("host state not understood, relaying as is")
			hs = model.HostState{}
		}
	}
	res := r.ApplyHostState(hs)
	for _, e := range res.Errors {
		sess.logger.Debug().Err(e).Msg("host state entry skipped")
	}

	svc.broadcast(ctx, r.Code(), model.EventGameState, model.GameStateEvent{
		Tick:  res.Tick,
		State: req.State,
		Race:  res.Race,
	}, sess.id)
	if res.RaceFinished {
		svc.broadcast(ctx, r.Code(), model.EventRaceFinished, model.RaceFinishedEvent{Race: res.Race}, "")
		sess.logger.Info().Str("roomCode", r.Code()).Msg("race finished")
	}
	return nil
}

func (svc *Service) stateAcknowledged(sess *session, env model.Envelope) error {
	var req model.StateAcknowledgedRequest
	if err := svc.decode(env, &req); err != nil {
		return err
	}
	r, _, err := svc.memberRoom(sess, req.RoomCode)
	if err != nil {
		return err
	}
	if err = r.AcknowledgeState(sess.id, req.LastSequence); err != nil {
		return errors.Join(errDropped, err)
	}
	sess.inputs.Acknowledge(req.LastSequence)
	return nil
}

func (svc *Service) ping(env model.Envelope) (any, error) {
	var req model.PingRequest
	if err := svc.decode(env, &req); err != nil {
		return nil, err
	}
	return model.PingResponse{
		ClientTime: req.ClientTime,
		ServerTime: svc.clock.Now().UnixMilli(),
	}, nil
}

func (svc *Service) latencyReply(sess *session, env model.Envelope) error {
	var req model.LatencyProbe
	if err := svc.decode(env, &req); err != nil {
		return err
	}
	st, err := sess.monitor.HandleReply(req.ServerTime)
	if err != nil {
		return errors.Join(errDropped, err)
	}
	sess.logger.Trace().
		Float64("average", st.Average).
		Float64("jitter", st.Jitter).
		Str("quality", string(st.Quality)).
		Msg("latency updated")
	return nil
}
