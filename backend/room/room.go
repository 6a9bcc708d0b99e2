package room

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
	"github.com/adithyaathreya2264/beach-buggy-racing/backend/race"
)

const (
	MaxPlayers      = 4
	DefaultGameMode = "race"
)

var (
	ErrRoomFull      = fmt.Errorf("room is full: %w", model.ErrCapacity)
	ErrNotMember     = fmt.Errorf("connection is not a player in this room: %w", model.ErrNotFound)
	ErrUnknownPlayer = fmt.Errorf("unknown player number: %w", model.ErrNotFound)
	ErrGameStarted   = errors.New("game already started")
	ErrNoPlayers     = fmt.Errorf("room has no players: %w", model.ErrValidation)
)

type Config struct {
	Code             string
	HostConnectionID string
	Race             race.Config
	Clock            clockwork.Clock
}

// Room is one game session. All mutations are serialized by the room lock;
// reads return copies taken under the same lock.
type Room struct {
	id        string
	code      string
	host      string
	createdAt time.Time
	clock     clockwork.Clock

	mx          sync.RWMutex
	players     []*Player
	selectedMap string
	gameMode    string
	gameStarted bool
	race        *race.State
}

func New(cfg Config) *Room {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Room{
		id:        uuid.NewString(),
		code:      cfg.Code,
		host:      cfg.HostConnectionID,
		createdAt: cfg.Clock.Now(),
		clock:     cfg.Clock,
		gameMode:  DefaultGameMode,
		race:      race.New(cfg.Race),
	}
}

func (r *Room) ID() string               { return r.id }
func (r *Room) Code() string             { return r.code }
func (r *Room) HostConnectionID() string { return r.host }
func (r *Room) CreatedAt() time.Time     { return r.createdAt }

// IsHostConnection reports whether connID owns the room.
func (r *Room) IsHostConnection(connID string) bool {
	return connID != "" && connID == r.host
}

// HasConnection reports whether connID is the host or one of the players.
func (r *Room) HasConnection(connID string) bool {
	if r.IsHostConnection(connID) {
		return true
	}
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.find(connID) >= 0
}

func (r *Room) PlayerCount() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return len(r.players)
}

func (r *Room) Player(connID string) (Player, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	if i := r.find(connID); i >= 0 {
		return *r.players[i], true
	}
	return Player{}, false
}

// AddPlayer appends connID as the next player. A connection that is already
// a player gets its existing record back.
func (r *Room) AddPlayer(connID, name string) Player {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.addPlayer(connID, name)
}

// Admit is AddPlayer behind a capacity check, both under one lock.
func (r *Room) Admit(connID, name string, limit int) (Player, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	if i := r.find(connID); i >= 0 {
		return *r.players[i], nil
	}
	if len(r.players) >= limit {
		return Player{}, ErrRoomFull
	}
	return r.addPlayer(connID, name), nil
}

func (r *Room) addPlayer(connID, name string) Player {
	if i := r.find(connID); i >= 0 {
		return *r.players[i]
	}
	n := len(r.players) + 1
	if name == "" {
		name = fmt.Sprintf("Player %d", n)
	}
	p := &Player{
		ConnectionID:      connID,
		DisplayName:       name,
		PlayerNumber:      n,
		IsHost:            n == 1,
		ConnectionQuality: "unknown",
		ConnectedAt:       r.clock.Now(),
	}
	r.players = append(r.players, p)
	r.race.AddRacer(connID)
	return *p
}

// Departure describes a removed player.
type Departure struct {
	Player       Player
	RaceFinished bool // removal left only finished racers
}

// RemovePlayer removes connID and renumbers the rest densely in their
// existing order.
func (r *Room) RemovePlayer(connID string) (Player, bool) {
	d, ok := r.Leave(connID)
	return d.Player, ok
}

// Leave is RemovePlayer that also reports the race side effect.
func (r *Room) Leave(connID string) (Departure, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()

	i := r.find(connID)
	if i < 0 {
		return Departure{}, false
	}
	gone := *r.players[i]
	r.players = append(r.players[:i], r.players[i+1:]...)
	r.renumber()

	finished := r.race.RemoveRacer(connID, r.clock.Now())
	return Departure{Player: gone, RaceFinished: finished && r.gameStarted}, true
}

func (r *Room) renumber() {
	for i, p := range r.players {
		p.PlayerNumber = i + 1
		p.IsHost = i == 0
	}
}

func (r *Room) find(connID string) int {
	for i, p := range r.players {
		if p.ConnectionID == connID {
			return i
		}
	}
	return -1
}

func (r *Room) findNumber(n int) int {
	if n < 1 || n > len(r.players) {
		return -1
	}
	return n - 1
}

func (r *Room) AllCarsSelected() bool {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.allCarsSelected()
}

func (r *Room) allCarsSelected() bool {
	if len(r.players) == 0 {
		return false
	}
	for _, p := range r.players {
		if !p.CarSelected {
			return false
		}
	}
	return true
}

// SelectCar records carID for connID and reports whether every player has now chosen.
func (r *Room) SelectCar(connID, carID string) (Player, bool, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	i := r.find(connID)
	if i < 0 {
		return Player{}, false, ErrNotMember
	}
	r.players[i].SelectedCar = carID
	r.players[i].CarSelected = true
	return *r.players[i], r.allCarsSelected(), nil
}

func (r *Room) SetReady(connID string, ready bool) (Player, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	i := r.find(connID)
	if i < 0 {
		return Player{}, ErrNotMember
	}
	r.players[i].Ready = ready
	return *r.players[i], nil
}

// SelectMap records the map and the race rules that go with it.
func (r *Room) SelectMap(mapID string, cfg race.Config) (race.Config, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	if r.gameStarted {
		return r.race.Config(), ErrGameStarted
	}
	r.selectedMap = mapID
	if err := r.race.SetConfig(cfg); err != nil {
		return r.race.Config(), err
	}
	return r.race.Config(), nil
}

func (r *Room) SetGameMode(mode string) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	if r.gameStarted {
		return ErrGameStarted
	}
	r.gameMode = mode
	return nil
}

func (r *Room) SelectedMap() string {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.selectedMap
}

func (r *Room) GameStarted() bool {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.gameStarted
}

// StartGame flips the room into racing and starts the race clock.
func (r *Room) StartGame() (model.RoomSnapshot, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	if r.gameStarted {
		return model.RoomSnapshot{}, ErrGameStarted
	}
	if len(r.players) == 0 {
		return model.RoomSnapshot{}, ErrNoPlayers
	}
	if err := r.race.Start(r.clock.Now()); err != nil {
		return model.RoomSnapshot{}, err
	}
	r.gameStarted = true
	return r.snapshot(), nil
}

// ApplyInput stores the latest sanitized input for connID.
func (r *Room) ApplyInput(connID string, in model.InputState, seq uint64) (Player, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	i := r.find(connID)
	if i < 0 {
		return Player{}, ErrNotMember
	}
	p := r.players[i]
	p.Input = in
	if seq > p.LastInputSequence {
		p.LastInputSequence = seq
	}
	return *p, nil
}

func (r *Room) AcknowledgeState(connID string, seq uint64) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	i := r.find(connID)
	if i < 0 {
		return ErrNotMember
	}
	if seq > r.players[i].LastAcknowledgedState {
		r.players[i].LastAcknowledgedState = seq
	}
	return nil
}

// SetLatency stores the latest latency figures for connID, if it is a player.
func (r *Room) SetLatency(connID string, ms float64, quality string) bool {
	r.mx.Lock()
	defer r.mx.Unlock()

	i := r.find(connID)
	if i < 0 {
		return false
	}
	r.players[i].LatencyMs = ms
	r.players[i].ConnectionQuality = quality
	return true
}

// StateResult is the outcome of applying one host state update.
type StateResult struct {
	Tick         uint64
	Race         model.RaceSnapshot
	RaceFinished bool
	Errors       []error
}

// ApplyHostState copies transforms onto players and feeds checkpoint events
// into the race. Bad entries are reported and skipped.
func (r *Room) ApplyHostState(st model.HostState) StateResult {
	r.mx.Lock()
	defer r.mx.Unlock()

	var res StateResult
	for _, tr := range st.Players {
		i := r.findNumber(tr.PlayerNumber)
		if i < 0 {
			res.Errors = append(res.Errors, fmt.Errorf("%w: %d", ErrUnknownPlayer, tr.PlayerNumber))
			continue
		}
		p := r.players[i]
		if tr.Position != nil {
			p.Position = *tr.Position
		}
		if tr.Rotation != nil {
			p.Rotation = *tr.Rotation
		}
		if tr.Velocity != nil {
			p.Velocity = *tr.Velocity
		}
	}

	now := r.clock.Now()
	for _, ev := range st.Checkpoints {
		i := r.findNumber(ev.PlayerNumber)
		if i < 0 {
			res.Errors = append(res.Errors, fmt.Errorf("%w: %d", ErrUnknownPlayer, ev.PlayerNumber))
			continue
		}
		out, err := r.race.PassCheckpoint(r.players[i].ConnectionID, ev.CheckpointID, now)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		if out.RaceFinished {
			res.RaceFinished = true
		}
	}

	res.Tick = r.race.NextTick()
	res.Race = r.raceSnapshot()
	return res
}

func (r *Room) Snapshot() model.RoomSnapshot {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.snapshot()
}

// Roster returns the public view of every player in number order.
func (r *Room) Roster() []model.PlayerSnapshot {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.roster()
}

func (r *Room) roster() []model.PlayerSnapshot {
	out := make([]model.PlayerSnapshot, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p.Snapshot())
	}
	return out
}

func (r *Room) RaceSnapshot() model.RaceSnapshot {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.raceSnapshot()
}

func (r *Room) raceSnapshot() model.RaceSnapshot {
	return r.race.Snapshot(func(id string) int {
		if i := r.find(id); i >= 0 {
			return r.players[i].PlayerNumber
		}
		return 0
	})
}

func (r *Room) snapshot() model.RoomSnapshot {
	return model.RoomSnapshot{
		RoomCode:        r.code,
		Players:         r.roster(),
		SelectedMap:     r.selectedMap,
		GameMode:        r.gameMode,
		GameStarted:     r.gameStarted,
		AllCarsSelected: r.allCarsSelected(),
		Race:            r.raceSnapshot(),
		CreatedAt:       r.createdAt,
	}
}
