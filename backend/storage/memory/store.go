package memory

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
	"github.com/adithyaathreya2264/beach-buggy-racing/backend/race"
	"github.com/adithyaathreya2264/beach-buggy-racing/backend/room"
)

const (
	defaultMaxCodeAttempts = 100

	codeMin = 100000
	codeMax = 999999
)

var (
	ErrCodeSpaceExhausted = fmt.Errorf("unable to allocate a free room code: %w", model.ErrResourceExhausted)
)

// CodeSource draws a candidate 6-digit room code.
type CodeSource func() string

func RandomCode() string {
	return strconv.Itoa(codeMin + rand.IntN(codeMax-codeMin+1))
}

type Config struct {
	Logger          *zerolog.Logger
	Clock           clockwork.Clock
	Codes           CodeSource
	MaxCodeAttempts int
}

// MemStore is the in-process room table keyed by room code.
type MemStore struct {
	logger      zerolog.Logger
	clock       clockwork.Clock
	codes       CodeSource
	maxAttempts int

	mx *sync.RWMutex
	db map[string]*room.Room
}

func NewMemStore(cfg Config) *MemStore {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Codes == nil {
		cfg.Codes = RandomCode
	}
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = defaultMaxCodeAttempts
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "room-store").Logger()
	}
	return &MemStore{
		logger:      logger,
		clock:       cfg.Clock,
		codes:       cfg.Codes,
		maxAttempts: cfg.MaxCodeAttempts,
		mx:          &sync.RWMutex{},
		db:          make(map[string]*room.Room),
	}
}

// CreateRoom registers a new room owned by hostConnID under a fresh code.
func (ms *MemStore) CreateRoom(hostConnID string) (*room.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	for i := 0; i < ms.maxAttempts; i++ {
		code := ms.codes()
		if _, taken := ms.db[code]; taken {
			continue
		}
		r := room.New(room.Config{
			Code:             code,
			HostConnectionID: hostConnID,
			Race:             race.DefaultConfig(),
			Clock:            ms.clock,
		})
		ms.db[code] = r
		ms.logger.Debug().
			Str("roomCode", code).
			Str("host", hostConnID).
			Msg("room created")
		return r, nil
	}
	return nil, ErrCodeSpaceExhausted
}

func (ms *MemStore) GetRoom(code string) (*room.Room, bool) {
	ms.mx.RLock()
	defer ms.mx.RUnlock()

	r, ok := ms.db[code]
	return r, ok
}

// DeleteRoom removes the room and reports whether it was present.
func (ms *MemStore) DeleteRoom(code string) bool {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, ok := ms.db[code]; !ok {
		return false
	}
	delete(ms.db, code)
	ms.logger.Debug().Str("roomCode", code).Msg("room deleted")
	return true
}

// FindRoomByConnection returns the room connID hosts or plays in.
func (ms *MemStore) FindRoomByConnection(connID string) (*room.Room, bool) {
	ms.mx.RLock()
	defer ms.mx.RUnlock()

	for _, r := range ms.db {
		if r.IsHostConnection(connID) {
			return r, true
		}
	}
	for _, r := range ms.db {
		if r.HasConnection(connID) {
			return r, true
		}
	}
	return nil, false
}

func (ms *MemStore) Len() int {
	ms.mx.RLock()
	defer ms.mx.RUnlock()
	return len(ms.db)
}

// SweepIdle removes rooms without players older than maxAge and returns them.
func (ms *MemStore) SweepIdle(maxAge time.Duration) []*room.Room {
	now := ms.clock.Now()

	ms.mx.Lock()
	defer ms.mx.Unlock()

	var evicted []*room.Room
	for code, r := range ms.db {
		if r.PlayerCount() == 0 && now.Sub(r.CreatedAt()) > maxAge {
			delete(ms.db, code)
			evicted = append(evicted, r)
		}
	}
	return evicted
}
