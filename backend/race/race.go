package race

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
)

const (
	DefaultMaxLaps           = 3
	DefaultCheckpointsPerLap = 5
)

var (
	ErrNotStarted     = errors.New("race not started")
	ErrAlreadyStarted = errors.New("race already started")
	ErrUnknownRacer   = fmt.Errorf("racer is not tracked: %w", model.ErrNotFound)
	ErrBadCheckpoint  = fmt.Errorf("checkpoint id must not be negative: %w", model.ErrValidation)
)

type Config struct {
	MaxLaps           int `yaml:"laps"        json:"maxLaps"`
	CheckpointsPerLap int `yaml:"checkpoints" json:"checkpointsPerLap"`
}

func DefaultConfig() Config {
	return Config{MaxLaps: DefaultMaxLaps, CheckpointsPerLap: DefaultCheckpointsPerLap}
}

func (c Config) normalized() Config {
	if c.MaxLaps <= 0 {
		c.MaxLaps = DefaultMaxLaps
	}
	if c.CheckpointsPerLap <= 0 {
		c.CheckpointsPerLap = DefaultCheckpointsPerLap
	}
	return c
}

// Progress is one racer's state. A racer is Racing until Finished, which is terminal.
type Progress struct {
	ID           string
	CurrentLap   int
	Checkpoints  []int // ordered set, cleared every lap
	RacePosition int
	Finished     bool
	FinishTime   time.Duration // valid only when Finished
}

func (p *Progress) hasCheckpoint(id int) bool {
	return slices.Contains(p.Checkpoints, id)
}

// Outcome describes what a checkpoint event changed.
type Outcome struct {
	Counted      bool // false for duplicates and finished racers
	LapCompleted bool
	Finished     bool // the racer finished on this event
	RaceFinished bool // every tracked racer is now finished, first time only
}

// State derives lap, checkpoint, finish and position progress for one room.
// It is not safe for concurrent use; the owning room serializes access.
type State struct {
	cfg     Config
	racers  map[string]*Progress
	order   []string // current ranking; ties keep their previous relative order
	started bool
	startAt time.Time
	endAt   time.Time
	tick    uint64
}

func New(cfg Config) *State {
	return &State{
		cfg:    cfg.normalized(),
		racers: make(map[string]*Progress),
	}
}

func (s *State) Config() Config { return s.cfg }

// SetConfig replaces laps and checkpoints; it only applies before the start.
func (s *State) SetConfig(cfg Config) error {
	if s.started {
		return ErrAlreadyStarted
	}
	s.cfg = cfg.normalized()
	return nil
}

// AddRacer starts tracking id on lap 1. Adding a tracked racer is a no-op.
func (s *State) AddRacer(id string) {
	if _, ok := s.racers[id]; ok {
		return
	}
	s.racers[id] = &Progress{ID: id, CurrentLap: 1}
	s.order = append(s.order, id)
	s.recompute()
}

// RemoveRacer stops tracking id and re-ranks the rest. It reports whether
// the removal left only finished racers, which ends the race.
func (s *State) RemoveRacer(id string, now time.Time) bool {
	if _, ok := s.racers[id]; !ok {
		return false
	}
	delete(s.racers, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	s.recompute()
	return s.checkCompletion(now)
}

// Start resets every racer to lap 1 and stamps the start time.
func (s *State) Start(now time.Time) error {
	if s.started {
		return ErrAlreadyStarted
	}
	for _, p := range s.racers {
		*p = Progress{ID: p.ID, CurrentLap: 1}
	}
	s.started = true
	s.startAt = now
	s.endAt = time.Time{}
	s.tick = 0
	s.recompute()
	return nil
}

// Finished reports whether the race end has been recorded.
func (s *State) Finished() bool { return !s.endAt.IsZero() }

// PassCheckpoint records checkpoint for racer id. Duplicate checkpoints within
// a lap and events for finished racers change nothing.
func (s *State) PassCheckpoint(id string, checkpoint int, now time.Time) (Outcome, error) {
	var out Outcome
	if !s.started {
		return out, ErrNotStarted
	}
	if checkpoint < 0 {
		return out, ErrBadCheckpoint
	}
	p, ok := s.racers[id]
	if !ok {
		return out, ErrUnknownRacer
	}
	if p.Finished || p.hasCheckpoint(checkpoint) {
		return out, nil
	}

	out.Counted = true
	p.Checkpoints = append(p.Checkpoints, checkpoint)
	if len(p.Checkpoints) >= s.cfg.CheckpointsPerLap {
		out.LapCompleted = true
		p.CurrentLap++
		p.Checkpoints = nil
		if p.CurrentLap > s.cfg.MaxLaps {
			p.Finished = true
			p.FinishTime = now.Sub(s.startAt)
			out.Finished = true
		}
	}
	s.recompute()
	out.RaceFinished = s.checkCompletion(now)
	return out, nil
}

func (s *State) checkCompletion(now time.Time) bool {
	if !s.started || !s.endAt.IsZero() || len(s.racers) == 0 {
		return false
	}
	for _, p := range s.racers {
		if !p.Finished {
			return false
		}
	}
	s.endAt = now
	return true
}

// recompute re-ranks by lap desc, then checkpoints passed desc.
func (s *State) recompute() {
	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.racers[s.order[i]], s.racers[s.order[j]]
		if a.CurrentLap != b.CurrentLap {
			return a.CurrentLap > b.CurrentLap
		}
		return len(a.Checkpoints) > len(b.Checkpoints)
	})
	for i, id := range s.order {
		s.racers[id].RacePosition = i + 1
	}
}

// NextTick advances the simulation tick counter and returns the new value.
func (s *State) NextTick() uint64 {
	s.tick++
	return s.tick
}

// Progress returns a copy of one racer's progress.
func (s *State) Progress(id string) (Progress, bool) {
	p, ok := s.racers[id]
	if !ok {
		return Progress{}, false
	}
	cp := *p
	cp.Checkpoints = slices.Clone(p.Checkpoints)
	return cp, true
}

// Standings returns copies of all racers in ranking order.
func (s *State) Standings() []Progress {
	out := make([]Progress, 0, len(s.order))
	for _, id := range s.order {
		p, _ := s.Progress(id)
		out = append(out, p)
	}
	return out
}

// Snapshot projects the state for transmission. playerNumber maps racer ids
// to their current public player numbers.
func (s *State) Snapshot(playerNumber func(id string) int) model.RaceSnapshot {
	snap := model.RaceSnapshot{
		MaxLaps:           s.cfg.MaxLaps,
		CheckpointsPerLap: s.cfg.CheckpointsPerLap,
		Tick:              s.tick,
		Players:           make([]model.RaceProgress, 0, len(s.order)),
	}
	if s.started {
		start := s.startAt.UnixMilli()
		snap.RaceStartTime = &start
	}
	if !s.endAt.IsZero() {
		end := s.endAt.UnixMilli()
		snap.RaceEndTime = &end
	}
	for _, p := range s.Standings() {
		rp := model.RaceProgress{
			PlayerNumber:      playerNumber(p.ID),
			CurrentLap:        p.CurrentLap,
			CheckpointsPassed: p.Checkpoints,
			RacePosition:      p.RacePosition,
			Finished:          p.Finished,
		}
		if rp.CheckpointsPassed == nil {
			rp.CheckpointsPassed = []int{}
		}
		if p.Finished {
			ms := p.FinishTime.Milliseconds()
			rp.FinishTime = &ms
		}
		snap.Players = append(snap.Players, rp)
	}
	return snap
}
