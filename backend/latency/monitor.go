package latency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval = 2 * time.Second

	// probes older than this many intervals are forgotten
	pendingProbeIntervals = 5
)

var ErrUnknownProbe = errors.New("reply does not match a pending probe")

// Prober delivers a probe stamped with the local send time to the peer.
// The peer's reply is fed back through Monitor.HandleReply.
type Prober interface {
	SendProbe(ctx context.Context, sentAtMs int64) error
}

type ProberFunc func(ctx context.Context, sentAtMs int64) error

func (f ProberFunc) SendProbe(ctx context.Context, sentAtMs int64) error {
	return f(ctx, sentAtMs)
}

type Observer func(Stats)

type Config struct {
	Logger *zerolog.Logger
	Clock  clockwork.Clock
}

// Monitor measures round trips for one connection.
type Monitor struct {
	logger zerolog.Logger
	clock  clockwork.Clock

	mx       sync.Mutex
	win      window
	pending  map[int64]struct{}
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	obsMx     sync.RWMutex
	observers []Observer
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "latency-monitor").Logger()
	}
	return &Monitor{
		logger:  logger,
		clock:   cfg.Clock,
		pending: make(map[int64]struct{}),
	}
}

// Start begins probing every interval, immediately sending the first probe.
// A running monitor is stopped first.
func (m *Monitor) Start(ctx context.Context, p Prober, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mx.Lock()
	m.cancel = cancel
	m.done = done
	m.interval = interval
	m.mx.Unlock()

	ticker := m.clock.NewTicker(interval)
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		m.probe(ctx, p)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				m.probe(ctx, p)
			}
		}
	}()
}

// Stop cancels probing and waits for the probe loop to exit. Safe to call
// on a stopped monitor.
func (m *Monitor) Stop() {
	m.mx.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mx.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) Running() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.cancel != nil
}

func (m *Monitor) probe(ctx context.Context, p Prober) {
	now := m.clock.Now()
	sentAt := now.UnixMilli()

	m.mx.Lock()
	horizon := now.Add(-pendingProbeIntervals * m.interval).UnixMilli()
	for ts := range m.pending {
		if ts < horizon {
			delete(m.pending, ts)
		}
	}
	m.pending[sentAt] = struct{}{}
	m.mx.Unlock()

	if err := p.SendProbe(ctx, sentAt); err != nil {
		m.mx.Lock()
		delete(m.pending, sentAt)
		m.mx.Unlock()
		m.logger.Debug().Err(err).Msg("latency probe not sent")
		return
	}
	m.logger.Trace().Int64("sentAt", sentAt).Msg("latency probe sent")
}

// HandleReply completes the probe sent at sentAtMs.
func (m *Monitor) HandleReply(sentAtMs int64) (Stats, error) {
	m.mx.Lock()
	if _, ok := m.pending[sentAtMs]; !ok {
		m.mx.Unlock()
		return Stats{}, fmt.Errorf("%w: %d", ErrUnknownProbe, sentAtMs)
	}
	delete(m.pending, sentAtMs)
	m.mx.Unlock()

	rtt := m.clock.Now().UnixMilli() - sentAtMs
	if rtt < 0 {
		rtt = 0
	}
	return m.RecordSample(float64(rtt)), nil
}

// RecordSample appends a round trip in milliseconds and notifies observers.
func (m *Monitor) RecordSample(rttMs float64) Stats {
	m.mx.Lock()
	m.win.add(rttMs)
	st := m.win.stats()
	m.mx.Unlock()

	m.notify(st)
	return st
}

func (m *Monitor) Stats() Stats {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.win.stats()
}

// OnUpdate registers an observer called after every recomputation.
func (m *Monitor) OnUpdate(o Observer) {
	m.obsMx.Lock()
	m.observers = append(m.observers, o)
	m.obsMx.Unlock()
}

func (m *Monitor) notify(st Stats) {
	m.obsMx.RLock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.obsMx.RUnlock()

	for i, o := range observers {
		m.call(i, o, st)
	}
}

func (m *Monitor) call(idx int, o Observer, st Stats) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Int("observer", idx).
				Interface("panic", r).
				Msg("latency observer failed")
		}
	}()
	o(st)
}
