package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/room"
)

// EvictFunc is told about every room removed by the sweeper.
type EvictFunc func(r *room.Room)

// RunSweeper removes idle rooms every interval until ctx is done.
func (ms *MemStore) RunSweeper(ctx context.Context, wg *sync.WaitGroup, interval, maxAge time.Duration, onEvict EvictFunc) {
	ticker := ms.clock.NewTicker(interval)
	defer func() {
		ticker.Stop()
		ms.logger.Debug().Msg("sweeper stopped")
		wg.Done()
	}()

	ms.logger.Info().
		Dur("interval", interval).
		Dur("maxAge", maxAge).
		Msg("sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := ms.sweep(maxAge, onEvict); err != nil {
				ms.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

func (ms *MemStore) sweep(maxAge time.Duration, onEvict EvictFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
		}
	}()

	evicted := ms.SweepIdle(maxAge)
	for _, r := range evicted {
		ms.logger.Info().
			Str("roomCode", r.Code()).
			Time("createdAt", r.CreatedAt()).
			Msg("idle room expired")
		if onEvict != nil {
			onEvict(r)
		}
	}
	return nil
}
