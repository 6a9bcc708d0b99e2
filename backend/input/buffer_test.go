package input

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequences(in []SequencedInput) []uint64 {
	out := make([]uint64, 0, len(in))
	for _, i := range in {
		out = append(out, i.Sequence)
	}
	return out
}

func seqRange(from, to uint64) []uint64 {
	out := make([]uint64, 0, to-from+1)
	for s := from; s <= to; s++ {
		out = append(out, s)
	}
	return out
}

func TestBufferEvictsOldest(t *testing.T) {
	b := NewBuffer(BufferConfig{Capacity: 60})
	for i := 0; i < 61; i++ {
		b.AddInput(Sample{Steering: 0.5})
	}

	assert.Equal(t, 60, b.Size())
	assert.Equal(t, seqRange(2, 61), sequences(b.GetInputsSince(0)))

	b.Acknowledge(50)
	assert.Equal(t, seqRange(51, 61), sequences(b.GetInputsSince(0)))
	assert.Equal(t, seqRange(51, 61), sequences(b.GetUnacknowledgedInputs()))
	assert.Equal(t, uint64(50), b.LastAcknowledged())
}

func TestBufferSequencesStartAtOne(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(100, 0))
	b := NewBuffer(BufferConfig{Clock: clock})

	first := b.AddInput(Sample{})
	clock.Advance(16 * time.Millisecond)
	second := b.AddInput(Sample{})

	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, uint64(2), second.Sequence)
	assert.Equal(t, 16*time.Millisecond, second.CapturedAt.Sub(first.CapturedAt))
}

func TestBufferInputsSince(t *testing.T) {
	b := NewBuffer(BufferConfig{Capacity: 10})
	for i := 0; i < 5; i++ {
		b.AddInput(Sample{})
	}
	assert.Equal(t, []uint64{4, 5}, sequences(b.GetInputsSince(3)))
	assert.Empty(t, b.GetInputsSince(5))
}

func TestBufferAcknowledgeWatermark(t *testing.T) {
	b := NewBuffer(BufferConfig{Capacity: 10})
	for i := 0; i < 5; i++ {
		b.AddInput(Sample{})
	}
	b.Acknowledge(3)
	b.Acknowledge(1) // never moves backwards

	assert.Equal(t, uint64(3), b.LastAcknowledged())
	assert.Equal(t, []uint64{4, 5}, sequences(b.GetUnacknowledgedInputs()))

	b.Acknowledge(8) // ahead of anything sent yet
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, uint64(5), b.LastAcknowledged())
	in := b.AddInput(Sample{})
	assert.Equal(t, uint64(6), in.Sequence)
	assert.Equal(t, []uint64{6}, sequences(b.GetUnacknowledgedInputs()))
}

func TestBufferAcknowledgeBeforeAnyInput(t *testing.T) {
	b := NewBuffer(BufferConfig{Capacity: 10})
	b.Acknowledge(100)
	assert.Equal(t, uint64(0), b.LastAcknowledged())

	b.AddInput(Sample{})
	b.AddInput(Sample{})
	assert.Equal(t, []uint64{1, 2}, sequences(b.GetUnacknowledgedInputs()))
	assert.Equal(t, 2, b.Size())
}

func TestBufferPushRejectsStale(t *testing.T) {
	b := NewBuffer(BufferConfig{Capacity: 10})

	_, err := b.Push(10, Sample{})
	require.NoError(t, err)
	_, err = b.Push(10, Sample{})
	assert.True(t, errors.Is(err, ErrStaleSequence))
	_, err = b.Push(7, Sample{})
	assert.True(t, errors.Is(err, ErrStaleSequence))

	in, err := b.Push(12, Sample{})
	require.NoError(t, err)
	assert.Equal(t, uint64(12), in.Sequence)
	assert.Equal(t, uint64(12), b.LastSequence())
}

func TestBufferPushRejectsOutOfRange(t *testing.T) {
	b := NewBuffer(BufferConfig{Capacity: 10})

	_, err := b.Push(math.MaxUint64, Sample{})
	assert.True(t, errors.Is(err, ErrSequenceRange))
	_, err = b.Push(MaxSequence+1, Sample{})
	assert.True(t, errors.Is(err, ErrSequenceRange))

	// the rejected sequence must not move the window
	in, err := b.Push(1, Sample{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), in.Sequence)

	_, err = b.Push(MaxSequence, Sample{})
	require.NoError(t, err)
	_, err = b.Push(2, Sample{})
	assert.True(t, errors.Is(err, ErrStaleSequence))
	assert.Equal(t, uint64(MaxSequence), b.LastSequence())
}

func TestBufferCheckMatchesPush(t *testing.T) {
	b := NewBuffer(BufferConfig{Capacity: 10})
	_, err := b.Push(5, Sample{})
	require.NoError(t, err)

	assert.True(t, errors.Is(b.Check(5), ErrStaleSequence))
	assert.True(t, errors.Is(b.Check(math.MaxUint64), ErrSequenceRange))
	assert.NoError(t, b.Check(6))
	assert.Equal(t, 1, b.Size(), "Check does not append")
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer(BufferConfig{Capacity: 3})
	for i := 0; i < 5; i++ {
		b.AddInput(Sample{})
	}
	b.Acknowledge(4)
	b.Clear()

	assert.Equal(t, 0, b.Size())
	assert.Equal(t, uint64(0), b.LastAcknowledged())
	assert.Equal(t, uint64(1), b.AddInput(Sample{}).Sequence)
}
