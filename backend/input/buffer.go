package input

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultBufferCapacity = 60 // ~1s at 60 Hz

// MaxSequence is the highest sequence a sender may use.
const MaxSequence = math.MaxInt64

var (
	ErrStaleSequence = errors.New("stale input sequence")
	ErrSequenceRange = errors.New("input sequence out of range")
)

// SequencedInput is a sample tagged with its per-connection sequence number.
type SequencedInput struct {
	Sequence   uint64    `json:"sequence"`
	Input      Sample    `json:"input"`
	CapturedAt time.Time `json:"capturedAt"`
}

type BufferConfig struct {
	Capacity int
	Clock    clockwork.Clock
}

// Buffer is a fixed-capacity sliding window of sequenced inputs. When full,
// the oldest entry is evicted; there is no backpressure.
type Buffer struct {
	mx    sync.Mutex
	clock clockwork.Clock
	ring  []SequencedInput
	head  int
	size  int
	next  uint64
	acked uint64
}

func NewBuffer(cfg BufferConfig) *Buffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultBufferCapacity
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Buffer{
		clock: cfg.Clock,
		ring:  make([]SequencedInput, cfg.Capacity),
		next:  1,
	}
}

// AddInput assigns the next sequence number to sample and appends it.
func (b *Buffer) AddInput(sample Sample) SequencedInput {
	b.mx.Lock()
	defer b.mx.Unlock()

	in := SequencedInput{Sequence: b.next, Input: sample, CapturedAt: b.clock.Now()}
	b.append(in)
	return in
}

// Push appends a sample under a sequence chosen by the sender. Sequences must
// strictly increase; anything else is rejected as stale.
func (b *Buffer) Push(seq uint64, sample Sample) (SequencedInput, error) {
	b.mx.Lock()
	defer b.mx.Unlock()

	if err := b.check(seq); err != nil {
		return SequencedInput{}, err
	}
	in := SequencedInput{Sequence: seq, Input: sample, CapturedAt: b.clock.Now()}
	b.append(in)
	return in, nil
}

// Check reports whether Push would accept seq right now.
func (b *Buffer) Check(seq uint64) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.check(seq)
}

func (b *Buffer) check(seq uint64) error {
	if seq > MaxSequence {
		return fmt.Errorf("%w: %d", ErrSequenceRange, seq)
	}
	if seq < b.next {
		return fmt.Errorf("%w: got %d, want >= %d", ErrStaleSequence, seq, b.next)
	}
	return nil
}

func (b *Buffer) append(in SequencedInput) {
	c := len(b.ring)
	if b.size == c {
		b.head = (b.head + 1) % c
		b.size--
	}
	b.ring[(b.head+b.size)%c] = in
	b.size++
	b.next = in.Sequence + 1
}

// GetInputsSince returns buffered inputs with Sequence > seq, oldest first.
func (b *Buffer) GetInputsSince(seq uint64) []SequencedInput {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.since(seq)
}

func (b *Buffer) since(seq uint64) []SequencedInput {
	out := make([]SequencedInput, 0, b.size)
	for i := 0; i < b.size; i++ {
		in := b.ring[(b.head+i)%len(b.ring)]
		if in.Sequence > seq {
			out = append(out, in)
		}
	}
	return out
}

// Acknowledge records seq as processed and drops every entry at or below it.
// The watermark never moves backwards and never passes the last sequence.
func (b *Buffer) Acknowledge(seq uint64) {
	b.mx.Lock()
	defer b.mx.Unlock()

	seq = min(seq, b.next-1)
	if seq > b.acked {
		b.acked = seq
	}
	for b.size > 0 && b.ring[b.head].Sequence <= b.acked {
		b.ring[b.head] = SequencedInput{}
		b.head = (b.head + 1) % len(b.ring)
		b.size--
	}
}

func (b *Buffer) GetUnacknowledgedInputs() []SequencedInput {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.since(b.acked)
}

func (b *Buffer) LastAcknowledged() uint64 {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.acked
}

// LastSequence is the highest sequence handed out or accepted so far.
func (b *Buffer) LastSequence() uint64 {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.next - 1
}

func (b *Buffer) Size() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.size
}

// Clear empties the buffer and restarts sequencing at 1.
func (b *Buffer) Clear() {
	b.mx.Lock()
	defer b.mx.Unlock()
	for i := range b.ring {
		b.ring[i] = SequencedInput{}
	}
	b.head, b.size = 0, 0
	b.next, b.acked = 1, 0
}
