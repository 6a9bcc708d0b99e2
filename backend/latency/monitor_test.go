package latency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualityTiers(t *testing.T) {
	cases := []struct {
		avg  float64
		want Quality
	}{
		{0, QualityExcellent},
		{40, QualityExcellent},
		{49.9, QualityExcellent},
		{50, QualityGood},
		{99, QualityGood},
		{100, QualityFair},
		{120, QualityFair},
		{150, QualityPoor},
		{249, QualityPoor},
		{250, QualityBad},
		{900, QualityBad},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, QualityFor(tc.avg), "avg=%v", tc.avg)
	}
}

func TestRecordSampleStats(t *testing.T) {
	m := NewMonitor(Config{})
	m.RecordSample(40)
	m.RecordSample(60)
	st := m.RecordSample(50)

	assert.Equal(t, 50.0, st.Current)
	assert.Equal(t, 50.0, st.Average)
	assert.InDelta(t, 8.165, st.Jitter, 0.001)
	assert.Equal(t, 3, st.Samples)
	assert.Equal(t, QualityGood, st.Quality)
}

func TestWindowEvictsOldest(t *testing.T) {
	m := NewMonitor(Config{})
	m.RecordSample(1000)
	for i := 0; i < WindowSize; i++ {
		m.RecordSample(20)
	}
	st := m.Stats()
	assert.Equal(t, WindowSize, st.Samples)
	assert.Equal(t, 20.0, st.Average)
	assert.Equal(t, 0.0, st.Jitter)
}

func TestEmptyStats(t *testing.T) {
	st := NewMonitor(Config{}).Stats()
	assert.Equal(t, 0, st.Samples)
	assert.Equal(t, QualityUnknown, st.Quality)
}

func TestObserverFailureIsolated(t *testing.T) {
	m := NewMonitor(Config{})
	var seen []float64
	m.OnUpdate(func(Stats) { panic("boom") })
	m.OnUpdate(func(s Stats) { seen = append(seen, s.Current) })

	m.RecordSample(30)
	m.RecordSample(70)

	assert.Equal(t, []float64{30, 70}, seen)
	assert.Equal(t, 50.0, m.Stats().Average)
}

func TestProbeRoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
	m := NewMonitor(Config{Clock: clock})

	probes := make(chan int64, 4)
	prober := ProberFunc(func(_ context.Context, sentAt int64) error {
		probes <- sentAt
		return nil
	})

	m.Start(context.Background(), prober, 2*time.Second)
	defer m.Stop()

	first := receive(t, probes)
	assert.Equal(t, int64(1_000_000), first)

	clock.Advance(40 * time.Millisecond)
	st, err := m.HandleReply(first)
	require.NoError(t, err)
	assert.Equal(t, 40.0, st.Current)

	_, err = m.HandleReply(first)
	assert.True(t, errors.Is(err, ErrUnknownProbe), "duplicate reply")

	clock.Advance(2 * time.Second)
	second := receive(t, probes)
	assert.Equal(t, int64(1_002_040), second)
}

func TestStartRestartsAndStopIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMonitor(Config{Clock: clock})

	probes := make(chan int64, 4)
	prober := ProberFunc(func(_ context.Context, sentAt int64) error {
		probes <- sentAt
		return nil
	})

	m.Start(context.Background(), prober, time.Second)
	receive(t, probes)
	m.Start(context.Background(), prober, time.Second)
	receive(t, probes)
	assert.True(t, m.Running())

	m.Stop()
	m.Stop()
	assert.False(t, m.Running())
}

func TestUnansweredProbeContributesNothing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMonitor(Config{Clock: clock})

	probes := make(chan int64, 4)
	m.Start(context.Background(), ProberFunc(func(_ context.Context, sentAt int64) error {
		probes <- sentAt
		return nil
	}), time.Second)
	receive(t, probes)
	m.Stop()

	assert.Equal(t, 0, m.Stats().Samples)
}

func receive(t *testing.T, ch <-chan int64) int64 {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for probe")
		return 0
	}
}
