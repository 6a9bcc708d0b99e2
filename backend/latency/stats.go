package latency

import "math"

// WindowSize is the number of round-trip samples kept per connection.
const WindowSize = 30

type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
	QualityBad       Quality = "bad"
	QualityUnknown   Quality = "unknown"
)

// QualityFor maps an average round trip in milliseconds to a tier.
// Each band includes its lower bound and excludes its upper bound.
func QualityFor(averageMs float64) Quality {
	switch {
	case averageMs < 50:
		return QualityExcellent
	case averageMs < 100:
		return QualityGood
	case averageMs < 150:
		return QualityFair
	case averageMs < 250:
		return QualityPoor
	default:
		return QualityBad
	}
}

// Stats is a point-in-time view of a sample window. All values are milliseconds.
type Stats struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Jitter  float64 `json:"jitter"`
	Samples int     `json:"samples"`
	Quality Quality `json:"quality"`
}

// window is a fixed-capacity ring of samples.
type window struct {
	buf  [WindowSize]float64
	head int
	size int
}

func (w *window) add(ms float64) {
	if w.size == WindowSize {
		w.buf[w.head] = ms
		w.head = (w.head + 1) % WindowSize
		return
	}
	w.buf[(w.head+w.size)%WindowSize] = ms
	w.size++
}

func (w *window) stats() Stats {
	if w.size == 0 {
		return Stats{Quality: QualityUnknown}
	}
	var sum float64
	for i := 0; i < w.size; i++ {
		sum += w.buf[(w.head+i)%WindowSize]
	}
	mean := sum / float64(w.size)

	var sq float64
	for i := 0; i < w.size; i++ {
		d := w.buf[(w.head+i)%WindowSize] - mean
		sq += d * d
	}
	return Stats{
		Current: w.buf[(w.head+w.size-1)%WindowSize],
		Average: mean,
		Jitter:  math.Sqrt(sq / float64(w.size)),
		Samples: w.size,
		Quality: QualityFor(mean),
	}
}
