package input

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
)

const (
	DefaultMaxForwardDelta = 1000 * time.Millisecond
	DefaultMinDelta        = 0
)

// Sample is a sanitized controller input sample.
type Sample struct {
	Steering  float64 `json:"steering"`
	Brake     bool    `json:"brake"`
	Timestamp int64   `json:"timestamp"` // client milliseconds
}

func (s Sample) State() model.InputState {
	return model.InputState{Steering: s.Steering, Brake: s.Brake, Timestamp: s.Timestamp}
}

// RawSample is a sample as decoded off the wire, before any type checks.
type RawSample struct {
	Steering  any `json:"steering"`
	Brake     any `json:"brake"`
	Timestamp any `json:"timestamp"`
}

type FieldError = model.FieldError

// Result carries both verdicts: Errors tells whether the sample can be
// trusted, Sanitized is always safe to apply.
type Result struct {
	Errors    []FieldError
	Sanitized Sample
}

func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Err joins the field errors into a single validation error, or nil.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	parts := make([]string, 0, len(r.Errors))
	for _, fe := range r.Errors {
		parts = append(parts, fe.Error())
	}
	return fmt.Errorf("%w: %s", model.ErrValidation, strings.Join(parts, "; "))
}

type ValidatorConfig struct {
	MaxForwardDelta time.Duration
	MinDelta        time.Duration
}

// Validator checks samples from a single sender. The only state it keeps is
// the last accepted timestamp, which moves only on fully valid samples.
type Validator struct {
	mx            sync.Mutex
	maxForward    float64
	minDelta      float64
	lastTimestamp float64
	hasLast       bool
}

func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.MaxForwardDelta <= 0 {
		cfg.MaxForwardDelta = DefaultMaxForwardDelta
	}
	if cfg.MinDelta < 0 {
		cfg.MinDelta = DefaultMinDelta
	}
	return &Validator{
		maxForward: float64(cfg.MaxForwardDelta.Milliseconds()),
		minDelta:   float64(cfg.MinDelta.Milliseconds()),
	}
}

// Validate checks raw against the field rules and timestamp continuity.
// receivedAt is used when the sample carries no timestamp.
func (v *Validator) Validate(raw RawSample, receivedAt time.Time) Result {
	var res Result

	steering, ok := toNumber(raw.Steering)
	switch {
	case !ok:
		res.Errors = append(res.Errors, FieldError{Field: "steering", Reason: "must be a number"})
	case steering < -1 || steering > 1:
		res.Errors = append(res.Errors, FieldError{Field: "steering", Reason: "must be within [-1, 1]"})
	}
	res.Sanitized.Steering = clamp(steering, -1, 1)

	brake, isBool := raw.Brake.(bool)
	if !isBool {
		res.Errors = append(res.Errors, FieldError{Field: "brake", Reason: "must be a boolean"})
		brake = truthy(raw.Brake)
	}
	res.Sanitized.Brake = brake

	ts := float64(receivedAt.UnixMilli())
	if raw.Timestamp != nil {
		n, isNum := toNumber(raw.Timestamp)
		switch {
		case !isNum:
			res.Errors = append(res.Errors, FieldError{Field: "timestamp", Reason: "must be a number"})
		case n < 0:
			res.Errors = append(res.Errors, FieldError{Field: "timestamp", Reason: "must not be negative"})
		default:
			ts = n
		}
	}
	res.Sanitized.Timestamp = int64(ts)

	v.mx.Lock()
	defer v.mx.Unlock()

	if len(res.Errors) == 0 && raw.Timestamp != nil && v.hasLast {
		delta := ts - v.lastTimestamp
		if delta < v.minDelta {
			res.Errors = append(res.Errors, FieldError{Field: "timestamp", Reason: "regressed"})
		} else if delta > v.maxForward {
			res.Errors = append(res.Errors, FieldError{Field: "timestamp", Reason: "jumped too far ahead"})
		}
	}
	if len(res.Errors) == 0 {
		v.lastTimestamp = ts
		v.hasLast = true
	}
	return res
}

// Reset forgets timestamp continuity, e.g. when a new race starts.
func (v *Validator) Reset() {
	v.mx.Lock()
	v.hasLast = false
	v.lastTimestamp = 0
	v.mx.Unlock()
}

func toNumber(x any) (float64, bool) {
	var f float64
	switch n := x.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return 0, false
		}
		// numeric strings are coerced for the sanitized value but never trusted
		return f, false
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func truthy(x any) bool {
	switch b := x.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	case float64:
		return b != 0 && !math.IsNaN(b)
	case int:
		return b != 0
	default:
		return true
	}
}

func clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}
