package input

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
)

var receivedAt = time.UnixMilli(1_700_000_000_000)

func TestValidateSteeringOutOfRange(t *testing.T) {
	v := NewValidator(ValidatorConfig{})

	res := v.Validate(RawSample{Steering: 2.5, Brake: false, Timestamp: 1000.0}, receivedAt)
	assert.False(t, res.Valid())
	assert.Equal(t, 1.0, res.Sanitized.Steering)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "steering", res.Errors[0].Field)

	res = v.Validate(RawSample{Steering: -3.0, Brake: false, Timestamp: 1000.0}, receivedAt)
	assert.False(t, res.Valid())
	assert.Equal(t, -1.0, res.Sanitized.Steering)
}

func TestValidateBrakeCoercion(t *testing.T) {
	v := NewValidator(ValidatorConfig{})

	res := v.Validate(RawSample{Steering: 0.0, Brake: "yes", Timestamp: 1000.0}, receivedAt)
	assert.False(t, res.Valid())
	assert.True(t, res.Sanitized.Brake)
	assert.True(t, errors.Is(res.Err(), model.ErrValidation))

	res = v.Validate(RawSample{Steering: 0.0, Brake: nil, Timestamp: 1000.0}, receivedAt)
	assert.False(t, res.Valid())
	assert.False(t, res.Sanitized.Brake)
}

func TestValidateNonNumericSteering(t *testing.T) {
	v := NewValidator(ValidatorConfig{})

	res := v.Validate(RawSample{Steering: "left", Brake: true}, receivedAt)
	assert.False(t, res.Valid())
	assert.Equal(t, 0.0, res.Sanitized.Steering)

	res = v.Validate(RawSample{Steering: "0.5", Brake: true}, receivedAt)
	assert.False(t, res.Valid())
	assert.Equal(t, 0.5, res.Sanitized.Steering)
}

func TestValidateTimestampDefaults(t *testing.T) {
	v := NewValidator(ValidatorConfig{})

	res := v.Validate(RawSample{Steering: 0.1, Brake: false}, receivedAt)
	assert.True(t, res.Valid())
	assert.Equal(t, receivedAt.UnixMilli(), res.Sanitized.Timestamp)

	res = v.Validate(RawSample{Steering: 0.1, Brake: false, Timestamp: -5.0}, receivedAt)
	assert.False(t, res.Valid())
	assert.Equal(t, receivedAt.UnixMilli(), res.Sanitized.Timestamp)

	res = v.Validate(RawSample{Steering: 0.1, Brake: false, Timestamp: "soon"}, receivedAt)
	assert.False(t, res.Valid())
	assert.Equal(t, receivedAt.UnixMilli(), res.Sanitized.Timestamp)
}

func TestValidateTimestampContinuity(t *testing.T) {
	v := NewValidator(ValidatorConfig{MaxForwardDelta: time.Second})

	require.True(t, v.Validate(RawSample{Steering: 0.0, Brake: false, Timestamp: 5000.0}, receivedAt).Valid())
	require.True(t, v.Validate(RawSample{Steering: 0.0, Brake: false, Timestamp: 5016.0}, receivedAt).Valid())

	res := v.Validate(RawSample{Steering: 0.0, Brake: false, Timestamp: 4000.0}, receivedAt)
	assert.False(t, res.Valid(), "regressing timestamp")

	res = v.Validate(RawSample{Steering: 0.0, Brake: false, Timestamp: 9000.0}, receivedAt)
	assert.False(t, res.Valid(), "implausible jump")

	// rejected samples did not move the continuity anchor
	res = v.Validate(RawSample{Steering: 0.0, Brake: false, Timestamp: 5032.0}, receivedAt)
	assert.True(t, res.Valid())
}

func TestValidateBadSampleDoesNotMoveAnchor(t *testing.T) {
	v := NewValidator(ValidatorConfig{MaxForwardDelta: time.Second})

	require.True(t, v.Validate(RawSample{Steering: 0.0, Brake: false, Timestamp: 1000.0}, receivedAt).Valid())
	// invalid steering with a far-future timestamp must not become the new anchor
	require.False(t, v.Validate(RawSample{Steering: 9.0, Brake: false, Timestamp: 90000.0}, receivedAt).Valid())
	assert.True(t, v.Validate(RawSample{Steering: 0.0, Brake: false, Timestamp: 1500.0}, receivedAt).Valid())
}

func TestValidateDecodedJSON(t *testing.T) {
	var raw RawSample
	require.NoError(t, json.Unmarshal([]byte(`{"steering":-0.25,"brake":true,"timestamp":1234}`), &raw))

	res := NewValidator(ValidatorConfig{}).Validate(raw, receivedAt)
	require.True(t, res.Valid(), res.Errors)
	assert.Equal(t, Sample{Steering: -0.25, Brake: true, Timestamp: 1234}, res.Sanitized)
}
