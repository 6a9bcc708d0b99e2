package _switch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
)

func newTestSwitch() *Switch {
	logger := zerolog.Nop()
	sw := NewSwitch(&logger)
	sw.fwdTimout = 20 * time.Millisecond
	return sw
}

func TestSendToEndpoint(t *testing.T) {
	sw := newTestSwitch()
	wire := model.NewWire()
	require.NoError(t, sw.Connect("a", wire))

	ok := sw.Send(context.Background(), "a", model.Envelope{Type: "hello"})
	require.True(t, ok)
	assert.Equal(t, "hello", (<-wire.TX).Type)

	assert.False(t, sw.Send(context.Background(), "missing", model.Envelope{Type: "hello"}))
}

func TestBroadcastSkipsExcept(t *testing.T) {
	sw := newTestSwitch()
	a, b, c := model.NewWire(), model.NewWire(), model.NewWire()
	require.NoError(t, sw.Connect("a", a))
	require.NoError(t, sw.Connect("b", b))
	require.NoError(t, sw.Connect("c", c))
	sw.Join("482913", "a")
	sw.Join("482913", "b")

	ok := sw.Broadcast(context.Background(), "482913", model.Envelope{Type: "evt"}, "a")
	require.True(t, ok)

	assert.Len(t, a.TX, 0)
	assert.Len(t, b.TX, 1)
	assert.Len(t, c.TX, 0, "not a member")
}

func TestLeaveAndCloseRoom(t *testing.T) {
	sw := newTestSwitch()
	a, b := model.NewWire(), model.NewWire()
	require.NoError(t, sw.Connect("a", a))
	require.NoError(t, sw.Connect("b", b))
	sw.Join("r", "a")
	sw.Join("r", "b")

	sw.Leave("r", "b")
	require.True(t, sw.Broadcast(context.Background(), "r", model.Envelope{Type: "evt"}, ""))
	assert.Len(t, a.TX, 1)
	assert.Len(t, b.TX, 0, "left the room")
	<-a.TX

	sw.CloseRoom("r")
	assert.False(t, sw.Broadcast(context.Background(), "r", model.Envelope{Type: "evt"}, ""))
	assert.True(t, sw.Send(context.Background(), "a", model.Envelope{Type: "still-connected"}))
}

func TestDisconnectRemovesMembership(t *testing.T) {
	sw := newTestSwitch()
	require.NoError(t, sw.Connect("a", model.NewWire()))
	sw.Join("r", "a")

	require.NoError(t, sw.Disconnect("a"))
	assert.False(t, sw.Broadcast(context.Background(), "r", model.Envelope{Type: "evt"}, ""))
	assert.False(t, sw.Send(context.Background(), "a", model.Envelope{Type: "evt"}))
}

func TestDeadEndpointTimesOut(t *testing.T) {
	sw := newTestSwitch()
	wire := model.Wire{RX: make(chan model.Envelope), TX: make(chan model.Envelope)}
	require.NoError(t, sw.Connect("a", wire))

	start := time.Now()
	assert.False(t, sw.Send(context.Background(), "a", model.Envelope{Type: "evt"}))
	assert.Less(t, time.Since(start), time.Second)
}
