package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adithyaathreya2264/beach-buggy-racing/backend/model"
)

const (
	maxFrameSize = 64 << 10
	writeWait    = 5 * time.Second
	closeWait    = 2 * time.Second

	// the client has pongWait - pingInterval to answer a ping
	pingInterval = 5 * time.Second
	pongWait     = 7 * time.Second
)

var (
	errMalformedFrame   = errors.New("malformed frame")
	errUnsupportedFrame = errors.New("unsupported frame")
)

// peer pumps envelopes between one websocket connection and its session wire.
// Data frames are written by the write pump only. Pings and close frames go
// through WriteControl, which may run concurrently with it.
type peer struct {
	conn   *websocket.Conn
	wire   model.Wire
	logger zerolog.Logger
}

// run blocks until either side of the connection is done, then closes it.
// The close code is GoingAway when ctx was canceled from outside.
func (p *peer) run(ctx context.Context) {
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		readErr <- p.readPump(pumpCtx)
		cancel()
	}()

	writeErr := p.writePump(pumpCtx)
	cancel()

	code := websocket.CloseNormalClosure
	if ctx.Err() != nil {
		code = websocket.CloseGoingAway
	}
	p.close(code)

	// closing the connection unblocks the read pump
	p.logExit(<-readErr, writeErr)
}

func (p *peer) readPump(ctx context.Context) error {
	p.conn.SetReadLimit(maxFrameSize)
	p.conn.SetPongHandler(func(string) error {
		p.logger.Trace().Msg("got pong")
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	if err := p.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}

	for {
		env, err := p.readFrame()
		switch {
		case errors.Is(err, errMalformedFrame), errors.Is(err, errUnsupportedFrame):
			p.logger.Warn().Err(err).Msg("frame rejected")
			reply := model.Envelope{Type: model.EventFrameError, ID: env.ID, Error: frameErrorText(err)}
			if !deliver(ctx, p.wire.TX, reply) {
				return nil
			}
		case err != nil:
			return err
		default:
			if !deliver(ctx, p.wire.RX, env) {
				return nil
			}
		}
	}
}

// readFrame decodes the next text frame into an envelope. Frames that fail to
// decode or carry no type come back with errMalformedFrame and leave the
// connection usable.
func (p *peer) readFrame() (model.Envelope, error) {
	var env model.Envelope
	kind, r, err := p.conn.NextReader()
	if err != nil {
		return env, err
	}
	if kind != websocket.TextMessage {
		return env, errUnsupportedFrame
	}
	if err = json.NewDecoder(r).Decode(&env); err != nil {
		if errors.Is(err, websocket.ErrReadLimit) {
			return env, err
		}
		return model.Envelope{}, errors.Join(errMalformedFrame, err)
	}
	if env.Type == "" {
		return env, errMalformedFrame
	}
	return env, nil
}

func (p *peer) writePump(ctx context.Context) error {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ping.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
			p.logger.Trace().Msg("ping sent")
		case env, ok := <-p.wire.TX:
			if !ok {
				return nil
			}
			if err := p.writeFrame(env); err != nil {
				return err
			}
		}
	}
}

// writeFrame sends env as one text frame. An envelope that cannot be encoded
// is dropped and the connection stays up.
func (p *peer) writeFrame(env model.Envelope) error {
	b, err := json.Marshal(&env)
	if err != nil {
		p.logger.Error().Err(err).Str("type", env.Type).Msg("failed to marshal outgoing frame")
		return nil
	}
	if err = p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, b)
}

func (p *peer) close(code int) {
	msg := websocket.FormatCloseMessage(code, "")
	err := p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
		p.logger.Debug().Err(err).Msg("close frame not sent")
	}
	if err = p.conn.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("failed to close websocket connection")
	}
}

func (p *peer) logExit(readErr, writeErr error) {
	switch {
	case readErr == nil, errors.Is(readErr, net.ErrClosed):
	case websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		p.logger.Debug().Err(readErr).Msg("connection closed by client")
	default:
		p.logger.Warn().Err(readErr).Msg("receive failed")
	}
	if writeErr != nil {
		p.logger.Warn().Err(writeErr).Msg("send failed")
	}
}

func deliver(ctx context.Context, ch chan<- model.Envelope, env model.Envelope) bool {
	select {
	case ch <- env:
		return true
	case <-ctx.Done():
		return false
	}
}

func frameErrorText(err error) string {
	if errors.Is(err, errUnsupportedFrame) {
		return "Unsupported frame"
	}
	return "Malformed frame"
}
