// Package gateway upgrades incoming HTTP requests to WebSocket
// connections and runs the two cooperative inbound/outbound tasks per
// connection described in spec.md §4.9.
package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/starhold/server/internal/ecs"
	"github.com/starhold/server/internal/logger"
	"github.com/starhold/server/internal/session"
	"github.com/starhold/server/internal/viewport"
	"github.com/starhold/server/internal/wire"
)

const (
	authWaitTimeout = 5 * time.Second
	readPollTimeout = 1 * time.Second
	maxFrameBytes   = 64 * 1024
)

// ControlHandler applies a decoded ControlInput to the entity the
// connection controls. Bound once the connection is authorized.
type ControlHandler func(entity ecs.Entity, input wire.ControlInput)

// Sessions is the subset of *session.Sessions the gateway needs.
type Sessions interface {
	GetLive(token string) (*session.Session, bool)
}

// Gateway accepts upgrades and binds each connection to a live session.
type Gateway struct {
	sessions Sessions
	// BindViewport returns the entity and viewport for a new connection
	// of the given profile; how the entity is obtained is left to the
	// caller, which owns the entity store.
	BindViewport func(profileID string) (ecs.Entity, *viewport.Viewport)
	// Unbind tears down the viewport-owning entity when a connection
	// closes (spec.md §4.9: "self-despawn within one tick").
	Unbind func(entity ecs.Entity)
	// OnControlInput is invoked for every decoded ControlInput frame.
	OnControlInput ControlHandler
}

func New(sessions Sessions) *Gateway {
	return &Gateway{sessions: sessions}
}

// ServeHTTP upgrades the request to a WebSocket connection and runs the
// connection's lifecycle until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	conn.SetReadLimit(maxFrameBytes)
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	ctx := r.Context()
	var cancelled atomic.Bool

	outbound := make(chan []byte, 256)
	inbound := make(chan []byte, 64)

	done := make(chan struct{})
	go g.outboundTask(ctx, conn, outbound, &cancelled, done)
	go g.inboundTask(ctx, conn, inbound, &cancelled)

	entity, vp, ok := g.authorize(ctx, inbound)
	if !ok {
		cancelled.Store(true)
		conn.Close(websocket.StatusPolicyViolation, "authorization failed")
		<-done
		return
	}
	defer func() {
		if g.Unbind != nil {
			g.Unbind(entity)
		}
	}()

	if payload, err := wire.EncodeAssignControllableObject(uint64(entity)); err == nil {
		select {
		case outbound <- payload:
		default:
		}
	}

	go g.pumpViewport(vp, outbound, &cancelled)
	g.controlLoop(inbound, entity, &cancelled)

	cancelled.Store(true)
	vp.Cancel()
	conn.Close(websocket.StatusNormalClosure, "closing")
	<-done
}

// authorize waits up to authWaitTimeout for an Authorize message on
// inbound, as spec.md §4.9 requires. A Disconnect message during the
// wait window terminates immediately.
func (g *Gateway) authorize(ctx context.Context, inbound <-chan []byte) (ecs.Entity, *viewport.Viewport, bool) {
	timer := time.NewTimer(authWaitTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, nil, false
		case <-timer.C:
			return 0, nil, false
		case frame, ok := <-inbound:
			if !ok {
				return 0, nil, false
			}
			tag, msg, err := wire.Decode(frame)
			if err != nil {
				continue
			}
			switch tag {
			case wire.TagDisconnect:
				return 0, nil, false
			case wire.TagAuthorize:
				auth := msg.(wire.Authorize)
				sess, live := g.sessions.GetLive(auth.Token)
				if !live {
					return 0, nil, false
				}
				entity, vp := g.BindViewport(sess.ProfileID)
				return entity, vp, true
			}
		}
	}
}

func (g *Gateway) controlLoop(inbound <-chan []byte, entity ecs.Entity, cancelled *atomic.Bool) {
	for {
		if cancelled.Load() {
			return
		}
		frame, ok := <-inbound
		if !ok {
			return
		}
		tag, msg, err := wire.Decode(frame)
		if err != nil {
			logger.Warn("gateway: dropping undeserialisable frame", "err", err)
			continue
		}
		switch tag {
		case wire.TagDisconnect:
			return
		case wire.TagControlInput:
			if g.OnControlInput != nil {
				g.OnControlInput(entity, msg.(wire.ControlInput))
			}
		}
	}
}

// pumpViewport forwards a viewport's outgoing diff events onto the
// connection's outbound frame channel until the connection cancels.
func (g *Gateway) pumpViewport(vp *viewport.Viewport, outbound chan<- []byte, cancelled *atomic.Bool) {
	for {
		if cancelled.Load() || vp.Cancelled() {
			return
		}
		select {
		case ev, ok := <-vp.Outgoing:
			if !ok {
				return
			}
			frame, err := encodeViewportEvent(ev)
			if err != nil {
				continue
			}
			select {
			case outbound <- frame:
			default:
				// Slow client: drop the frame rather than block the pump
				// and stall this viewport's future updates.
			}
		case <-time.After(readPollTimeout):
		}
	}
}

func encodeViewportEvent(ev viewport.Event) ([]byte, error) {
	switch ev.Kind {
	case viewport.ObjectCreation:
		return wire.EncodeObjectCreation(uint64(ev.Entity))
	case viewport.ObjectDestruction:
		return wire.EncodeObjectDestruction(uint64(ev.Entity))
	default:
		return wire.EncodeObjectUpdate(wire.DynamicObjectUpdate{
			ID:              uint64(ev.Entity),
			X:               ev.Position.X,
			Y:               ev.Position.Y,
			Rotation:        ev.Rotation,
			VX:              ev.VX,
			VY:              ev.VY,
			AngularVelocity: ev.AngularVelocity,
			ObjectType:      ev.ObjectType,
		})
	}
}

// outboundTask dequeues frames and writes them to the socket, sending a
// close frame on write error or cancellation (spec.md §4.9).
func (g *Gateway) outboundTask(ctx context.Context, conn *websocket.Conn, outbound <-chan []byte, cancelled *atomic.Bool, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case frame, ok := <-outbound:
			if !ok {
				return
			}
			if cancelled.Load() {
				return
			}
			if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
				cancelled.Store(true)
				return
			}
		case <-time.After(readPollTimeout):
			if cancelled.Load() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// inboundTask reads frames with a short poll timeout so it can re-check
// the cancel flag, decodes nothing itself (that's authorize/controlLoop's
// job) and just forwards raw frames (spec.md §4.9).
func (g *Gateway) inboundTask(ctx context.Context, conn *websocket.Conn, inbound chan<- []byte, cancelled *atomic.Bool) {
	defer close(inbound)
	for {
		if cancelled.Load() {
			return
		}
		readCtx, cancel := context.WithTimeout(ctx, readPollTimeout)
		_, data, err := conn.Read(readCtx)
		deadlineHit := readCtx.Err() != nil
		cancel()
		if err != nil {
			if deadlineHit && ctx.Err() == nil {
				// Poll timeout: re-check the cancel flag and loop.
				continue
			}
			// Parent context done, close frame, or peer error.
			cancelled.Store(true)
			return
		}
		select {
		case inbound <- data:
		case <-ctx.Done():
			return
		}
	}
}
