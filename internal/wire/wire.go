// Package wire defines the client<->server WebSocket message set
// (spec.md §6) and its CBOR framing.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Tag identifies which concrete message type a frame's envelope carries.
type Tag string

const (
	TagAuthorize                Tag = "authorize"
	TagDisconnect               Tag = "disconnect"
	TagControlInput             Tag = "control_input"
	TagAssignControllableObject Tag = "assign_controllable_object"
	TagDynamicObjectCreation    Tag = "dynamic_object_creation"
	TagDynamicObjectUpdate      Tag = "dynamic_object_update"
	TagDynamicObjectDestruction Tag = "dynamic_object_destruction"
)

// ControlKey is one of the five inputs a client can hold down or release
// (spec.md §6).
type ControlKey string

const (
	Forward  ControlKey = "forward"
	Backward ControlKey = "backward"
	Left     ControlKey = "left"
	Right    ControlKey = "right"
	Fire     ControlKey = "fire"
)

// Authorize is the client->server handshake message carrying a session
// token (spec.md §4.9).
type Authorize struct {
	Token string `cbor:"token"`
}

// Disconnect is a client->server message requesting immediate teardown.
type Disconnect struct{}

// ControlInput is a client->server key state change.
type ControlInput struct {
	Input   ControlKey `cbor:"input"`
	Pressed bool       `cbor:"pressed"`
}

// AssignControllableObject tells the client which entity id it now
// controls.
type AssignControllableObject struct {
	ID uint64 `cbor:"id"`
}

// DynamicObjectCreation announces a new entity entering the client's
// viewport.
type DynamicObjectCreation struct {
	ID uint64 `cbor:"id"`
}

// DynamicObjectUpdate carries a tracked entity's current pose.
type DynamicObjectUpdate struct {
	ID              uint64  `cbor:"id"`
	X               float64 `cbor:"x"`
	Y               float64 `cbor:"y"`
	Rotation        float64 `cbor:"rotation"`
	VX              float64 `cbor:"vx"`
	VY              float64 `cbor:"vy"`
	AngularVelocity float64 `cbor:"angular_velocity"`
	ObjectType      string  `cbor:"object_type"`
}

// DynamicObjectDestruction announces an entity leaving the client's
// viewport.
type DynamicObjectDestruction struct {
	ID uint64 `cbor:"id"`
}

// envelope is the wire-level tagged union: {tag, payload}. CBOR encodes
// this as a two-field map, avoiding any host-language-specific tagging
// the client wouldn't be able to parse.
type envelope struct {
	Tag     Tag             `cbor:"tag"`
	Payload cbor.RawMessage `cbor:"payload"`
}

// Encode wraps msg in a tagged envelope and returns its CBOR bytes.
func Encode(tag Tag, msg any) ([]byte, error) {
	payload, err := cbor.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: encode payload for %s: %w", tag, err)
	}
	return cbor.Marshal(envelope{Tag: tag, Payload: payload})
}

// Decode reads a tagged envelope and unmarshals its payload into the
// type identified by tag. Returns the tag and the generic payload
// message, for the caller to type-switch.
func Decode(frame []byte) (Tag, any, error) {
	var env envelope
	if err := cbor.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	switch env.Tag {
	case TagAuthorize:
		var m Authorize
		if err := cbor.Unmarshal(env.Payload, &m); err != nil {
			return env.Tag, nil, err
		}
		return env.Tag, m, nil
	case TagDisconnect:
		return env.Tag, Disconnect{}, nil
	case TagControlInput:
		var m ControlInput
		if err := cbor.Unmarshal(env.Payload, &m); err != nil {
			return env.Tag, nil, err
		}
		return env.Tag, m, nil
	default:
		return env.Tag, nil, fmt.Errorf("wire: unknown tag %q", env.Tag)
	}
}

// EncodeAssignControllableObject is a convenience wrapper for the
// server->client messages the gateway emits directly (outside the
// viewport diff stream).
func EncodeAssignControllableObject(id uint64) ([]byte, error) {
	return Encode(TagAssignControllableObject, AssignControllableObject{ID: id})
}

func EncodeObjectCreation(id uint64) ([]byte, error) {
	return Encode(TagDynamicObjectCreation, DynamicObjectCreation{ID: id})
}

func EncodeObjectUpdate(u DynamicObjectUpdate) ([]byte, error) {
	return Encode(TagDynamicObjectUpdate, u)
}

func EncodeObjectDestruction(id uint64) ([]byte, error) {
	return Encode(TagDynamicObjectDestruction, DynamicObjectDestruction{ID: id})
}
