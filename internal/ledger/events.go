package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind names an outbound ledger event.
type EventKind string

const (
	KindRoleAssigned EventKind = "RoleAssigned"
	KindCertified    EventKind = "Certified"
	KindIssued       EventKind = "Issued"
	KindTransferred  EventKind = "Transferred"
	KindRetired      EventKind = "Retired"
)

// Event is the result of a successful state transition. Each event carries
// everything needed to replay it without consulting current state.
type Event interface {
	Kind() EventKind
}

// RoleAssigned records a registry write. AssignedBy is empty for genesis.
type RoleAssigned struct {
	Principal    Principal    `json:"principal"`
	Role         Role         `json:"role"`
	Jurisdiction Jurisdiction `json:"jurisdiction"`
	AssignedBy   Principal    `json:"assigned_by,omitempty"`
}

// Certified records a claim certification.
type Certified struct {
	ClaimHash ClaimHash    `json:"claim_hash"`
	Certifier Principal    `json:"certifier"`
	Origin    Jurisdiction `json:"origin"`
}

// Issued records a batch mint that consumed one certification.
type Issued struct {
	Range     IDRange      `json:"range"`
	To        Principal    `json:"to"`
	IssuedBy  Principal    `json:"issued_by"`
	ClaimHash ClaimHash    `json:"claim_hash"`
	Origin    Jurisdiction `json:"origin"`
}

// Transferred records an ownership change of an active unit.
type Transferred struct {
	Unit UnitID    `json:"unit"`
	From Principal `json:"from"`
	To   Principal `json:"to"`
}

// Retired records the terminal retirement of a unit.
type Retired struct {
	Unit  UnitID    `json:"unit"`
	By    Principal `json:"by"`
	Owner Principal `json:"owner"`
}

func (RoleAssigned) Kind() EventKind { return KindRoleAssigned }
func (Certified) Kind() EventKind    { return KindCertified }
func (Issued) Kind() EventKind       { return KindIssued }
func (Transferred) Kind() EventKind  { return KindTransferred }
func (Retired) Kind() EventKind      { return KindRetired }

// Envelope wraps an event with its journal position and metadata.
type Envelope struct {
	ID    uuid.UUID `json:"id"`
	Seq   uint64    `json:"seq"`
	At    time.Time `json:"at"`
	Actor Principal `json:"actor,omitempty"`
	Event Event     `json:"-"`
}

// Kind returns the kind of the wrapped event.
func (e Envelope) Kind() EventKind {
	if e.Event == nil {
		return ""
	}
	return e.Event.Kind()
}

type envelopeWire struct {
	ID      uuid.UUID       `json:"id"`
	Seq     uint64          `json:"seq"`
	At      time.Time       `json:"at"`
	Actor   Principal       `json:"actor,omitempty"`
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the envelope with a kind discriminator.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Event == nil {
		return nil, fmt.Errorf("ledger: envelope %s has no event", e.ID)
	}
	payload, err := json.Marshal(e.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelopeWire{
		ID:      e.ID,
		Seq:     e.Seq,
		At:      e.At,
		Actor:   e.Actor,
		Kind:    e.Event.Kind(),
		Payload: payload,
	})
}

// UnmarshalJSON decodes an envelope produced by MarshalJSON.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire envelopeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	ev, err := DecodeEvent(wire.Kind, wire.Payload)
	if err != nil {
		return err
	}
	*e = Envelope{ID: wire.ID, Seq: wire.Seq, At: wire.At, Actor: wire.Actor, Event: ev}
	return nil
}

// DecodeEvent restores a typed event from its kind and JSON payload.
func DecodeEvent(kind EventKind, payload []byte) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch kind {
	case KindRoleAssigned:
		var v RoleAssigned
		err = json.Unmarshal(payload, &v)
		ev = v
	case KindCertified:
		var v Certified
		err = json.Unmarshal(payload, &v)
		ev = v
	case KindIssued:
		var v Issued
		err = json.Unmarshal(payload, &v)
		ev = v
	case KindTransferred:
		var v Transferred
		err = json.Unmarshal(payload, &v)
		ev = v
	case KindRetired:
		var v Retired
		err = json.Unmarshal(payload, &v)
		ev = v
	default:
		return nil, fmt.Errorf("ledger: unknown event kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: decode %s: %w", kind, err)
	}
	return ev, nil
}
