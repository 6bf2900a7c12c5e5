// Package fabric implements Karabo's signal/slot RPC fabric: addressed
// request/reply and broadcast signal delivery over a shared broker,
// instance topology tracking, and the per-instance single-threaded
// event loop.
package fabric

import (
	"time"

	"github.com/google/uuid"
	"github.com/newtron-network/karabo/pkg/hash"
)

// Kind distinguishes the three envelope shapes the fabric moves across
// the broker.
type Kind string

const (
	KindCall   Kind = "call"   // addressed request awaiting a reply
	KindReply  Kind = "reply"  // addressed reply correlated to a call
	KindSignal Kind = "signal" // fan-out broadcast, no reply expected
)

// Envelope is the header+body unit the fabric serializes onto the
// broker.
type Envelope struct {
	Kind          Kind
	CorrelationID string
	Source        string // sending instance id
	Target        string // deviceId for KindCall/KindReply; signal topic for KindSignal
	Slot          string // slot or signal name
	Body          *hash.Hash
	Error         string // non-empty on a failed KindReply
	SentAt        time.Time
}

// NewCall builds a correlated request envelope.
func NewCall(source, target, slot string, body *hash.Hash) *Envelope {
	return &Envelope{
		Kind:          KindCall,
		CorrelationID: uuid.NewString(),
		Source:        source,
		Target:        target,
		Slot:          slot,
		Body:          body,
		SentAt:        time.Now().UTC(),
	}
}

// Reply builds a reply envelope correlated back to call.
func (e *Envelope) Reply(source string, body *hash.Hash, replyErr error) *Envelope {
	r := &Envelope{
		Kind:          KindReply,
		CorrelationID: e.CorrelationID,
		Source:        source,
		Target:        e.Source,
		Slot:          e.Slot,
		Body:          body,
		SentAt:        time.Now().UTC(),
	}
	if replyErr != nil {
		r.Error = replyErr.Error()
	}
	return r
}

// NewSignal builds an uncorrelated fan-out envelope.
func NewSignal(source, signalName string, body *hash.Hash) *Envelope {
	return &Envelope{
		Kind:   KindSignal,
		Source: source,
		Target: signalName,
		Slot:   signalName,
		Body:   body,
		SentAt: time.Now().UTC(),
	}
}

// ToHash flattens the envelope into a Hash for wire encoding.
func (e *Envelope) ToHash() *hash.Hash {
	h := hash.New()
	h.Set("kind", string(e.Kind))
	h.Set("correlationId", e.CorrelationID)
	h.Set("source", e.Source)
	h.Set("target", e.Target)
	h.Set("slot", e.Slot)
	h.Set("error", e.Error)
	h.Set("sentAt", e.SentAt)
	if e.Body != nil {
		h.Set("body", e.Body)
	} else {
		h.Set("body", hash.New())
	}
	return h
}

// FromHash reconstructs an Envelope from a Hash produced by ToHash.
func FromHash(h *hash.Hash) *Envelope {
	e := &Envelope{}
	if v, ok := h.Get("kind"); ok {
		e.Kind = Kind(v.(string))
	}
	if v, ok := h.Get("correlationId"); ok {
		e.CorrelationID = v.(string)
	}
	if v, ok := h.Get("source"); ok {
		e.Source = v.(string)
	}
	if v, ok := h.Get("target"); ok {
		e.Target = v.(string)
	}
	if v, ok := h.Get("slot"); ok {
		e.Slot = v.(string)
	}
	if v, ok := h.Get("error"); ok {
		e.Error, _ = v.(string)
	}
	if v, ok := h.Get("sentAt"); ok {
		e.SentAt, _ = v.(time.Time)
	}
	if v, ok := h.Get("body"); ok {
		e.Body, _ = v.(*hash.Hash)
	}
	if e.Body == nil {
		e.Body = hash.New()
	}
	return e
}
