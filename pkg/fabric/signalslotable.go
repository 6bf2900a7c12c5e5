package fabric

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/karabo/internal/klog"
	"github.com/newtron-network/karabo/pkg/fabric/broker"
	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/karerrors"
)

// DefaultRequestTimeout is used by Request when the caller doesn't
// specify one.
const DefaultRequestTimeout = 5 * time.Second

const (
	SlotInstanceNew  = "slotInstanceNew"
	SlotInstanceGone = "slotInstanceGone"
	SlotPing         = "slotPing"
	SlotDiscover     = "slotDiscover"
)

// SlotFunc handles an addressed call and returns the reply body (or an
// error, which is sent back as a failed reply envelope).
type SlotFunc func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error)

// SignalSlotable is one instance's endpoint on the fabric: it owns a
// single-threaded event loop (all slot dispatch happens on it, matching
// the device runtime's single-threaded parameter-update guarantee),
// registers slots, emits signals, and issues correlated requests.
type SignalSlotable struct {
	InstanceID string
	ClassID    string

	broker *broker.Broker
	topo   *Topology

	mu    sync.Mutex
	slots map[string]SlotFunc

	pending   map[string]chan *Envelope
	pendingMu sync.Mutex

	inbox chan *hash.Hash
	done  chan struct{}
	wg    sync.WaitGroup

	heartbeatInterval time.Duration
}

// New returns a SignalSlotable bound to broker b, identified by
// instanceID/classID.
func New(b *broker.Broker, instanceID, classID string) *SignalSlotable {
	ss := &SignalSlotable{
		InstanceID:        instanceID,
		ClassID:           classID,
		broker:            b,
		slots:             make(map[string]SlotFunc),
		pending:           make(map[string]chan *Envelope),
		inbox:             make(chan *hash.Hash, 256),
		done:              make(chan struct{}),
		heartbeatInterval: 5 * time.Second,
	}
	ss.topo = NewTopology(nil, nil, nil)
	ss.RegisterSlot(SlotPing, func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		return hash.New(), nil
	})
	return ss
}

// RegisterSlot binds name to fn. Re-registering a name replaces the
// previous handler (schema injection redefines slots this way).
func (ss *SignalSlotable) RegisterSlot(name string, fn SlotFunc) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.slots[name] = fn
}

// Start launches the inbox-consuming goroutine and the heartbeat
// goroutine, both stoppable via a shared done channel and joined on
// Stop through a WaitGroup.
func (ss *SignalSlotable) Start(ctx context.Context) {
	ss.wg.Add(2)
	go ss.pumpInbox(ctx)
	go ss.heartbeatLoop(ctx)
}

// Stop signals both background goroutines to exit and waits for them.
func (ss *SignalSlotable) Stop() {
	close(ss.done)
	ss.wg.Wait()
}

func (ss *SignalSlotable) pumpInbox(ctx context.Context) {
	defer ss.wg.Done()
	consumer := ss.InstanceID + "-0"
	for {
		select {
		case <-ss.done:
			return
		case <-ctx.Done():
			return
		default:
		}
		envs, err := ss.broker.ConsumeInbox(ctx, ss.InstanceID, consumer, time.Second)
		if err != nil {
			klog.WithInstance(ss.InstanceID).WithField("error", err).Warn("inbox consume failed")
			time.Sleep(200 * time.Millisecond)
			continue
		}
		for _, h := range envs {
			ss.dispatch(ctx, FromHash(h))
		}
	}
}

func (ss *SignalSlotable) heartbeatLoop(ctx context.Context) {
	defer ss.wg.Done()
	ticker := time.NewTicker(ss.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ss.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			body := hash.New()
			body.Set("instanceId", ss.InstanceID)
			body.Set("classId", ss.ClassID)
			body.Set("heartbeatMs", ss.heartbeatInterval.Milliseconds())
			_ = ss.EmitSignal(ctx, "signalHeartbeat", body)
		}
	}
}

// dispatch runs on the event-loop goroutine: calls are routed to their
// slot, replies are routed to the waiting Request call.
func (ss *SignalSlotable) dispatch(ctx context.Context, env *Envelope) {
	switch env.Kind {
	case KindReply:
		ss.pendingMu.Lock()
		ch, ok := ss.pending[env.CorrelationID]
		if ok {
			delete(ss.pending, env.CorrelationID)
		}
		ss.pendingMu.Unlock()
		if ok {
			ch <- env
		}
	case KindCall:
		ss.mu.Lock()
		fn, ok := ss.slots[env.Slot]
		ss.mu.Unlock()
		if !ok {
			reply := env.Reply(ss.InstanceID, hash.New(), fmt.Errorf("no such slot %q", env.Slot))
			_ = ss.broker.PublishToInbox(ctx, env.Source, reply.ToHash())
			return
		}
		body, err := fn(ctx, env.Source, env.Body)
		if errors.Is(err, karerrors.ErrSuppressReply) {
			return
		}
		if body == nil {
			body = hash.New()
		}
		reply := env.Reply(ss.InstanceID, body, err)
		_ = ss.broker.PublishToInbox(ctx, env.Source, reply.ToHash())
	}
}

// Request issues a correlated call to target.slot and blocks for the
// reply or ctx/timeout, returning a TimeoutError on expiry.
func (ss *SignalSlotable) Request(ctx context.Context, target, slot string, body *hash.Hash, timeout time.Duration) (*hash.Hash, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	call := NewCall(ss.InstanceID, target, slot, body)

	ch := make(chan *Envelope, 1)
	ss.pendingMu.Lock()
	ss.pending[call.CorrelationID] = ch
	ss.pendingMu.Unlock()
	defer func() {
		ss.pendingMu.Lock()
		delete(ss.pending, call.CorrelationID)
		ss.pendingMu.Unlock()
	}()

	if err := ss.broker.PublishToInbox(ctx, target, call.ToHash()); err != nil {
		return nil, err
	}

	select {
	case reply := <-ch:
		if reply.Error != "" {
			return reply.Body, fmt.Errorf("%s", reply.Error)
		}
		return reply.Body, nil
	case <-time.After(timeout):
		return nil, &karerrors.TimeoutError{Target: target, Slot: slot, Millis: timeout.Milliseconds()}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Call places one fire-and-forget addressed message at target.slot —
// spec.md's "addressed call" transport pattern. No reply is expected
// and none is waited for; the target's eventual reply envelope (if
// any) is simply never correlated to anything and is dropped.
func (ss *SignalSlotable) Call(ctx context.Context, target, slot string, body *hash.Hash) error {
	call := NewCall(ss.InstanceID, target, slot, body)
	return ss.broker.PublishToInbox(ctx, target, call.ToHash())
}

// EmitSignal fans body out to every subscriber of signalName.
func (ss *SignalSlotable) EmitSignal(ctx context.Context, signalName string, body *hash.Hash) error {
	env := NewSignal(ss.InstanceID, signalName, body)
	return ss.broker.PublishSignal(ctx, signalName, env.ToHash())
}

// SubscribeSignal registers handler to run (on its own goroutine) for
// every envelope delivered on signalName.
func (ss *SignalSlotable) SubscribeSignal(ctx context.Context, signalName string, handler func(*Envelope)) {
	sub := ss.broker.SubscribeSignal(ctx, signalName)
	go func() {
		for h := range sub.C {
			handler(FromHash(h))
		}
	}()
}

// Topology exposes the instance-tracking state built from
// signalHeartbeat traffic the caller forwards via Topology().Heartbeat.
func (ss *SignalSlotable) Topology() *Topology { return ss.topo }

// NewCorrelationID returns a fresh id, exposed for callers building
// envelopes outside of Request.
func NewCorrelationID() string { return uuid.NewString() }
