// Package broker implements the transport underneath pkg/fabric:
// Redis Streams for ordered, addressed call/reply delivery with
// consumer groups, and Redis Pub/Sub for signal fanout and heartbeats.
// Publishes (inbox appends and signal publishes) are wrapped in a
// circuit breaker so a flapping broker degrades to fast failures
// instead of hanging callers.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"github.com/newtron-network/karabo/internal/klog"
	"github.com/newtron-network/karabo/pkg/karerrors"
	"github.com/newtron-network/karabo/pkg/wire"

	"github.com/newtron-network/karabo/pkg/hash"
)

const (
	// streamMaxLen bounds each per-instance stream so a crashed
	// consumer can't grow it unboundedly.
	streamMaxLen = 10000
	signalChannelPrefix = "karabo:signal:"
	streamKeyPrefix     = "karabo:inbox:"
)

func streamKey(instanceID string) string { return streamKeyPrefix + instanceID }
func signalChannel(signalName string) string { return signalChannelPrefix + signalName }

// Broker is the transport the fabric's SignalSlotable talks to.
type Broker struct {
	rdb *redis.Client
	cb  *gobreaker.CircuitBreaker
}

// New wraps an existing Redis client. cbName identifies this breaker
// instance in metrics/logs (usually the process's instance id).
func New(rdb *redis.Client, cbName string) *Broker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			klog.WithField("breaker", name).WithField("from", from.String()).
				WithField("to", to.String()).Warn("broker circuit breaker state change")
		},
	})
	return &Broker{rdb: rdb, cb: cb}
}

func (b *Broker) call(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	v, err := b.cb.Execute(fn)
	if err != nil {
		return nil, &karerrors.BrokerError{Op: "execute", Reason: err}
	}
	return v, nil
}

// PublishToInbox appends env onto target's inbox stream (addressed
// call/reply delivery).
func (b *Broker) PublishToInbox(ctx context.Context, target string, env *hash.Hash) error {
	_, err := b.call(ctx, func() (interface{}, error) {
		return b.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey(target),
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"envelope": wire.Encode(env)},
		}).Result()
	})
	return err
}

// ConsumeInbox reads new envelopes from instanceID's stream using a
// consumer group so redelivery after a crash picks up where the
// previous process left off. It blocks up to block waiting for new
// entries, returning an empty slice on a timeout (not an error).
func (b *Broker) ConsumeInbox(ctx context.Context, instanceID, consumer string, block time.Duration) ([]*hash.Hash, error) {
	group := "karabo"
	key := streamKey(instanceID)

	if err := b.rdb.XGroupCreateMkStream(ctx, key, group, "$").Err(); err != nil && !isBusyGroupErr(err) {
		return nil, &karerrors.BrokerError{Op: "xgroup-create", Reason: err}
	}

	res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{key, ">"},
		Count:    100,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, &karerrors.BrokerError{Op: "xreadgroup", Reason: err}
	}

	var out []*hash.Hash
	for _, stream := range res {
		for _, msg := range stream.Messages {
			raw, ok := msg.Values["envelope"].(string)
			if !ok {
				continue
			}
			h, err := wire.Decode([]byte(raw))
			if err != nil {
				klog.WithField("msgId", msg.ID).Warn("dropping undecodable inbox envelope")
				continue
			}
			out = append(out, h)
			b.rdb.XAck(ctx, key, group, msg.ID)
		}
	}
	return out, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

// PublishSignal fans env out to every subscriber of signalName.
func (b *Broker) PublishSignal(ctx context.Context, signalName string, env *hash.Hash) error {
	_, err := b.call(ctx, func() (interface{}, error) {
		return b.rdb.Publish(ctx, signalChannel(signalName), wire.Encode(env)).Result()
	})
	return err
}

// Subscription delivers decoded signal envelopes until Close is called.
type Subscription struct {
	ps *redis.PubSub
	C  <-chan *hash.Hash
}

// Close stops the subscription.
func (s *Subscription) Close() error { return s.ps.Close() }

// SubscribeSignal subscribes to signalName's fanout channel.
func (b *Broker) SubscribeSignal(ctx context.Context, signalName string) *Subscription {
	ps := b.rdb.Subscribe(ctx, signalChannel(signalName))
	out := make(chan *hash.Hash, 64)
	go func() {
		defer close(out)
		ch := ps.Channel()
		for msg := range ch {
			h, err := wire.Decode([]byte(msg.Payload))
			if err != nil {
				klog.WithField("channel", msg.Channel).Warn("dropping undecodable signal envelope")
				continue
			}
			out <- h
		}
	}()
	return &Subscription{ps: ps, C: out}
}

// Ping verifies broker connectivity.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return &karerrors.BrokerError{Op: "ping", Reason: err}
	}
	return nil
}

// String renders breaker state for diagnostics.
func (b *Broker) String() string {
	return fmt.Sprintf("broker(circuit=%s)", b.cb.State().String())
}
