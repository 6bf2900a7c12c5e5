// Package testutil provides shared test fixtures for Karabo's package
// tests: an in-memory broker/fabric pair backed by miniredis, plus
// small assertion helpers.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/karabo/pkg/fabric"
	"github.com/newtron-network/karabo/pkg/fabric/broker"
)

// NewBroker starts an in-memory Redis server and returns a connected
// broker.Broker, registering cleanup with t.
func NewBroker(t *testing.T, name string) *broker.Broker {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return broker.New(rdb, name)
}

// NewSignalSlotable builds and starts a fabric.SignalSlotable over a
// fresh in-memory broker, stopping it via t.Cleanup.
func NewSignalSlotable(t *testing.T, instanceID, classID string) *fabric.SignalSlotable {
	t.Helper()
	b := NewBroker(t, "testutil-"+instanceID)
	return NewSignalSlotableOnBroker(t, b, instanceID, classID)
}

// NewSignalSlotableOnBroker builds and starts a fabric.SignalSlotable on
// an already-constructed broker, stopping it via t.Cleanup. Use this
// (with one shared NewBroker call) when a test needs two or more
// instances that must actually exchange request/reply traffic, such as
// a locker and the device it locks.
func NewSignalSlotableOnBroker(t *testing.T, b *broker.Broker, instanceID, classID string) *fabric.SignalSlotable {
	t.Helper()
	ss := fabric.New(b, instanceID, classID)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ss.Start(ctx)
	t.Cleanup(ss.Stop)

	return ss
}

// Context returns a context with a reasonable timeout for tests, whose
// cancel function is registered via t.Cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
