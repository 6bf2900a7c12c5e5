package fabric

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/karabo/pkg/fabric/broker"
	"github.com/newtron-network/karabo/pkg/hash"
)

func newTestBroker(t *testing.T, name string) *broker.Broker {
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

func TestRequestReplyRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	b := broker.New(rdb, "test")

	server := New(b, "server-1", "TestDevice")
	server.RegisterSlot("echo", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		v, _ := body.Get("msg")
		out := hash.New()
		out.Set("echoed", v)
		return out, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)
	defer server.Stop()

	client := New(b, "client-1", "Client")

	req := hash.New()
	req.Set("msg", "hello")

	reply, err := client.Request(ctx, "server-1", "echo", req, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := reply.Get("echoed")
	if got != "hello" {
		t.Fatalf("got %v", got)
	}
}

func TestRequestTimesOutWhenTargetMissing(t *testing.T) {
	b := newTestBroker(t, "test")
	client := New(b, "client-1", "Client")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := client.Request(ctx, "nobody", "echo", hash.New(), 150*time.Millisecond)
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
}

func TestSignalFanout(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	b := broker.New(rdb, "test")

	emitter := New(b, "emitter-1", "Emitter")
	receiver := New(b, "receiver-1", "Receiver")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	receiver.SubscribeSignal(ctx, "signalTick", func(env *Envelope) {
		v, _ := env.Body.Get("tick")
		if s, ok := v.(string); ok {
			got <- s
		}
	})
	time.Sleep(50 * time.Millisecond) // let the subscription establish

	body := hash.New()
	body.Set("tick", "one")
	if err := emitter.EmitSignal(ctx, "signalTick", body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case v := <-got:
		if v != "one" {
			t.Fatalf("got %q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for signal delivery")
	}
}

func TestTopologyHeartbeatTracking(t *testing.T) {
	var newCount, goneCount int
	topo := NewTopology(
		func(InstanceInfo) { newCount++ },
		nil,
		func(string) { goneCount++ },
	)

	topo.Heartbeat("d1", "Device", 10)
	topo.Heartbeat("d1", "Device", 10)
	if newCount != 1 {
		t.Fatalf("expected exactly one instanceNew, got %d", newCount)
	}

	time.Sleep(40 * time.Millisecond) // > 3x the 10ms interval
	topo.Sweep()
	if goneCount != 1 {
		t.Fatalf("expected instanceGone after missed heartbeats, got %d", goneCount)
	}
}
