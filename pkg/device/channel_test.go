package device

import (
	"context"
	"testing"

	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/schema"
	"github.com/newtron-network/karabo/pkg/timestamp"
)

func TestAppendSchemaPreservesInputChannelHandler(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, "dev1", "TestDevice", nil, testExpected, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var received *hash.Hash
	delta := schema.New("TestDevice")
	delta.Key("in").Node().DisplayType(schema.InputChannelDisplayType)
	d.AppendSchema(ctx, delta)

	in, ok := d.InputChannel("in")
	if !ok {
		t.Fatalf("expected input channel 'in' to exist after first appendSchema")
	}
	in.SetDataHandler(func(data *hash.Hash, ts timestamp.Timestamp) {
		received = data
	})

	// Re-append the same delta (plus an unrelated parameter): the channel
	// object — and therefore its handler — must survive the second
	// injection.
	delta2 := schema.New("TestDevice")
	delta2.Key("in").Node().DisplayType(schema.InputChannelDisplayType)
	delta2.Key("extra").Leaf(schema.ValueBool).Reconfigurable().DefaultValue(true)
	d.AppendSchema(ctx, delta2)

	in2, ok := d.InputChannel("in")
	if !ok {
		t.Fatalf("expected input channel 'in' to still exist after second appendSchema")
	}
	if in2 != in {
		t.Fatalf("expected the same InputChannel object to be preserved across appendSchema")
	}

	packet := hash.New()
	packet.Set("value", 42)
	in2.deliver(packet, timestamp.Now())

	if received == nil {
		t.Fatalf("expected the handler registered before re-injection to still fire")
	}
	if v, _ := received.Get("value"); v != 42 {
		t.Fatalf("got unexpected payload %v", v)
	}
}

func TestOutputChannelWriteReachesConnectedInput(t *testing.T) {
	ctx := context.Background()

	producer, err := New(ctx, "producer", "TestDevice", nil, testExpected, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	consumer, err := New(ctx, "consumer", "TestDevice", nil, testExpected, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outDelta := schema.New("TestDevice")
	outDelta.Key("out").Node().DisplayType(schema.OutputChannelDisplayType)
	producer.AppendSchema(ctx, outDelta)

	inDelta := schema.New("TestDevice")
	inDelta.Key("in").Node().DisplayType(schema.InputChannelDisplayType)
	consumer.AppendSchema(ctx, inDelta)

	if err := producer.ConnectChannels("out", consumer, "in"); err != nil {
		t.Fatalf("ConnectChannels failed: %v", err)
	}

	var gotEOS bool
	var gotData *hash.Hash
	in, _ := consumer.InputChannel("in")
	in.SetDataHandler(func(data *hash.Hash, ts timestamp.Timestamp) { gotData = data })
	in.SetEndOfStreamHandler(func() { gotEOS = true })

	out, _ := producer.OutputChannel("out")
	payload := hash.New()
	payload.Set("x", 1)
	if err := out.Write(ctx, payload, timestamp.Now(), true); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if gotData == nil {
		t.Fatalf("expected the written payload to reach the connected input")
	}
	if v, _ := gotData.Get("x"); v != 1 {
		t.Fatalf("got unexpected payload %v", v)
	}
	if err := out.SignalEndOfStream(ctx); err != nil {
		t.Fatalf("SignalEndOfStream failed: %v", err)
	}
	if !gotEOS {
		t.Fatalf("expected end-of-stream handler to fire")
	}
}
