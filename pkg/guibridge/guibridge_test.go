package guibridge

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"github.com/newtron-network/karabo/pkg/fabric"
	"github.com/newtron-network/karabo/pkg/fabric/broker"
	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/wire"
)

func newTestSignalSlotable(t *testing.T, instanceID string) *fabric.SignalSlotable {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := broker.New(rdb, "guibridge-test-"+instanceID)
	ss := fabric.New(b, instanceID, "GuiBridge")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ss.Start(ctx)
	t.Cleanup(ss.Stop)
	return ss
}

func TestServeHTTPRelaysInboundCallAsReply(t *testing.T) {
	ss := newTestSignalSlotable(t, "guiBridge1")
	ss.RegisterSlot("echo", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		return body, nil
	})

	b := New(ss)
	server := httptest.NewServer(b)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("unexpected dial error: %v", err)
	}
	defer conn.Close()

	body := hash.New()
	body.Set("value", "ping")
	callEnv := fabric.NewCall("clientGui", "guiBridge1", "echo", body)

	if err := conn.WriteMessage(websocket.BinaryMessage, wire.Encode(callEnv.ToHash())); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	h, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	replyEnv := fabric.FromHash(h)
	if replyEnv.Kind != fabric.KindReply {
		t.Fatalf("expected a reply envelope, got %s", replyEnv.Kind)
	}
	got, _ := replyEnv.Body.GetString("value")
	if got != "ping" {
		t.Fatalf("expected echoed value %q, got %q", "ping", got)
	}
}
