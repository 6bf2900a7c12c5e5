// Package guibridge forwards the broker envelope unmodified over a
// WebSocket connection, giving GUI clients access to the same
// call/reply/signal traffic a native SignalSlotable sees, without
// defining any GUI-specific wire dialect beyond the envelope itself.
package guibridge

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/newtron-network/karabo/internal/klog"
	"github.com/newtron-network/karabo/pkg/fabric"
	"github.com/newtron-network/karabo/pkg/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Bridge relays every signal the local SignalSlotable sees to connected
// WebSocket clients, and relays every inbound client frame (an encoded
// call envelope) onto the fabric on the client's behalf.
type Bridge struct {
	ss *fabric.SignalSlotable

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes concurrent WriteMessage calls
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// New constructs a Bridge over an already-running SignalSlotable.
func New(ss *fabric.SignalSlotable) *Bridge {
	return &Bridge{ss: ss, clients: make(map[*client]struct{})}
}

// BroadcastSignal relays a signal envelope to every connected client.
// Wired as the handler passed to fabric.SignalSlotable.SubscribeSignal
// for each signal name the GUI bridge forwards.
func (b *Bridge) BroadcastSignal(env *fabric.Envelope) {
	data := wire.Encode(env.ToHash())

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if err := c.send(data); err != nil {
			klog.WithField("error", err).Warn("guibridge: dropping client after write failure")
			go b.remove(c)
		}
	}
}

func (b *Bridge) remove(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	c.conn.Close()
}

// ServeHTTP upgrades the connection and pumps inbound frames onto the
// fabric as addressed calls until the client disconnects, reading in a
// loop until ReadMessage errors.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		klog.WithField("error", err).Warn("guibridge: upgrade failed")
		return
	}
	c := &client{conn: conn}

	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	defer b.remove(c)

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := wire.Decode(data)
		if err != nil {
			klog.WithField("error", err).Warn("guibridge: dropping malformed client frame")
			continue
		}
		b.dispatchClientFrame(ctx, fabric.FromHash(env))
	}
}

func (b *Bridge) dispatchClientFrame(ctx context.Context, env *fabric.Envelope) {
	switch env.Kind {
	case fabric.KindCall:
		reply, err := b.ss.Request(ctx, env.Target, env.Slot, env.Body, fabric.DefaultRequestTimeout)
		replyEnv := env.Reply(b.ss.InstanceID, reply, err)
		b.BroadcastSignal(replyEnv)
	case fabric.KindSignal:
		_ = b.ss.EmitSignal(ctx, env.Slot, env.Body)
	}
}
