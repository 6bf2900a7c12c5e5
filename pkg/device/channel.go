package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/timestamp"
)

// ConnectionStatus is the observable state of an InputChannel's
// connection to its upstream OutputChannel.
type ConnectionStatus string

const (
	Disconnected ConnectionStatus = "DISCONNECTED"
	Connecting   ConnectionStatus = "CONNECTING"
	Connected    ConnectionStatus = "CONNECTED"
)

// DataHandler receives one packet delivered on an InputChannel.
type DataHandler func(data *hash.Hash, ts timestamp.Timestamp)

// InputHandler is invoked whenever a packet arrives, in addition to any
// DataHandler — useful for generic bookkeeping (counters, last-seen
// timestamps) independent of payload interpretation.
type InputHandler func(ch *InputChannel)

// EndOfStreamHandler is invoked when the upstream OutputChannel signals
// end of stream.
type EndOfStreamHandler func()

// InputChannel is the surface a device exposes for pipeline data
// input: handler registration plus an observable connection status. Its
// own transport (the actual high-throughput data path) is out of scope
// here — only the contract a device needs is implemented.
type InputChannel struct {
	Name string

	mu sync.Mutex

	dataHandler DataHandler
	inputHandler InputHandler
	eosHandler   EndOfStreamHandler

	status ConnectionStatus

	sourceInstanceID string
	sourceChannel    string
}

// NewInputChannel constructs a disconnected InputChannel named name.
func NewInputChannel(name string) *InputChannel {
	return &InputChannel{Name: name, status: Disconnected}
}

// SetDataHandler registers the handler invoked with each packet's
// payload and timestamp.
func (c *InputChannel) SetDataHandler(h DataHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataHandler = h
}

// SetInputHandler registers the handler invoked on every packet arrival,
// regardless of payload.
func (c *InputChannel) SetInputHandler(h InputHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputHandler = h
}

// SetEndOfStreamHandler registers the handler invoked when the upstream
// channel signals end of stream.
func (c *InputChannel) SetEndOfStreamHandler(h EndOfStreamHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eosHandler = h
}

// Status returns the current connection status.
func (c *InputChannel) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect marks the channel as connecting to sourceInstanceID's
// sourceChannel, then connected. The actual transport handshake is a
// pipeline-channel internal that lives outside this package — this
// records the intent and status transition a device's reconfigure/monitor logic
// observes.
func (c *InputChannel) Connect(ctx context.Context, sourceInstanceID, sourceChannel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = Connecting
	c.sourceInstanceID = sourceInstanceID
	c.sourceChannel = sourceChannel
	c.status = Connected
	return nil
}

// Disconnect tears down the connection, resetting status.
func (c *InputChannel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = Disconnected
	c.sourceInstanceID = ""
	c.sourceChannel = ""
}

// deliver dispatches one packet to the registered handlers, matching the
// order a device class expects: the generic InputHandler first (so
// bookkeeping sees every arrival), then the typed DataHandler.
func (c *InputChannel) deliver(data *hash.Hash, ts timestamp.Timestamp) {
	c.mu.Lock()
	input, dataH := c.inputHandler, c.dataHandler
	c.mu.Unlock()
	if input != nil {
		input(c)
	}
	if dataH != nil {
		dataH(data, ts)
	}
}

// endOfStream invokes the registered EndOfStreamHandler, if any.
func (c *InputChannel) endOfStream() {
	c.mu.Lock()
	h := c.eosHandler
	c.mu.Unlock()
	if h != nil {
		h()
	}
}

// OutputChannel is the surface a device exposes for pipeline data
// output: Write and SignalEndOfStream, mutually exclusive per channel
// name — the two must never run concurrently for the same channel.
type OutputChannel struct {
	Name string

	mu sync.Mutex

	downstream []*InputChannel
}

// NewOutputChannel constructs an OutputChannel with no connected
// downstream InputChannels.
func NewOutputChannel(name string) *OutputChannel {
	return &OutputChannel{Name: name}
}

// connectDownstream wires an InputChannel to receive packets written to
// this OutputChannel — an in-process stand-in for the external pipeline
// transport, whose wire format is out of scope here.
func (o *OutputChannel) connectDownstream(in *InputChannel) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.downstream = append(o.downstream, in)
}

// Write publishes one data packet (with timestamp) to every connected
// downstream InputChannel. safeNDArray marks whether the payload's
// backing array is safe to retain without copying, which a real
// cross-process pipeline transport would use to avoid a copy on the
// fast path; the in-process stand-in here always delivers a reference,
// since there is no process boundary to cross.
func (o *OutputChannel) Write(ctx context.Context, data *hash.Hash, ts timestamp.Timestamp, safeNDArray bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	for _, in := range o.downstream {
		in.deliver(data, ts)
	}
	return nil
}

// SignalEndOfStream notifies every connected downstream InputChannel
// that the stream has ended.
func (o *OutputChannel) SignalEndOfStream(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	for _, in := range o.downstream {
		in.endOfStream()
	}
	return nil
}

// syncChannels (re)creates InputChannel/OutputChannel objects for every
// channel path named in d.fullSchema, preserving the object (and
// therefore its registered handlers) for any path that already has one,
// so existing InputChannel handlers survive an appendSchema call. Must be called
// with d.mu held.
func (d *Device) syncChannels() {
	if d.inputChannels == nil {
		d.inputChannels = make(map[string]*InputChannel)
	}
	if d.outputChannels == nil {
		d.outputChannels = make(map[string]*OutputChannel)
	}
	inputs, outputs := d.fullSchema.ChannelPaths()

	wantInput := make(map[string]bool, len(inputs))
	for _, path := range inputs {
		wantInput[path] = true
		if _, ok := d.inputChannels[path]; !ok {
			d.inputChannels[path] = NewInputChannel(path)
		}
	}
	for path := range d.inputChannels {
		if !wantInput[path] {
			delete(d.inputChannels, path)
		}
	}

	wantOutput := make(map[string]bool, len(outputs))
	for _, path := range outputs {
		wantOutput[path] = true
		if _, ok := d.outputChannels[path]; !ok {
			d.outputChannels[path] = NewOutputChannel(path)
		}
	}
	for path := range d.outputChannels {
		if !wantOutput[path] {
			delete(d.outputChannels, path)
		}
	}
}

// InputChannel returns the named input channel, if the schema declares
// one at that path.
func (d *Device) InputChannel(path string) (*InputChannel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.inputChannels[path]
	return ch, ok
}

// OutputChannel returns the named output channel, if the schema
// declares one at that path.
func (d *Device) OutputChannel(path string) (*OutputChannel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.outputChannels[path]
	return ch, ok
}

// ConnectChannels wires an in-process OutputChannel to an InputChannel
// by path, for devices composed within the same process (the common
// case in tests and in single-process device-server deployments).
func (d *Device) ConnectChannels(outputPath string, peer *Device, inputPath string) error {
	out, ok := d.OutputChannel(outputPath)
	if !ok {
		return fmt.Errorf("device: no output channel %q on %s", outputPath, d.ID)
	}
	in, ok := peer.InputChannel(inputPath)
	if !ok {
		return fmt.Errorf("device: no input channel %q on %s", inputPath, peer.ID)
	}
	out.connectDownstream(in)
	_ = in.Connect(context.Background(), d.ID, outputPath)
	return nil
}
