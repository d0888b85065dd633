package wrtc

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const kindChannel = "datachannel"

// DataChannel mirrors a native data channel. Channel events are delivered
// through the owning connection's queue, in order with its other events.
type DataChannel struct {
	lifetime
	pc     *PeerConnection
	native NativeDataChannel
	queue  *Queue
	log    logrus.FieldLogger

	mu                  sync.Mutex
	state               DataChannelState
	onOpen              func()
	onClose             func()
	onBufferedAmountLow func()
	onMessage           func(DataChannelMessage)
	onError             func(error)
}

// upsertChannelLocked registers n. created reports whether it was new.
func (pc *PeerConnection) upsertChannelLocked(n NativeDataChannel) (*DataChannel, bool) {
	dc, created := pc.channels.GetOrCreate(n.Handle(), func() *DataChannel {
		return &DataChannel{
			pc:     pc,
			native: n,
			queue:  pc.queue,
			log:    pc.log.WithField("label", n.Label()),
			state:  n.ReadyState(),
		}
	}, nil)
	if created {
		n.Observe(dc.observe)
	}
	return dc, created
}

func (dc *DataChannel) observe(ev DataChannelEvent) {
	if err := dc.queue.Post(func() { dc.handle(ev) }); err != nil {
		dc.log.WithError(err).Warn("dropping data channel event")
	}
}

func (dc *DataChannel) handle(ev DataChannelEvent) {
	var fire func()
	dc.mu.Lock()
	switch e := ev.(type) {
	case DataChannelStateChange:
		if dc.state == DataChannelStateClosed || dc.state == e.State {
			break
		}
		dc.state = e.State
		switch e.State {
		case DataChannelStateOpen:
			fire = dc.onOpen
		case DataChannelStateClosed:
			fire = dc.onClose
		}
	case DataChannelMessage:
		if cb := dc.onMessage; cb != nil && dc.state != DataChannelStateClosed {
			fire = func() { cb(e) }
		}
	case DataChannelError:
		if cb := dc.onError; cb != nil {
			fire = func() { cb(e.Err) }
		}
	case DataChannelBufferedAmountLow:
		fire = dc.onBufferedAmountLow
	}
	dc.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// onPeerConnectionClosed marks the channel closed and returns the close
// callback to fire, if the state changed.
func (dc *DataChannel) onPeerConnectionClosed() func() {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.state == DataChannelStateClosed {
		return nil
	}
	dc.state = DataChannelStateClosed
	return dc.onClose
}

func (dc *DataChannel) Label() string                     { return dc.native.Label() }
func (dc *DataChannel) ID() (uint16, bool)                { return dc.native.ID() }
func (dc *DataChannel) Ordered() bool                     { return dc.native.Ordered() }
func (dc *DataChannel) Protocol() string                  { return dc.native.Protocol() }
func (dc *DataChannel) Negotiated() bool                  { return dc.native.Negotiated() }
func (dc *DataChannel) MaxRetransmits() (uint16, bool)    { return dc.native.MaxRetransmits() }
func (dc *DataChannel) MaxPacketLifeTime() (uint16, bool) { return dc.native.MaxPacketLifeTime() }

func (dc *DataChannel) ReadyState() DataChannelState {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.state
}

func (dc *DataChannel) BufferedAmount() uint64 {
	if dc.ReadyState() == DataChannelStateClosed {
		return 0
	}
	return dc.native.BufferedAmount()
}

// Send sends a binary message.
func (dc *DataChannel) Send(data []byte) error {
	return dc.send(data, true)
}

// SendText sends a text message.
func (dc *DataChannel) SendText(text string) error {
	return dc.send([]byte(text), false)
}

func (dc *DataChannel) send(data []byte, binary bool) error {
	if s := dc.ReadyState(); s != DataChannelStateOpen {
		return invalidState("send", "the data channel is "+s.String())
	}
	if err := dc.native.Send(data, binary); err != nil {
		return engineError("send", err)
	}
	return nil
}

// Close starts the closing handshake. The close callback fires once the
// engine reports the channel closed.
func (dc *DataChannel) Close() error {
	dc.mu.Lock()
	if dc.state == DataChannelStateClosing || dc.state == DataChannelStateClosed {
		dc.mu.Unlock()
		return nil
	}
	dc.state = DataChannelStateClosing
	dc.mu.Unlock()

	if err := dc.native.Close(); err != nil {
		return engineError("close", err)
	}
	return nil
}

func (dc *DataChannel) OnOpen(fn func()) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.onOpen = fn
}

func (dc *DataChannel) OnClose(fn func()) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.onClose = fn
}

func (dc *DataChannel) OnMessage(fn func(DataChannelMessage)) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.onMessage = fn
}

func (dc *DataChannel) OnError(fn func(error)) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.onError = fn
}

func (dc *DataChannel) OnBufferedAmountLow(fn func()) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.onBufferedAmountLow = fn
}
