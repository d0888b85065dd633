package enginetest

import (
	"errors"
	"sync"

	"github.com/thesyncim/wrtc"
)

// DataChannel is a fake data channel. Once the connection is linked to a
// peer, messages sent on it arrive on its twin in the peer.
type DataChannel struct {
	handle  uintptr
	pc      *PeerConnection
	label   string
	local   bool
	init    wrtc.DataChannelInit
	ordered bool

	mu       sync.Mutex
	id       uint16
	hasID    bool
	state    wrtc.DataChannelState
	twin     *DataChannel
	observer func(wrtc.DataChannelEvent)
	backlog  []wrtc.DataChannelEvent
	sent     []wrtc.DataChannelMessage
}

func (pc *PeerConnection) newChannelLocked(label string, init wrtc.DataChannelInit, local bool) *DataChannel {
	dc := &DataChannel{
		handle:  nextHandle(),
		pc:      pc,
		label:   label,
		local:   local,
		init:    init,
		ordered: init.Ordered == nil || *init.Ordered,
		state:   wrtc.DataChannelStateConnecting,
	}
	if init.ID != nil {
		dc.id, dc.hasID = *init.ID, true
	} else if pc.conn == wrtc.PeerConnectionStateConnected {
		dc.id, dc.hasID = pc.nextChannelID, true
		pc.nextChannelID += 2
	}
	pc.channels = append(pc.channels, dc)
	return dc
}

// assignIDLocked gives the channel the next stream id once the
// association is up. Requires pc.mu.
func (dc *DataChannel) assignIDLocked() {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.hasID {
		return
	}
	dc.id, dc.hasID = dc.pc.nextChannelID, true
	dc.pc.nextChannelID += 2
}

func (dc *DataChannel) Handle() uintptr  { return dc.handle }
func (dc *DataChannel) Label() string    { return dc.label }
func (dc *DataChannel) Ordered() bool    { return dc.ordered }
func (dc *DataChannel) Protocol() string { return dc.init.Protocol }
func (dc *DataChannel) Negotiated() bool { return dc.init.Negotiated }

func (dc *DataChannel) ID() (uint16, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.id, dc.hasID
}

func (dc *DataChannel) MaxRetransmits() (uint16, bool) {
	if dc.init.MaxRetransmits == nil {
		return 0, false
	}
	return *dc.init.MaxRetransmits, true
}

func (dc *DataChannel) MaxPacketLifeTime() (uint16, bool) {
	if dc.init.MaxPacketLifeTime == nil {
		return 0, false
	}
	return *dc.init.MaxPacketLifeTime, true
}

func (dc *DataChannel) ReadyState() wrtc.DataChannelState {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.state
}

func (dc *DataChannel) BufferedAmount() uint64 { return 0 }

// Observe registers the event sink and replays events raised before it.
func (dc *DataChannel) Observe(fn func(wrtc.DataChannelEvent)) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.observer = fn
	for _, ev := range dc.backlog {
		fn(ev)
	}
	dc.backlog = nil
}

// emit hands ev to the observer. The observer only queues, so it is called
// with mu held to keep events in order.
func (dc *DataChannel) emit(ev wrtc.DataChannelEvent) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if dc.observer == nil {
		dc.backlog = append(dc.backlog, ev)
		return
	}
	dc.observer(ev)
}

func (dc *DataChannel) setState(s wrtc.DataChannelState) {
	dc.mu.Lock()
	if dc.state == s || dc.state == wrtc.DataChannelStateClosed {
		dc.mu.Unlock()
		return
	}
	dc.state = s
	dc.mu.Unlock()
	dc.emit(wrtc.DataChannelStateChange{State: s})
}

// Send records the message and delivers it to the twin, if linked.
func (dc *DataChannel) Send(data []byte, binary bool) error {
	dc.mu.Lock()
	if dc.state != wrtc.DataChannelStateOpen {
		dc.mu.Unlock()
		return errors.New("enginetest: data channel not open")
	}
	msg := wrtc.DataChannelMessage{Data: append([]byte(nil), data...), Binary: binary}
	dc.sent = append(dc.sent, msg)
	twin := dc.twin
	dc.mu.Unlock()

	if twin != nil {
		twin.pc.w.do(func() { twin.emit(msg) })
	}
	return nil
}

// Sent returns every message sent on the channel.
func (dc *DataChannel) Sent() []wrtc.DataChannelMessage {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return append([]wrtc.DataChannelMessage(nil), dc.sent...)
}

// Close closes the channel and its twin.
func (dc *DataChannel) Close() error {
	dc.mu.Lock()
	twin := dc.twin
	dc.mu.Unlock()
	dc.pc.w.do(func() {
		dc.setState(wrtc.DataChannelStateClosing)
		dc.setState(wrtc.DataChannelStateClosed)
	})
	if twin != nil {
		twin.pc.w.do(func() {
			twin.setState(wrtc.DataChannelStateClosing)
			twin.setState(wrtc.DataChannelStateClosed)
		})
	}
	return nil
}

// closeLocal marks the channel closed without events and closes the twin.
func (dc *DataChannel) closeLocal() {
	dc.mu.Lock()
	dc.state = wrtc.DataChannelStateClosed
	twin := dc.twin
	dc.mu.Unlock()
	if twin != nil {
		twin.pc.w.do(func() { twin.setState(wrtc.DataChannelStateClosed) })
	}
}

// Open moves the channel to open.
func (dc *DataChannel) Open() {
	dc.pc.w.do(func() { dc.setState(wrtc.DataChannelStateOpen) })
}

// Receive delivers a message as if it came from the remote peer.
func (dc *DataChannel) Receive(data []byte, binary bool) {
	msg := wrtc.DataChannelMessage{Data: append([]byte(nil), data...), Binary: binary}
	dc.pc.w.do(func() { dc.emit(msg) })
}

// Fail reports a channel error.
func (dc *DataChannel) Fail(err error) {
	dc.pc.w.do(func() { dc.emit(wrtc.DataChannelError{Err: err}) })
}

// DeliverDataChannel simulates the remote peer opening a channel: the
// bridge receives DataChannelOpened and the channel opens.
func (pc *PeerConnection) DeliverDataChannel(label string, init wrtc.DataChannelInit) *DataChannel {
	pc.mu.Lock()
	dc := pc.newChannelLocked(label, init, false)
	pc.mu.Unlock()
	pc.w.do(func() {
		dc.setState(wrtc.DataChannelStateOpen)
		pc.emit(wrtc.DataChannelOpened{Channel: dc})
	})
	return dc
}

// linkChannels creates a twin in the peer for every local channel that has
// none yet, then opens both ends.
func (pc *PeerConnection) linkChannels() {
	pc.mu.Lock()
	peer := pc.peer
	var pending []*DataChannel
	if !pc.closed && pc.conn == wrtc.PeerConnectionStateConnected {
		for _, dc := range pc.channels {
			if dc.local && dc.ReadyState() == wrtc.DataChannelStateConnecting {
				dc.assignIDLocked()
				pending = append(pending, dc)
			}
		}
	}
	pc.mu.Unlock()

	for _, dc := range pending {
		if peer != nil && !dc.linked() {
			peer.accept(dc)
		}
		dc.setState(wrtc.DataChannelStateOpen)
	}
}

func (dc *DataChannel) linked() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.twin != nil
}

// accept creates the remote end of dc in pc.
func (pc *PeerConnection) accept(dc *DataChannel) {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return
	}
	twinInit := dc.init
	if id, ok := dc.ID(); ok {
		twinInit.ID = &id
	}
	twin := pc.newChannelLocked(dc.label, twinInit, false)
	pc.mu.Unlock()

	dc.mu.Lock()
	dc.twin = twin
	dc.mu.Unlock()
	twin.mu.Lock()
	twin.twin = dc
	twin.mu.Unlock()

	pc.w.do(func() {
		twin.setState(wrtc.DataChannelStateOpen)
		pc.emit(wrtc.DataChannelOpened{Channel: twin})
	})
}
