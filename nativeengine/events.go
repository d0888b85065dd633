package nativeengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/thesyncim/wrtc"
)

// Event kinds delivered to the shim callback.
const (
	eventSignaling         = 1
	eventICEConnection     = 2
	eventConnection        = 3
	eventGathering         = 4
	eventCandidate         = 5
	eventCandidateError    = 6
	eventDataChannel       = 7
	eventTrack             = 8
	eventReceiver          = 9
	eventNegotiationNeeded = 10
	eventComplete          = 11

	eventChannelState   = 20
	eventChannelMessage = 21
	eventChannelError   = 22
	eventChannelLow     = 23
)

// sink receives decoded shim notifications for one registered user id.
type sink interface {
	engineEvent(kind int32, handle uint64, value int32, data []byte)
}

// Registry for callback targets. The shim only sees integer ids.
var (
	sinks      sync.Map // uintptr -> sink
	sinkSerial atomic.Uintptr
)

func register(s sink) uintptr {
	id := sinkSerial.Add(1)
	sinks.Store(id, s)
	return id
}

func unregister(id uintptr) { sinks.Delete(id) }

// eventCallbackHandler is the Go side of wrtc_event_cb. The shim owns data
// only for the duration of the call.
func eventCallbackHandler(user uintptr, kind int32, handle uint64, value int32, data uintptr, n int32) {
	dispatch(user, kind, handle, value, copyBytes(data, n))
}

func dispatch(user uintptr, kind int32, handle uint64, value int32, data []byte) {
	v, ok := sinks.Load(user)
	if !ok {
		return
	}
	v.(sink).engineEvent(kind, handle, value, data)
}

func copyBytes(ptr uintptr, n int32) []byte {
	if ptr == 0 || n <= 0 {
		return nil
	}
	return append([]byte(nil), unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)...)
}

// goString copies a NUL-terminated C string.
func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Pointer(ptr + uintptr(n))) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
}

type candidateJSON struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex"`
	UsernameFragment *string `json:"usernameFragment"`
}

type candidateErrorJSON struct {
	HostCandidate string `json:"hostCandidate"`
	URL           string `json:"url"`
	ErrorCode     int    `json:"errorCode"`
	ErrorText     string `json:"errorText"`
}

// connectionEvent decodes a connection-level notification. Notifications
// needing native objects are resolved by the caller; ok is false for kinds
// this function does not handle.
func connectionEvent(kind int32, value int32, data []byte) (wrtc.EngineEvent, bool, error) {
	switch kind {
	case eventSignaling:
		return wrtc.SignalingChange{State: wrtc.SignalingState(value)}, true, nil
	case eventICEConnection:
		return wrtc.ICEConnectionChange{State: wrtc.ICEConnectionState(value)}, true, nil
	case eventConnection:
		return wrtc.ConnectionChange{State: wrtc.PeerConnectionState(value)}, true, nil
	case eventGathering:
		return wrtc.ICEGatheringChange{State: wrtc.ICEGatheringState(value)}, true, nil
	case eventNegotiationNeeded:
		return wrtc.NegotiationNeeded{}, true, nil
	case eventCandidate:
		if len(data) == 0 {
			return wrtc.ICECandidateFound{}, true, nil
		}
		var c candidateJSON
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, true, fmt.Errorf("decode candidate: %w", err)
		}
		return wrtc.ICECandidateFound{Candidate: &wrtc.ICECandidateInit{
			Candidate:        c.Candidate,
			SDPMid:           c.SDPMid,
			SDPMLineIndex:    c.SDPMLineIndex,
			UsernameFragment: c.UsernameFragment,
		}}, true, nil
	case eventCandidateError:
		var c candidateErrorJSON
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, true, fmt.Errorf("decode candidate error: %w", err)
		}
		return wrtc.ICECandidateFailed{Error: wrtc.ICECandidateError(c)}, true, nil
	}
	return nil, false, nil
}

func channelEvent(kind int32, value int32, data []byte) (wrtc.DataChannelEvent, bool) {
	switch kind {
	case eventChannelState:
		return wrtc.DataChannelStateChange{State: wrtc.DataChannelState(value)}, true
	case eventChannelMessage:
		return wrtc.DataChannelMessage{Data: data, Binary: value != 0}, true
	case eventChannelError:
		return wrtc.DataChannelError{Err: errors.New(string(data))}, true
	case eventChannelLow:
		return wrtc.DataChannelBufferedAmountLow{}, true
	}
	return nil, false
}

// requests maps request ids of asynchronous shim calls to their
// completions.
type requests struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]func(ok bool, payload string)
}

func (r *requests) add(done func(ok bool, payload string)) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		r.pending = make(map[uint64]func(bool, string))
	}
	r.next++
	r.pending[r.next] = done
	return r.next
}

func (r *requests) complete(id uint64, status int32, payload []byte) {
	r.mu.Lock()
	done, ok := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()
	if ok {
		done(status == 0, string(payload))
	}
}

// fail completes every outstanding request, e.g. when the connection is
// destroyed before the shim answers.
func (r *requests) fail(reason string) {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	for _, done := range pending {
		done(false, reason)
	}
}
