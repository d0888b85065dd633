// Package wrtc bridges a native real-time media engine into Go. The engine
// (pion/webrtc, or libwebrtc through a C shim) negotiates and carries media;
// wrtc keeps a browser-style object model on top of it: peer connections,
// transceivers, senders, receivers, tracks, streams and data channels.
//
// # Architecture
//
//	engine goroutines -> EngineObserver -> Queue (per connection) -> Loop
//	Loop task: update state, reconcile registries -> user callbacks
//
// Each PeerConnection keeps one registry per proxy kind, keyed by the native
// identity (transceiver handle, sender/receiver/track/stream id, channel
// handle). A registry holds exactly one proxy per identity and releases it
// exactly once on removal or close. Tracks a connection sends but does not
// own are referenced once per connection, however many senders use them.
//
// After every successful setLocalDescription/setRemoteDescription the
// connection reconciles its registries against the engine's live entities:
// transceivers in unified-plan mode, receivers in plan-b mode. The mode is
// fixed when the connection is created.
//
// # Threading
//
// Engines call back on their own goroutines. Every callback is posted to the
// connection's Queue and executed by the Loop goroutine in order, one task
// at a time. Asynchronous operations return a Pending whose continuations
// also run on the Loop.
//
// # Engines
//
// Backends register themselves with RegisterBackend: import
// github.com/thesyncim/wrtc/pionengine for the pure Go engine, or
// github.com/thesyncim/wrtc/nativeengine for the libwebrtc shim (set
// WRTC_LIB_PATH or WRTC_SDK_LIB_PATH). OpenEngine selects one from Config.
//
// # Context
//
// A Context is the reference-counted engine factory shared by connections.
// Each connection holds one reference from creation until Close;
// Context.Shutdown closes whatever is left.
package wrtc
