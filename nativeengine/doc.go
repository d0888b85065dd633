// Package nativeengine implements the wrtc Engine over libwrtc_shim, a thin
// C wrapper around libwebrtc with a primitive-only API, loaded at runtime
// via purego.
//
// Shim ABI
//
// Every native object is an opaque uint64 handle; 0 means none. Enum values
// use the integer order of the matching wrtc type. Structured values
// (configuration, transceiver snapshots, parameters, stats) travel as JSON
// strings. Strings returned by the shim are malloc'd and released with
// wrtc_free_string; wrtc_last_error returns the calling thread's last
// failure. include/wrtc_shim.h declares the full ABI.
//
// Notifications from the shim's signaling and network threads arrive on a
// single callback:
//
//	void (*wrtc_event_cb)(uintptr_t user, int32_t kind, uint64_t handle,
//	                      int32_t value, const char *data, int32_t len);
//
// where user is the value registered with wrtc_pc_create or
// wrtc_dc_observe. Asynchronous operations take a request id and complete
// through the same callback with kind eventComplete, value 0 on success and
// data holding the result or the error text.
//
// Importing the package registers the backend under the name "native" on
// platforms purego supports.
package nativeengine
