//go:build darwin || linux

package nativeengine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

var (
	shimOnce    sync.Once
	shimHandle  uintptr
	shimInitErr error

	eventCallback uintptr
)

// libwrtc_shim function pointers
var (
	shimFactoryCreate  func() uint64
	shimFactoryDestroy func(factory uint64)
	shimVersion        func() uintptr
	shimLastError      func() uintptr
	shimFreeString     func(ptr uintptr)

	shimPCCreate           func(factory uint64, config string, callback, user uintptr) uint64
	shimPCCreateOffer      func(pc uint64, options string, request uint64)
	shimPCCreateAnswer     func(pc uint64, options string, request uint64)
	shimPCSetLocal         func(pc uint64, sdpType int32, sdp string, request uint64)
	shimPCSetRemote        func(pc uint64, sdpType int32, sdp string, request uint64)
	shimPCAddCandidate     func(pc uint64, candidate string, request uint64)
	shimPCGetStats         func(pc uint64, request uint64)
	shimPCAddTrack         func(pc uint64, track uint64, streams string) uint64
	shimPCRemoveTrack      func(pc uint64, sender uint64) int32
	shimPCAddTransceiver   func(pc uint64, kind int32, track uint64, init string) uint64
	shimPCCreateChannel    func(pc uint64, label string, init string) uint64
	shimPCList             func(pc uint64, which int32, out uintptr, capacity int32) int32
	shimPCSCTP             func(pc uint64) uint64
	shimPCSetConfiguration func(pc uint64, config string) int32
	shimPCState            func(pc uint64, which int32) int32
	shimPCDescription      func(pc uint64, which int32, sdpType uintptr) uintptr
	shimPCRestartICE       func(pc uint64)
	shimPCClose            func(pc uint64)
	shimPCDestroy          func(pc uint64)

	shimTransceiverInfo         func(t uint64) uintptr
	shimTransceiverSetDirection func(t uint64, direction int32) int32
	shimTransceiverStop         func(t uint64) int32
	shimTransceiverSetCodecs    func(t uint64, codecs string) int32

	shimSenderInfo          func(s uint64) uintptr
	shimSenderReplaceTrack  func(s uint64, track uint64) int32
	shimSenderSetStreams    func(s uint64, streams string) int32
	shimSenderParameters    func(s uint64) uintptr
	shimSenderSetParameters func(s uint64, params string) int32

	shimReceiverInfo func(r uint64) uintptr

	shimTrackCreate     func(factory uint64, kind int32, id string) uint64
	shimTrackInfo       func(t uint64) uintptr
	shimTrackSetEnabled func(t uint64, enabled int32)
	shimTrackRelease    func(t uint64)

	shimChannelInfo    func(dc uint64) uintptr
	shimChannelSend    func(dc uint64, data uintptr, n int32, binary int32) int32
	shimChannelClose   func(dc uint64) int32
	shimChannelObserve func(dc uint64, callback, user uintptr)

	shimDTLSState func(t uint64) int32
	shimSCTPInfo  func(t uint64) uintptr
)

// Selectors for shimPCList, shimPCState and shimPCDescription.
const (
	listSenders      = 0
	listReceivers    = 1
	listTransceivers = 2

	stateSignaling     = 0
	stateICEConnection = 1
	stateConnection    = 2
	stateGathering     = 3

	descLocal         = 0
	descCurrentLocal  = 1
	descPendingLocal  = 2
	descRemote        = 3
	descCurrentRemote = 4
	descPendingRemote = 5
)

// loadShim loads libwrtc_shim once.
func loadShim(libPath, sdkPath string) error {
	shimOnce.Do(func() {
		shimInitErr = loadShimLib(libPaths(libPath, sdkPath))
		if shimInitErr == nil {
			eventCallback = purego.NewCallback(eventCallbackHandler)
		}
	})
	return shimInitErr
}

func loadShimLib(paths []string) error {
	var lastErr error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := loadShimSymbols(handle); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		shimHandle = handle
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libwrtc_shim: %w", lastErr)
	}
	return errors.New("libwrtc_shim not found in any standard location")
}

func libName() string {
	if runtime.GOOS == "darwin" {
		return "libwrtc_shim.dylib"
	}
	return "libwrtc_shim.so"
}

// libPaths lists candidate locations, most specific first.
func libPaths(libPath, sdkPath string) []string {
	name := libName()
	var paths []string
	if libPath != "" {
		paths = append(paths, libPath)
	}
	if sdkPath != "" {
		paths = append(paths, filepath.Join(sdkPath, name))
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(dir, name),
			filepath.Join(dir, "..", "lib", name),
		)
	}
	for _, dev := range []string{"build", "../build", "../../build"} {
		paths = append(paths, filepath.Join(dev, name))
	}

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths, name, "/usr/local/lib/"+name, "/opt/homebrew/lib/"+name)
	case "linux":
		paths = append(paths, name, "/usr/local/lib/"+name, "/usr/lib/"+name)
	}
	return paths
}

func loadShimSymbols(h uintptr) (err error) {
	// RegisterLibFunc panics on a missing symbol.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libwrtc_shim: %v", r)
		}
	}()

	purego.RegisterLibFunc(&shimFactoryCreate, h, "wrtc_factory_create")
	purego.RegisterLibFunc(&shimFactoryDestroy, h, "wrtc_factory_destroy")
	purego.RegisterLibFunc(&shimVersion, h, "wrtc_version")
	purego.RegisterLibFunc(&shimLastError, h, "wrtc_last_error")
	purego.RegisterLibFunc(&shimFreeString, h, "wrtc_free_string")

	purego.RegisterLibFunc(&shimPCCreate, h, "wrtc_pc_create")
	purego.RegisterLibFunc(&shimPCCreateOffer, h, "wrtc_pc_create_offer")
	purego.RegisterLibFunc(&shimPCCreateAnswer, h, "wrtc_pc_create_answer")
	purego.RegisterLibFunc(&shimPCSetLocal, h, "wrtc_pc_set_local_description")
	purego.RegisterLibFunc(&shimPCSetRemote, h, "wrtc_pc_set_remote_description")
	purego.RegisterLibFunc(&shimPCAddCandidate, h, "wrtc_pc_add_ice_candidate")
	purego.RegisterLibFunc(&shimPCGetStats, h, "wrtc_pc_get_stats")
	purego.RegisterLibFunc(&shimPCAddTrack, h, "wrtc_pc_add_track")
	purego.RegisterLibFunc(&shimPCRemoveTrack, h, "wrtc_pc_remove_track")
	purego.RegisterLibFunc(&shimPCAddTransceiver, h, "wrtc_pc_add_transceiver")
	purego.RegisterLibFunc(&shimPCCreateChannel, h, "wrtc_pc_create_data_channel")
	purego.RegisterLibFunc(&shimPCList, h, "wrtc_pc_list")
	purego.RegisterLibFunc(&shimPCSCTP, h, "wrtc_pc_sctp")
	purego.RegisterLibFunc(&shimPCSetConfiguration, h, "wrtc_pc_set_configuration")
	purego.RegisterLibFunc(&shimPCState, h, "wrtc_pc_state")
	purego.RegisterLibFunc(&shimPCDescription, h, "wrtc_pc_description")
	purego.RegisterLibFunc(&shimPCRestartICE, h, "wrtc_pc_restart_ice")
	purego.RegisterLibFunc(&shimPCClose, h, "wrtc_pc_close")
	purego.RegisterLibFunc(&shimPCDestroy, h, "wrtc_pc_destroy")

	purego.RegisterLibFunc(&shimTransceiverInfo, h, "wrtc_transceiver_info")
	purego.RegisterLibFunc(&shimTransceiverSetDirection, h, "wrtc_transceiver_set_direction")
	purego.RegisterLibFunc(&shimTransceiverStop, h, "wrtc_transceiver_stop")
	purego.RegisterLibFunc(&shimTransceiverSetCodecs, h, "wrtc_transceiver_set_codec_preferences")

	purego.RegisterLibFunc(&shimSenderInfo, h, "wrtc_sender_info")
	purego.RegisterLibFunc(&shimSenderReplaceTrack, h, "wrtc_sender_replace_track")
	purego.RegisterLibFunc(&shimSenderSetStreams, h, "wrtc_sender_set_streams")
	purego.RegisterLibFunc(&shimSenderParameters, h, "wrtc_sender_parameters")
	purego.RegisterLibFunc(&shimSenderSetParameters, h, "wrtc_sender_set_parameters")

	purego.RegisterLibFunc(&shimReceiverInfo, h, "wrtc_receiver_info")

	purego.RegisterLibFunc(&shimTrackCreate, h, "wrtc_track_create")
	purego.RegisterLibFunc(&shimTrackInfo, h, "wrtc_track_info")
	purego.RegisterLibFunc(&shimTrackSetEnabled, h, "wrtc_track_set_enabled")
	purego.RegisterLibFunc(&shimTrackRelease, h, "wrtc_track_release")

	purego.RegisterLibFunc(&shimChannelInfo, h, "wrtc_dc_info")
	purego.RegisterLibFunc(&shimChannelSend, h, "wrtc_dc_send")
	purego.RegisterLibFunc(&shimChannelClose, h, "wrtc_dc_close")
	purego.RegisterLibFunc(&shimChannelObserve, h, "wrtc_dc_observe")

	purego.RegisterLibFunc(&shimDTLSState, h, "wrtc_dtls_state")
	purego.RegisterLibFunc(&shimSCTPInfo, h, "wrtc_sctp_info")
	return nil
}

// takeString copies and frees a string returned by the shim.
func takeString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	s := goString(ptr)
	shimFreeString(ptr)
	return s
}

func lastError() error {
	ptr := shimLastError()
	if ptr == 0 {
		return errors.New("libwrtc_shim: unknown error")
	}
	return errors.New(goString(ptr))
}

// check converts a shim status code into an error.
func check(status int32) error {
	if status == 0 {
		return nil
	}
	return lastError()
}

// Version returns the shim's version string, or "" if it cannot be loaded.
func Version() string {
	if err := loadShim(os.Getenv("WRTC_LIB_PATH"), os.Getenv("WRTC_SDK_LIB_PATH")); err != nil {
		return ""
	}
	return goString(shimVersion())
}
