package wrtc

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Backend identifies an Engine implementation.
type Backend uint8

const (
	BackendAuto   Backend = iota // First available backend
	BackendPion                  // Pure Go engine (pion/webrtc)
	BackendNative                // libwebrtc shim loaded at runtime
	BackendFake                  // Deterministic in-memory engine for tests
	backendCount
)

// Features is a bitmask of backend capabilities.
type Features uint32

const (
	FeatureUnifiedPlan       Features = 1 << iota // Transceiver-based negotiation
	FeaturePlanB                                  // Legacy stream-based negotiation
	FeatureCurrentDirection                       // Reports negotiated direction
	FeatureICECandidateError                      // Reports candidate gathering failures
	FeatureNativeThreads                          // Callbacks fire on foreign threads
)

// Has returns true if all specified features are supported.
func (f Features) Has(feature Features) bool { return f&feature == feature }

// EngineFactory opens an Engine from process configuration.
type EngineFactory func(cfg Config) (Engine, error)

type backendMeta struct {
	Name     string
	Features Features
}

var backendInfo = [backendCount]backendMeta{
	BackendAuto:   {"auto", 0},
	BackendPion:   {"pion", FeatureUnifiedPlan},
	BackendNative: {"native", FeatureUnifiedPlan | FeaturePlanB | FeatureCurrentDirection | FeatureICECandidateError | FeatureNativeThreads},
	BackendFake:   {"fake", FeatureUnifiedPlan | FeaturePlanB | FeatureCurrentDirection | FeatureICECandidateError},
}

// Runtime availability - set by RegisterBackend in backend packages.
var (
	backendAvailable [backendCount]atomic.Bool
	backendMu        sync.RWMutex
	backendFactories [backendCount]EngineFactory
)

func (b Backend) String() string {
	if b >= backendCount {
		return "unknown"
	}
	return backendInfo[b].Name
}

// Features returns the backend's feature bitmask.
func (b Backend) Features() Features {
	if b >= backendCount {
		return 0
	}
	return backendInfo[b].Features
}

// Available returns true if the backend has been registered.
func (b Backend) Available() bool {
	if b >= backendCount {
		return false
	}
	return backendAvailable[b].Load()
}

// ParseBackend parses a backend name.
func ParseBackend(name string) (Backend, error) {
	for b := Backend(0); b < backendCount; b++ {
		if backendInfo[b].Name == name {
			return b, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown engine backend %q", ErrNotSupported, name)
}

// RegisterBackend makes a backend available to OpenEngine. Backend packages
// call it from init.
func RegisterBackend(b Backend, factory EngineFactory) {
	if b == BackendAuto || b >= backendCount {
		panic(fmt.Sprintf("wrtc: cannot register backend %d", b))
	}
	backendMu.Lock()
	backendFactories[b] = factory
	backendMu.Unlock()
	backendAvailable[b].Store(true)
}

// OpenEngine opens the backend named by cfg.Engine. "auto" picks the first
// registered backend in table order.
func OpenEngine(cfg Config) (Engine, error) {
	b, err := ParseBackend(cfg.Engine)
	if err != nil {
		return nil, err
	}
	backendMu.RLock()
	defer backendMu.RUnlock()
	if b == BackendAuto {
		for c := BackendPion; c < backendCount; c++ {
			if backendFactories[c] != nil {
				return backendFactories[c](cfg)
			}
		}
		return nil, fmt.Errorf("%w: no engine backend registered", ErrNotSupported)
	}
	if backendFactories[b] == nil {
		return nil, fmt.Errorf("%w: engine backend %q not registered", ErrNotSupported, b)
	}
	return backendFactories[b](cfg)
}
