package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/vigil/pkg/provider/wake"
)

// ErrEngineNotRegistered is returned by [CreateWakeEngine] when no factory
// has been registered under the requested name.
var ErrEngineNotRegistered = errors.New("config: wake engine not registered")

// WakeEngineFactory constructs a wake-word scoring engine.
type WakeEngineFactory func() (wake.Engine, error)

// registry maps engine names to factories. The main package registers the
// built-in "energy" engine at startup; alternative scorers (a real keyword
// model) register the same way.
var (
	registryMu  sync.RWMutex
	wakeEngines = make(map[string]WakeEngineFactory)
)

// RegisterWakeEngine makes a factory available under name. Later
// registrations of the same name win, which lets tests install fakes.
func RegisterWakeEngine(name string, factory WakeEngineFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	wakeEngines[name] = factory
}

// CreateWakeEngine instantiates the engine registered under name.
func CreateWakeEngine(name string) (wake.Engine, error) {
	registryMu.RLock()
	factory, ok := wakeEngines[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrEngineNotRegistered, name, WakeEngineNames())
	}
	return factory()
}

// WakeEngineNames returns the registered engine names.
func WakeEngineNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(wakeEngines))
	for name := range wakeEngines {
		names = append(names, name)
	}
	return names
}
