package levelx

import "sync"

// Registry is the process-wide open-instance list (§9 "Global open list").
// The teacher spec keeps this as a hidden linked list threaded through
// static state; here it is an explicit, importable type instead, so a
// process that wants instance isolation can construct its own Registry
// rather than share the package-level Default one.
//
// Registry does not itself synchronize Open/Close against each other for
// the same name — §5 documents open/close as a contract the caller must
// not invoke concurrently with itself, not a guarantee the engine
// enforces with an extra lock.
type Registry struct {
	mu   sync.Mutex
	byName map[string]any
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]any)}
}

// Default is the process-wide registry both engines register into unless
// a caller supplies its own via the engine's WithRegistry option.
var Default = NewRegistry()

// Register adds instance under name. It returns false without modifying
// the registry if name is already registered.
func (r *Registry) Register(name string, instance any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return false
	}

	r.byName[name] = instance
	return true
}

// Unregister removes name from the registry, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byName, name)
}

// Lookup returns the instance registered under name, if any.
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, ok := r.byName[name]
	return instance, ok
}

// Count returns the number of currently open instances.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.byName)
}
