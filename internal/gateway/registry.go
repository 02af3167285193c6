package gateway

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps gateway names to their Client implementation. The adapter for
// a subscription is selected once, by the stored gateway_name, instead of
// branching on provider inside the engine.
type Registry struct {
	mu          sync.RWMutex
	clients     map[string]Client
	defaultName string
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Name()] = c
}

// SetDefault records the gateway used when a begin request does not name one.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

// DefaultName returns the configured default gateway, falling back to the
// only registered client when just one exists.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultName != "" {
		return r.defaultName
	}
	if len(r.clients) == 1 {
		for name := range r.clients {
			return name
		}
	}
	return ""
}

func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("no gateway registered under %q", name)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
