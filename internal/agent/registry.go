package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Registry owns the set of live agents, keyed by name. All lookups go
// through this handle; there is no package-level agent state.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

func (r *Registry) Register(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := a.cfg.Name
	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("代理 %q 已注册", name)
	}
	r.agents[name] = a
	return nil
}

func (r *Registry) Get(name string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// List returns all agents ordered by name.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*Agent, 0, len(names))
	for _, n := range names {
		out = append(out, r.agents[n])
	}
	return out
}

// StopAll requests a cooperative stop on every agent and waits for the
// running optimization loops to drain.
func (r *Registry) StopAll() {
	for _, a := range r.List() {
		a.Stop()
	}
	for _, a := range r.List() {
		<-a.Done()
	}
}
