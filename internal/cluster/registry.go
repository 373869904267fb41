package cluster

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the set of known cluster configurations with
// thread-safe access. It is the source of truth for which stores
// participate in "all clusters" aggregation.
type Registry struct {
	clusters map[string]*ClusterConfig
	mu       sync.RWMutex
}

// NewRegistry creates an empty cluster registry.
func NewRegistry() *Registry {
	return &Registry{
		clusters: make(map[string]*ClusterConfig),
	}
}

// Load populates the registry, validating each configuration and
// rejecting duplicate names.
func (r *Registry) Load(clusters []ClusterConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range clusters {
		cluster := &clusters[i]
		if err := cluster.Validate(); err != nil {
			return fmt.Errorf("invalid cluster config: %w", err)
		}
		if _, exists := r.clusters[cluster.Name]; exists {
			return fmt.Errorf("duplicate cluster name: %s", cluster.Name)
		}
		r.clusters[cluster.Name] = cluster
	}
	return nil
}

// Get retrieves a cluster configuration by name.
// Returns nil if not found.
func (r *Registry) Get(name string) *ClusterConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clusters[name]
}

// Names returns all registered cluster names, sorted, so iteration
// order is deterministic wherever it shapes output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clusters))
	for name := range r.clusters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all cluster configurations in name order.
func (r *Registry) List() []*ClusterConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clusters))
	for name := range r.clusters {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]*ClusterConfig, 0, len(names))
	for _, name := range names {
		result = append(result, r.clusters[name])
	}
	return result
}

// Count returns the number of registered clusters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clusters)
}
