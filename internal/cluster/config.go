// Package cluster provides cluster configuration, connection state
// tracking and the engine manager that merges all cluster event streams
// into one queryable view.
package cluster

import (
	"fmt"
	"strings"
)

// ClusterConfig defines a single cluster's connection settings. A
// cluster ingests events over exactly one path: the live delta stream
// when StreamEndpoint is set, otherwise periodic full refetches from
// ListEndpoint.
type ClusterConfig struct {
	// Name is a unique identifier for this cluster (required). It is
	// the cluster tag stamped on every record from this cluster.
	Name string `mapstructure:"name"`

	// Environment describes the cluster's deployment environment
	// (e.g., "production", "staging"). Optional, organizational only.
	Environment string `mapstructure:"environment"`

	// Labels are arbitrary key-value pairs surfaced in the status API.
	Labels map[string]string `mapstructure:"labels"`

	// StreamEndpoint is the ws:// or wss:// URL of the delta stream.
	// When set, the cluster uses the live path.
	StreamEndpoint string `mapstructure:"stream_endpoint"`

	// ListEndpoint is the http:// or https:// URL of the REST event
	// listing. Used by the polling path when StreamEndpoint is empty.
	ListEndpoint string `mapstructure:"list_endpoint"`
}

// UsesStream reports whether this cluster ingests via the live path.
func (c *ClusterConfig) UsesStream() bool {
	return c.StreamEndpoint != ""
}

// Validate checks the ClusterConfig for required fields and valid
// values: name format, endpoint schemes, at least one ingestion path,
// and label key/value validity.
func (c *ClusterConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("cluster name is required")
	}
	if !isValidClusterName(c.Name) {
		return fmt.Errorf("cluster name %q is invalid: must contain only alphanumeric characters, hyphens, and underscores", c.Name)
	}

	if c.StreamEndpoint == "" && c.ListEndpoint == "" {
		return fmt.Errorf("cluster %s: one of stream_endpoint or list_endpoint is required", c.Name)
	}

	if c.StreamEndpoint != "" {
		if !strings.HasPrefix(c.StreamEndpoint, "ws://") && !strings.HasPrefix(c.StreamEndpoint, "wss://") {
			return fmt.Errorf("cluster %s: stream_endpoint must start with ws:// or wss://, got %q", c.Name, c.StreamEndpoint)
		}
	}
	if c.ListEndpoint != "" {
		if !strings.HasPrefix(c.ListEndpoint, "http://") && !strings.HasPrefix(c.ListEndpoint, "https://") {
			return fmt.Errorf("cluster %s: list_endpoint must start with http:// or https://, got %q", c.Name, c.ListEndpoint)
		}
	}

	for key, value := range c.Labels {
		if key == "" {
			return fmt.Errorf("cluster %s: label key cannot be empty", c.Name)
		}
		if !isValidLabelKey(key) {
			return fmt.Errorf("cluster %s: invalid label key %q: must contain only alphanumeric characters, hyphens, underscores, dots, and slashes", c.Name, key)
		}
		if !isValidLabelValue(value) {
			return fmt.Errorf("cluster %s: invalid label value for key %q: must contain only alphanumeric characters, hyphens, underscores, and dots", c.Name, key)
		}
	}

	return nil
}

// isValidClusterName checks if a cluster name follows naming conventions.
// Valid names contain only alphanumeric characters, hyphens, and underscores.
func isValidClusterName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// isValidLabelKey checks if a label key follows Kubernetes label key conventions.
// Valid keys contain alphanumeric characters, hyphens, underscores, dots, and slashes.
func isValidLabelKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' || r == '/') {
			return false
		}
	}
	return true
}

// isValidLabelValue checks if a label value follows Kubernetes label value conventions.
// Valid values contain alphanumeric characters, hyphens, underscores, and dots.
func isValidLabelValue(value string) bool {
	// Empty values are allowed
	if value == "" {
		return true
	}
	for _, r := range value {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return false
		}
	}
	return true
}
