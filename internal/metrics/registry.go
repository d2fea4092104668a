package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// Combine is how a new value merges into an existing bucket.
type Combine string

const (
	Sum     Combine = "sum"
	Replace Combine = "replace"
	Max     Combine = "max"
)

func (c Combine) Valid() bool {
	return c == Sum || c == Replace || c == Max
}

// Apply merges delta into current.
func (c Combine) Apply(current, delta float64) float64 {
	switch c {
	case Replace:
		return delta
	case Max:
		if delta > current {
			return delta
		}
		return current
	default:
		return current + delta
	}
}

// Built-in metric types.
const (
	EventCount         = "event_count"
	ActiveDevices      = "active_devices"
	NewDevices         = "new_devices"
	SessionCount       = "session_count"
	AvgSessionDuration = "avg_session_duration"
)

var defaultPolicies = map[string]Combine{
	EventCount:         Sum,
	ActiveDevices:      Replace,
	NewDevices:         Replace,
	SessionCount:       Replace,
	AvgSessionDuration: Replace,
}

type policyFile struct {
	Metrics []struct {
		Type    string  `json:"type"`
		Combine Combine `json:"combine"`
	} `json:"metrics"`
}

// Registry maps metric types to combine policies. Unknown types sum.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Combine
}

func NewRegistry() *Registry {
	r := &Registry{policies: make(map[string]Combine, len(defaultPolicies))}
	for k, v := range defaultPolicies {
		r.policies[k] = v
	}
	return r
}

// LoadFromFile layers the policies in path over the defaults. A missing
// file yields the defaults.
func LoadFromFile(path string) (*Registry, error) {
	r := NewRegistry()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read metrics config: %w", err)
	}

	var file policyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse metrics config: %w", err)
	}
	for _, m := range file.Metrics {
		if m.Type == "" || !m.Combine.Valid() {
			return nil, fmt.Errorf("invalid metrics config entry %q: combine must be sum, replace or max", m.Type)
		}
		r.Register(m.Type, m.Combine)
	}
	return r, nil
}

func (r *Registry) Register(metricType string, c Combine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[metricType] = c
}

func (r *Registry) Policy(metricType string) Combine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.policies[metricType]; ok {
		return c
	}
	return Sum
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.policies)
}
