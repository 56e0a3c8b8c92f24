package types

import (
	"time"
)

// NodeState represents the execution state of one graph node
type NodeState string

const (
	NodeStatePending   NodeState = "pending"
	NodeStateReady     NodeState = "ready"
	NodeStateRunning   NodeState = "running"
	NodeStateSucceeded NodeState = "succeeded"
	NodeStateFailed    NodeState = "failed"
	NodeStateSkipped   NodeState = "skipped" // upstream failed, never dispatched
	NodeStateCached    NodeState = "cached"
)

// Terminal reports whether the state is a final one
func (s NodeState) Terminal() bool {
	switch s {
	case NodeStateSucceeded, NodeStateFailed, NodeStateSkipped, NodeStateCached:
		return true
	}
	return false
}

// RateLimits maps a channel name to its maximum concurrent occupancy.
// A channel absent from the map is unbounded.
type RateLimits map[string]int

// Stats summarizes one graph execution
type Stats struct {
	RunID    string         `yaml:"run_id" json:"run_id"`
	Executed map[string]int `yaml:"executed" json:"executed"` // channel -> executed (not cached) nodes
	Cached   int            `yaml:"cached" json:"cached"`
	Duration time.Duration  `yaml:"duration" json:"duration"`
}

// TotalExecuted sums the per-channel tallies
func (s *Stats) TotalExecuted() int {
	total := 0
	for _, n := range s.Executed {
		total += n
	}
	return total
}

// Config holds CLI configuration loaded from a YAML file
type Config struct {
	CacheRoot  string         `yaml:"cache_root"`
	Workers    int            `yaml:"workers"`
	RateLimits map[string]int `yaml:"rate_limits"`
	LogLevel   string         `yaml:"log_level"`
	LogJSON    bool           `yaml:"log_json"`
}
