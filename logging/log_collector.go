package logging

import (
	"slices"
	"sync"
	"time"

	"github.com/nomis52/nodegraph/node"
)

// LogEntry represents a single log record with structured data.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes"`
}

// LogCollector provides thread-safe storage for node logs.
type LogCollector struct {
	mu   sync.RWMutex
	logs map[node.ID][]LogEntry
}

// NewLogCollector creates a new LogCollector.
func NewLogCollector() *LogCollector {
	return &LogCollector{
		logs: make(map[node.ID][]LogEntry),
	}
}

// AddLog adds a log entry for a node.
func (c *LogCollector) AddLog(id node.ID, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs[id] = append(c.logs[id], entry)
}

// GetLogs returns a copy of the entries captured for a node.
func (c *LogCollector) GetLogs(id node.ID) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.logs[id])
}

// GetAllLogs returns a copy of every captured entry grouped by node.
func (c *LogCollector) GetAllLogs() map[node.ID][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[node.ID][]LogEntry, len(c.logs))
	for id, logs := range c.logs {
		result[id] = slices.Clone(logs)
	}
	return result
}

// Nodes returns the IDs that have captured logs, sorted.
func (c *LogCollector) Nodes() []node.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]node.ID, 0, len(c.logs))
	for id := range c.logs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clear removes all stored logs.
func (c *LogCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = make(map[node.ID][]LogEntry)
}
