// Package stats tracks aggregate per-agent and per-table performance
// counters: hands played, net chips, and timeout counts. Grounded on the
// teacher's internal/server.PlayerStats/GameStats shape (the always-on basic
// counters BotPool maintains independent of its opt-in
// DetailedStatsCollector) — this is the basic tier only, exposed read-only
// via the REST surface as a table/agent summary, not the teacher's BB/100
// and position-breakdown analytics.
package stats

import (
	"sync"
	"time"
)

// AgentStats is one agent's aggregate performance across every table it has
// played a hand at.
type AgentStats struct {
	AgentID     string    `json:"agent_id"`
	Hands       int       `json:"hands"`
	NetChips    int       `json:"net_chips"`
	Timeouts    int       `json:"timeouts"`
	LastUpdated time.Time `json:"last_updated"`
}

// TableStats is one table's aggregate activity.
type TableStats struct {
	TableID        string `json:"table_id"`
	HandsCompleted int    `json:"hands_completed"`
	Timeouts       int    `json:"timeouts"`
}

// Collector is the write side the table runtime drives and the read side
// the REST surface queries. Every write is an in-memory counter bump, never
// blocking the table actor loop that calls it.
type Collector struct {
	mu     sync.RWMutex
	agents map[string]*AgentStats
	tables map[string]*TableStats
}

// New constructs an empty Collector.
func New() *Collector {
	return &Collector{
		agents: make(map[string]*AgentStats),
		tables: make(map[string]*TableStats),
	}
}

// RecordHandOutcome records one completed hand's net chip result for every
// agent dealt into it, keyed by agent ID, and bumps the table's
// hands-completed counter. netChips is seat agent ID -> chips won (positive)
// or lost (negative) for that hand.
func (c *Collector) RecordHandOutcome(tableID string, netChips map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tableLocked(tableID).HandsCompleted++

	now := time.Now()
	for agentID, net := range netChips {
		if agentID == "" {
			continue
		}
		a := c.agentLocked(agentID)
		a.Hands++
		a.NetChips += net
		a.LastUpdated = now
	}
}

// RecordTimeout bumps the timeout counters for a table and the agent whose
// seat timed out.
func (c *Collector) RecordTimeout(tableID, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableLocked(tableID).Timeouts++
	if agentID != "" {
		c.agentLocked(agentID).Timeouts++
	}
}

func (c *Collector) tableLocked(tableID string) *TableStats {
	t, ok := c.tables[tableID]
	if !ok {
		t = &TableStats{TableID: tableID}
		c.tables[tableID] = t
	}
	return t
}

func (c *Collector) agentLocked(agentID string) *AgentStats {
	a, ok := c.agents[agentID]
	if !ok {
		a = &AgentStats{AgentID: agentID}
		c.agents[agentID] = a
	}
	return a
}

// AgentStats returns a snapshot of one agent's stats, or false if no hand or
// timeout has been recorded for it yet.
func (c *Collector) AgentStats(agentID string) (AgentStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[agentID]
	if !ok {
		return AgentStats{}, false
	}
	return *a, true
}

// TableStats returns a snapshot of one table's stats, or false if no hand or
// timeout has been recorded for it yet.
func (c *Collector) TableStats(tableID string) (TableStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[tableID]
	if !ok {
		return TableStats{}, false
	}
	return *t, true
}
