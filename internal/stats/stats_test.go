package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordHandOutcomeAccumulatesPerAgent(t *testing.T) {
	c := New()

	c.RecordHandOutcome("t1", map[string]int{"agent-a": 40, "agent-b": -40})
	c.RecordHandOutcome("t1", map[string]int{"agent-a": -10, "agent-b": 10})

	a, ok := c.AgentStats("agent-a")
	require.True(t, ok)
	require.Equal(t, 2, a.Hands)
	require.Equal(t, 30, a.NetChips)

	b, ok := c.AgentStats("agent-b")
	require.True(t, ok)
	require.Equal(t, 2, b.Hands)
	require.Equal(t, -30, b.NetChips)

	tbl, ok := c.TableStats("t1")
	require.True(t, ok)
	require.Equal(t, 2, tbl.HandsCompleted)
}

func TestRecordTimeoutBumpsBothCounters(t *testing.T) {
	c := New()

	c.RecordTimeout("t1", "agent-a")
	c.RecordTimeout("t1", "agent-a")

	a, ok := c.AgentStats("agent-a")
	require.True(t, ok)
	require.Equal(t, 2, a.Timeouts)

	tbl, ok := c.TableStats("t1")
	require.True(t, ok)
	require.Equal(t, 2, tbl.Timeouts)
}

func TestUnknownAgentOrTableStatsNotFound(t *testing.T) {
	c := New()
	_, ok := c.AgentStats("nobody")
	require.False(t, ok)
	_, ok = c.TableStats("nowhere")
	require.False(t, ok)
}
