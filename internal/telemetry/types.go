// Round and node record structs persisted by the result writers
package telemetry

import (
	"os"
	"time"
)

// RoundRow is the reduced, per-round summary produced by the aggregator.
// The first fifteen fields form the result-log tuple.
type RoundRow struct {
	Round                   int     `json:"round"`
	Susceptible             int     `json:"num_susceptible"`
	Infected                int     `json:"num_infected"`
	Recovered               int     `json:"num_recovered"`
	Environment             int     `json:"num_environment"`
	TotalAgents             int     `json:"total_agents"`
	AgentsInfected          int     `json:"agents_infected"`
	AvgAgentsPerInfected    float64 `json:"avg_agents_per_infected"`
	AgentsInTransit         int     `json:"agents_in_transit"`
	AgentsEnvironment       int     `json:"agents_environment"`
	AvgAgentsPerEnvironment float64 `json:"avg_agents_per_environment"`
	RemovedRecovered        int     `json:"removed_recovered"`
	AvgRemovedPerRecovered  float64 `json:"avg_removed_per_recovered"`
	RemovedEnvironment      int     `json:"removed_environment"`
	AvgRemovedPerEnv        float64 `json:"avg_removed_per_environment"`

	// Not part of the tuple, kept for totals and storage backends.
	AgentsSusceptible int       `json:"agents_susceptible"`
	RunID             string    `json:"run_id,omitempty"`
	Timestamp         time.Time `json:"ts"`
}

// NodeRow is one node's report for a round, as handed to persistence.
type NodeRow struct {
	RunID     string    `json:"run_id,omitempty"`
	Round     int       `json:"round"`
	NodeID    int       `json:"node_id"`
	State     string    `json:"state"`
	Sickness  int       `json:"sickness"`
	Agents    int       `json:"agents"`
	Discarded int       `json:"discarded"`
	Sent      int       `json:"sent"`
	Timestamp time.Time `json:"ts"`
}

// RoundTableName holds the table name used when writing round rows to GreptimeDB.
// It defaults to "netsir_rounds" but can be overridden via GREPTIMEDB_ROUND_TABLE.
var RoundTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_ROUND_TABLE"); env != "" {
		return env
	}
	return "netsir_rounds"
}()

// NodeTableName holds the table name used for node rows, overridable via GREPTIMEDB_NODE_TABLE.
var NodeTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_NODE_TABLE"); env != "" {
		return env
	}
	return "netsir_nodes"
}()

func (RoundRow) TableName() string {
	return RoundTableName
}

func (NodeRow) TableName() string {
	return NodeTableName
}
