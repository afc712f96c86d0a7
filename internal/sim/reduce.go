package sim

import "netsir-sim/internal/telemetry"

// Reduce folds one round of records into the round summary. The fold is a
// plain sum and count, so record order does not matter.
func Reduce(round int, recs []StatisticRecord) telemetry.RoundRow {
	row := telemetry.RoundRow{Round: round}
	for _, r := range recs {
		switch r.State {
		case Susceptible:
			row.Susceptible++
			row.AgentsSusceptible += r.Agents
		case Infected:
			row.Infected++
			row.AgentsInfected += r.Agents
			row.AgentsInTransit += r.Sent
		case Recovered:
			row.Recovered++
			row.RemovedRecovered += r.Discarded
		case Environment:
			row.Environment++
			row.AgentsEnvironment += r.Agents
			row.AgentsInTransit += r.Sent
			row.RemovedEnvironment += r.Discarded
		}
	}
	row.TotalAgents = row.AgentsSusceptible + row.AgentsInfected + row.AgentsEnvironment + row.AgentsInTransit
	row.AvgAgentsPerInfected = ratio(row.AgentsInfected, row.Infected)
	row.AvgAgentsPerEnvironment = ratio(row.AgentsEnvironment, row.Environment)
	row.AvgRemovedPerRecovered = ratio(row.RemovedRecovered, row.Recovered)
	row.AvgRemovedPerEnv = ratio(row.RemovedEnvironment, row.Environment)
	return row
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
