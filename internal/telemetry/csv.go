package telemetry

import (
	"fmt"
	"strconv"
	"strings"
)

// ResultHeader is written once at the top of every result log.
const ResultHeader = "output is characterized by the following 15-tuple:\n" +
	"Round number, #of nodes that are Susceptible, #of nodes that are Infected, " +
	"#of nodes that are Recovered/Removed, #of nodes that are Environment nodes, " +
	"Total number of Agents, #Agents in Infected nodes, Average #Agents per Infected node, " +
	"#Agents in transit, #Agents in Environment nodes, Average #Agents per Environment node, " +
	"#Agents removed from Recovered nodes, Average #Agents removed per Recovered node, " +
	"#Agents removed from Environment nodes, Average #Agents removed from environment nodes\n"

// ResultColumns is the number of comma-separated fields in a result-log record.
const ResultColumns = 15

// FormatResult renders the row as one result-log line, newline included.
func FormatResult(r RoundRow) string {
	fields := []string{
		strconv.Itoa(r.Round),
		strconv.Itoa(r.Susceptible),
		strconv.Itoa(r.Infected),
		strconv.Itoa(r.Recovered),
		strconv.Itoa(r.Environment),
		strconv.Itoa(r.TotalAgents),
		strconv.Itoa(r.AgentsInfected),
		formatAvg(r.AvgAgentsPerInfected),
		strconv.Itoa(r.AgentsInTransit),
		strconv.Itoa(r.AgentsEnvironment),
		formatAvg(r.AvgAgentsPerEnvironment),
		strconv.Itoa(r.RemovedRecovered),
		formatAvg(r.AvgRemovedPerRecovered),
		strconv.Itoa(r.RemovedEnvironment),
		formatAvg(r.AvgRemovedPerEnv),
	}
	return strings.Join(fields, ", ") + "\n"
}

// ParseResult parses a single result-log line produced by FormatResult.
func ParseResult(line string) (RoundRow, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != ResultColumns {
		return RoundRow{}, fmt.Errorf("expected %d columns, got %d", ResultColumns, len(parts))
	}
	ints := make([]int, 0, 11)
	floats := make([]float64, 0, 4)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		switch i {
		case 7, 10, 12, 14:
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return RoundRow{}, fmt.Errorf("column %d: invalid float: %w", i+1, err)
			}
			floats = append(floats, v)
		default:
			v, err := strconv.Atoi(p)
			if err != nil {
				return RoundRow{}, fmt.Errorf("column %d: invalid integer: %w", i+1, err)
			}
			ints = append(ints, v)
		}
	}
	return RoundRow{
		Round:                   ints[0],
		Susceptible:             ints[1],
		Infected:                ints[2],
		Recovered:               ints[3],
		Environment:             ints[4],
		TotalAgents:             ints[5],
		AgentsInfected:          ints[6],
		AvgAgentsPerInfected:    floats[0],
		AgentsInTransit:         ints[7],
		AgentsEnvironment:       ints[8],
		AvgAgentsPerEnvironment: floats[1],
		RemovedRecovered:        ints[9],
		AvgRemovedPerRecovered:  floats[2],
		RemovedEnvironment:      ints[10],
		AvgRemovedPerEnv:        floats[3],
	}, nil
}

// formatAvg always keeps a decimal point so 0 is written as 0.0.
func formatAvg(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEN") {
		s += ".0"
	}
	return s
}
