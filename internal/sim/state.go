package sim

import (
	"fmt"
	"strings"
)

// NodeState is the epidemiological state of a node.
type NodeState int

const (
	Susceptible NodeState = iota
	Infected
	Recovered
	// Environment nodes are non-human reservoirs that hold agents and purge them periodically.
	Environment
)

func (s NodeState) String() string {
	switch s {
	case Susceptible:
		return "susceptible"
	case Infected:
		return "infected"
	case Recovered:
		return "recovered"
	case Environment:
		return "environment"
	default:
		return fmt.Sprintf("NodeState(%d)", int(s))
	}
}

// ParseState accepts the names produced by String, plus "nonhuman" for Environment.
func ParseState(s string) (NodeState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "susceptible", "s":
		return Susceptible, nil
	case "infected", "i":
		return Infected, nil
	case "recovered", "removed", "r":
		return Recovered, nil
	case "environment", "nonhuman", "e":
		return Environment, nil
	}
	return Susceptible, fmt.Errorf("unknown node state %q", s)
}
