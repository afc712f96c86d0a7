package sim

// Agent is one mobile unit of exposure. Agents are fungible once in transit;
// only the origin node is remembered.
type Agent struct {
	Origin int

	// key is the routing sample drawn for the current round.
	key float64
	// sentRound is the round in which the agent was dispatched to its current inbox.
	sentRound int
}

// NewAgent creates an agent owned by the given node.
func NewAgent(origin int) Agent {
	return Agent{Origin: origin, sentRound: -1}
}
