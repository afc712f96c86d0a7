// Package topology loads the node graph and initial epidemiological states.
//
// The file format is line oriented:
//
//	N = 5
//	infected = 1 3 -1
//	recovered = -1
//	nonhuman = 2 -1
//	1 : 2 3 4
//	2: 1
//
// Index lists are 1-based and stop at the first negative value. The label
// "environment" is accepted in place of "nonhuman".
package topology

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformed wraps every parse or consistency failure.
var ErrMalformed = errors.New("malformed topology")

// Options control random seeding of special nodes when the file leaves a list empty.
type Options struct {
	RandomInfected    int
	RandomEnvironment int
	// StrictCounts requires the final infected and environment lists to have
	// exactly RandomInfected and RandomEnvironment entries.
	StrictCounts bool
}

// Topology is the parsed graph. Node names run from 1 to N.
type Topology struct {
	N           int
	Infected    []int
	Recovered   []int
	Environment []int
	// Adjacency maps a node name to its outbound destinations, in file order.
	Adjacency map[int][]int
}

// Load opens path and parses it.
func Load(path string, opts Options, rng *rand.Rand) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topology: %w", err)
	}
	defer f.Close()
	return Parse(f, opts, rng)
}

// Parse reads a topology from r. rng is only consulted when a list must be drawn at random.
func Parse(r io.Reader, opts Options, rng *rand.Rand) (*Topology, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	t := &Topology{Adjacency: make(map[int][]int)}
	lineNum := 0
	headers := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if headers < 4 {
			if err := t.parseHeader(headers, line, lineNum); err != nil {
				return nil, err
			}
			headers++
			continue
		}
		if err := t.parseAdjacency(line, lineNum); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	if headers < 4 {
		return nil, fmt.Errorf("%w: expected 4 header lines, got %d", ErrMalformed, headers)
	}
	if err := t.fillRandom(opts, rng); err != nil {
		return nil, err
	}
	if err := t.validate(opts); err != nil {
		return nil, err
	}
	return t, nil
}

// parseHeader handles "label = values" lines in their fixed order.
func (t *Topology) parseHeader(idx int, line string, lineNum int) error {
	label, value, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("%w: line %d: expected '<label> = <values>'", ErrMalformed, lineNum)
	}
	label = strings.ToLower(strings.TrimSpace(label))
	want := [...]string{"n", "infected", "recovered", "nonhuman"}[idx]
	if label != want && !(idx == 3 && label == "environment") {
		return fmt.Errorf("%w: line %d: expected %q header, got %q", ErrMalformed, lineNum, want, label)
	}
	if idx == 0 {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return fmt.Errorf("%w: line %d: invalid node count %q", ErrMalformed, lineNum, strings.TrimSpace(value))
		}
		t.N = n
		return nil
	}
	indexes, err := parseIndexes(value, lineNum)
	if err != nil {
		return err
	}
	switch idx {
	case 1:
		t.Infected = indexes
	case 2:
		t.Recovered = indexes
	case 3:
		t.Environment = indexes
	}
	return nil
}

// parseIndexes reads integers until the first negative sentinel and returns them sorted.
func parseIndexes(value string, lineNum int) ([]int, error) {
	var out []int
	for _, field := range strings.Fields(value) {
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid index %q", ErrMalformed, lineNum, field)
		}
		if v < 0 {
			break
		}
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func (t *Topology) parseAdjacency(line string, lineNum int) error {
	head, rest, ok := strings.Cut(line, ":")
	if !ok {
		return fmt.Errorf("%w: line %d: expected '<index> : <destinations>'", ErrMalformed, lineNum)
	}
	src, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return fmt.Errorf("%w: line %d: invalid source index %q", ErrMalformed, lineNum, strings.TrimSpace(head))
	}
	if src < 1 || src > t.N {
		return fmt.Errorf("%w: line %d: source %d outside 1..%d", ErrMalformed, lineNum, src, t.N)
	}
	if _, dup := t.Adjacency[src]; dup {
		return fmt.Errorf("%w: line %d: duplicate adjacency for node %d", ErrMalformed, lineNum, src)
	}
	dests := []int{}
	for _, field := range strings.Fields(rest) {
		d, err := strconv.Atoi(field)
		if err != nil {
			return fmt.Errorf("%w: line %d: invalid destination %q", ErrMalformed, lineNum, field)
		}
		if d < 1 || d > t.N {
			return fmt.Errorf("%w: line %d: destination %d outside 1..%d", ErrMalformed, lineNum, d, t.N)
		}
		dests = append(dests, d)
	}
	t.Adjacency[src] = dests
	return nil
}

func (t *Topology) fillRandom(opts Options, rng *rand.Rand) error {
	if len(t.Infected) == 0 && opts.RandomInfected > 0 {
		exclude := make(map[int]bool, len(t.Recovered)+len(t.Environment))
		for _, i := range t.Recovered {
			exclude[i] = true
		}
		for _, i := range t.Environment {
			exclude[i] = true
		}
		picked, err := t.draw(opts.RandomInfected, exclude, rng)
		if err != nil {
			return fmt.Errorf("%w: infected: %v", ErrMalformed, err)
		}
		t.Infected = picked
	}
	if len(t.Environment) == 0 && opts.RandomEnvironment > 0 {
		exclude := make(map[int]bool, len(t.Infected)+len(t.Recovered))
		for _, i := range t.Infected {
			exclude[i] = true
		}
		for _, i := range t.Recovered {
			exclude[i] = true
		}
		picked, err := t.draw(opts.RandomEnvironment, exclude, rng)
		if err != nil {
			return fmt.Errorf("%w: environment: %v", ErrMalformed, err)
		}
		t.Environment = picked
	}
	return nil
}

// draw picks k distinct node names not in exclude.
func (t *Topology) draw(k int, exclude map[int]bool, rng *rand.Rand) ([]int, error) {
	var pool []int
	for i := 1; i <= t.N; i++ {
		if !exclude[i] {
			pool = append(pool, i)
		}
	}
	if k > len(pool) {
		return nil, fmt.Errorf("cannot draw %d nodes from %d candidates", k, len(pool))
	}
	if rng == nil {
		return nil, fmt.Errorf("random selection requested without a random source")
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	picked := append([]int(nil), pool[:k]...)
	sort.Ints(picked)
	return picked, nil
}

func (t *Topology) validate(opts Options) error {
	seen := make(map[int]string, len(t.Infected)+len(t.Recovered)+len(t.Environment))
	check := func(name string, list []int) error {
		for _, i := range list {
			if i < 1 || i > t.N {
				return fmt.Errorf("%w: %s node %d outside 1..%d", ErrMalformed, name, i, t.N)
			}
			if prev, ok := seen[i]; ok {
				return fmt.Errorf("%w: node %d listed as both %s and %s", ErrMalformed, i, prev, name)
			}
			seen[i] = name
		}
		return nil
	}
	if err := check("infected", t.Infected); err != nil {
		return err
	}
	if err := check("recovered", t.Recovered); err != nil {
		return err
	}
	if err := check("environment", t.Environment); err != nil {
		return err
	}
	if opts.StrictCounts {
		if len(t.Infected) != opts.RandomInfected {
			return fmt.Errorf("%w: incorrect number of infected: got %d, want %d", ErrMalformed, len(t.Infected), opts.RandomInfected)
		}
		if len(t.Environment) != opts.RandomEnvironment {
			return fmt.Errorf("%w: incorrect number of environment: got %d, want %d", ErrMalformed, len(t.Environment), opts.RandomEnvironment)
		}
	}
	return nil
}

// State is the starting state of a node, as a name understood by the engine.
func (t *Topology) State(node int) string {
	for _, i := range t.Infected {
		if i == node {
			return "infected"
		}
	}
	for _, i := range t.Recovered {
		if i == node {
			return "recovered"
		}
	}
	for _, i := range t.Environment {
		if i == node {
			return "environment"
		}
	}
	return "susceptible"
}
