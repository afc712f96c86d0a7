package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Link is a weighted outbound edge. An agent whose routing key falls in
// [Low, High] is dispatched to Dest, an index into the node registry.
type Link struct {
	Low  float64
	High float64
	Dest int
}

// cpiScale and cpiExponent shape raw weights into contact-duration-like weights.
const (
	cpiScale    = 0.06
	cpiExponent = 1 / 1.7
	minWeight   = 0.01
)

// weightToCPI converts a uniform draw into a contact weight.
func weightToCPI(w float64) float64 {
	return math.Pow(w/cpiScale, cpiExponent)
}

// WeightEdges assigns each destination a contiguous probability interval.
// Intervals start at 0, follow the order of dests, and together span 1-stay;
// the remaining mass is the probability that an agent stays put.
func WeightEdges(dests []int, stay float64, rng *rand.Rand) []Link {
	if len(dests) == 0 {
		return nil
	}
	weights := make([]float64, len(dests))
	var total float64
	for i := range dests {
		w := weightToCPI(rng.Float64())
		if w <= 0 || math.IsNaN(w) {
			w = minWeight
		}
		weights[i] = w
		total += w
	}

	span := 1 - stay
	links := make([]Link, len(dests))
	bound := 0.0
	for i, d := range dests {
		width := weights[i] / total * span
		links[i] = Link{Low: bound, High: bound + width, Dest: d}
		bound += width
	}
	return links
}

// sortLinks orders links by lower bound, the order the routing sweep expects.
func sortLinks(links []Link) []Link {
	out := make([]Link, len(links))
	copy(out, links)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Low < out[j].Low })
	return out
}

// CheckLinks verifies that sorted links are contiguous, non-overlapping and
// span exactly 1-stay, within tol.
func CheckLinks(links []Link, stay, tol float64) error {
	if len(links) == 0 {
		return nil
	}
	sorted := sortLinks(links)
	if math.Abs(sorted[0].Low) > tol {
		return fmt.Errorf("first interval starts at %v, want 0", sorted[0].Low)
	}
	for i, l := range sorted {
		if l.High < l.Low {
			return fmt.Errorf("link %d: high %v below low %v", i, l.High, l.Low)
		}
		if i > 0 && math.Abs(l.Low-sorted[i-1].High) > tol {
			return fmt.Errorf("link %d: gap or overlap between %v and %v", i, sorted[i-1].High, l.Low)
		}
	}
	width := sorted[len(sorted)-1].High - sorted[0].Low
	if math.Abs(width-(1-stay)) > tol {
		return fmt.Errorf("intervals span %v, want %v", width, 1-stay)
	}
	return nil
}
