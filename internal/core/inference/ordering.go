package inference

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agenthands/bayesnet/internal/core/model"
)

// Ordering picks the elimination order heuristic. Any order gives the same
// answer; the choice only changes the size of intermediate factors.
type Ordering string

const (
	// MinDegree eliminates the variable with the fewest neighbours in the
	// interaction graph first.
	MinDegree Ordering = "min_degree"
	// MinFill eliminates the variable whose removal adds the fewest edges.
	MinFill Ordering = "min_fill"
	// ReverseDeclaration eliminates the most recently declared variable first.
	ReverseDeclaration Ordering = "reverse_declaration"
)

func ParseOrdering(s string) (Ordering, error) {
	switch o := Ordering(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return MinDegree, nil
	case MinDegree, MinFill, ReverseDeclaration:
		return o, nil
	default:
		return "", fmt.Errorf("unsupported elimination order: %s", s)
	}
}

// eliminationOrder orders elim for the given factors. Ties are broken
// lexicographically by variable name.
func eliminationOrder(strategy Ordering, factors []*Factor, elim []model.Variable) []model.Variable {
	if len(elim) == 0 {
		return nil
	}
	if strategy == ReverseDeclaration {
		out := append([]model.Variable(nil), elim...)
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
		return out
	}

	adj := make(map[model.VarID]map[model.VarID]bool)
	link := func(a, b model.VarID) {
		if adj[a] == nil {
			adj[a] = make(map[model.VarID]bool)
		}
		if adj[b] == nil {
			adj[b] = make(map[model.VarID]bool)
		}
		adj[a][b] = true
		adj[b][a] = true
	}
	for _, f := range factors {
		for i, v := range f.Vars {
			if adj[v.ID] == nil {
				adj[v.ID] = make(map[model.VarID]bool)
			}
			for _, w := range f.Vars[i+1:] {
				link(v.ID, w.ID)
			}
		}
	}

	cost := func(id model.VarID) int {
		if strategy == MinFill {
			nb := make([]model.VarID, 0, len(adj[id]))
			for n := range adj[id] {
				nb = append(nb, n)
			}
			fill := 0
			for i := range nb {
				for _, m := range nb[i+1:] {
					if !adj[nb[i]][m] {
						fill++
					}
				}
			}
			return fill
		}
		return len(adj[id])
	}

	remaining := append([]model.Variable(nil), elim...)
	out := make([]model.Variable, 0, len(elim))
	for len(remaining) > 0 {
		best := 0
		bestCost := cost(remaining[0].ID)
		for i := 1; i < len(remaining); i++ {
			c := cost(remaining[i].ID)
			if c < bestCost || (c == bestCost && remaining[i].Name < remaining[best].Name) {
				best, bestCost = i, c
			}
		}
		v := remaining[best]
		out = append(out, v)
		remaining = append(remaining[:best], remaining[best+1:]...)

		var nb []model.VarID
		for n := range adj[v.ID] {
			nb = append(nb, n)
		}
		for i := range nb {
			for _, m := range nb[i+1:] {
				link(nb[i], m)
			}
			delete(adj[nb[i]], v.ID)
		}
		delete(adj, v.ID)
	}
	return out
}
