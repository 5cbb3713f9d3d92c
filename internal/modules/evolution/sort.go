package evolution

import (
	"math"
	"sort"

	"github.com/aristath/frontier/internal/domain"
)

type individual struct {
	weights  []float64
	obj      domain.ObjectiveVector
	rank     int
	crowding float64
}

func (ind *individual) point() []float64 {
	return ind.obj.Minimized[:]
}

// nonDominatedSort assigns Pareto ranks (0 = non-dominated) and returns the fronts
// as index lists into pop.
func nonDominatedSort(pop []*individual) [][]int {
	n := len(pop)
	dominates := make([][]int, n)
	dominatedCount := make([]int, n)

	for p := 0; p < n; p++ {
		for q := p + 1; q < n; q++ {
			switch {
			case domain.Dominates(pop[p].point(), pop[q].point()):
				dominates[p] = append(dominates[p], q)
				dominatedCount[q]++
			case domain.Dominates(pop[q].point(), pop[p].point()):
				dominates[q] = append(dominates[q], p)
				dominatedCount[p]++
			}
		}
	}

	var current []int
	for p := 0; p < n; p++ {
		if dominatedCount[p] == 0 {
			pop[p].rank = 0
			current = append(current, p)
		}
	}

	var fronts [][]int
	for rank := 0; len(current) > 0; rank++ {
		fronts = append(fronts, current)
		var next []int
		for _, p := range current {
			for _, q := range dominates[p] {
				dominatedCount[q]--
				if dominatedCount[q] == 0 {
					pop[q].rank = rank + 1
					next = append(next, q)
				}
			}
		}
		sort.Ints(next)
		current = next
	}
	return fronts
}

// assignCrowding sets the crowding distance of every member of front: the sum over
// objectives of the normalized gap between each member's neighbours. Boundary members
// get +Inf so they are always kept.
func assignCrowding(pop []*individual, front []int) {
	for _, i := range front {
		pop[i].crowding = 0
	}
	if len(front) <= 2 {
		for _, i := range front {
			pop[i].crowding = math.Inf(1)
		}
		return
	}

	order := make([]int, len(front))
	for m := 0; m < domain.NumObjectives; m++ {
		copy(order, front)
		sort.SliceStable(order, func(a, b int) bool {
			return pop[order[a]].obj.Minimized[m] < pop[order[b]].obj.Minimized[m]
		})

		lo := pop[order[0]].obj.Minimized[m]
		hi := pop[order[len(order)-1]].obj.Minimized[m]
		pop[order[0]].crowding = math.Inf(1)
		pop[order[len(order)-1]].crowding = math.Inf(1)
		if hi-lo == 0 {
			continue
		}
		for k := 1; k < len(order)-1; k++ {
			gap := pop[order[k+1]].obj.Minimized[m] - pop[order[k-1]].obj.Minimized[m]
			pop[order[k]].crowding += gap / (hi - lo)
		}
	}
}

// truncate keeps the best size individuals: whole fronts in rank order, then the
// least crowded members of the first front that does not fit.
func truncate(pop []*individual, size int) []*individual {
	fronts := nonDominatedSort(pop)
	next := make([]*individual, 0, size)

	for _, front := range fronts {
		assignCrowding(pop, front)
		if len(next)+len(front) <= size {
			for _, i := range front {
				next = append(next, pop[i])
			}
			continue
		}

		remaining := append([]int(nil), front...)
		sort.SliceStable(remaining, func(a, b int) bool {
			return pop[remaining[a]].crowding > pop[remaining[b]].crowding
		})
		for _, i := range remaining[:size-len(next)] {
			next = append(next, pop[i])
		}
		break
	}
	return next
}

// firstFront extracts the rank-0 members as a deduplicated front sorted
// lexicographically by the minimized objectives.
func firstFront(pop []*individual) domain.ParetoFront {
	var members []*individual
	for _, ind := range pop {
		if ind.rank == 0 {
			members = append(members, ind)
		}
	}
	sort.SliceStable(members, func(a, b int) bool {
		return lexLess(members[a].obj.Minimized, members[b].obj.Minimized)
	})

	front := domain.ParetoFront{Solutions: make([]domain.Solution, 0, len(members))}
	for i, ind := range members {
		if i > 0 && ind.obj.Minimized == members[i-1].obj.Minimized {
			continue
		}
		front.Solutions = append(front.Solutions, domain.Solution{
			Weights:    append([]float64(nil), ind.weights...),
			Objectives: ind.obj,
		})
	}
	return front
}

func lexLess(a, b [domain.NumObjectives]float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
