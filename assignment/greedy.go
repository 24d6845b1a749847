package assignment

import (
	"math"
	"sort"
)

// candidate is one provider that could serve a state, ranked by priority
// (1 = already licensed, 2 = needs a new license).
type candidate struct {
	provider int
	priority int
}

// greedyHint builds a feasible starting point for the existing-workforce program.
// Each state is served in order by its already-licensed providers, then by
// providers allowed to acquire a license, each taking as many whole hours as
// its remaining capacity and the remaining demand allow.
// Time: O(S·P log P).
func (m *ExistingModel) greedyHint() []float64 {
	hint := make([]float64, m.Program.NumVariables())
	remaining := make([]float64, len(m.Data.Therapists))
	for i, th := range m.Data.Therapists {
		remaining[i] = th.HoursPerWeek
	}

	for j, st := range m.Data.States {
		candidates := make([]candidate, 0, len(m.Data.Therapists))
		for i, th := range m.Data.Therapists {
			switch {
			case m.Data.Licenses.Has(th.ID, st.ID):
				candidates = append(candidates, candidate{provider: i, priority: 1})
			case m.Program.Variables[m.Acquire[i][j]].Upper > 0.5:
				candidates = append(candidates, candidate{provider: i, priority: 2})
			}
		}
		sort.SliceStable(candidates, func(a, b int) bool {
			return candidates[a].priority < candidates[b].priority
		})

		demand := math.Floor(st.DemandPerWeek)
		for _, c := range candidates {
			if demand <= 0 {
				break
			}
			give := math.Floor(math.Min(remaining[c.provider], demand))
			if give <= 0 {
				continue
			}
			hint[m.Hours[c.provider][j]] = give
			if c.priority == 2 {
				hint[m.Acquire[c.provider][j]] = 1
			}
			remaining[c.provider] -= give
			demand -= give
		}
	}
	return hint
}

// greedyHint fills slots in order, so slot loads never increase with the slot
// index, giving every eligible state as many whole hours as its hireable hours
// and the slot's remaining capacity allow.
func (m *NewHireModel) greedyHint() []float64 {
	hint := make([]float64, m.Program.NumVariables())
	if m.MaxHires == 0 {
		return hint
	}
	slot := 0
	capacity := math.Floor(m.MaxNewHireHours)
	for j := range m.States {
		if m.Program.Variables[m.License[j][0]].Upper < 0.5 {
			continue
		}
		need := math.Floor(m.Hireable[j].Hours)
		for need > 0 && slot < m.MaxHires {
			give := math.Min(capacity, need)
			if give > 0 {
				hint[m.Hours[j][slot]] += give
				hint[m.License[j][slot]] = 1
				need -= give
				capacity -= give
			}
			if capacity <= 0 {
				slot++
				capacity = math.Floor(m.MaxNewHireHours)
			}
		}
	}
	return hint
}
