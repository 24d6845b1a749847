package assignment

import (
	"fmt"
	"math"

	"workforce-planner/errors"
	"workforce-planner/models"
	"workforce-planner/program"
)

// NewHireParams configures the new-hire formulation.
type NewHireParams struct {
	PlanningHorizon float64
	MaxNewHireHours float64
	MaxHires        int
	TieBreak        float64
}

// NewHireModel is the formulated new-hire program and its variable index.
type NewHireModel struct {
	Program         *program.Program
	States          []models.State
	Hireable        []models.HireableHours
	MaxHires        int
	MaxNewHireHours float64
	// Hours and License are indexed [state][slot] following States' order.
	Hours   [][]program.VarID
	License [][]program.VarID
}

// HireableHours returns, for every state, the deficit new hires may address:
// zero when the state's time to hire exceeds the horizon, otherwise the sum of
// the state's deficit rows. States without a summary row have nothing to hire for.
func HireableHours(states []models.State, summary []models.StateSummary, horizon float64) ([]models.HireableHours, error) {
	known := make(map[string]bool, len(states))
	for _, s := range states {
		known[s.ID] = true
	}
	deficit := make(map[string]float64, len(summary))
	for _, row := range summary {
		if !known[row.State] {
			return nil, &errors.MasterDataError{Source: "state summary", Entity: row.State, Err: errors.ErrUnknownState}
		}
		deficit[row.State] += row.Deficit
	}

	out := make([]models.HireableHours, len(states))
	for i, s := range states {
		out[i] = models.HireableHours{State: s.ID}
		if s.TimeToHire > horizon {
			continue
		}
		out[i].Hours = math.Max(deficit[s.ID], 0)
	}
	return out, nil
}

// FormulateNewHire builds
//
//	min  H − Σ hours[s,h]·license[s,h]
//	s.t. Σ_s hours[s,h] <= max_newhire_hrs
//	     Σ_h hours[s,h] <= hireable[s]
//	     license[s,h] <= (license_time[s] <= horizon)
//
// over hours ∈ ℤ≥0 and license ∈ {0,1}. Slots are interchangeable, so slot
// loads are also ordered non-increasing to keep the search from revisiting
// permutations of the same plan. hireable must follow states' order.
func FormulateNewHire(states []models.State, hireable []models.HireableHours, params NewHireParams) *NewHireModel {
	tieBreak := math.Max(params.TieBreak, 0)
	slots := params.MaxHires
	if slots < 0 {
		slots = 0
	}

	p := program.New(models.StageNewHire)
	m := &NewHireModel{
		Program:         p,
		States:          states,
		Hireable:        hireable,
		MaxHires:        slots,
		MaxNewHireHours: params.MaxNewHireHours,
		Hours:           make([][]program.VarID, len(states)),
		License:         make([][]program.VarID, len(states)),
	}

	total := 0.0
	for _, h := range hireable {
		total += h.Hours
	}
	p.AddConstant(total)

	for j, st := range states {
		m.Hours[j] = make([]program.VarID, slots)
		m.License[j] = make([]program.VarID, slots)
		licenseUB := 1.0
		if st.LicenseTime > params.PlanningHorizon {
			licenseUB = 0
		}
		hoursUB := math.Max(math.Min(params.MaxNewHireHours, hireable[j].Hours), 0)
		for h := 0; h < slots; h++ {
			hours := p.AddVariable(fmt.Sprintf("hours[%s,%d]", st.ID, h), program.Integer, 0, hoursUB)
			license := p.AddVariable(fmt.Sprintf("license[%s,%d]", st.ID, h), program.Binary, 0, licenseUB)
			m.Hours[j][h], m.License[j][h] = hours, license

			p.AddBilinear(hours, license, -1)
			p.AddLinear(license, tieBreak)
			p.AddLinear(hours, tieBreak/100)
		}
	}

	for h := 0; h < slots; h++ {
		terms := make([]program.Term, 0, len(states))
		for j := range states {
			terms = append(terms, program.Term{Var: m.Hours[j][h], Coef: 1})
		}
		p.AddConstraint(fmt.Sprintf("slot[%d]", h), program.LessEq, params.MaxNewHireHours, terms...)
	}
	for j, st := range states {
		terms := make([]program.Term, 0, slots)
		for h := 0; h < slots; h++ {
			terms = append(terms, program.Term{Var: m.Hours[j][h], Coef: 1})
		}
		if len(terms) > 0 {
			p.AddConstraint("hireable["+st.ID+"]", program.LessEq, hireable[j].Hours, terms...)
		}
	}
	for h := 1; h < slots; h++ {
		terms := make([]program.Term, 0, 2*len(states))
		for j := range states {
			terms = append(terms,
				program.Term{Var: m.Hours[j][h], Coef: 1},
				program.Term{Var: m.Hours[j][h-1], Coef: -1})
		}
		p.AddConstraint(fmt.Sprintf("slot-order[%d]", h), program.LessEq, 0, terms...)
	}

	p.Hint = m.greedyHint()
	return m
}

// Assignments returns the (state, slot) pairs with non-zero hours.
func (m *NewHireModel) Assignments(sol *program.Solution) []models.HireAssignment {
	var out []models.HireAssignment
	for j, st := range m.States {
		for h := 0; h < m.MaxHires; h++ {
			hours := sol.Int(m.Hours[j][h])
			if hours == 0 {
				continue
			}
			out = append(out, models.HireAssignment{
				State:    st.ID,
				Slot:     h,
				Hours:    hours,
				Licensed: sol.Bool(m.License[j][h]),
			})
		}
	}
	return out
}
