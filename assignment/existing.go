// Package assignment formulates the existing-workforce and new-hire assignment
// programs and reads solved values back into typed records.
package assignment

import (
	"fmt"
	"math"

	"workforce-planner/models"
	"workforce-planner/program"
)

// LicenseGate selects how the upper bound of a license-acquisition decision is derived.
type LicenseGate string

const (
	// GateStrict forbids acquisition when the provider is already licensed or
	// the license cannot be obtained within the planning horizon.
	GateStrict LicenseGate = "strict"
	// GateLegacy forbids acquisition only when the provider is already licensed
	// and the license cannot be obtained within the planning horizon.
	GateLegacy LicenseGate = "legacy"
)

// DefaultTieBreak is the objective weight charged per acquired license. Hours
// are charged a hundredth of it, so neither ever outweighs a covered hour.
const DefaultTieBreak = 1e-4

// ExistingParams configures the existing-workforce formulation.
type ExistingParams struct {
	PlanningHorizon float64
	Gate            LicenseGate
	TieBreak        float64
}

// ExistingModel is the formulated existing-workforce program together with the
// variable index needed to read a solution back.
type ExistingModel struct {
	Program *program.Program
	Data    *models.MasterData
	// Hours and Acquire are indexed [therapist][state] following Data's order.
	Hours   [][]program.VarID
	Acquire [][]program.VarID
}

// AcquireUpperBound returns the upper bound of acquire[p,s].
func AcquireUpperBound(licensed bool, licenseTime, horizon float64, gate LicenseGate) float64 {
	late := licenseTime > horizon
	if gate == GateLegacy {
		if licensed && late {
			return 0
		}
		return 1
	}
	if licensed || late {
		return 0
	}
	return 1
}

// FormulateExisting builds
//
//	min  D − (Σ hours·licensed + Σ hours·acquire − Σ hours·acquire·licensed)
//	s.t. Σ_s hours[p,s] <= hours_per_week[p]
//	     Σ_p hours[p,s] <= demand[s]
//	     acquire[p,s] <= gate(p,s)
//
// over hours ∈ ℤ≥0 and acquire ∈ {0,1}. The product terms are left bilinear for
// the solver to handle. hours[p,s] is bounded by min(capacity, demand), which
// the two capacity rows imply anyway.
func FormulateExisting(data *models.MasterData, params ExistingParams) *ExistingModel {
	tieBreak := params.TieBreak
	if tieBreak < 0 {
		tieBreak = 0
	}
	p := program.New(models.StageExisting)
	m := &ExistingModel{
		Program: p,
		Data:    data,
		Hours:   make([][]program.VarID, len(data.Therapists)),
		Acquire: make([][]program.VarID, len(data.Therapists)),
	}

	totalDemand := 0.0
	for _, s := range data.States {
		totalDemand += s.DemandPerWeek
	}
	p.AddConstant(totalDemand)

	for i, th := range data.Therapists {
		m.Hours[i] = make([]program.VarID, len(data.States))
		m.Acquire[i] = make([]program.VarID, len(data.States))
		for j, st := range data.States {
			licensed := data.Licenses.Has(th.ID, st.ID)
			ub := math.Max(math.Min(th.HoursPerWeek, st.DemandPerWeek), 0)
			hours := p.AddVariable(fmt.Sprintf("hours[%s,%s]", th.ID, st.ID), program.Integer, 0, ub)
			acquire := p.AddVariable(fmt.Sprintf("acquire[%s,%s]", th.ID, st.ID), program.Binary, 0,
				AcquireUpperBound(licensed, st.LicenseTime, params.PlanningHorizon, params.Gate))
			m.Hours[i][j], m.Acquire[i][j] = hours, acquire

			already := indicator(licensed)
			p.AddLinear(hours, -already)
			p.AddBilinear(hours, acquire, -1)
			p.AddBilinear(hours, acquire, already)

			p.AddLinear(acquire, tieBreak)
			p.AddLinear(hours, tieBreak/100)
		}
	}

	for i, th := range data.Therapists {
		terms := make([]program.Term, 0, len(data.States))
		for j := range data.States {
			terms = append(terms, program.Term{Var: m.Hours[i][j], Coef: 1})
		}
		p.AddConstraint("capacity["+th.ID+"]", program.LessEq, th.HoursPerWeek, terms...)
	}
	for j, st := range data.States {
		terms := make([]program.Term, 0, len(data.Therapists))
		for i := range data.Therapists {
			terms = append(terms, program.Term{Var: m.Hours[i][j], Coef: 1})
		}
		p.AddConstraint("demand["+st.ID+"]", program.LessEq, st.DemandPerWeek, terms...)
	}

	p.Hint = m.greedyHint()
	return m
}

// Assignments reads one record per (therapist, state) pair from sol.
func (m *ExistingModel) Assignments(sol *program.Solution) []models.Assignment {
	out := make([]models.Assignment, 0, len(m.Data.Therapists)*len(m.Data.States))
	for i, th := range m.Data.Therapists {
		for j, st := range m.Data.States {
			out = append(out, models.Assignment{
				Therapist:     th.ID,
				State:         st.ID,
				AssignedHours: sol.Int(m.Hours[i][j]),
				NewLicense:    sol.Bool(m.Acquire[i][j]),
			})
		}
	}
	return out
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
