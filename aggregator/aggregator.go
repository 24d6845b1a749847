// Package aggregator turns solved assignments into the per-state, per-provider
// and per-slot tables that are rendered and exported.
//
// Every function is pure: the same input always yields the same, key-sorted output.
package aggregator

import (
	"sort"

	"workforce-planner/errors"
	"workforce-planner/models"
)

// Existing builds the state and provider summaries of a stage-one solve.
// Every state and therapist in data gets a row, even when nothing was assigned.
func Existing(data *models.MasterData, rows []models.Assignment) ([]models.StateSummary, []models.ProviderSummary, error) {
	stateIdx := make(map[string]int, len(data.States))
	states := make([]models.StateSummary, len(data.States))
	for i, st := range data.States {
		stateIdx[st.ID] = i
		states[i] = models.StateSummary{State: st.ID, Demand: st.DemandPerWeek}
	}
	providerIdx := make(map[string]int, len(data.Therapists))
	providers := make([]models.ProviderSummary, len(data.Therapists))
	for i, th := range data.Therapists {
		providerIdx[th.ID] = i
		providers[i] = models.ProviderSummary{Therapist: th.ID, InitialHours: th.HoursPerWeek}
	}

	for _, a := range rows {
		si, ok := stateIdx[a.State]
		if !ok {
			return nil, nil, &errors.MasterDataError{Source: "assignments", Entity: a.State, Err: errors.ErrUnknownState}
		}
		pi, ok := providerIdx[a.Therapist]
		if !ok {
			return nil, nil, &errors.MasterDataError{Source: "assignments", Entity: a.Therapist, Err: errors.ErrUnknownTherapist}
		}
		states[si].AssignedHours += a.AssignedHours
		providers[pi].AssignedHours += a.AssignedHours
		if a.NewLicense {
			states[si].NewLicenses++
			providers[pi].NewLicenses++
		}
	}

	for i := range states {
		states[i].Deficit = states[i].Demand - float64(states[i].AssignedHours)
	}
	for i := range providers {
		providers[i].RemainingHours = providers[i].InitialHours - float64(providers[i].AssignedHours)
	}

	sort.Slice(states, func(i, j int) bool { return states[i].State < states[j].State })
	sort.Slice(providers, func(i, j int) bool { return providers[i].Therapist < providers[j].Therapist })
	return states, providers, nil
}

// SortAssignments orders stage-one rows by therapist, then state.
func SortAssignments(rows []models.Assignment) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Therapist != rows[j].Therapist {
			return rows[i].Therapist < rows[j].Therapist
		}
		return rows[i].State < rows[j].State
	})
}

// SortHires orders hire rows by state, then slot.
func SortHires(rows []models.HireAssignment) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].State != rows[j].State {
			return rows[i].State < rows[j].State
		}
		return rows[i].Slot < rows[j].Slot
	})
}

// PostHiring joins the stage-one state summary with the hire rows. A state
// with no hire rows keeps its stage-one deficit. Hire rows with zero hours are
// not counted as hires.
func PostHiring(summary []models.StateSummary, hires []models.HireAssignment) ([]models.PostHiringStateSummary, error) {
	idx := make(map[string]int, len(summary))
	out := make([]models.PostHiringStateSummary, len(summary))
	for i, s := range summary {
		idx[s.State] = i
		out[i] = models.PostHiringStateSummary{
			State:         s.State,
			AssignedHours: s.AssignedHours,
			NewLicenses:   s.NewLicenses,
			Demand:        s.Demand,
			Deficit:       s.Deficit,
		}
	}

	for _, h := range hires {
		if h.Hours == 0 {
			continue
		}
		i, ok := idx[h.State]
		if !ok {
			return nil, &errors.MasterDataError{Source: "hire assignments", Entity: h.State, Err: errors.ErrUnknownState}
		}
		out[i].NewHires++
		out[i].NewHireHours += h.Hours
	}

	for i := range out {
		out[i].DeficitPostHiring = out[i].Deficit - float64(out[i].NewHireHours)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out, nil
}

// Slots summarizes hire rows per new-hire slot. Slots with no hours are omitted.
func Slots(hires []models.HireAssignment) []models.SlotSummary {
	bySlot := make(map[int]*models.SlotSummary)
	for _, h := range hires {
		if h.Hours == 0 {
			continue
		}
		s, ok := bySlot[h.Slot]
		if !ok {
			s = &models.SlotSummary{Slot: h.Slot}
			bySlot[h.Slot] = s
		}
		s.StatesEligible++
		s.Hours += h.Hours
	}

	out := make([]models.SlotSummary, 0, len(bySlot))
	for _, s := range bySlot {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}
