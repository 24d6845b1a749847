package models

import "sort"

// Stage names used in logs, metrics and SolverFailure.
const (
	StageExisting = "existing-assignment"
	StageNewHire  = "new-hire"
)

// Therapist is a provider with a weekly hour capacity.
type Therapist struct {
	ID           string
	HoursPerWeek float64
}

// DemandDistribution is the normal distribution weekly demand is drawn from.
type DemandDistribution struct {
	Mean float64
	Std  float64
}

// State is a demand region. DemandPerWeek is replaced each simulation run when
// Distribution is set.
type State struct {
	ID            string
	DemandPerWeek float64
	Distribution  *DemandDistribution
	LicenseTime   float64
	TimeToHire    float64
}

// LicenseRecord maps a therapist id to the set of states they already hold a license in.
type LicenseRecord map[string]map[string]bool

// Has reports whether the therapist is already licensed in the state.
func (l LicenseRecord) Has(therapist, state string) bool {
	return l[therapist][state]
}

// MasterData is the read-only input of one simulation run.
// Therapists and States are sorted by ID.
type MasterData struct {
	Therapists []Therapist
	States     []State
	Licenses   LicenseRecord
}

// WithStates returns a copy of the master data that uses the given state table.
// Therapists and licenses are shared, they are never mutated.
func (m *MasterData) WithStates(states []State) *MasterData {
	return &MasterData{
		Therapists: m.Therapists,
		States:     states,
		Licenses:   m.Licenses,
	}
}

// SortByID orders therapists and states so formulations and exports are deterministic.
func (m *MasterData) SortByID() {
	sort.Slice(m.Therapists, func(i, j int) bool { return m.Therapists[i].ID < m.Therapists[j].ID })
	sort.Slice(m.States, func(i, j int) bool { return m.States[i].ID < m.States[j].ID })
}

// Assignment is the solved decision for one (therapist, state) pair.
type Assignment struct {
	Therapist     string `json:"therapist" yaml:"therapist"`
	State         string `json:"state" yaml:"state"`
	AssignedHours int    `json:"assigned_hrs_per_week" yaml:"assigned_hrs_per_week"`
	NewLicense    bool   `json:"assigned_new_license" yaml:"assigned_new_license"`
}

// StateSummary aggregates stage-one assignments per state.
type StateSummary struct {
	State         string  `json:"state" yaml:"state"`
	AssignedHours int     `json:"assigned_hrs_per_week" yaml:"assigned_hrs_per_week"`
	NewLicenses   int     `json:"assigned_new_license" yaml:"assigned_new_license"`
	Demand        float64 `json:"demand_per_week" yaml:"demand_per_week"`
	Deficit       float64 `json:"deficit_per_week" yaml:"deficit_per_week"`
}

// ProviderSummary aggregates stage-one assignments per therapist.
type ProviderSummary struct {
	Therapist      string  `json:"therapist" yaml:"therapist"`
	AssignedHours  int     `json:"assigned_hrs_per_week" yaml:"assigned_hrs_per_week"`
	NewLicenses    int     `json:"assigned_new_license" yaml:"assigned_new_license"`
	InitialHours   float64 `json:"initial_available_hrs_per_week" yaml:"initial_available_hrs_per_week"`
	RemainingHours float64 `json:"final_available_hrs_per_week" yaml:"final_available_hrs_per_week"`
}

// ExistingResult is the outcome of one existing-workforce run.
type ExistingResult struct {
	RunID       string            `json:"run_id" yaml:"run_id"`
	Run         int               `json:"run" yaml:"run"`
	Status      string            `json:"status" yaml:"status"`
	Objective   float64           `json:"objective" yaml:"objective"`
	Assignments []Assignment      `json:"assignments" yaml:"assignments"`
	States      []StateSummary    `json:"states" yaml:"states"`
	Providers   []ProviderSummary `json:"providers" yaml:"providers"`
	// Data is the master data the run solved against, demand already sampled.
	Data        *MasterData       `json:"-" yaml:"-"`
}

// TotalDeficit sums the per-state deficit.
func (r *ExistingResult) TotalDeficit() float64 {
	total := 0.0
	for _, s := range r.States {
		total += s.Deficit
	}
	return total
}

// HireableHours is the part of a state's deficit new hires may address.
type HireableHours struct {
	State string  `json:"state" yaml:"state"`
	Hours float64 `json:"hireable_hours" yaml:"hireable_hours"`
}

// HireAssignment is a non-zero hour assignment of a new-hire slot to a state.
type HireAssignment struct {
	State    string `json:"state" yaml:"state"`
	Slot     int    `json:"new_hire_id" yaml:"new_hire_id"`
	Hours    int    `json:"newhire_hours" yaml:"newhire_hours"`
	Licensed bool   `json:"newhire_licensing" yaml:"newhire_licensing"`
}

// SlotSummary aggregates hire assignments per slot.
type SlotSummary struct {
	Slot           int `json:"new_hire_id" yaml:"new_hire_id"`
	StatesEligible int `json:"states_eligible" yaml:"states_eligible"`
	Hours          int `json:"newhire_hours" yaml:"newhire_hours"`
}

// PostHiringStateSummary is the per-state deficit before and after hiring.
type PostHiringStateSummary struct {
	State             string  `json:"state" yaml:"state"`
	AssignedHours     int     `json:"assigned_hrs_per_week" yaml:"assigned_hrs_per_week"`
	NewLicenses       int     `json:"assigned_new_license" yaml:"assigned_new_license"`
	Demand            float64 `json:"demand_per_week" yaml:"demand_per_week"`
	Deficit           float64 `json:"deficit_per_week" yaml:"deficit_per_week"`
	NewHires          int     `json:"new_hires_count" yaml:"new_hires_count"`
	NewHireHours      int     `json:"newhire_hours" yaml:"newhire_hours"`
	DeficitPostHiring float64 `json:"deficit_post_hiring" yaml:"deficit_post_hiring"`
}

// HiringResult is the outcome of the new-hire plan.
type HiringResult struct {
	Status      string                   `json:"status" yaml:"status"`
	Objective   float64                  `json:"objective" yaml:"objective"`
	Hireable    []HireableHours          `json:"hireable_hours" yaml:"hireable_hours"`
	Assignments []HireAssignment         `json:"assignments" yaml:"assignments"`
	States      []PostHiringStateSummary `json:"states" yaml:"states"`
	Slots       []SlotSummary            `json:"slots" yaml:"slots"`
}
