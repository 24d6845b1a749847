package aggregator_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce-planner/aggregator"
	customerrors "workforce-planner/errors"
	"workforce-planner/models"
)

func masterData() *models.MasterData {
	return &models.MasterData{
		Therapists: []models.Therapist{
			{ID: "A", HoursPerWeek: 40},
			{ID: "B", HoursPerWeek: 20},
		},
		States: []models.State{
			{ID: "CA", DemandPerWeek: 50},
			{ID: "NY", DemandPerWeek: 12},
		},
		Licenses: models.LicenseRecord{"A": {"CA": true}},
	}
}

func TestExisting(t *testing.T) {
	rows := []models.Assignment{
		{Therapist: "A", State: "CA", AssignedHours: 40},
		{Therapist: "A", State: "NY", AssignedHours: 0},
		{Therapist: "B", State: "CA", AssignedHours: 10, NewLicense: true},
		{Therapist: "B", State: "NY", AssignedHours: 8, NewLicense: true},
	}

	states, providers, err := aggregator.Existing(masterData(), rows)
	require.NoError(t, err)

	assert.Equal(t, []models.StateSummary{
		{State: "CA", AssignedHours: 50, NewLicenses: 1, Demand: 50, Deficit: 0},
		{State: "NY", AssignedHours: 8, NewLicenses: 1, Demand: 12, Deficit: 4},
	}, states)
	assert.Equal(t, []models.ProviderSummary{
		{Therapist: "A", AssignedHours: 40, NewLicenses: 0, InitialHours: 40, RemainingHours: 0},
		{Therapist: "B", AssignedHours: 18, NewLicenses: 2, InitialHours: 20, RemainingHours: 2},
	}, providers)

	for _, s := range states {
		assert.Equal(t, s.Demand-float64(s.AssignedHours), s.Deficit)
	}
}

func TestExisting_Idempotent(t *testing.T) {
	rows := []models.Assignment{
		{Therapist: "B", State: "NY", AssignedHours: 8, NewLicense: true},
		{Therapist: "A", State: "CA", AssignedHours: 40},
	}

	s1, p1, err := aggregator.Existing(masterData(), rows)
	require.NoError(t, err)
	s2, p2, err := aggregator.Existing(masterData(), rows)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, p1, p2)
}

func TestExisting_UnknownEntity(t *testing.T) {
	tests := map[string]struct {
		row         models.Assignment
		expectedErr error
	}{
		"UnknownState":     {row: models.Assignment{Therapist: "A", State: "ZZ"}, expectedErr: customerrors.ErrUnknownState},
		"UnknownTherapist": {row: models.Assignment{Therapist: "Q", State: "CA"}, expectedErr: customerrors.ErrUnknownTherapist},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := aggregator.Existing(masterData(), []models.Assignment{tt.row})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.expectedErr))
		})
	}
}

func TestSortAssignments(t *testing.T) {
	rows := []models.Assignment{
		{Therapist: "B", State: "CA"},
		{Therapist: "A", State: "NY"},
		{Therapist: "A", State: "CA"},
	}
	aggregator.SortAssignments(rows)
	assert.Equal(t, []models.Assignment{
		{Therapist: "A", State: "CA"},
		{Therapist: "A", State: "NY"},
		{Therapist: "B", State: "CA"},
	}, rows)
}

func TestPostHiring(t *testing.T) {
	summary := []models.StateSummary{
		{State: "NY", AssignedHours: 8, NewLicenses: 1, Demand: 12, Deficit: 4},
		{State: "CA", AssignedHours: 10, Demand: 60, Deficit: 50},
		{State: "TX", AssignedHours: 0, Demand: 5, Deficit: 5},
	}

	tests := map[string]struct {
		hires    []models.HireAssignment
		expected []models.PostHiringStateSummary
	}{
		"NoHires": {
			hires: nil,
			expected: []models.PostHiringStateSummary{
				{State: "CA", AssignedHours: 10, Demand: 60, Deficit: 50, DeficitPostHiring: 50},
				{State: "NY", AssignedHours: 8, NewLicenses: 1, Demand: 12, Deficit: 4, DeficitPostHiring: 4},
				{State: "TX", Demand: 5, Deficit: 5, DeficitPostHiring: 5},
			},
		},
		"HiresAcrossSlots": {
			hires: []models.HireAssignment{
				{State: "CA", Slot: 0, Hours: 30, Licensed: true},
				{State: "CA", Slot: 1, Hours: 20, Licensed: true},
				{State: "NY", Slot: 1, Hours: 4, Licensed: true},
				{State: "TX", Slot: 2, Hours: 0},
			},
			expected: []models.PostHiringStateSummary{
				{State: "CA", AssignedHours: 10, Demand: 60, Deficit: 50, NewHires: 2, NewHireHours: 50, DeficitPostHiring: 0},
				{State: "NY", AssignedHours: 8, NewLicenses: 1, Demand: 12, Deficit: 4, NewHires: 1, NewHireHours: 4, DeficitPostHiring: 0},
				{State: "TX", Demand: 5, Deficit: 5, DeficitPostHiring: 5},
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := aggregator.PostHiring(summary, tt.hires)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPostHiring_UnknownState(t *testing.T) {
	_, err := aggregator.PostHiring(
		[]models.StateSummary{{State: "CA", Deficit: 3}},
		[]models.HireAssignment{{State: "ZZ", Hours: 3}},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, customerrors.ErrUnknownState))
}

func TestSlots(t *testing.T) {
	hires := []models.HireAssignment{
		{State: "NY", Slot: 1, Hours: 4},
		{State: "CA", Slot: 0, Hours: 30},
		{State: "CA", Slot: 1, Hours: 20},
		{State: "TX", Slot: 2, Hours: 0},
	}

	assert.Equal(t, []models.SlotSummary{
		{Slot: 0, StatesEligible: 1, Hours: 30},
		{Slot: 1, StatesEligible: 2, Hours: 24},
	}, aggregator.Slots(hires))
	assert.Empty(t, aggregator.Slots(nil))
}
