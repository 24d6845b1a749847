package parser

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"time"

	"workforce-planner/errors"
	"workforce-planner/metrics"
	"workforce-planner/models"
)

type therapistRecord struct {
	HoursPerWeek *float64 `json:"h_per_week"`
}

type stateRecord struct {
	DemandPerWeek *float64 `json:"demand_per_week"`
	DemandMean    *float64 `json:"demand_dist_mean"`
	DemandStd     *float64 `json:"demand_dist_std"`
	LicenseTime   *float64 `json:"license_time"`
	TimeToHire    *float64 `json:"time_to_hire"`
}

// ParseTherapists reads a therapist table of the form {"id": {"h_per_week": 40}}.
// The result is sorted by id.
func ParseTherapists(r io.Reader) ([]models.Therapist, error) {
	var raw map[string]therapistRecord
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, &errors.MasterDataError{Source: "therapists", Err: fmt.Errorf("decode: %w", err)}
	}
	if len(raw) == 0 {
		return nil, &errors.MasterDataError{Source: "therapists", Err: errors.ErrEmptyTable}
	}

	out := make([]models.Therapist, 0, len(raw))
	for _, id := range sortedKeys(raw) {
		rec := raw[id]
		if rec.HoursPerWeek == nil {
			return nil, &errors.MasterDataError{Source: "therapists", Entity: id,
				Err: fmt.Errorf("%w: h_per_week", errors.ErrMissingField)}
		}
		if !finite(*rec.HoursPerWeek) || *rec.HoursPerWeek <= 0 {
			return nil, &errors.MasterDataError{Source: "therapists", Entity: id,
				Err: fmt.Errorf("%w: h_per_week=%v", errors.ErrInvalidCapacity, *rec.HoursPerWeek)}
		}
		out = append(out, models.Therapist{ID: id, HoursPerWeek: *rec.HoursPerWeek})
	}
	return out, nil
}

// ParseStates reads a state table. Each state needs either demand_per_week or
// demand_dist_mean, plus license_time and time_to_hire in weeks. When a
// distribution is given, demand_per_week only serves as the starting value and
// is replaced by every sampled run. The result is sorted by id.
func ParseStates(r io.Reader) ([]models.State, error) {
	var raw map[string]stateRecord
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, &errors.MasterDataError{Source: "states", Err: fmt.Errorf("decode: %w", err)}
	}
	if len(raw) == 0 {
		return nil, &errors.MasterDataError{Source: "states", Err: errors.ErrEmptyTable}
	}

	out := make([]models.State, 0, len(raw))
	for _, id := range sortedKeys(raw) {
		st, err := toState(id, raw[id])
		if err != nil {
			return nil, &errors.MasterDataError{Source: "states", Entity: id, Err: err}
		}
		out = append(out, st)
	}
	return out, nil
}

func toState(id string, rec stateRecord) (models.State, error) {
	st := models.State{ID: id}

	switch {
	case rec.LicenseTime == nil:
		return st, fmt.Errorf("%w: license_time", errors.ErrMissingField)
	case rec.TimeToHire == nil:
		return st, fmt.Errorf("%w: time_to_hire", errors.ErrMissingField)
	case !finite(*rec.LicenseTime) || *rec.LicenseTime < 0:
		return st, fmt.Errorf("%w: license_time=%v", errors.ErrInvalidLeadTime, *rec.LicenseTime)
	case !finite(*rec.TimeToHire) || *rec.TimeToHire < 0:
		return st, fmt.Errorf("%w: time_to_hire=%v", errors.ErrInvalidLeadTime, *rec.TimeToHire)
	}
	st.LicenseTime = *rec.LicenseTime
	st.TimeToHire = *rec.TimeToHire

	if rec.DemandMean != nil {
		dist := models.DemandDistribution{Mean: *rec.DemandMean}
		if rec.DemandStd != nil {
			dist.Std = *rec.DemandStd
		}
		if !finite(dist.Mean) || !finite(dist.Std) || dist.Std < 0 {
			return st, fmt.Errorf("%w: demand_dist_mean=%v demand_dist_std=%v", errors.ErrInvalidDemand, dist.Mean, dist.Std)
		}
		st.Distribution = &dist
		st.DemandPerWeek = math.Max(dist.Mean, 0)
	}
	if rec.DemandPerWeek != nil {
		if !finite(*rec.DemandPerWeek) || *rec.DemandPerWeek < 0 {
			return st, fmt.Errorf("%w: demand_per_week=%v", errors.ErrInvalidDemand, *rec.DemandPerWeek)
		}
		st.DemandPerWeek = *rec.DemandPerWeek
	}
	if rec.DemandPerWeek == nil && rec.DemandMean == nil {
		return st, fmt.Errorf("%w: demand_per_week or demand_dist_mean", errors.ErrMissingField)
	}
	return st, nil
}

// ParseLicenses reads the therapist to licensed-states table {"id": ["CA", "NY"]}.
func ParseLicenses(r io.Reader) (models.LicenseRecord, error) {
	var raw map[string][]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, &errors.MasterDataError{Source: "licenses", Err: fmt.Errorf("decode: %w", err)}
	}
	out := make(models.LicenseRecord, len(raw))
	for id, states := range raw {
		set := make(map[string]bool, len(states))
		for _, s := range states {
			set[s] = true
		}
		out[id] = set
	}
	return out, nil
}

// Validate checks the cross-table references of the master data: every license
// must name a known therapist and a known state.
func Validate(data *models.MasterData) error {
	therapists := make(map[string]bool, len(data.Therapists))
	for _, th := range data.Therapists {
		therapists[th.ID] = true
	}
	states := make(map[string]bool, len(data.States))
	for _, st := range data.States {
		states[st.ID] = true
	}

	for _, id := range sortedKeys(data.Licenses) {
		if !therapists[id] {
			return &errors.MasterDataError{Source: "licenses", Entity: id, Err: errors.ErrUnknownTherapist}
		}
		for _, s := range sortedKeys(data.Licenses[id]) {
			if !states[s] {
				return &errors.MasterDataError{Source: "licenses", Entity: id,
					Err: fmt.Errorf("%w: %s", errors.ErrUnknownState, s)}
			}
		}
	}
	return nil
}

// Files loads master data from three JSON files. It rereads them on every
// call, so edits between simulation runs are picked up.
type Files struct {
	Therapists string
	States     string
	Licenses   string
}

// Load reads, validates and sorts the master data.
func (f Files) Load(ctx context.Context) (*models.MasterData, error) {
	start := time.Now()
	defer func() {
		metrics.ParserDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	data := &models.MasterData{}
	var err error
	if data.Therapists, err = parseFile(ctx, f.Therapists, ParseTherapists); err != nil {
		return nil, record(err)
	}
	metrics.ParserRecordsTotal.WithLabelValues("therapists").Add(float64(len(data.Therapists)))

	if data.States, err = parseFile(ctx, f.States, ParseStates); err != nil {
		return nil, record(err)
	}
	metrics.ParserRecordsTotal.WithLabelValues("states").Add(float64(len(data.States)))

	if data.Licenses, err = parseFile(ctx, f.Licenses, ParseLicenses); err != nil {
		return nil, record(err)
	}
	metrics.ParserRecordsTotal.WithLabelValues("licenses").Add(float64(len(data.Licenses)))

	if err := Validate(data); err != nil {
		return nil, record(err)
	}
	data.SortByID()
	return data, nil
}

func parseFile[T any](ctx context.Context, path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	file, err := os.Open(path)
	if err != nil {
		return zero, &errors.MasterDataError{Source: path, Err: err}
	}
	defer file.Close()

	out, err := parse(file)
	if err != nil {
		return zero, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}

// record counts err by its sentinel cause and returns it unchanged.
func record(err error) error {
	metrics.ParserErrorsTotal.WithLabelValues(errorType(err)).Inc()
	return err
}

func errorType(err error) string {
	for _, c := range []struct {
		sentinel error
		label    string
	}{
		{errors.ErrEmptyTable, "empty_table"},
		{errors.ErrMissingField, "missing_field"},
		{errors.ErrInvalidCapacity, "invalid_capacity"},
		{errors.ErrInvalidDemand, "invalid_demand"},
		{errors.ErrInvalidLeadTime, "invalid_lead_time"},
		{errors.ErrUnknownState, "unknown_state"},
		{errors.ErrUnknownTherapist, "unknown_therapist"},
		{errors.ErrInvalidFieldCount, "invalid_field_count"},
		{errors.ErrInvalidNumber, "invalid_number"},
	} {
		if stderrors.Is(err, c.sentinel) {
			return c.label
		}
	}
	if stderrors.Is(err, os.ErrNotExist) {
		return "not_found"
	}
	return "other"
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	return slices.Sorted(maps.Keys(m))
}
