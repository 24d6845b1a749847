package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"workforce-planner/errors"
	"workforce-planner/metrics"
	"workforce-planner/models"
)

// StateStatsColumns is the header of an exported stage-one state summary.
var StateStatsColumns = []string{"State", "assigned_hrs_per_week", "assigned_new_license", "demand_per_week", "deficit_per_week"}

// ParseStateStats reads a stage-one state summary back in, so a hiring plan can
// be computed without rerunning the simulation. Columns are matched by header
// name, extra columns such as a leading index are ignored. Lines starting with
// '#' are comments.
func ParseStateStats(r io.Reader) ([]models.StateSummary, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var (
		columns map[string]int
		out     []models.StateSummary
		lineNum int
	)
	for {
		record, err := reader.Read()
		lineNum++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &errors.MasterDataError{Source: "state stats", Err: fmt.Errorf("line %d: %w", lineNum, err)}
		}
		if len(record) > 0 && strings.HasPrefix(record[0], "#") {
			continue
		}

		if columns == nil {
			columns, err = headerIndex(record)
			if err != nil {
				return nil, &errors.MasterDataError{Source: "state stats", Err: fmt.Errorf("line %d: %w", lineNum, err)}
			}
			continue
		}

		row, err := stateStatsRow(record, columns)
		if err != nil {
			return nil, &errors.MasterDataError{Source: "state stats", Entity: fmt.Sprintf("line %d", lineNum), Err: err}
		}
		out = append(out, row)
	}

	if len(out) == 0 {
		return nil, &errors.MasterDataError{Source: "state stats", Err: errors.ErrEmptyTable}
	}
	return out, nil
}

// LoadStateStats reads the state summary file at path.
func LoadStateStats(path string) ([]models.StateSummary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, record(&errors.MasterDataError{Source: path, Err: err})
	}
	defer file.Close()

	rows, err := ParseStateStats(file)
	if err != nil {
		return nil, record(fmt.Errorf("reading %s: %w", path, err))
	}
	metrics.ParserRecordsTotal.WithLabelValues("state_stats").Add(float64(len(rows)))
	return rows, nil
}

func headerIndex(record []string) (map[string]int, error) {
	idx := make(map[string]int, len(record))
	for i, name := range record {
		idx[strings.TrimSpace(name)] = i
	}
	for _, name := range StateStatsColumns {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("%w: column %s", errors.ErrMissingField, name)
		}
	}
	return idx, nil
}

func stateStatsRow(record []string, columns map[string]int) (models.StateSummary, error) {
	field := func(name string) (string, error) {
		i := columns[name]
		if i >= len(record) {
			return "", fmt.Errorf("%w: %d fields, %s at %d", errors.ErrInvalidFieldCount, len(record), name, i)
		}
		return strings.TrimSpace(record[i]), nil
	}
	number := func(name string) (float64, error) {
		s, err := field(name)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %s=%q", errors.ErrInvalidNumber, name, s)
		}
		return v, nil
	}

	var row models.StateSummary
	var err error
	if row.State, err = field("State"); err != nil {
		return row, err
	}
	if row.State == "" {
		return row, fmt.Errorf("%w: State", errors.ErrMissingField)
	}

	assigned, err := number("assigned_hrs_per_week")
	if err != nil {
		return row, err
	}
	licenses, err := number("assigned_new_license")
	if err != nil {
		return row, err
	}
	row.AssignedHours = int(math.Round(assigned))
	row.NewLicenses = int(math.Round(licenses))

	if row.Demand, err = number("demand_per_week"); err != nil {
		return row, err
	}
	if row.Deficit, err = number("deficit_per_week"); err != nil {
		return row, err
	}
	return row, nil
}
