package formatter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"workforce-planner/models"
)

// Export subdirectories, one per stage.
const (
	ExistingDir = "with_existing_resource"
	HiringDir   = "with_new_hire"
)

// StateStatsPath is where the stage-one state summary is exported under dir.
func StateStatsPath(dir string) string {
	return filepath.Join(dir, ExistingDir, "state_stats.csv")
}

// Exporter writes result tables as CSV files under Dir. Every export replaces
// the previous files, so after a simulation only the last run remains.
type Exporter struct {
	Dir string
}

// ExportExisting writes the three stage-one tables and returns their paths.
func (e Exporter) ExportExisting(res *models.ExistingResult) ([]string, error) {
	dir := filepath.Join(e.Dir, ExistingDir)
	return writeAll(dir, []table{
		{"therapist_assignment.csv", func(w io.Writer) error { return WriteAssignments(w, res.Assignments) }},
		{"state_stats.csv", func(w io.Writer) error { return WriteStateStats(w, res.States) }},
		{"therapist_stats.csv", func(w io.Writer) error { return WriteTherapistStats(w, res.Providers) }},
	})
}

// ExportHiring writes the three hiring tables and returns their paths.
func (e Exporter) ExportHiring(res *models.HiringResult) ([]string, error) {
	dir := filepath.Join(e.Dir, HiringDir)
	return writeAll(dir, []table{
		{"new_hires_by_state.csv", func(w io.Writer) error { return WriteHires(w, res.Assignments) }},
		{"states_stat_post_hiring.csv", func(w io.Writer) error { return WritePostHiringStats(w, res.States) }},
		{"therapist_stat_post_hiring.csv", func(w io.Writer) error { return WriteSlotStats(w, res.Slots) }},
	})
}

type table struct {
	name  string
	write func(io.Writer) error
}

func writeAll(dir string, tables []table) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		path := filepath.Join(dir, t.name)
		if err := writeFile(path, t.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// writeFile writes to a temporary file first so a failed export never leaves
// a truncated table behind.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("exporting %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("exporting %s: %w", path, err)
	}
	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("exporting %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("exporting %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("exporting %s: %w", path, err)
	}
	return nil
}
