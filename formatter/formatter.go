package formatter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"workforce-planner/models"
)

// Report holds whatever stages were run, for rendering on stdout.
type Report struct {
	Existing *models.ExistingResult `json:"existing,omitempty" yaml:"existing,omitempty"`
	Hiring   *models.HiringResult   `json:"hiring,omitempty" yaml:"hiring,omitempty"`
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// Format renders the report in one of text, json, csv or yaml.
func Format(format string, r *Report) (string, error) {
	switch format {
	case "json":
		return FormatJSON(r), nil
	case "csv":
		return FormatCSV(r), nil
	case "yaml":
		return FormatYAML(r)
	case "text", "":
		return FormatText(r), nil
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

// FormatText returns the human-readable representation of the report
func FormatText(r *Report) string {
	var sb strings.Builder
	if r.Existing != nil {
		formatExistingText(&sb, r.Existing)
	}
	if r.Hiring != nil {
		if r.Existing != nil {
			sb.WriteString("\n")
		}
		formatHiringText(&sb, r.Hiring)
	}
	return sb.String()
}

func formatExistingText(sb *strings.Builder, res *models.ExistingResult) {
	sb.WriteString(headingStyle.Render(fmt.Sprintf("Existing workforce : run=%d ; status=%s", res.Run, res.Status)))
	sb.WriteString("\n")
	if res.RunID != "" {
		sb.WriteString(fmt.Sprintf("run_id=%s\n", res.RunID))
	}

	sb.WriteString("States:\n")
	for _, s := range res.States {
		sb.WriteString(fmt.Sprintf("  %s : demand=%s ; assigned=%d ; new_licenses=%d ; deficit=%s\n",
			s.State, num(s.Demand), s.AssignedHours, s.NewLicenses, num(s.Deficit)))
		if s.Deficit > 0 {
			sb.WriteString(warningStyle.Render(fmt.Sprintf("    ⚠️  DEFICIT WARNING: %s hrs/week of demand uncovered", num(s.Deficit))))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("Providers:\n")
	for _, p := range res.Providers {
		sb.WriteString(fmt.Sprintf("  %s : assigned=%d ; new_licenses=%d ; available=%s/%s\n",
			p.Therapist, p.AssignedHours, p.NewLicenses, num(p.RemainingHours), num(p.InitialHours)))
	}

	sb.WriteString("Assignments:\n")
	for _, a := range res.Assignments {
		if a.AssignedHours == 0 && !a.NewLicense {
			continue
		}
		license := ""
		if a.NewLicense {
			license = " [new license]"
		}
		sb.WriteString(fmt.Sprintf("  • %s -> %s : %d hrs/week%s\n", a.Therapist, a.State, a.AssignedHours, license))
	}

	total := res.TotalDeficit()
	if total > 0 {
		sb.WriteString(warningStyle.Render(fmt.Sprintf("Total deficit=%s hrs/week", num(total))))
	} else {
		sb.WriteString(okStyle.Render("Total deficit=0 hrs/week"))
	}
	sb.WriteString("\n")
}

func formatHiringText(sb *strings.Builder, res *models.HiringResult) {
	sb.WriteString(headingStyle.Render(fmt.Sprintf("New hires : status=%s ; hires_used=%d", res.Status, len(res.Slots))))
	sb.WriteString("\n")

	sb.WriteString("States:\n")
	for _, s := range res.States {
		sb.WriteString(fmt.Sprintf("  %s : deficit=%s ; new_hires=%d ; newhire_hours=%d ; deficit_post_hiring=%s\n",
			s.State, num(s.Deficit), s.NewHires, s.NewHireHours, num(s.DeficitPostHiring)))
		if s.DeficitPostHiring > 0 {
			sb.WriteString(warningStyle.Render(fmt.Sprintf("    ⚠️  DEFICIT WARNING: %s hrs/week remain after hiring", num(s.DeficitPostHiring))))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("Hires:\n")
	if len(res.Slots) == 0 {
		sb.WriteString("  none\n")
	}
	bySlot := make(map[int][]string)
	for _, a := range res.Assignments {
		bySlot[a.Slot] = append(bySlot[a.Slot], fmt.Sprintf("%s=%d", a.State, a.Hours))
	}
	for _, s := range res.Slots {
		parts := bySlot[s.Slot]
		sort.Strings(parts)
		sb.WriteString(fmt.Sprintf("  hire %d : total=%d ; [%s]\n", s.Slot, s.Hours, strings.Join(parts, ", ")))
	}
}

// FormatJSON returns the JSON representation of the report
func FormatJSON(r *Report) string {
	jsonBytes, _ := json.MarshalIndent(r, "", "  ")
	return string(jsonBytes)
}

// FormatYAML returns the YAML representation of the report
func FormatYAML(r *Report) (string, error) {
	out, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding yaml: %w", err)
	}
	return string(out), nil
}

// FormatCSV returns the summary tables of the report as CSV, each preceded by
// a '#' comment line naming it.
func FormatCSV(r *Report) string {
	var sb strings.Builder
	if r.Existing != nil {
		sb.WriteString("# state_stats\n")
		WriteStateStats(&sb, r.Existing.States)
		sb.WriteString("# therapist_stats\n")
		WriteTherapistStats(&sb, r.Existing.Providers)
	}
	if r.Hiring != nil {
		sb.WriteString("# states_stat_post_hiring\n")
		WritePostHiringStats(&sb, r.Hiring.States)
		sb.WriteString("# new_hires_by_state\n")
		WriteHires(&sb, r.Hiring.Assignments)
	}
	return sb.String()
}

// WriteAssignments writes the therapist_assignment table.
func WriteAssignments(w io.Writer, rows []models.Assignment) error {
	writer := csv.NewWriter(w)
	writer.Write([]string{"Therapist", "State", "assigned_hrs_per_week", "assigned_new_license"})
	for _, a := range rows {
		writer.Write([]string{a.Therapist, a.State, strconv.Itoa(a.AssignedHours), flag(a.NewLicense)})
	}
	writer.Flush()
	return writer.Error()
}

// WriteStateStats writes the state_stats table.
func WriteStateStats(w io.Writer, rows []models.StateSummary) error {
	writer := csv.NewWriter(w)
	writer.Write([]string{"State", "assigned_hrs_per_week", "assigned_new_license", "demand_per_week", "deficit_per_week"})
	for _, s := range rows {
		writer.Write([]string{s.State, strconv.Itoa(s.AssignedHours), strconv.Itoa(s.NewLicenses), num(s.Demand), num(s.Deficit)})
	}
	writer.Flush()
	return writer.Error()
}

// WriteTherapistStats writes the therapist_stats table.
func WriteTherapistStats(w io.Writer, rows []models.ProviderSummary) error {
	writer := csv.NewWriter(w)
	writer.Write([]string{"Therapist", "assigned_hrs_per_week", "assigned_new_license",
		"initial_available_hrs_per_week", "final_available_hrs_per_week"})
	for _, p := range rows {
		writer.Write([]string{p.Therapist, strconv.Itoa(p.AssignedHours), strconv.Itoa(p.NewLicenses),
			num(p.InitialHours), num(p.RemainingHours)})
	}
	writer.Flush()
	return writer.Error()
}

// WriteHires writes the new_hires_by_state table.
func WriteHires(w io.Writer, rows []models.HireAssignment) error {
	writer := csv.NewWriter(w)
	writer.Write([]string{"State", "new_hire_id", "newhire_hours", "newhire_licensing"})
	for _, h := range rows {
		writer.Write([]string{h.State, strconv.Itoa(h.Slot), strconv.Itoa(h.Hours), flag(h.Licensed)})
	}
	writer.Flush()
	return writer.Error()
}

// WritePostHiringStats writes the states_stat_post_hiring table.
func WritePostHiringStats(w io.Writer, rows []models.PostHiringStateSummary) error {
	writer := csv.NewWriter(w)
	writer.Write([]string{"State", "assigned_hrs_per_week", "assigned_new_license", "demand_per_week",
		"deficit_per_week", "new_hires_count", "newhire_hours", "deficit_post_hiring"})
	for _, s := range rows {
		writer.Write([]string{s.State, strconv.Itoa(s.AssignedHours), strconv.Itoa(s.NewLicenses), num(s.Demand),
			num(s.Deficit), strconv.Itoa(s.NewHires), strconv.Itoa(s.NewHireHours), num(s.DeficitPostHiring)})
	}
	writer.Flush()
	return writer.Error()
}

// WriteSlotStats writes the therapist_stat_post_hiring table, one row per new hire.
func WriteSlotStats(w io.Writer, rows []models.SlotSummary) error {
	writer := csv.NewWriter(w)
	writer.Write([]string{"new_hire_id", "states_eligible", "newhire_hours"})
	for _, s := range rows {
		writer.Write([]string{strconv.Itoa(s.Slot), strconv.Itoa(s.StatesEligible), strconv.Itoa(s.Hours)})
	}
	writer.Flush()
	return writer.Error()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
