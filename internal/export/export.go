// Package export writes the status table to human-facing formats. Week
// columns are padded to the table's widest participant; weeks outside a
// participant's observed range stay blank rather than reading as inactive.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/harborlab/cohortwatch/internal/model"
)

// header builds the column header row for tabular formats.
func header(maxWeeks int) []string {
	cols := []string{
		"session", "email", "duration",
		"current_inactive_weeks", "inactive_streaks", "severe", "remind",
	}
	for w := 1; w <= maxWeeks; w++ {
		cols = append(cols, fmt.Sprintf("week_%d", w))
	}
	return cols
}

// record renders one status row, padding week cells with blanks.
func record(row model.ParticipantStatus, maxWeeks int) []string {
	rec := []string{
		row.Session,
		row.Email,
		strconv.Itoa(row.Duration),
		strconv.Itoa(row.CurrentInactiveWeeks),
		strconv.Itoa(row.InactiveStreaks),
		strconv.FormatBool(row.Severe),
		strconv.FormatBool(row.Remind),
	}
	for w := 0; w < maxWeeks; w++ {
		switch {
		case w >= len(row.Weeks):
			rec = append(rec, "") // no data for this week
		case row.Weeks[w]:
			rec = append(rec, "active")
		default:
			rec = append(rec, "inactive")
		}
	}
	return rec
}

// WriteCSV writes the status table as CSV.
func WriteCSV(w io.Writer, table *model.StatusTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header(table.MaxWeeks)); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, row := range table.Rows {
		if err := cw.Write(record(row, table.MaxWeeks)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", row.Session)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteYAML writes the status table as YAML.
func WriteYAML(w io.Writer, table *model.StatusTable) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close() //nolint:errcheck
	return eris.Wrap(enc.Encode(table), "export: encode yaml")
}
