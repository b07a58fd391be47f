package task

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"
)

// CSVHeader names the columns WriteCSV emits.
var CSVHeader = []string{"ID", "UUID", "Status", "Description", "Project", "Priority", "Due", "Tags"}

// WriteCSV writes one row per task under CSVHeader. Tasks outside the
// working set leave ID empty, due is a calendar date and tags are joined
// with ';'. The format is export-only.
func WriteCSV(w io.Writer, tasks []Task) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, t := range tasks {
		id, due := "", ""
		if t.ID > 0 {
			id = strconv.Itoa(t.ID)
		}
		if t.Due != nil {
			due = t.Due.Format(time.DateOnly)
		}
		row := []string{id, t.UUID, string(t.Status), t.Description, t.Project, t.Priority.Code(), due, strings.Join(t.Tags, ";")}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
