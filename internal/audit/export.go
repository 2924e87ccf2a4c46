package audit

import (
	"encoding/csv"
	"io"
	"time"
)

// WriteCSV serialises export rows to CSV. The details column is always
// present so downstream spreadsheets keep a stable shape; it is simply empty
// when details were excluded from the projection.
func WriteCSV(w io.Writer, rows []ExportRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Timestamp", "Actor", "Role", "Module", "Action", "Target", "Details", "IP Address", "Browser"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Timestamp.UTC().Format(time.RFC3339),
			row.ActorName,
			row.ActorRole,
			row.Module,
			row.Action,
			row.Target,
			row.Details,
			row.IPAddress,
			row.BrowserGuess,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
