package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"endurely/internal/programs"
)

// SchemaVersion identifies the CSV export format version.
// This version should be incremented when adding new columns or changing the format.
const SchemaVersion = "1"

// csvColumns defines the column order for export. These columns are a superset
// of the import format to ensure round-trip compatibility.
// Note: program linkage is intentionally excluded because program ids do not
// survive re-import into another account.
var csvColumns = []string{
	"schema_version",
	"completed_at",
	"sport",
	"title",
	"duration_minutes",
	"distance_km",
	"rating",
	"notes",
}

// CSVExporter exports workout history to CSV format.
type CSVExporter struct{}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Export writes history entries to the given writer in CSV format.
// The export format is designed to be compatible with the CSV import feature.
func (e *CSVExporter) Export(w io.Writer, entries []programs.HistoryEntry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range entries {
		if err := writer.Write(e.entryToRow(entry)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	return writer.Error()
}

// entryToRow converts a history entry to a CSV row following the column order.
func (e *CSVExporter) entryToRow(entry programs.HistoryEntry) []string {
	row := make([]string, len(csvColumns))

	row[0] = SchemaVersion
	row[1] = formatTime(entry.CompletedAt)
	row[2] = string(entry.Sport)
	row[3] = entry.Title
	row[4] = strconv.Itoa(entry.DurationMinutes)
	row[5] = formatOptionalFloat(entry.DistanceKm)
	row[6] = formatOptionalInt(entry.Rating)
	row[7] = entry.Notes

	return row
}

// formatOptionalInt formats an optional integer pointer to a string.
func formatOptionalInt(value *int) string {
	if value == nil {
		return ""
	}
	return strconv.Itoa(*value)
}

// formatOptionalFloat formats an optional float pointer to a string.
func formatOptionalFloat(value *float64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', 2, 64)
}

// formatTime formats a time to RFC3339 string.
func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format(time.RFC3339)
}
