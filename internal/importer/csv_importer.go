package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"endurely/internal/programs"
)

// HistoryLog is the slice of the programs service the importer needs. Each
// row goes through the same validation as the log endpoint.
type HistoryLog interface {
	Log(ctx context.Context, ownerID uuid.UUID, input programs.LogWorkoutInput) (programs.HistoryEntry, error)
}

// Summary reports the outcome of a CSV import.
type Summary struct {
	TotalRows        int            `json:"total_rows"`
	Imported         int            `json:"imported"`
	Failed           []FailedRecord `json:"failed"`
	TruncatedRecords bool           `json:"truncated_records,omitempty"`
}

// FailedRecord describes one row that could not be imported.
type FailedRecord struct {
	Row   int    `json:"row"`
	Title string `json:"title,omitempty"`
	Error string `json:"error"`
}

var ErrInvalidCSV = errors.New("invalid csv upload")

// MaxImportRows limits the number of data rows processed per CSV import to
// prevent excessive memory usage and long-running requests.
const MaxImportRows = 1000

// MaxFailedRecords caps the number of failed records stored in the summary
// to avoid unbounded memory growth from malformed uploads.
const MaxFailedRecords = 100

var requiredColumns = []string{
	"sport",
	"title",
	"duration_minutes",
}

// CSVImporter imports workout history rows from CSV uploads.
type CSVImporter struct {
	history HistoryLog
}

func NewCSVImporter(history HistoryLog) *CSVImporter {
	return &CSVImporter{history: history}
}

// Import parses the upload and logs every valid row for ownerID. Rows that
// fail to parse or validate are reported in the summary; they do not abort
// the rest of the file.
func (i *CSVImporter) Import(ctx context.Context, reader io.Reader, ownerID uuid.UUID) (Summary, error) {
	if i.history == nil {
		return Summary{}, fmt.Errorf("%w: history store is not configured", ErrInvalidCSV)
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Summary{}, fmt.Errorf("%w: file is empty", ErrInvalidCSV)
		}
		return Summary{}, fmt.Errorf("%w: failed to read header", ErrInvalidCSV)
	}

	columns, err := normalizeHeader(header)
	if err != nil {
		return Summary{}, err
	}

	type parsedRow struct {
		number int
		values map[string]string
	}

	var rows []parsedRow
	rowNumber := 1
	totalRows := 0

	for {
		record, err := csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Summary{}, fmt.Errorf("%w: failed to read row %d", ErrInvalidCSV, rowNumber+1)
		}
		rowNumber++
		values := mapRecord(columns, record)
		if isRowEmpty(values) {
			continue
		}

		totalRows++
		if totalRows > MaxImportRows {
			return Summary{}, fmt.Errorf("%w: CSV exceeds maximum of %d rows", ErrInvalidCSV, MaxImportRows)
		}

		rows = append(rows, parsedRow{
			number: rowNumber,
			values: values,
		})
	}

	summary := Summary{TotalRows: totalRows}

	recordFailure := func(row int, title string, cause error) {
		if len(summary.Failed) < MaxFailedRecords {
			summary.Failed = append(summary.Failed, FailedRecord{
				Row:   row,
				Title: title,
				Error: cause.Error(),
			})
		} else {
			summary.TruncatedRecords = true
		}
	}

	for _, row := range rows {
		input, rowErr := buildInput(row.values)
		if rowErr != nil {
			recordFailure(row.number, row.values["title"], rowErr)
			continue
		}

		if _, err := i.history.Log(ctx, ownerID, input); err != nil {
			recordFailure(row.number, input.Title, err)
			continue
		}
		summary.Imported++
	}

	return summary, nil
}

// buildInput parses the typed fields; semantic checks (sport values, rating
// range, positive duration) are left to the service so rows fail with the
// same messages as the log endpoint.
func buildInput(values map[string]string) (programs.LogWorkoutInput, error) {
	duration, err := parseRequiredInt(values["duration_minutes"], "duration_minutes")
	if err != nil {
		return programs.LogWorkoutInput{}, err
	}

	distance, err := parseOptionalFloat(values["distance_km"], "distance_km")
	if err != nil {
		return programs.LogWorkoutInput{}, err
	}

	rating, err := parseOptionalInt(values["rating"], "rating")
	if err != nil {
		return programs.LogWorkoutInput{}, err
	}

	completedAt, err := parseOptionalTime(values["completed_at"], "completed_at")
	if err != nil {
		return programs.LogWorkoutInput{}, err
	}

	return programs.LogWorkoutInput{
		Sport:           programs.Sport(values["sport"]),
		Title:           values["title"],
		DurationMinutes: duration,
		DistanceKm:      distance,
		Notes:           values["notes"],
		Rating:          rating,
		CompletedAt:     completedAt,
	}, nil
}

func normalizeHeader(header []string) (map[int]string, error) {
	columns := make(map[int]string, len(header))
	seen := map[string]bool{}
	for idx, raw := range header {
		cleaned := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF")))
		if cleaned == "" {
			continue
		}
		columns[idx] = cleaned
		seen[cleaned] = true
	}

	missing := make([]string, 0)
	for _, column := range requiredColumns {
		if !seen[column] {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrInvalidCSV, strings.Join(missing, ", "))
	}
	return columns, nil
}

func mapRecord(columns map[int]string, record []string) map[string]string {
	values := make(map[string]string, len(columns))
	for idx, column := range columns {
		if idx >= len(record) {
			values[column] = ""
			continue
		}
		values[column] = strings.TrimSpace(record[idx])
	}
	return values
}

func isRowEmpty(values map[string]string) bool {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func parseRequiredInt(value string, field string) (int, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	parsed, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", field)
	}
	return parsed, nil
}

func parseOptionalInt(value string, field string) (*int, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", field)
	}
	return &parsed, nil
}

func parseOptionalFloat(value string, field string) (*float64, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", field)
	}
	return &parsed, nil
}

func parseOptionalTime(value string, field string) (*time.Time, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, cleaned)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, cleaned)
	}
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC3339 timestamp", field)
	}
	return &parsed, nil
}
