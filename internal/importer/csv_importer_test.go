package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"endurely/internal/programs"
)

type stubHistory struct {
	entries []programs.LogWorkoutInput
	logErr  error
}

func (s *stubHistory) Log(ctx context.Context, ownerID uuid.UUID, input programs.LogWorkoutInput) (programs.HistoryEntry, error) {
	if s.logErr != nil {
		return programs.HistoryEntry{}, s.logErr
	}
	s.entries = append(s.entries, input)
	return programs.HistoryEntry{ID: uuid.New(), UserID: ownerID}, nil
}

func TestCSVImporter_ImportsRows(t *testing.T) {
	stub := &stubHistory{}
	importer := NewCSVImporter(stub)
	csv := "sport,title,duration_minutes,distance_km,rating,notes,completed_at\n" +
		"run,Morning Run,75,12.5,4,Felt strong,2026-05-10T07:30:00Z\n" +
		"bike,Recovery Spin,45,,,,\n"

	summary, err := importer.Import(context.Background(), strings.NewReader(csv), uuid.New())
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if summary.TotalRows != 2 {
		t.Fatalf("expected 2 total rows, got %d", summary.TotalRows)
	}
	if summary.Imported != 2 {
		t.Fatalf("expected 2 imports, got %d", summary.Imported)
	}
	if len(summary.Failed) != 0 {
		t.Fatalf("expected no failed records, got %v", summary.Failed)
	}
	if len(stub.entries) != 2 {
		t.Fatalf("expected 2 logged entries, got %d", len(stub.entries))
	}

	first := stub.entries[0]
	if first.Sport != "run" || first.Title != "Morning Run" || first.DurationMinutes != 75 {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if first.DistanceKm == nil || *first.DistanceKm != 12.5 {
		t.Fatalf("expected distance 12.5, got %v", first.DistanceKm)
	}
	if first.Rating == nil || *first.Rating != 4 {
		t.Fatalf("expected rating 4, got %v", first.Rating)
	}
	want := time.Date(2026, 5, 10, 7, 30, 0, 0, time.UTC)
	if first.CompletedAt == nil || !first.CompletedAt.Equal(want) {
		t.Fatalf("expected completed_at %v, got %v", want, first.CompletedAt)
	}

	second := stub.entries[1]
	if second.DistanceKm != nil || second.Rating != nil || second.CompletedAt != nil {
		t.Fatalf("expected optional fields to stay unset, got %+v", second)
	}
}

func TestCSVImporter_ReportsFailedRows(t *testing.T) {
	svc := programs.NewService(programs.NewInMemoryRepository())
	importer := NewCSVImporter(svc)
	csv := "sport,title,duration_minutes\n" +
		"run,Good Run,60\n" +
		"run,Bad Duration,abc\n" +
		"rowing,Wrong Sport,30\n"

	summary, err := importer.Import(context.Background(), strings.NewReader(csv), uuid.New())
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if summary.TotalRows != 3 {
		t.Fatalf("expected 3 total rows, got %d", summary.TotalRows)
	}
	if summary.Imported != 1 {
		t.Fatalf("expected 1 import, got %d", summary.Imported)
	}
	if len(summary.Failed) != 2 {
		t.Fatalf("expected 2 failed records, got %v", summary.Failed)
	}

	badDuration := summary.Failed[0]
	if badDuration.Row != 3 || badDuration.Title != "Bad Duration" {
		t.Fatalf("unexpected failure record: %+v", badDuration)
	}
	if !strings.Contains(badDuration.Error, "duration_minutes must be a number") {
		t.Fatalf("expected duration parse error, got %q", badDuration.Error)
	}

	wrongSport := summary.Failed[1]
	if wrongSport.Row != 4 {
		t.Fatalf("expected failure on row 4, got %d", wrongSport.Row)
	}
	if !strings.Contains(wrongSport.Error, "sport must be one of swim, bike, or run") {
		t.Fatalf("expected sport validation error, got %q", wrongSport.Error)
	}
}

func TestCSVImporter_MissingColumns(t *testing.T) {
	importer := NewCSVImporter(&stubHistory{})
	csv := "sport,title\nrun,Morning Run\n"

	_, err := importer.Import(context.Background(), strings.NewReader(csv), uuid.New())
	if !errors.Is(err, ErrInvalidCSV) {
		t.Fatalf("expected ErrInvalidCSV, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing required columns: duration_minutes") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCSVImporter_EmptyFile(t *testing.T) {
	importer := NewCSVImporter(&stubHistory{})

	_, err := importer.Import(context.Background(), strings.NewReader(""), uuid.New())
	if !errors.Is(err, ErrInvalidCSV) {
		t.Fatalf("expected ErrInvalidCSV, got %v", err)
	}
	if !strings.Contains(err.Error(), "file is empty") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCSVImporter_RejectsOversizedUploadBeforeWriting(t *testing.T) {
	stub := &stubHistory{}
	importer := NewCSVImporter(stub)

	var builder strings.Builder
	builder.WriteString("sport,title,duration_minutes\n")
	for idx := 0; idx < MaxImportRows+1; idx++ {
		fmt.Fprintf(&builder, "run,Run %d,60\n", idx)
	}

	_, err := importer.Import(context.Background(), strings.NewReader(builder.String()), uuid.New())
	if !errors.Is(err, ErrInvalidCSV) {
		t.Fatalf("expected ErrInvalidCSV, got %v", err)
	}
	if !strings.Contains(err.Error(), "exceeds maximum") {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stub.entries) != 0 {
		t.Fatalf("expected no entries logged before rejection, got %d", len(stub.entries))
	}
}

func TestCSVImporter_SkipsBlankRows(t *testing.T) {
	stub := &stubHistory{}
	importer := NewCSVImporter(stub)
	csv := "\uFEFFsport,title,duration_minutes\nrun,Morning Run,60\n,,\nswim,Open Water,40\n"

	summary, err := importer.Import(context.Background(), strings.NewReader(csv), uuid.New())
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if summary.TotalRows != 2 {
		t.Fatalf("expected blank row to be skipped, got %d total rows", summary.TotalRows)
	}
	if summary.Imported != 2 {
		t.Fatalf("expected 2 imports, got %d", summary.Imported)
	}
}

func TestCSVImporter_TruncatesFailureList(t *testing.T) {
	stub := &stubHistory{logErr: errors.New("store unavailable")}
	importer := NewCSVImporter(stub)

	var builder strings.Builder
	builder.WriteString("sport,title,duration_minutes\n")
	for idx := 0; idx < MaxFailedRecords+25; idx++ {
		fmt.Fprintf(&builder, "run,Run %d,60\n", idx)
	}

	summary, err := importer.Import(context.Background(), strings.NewReader(builder.String()), uuid.New())
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if summary.Imported != 0 {
		t.Fatalf("expected no imports, got %d", summary.Imported)
	}
	if len(summary.Failed) != MaxFailedRecords {
		t.Fatalf("expected failure list capped at %d, got %d", MaxFailedRecords, len(summary.Failed))
	}
	if !summary.TruncatedRecords {
		t.Fatal("expected truncated records flag to be set")
	}
}

func TestCSVImporter_IgnoresUnknownColumns(t *testing.T) {
	stub := &stubHistory{}
	importer := NewCSVImporter(stub)
	csv := "schema_version,sport,title,duration_minutes,unknown_column\n" +
		"1,run,Morning Run,60,whatever\n"

	summary, err := importer.Import(context.Background(), strings.NewReader(csv), uuid.New())
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if summary.Imported != 1 {
		t.Fatalf("expected 1 import, got %d", summary.Imported)
	}
	if len(stub.entries) != 1 || stub.entries[0].Title != "Morning Run" {
		t.Fatalf("unexpected entries: %+v", stub.entries)
	}
}
