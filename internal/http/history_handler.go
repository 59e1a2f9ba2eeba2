package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"endurely/internal/exporter"
	"endurely/internal/importer"
	"endurely/internal/programs"
)

const maxCSVUploadBytes int64 = 5 << 20

// HistoryHandler exposes the workout-history endpoints, including the CSV
// export/import pair.
type HistoryHandler struct {
	service  *programs.Service
	exporter *exporter.CSVExporter
	importer *importer.CSVImporter
	logger   *slog.Logger
}

// NewHistoryHandler creates a handler.
func NewHistoryHandler(service *programs.Service, csvExporter *exporter.CSVExporter, csvImporter *importer.CSVImporter, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{service: service, exporter: csvExporter, importer: csvImporter, logger: logger}
}

// Log records one completed workout for the caller.
func (h *HistoryHandler) Log(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload struct {
		ProgramID       *uuid.UUID `json:"program_id"`
		Sport           string     `json:"sport"`
		Title           string     `json:"title"`
		DurationMinutes int        `json:"duration_minutes"`
		DistanceKm      *float64   `json:"distance_km"`
		Notes           string     `json:"notes"`
		Rating          *int       `json:"rating"`
		CompletedAt     *time.Time `json:"completed_at"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}

	entry, err := h.service.Log(r.Context(), user.ID, programs.LogWorkoutInput{
		ProgramID:       payload.ProgramID,
		Sport:           programs.Sport(payload.Sport),
		Title:           payload.Title,
		DurationMinutes: payload.DurationMinutes,
		DistanceKm:      payload.DistanceKm,
		Notes:           payload.Notes,
		Rating:          payload.Rating,
		CompletedAt:     payload.CompletedAt,
	})
	if err != nil {
		writeServiceError(w, err, h.logger, "workout program not found")
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// List returns the caller's history, most recent first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	skip, limit, ok := parsePageParams(w, r.URL.Query())
	if !ok {
		return
	}

	opts := programs.HistoryOptions{Skip: skip, Limit: limit}
	if raw := strings.TrimSpace(r.URL.Query().Get("program_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid program_id parameter")
			return
		}
		opts.ProgramID = &id
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("sport")); raw != "" {
		sport := programs.Sport(raw)
		opts.Sport = &sport
	}

	entries, err := h.service.History(r.Context(), user.ID, opts)
	if err != nil {
		writeServiceError(w, err, h.logger, "history entry not found")
		return
	}

	if entries == nil {
		entries = []programs.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// Stats aggregates the caller's history, optionally for a single sport.
func (h *HistoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var sport *programs.Sport
	if raw := strings.TrimSpace(r.URL.Query().Get("sport")); raw != "" {
		value := programs.Sport(raw)
		sport = &value
	}

	stats, err := h.service.Stats(r.Context(), user.ID, sport)
	if err != nil {
		writeServiceError(w, err, h.logger, "history entry not found")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Export streams the caller's entire history as a CSV download.
func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	entries, err := h.service.ExportHistory(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("export history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to export history")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="workout_history.csv"`)
	w.WriteHeader(http.StatusOK)

	if err := h.exporter.Export(w, entries); err != nil {
		// Headers are already on the wire; nothing left to send but a log.
		h.logger.Error("write history csv", "error", err)
	}
}

// Import ingests a multipart CSV upload of history rows for the caller.
func (h *HistoryHandler) Import(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCSVUploadBytes)
	if err := r.ParseMultipartForm(maxCSVUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("CSV upload is too large (max %d bytes)", maxErr.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid CSV upload")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "CSV file is required")
		return
	}
	defer func() { _ = file.Close() }()

	summary, err := h.importer.Import(r.Context(), file, user.ID)
	if err != nil {
		if errors.Is(err, importer.ErrInvalidCSV) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.logger.Error("csv import failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "bulk import failed")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
