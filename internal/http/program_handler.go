package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"endurely/internal/auth"
	"endurely/internal/programs"
)

// ProgramHandler exposes the training-program endpoints.
type ProgramHandler struct {
	service *programs.Service
	logger  *slog.Logger
}

// NewProgramHandler creates a handler.
func NewProgramHandler(service *programs.Service, logger *slog.Logger) *ProgramHandler {
	return &ProgramHandler{service: service, logger: logger}
}

// Generate builds and stores a new training program for the caller.
func (h *ProgramHandler) Generate(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var payload struct {
		SportType    string `json:"sport_type"`
		Goal         string `json:"goal"`
		FitnessLevel string `json:"fitness_level"`
		WeeksToGoal  int    `json:"duration_weeks"`
		HoursPerWeek int    `json:"available_hours_per_week"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}

	program, err := h.service.Generate(r.Context(), user.ID, programs.GenerateProgramInput{
		SportType:     programs.SportType(payload.SportType),
		Goal:          payload.Goal,
		FitnessLevel:  programs.FitnessLevel(payload.FitnessLevel),
		DurationWeeks: payload.WeeksToGoal,
		HoursPerWeek:  payload.HoursPerWeek,
	})
	if err != nil {
		if errors.Is(err, programs.ErrValidation) {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		h.logger.Error("generate program", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate program")
		return
	}

	writeJSON(w, http.StatusCreated, program)
}

// List returns the caller's programs, newest first, without plan bodies.
func (h *ProgramHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	skip, limit, ok := parsePageParams(w, r.URL.Query())
	if !ok {
		return
	}

	opts := programs.ListOptions{Skip: skip, Limit: limit}
	if goal := strings.TrimSpace(r.URL.Query().Get("goal")); goal != "" {
		opts.Goal = &goal
	}

	list, err := h.service.List(r.Context(), user.ID, opts)
	if err != nil {
		h.logger.Error("list programs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list programs")
		return
	}

	summaries := make([]programs.ProgramSummary, 0, len(list))
	for _, program := range list {
		summaries = append(summaries, program.Summary())
	}
	writeJSON(w, http.StatusOK, map[string]any{"workouts": summaries})
}

// Get returns one of the caller's programs with its full plan.
func (h *ProgramHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	program, err := h.service.Get(r.Context(), id, user.ID)
	if err != nil {
		writeServiceError(w, err, h.logger, "workout program not found")
		return
	}

	writeJSON(w, http.StatusOK, program)
}

// Delete removes one of the caller's programs.
func (h *ProgramHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, user.ID); err != nil {
		writeServiceError(w, err, h.logger, "workout program not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func requireUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user := UserFromContext(r.Context())
	if user == nil {
		denyUnauthenticated(w, r, "authentication required")
		return nil, false
	}
	return user, true
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	value := chi.URLParam(r, key)
	id, err := uuid.Parse(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// parsePageParams reads skip and limit. Range clamping belongs to the
// service; only unparseable or negative values are rejected here.
func parsePageParams(w http.ResponseWriter, values url.Values) (skip, limit int, ok bool) {
	if raw := strings.TrimSpace(values.Get("skip")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid skip parameter")
			return 0, 0, false
		}
		skip = value
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit parameter")
			return 0, 0, false
		}
		limit = value
	}
	return skip, limit, true
}

func writeServiceError(w http.ResponseWriter, err error, logger *slog.Logger, notFound string) {
	if errors.Is(err, programs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", notFound)
		return
	}
	if errors.Is(err, programs.ErrValidation) {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	logger.Error("service error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
}
