package programs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	minDurationWeeks     = 4
	maxDurationWeeks     = 52
	defaultDurationWeeks = 12
	minHoursPerWeek      = 3
	maxHoursPerWeek      = 30

	defaultPageSize = 20
	maxPageSize     = 100
)

// Service orchestrates validation, plan generation, and persistence for
// training programs and workout history.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a Service with the provided repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Generate validates the request, builds the deterministic plan scaffold, and
// persists the program owned by ownerID.
func (s *Service) Generate(ctx context.Context, ownerID uuid.UUID, input GenerateProgramInput) (Program, error) {
	input.SportType = SportType(strings.ToLower(strings.TrimSpace(string(input.SportType))))
	input.FitnessLevel = FitnessLevel(strings.ToLower(strings.TrimSpace(string(input.FitnessLevel))))
	input.Goal = strings.TrimSpace(input.Goal)
	if input.SportType == "" {
		input.SportType = SportTypeTriathlon
	}
	if input.DurationWeeks == 0 {
		input.DurationWeeks = defaultDurationWeeks
	}

	if !input.SportType.valid() {
		return Program{}, validationErr("sport_type must be one of triathlon, running, cycling, duathlon, or aquathlon")
	}
	if input.Goal == "" {
		return Program{}, validationErr("goal is required")
	}
	if !input.FitnessLevel.valid() {
		return Program{}, validationErr("fitness_level must be one of beginner, intermediate, or advanced")
	}
	if input.DurationWeeks < minDurationWeeks || input.DurationWeeks > maxDurationWeeks {
		return Program{}, validationErr(fmt.Sprintf("duration_weeks must be between %d and %d", minDurationWeeks, maxDurationWeeks))
	}
	if input.HoursPerWeek < minHoursPerWeek || input.HoursPerWeek > maxHoursPerWeek {
		return Program{}, validationErr(fmt.Sprintf("available_hours_per_week must be between %d and %d", minHoursPerWeek, maxHoursPerWeek))
	}

	plan := buildPlan(input)
	doc, err := json.Marshal(plan)
	if err != nil {
		return Program{}, fmt.Errorf("encode plan: %w", err)
	}

	now := s.now().UTC()
	program := Program{
		ID:            uuid.New(),
		UserID:        ownerID,
		SportType:     input.SportType,
		Goal:          input.Goal,
		FitnessLevel:  input.FitnessLevel,
		DurationWeeks: input.DurationWeeks,
		HoursPerWeek:  input.HoursPerWeek,
		Plan:          doc,
		Notes:         plan.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	return s.repo.CreateProgram(ctx, program)
}

// List returns the owner's programs, newest first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, opts ListOptions) ([]Program, error) {
	opts.Skip, opts.Limit = clampPage(opts.Skip, opts.Limit)
	if opts.Goal != nil {
		goal := strings.TrimSpace(*opts.Goal)
		if goal == "" {
			opts.Goal = nil
		} else {
			opts.Goal = &goal
		}
	}
	return s.repo.ListPrograms(ctx, ownerID, opts)
}

// Get retrieves one of the owner's programs by ID.
func (s *Service) Get(ctx context.Context, id, ownerID uuid.UUID) (Program, error) {
	return s.repo.GetProgram(ctx, id, ownerID)
}

// Delete removes one of the owner's programs by ID.
func (s *Service) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	return s.repo.DeleteProgram(ctx, id, ownerID)
}

// Log validates and records a completed workout for ownerID.
func (s *Service) Log(ctx context.Context, ownerID uuid.UUID, input LogWorkoutInput) (HistoryEntry, error) {
	input.Sport = Sport(strings.ToLower(strings.TrimSpace(string(input.Sport))))
	input.Title = strings.TrimSpace(input.Title)

	if !input.Sport.valid() {
		return HistoryEntry{}, validationErr("sport must be one of swim, bike, or run")
	}
	if input.Title == "" {
		return HistoryEntry{}, validationErr("title is required")
	}
	if input.DurationMinutes <= 0 {
		return HistoryEntry{}, validationErr("duration_minutes must be greater than zero")
	}
	if input.DistanceKm != nil && *input.DistanceKm < 0 {
		return HistoryEntry{}, validationErr("distance_km must be zero or greater")
	}
	if input.Rating != nil && (*input.Rating < 1 || *input.Rating > 5) {
		return HistoryEntry{}, validationErr("rating must be between 1 and 5")
	}

	// An entry may only reference a program the same user owns. The
	// owner-scoped lookup makes a foreign program indistinguishable from a
	// missing one.
	if input.ProgramID != nil {
		if _, err := s.repo.GetProgram(ctx, *input.ProgramID, ownerID); err != nil {
			return HistoryEntry{}, err
		}
	}

	completedAt := s.now().UTC()
	if input.CompletedAt != nil && !input.CompletedAt.IsZero() {
		completedAt = input.CompletedAt.UTC()
	}

	entry := HistoryEntry{
		ID:              uuid.New(),
		UserID:          ownerID,
		ProgramID:       input.ProgramID,
		Sport:           input.Sport,
		Title:           input.Title,
		DurationMinutes: input.DurationMinutes,
		DistanceKm:      input.DistanceKm,
		Notes:           strings.TrimSpace(input.Notes),
		Rating:          input.Rating,
		CompletedAt:     completedAt,
	}

	return s.repo.LogWorkout(ctx, entry)
}

// History returns the owner's logged workouts, most recent first.
func (s *Service) History(ctx context.Context, ownerID uuid.UUID, opts HistoryOptions) ([]HistoryEntry, error) {
	opts.Skip, opts.Limit = clampPage(opts.Skip, opts.Limit)
	if opts.Sport != nil {
		sport := Sport(strings.ToLower(strings.TrimSpace(string(*opts.Sport))))
		if !sport.valid() {
			return nil, validationErr("sport must be one of swim, bike, or run")
		}
		opts.Sport = &sport
	}
	return s.repo.ListHistory(ctx, ownerID, opts)
}

// ExportHistory returns the owner's entire history, most recent first,
// without pagination. Used for CSV export.
func (s *Service) ExportHistory(ctx context.Context, ownerID uuid.UUID) ([]HistoryEntry, error) {
	return s.repo.ListHistory(ctx, ownerID, HistoryOptions{})
}

// Stats aggregates the owner's history, optionally narrowed to one sport.
func (s *Service) Stats(ctx context.Context, ownerID uuid.UUID, sport *Sport) (Stats, error) {
	if sport != nil {
		normalized := Sport(strings.ToLower(strings.TrimSpace(string(*sport))))
		if !normalized.valid() {
			return Stats{}, validationErr("sport must be one of swim, bike, or run")
		}
		sport = &normalized
	}

	stats, err := s.repo.HistoryStats(ctx, ownerID, sport)
	if err != nil {
		return Stats{}, err
	}

	stats.TotalDistanceKm = round2(stats.TotalDistanceKm)
	stats.AverageRating = round2(stats.AverageRating)
	for sport, bySport := range stats.BySport {
		bySport.DistanceKm = round2(bySport.DistanceKm)
		stats.BySport[sport] = bySport
	}
	return stats, nil
}

func validationErr(msg string) error {
	return &ValidationError{Message: msg}
}

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return skip, limit
}
