package programs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a program or history entry cannot be located
// for the requesting owner. Resources owned by someone else are reported the
// same way, so callers cannot probe for their existence.
var ErrNotFound = errors.New("resource not found")

// ErrValidation is returned when input validation fails.
var ErrValidation = errors.New("validation error")

// ValidationError wraps a validation message so callers can distinguish
// client errors from internal failures.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// SportType enumerates the endurance disciplines a program can target.
type SportType string

const (
	SportTypeTriathlon SportType = "triathlon"
	SportTypeRunning   SportType = "running"
	SportTypeCycling   SportType = "cycling"
	SportTypeDuathlon  SportType = "duathlon"
	SportTypeAquathlon SportType = "aquathlon"
)

func (t SportType) valid() bool {
	switch t {
	case SportTypeTriathlon, SportTypeRunning, SportTypeCycling, SportTypeDuathlon, SportTypeAquathlon:
		return true
	default:
		return false
	}
}

// FitnessLevel describes the athlete's starting point.
type FitnessLevel string

const (
	FitnessBeginner     FitnessLevel = "beginner"
	FitnessIntermediate FitnessLevel = "intermediate"
	FitnessAdvanced     FitnessLevel = "advanced"
)

func (l FitnessLevel) valid() bool {
	switch l {
	case FitnessBeginner, FitnessIntermediate, FitnessAdvanced:
		return true
	default:
		return false
	}
}

// Sport identifies a single workout discipline.
type Sport string

const (
	SportSwim Sport = "swim"
	SportBike Sport = "bike"
	SportRun  Sport = "run"
)

func (s Sport) valid() bool {
	switch s {
	case SportSwim, SportBike, SportRun:
		return true
	default:
		return false
	}
}

// Program is a generated training program owned by a single user.
type Program struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	UserID        uuid.UUID       `db:"user_id" json:"-"`
	SportType     SportType       `db:"sport_type" json:"sport_type"`
	Goal          string          `db:"goal" json:"goal"`
	FitnessLevel  FitnessLevel    `db:"fitness_level" json:"fitness_level"`
	DurationWeeks int             `db:"duration_weeks" json:"duration_weeks"`
	HoursPerWeek  int             `db:"available_hours_per_week" json:"available_hours_per_week"`
	Plan          json.RawMessage `db:"plan" json:"plan"`
	Notes         string          `db:"notes" json:"notes"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// ProgramSummary is the list representation of a program, without the plan
// document.
type ProgramSummary struct {
	ID            uuid.UUID    `json:"id"`
	SportType     SportType    `json:"sport_type"`
	Goal          string       `json:"goal"`
	FitnessLevel  FitnessLevel `json:"fitness_level"`
	DurationWeeks int          `json:"duration_weeks"`
	HoursPerWeek  int          `json:"available_hours_per_week"`
	Notes         string       `json:"notes"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Summary strips the plan document for list responses.
func (p Program) Summary() ProgramSummary {
	return ProgramSummary{
		ID:            p.ID,
		SportType:     p.SportType,
		Goal:          p.Goal,
		FitnessLevel:  p.FitnessLevel,
		DurationWeeks: p.DurationWeeks,
		HoursPerWeek:  p.HoursPerWeek,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
	}
}

// GenerateProgramInput captures a program generation request.
type GenerateProgramInput struct {
	SportType     SportType
	Goal          string
	FitnessLevel  FitnessLevel
	DurationWeeks int
	HoursPerWeek  int
}

// ListOptions describes filters for listing programs.
type ListOptions struct {
	Goal  *string
	Skip  int
	Limit int
}

// HistoryEntry is a completed workout logged by a user, optionally linked to
// one of their programs.
type HistoryEntry struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	UserID          uuid.UUID  `db:"user_id" json:"-"`
	ProgramID       *uuid.UUID `db:"program_id" json:"program_id,omitempty"`
	Sport           Sport      `db:"sport" json:"sport"`
	Title           string     `db:"title" json:"title"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	DistanceKm      *float64   `db:"distance_km" json:"distance_km,omitempty"`
	Notes           string     `db:"notes" json:"notes,omitempty"`
	Rating          *int       `db:"rating" json:"rating,omitempty"`
	CompletedAt     time.Time  `db:"completed_at" json:"completed_at"`
}

// LogWorkoutInput captures the data needed to log a completed workout.
// CompletedAt defaults to the current time when nil.
type LogWorkoutInput struct {
	ProgramID       *uuid.UUID
	Sport           Sport
	Title           string
	DurationMinutes int
	DistanceKm      *float64
	Notes           string
	Rating          *int
	CompletedAt     *time.Time
}

// HistoryOptions describes filters for listing history entries.
type HistoryOptions struct {
	ProgramID *uuid.UUID
	Sport     *Sport
	Skip      int
	Limit     int
}

// SportStats aggregates one discipline within a user's history.
type SportStats struct {
	Workouts        int     `json:"workouts"`
	DurationMinutes int     `json:"duration_minutes"`
	DistanceKm      float64 `json:"distance_km"`
}

// Stats aggregates a user's workout history.
type Stats struct {
	TotalWorkouts        int                  `json:"total_workouts"`
	TotalDurationMinutes int                  `json:"total_duration_minutes"`
	TotalDistanceKm      float64              `json:"total_distance_km"`
	AverageRating        float64              `json:"average_rating"`
	BySport              map[Sport]SportStats `json:"by_sport"`
}

// Repository defines persistence operations for programs and workout history.
// Every operation takes the owning user's id; lookups that miss or hit a row
// owned by someone else report ErrNotFound, and list operations only ever see
// the owner's rows. Limit <= 0 on list options means no limit.
type Repository interface {
	CreateProgram(ctx context.Context, program Program) (Program, error)
	GetProgram(ctx context.Context, id, ownerID uuid.UUID) (Program, error)
	ListPrograms(ctx context.Context, ownerID uuid.UUID, opts ListOptions) ([]Program, error)
	DeleteProgram(ctx context.Context, id, ownerID uuid.UUID) error

	LogWorkout(ctx context.Context, entry HistoryEntry) (HistoryEntry, error)
	ListHistory(ctx context.Context, ownerID uuid.UUID, opts HistoryOptions) ([]HistoryEntry, error)
	HistoryStats(ctx context.Context, ownerID uuid.UUID, sport *Sport) (Stats, error)
}
