package main

import (
	"context"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"endurely/internal/programs"
)

// seedDemoData loads a couple of training programs and a week of workout
// history for the development user. Everything goes through the service so
// the seed stays valid as the rules evolve.
func seedDemoData(ctx context.Context, svc *programs.Service, ownerID uuid.UUID, logger *slog.Logger) {
	tri, err := svc.Generate(ctx, ownerID, programs.GenerateProgramInput{
		SportType:     programs.SportTypeTriathlon,
		Goal:          "Finish an Olympic-distance triathlon",
		FitnessLevel:  programs.FitnessIntermediate,
		DurationWeeks: 12,
		HoursPerWeek:  8,
	})
	if err != nil {
		logger.Warn("seed: generate triathlon program", "error", err)
		return
	}

	if _, err := svc.Generate(ctx, ownerID, programs.GenerateProgramInput{
		SportType:     programs.SportTypeRunning,
		Goal:          "Break 1:45 in the half marathon",
		FitnessLevel:  programs.FitnessAdvanced,
		DurationWeeks: 10,
		HoursPerWeek:  6,
	}); err != nil {
		logger.Warn("seed: generate running program", "error", err)
	}

	intp := func(v int) *int { return &v }
	floatp := func(v float64) *float64 { return &v }
	daysAgo := func(days int, hour int) *time.Time {
		t := time.Now().UTC().AddDate(0, 0, -days)
		t = time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, time.UTC)
		return &t
	}

	workouts := []programs.LogWorkoutInput{
		{
			ProgramID:       &tri.ID,
			Sport:           programs.SportSwim,
			Title:           "Technique swim",
			DurationMinutes: 45,
			DistanceKm:      floatp(1.8),
			Rating:          intp(4),
			Notes:           "Focused on catch and rotation.",
			CompletedAt:     daysAgo(6, 6),
		},
		{
			ProgramID:       &tri.ID,
			Sport:           programs.SportBike,
			Title:           "Sweet spot intervals",
			DurationMinutes: 75,
			DistanceKm:      floatp(34.2),
			Rating:          intp(3),
			CompletedAt:     daysAgo(5, 17),
		},
		{
			ProgramID:       &tri.ID,
			Sport:           programs.SportRun,
			Title:           "Brick run off the bike",
			DurationMinutes: 30,
			DistanceKm:      floatp(6.1),
			Rating:          intp(4),
			Notes:           "Legs came around after ten minutes.",
			CompletedAt:     daysAgo(5, 18),
		},
		{
			Sport:           programs.SportRun,
			Title:           "Easy recovery jog",
			DurationMinutes: 35,
			DistanceKm:      floatp(5.5),
			CompletedAt:     daysAgo(3, 7),
		},
		{
			ProgramID:       &tri.ID,
			Sport:           programs.SportBike,
			Title:           "Long endurance ride",
			DurationMinutes: 150,
			DistanceKm:      floatp(62.0),
			Rating:          intp(5),
			Notes:           "Best ride of the block.",
			CompletedAt:     daysAgo(1, 9),
		},
	}

	logged := 0
	for _, workout := range workouts {
		if _, err := svc.Log(ctx, ownerID, workout); err != nil {
			logger.Warn("seed: log workout", "title", workout.Title, "error", err)
			continue
		}
		logged++
	}

	logger.Info("seeded demo data", "programs", 2, "workouts", logged)
}
