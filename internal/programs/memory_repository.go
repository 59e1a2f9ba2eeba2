package programs

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository stores programs and history in in-process maps, ideal
// for local development or tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	programs map[uuid.UUID]Program
	history  map[uuid.UUID]HistoryEntry
}

// NewInMemoryRepository constructs an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		programs: make(map[uuid.UUID]Program),
		history:  make(map[uuid.UUID]HistoryEntry),
	}
}

// CreateProgram stores a new program.
func (r *InMemoryRepository) CreateProgram(_ context.Context, program Program) (Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.programs[program.ID] = program
	return program, nil
}

// GetProgram returns a program by ID for the given owner.
func (r *InMemoryRepository) GetProgram(_ context.Context, id, ownerID uuid.UUID) (Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	program, ok := r.programs[id]
	if !ok || program.UserID != ownerID {
		return Program{}, ErrNotFound
	}
	return program, nil
}

// ListPrograms returns the owner's programs, newest first.
func (r *InMemoryRepository) ListPrograms(_ context.Context, ownerID uuid.UUID, opts ListOptions) ([]Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	programs := make([]Program, 0, len(r.programs))
	for _, program := range r.programs {
		if program.UserID != ownerID {
			continue
		}
		if opts.Goal != nil && !strings.Contains(strings.ToLower(program.Goal), strings.ToLower(*opts.Goal)) {
			continue
		}
		programs = append(programs, program)
	}

	slices.SortFunc(programs, func(a, b Program) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID.String(), b.ID.String())
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	return page(programs, opts.Skip, opts.Limit), nil
}

// DeleteProgram removes a program by ID for the given owner. History entries
// referencing it keep their data but lose the link, matching the database's
// ON DELETE SET NULL.
func (r *InMemoryRepository) DeleteProgram(_ context.Context, id, ownerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	program, ok := r.programs[id]
	if !ok || program.UserID != ownerID {
		return ErrNotFound
	}
	delete(r.programs, id)

	for entryID, entry := range r.history {
		if entry.ProgramID != nil && *entry.ProgramID == id {
			entry.ProgramID = nil
			r.history[entryID] = entry
		}
	}
	return nil
}

// LogWorkout stores a new history entry.
func (r *InMemoryRepository) LogWorkout(_ context.Context, entry HistoryEntry) (HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history[entry.ID] = entry
	return entry, nil
}

// ListHistory returns the owner's history entries, most recent first.
func (r *InMemoryRepository) ListHistory(_ context.Context, ownerID uuid.UUID, opts HistoryOptions) ([]HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]HistoryEntry, 0, len(r.history))
	for _, entry := range r.history {
		if entry.UserID != ownerID {
			continue
		}
		if opts.ProgramID != nil && (entry.ProgramID == nil || *entry.ProgramID != *opts.ProgramID) {
			continue
		}
		if opts.Sport != nil && entry.Sport != *opts.Sport {
			continue
		}
		entries = append(entries, entry)
	}

	slices.SortFunc(entries, func(a, b HistoryEntry) int {
		if a.CompletedAt.Equal(b.CompletedAt) {
			return strings.Compare(a.ID.String(), b.ID.String())
		}
		if a.CompletedAt.After(b.CompletedAt) {
			return -1
		}
		return 1
	})

	return page(entries, opts.Skip, opts.Limit), nil
}

// HistoryStats aggregates the owner's history, optionally narrowed to one
// sport. Average rating only counts rated entries.
func (r *InMemoryRepository) HistoryStats(_ context.Context, ownerID uuid.UUID, sport *Sport) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{BySport: make(map[Sport]SportStats)}
	rated, ratingSum := 0, 0
	for _, entry := range r.history {
		if entry.UserID != ownerID {
			continue
		}
		if sport != nil && entry.Sport != *sport {
			continue
		}

		stats.TotalWorkouts++
		stats.TotalDurationMinutes += entry.DurationMinutes
		if entry.DistanceKm != nil {
			stats.TotalDistanceKm += *entry.DistanceKm
		}
		if entry.Rating != nil {
			rated++
			ratingSum += *entry.Rating
		}

		bySport := stats.BySport[entry.Sport]
		bySport.Workouts++
		bySport.DurationMinutes += entry.DurationMinutes
		if entry.DistanceKm != nil {
			bySport.DistanceKm += *entry.DistanceKm
		}
		stats.BySport[entry.Sport] = bySport
	}

	if rated > 0 {
		stats.AverageRating = float64(ratingSum) / float64(rated)
	}
	return stats, nil
}

func page[T any](list []T, skip, limit int) []T {
	if skip >= len(list) {
		return []T{}
	}
	list = list[skip:]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}
