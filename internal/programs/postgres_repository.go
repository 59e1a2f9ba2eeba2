package programs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresRepository persists programs and history to a Postgres database.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository constructs a repository backed by sqlx.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const programColumns = `id, user_id, sport_type, goal, fitness_level, duration_weeks, available_hours_per_week, plan, notes, created_at, updated_at`

const historyColumns = `id, user_id, program_id, sport, title, duration_minutes, distance_km, notes, rating, completed_at`

// CreateProgram inserts a new row and returns the stored representation.
func (r *PostgresRepository) CreateProgram(ctx context.Context, program Program) (Program, error) {
	insert := `INSERT INTO training_programs (id, user_id, sport_type, goal, fitness_level, duration_weeks, available_hours_per_week, plan, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	// The plan document binds as text so the server casts it to jsonb.
	_, err := r.db.ExecContext(ctx, insert,
		program.ID, program.UserID, program.SportType, program.Goal, program.FitnessLevel,
		program.DurationWeeks, program.HoursPerWeek, string(program.Plan), program.Notes,
		program.CreatedAt, program.UpdatedAt)
	if err != nil {
		return Program{}, fmt.Errorf("insert program: %w", err)
	}

	return r.GetProgram(ctx, program.ID, program.UserID)
}

// GetProgram retrieves a row by primary key and owner.
func (r *PostgresRepository) GetProgram(ctx context.Context, id, ownerID uuid.UUID) (Program, error) {
	var program Program
	query := `SELECT ` + programColumns + ` FROM training_programs WHERE id = $1 AND user_id = $2`
	if err := r.db.GetContext(ctx, &program, query, id, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return Program{}, ErrNotFound
		}
		return Program{}, fmt.Errorf("get program: %w", err)
	}
	return program, nil
}

// ListPrograms returns the owner's programs, newest first, filtered by the
// provided options.
func (r *PostgresRepository) ListPrograms(ctx context.Context, ownerID uuid.UUID, opts ListOptions) ([]Program, error) {
	query := `SELECT ` + programColumns + ` FROM training_programs`
	clauses := []string{}
	args := []any{}

	clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)+1))
	args = append(args, ownerID)

	if opts.Goal != nil {
		clauses = append(clauses, fmt.Sprintf("goal ILIKE $%d", len(args)+1))
		args = append(args, "%"+*opts.Goal+"%")
	}

	query = query + " WHERE " + strings.Join(clauses, " AND ")
	query = query + " ORDER BY created_at DESC, id ASC"

	if opts.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, opts.Limit)
	}
	if opts.Skip > 0 {
		query = fmt.Sprintf("%s OFFSET %d", query, opts.Skip)
	}

	programs := []Program{}
	if err := r.db.SelectContext(ctx, &programs, query, args...); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

// DeleteProgram removes a program. History rows referencing it keep their
// data but lose the link via the schema's ON DELETE SET NULL.
func (r *PostgresRepository) DeleteProgram(ctx context.Context, id, ownerID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM training_programs WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete program: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete program rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// LogWorkout inserts a new history row.
func (r *PostgresRepository) LogWorkout(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	insert := `INSERT INTO workout_history (id, user_id, program_id, sport, title, duration_minutes, distance_km, notes, rating, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, insert,
		entry.ID, entry.UserID, entry.ProgramID, entry.Sport, entry.Title,
		entry.DurationMinutes, entry.DistanceKm, entry.Notes, entry.Rating, entry.CompletedAt)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("insert history entry: %w", err)
	}
	return entry, nil
}

// ListHistory returns the owner's history entries, most recent first,
// filtered by the provided options.
func (r *PostgresRepository) ListHistory(ctx context.Context, ownerID uuid.UUID, opts HistoryOptions) ([]HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM workout_history`
	clauses := []string{}
	args := []any{}

	clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)+1))
	args = append(args, ownerID)

	if opts.ProgramID != nil {
		clauses = append(clauses, fmt.Sprintf("program_id = $%d", len(args)+1))
		args = append(args, *opts.ProgramID)
	}

	if opts.Sport != nil {
		clauses = append(clauses, fmt.Sprintf("sport = $%d", len(args)+1))
		args = append(args, *opts.Sport)
	}

	query = query + " WHERE " + strings.Join(clauses, " AND ")
	query = query + " ORDER BY completed_at DESC, id ASC"

	if opts.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, opts.Limit)
	}
	if opts.Skip > 0 {
		query = fmt.Sprintf("%s OFFSET %d", query, opts.Skip)
	}

	entries := []HistoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// HistoryStats aggregates the owner's history in SQL. AVG ignores NULL
// ratings, so unrated entries do not drag the average down.
func (r *PostgresRepository) HistoryStats(ctx context.Context, ownerID uuid.UUID, sport *Sport) (Stats, error) {
	totalsQuery := `SELECT COUNT(*) AS workouts,
    COALESCE(SUM(duration_minutes), 0) AS duration_minutes,
    COALESCE(SUM(distance_km), 0) AS distance_km,
    COALESCE(AVG(rating), 0) AS average_rating
FROM workout_history WHERE user_id = $1`

	bySportQuery := `SELECT sport,
    COUNT(*) AS workouts,
    COALESCE(SUM(duration_minutes), 0) AS duration_minutes,
    COALESCE(SUM(distance_km), 0) AS distance_km
FROM workout_history WHERE user_id = $1`

	args := []any{ownerID}
	if sport != nil {
		totalsQuery += " AND sport = $2"
		bySportQuery += " AND sport = $2"
		args = append(args, *sport)
	}
	bySportQuery += " GROUP BY sport"

	var totals struct {
		Workouts        int     `db:"workouts"`
		DurationMinutes int     `db:"duration_minutes"`
		DistanceKm      float64 `db:"distance_km"`
		AverageRating   float64 `db:"average_rating"`
	}
	if err := r.db.GetContext(ctx, &totals, totalsQuery, args...); err != nil {
		return Stats{}, fmt.Errorf("history totals: %w", err)
	}

	type sportRow struct {
		Sport           Sport   `db:"sport"`
		Workouts        int     `db:"workouts"`
		DurationMinutes int     `db:"duration_minutes"`
		DistanceKm      float64 `db:"distance_km"`
	}
	rows := []sportRow{}
	if err := r.db.SelectContext(ctx, &rows, bySportQuery, args...); err != nil {
		return Stats{}, fmt.Errorf("history by sport: %w", err)
	}

	stats := Stats{
		TotalWorkouts:        totals.Workouts,
		TotalDurationMinutes: totals.DurationMinutes,
		TotalDistanceKm:      totals.DistanceKm,
		AverageRating:        totals.AverageRating,
		BySport:              make(map[Sport]SportStats, len(rows)),
	}
	for _, row := range rows {
		stats.BySport[row.Sport] = SportStats{
			Workouts:        row.Workouts,
			DurationMinutes: row.DurationMinutes,
			DistanceKm:      row.DistanceKm,
		}
	}
	return stats, nil
}
