package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/protocol"
)

// RaceResultRepository persists final race standings. The pool may be nil
// when no database is configured; every method degrades to a no-op then.
type RaceResultRepository struct {
	db *pgxpool.Pool
}

func NewRaceResultRepository(db *pgxpool.Pool) *RaceResultRepository {
	return &RaceResultRepository{db: db}
}

// RecordRace writes one row per participant.
func (r *RaceResultRepository) RecordRace(ctx context.Context, roomID string, rankings []protocol.Ranking, startedAt time.Time) error {
	if r.db == nil {
		return nil
	}

	for _, rk := range rankings {
		_, err := r.db.Exec(ctx,
			`INSERT INTO race_results
				(room_id, player_id, player_name, finish_time_ms, position, started_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			roomID, rk.PlayerID, rk.Name, rk.Time, rk.Position, startedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// RaceResult is one stored standings row.
type RaceResult struct {
	ID           int64     `json:"id"`
	RoomID       string    `json:"room_id"`
	PlayerID     string    `json:"player_id"`
	PlayerName   string    `json:"player_name"`
	FinishTimeMs int64     `json:"finish_time_ms"`
	Position     int       `json:"position"`
	StartedAt    time.Time `json:"started_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// RecentByPlayer returns a player's latest results, newest first.
func (r *RaceResultRepository) RecentByPlayer(ctx context.Context, playerID string, limit int) ([]*RaceResult, error) {
	if r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, room_id, player_id, player_name, finish_time_ms, position, started_at, created_at
		 FROM race_results
		 WHERE player_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		playerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*RaceResult
	for rows.Next() {
		var rr RaceResult
		if err := rows.Scan(
			&rr.ID, &rr.RoomID, &rr.PlayerID, &rr.PlayerName,
			&rr.FinishTimeMs, &rr.Position, &rr.StartedAt, &rr.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &rr)
	}
	return result, rows.Err()
}

// CountRaces reports how many races have been recorded since a point in time.
func (r *RaceResultRepository) CountRaces(ctx context.Context, since time.Time) (int, error) {
	if r.db == nil {
		return 0, nil
	}
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT room_id) FROM race_results WHERE created_at >= $1`,
		since,
	).Scan(&count)
	return count, err
}
