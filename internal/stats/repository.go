package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a player row does not exist.
var ErrNotFound = errors.New("player not found")

// Player is the persisted per-user row.
type Player struct {
	Username   string
	Color      string
	HighScore  float64
	TotalRaces int
	Wins       int
	WPMHistory []float64
	AverageWPM float64
	CreatedAt  time.Time
}

// RaceRecord is one appended race-history entry.
type RaceRecord struct {
	Username string    `json:"username,omitempty"`
	WPM      float64   `json:"wpm"`
	Accuracy float64   `json:"accuracy"`
	Rank     int       `json:"position"`
	RacedAt  time.Time `json:"timestamp"`
}

const schema = `
CREATE TABLE IF NOT EXISTS players (
	username    TEXT PRIMARY KEY,
	color       TEXT NOT NULL DEFAULT '#FF6B6B',
	high_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_races INTEGER NOT NULL DEFAULT 0,
	wins        INTEGER NOT NULL DEFAULT 0,
	wpm_history DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
	average_wpm DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS race_records (
	id        BIGSERIAL PRIMARY KEY,
	username  TEXT NOT NULL REFERENCES players(username),
	wpm       DOUBLE PRECISION NOT NULL,
	accuracy  DOUBLE PRECISION NOT NULL,
	rank      INTEGER NOT NULL,
	raced_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS race_records_username_idx ON race_records (username, raced_at DESC);
`

// Repository implements player stats data access over Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a stats repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the stats tables when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure stats schema: %w", err)
	}
	return nil
}

// GetPlayer fetches one player row.
func (r *Repository) GetPlayer(ctx context.Context, username string) (*Player, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT username, color, high_score, total_races, wins, wpm_history, average_wpm, created_at
		 FROM players WHERE username = $1`, username)

	var p Player
	err := row.Scan(&p.Username, &p.Color, &p.HighScore, &p.TotalRaces, &p.Wins, &p.WPMHistory, &p.AverageWPM, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return &p, nil
}

// CreatePlayer inserts a fresh player row with defaults.
func (r *Repository) CreatePlayer(ctx context.Context, username, color string) (*Player, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO players (username, color)
		 VALUES ($1, $2)
		 ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		 RETURNING username, color, high_score, total_races, wins, wpm_history, average_wpm, created_at`,
		username, color)

	var p Player
	if err := row.Scan(&p.Username, &p.Color, &p.HighScore, &p.TotalRaces, &p.Wins, &p.WPMHistory, &p.AverageWPM, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}
	return &p, nil
}

// UpdateColor sets a player's car color.
func (r *Repository) UpdateColor(ctx context.Context, username, color string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE players SET color = $2 WHERE username = $1`, username, color)
	if err != nil {
		return fmt.Errorf("failed to update color: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStats writes the recomputed aggregates and appends the race record in
// one transaction.
func (r *Repository) UpdateStats(ctx context.Context, p *Player, record RaceRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin stats update: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE players
		 SET high_score = $2, total_races = $3, wins = $4, wpm_history = $5, average_wpm = $6
		 WHERE username = $1`,
		p.Username, p.HighScore, p.TotalRaces, p.Wins, p.WPMHistory, p.AverageWPM)
	if err != nil {
		return fmt.Errorf("failed to update player aggregates: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO race_records (username, wpm, accuracy, rank, raced_at) VALUES ($1, $2, $3, $4, $5)`,
		p.Username, record.WPM, record.Accuracy, record.Rank, record.RacedAt)
	if err != nil {
		return fmt.Errorf("failed to insert race record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit stats update: %w", err)
	}
	return nil
}

// Leaderboard returns the top players by high score.
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]*Player, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT username, color, high_score, total_races, wins, wpm_history, average_wpm, created_at
		 FROM players ORDER BY high_score DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var players []*Player
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.Username, &p.Color, &p.HighScore, &p.TotalRaces, &p.Wins, &p.WPMHistory, &p.AverageWPM, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		players = append(players, &p)
	}
	return players, rows.Err()
}

// RaceHistory returns a page of a player's races, most recent first, plus the
// total count.
func (r *Repository) RaceHistory(ctx context.Context, username string, limit, offset int) ([]RaceRecord, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM race_records WHERE username = $1`, username).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count race records: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT wpm, accuracy, rank, raced_at
		 FROM race_records WHERE username = $1
		 ORDER BY raced_at DESC LIMIT $2 OFFSET $3`, username, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query race history: %w", err)
	}
	defer rows.Close()

	var records []RaceRecord
	for rows.Next() {
		var rec RaceRecord
		if err := rows.Scan(&rec.WPM, &rec.Accuracy, &rec.Rank, &rec.RacedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan race record: %w", err)
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}
