package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

type pgRepository struct {
	db *sql.DB
}

// NewPostgresRepository opens a Postgres-backed audit repository.
func NewPostgresRepository(databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &pgRepository{db: db}, nil
}

func (r *pgRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *pgRepository) SaveMatchResult(ctx context.Context, res *MatchResult) error {
	if r == nil || r.db == nil || res == nil {
		return nil
	}
	const q = `INSERT INTO match_results (
	    result_id, winner_id, loser_id, award, penalty, finished_at
	  ) VALUES ($1,$2,$3,$4,$5,$6)
	  ON CONFLICT (result_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, q,
		res.ID, res.WinnerID, res.LoserID, res.Award, res.Penalty, res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	return nil
}

func (r *pgRepository) SaveExchange(ctx context.Context, e *ExchangeEntry) error {
	if r == nil || r.db == nil || e == nil {
		return nil
	}
	const q = `INSERT INTO exchange_requests (
	    request_id, player_id, external_ref, source_units, cost, status, created_at
	  ) VALUES ($1,$2,$3,$4,$5,$6,$7)
	  ON CONFLICT (request_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.PlayerID, e.ExternalRef, e.SourceUnits, e.Cost, e.Status, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert exchange request: %w", err)
	}
	return nil
}
