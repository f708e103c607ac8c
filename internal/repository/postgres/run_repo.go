package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/corpsim-engine/internal/domain"
	"github.com/xela07ax/corpsim-engine/internal/engine"
)

type RunRepo struct {
	pool *pgxpool.Pool
}

func NewRunRepo(ctx context.Context, connString string, maxConns, minConns int32) (*RunRepo, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &RunRepo{pool: pool}, nil
}

func (r *RunRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *RunRepo) Close() {
	r.pool.Close()
}

// SaveSnapshot — upsert снапшота границы тика. Последний снапшот прогона
// переживает рестарт сервиса; история тиков растет вместе с прогоном.
func (r *RunRepo) SaveSnapshot(ctx context.Context, snap engine.RunSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO run_snapshots (run_id, tick, status, state_hash, body, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (run_id, tick) DO UPDATE
		SET status = EXCLUDED.status, state_hash = EXCLUDED.state_hash, body = EXCLUDED.body`

	if _, err := r.pool.Exec(ctx, query, snap.RunID, snap.Tick, string(snap.Status), snap.StateHash, body); err != nil {
		return fmt.Errorf("postgres: save snapshot: %w", err)
	}
	return nil
}

// PausedRunIDs — прогоны, чей последний снапшот остался в paused.
// Используется при старте для прогрева halt-флагов (L1 + Redis).
func (r *RunRepo) PausedRunIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT ON (run_id) run_id, status
		FROM run_snapshots
		ORDER BY run_id, tick DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: paused runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		if status == string(domain.RunPaused) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// LatestSnapshot возвращает снапшот последней закоммиченной границы тика.
func (r *RunRepo) LatestSnapshot(ctx context.Context, runID string) (*engine.RunSnapshot, error) {
	query := `
		SELECT body FROM run_snapshots
		WHERE run_id = $1
		ORDER BY tick DESC
		LIMIT 1`

	var body []byte
	err := r.pool.QueryRow(ctx, query, runID).Scan(&body)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	var snap engine.RunSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("postgres: corrupt snapshot body: %w", err)
	}
	return &snap, nil
}
