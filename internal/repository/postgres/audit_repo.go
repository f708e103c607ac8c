package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/corpsim-engine/internal/audit"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(connString string) *AuditRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AuditRepo{db: db}
}

// Ping проверяет доступность базы при старте
func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ForRun возвращает audit.Store, пишущий записи данного прогона.
// Таблица одна на всех, изоляция — по run_id.
func (r *AuditRepo) ForRun(runID string) audit.Store {
	return &runStore{repo: r, runID: runID}
}

type runStore struct {
	repo  *AuditRepo
	runID string
}

func (s *runStore) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	return s.repo.WriteBatch(ctx, entries)
}

// WriteBatch — пакетная вставка записей тика одним запросом (атомарность
// границы тика на уровне стореджа).
func (r *AuditRepo) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_entries
	numFields := 8
	placeholderStr := ""
	vals := make([]interface{}, 0, len(entries)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range entries {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8)

		body, _ := json.Marshal(e)

		vals = append(vals,
			e.RunID, e.Sequence, e.Tick, string(e.Type),
			e.ContentHash, e.PrevHash, body, e.CreatedAt,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO audit_entries (run_id, sequence, tick, entry_type, content_hash, prev_hash, body, created_at) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// FetchEntries читает цепочку прогона в порядке sequence — ровно то, что
// нужно VerifyChain и оффлайн-верификатору.
func (r *AuditRepo) FetchEntries(ctx context.Context, runID string) ([]audit.Entry, error) {
	query := `
		SELECT body FROM audit_entries
		WHERE run_id = $1
		ORDER BY sequence ASC`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e audit.Entry
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, fmt.Errorf("postgres: corrupt audit entry body: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
