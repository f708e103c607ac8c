// Команда auditverify проверяет hash-цепочку экспортированного журнала
// оффлайн: либо из JSON-файла (вывод GET /v1/runs/{id}/audit), либо
// напрямую из Postgres по run_id.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/xela07ax/corpsim-engine/internal/audit"
	"github.com/xela07ax/corpsim-engine/internal/domain"
	"github.com/xela07ax/corpsim-engine/internal/repository/postgres"
)

func main() {
	var (
		filePath = flag.String("file", "", "path to exported audit JSON (array of entries or {\"entries\": [...]})")
		dbURL    = flag.String("db", os.Getenv("DATABASE_URL"), "postgres connection string")
		runID    = flag.String("run", "", "run id to fetch from postgres")
	)
	flag.Parse()

	entries, err := loadEntries(*filePath, *dbURL, *runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if err := audit.VerifyChain(entries); err != nil {
		var integrity *domain.IntegrityError
		if errors.As(err, &integrity) {
			fmt.Fprintf(os.Stderr, "FAIL: chain broken at sequence %d: %s\n",
				integrity.Sequence, integrity.Reason)
		} else {
			fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("OK: %d entries, chain intact\n", len(entries))
}

func loadEntries(filePath, dbURL, runID string) ([]audit.Entry, error) {
	switch {
	case filePath != "":
		return loadFromFile(filePath)
	case dbURL != "" && runID != "":
		return loadFromDB(dbURL, runID)
	default:
		return nil, fmt.Errorf("either -file, or -db together with -run, is required")
	}
}

func loadFromFile(path string) ([]audit.Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Поддерживаем и голый массив, и обертку консоли {"entries": [...]}
	var entries []audit.Entry
	if err := json.Unmarshal(raw, &entries); err == nil {
		return entries, nil
	}
	var wrapped struct {
		Entries []audit.Entry `json:"entries"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized audit export format: %w", err)
	}
	return wrapped.Entries, nil
}

func loadFromDB(dbURL, runID string) ([]audit.Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := postgres.NewAuditRepo(dbURL)
	return repo.FetchEntries(ctx, runID)
}
