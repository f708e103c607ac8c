package audit

/*
Файл ledger.go реализует Audit Ledger — append-only журнал с hash-цепочкой.

Ключевые особенности архитектуры:
- Single Writer: последовательность sequence и цепочка prev_hash→content_hash
  защищены одним мьютексом на прогон. Конкуренции между прогонами нет —
  у каждого Run свой Ledger (независимый агрегат).
- Stage/Commit: записи тика сначала попадают в staging-буфер и только при
  коммите атомарно уходят в сторедж (WriteBatch) и становятся видимыми
  читателям. Упал сторедж — Abort, цепочка в памяти не двигается, тик
  считается не случившимся.
- Verify без блокировки писателя надолго: снимаем копию под RLock и
  проверяем цепочку уже без локов. Порванных/частичных записей читатель
  не видит — запись публикуется только целиком.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/corpsim-engine/internal/domain"
)

// Store определяет, куда физически будут сохраняться записи
type Store interface {
	// WriteBatch сохраняет пачку записей за один раз (атомарно для тика)
	WriteBatch(ctx context.Context, entries []Entry) error
}

// MemoryStore — сторедж по умолчанию (тесты, standalone-режим).
type MemoryStore struct {
	entries []Entry
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) WriteBatch(_ context.Context, entries []Entry) error {
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *MemoryStore) Entries() []Entry { return s.entries }

type Ledger struct {
	runID  string
	store  Store
	logger *zap.Logger

	mu      sync.RWMutex
	entries []Entry
	staged  []Entry
	tip     string // content_hash последней закоммиченной записи
}

func NewLedger(runID string, store Store, logger *zap.Logger) *Ledger {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Ledger{
		runID:  runID,
		store:  store,
		logger: logger.With(zap.String("mod", "ledger"), zap.String("run_id", runID)),
		tip:    GenesisHash,
	}
}

// Stage присваивает записи следующий sequence, prev_hash и content_hash
// и кладет ее в staging-буфер. Видимой и надежной она станет после Commit.
func (l *Ledger) Stage(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.RunID = l.runID
	e.Sequence = int64(len(l.entries) + len(l.staged))
	e.PrevHash = l.stagedTip()
	e.ContentHash = ComputeHash(e)
	e.CreatedAt = time.Now().UTC()

	l.staged = append(l.staged, e)
	return e
}

// Commit атомарно публикует staging-буфер: сначала надежная запись в
// сторедж, потом — в видимую часть цепочки. Ошибка стореджа = ни одна
// запись тика не видна (PersistenceError наверх, прогон уйдет в failed).
func (l *Ledger) Commit(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.staged) == 0 {
		return nil
	}
	if err := l.store.WriteBatch(ctx, l.staged); err != nil {
		l.logger.Error("audit flush failed, aborting staged entries",
			zap.Int("staged", len(l.staged)), zap.Error(err))
		l.staged = nil
		return &domain.PersistenceError{Op: "audit append", Cause: err}
	}

	l.entries = append(l.entries, l.staged...)
	l.tip = l.entries[len(l.entries)-1].ContentHash
	l.staged = nil
	return nil
}

// Abort сбрасывает staging-буфер (тик откатился).
func (l *Ledger) Abort() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.staged = nil
}

// Append — одиночная запись вне тика (резолв approval): stage + commit.
func (l *Ledger) Append(ctx context.Context, e Entry) (Entry, error) {
	staged := l.Stage(e)
	if err := l.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return staged, nil
}

// Entries возвращает копию закоммиченных записей (staging не виден).
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len — число закоммиченных записей.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// StagedCount — размер staging-буфера (для метрик перед коммитом).
func (l *Ledger) StagedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.staged)
}

// Verify реплеит всю цепочку и падает с IntegrityError на первой записи,
// чей пересчитанный хэш не сошелся. Безопасен конкурентно с Append:
// проверяем снятую копию.
func (l *Ledger) Verify() error {
	return VerifyChain(l.Entries())
}

// stagedTip — хэш хвоста с учетом staging-буфера (вызывается под локом).
func (l *Ledger) stagedTip() string {
	if n := len(l.staged); n > 0 {
		return l.staged[n-1].ContentHash
	}
	return l.tip
}
