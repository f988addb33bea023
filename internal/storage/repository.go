package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stock-threshold-alerts/internal/domain"
	"stock-threshold-alerts/internal/history"
	"stock-threshold-alerts/internal/state"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// DefaultStateName is the alert_state row used when none is configured.
const DefaultStateName = "default"

const (
	loadStateSQL = `SELECT payload FROM alert_state WHERE name = $1;`

	saveStateSQL = `INSERT INTO alert_state (name, payload, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (name) DO UPDATE
    SET payload    = EXCLUDED.payload,
        updated_at = EXCLUDED.updated_at;`

	insertEventSQL = `INSERT INTO alert_events (
        id,
        ts,
        ticker,
        name,
        direction,
        price,
        threshold
    ) VALUES (
        $1,$2,$3,$4,$5,$6::numeric,$7::numeric
    )
    ON CONFLICT (id) DO NOTHING;`

	trimEventsSQL = `DELETE FROM alert_events
    WHERE seq IN (
        SELECT seq FROM alert_events
        ORDER BY ts DESC, seq DESC
        OFFSET $1
    );`

	listRecentEventsSQL = `SELECT
        id,
        ts,
        ticker,
        name,
        direction,
        price::text,
        threshold::text
    FROM alert_events
    ORDER BY ts DESC, seq DESC
    LIMIT $1;`

	listEventsBetweenSQL = `SELECT
        id,
        ts,
        ticker,
        name,
        direction,
        price::text,
        threshold::text
    FROM alert_events
    WHERE ts >= $1
      AND ts < $2
    ORDER BY ts, seq;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// StoreOptions configure Store.
type StoreOptions struct {
	// StateName selects the alert_state row.
	StateName string
	// Retention bounds alert_events to the most recent rows.
	Retention int
	// Location interprets legacy state timestamps.
	Location *time.Location
}

// Store persists alert state and alert events in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	opts StoreOptions
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool, opts StoreOptions) *Store {
	if opts.StateName == "" {
		opts.StateName = DefaultStateName
	}
	if opts.Retention <= 0 {
		opts.Retention = history.DefaultRetention
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Store{pool: pool, opts: opts}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Load reads the state row; a missing row yields an empty state.
func (s *Store) Load(ctx context.Context) (*state.AlertState, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var payload []byte
	if err := pool.QueryRow(ctx, loadStateSQL, s.opts.StateName).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return state.New(), nil
		}
		return nil, fmt.Errorf("load alert state: %w", err)
	}
	return state.Decode(payload, s.opts.Location)
}

// Save upserts the full encoded state in one statement.
func (s *Store) Save(ctx context.Context, st *state.AlertState) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := state.Encode(st)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, saveStateSQL, s.opts.StateName, payload); err != nil {
		return fmt.Errorf("save alert state: %w", err)
	}
	return nil
}

// Append inserts events and trims the table to the retention bound in one transaction.
func (s *Store) Append(ctx context.Context, events []domain.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append events: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, ev := range events {
		rec := newEventRecord(ev)
		if _, err := tx.Exec(ctx, insertEventSQL,
			rec.ID,
			rec.TS,
			rec.Ticker,
			rec.Name,
			rec.Direction,
			rec.Price,
			rec.Threshold,
		); err != nil {
			return fmt.Errorf("insert alert event %s: %w", rec.ID, err)
		}
	}
	if _, err := tx.Exec(ctx, trimEventsSQL, s.opts.Retention); err != nil {
		return fmt.Errorf("trim alert events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append events: %w", err)
	}
	return nil
}

// Recent lists the most recent events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.Retention
	}

	rows, err := pool.Query(ctx, listRecentEventsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	return collectEvents(rows)
}

// Between lists events in [from, to), oldest first.
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]domain.AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listEventsBetweenSQL, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list events between: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]domain.AlertEvent, error) {
	defer rows.Close()

	events := make([]domain.AlertEvent, 0)
	for rows.Next() {
		var rec eventRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TS,
			&rec.Ticker,
			&rec.Name,
			&rec.Direction,
			&rec.Price,
			&rec.Threshold,
		); err != nil {
			return nil, err
		}
		ev, err := rec.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

var (
	_ state.Store    = (*Store)(nil)
	_ history.Store  = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
