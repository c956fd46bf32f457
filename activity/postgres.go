package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/device"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultQueryTimeout bounds each statement issued by [PostgresStore].
const DefaultQueryTimeout = 5 * time.Second

const schemaSQL = `
CREATE TABLE IF NOT EXISTS activity_logs (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL,
	action      TEXT NOT NULL,
	success     BOOLEAN NOT NULL,
	metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
	ip_address  TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	device_info JSONB NOT NULL DEFAULT '{}'::jsonb,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS activity_logs_user_time_idx ON activity_logs (user_id, occurred_at DESC);
`

const insertSQL = `
INSERT INTO activity_logs (id, user_id, action, success, metadata, ip_address, user_agent, device_info, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const listSQL = `
SELECT id::text AS id, user_id, action, success, metadata, ip_address, user_agent, device_info, occurred_at
FROM activity_logs
WHERE user_id = $1
  AND ($2::text[] IS NULL OR action = ANY($2))
  AND ($3::timestamptz IS NULL OR occurred_at >= $3)
ORDER BY occurred_at DESC
LIMIT $4`

// PostgresStore persists entries in the activity_logs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps pool. Call [PostgresStore.EnsureSchema] once at
// startup.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres creates a pool for dsn and verifies connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// EnsureSchema creates the table and index when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	meta, err := json.Marshal(nonNilMeta(e.Metadata))
	if err != nil {
		return err
	}
	dev, err := json.Marshal(e.DeviceInfo)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = s.pool.Exec(ctx, insertSQL,
		e.ID, e.UserID, string(e.Action), e.Success, meta, e.IPAddress, e.UserAgent, dev, e.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

type entryRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Action     string    `db:"action"`
	Success    bool      `db:"success"`
	Metadata   []byte    `db:"metadata"`
	IPAddress  string    `db:"ip_address"`
	UserAgent  string    `db:"user_agent"`
	DeviceInfo []byte    `db:"device_info"`
	OccurredAt time.Time `db:"occurred_at"`
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]Entry, error) {
	var actions []string
	if len(q.Actions) > 0 {
		actions = make([]string, len(q.Actions))
		for i, a := range q.Actions {
			actions[i] = string(a)
		}
	}
	var since *time.Time
	if !q.Since.IsZero() {
		t := q.Since.UTC()
		since = &t
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var rows []entryRow
	if err := pgxscan.Select(ctx, s.pool, &rows, listSQL, q.UserID, actions, since, limit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e := Entry{
			ID:        r.ID,
			UserID:    r.UserID,
			Action:    Action(r.Action),
			Success:   r.Success,
			IPAddress: r.IPAddress,
			UserAgent: r.UserAgent,
			Timestamp: r.OccurredAt,
		}
		_ = json.Unmarshal(r.Metadata, &e.Metadata)
		var info device.Info
		if json.Unmarshal(r.DeviceInfo, &info) == nil {
			e.DeviceInfo = info
		}
		out = append(out, e)
	}
	return out, nil
}

func nonNilMeta(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
