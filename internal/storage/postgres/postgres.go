// Package postgres stores devices, modules and the event log in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
	"github.com/AaronLay10/DefusalEngine/internal/storage"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	DeviceID  *string                `json:"device_id,omitempty"`
}

// Client is a storage.Store backed by Postgres. It also implements
// events.Sink so the event log lands in the same database.
type Client struct {
	db *sql.DB

	mu          sync.Mutex
	errorLogged bool
}

var _ storage.Store = (*Client)(nil)

// New opens the database, checks the connection and creates the schema.
func New(ctx context.Context, dsn string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{db: db}
	if err := client.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

func (c *Client) createTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS devices (
			device_id  TEXT PRIMARY KEY,
			name       TEXT,
			facts      JSONB NOT NULL,
			strikes    INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS modules (
			device_id  TEXT NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
			module_id  TEXT NOT NULL,
			type       TEXT NOT NULL,
			solved     BOOLEAN NOT NULL DEFAULT FALSE,
			state      JSONB,
			solution   JSONB,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (device_id, module_id)
		);
		CREATE TABLE IF NOT EXISTS events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			device_id  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_device_id ON events(device_id);
	`
	_, err := c.db.ExecContext(ctx, query)
	return err
}

func (c *Client) CreateDevice(ctx context.Context, d storage.Device) error {
	facts := storage.CloneFacts(d.Facts)
	strikes := facts.Strikes
	facts.Strikes = 0
	factsJSON, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("failed to marshal facts: %w", err)
	}

	now := time.Now().UTC()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, name, facts, strikes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, d.ID, nullString(d.Name), factsJSON, strikes, now)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return fmt.Errorf("device %s: %w", d.ID, storage.ErrDeviceExists)
	}
	return err
}

func (c *Client) GetDevice(ctx context.Context, id string) (storage.Device, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT device_id, name, facts, strikes, created_at, updated_at
		FROM devices WHERE device_id = $1
	`, id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Device{}, fmt.Errorf("device %s: %w", id, storage.ErrDeviceNotFound)
	}
	return d, err
}

func (c *Client) ListDevices(ctx context.Context) ([]storage.Device, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT device_id, name, facts, strikes, created_at, updated_at
		FROM devices ORDER BY device_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM devices WHERE device_id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, fmt.Errorf("device %s: %w", id, storage.ErrDeviceNotFound))
}

func (c *Client) AddStrike(ctx context.Context, id string) (int, error) {
	var strikes int
	err := c.db.QueryRowContext(ctx, `
		UPDATE devices SET strikes = strikes + 1, updated_at = $2
		WHERE device_id = $1
		RETURNING strikes
	`, id, time.Now().UTC()).Scan(&strikes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("device %s: %w", id, storage.ErrDeviceNotFound)
	}
	return strikes, err
}

func (c *Client) PutModule(ctx context.Context, m storage.Module) error {
	state, err := marshalBlob(m.State)
	if err != nil {
		return err
	}
	solution, err := marshalBlob(m.Solution)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO modules (device_id, module_id, type, solved, state, solution, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (device_id, module_id) DO UPDATE
		SET type = EXCLUDED.type, solved = EXCLUDED.solved, state = EXCLUDED.state,
		    solution = EXCLUDED.solution, updated_at = EXCLUDED.updated_at
	`, m.DeviceID, m.ID, string(m.Type), m.Solved, state, solution, time.Now().UTC())
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
		return fmt.Errorf("device %s: %w", m.DeviceID, storage.ErrDeviceNotFound)
	}
	return err
}

func (c *Client) GetModule(ctx context.Context, deviceID, moduleID string) (storage.Module, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT device_id, module_id, type, solved, state, solution, updated_at
		FROM modules WHERE device_id = $1 AND module_id = $2
	`, deviceID, moduleID)
	m, err := scanModule(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, derr := c.GetDevice(ctx, deviceID); derr != nil {
			return storage.Module{}, derr
		}
		return storage.Module{}, fmt.Errorf("module %s/%s: %w", deviceID, moduleID, storage.ErrModuleNotFound)
	}
	return m, err
}

func (c *Client) ListModules(ctx context.Context, deviceID string) ([]storage.Module, error) {
	if _, err := c.GetDevice(ctx, deviceID); err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT device_id, module_id, type, solved, state, solution, updated_at
		FROM modules WHERE device_id = $1 ORDER BY module_id
	`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (c *Client) DeleteModule(ctx context.Context, deviceID, moduleID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM modules WHERE device_id = $1 AND module_id = $2`, deviceID, moduleID)
	if err != nil {
		return err
	}
	return expectRow(res, fmt.Errorf("module %s/%s: %w", deviceID, moduleID, storage.ErrModuleNotFound))
}

// AppendEvent inserts an event into the database.
func (c *Client) AppendEvent(ts time.Time, level, event, msg string, fields map[string]interface{}, deviceID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, device_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = c.db.Exec(query, ts, level, event, nullString(msg), fieldsJSON, nullString(deviceID))
	return err
}

// QueryEvents returns the last N events in descending order by timestamp,
// optionally restricted to one device.
func (c *Client) QueryEvents(ctx context.Context, deviceID string, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, device_id
		FROM events
		WHERE ($1 = '' OR device_id = $1)
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, dev sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &dev); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if dev.Valid {
			e.DeviceID = &dev.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping checks the connection. Only the first failure of an outage and the
// recovery are logged.
func (c *Client) Ping(ctx context.Context) error {
	err := c.db.PingContext(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err != nil && !c.errorLogged:
		log.Printf("postgres: ping failed: %v", err)
		c.errorLogged = true
	case err == nil && c.errorLogged:
		log.Printf("postgres: connection restored")
		c.errorLogged = false
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (storage.Device, error) {
	var d storage.Device
	var name sql.NullString
	var factsJSON []byte
	var strikes int
	if err := s.Scan(&d.ID, &name, &factsJSON, &strikes, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return storage.Device{}, err
	}
	d.Name = name.String
	var facts device.Facts
	if err := json.Unmarshal(factsJSON, &facts); err != nil {
		return storage.Device{}, fmt.Errorf("failed to unmarshal facts for %s: %w", d.ID, err)
	}
	facts.Strikes = strikes
	facts.Modules = nil
	d.Facts = facts
	return d, nil
}

func scanModule(s scanner) (storage.Module, error) {
	var m storage.Module
	var typ string
	var state, solution []byte
	if err := s.Scan(&m.DeviceID, &m.ID, &typ, &m.Solved, &state, &solution, &m.UpdatedAt); err != nil {
		return storage.Module{}, err
	}
	m.Type = device.ModuleType(typ)
	var err error
	if m.State, err = unmarshalBlob(state); err != nil {
		return storage.Module{}, fmt.Errorf("failed to unmarshal state for %s: %w", m.ID, err)
	}
	if m.Solution, err = unmarshalBlob(solution); err != nil {
		return storage.Module{}, fmt.Errorf("failed to unmarshal solution for %s: %w", m.ID, err)
	}
	return m, nil
}

func marshalBlob(b solver.Blob) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal blob: %w", err)
	}
	return data, nil
}

func unmarshalBlob(data []byte) (solver.Blob, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var b solver.Blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return b, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
