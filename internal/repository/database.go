// Package repository is the pgx-backed persistence layer for Alert
// Ingestion and Incident Management, following the teacher's
// Database/XxxRepository split: a shared pool wrapper, plus one
// repository struct per owned table doing raw SQL via pgxpool.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Database wraps a pgx connection pool, built from a DSN the same way
// the teacher's repository.NewDatabase builds one from viper keys —
// here from a single DATABASE_URL, since this system's config surface
// names that one env var rather than discrete host/port/user fields.
type Database struct {
	Pool *pgxpool.Pool
}

// NewDatabase opens a bounded connection pool and pings it once before
// returning, matching the teacher's startup-time reachability check.
func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Database{Pool: pool}, nil
}

func (d *Database) Close() {
	d.Pool.Close()
}

// Ready reports whether the pool can still reach the database, backing
// the /health/ready endpoint.
func (d *Database) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.Pool.Ping(ctx)
}

// Migrate creates every table this system's services own, the same
// inline-SQL way the teacher's runMigrations does rather than pulling in
// a migration framework the teacher itself doesn't use for this.
func (d *Database) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY,
			service TEXT NOT NULL,
			severity TEXT NOT NULL CHECK (severity IN ('critical','high','medium','low')),
			message TEXT NOT NULL,
			labels JSONB,
			source TEXT,
			fingerprint TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			incident_id UUID,
			received_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_service_severity ON alerts (service, severity)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_incident_id ON alerts (incident_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_received_at ON alerts (received_at)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			service TEXT NOT NULL,
			severity TEXT NOT NULL CHECK (severity IN ('critical','high','medium','low')),
			status TEXT NOT NULL CHECK (status IN ('open','acknowledged','in_progress','resolved')),
			assigned_to TEXT,
			alert_count INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			acknowledged_at TIMESTAMPTZ,
			resolved_at TIMESTAMPTZ,
			mtta_seconds DOUBLE PRECISION,
			mttr_seconds DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_open_pair ON incidents (service, severity) WHERE status != 'resolved'`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents (status)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_created_at ON incidents (created_at)`,
		`CREATE TABLE IF NOT EXISTS incident_notes (
			id UUID PRIMARY KEY,
			incident_id UUID NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
			author TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS incident_timeline (
			id UUID PRIMARY KEY,
			incident_id UUID NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			actor TEXT NOT NULL,
			detail JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE OR REPLACE FUNCTION set_incident_updated_at() RETURNS TRIGGER AS $$
		BEGIN
			NEW.updated_at = now();
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS trg_incidents_updated_at ON incidents`,
		`CREATE TRIGGER trg_incidents_updated_at BEFORE UPDATE ON incidents
			FOR EACH ROW EXECUTE FUNCTION set_incident_updated_at()`,
	}
	for _, stmt := range statements {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
