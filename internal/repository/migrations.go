package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sqlx.Tx, d Dialect) error
	Down        func(ctx context.Context, tx *sqlx.Tx, d Dialect) error
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
	AppliedAt   *time.Time
}

type migrationHistory struct {
	Version     int       `db:"version"`
	Description string    `db:"description"`
	AppliedAt   time.Time `db:"applied_at"`
}

// Migrator handles database migrations
type Migrator struct {
	db         *sqlx.DB
	dialect    Dialect
	migrations []Migration
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *sqlx.DB, dialect Dialect) *Migrator {
	return &Migrator{
		db:         db,
		dialect:    dialect,
		migrations: allMigrations(),
	}
}

func (m *Migrator) ensureHistory(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, render(m.dialect, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at {{timestamp}} NOT NULL
		)`))
	if err != nil {
		return fmt.Errorf("failed to create migration history table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]migrationHistory, error) {
	var rows []migrationHistory
	if err := m.db.SelectContext(ctx, &rows, `SELECT version, description, applied_at FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}
	out := make(map[int]migrationHistory, len(rows))
	for _, r := range rows {
		out[r.Version] = r
	}
	return out, nil
}

// Migrate runs all pending migrations and returns how many were applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureHistory(ctx); err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, migration := range m.migrations {
		if _, ok := applied[migration.Version]; ok {
			continue
		}
		if err := m.runMigration(ctx, migration); err != nil {
			return count, fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}
		count++
	}
	return count, nil
}

// Rollback rolls back the last applied migration
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return err
	}
	var last int
	if err := m.db.GetContext(ctx, &last, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return fmt.Errorf("failed to query migration history: %w", err)
	}
	if last == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %d not found", last)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := migration.Down(ctx, tx, m.dialect); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM schema_migrations WHERE version = ?`), last); err != nil {
		return fmt.Errorf("failed to update migration history: %w", err)
	}
	return tx.Commit()
}

// Status returns migration status
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureHistory(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(m.migrations))
	for _, migration := range m.migrations {
		st := MigrationStatus{Version: migration.Version, Description: migration.Description}
		if h, ok := applied[migration.Version]; ok {
			at := h.AppliedAt
			st.Applied = true
			st.AppliedAt = &at
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Version < statuses[j].Version })
	return statuses, nil
}

func (m *Migrator) runMigration(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := migration.Up(ctx, tx, m.dialect); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`),
		migration.Version, migration.Description, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// render substitutes the column types that differ between dialects.
func render(d Dialect, stmt string) string {
	types := map[string]string{
		"{{vector}}":    "vector",
		"{{json}}":      "JSONB",
		"{{timestamp}}": "TIMESTAMPTZ",
		"{{serial}}":    "BIGSERIAL PRIMARY KEY",
	}
	if d == DialectSQLite {
		types = map[string]string{
			"{{vector}}":    "TEXT",
			"{{json}}":      "TEXT",
			"{{timestamp}}": "TIMESTAMP",
			"{{serial}}":    "INTEGER PRIMARY KEY AUTOINCREMENT",
		}
	}
	for placeholder, typ := range types {
		stmt = strings.ReplaceAll(stmt, placeholder, typ)
	}
	return stmt
}

func execAll(ctx context.Context, tx *sqlx.Tx, d Dialect, statements ...string) error {
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, render(d, stmt)); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}

// allMigrations returns all migrations in order
func allMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Buyers, properties and assignments",
			Up: func(ctx context.Context, tx *sqlx.Tx, d Dialect) error {
				if d == DialectPostgres {
					if err := execAll(ctx, tx, d, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
						return err
					}
				}
				return execAll(ctx, tx, d,
					`CREATE TABLE IF NOT EXISTS buyers (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						budget_min DOUBLE PRECISION,
						budget_max DOUBLE PRECISION,
						min_rooms DOUBLE PRECISION,
						target_cities {{json}} NOT NULL DEFAULT '[]',
						target_neighborhoods {{json}} NOT NULL DEFAULT '[]',
						required_features {{json}} NOT NULL DEFAULT '[]',
						floor_min INTEGER,
						floor_max INTEGER,
						taste_liked TEXT,
						taste_disliked TEXT,
						taste_summary TEXT,
						taste_embedding {{vector}},
						created_at {{timestamp}} NOT NULL,
						updated_at {{timestamp}} NOT NULL
					)`,
					`CREATE TABLE IF NOT EXISTS properties (
						id TEXT PRIMARY KEY,
						address TEXT NOT NULL DEFAULT '',
						city TEXT NOT NULL DEFAULT '',
						neighborhood TEXT,
						price DOUBLE PRECISION,
						rooms DOUBLE PRECISION,
						size DOUBLE PRECISION,
						floor INTEGER,
						has_safe_room BOOLEAN NOT NULL DEFAULT FALSE,
						has_sun_balcony BOOLEAN NOT NULL DEFAULT FALSE,
						has_elevator BOOLEAN NOT NULL DEFAULT FALSE,
						parking_spots INTEGER,
						description TEXT,
						status TEXT NOT NULL DEFAULT 'available',
						embedding {{vector}},
						created_at {{timestamp}} NOT NULL,
						updated_at {{timestamp}} NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_properties_status ON properties (status)`,
					`CREATE TABLE IF NOT EXISTS property_assignments (
						buyer_id TEXT NOT NULL,
						property_id TEXT NOT NULL,
						created_at {{timestamp}} NOT NULL,
						PRIMARY KEY (buyer_id, property_id)
					)`,
					`CREATE TABLE IF NOT EXISTS buyer_agents (
						buyer_id TEXT NOT NULL,
						agent_id TEXT NOT NULL,
						created_at {{timestamp}} NOT NULL,
						PRIMARY KEY (buyer_id, agent_id)
					)`,
				)
			},
			Down: func(ctx context.Context, tx *sqlx.Tx, d Dialect) error {
				return execAll(ctx, tx, d,
					`DROP TABLE IF EXISTS buyer_agents`,
					`DROP TABLE IF EXISTS property_assignments`,
					`DROP TABLE IF EXISTS properties`,
					`DROP TABLE IF EXISTS buyers`,
				)
			},
		},
		{
			Version:     2,
			Description: "Match records and notifications",
			Up: func(ctx context.Context, tx *sqlx.Tx, d Dialect) error {
				return execAll(ctx, tx, d,
					`CREATE TABLE IF NOT EXISTS matches (
						buyer_id TEXT NOT NULL,
						property_id TEXT NOT NULL,
						match_score INTEGER,
						match_reason TEXT NOT NULL DEFAULT '',
						hard_filter_passed BOOLEAN NOT NULL,
						created_at {{timestamp}} NOT NULL,
						updated_at {{timestamp}} NOT NULL,
						PRIMARY KEY (buyer_id, property_id)
					)`,
					`CREATE INDEX IF NOT EXISTS idx_matches_buyer_passed ON matches (buyer_id, hard_filter_passed)`,
					`CREATE TABLE IF NOT EXISTS notifications (
						id TEXT PRIMARY KEY,
						agent_id TEXT NOT NULL,
						buyer_id TEXT NOT NULL,
						property_id TEXT NOT NULL,
						run_id TEXT NOT NULL,
						match_score INTEGER NOT NULL,
						title TEXT NOT NULL,
						message TEXT NOT NULL,
						is_read BOOLEAN NOT NULL DEFAULT FALSE,
						created_at {{timestamp}} NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_agent ON notifications (agent_id, created_at)`,
				)
			},
			Down: func(ctx context.Context, tx *sqlx.Tx, d Dialect) error {
				return execAll(ctx, tx, d,
					`DROP TABLE IF EXISTS notifications`,
					`DROP TABLE IF EXISTS matches`,
				)
			},
		},
		{
			Version:     3,
			Description: "Agent feedback and run log",
			Up: func(ctx context.Context, tx *sqlx.Tx, d Dialect) error {
				return execAll(ctx, tx, d,
					`CREATE TABLE IF NOT EXISTS property_feedback (
						id {{serial}},
						buyer_id TEXT NOT NULL,
						property_id TEXT NOT NULL,
						agent_id TEXT,
						status TEXT NOT NULL,
						note TEXT,
						created_at {{timestamp}} NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_feedback_buyer ON property_feedback (buyer_id, created_at)`,
					`CREATE TABLE IF NOT EXISTS match_runs (
						id TEXT PRIMARY KEY,
						buyer_id TEXT NOT NULL,
						triggered_by TEXT NOT NULL,
						saved BOOLEAN NOT NULL,
						passed_count INTEGER NOT NULL DEFAULT 0,
						failed_count INTEGER NOT NULL DEFAULT 0,
						ranked_count INTEGER NOT NULL DEFAULT 0,
						notified_count INTEGER NOT NULL DEFAULT 0,
						status TEXT NOT NULL,
						error TEXT,
						started_at {{timestamp}} NOT NULL,
						finished_at {{timestamp}}
					)`,
					`CREATE INDEX IF NOT EXISTS idx_match_runs_buyer ON match_runs (buyer_id, started_at)`,
				)
			},
			Down: func(ctx context.Context, tx *sqlx.Tx, d Dialect) error {
				return execAll(ctx, tx, d,
					`DROP TABLE IF EXISTS match_runs`,
					`DROP TABLE IF EXISTS property_feedback`,
				)
			},
		},
	}
}
