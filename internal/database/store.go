package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tpmb/tpmb2/internal/domain/model"
)

const templateSetting = "message_template"

// Store defines the persistence operations used by the bot core.
type Store interface {
	Ping(ctx context.Context) error

	ListGroups(ctx context.Context) ([]model.Group, error)
	AddGroup(ctx context.Context, group model.Group) error
	RemoveGroup(ctx context.Context, id int64) error

	// LoadTemplate returns the stored broadcast template and whether one exists.
	LoadTemplate(ctx context.Context) (string, bool, error)
	SaveTemplate(ctx context.Context, text string) error

	// LoadSecret returns an opaque encrypted blob and whether it exists.
	LoadSecret(ctx context.Context, name string) ([]byte, bool, error)
	SaveSecret(ctx context.Context, name string, blob []byte) error

	SaveAuditEvent(ctx context.Context, event model.AuditEvent) error
	RecentAuditEvents(ctx context.Context, limit int) ([]model.AuditEvent, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) ListGroups(ctx context.Context) ([]model.Group, error) {
	var rows []groupRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, added_at FROM groups ORDER BY added_at, id`); err != nil {
		s.logger.ErrorContext(ctx, "Error listing groups", "error", err)
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	groups := make([]model.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, r.toModel())
	}
	return groups, nil
}

// AddGroup inserts the group. An existing id keeps its original added_at.
func (s *sqlxStore) AddGroup(ctx context.Context, group model.Group) error {
	if group.ID == 0 {
		return errors.New("group id cannot be zero")
	}

	row := groupRow{ID: group.ID, AddedAt: toMillis(group.AddedAt)}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO groups (id, added_at) VALUES (:id, :added_at) ON CONFLICT(id) DO NOTHING`, row)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error adding group", "group_id", group.ID, "error", err)
		return fmt.Errorf("failed to add group %d: %w", group.ID, err)
	}
	s.logger.DebugContext(ctx, "Group stored", "group_id", group.ID)
	return nil
}

func (s *sqlxStore) RemoveGroup(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id); err != nil {
		s.logger.ErrorContext(ctx, "Error removing group", "group_id", id, "error", err)
		return fmt.Errorf("failed to remove group %d: %w", id, err)
	}
	s.logger.DebugContext(ctx, "Group deleted", "group_id", id)
	return nil
}

func (s *sqlxStore) LoadTemplate(ctx context.Context) (string, bool, error) {
	value, found, err := s.loadSetting(ctx, templateSetting)
	if err != nil || !found {
		return "", found, err
	}
	return string(value), true, nil
}

func (s *sqlxStore) SaveTemplate(ctx context.Context, text string) error {
	return s.saveSetting(ctx, templateSetting, []byte(text))
}

func (s *sqlxStore) LoadSecret(ctx context.Context, name string) ([]byte, bool, error) {
	return s.loadSetting(ctx, "secret:"+name)
}

func (s *sqlxStore) SaveSecret(ctx context.Context, name string, blob []byte) error {
	return s.saveSetting(ctx, "secret:"+name, blob)
}

func (s *sqlxStore) loadSetting(ctx context.Context, name string) ([]byte, bool, error) {
	var row settingRow
	err := s.db.GetContext(ctx, &row, `SELECT name, value, updated_at FROM settings WHERE name = ?`, name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error loading setting", "name", name, "error", err)
		return nil, false, fmt.Errorf("failed to load setting %q: %w", name, err)
	}
	return row.Value, true, nil
}

func (s *sqlxStore) saveSetting(ctx context.Context, name string, value []byte) error {
	row := settingRow{Name: name, Value: value, UpdatedAt: time.Now().UnixMilli()}
	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO settings (name, value, updated_at) VALUES (:name, :value, :updated_at)
        ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, row)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving setting", "name", name, "error", err)
		return fmt.Errorf("failed to save setting %q: %w", name, err)
	}
	return nil
}

func (s *sqlxStore) SaveAuditEvent(ctx context.Context, event model.AuditEvent) error {
	if event.ID == "" {
		return errors.New("audit event id cannot be empty")
	}
	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO audit_events (id, timestamp, actor_id, action, target, outcome, detail)
        VALUES (:id, :timestamp, :actor_id, :action, :target, :outcome, :detail)`, newAuditRow(event))
	if err != nil {
		return fmt.Errorf("failed to save audit event %s: %w", event.ID, err)
	}
	return nil
}

// RecentAuditEvents returns up to limit events, newest first.
func (s *sqlxStore) RecentAuditEvents(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
        SELECT id, timestamp, actor_id, action, target, outcome, detail
        FROM audit_events ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}
	events := make([]model.AuditEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toModel())
	}
	return events, nil
}

// RunSQLMaintenance executes VACUUM, which SQLite requires outside a transaction.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)")
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}
	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed")
	return nil
}
