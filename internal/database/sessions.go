package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
)

const defaultSessionsLimit = 50

func (d *Database) CreateSession(ctx context.Context, session *models.SessionInfo) error {
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := d.querier(ctx).ExecContext(ctx,
		`INSERT INTO sessions (id, source, kind, state, notify_address, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		session.ID,
		session.Source.Location,
		session.Source.Kind,
		session.State,
		session.NotifyAddress,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.ID, err)
	}
	return nil
}

func (d *Database) GetSession(ctx context.Context, sessionID string) (*models.SessionInfo, error) {
	row := d.querier(ctx).QueryRowContext(ctx, `
		SELECT id, source, kind, state, notify_address, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`, sessionID)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // сессия не найдена - это не ошибка
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// GetSessions returns the most recently updated sessions first.
func (d *Database) GetSessions(ctx context.Context, limit int) ([]models.SessionInfo, error) {
	if limit <= 0 {
		limit = defaultSessionsLimit
	}

	rows, err := d.querier(ctx).QueryContext(ctx, `
		SELECT id, source, kind, state, notify_address, created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.SessionInfo{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

func (d *Database) ChangeSessionState(ctx context.Context, sessionID string, state models.SessionState) error {
	_, err := d.querier(ctx).ExecContext(ctx,
		"UPDATE sessions SET state = $1, updated_at = $2 WHERE id = $3",
		state,
		time.Now(),
		sessionID,
	)
	return err
}

func (d *Database) UpdateSessionTimestamp(ctx context.Context, sessionID string) error {
	_, err := d.querier(ctx).ExecContext(ctx,
		"UPDATE sessions SET updated_at = $1 WHERE id = $2",
		time.Now(),
		sessionID,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (models.SessionInfo, error) {
	var s models.SessionInfo
	err := row.Scan(
		&s.ID,
		&s.Source.Location,
		&s.Source.Kind,
		&s.State,
		&s.NotifyAddress,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

// StopStaleSessions marks running sessions without a heartbeat since before as
// stopped and returns their ids.
func (d *Database) StopStaleSessions(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, `
		UPDATE sessions
		SET state = $1, updated_at = NOW()
		WHERE state = $2 AND updated_at < $3
		RETURNING id
	`, models.StateStopped, models.StateRunning, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
