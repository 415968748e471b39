package database

import (
	"context"
	"fmt"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/goccy/go-json"
)

// InsertRecord indexes an evidence record and bumps its session in one transaction.
func (d *Database) InsertRecord(ctx context.Context, sessionID string, record models.LogRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return d.InTx(ctx, func(ctx context.Context) error {
		if _, err := d.querier(ctx).ExecContext(ctx,
			`INSERT INTO records (id, session_id, image, status, danger, action_required, data)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO NOTHING`,
			record.Timestamp,
			sessionID,
			record.Image,
			record.Analysis.Status,
			record.Analysis.Danger,
			record.Analysis.ActionRequired,
			data,
		); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", record.Timestamp, err)
		}

		return d.UpdateSessionTimestamp(ctx, sessionID)
	})
}

// GetRecords returns indexed records of a session, newest first.
func (d *Database) GetRecords(ctx context.Context, sessionID string) ([]models.LogRecord, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, `
		SELECT data
		FROM records
		WHERE session_id = $1
		ORDER BY id DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.LogRecord{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var record models.LogRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
