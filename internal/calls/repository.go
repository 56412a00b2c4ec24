package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresRepo implements Storage on database/sql with the pgx stdlib driver.
//
// NOTE: This repository assumes the tables from migrations/ exist (see Migrate).
// Each method is a single statement; no transaction spans handler boundaries.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const recordingColumns = `id, call_uuid, conversation_uuid, caller_number, called_number,
       recording_url, recording_uuid, duration, file_size, format,
       status, local_file_path, created_at, updated_at`

const callLogColumns = `id, call_uuid, conversation_uuid, caller_number, called_number,
       status, direction, started_at, ended_at, created_at`

func (r *PostgresRepo) SaveRecording(ctx context.Context, rec Recording) error {
	const q = `
INSERT INTO recordings (
  id, call_uuid, conversation_uuid, caller_number, called_number,
  recording_url, recording_uuid, duration, file_size, format,
  status, local_file_path, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (id)
DO UPDATE SET call_uuid = EXCLUDED.call_uuid,
              conversation_uuid = EXCLUDED.conversation_uuid,
              caller_number = EXCLUDED.caller_number,
              called_number = EXCLUDED.called_number,
              recording_url = EXCLUDED.recording_url,
              recording_uuid = EXCLUDED.recording_uuid,
              duration = EXCLUDED.duration,
              file_size = EXCLUDED.file_size,
              format = EXCLUDED.format,
              status = EXCLUDED.status,
              local_file_path = EXCLUDED.local_file_path,
              created_at = EXCLUDED.created_at,
              updated_at = EXCLUDED.updated_at
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.CallUUID,
		rec.ConversationUUID,
		rec.CallerNumber,
		rec.CalledNumber,
		rec.RecordingURL,
		rec.RecordingUUID,
		rec.Duration,
		rec.FileSize,
		rec.Format,
		string(rec.Status),
		nullString(rec.LocalFilePath),
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("calls: save recording: %w", err)
	}
	return nil
}

func (r *PostgresRepo) GetRecording(ctx context.Context, callUUID string) (Recording, bool, error) {
	q := `
SELECT ` + recordingColumns + `
FROM recordings
WHERE call_uuid = $1
ORDER BY created_at DESC
LIMIT 1
`
	rec, err := scanRecording(r.db.QueryRowContext(ctx, q, callUUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Recording{}, false, nil
		}
		return Recording{}, false, fmt.Errorf("calls: get recording: %w", err)
	}
	return rec, true, nil
}

func (r *PostgresRepo) ListRecordings(ctx context.Context, start, end time.Time) ([]Recording, error) {
	var (
		conds []string
		args  []any
	)
	if !start.IsZero() {
		args = append(args, start.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !end.IsZero() {
		args = append(args, end.UTC())
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	q := "SELECT " + recordingColumns + "\nFROM recordings"
	if len(conds) > 0 {
		q += "\nWHERE " + strings.Join(conds, " AND ")
	}
	q += "\nORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("calls: list recordings: %w", err)
	}
	defer rows.Close()

	out := make([]Recording, 0)
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("calls: list recordings: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calls: list recordings: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) SaveCallLog(ctx context.Context, c CallLog) error {
	const q = `
INSERT INTO call_logs (
  id, call_uuid, conversation_uuid, caller_number, called_number,
  status, direction, started_at, ended_at, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (id)
DO UPDATE SET call_uuid = EXCLUDED.call_uuid,
              conversation_uuid = EXCLUDED.conversation_uuid,
              caller_number = EXCLUDED.caller_number,
              called_number = EXCLUDED.called_number,
              status = EXCLUDED.status,
              direction = EXCLUDED.direction,
              started_at = EXCLUDED.started_at,
              ended_at = EXCLUDED.ended_at,
              created_at = EXCLUDED.created_at
`
	_, err := r.db.ExecContext(ctx, q,
		c.ID,
		c.CallUUID,
		c.ConversationUUID,
		c.CallerNumber,
		c.CalledNumber,
		c.Status,
		c.Direction,
		c.StartedAt.UTC(),
		nullTime(c.EndedAt),
		c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("calls: save call log: %w", err)
	}
	return nil
}

func (r *PostgresRepo) GetCallLog(ctx context.Context, callUUID string) (CallLog, bool, error) {
	return r.findCallLog(ctx, "call_uuid", callUUID)
}

func (r *PostgresRepo) GetCallLogByConversation(ctx context.Context, conversationUUID string) (CallLog, bool, error) {
	return r.findCallLog(ctx, "conversation_uuid", conversationUUID)
}

// findCallLog returns the newest call log whose column equals value.
// column is never user input.
func (r *PostgresRepo) findCallLog(ctx context.Context, column, value string) (CallLog, bool, error) {
	q := `
SELECT ` + callLogColumns + `
FROM call_logs
WHERE ` + column + ` = $1
ORDER BY created_at DESC
LIMIT 1
`
	var (
		c       CallLog
		endedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, value).Scan(
		&c.ID,
		&c.CallUUID,
		&c.ConversationUUID,
		&c.CallerNumber,
		&c.CalledNumber,
		&c.Status,
		&c.Direction,
		&c.StartedAt,
		&endedAt,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, false, nil
		}
		return CallLog{}, false, fmt.Errorf("calls: get call log: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	return c, true, nil
}

func (r *PostgresRepo) UpdateCallLogStatus(ctx context.Context, callUUID, status string, endedAt *time.Time) (bool, error) {
	const q = `
UPDATE call_logs
SET status = $2, ended_at = $3
WHERE call_uuid = $1
`
	res, err := r.db.ExecContext(ctx, q, callUUID, status, nullTime(endedAt))
	if err != nil {
		return false, fmt.Errorf("calls: update call log status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("calls: update call log status: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(s rowScanner) (Recording, error) {
	var (
		rec       Recording
		status    string
		localPath sql.NullString
	)
	if err := s.Scan(
		&rec.ID,
		&rec.CallUUID,
		&rec.ConversationUUID,
		&rec.CallerNumber,
		&rec.CalledNumber,
		&rec.RecordingURL,
		&rec.RecordingUUID,
		&rec.Duration,
		&rec.FileSize,
		&rec.Format,
		&status,
		&localPath,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return Recording{}, err
	}
	rec.Status = RecordingStatus(status)
	if localPath.Valid {
		p := localPath.String
		rec.LocalFilePath = &p
	}
	return rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
