package calls

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("calls: not found")

// Storage is the persistence contract for call logs and recordings.
//
// Rules:
// - Lookups return (zero, false, nil) when nothing matches; errors are reserved for storage failures.
// - SaveRecording and SaveCallLog upsert by primary key (last write wins).
// - ListRecordings returns rows with start <= created_at <= end, newest first. Zero bounds are open.
type Storage interface {
	SaveRecording(ctx context.Context, r Recording) error
	GetRecording(ctx context.Context, callUUID string) (Recording, bool, error)
	ListRecordings(ctx context.Context, start, end time.Time) ([]Recording, error)

	SaveCallLog(ctx context.Context, c CallLog) error
	GetCallLog(ctx context.Context, callUUID string) (CallLog, bool, error)
	GetCallLogByConversation(ctx context.Context, conversationUUID string) (CallLog, bool, error)

	// UpdateCallLogStatus returns false if no call log matches callUUID.
	UpdateCallLogStatus(ctx context.Context, callUUID, status string, endedAt *time.Time) (bool, error)
}
