package calls

import "time"

// CallLog is one inbound call attempt as seen by the answer webhook.
//
// Invariant: EndedAt is non-nil if and only if Status is terminal (see IsTerminal).
//
// NOTE: CallUUID is the platform call-leg id and is not unique across webhook
// retries; every answer delivery creates a new row.
type CallLog struct {
	ID               string `json:"id" db:"id"`
	CallUUID         string `json:"call_uuid" db:"call_uuid"`
	ConversationUUID string `json:"conversation_uuid" db:"conversation_uuid"`

	CallerNumber string `json:"caller_number" db:"caller_number"`
	CalledNumber string `json:"called_number" db:"called_number"`

	// Status is taken verbatim from the platform event vocabulary.
	Status    string `json:"status" db:"status"`
	Direction string `json:"direction" db:"direction"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Recording is the durable record of one completed voicemail recording.
//
// CallUUID holds the conversation uuid reported by the recording webhook.
// Rows are upserted by ID.
type Recording struct {
	ID               string `json:"id" db:"id"`
	CallUUID         string `json:"call_uuid" db:"call_uuid"`
	ConversationUUID string `json:"conversation_uuid" db:"conversation_uuid"`

	CallerNumber string `json:"caller_number" db:"caller_number"`
	CalledNumber string `json:"called_number" db:"called_number"`

	// RecordingURL is platform-hosted and requires an authenticated fetch.
	RecordingURL  string `json:"recording_url" db:"recording_url"`
	RecordingUUID string `json:"recording_uuid" db:"recording_uuid"`

	// Duration in seconds, FileSize in bytes.
	Duration int   `json:"duration" db:"duration"`
	FileSize int64 `json:"file_size" db:"file_size"`

	Format string          `json:"format" db:"format"`
	Status RecordingStatus `json:"status" db:"status"`

	// LocalFilePath is set only after a successful audio download.
	LocalFilePath *string `json:"local_file_path,omitempty" db:"local_file_path"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RecordingMetadata is the lightweight exchange type between the webhook
// orchestrator and the recording manager. It is never persisted directly.
type RecordingMetadata struct {
	ID           string          `json:"id"`
	CallUUID     string          `json:"call_uuid"`
	CallerNumber string          `json:"caller_number"`
	RecordingURL string          `json:"recording_url"`
	Duration     int             `json:"duration"`
	Timestamp    time.Time       `json:"timestamp"`
	Status       RecordingStatus `json:"status"`
}

type RecordingStatus string

const RecordingStatusCompleted RecordingStatus = "completed"

const (
	DirectionInbound = "inbound"

	StatusAnswered = "answered"
	StatusFailed   = "failed"
)

type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatOGG Format = "ogg"
)

// ValidFormat reports whether f is a recording format the platform can produce.
func ValidFormat(f string) bool {
	switch Format(f) {
	case FormatMP3, FormatWAV, FormatOGG:
		return true
	default:
		return false
	}
}

// terminalStatuses are platform statuses after which no further lifecycle
// events are expected for a call.
var terminalStatuses = map[string]struct{}{
	"completed":  {},
	"failed":     {},
	"rejected":   {},
	"busy":       {},
	"cancelled":  {},
	"timeout":    {},
	"unanswered": {},
}

// IsTerminal reports whether status closes a call record.
func IsTerminal(status string) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// TerminalStatuses returns the terminal set in a stable order.
func TerminalStatuses() []string {
	return []string{"completed", "failed", "rejected", "busy", "cancelled", "timeout", "unanswered"}
}

// EndedAtFor returns the ended_at value implied by status at time t.
func EndedAtFor(status string, t time.Time) *time.Time {
	if !IsTerminal(status) {
		return nil
	}
	ts := t
	return &ts
}

// ToRecording expands metadata into a full Recording.
func (m RecordingMetadata) ToRecording(conversationUUID, recordingUUID string, fileSize int64, format string, now time.Time) Recording {
	return Recording{
		ID:               m.ID,
		CallUUID:         m.CallUUID,
		ConversationUUID: conversationUUID,
		CallerNumber:     m.CallerNumber,
		RecordingURL:     m.RecordingURL,
		RecordingUUID:    recordingUUID,
		Duration:         m.Duration,
		FileSize:         fileSize,
		Format:           format,
		Status:           m.Status,
		CreatedAt:        m.Timestamp,
		UpdatedAt:        now,
	}
}

// Metadata projects a Recording back to its exchange form.
func (r Recording) Metadata() RecordingMetadata {
	return RecordingMetadata{
		ID:           r.ID,
		CallUUID:     r.CallUUID,
		CallerNumber: r.CallerNumber,
		RecordingURL: r.RecordingURL,
		Duration:     r.Duration,
		Timestamp:    r.CreatedAt,
		Status:       r.Status,
	}
}
