package telephony

import (
	"context"
	"time"

	"voicemail-recorder/internal/calls"
)

// Webhooks is the state-transition logic behind the three platform
// webhooks. Handlers in this package only translate HTTP to these calls.
//
// Rules:
// - HandleRecording and HandleEvent never fail; the platform must always
//   receive an ack or it retries.
// - HandleAnswer may fail; there is no safe default call flow.
type Webhooks interface {
	HandleAnswer(ctx context.Context, p AnswerParams) ([]Instruction, error)
	HandleRecording(ctx context.Context, p RecordingPayload)
	HandleEvent(ctx context.Context, p EventPayload)
}

// RecordingLookup serves the read side of stored recordings.
// GetRecording returns calls.ErrNotFound when nothing is stored for callUUID.
type RecordingLookup interface {
	GetRecording(ctx context.Context, callUUID string) (calls.Recording, error)
	ListRecordings(ctx context.Context, start, end time.Time) ([]calls.Recording, error)
}
