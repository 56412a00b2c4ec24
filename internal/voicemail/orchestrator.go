package voicemail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voicemail-recorder/internal/calls"
	"voicemail-recorder/internal/telephony"

	"github.com/google/uuid"
)

// InstructionBuilder produces the call flow returned from the answer webhook.
type InstructionBuilder interface {
	BuildVoicemailInstructions(callUUID string) []telephony.Instruction
}

// Orchestrator owns the call and recording lifecycle transitions driven by
// platform webhooks. It implements telephony.Webhooks.
type Orchestrator struct {
	store      calls.Storage
	builder    InstructionBuilder
	recordings *RecordingManager
	log        *slog.Logger

	Now func() time.Time
}

func NewOrchestrator(store calls.Storage, builder InstructionBuilder, recordings *RecordingManager, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:      store,
		builder:    builder,
		recordings: recordings,
		log:        log,
		Now:        time.Now,
	}
}

var _ telephony.Webhooks = (*Orchestrator)(nil)

// HandleAnswer records a new call and returns its voicemail call flow.
// Every delivery creates a new CallLog row, including retries for the same
// call uuid.
func (o *Orchestrator) HandleAnswer(ctx context.Context, p telephony.AnswerParams) ([]telephony.Instruction, error) {
	now := o.Now().UTC()
	o.log.Info("incoming_call_received",
		"call_uuid", p.UUID,
		"caller_number", p.From,
		"called_number", p.To,
		"conversation_uuid", p.ConversationUUID,
	)

	cl := calls.CallLog{
		ID:               uuid.NewString(),
		CallUUID:         p.UUID,
		ConversationUUID: p.ConversationUUID,
		CallerNumber:     p.From,
		CalledNumber:     p.To,
		Status:           calls.StatusAnswered,
		Direction:        calls.DirectionInbound,
		StartedAt:        now,
		CreatedAt:        now,
	}
	if err := o.store.SaveCallLog(ctx, cl); err != nil {
		return nil, fmt.Errorf("save call log: %w", err)
	}
	o.log.Debug("call_log_saved", "call_uuid", p.UUID, "call_log_id", cl.ID)

	ncco := o.builder.BuildVoicemailInstructions(p.UUID)
	o.log.Info("ncco_generated", "call_uuid", p.UUID, "ncco_actions", len(ncco))
	return ncco, nil
}

// HandleRecording stores the completed recording under the conversation
// uuid. Failures are logged, never returned.
func (o *Orchestrator) HandleRecording(ctx context.Context, p telephony.RecordingPayload) {
	ctx = context.WithoutCancel(ctx)
	now := o.Now().UTC()

	o.log.Info("recording_webhook_received",
		"recording_url", p.RecordingURL,
		"recording_uuid", p.RecordingUUID,
		"conversation_uuid", p.ConversationUUID,
		"duration", p.Duration,
		"file_size", p.Size,
		"start_time", p.StartTime,
		"end_time", p.EndTime,
	)

	meta := calls.RecordingMetadata{
		ID:           uuid.NewString(),
		CallUUID:     p.ConversationUUID,
		RecordingURL: p.RecordingURL,
		Duration:     p.Duration,
		Timestamp:    telephony.ParseTimestamp(p.StartTime, now),
		Status:       calls.RecordingStatusCompleted,
	}

	conversationUUID := p.ConversationUUID
	if conversationUUID == "" {
		conversationUUID = uuid.NewString()
	}
	recordingUUID := p.RecordingUUID
	if recordingUUID == "" {
		recordingUUID = uuid.NewString()
	}

	if err := o.recordings.SaveRecording(ctx, meta, conversationUUID, recordingUUID, p.Size); err != nil {
		o.log.Error("recording_save_failed", "recording_id", meta.ID, "call_uuid", meta.CallUUID, "err", err)
		return
	}
	o.log.Info("recording_metadata_saved",
		"recording_id", meta.ID,
		"call_uuid", meta.CallUUID,
		"recording_url", meta.RecordingURL,
		"duration", meta.Duration,
	)
}

// HandleEvent applies a lifecycle event to the matching CallLog. Unknown
// calls are logged and ignored.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev telephony.EventPayload) {
	ctx = context.WithoutCancel(ctx)
	o.log.Info("event_webhook_received", "call_uuid", ev.UUID, "status", ev.Status, "timestamp", ev.Timestamp)

	ts := telephony.ParseTimestamp(ev.Timestamp, o.Now().UTC())
	endedAt := calls.EndedAtFor(ev.Status, ts)

	if ev.UUID != "" {
		updated, err := o.store.UpdateCallLogStatus(ctx, ev.UUID, ev.Status, endedAt)
		switch {
		case err != nil:
			o.log.Error("call_log_update_failed", "call_uuid", ev.UUID, "status", ev.Status, "err", err)
		case updated:
			attrs := []any{"call_uuid", ev.UUID, "new_status", ev.Status}
			if endedAt != nil {
				attrs = append(attrs, "ended_at", endedAt.Format(time.RFC3339))
			}
			o.log.Info("call_log_status_updated", attrs...)
		default:
			o.log.Warn("call_log_not_found_for_update", "call_uuid", ev.UUID, "status", ev.Status)
		}
	}

	if ev.Status == calls.StatusFailed {
		reason := ev.Reason
		if reason == "" {
			reason = "unknown"
		}
		o.log.Error("recording_failed",
			"call_uuid", ev.UUID,
			"status", ev.Status,
			"reason", reason,
			"timestamp", ev.Timestamp,
			"event_data", ev.Raw,
		)
	}
}
