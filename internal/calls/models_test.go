package calls

import (
	"testing"
	"time"
)

func TestIsTerminal(t *testing.T) {
	for _, s := range TerminalStatuses() {
		if !IsTerminal(s) {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
	for _, s := range []string{"", "answered", "ringing", "started", "machine", "COMPLETED"} {
		if IsTerminal(s) {
			t.Fatalf("expected %q to be non-terminal", s)
		}
	}
}

func TestEndedAtFor(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)

	if got := EndedAtFor("completed", ts); got == nil || !got.Equal(ts) {
		t.Fatalf("expected ended_at %v, got %v", ts, got)
	}
	if got := EndedAtFor("ringing", ts); got != nil {
		t.Fatalf("expected nil ended_at for ringing, got %v", got)
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"mp3", "wav", "ogg"} {
		if !ValidFormat(f) {
			t.Fatalf("expected %q valid", f)
		}
	}
	if ValidFormat("flac") {
		t.Fatalf("expected flac invalid")
	}
}

func TestRecordingMetadataRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	now := ts.Add(time.Minute)
	m := RecordingMetadata{
		ID:           "r1",
		CallUUID:     "c1",
		RecordingURL: "https://x/y",
		Duration:     42,
		Timestamp:    ts,
		Status:       RecordingStatusCompleted,
	}

	rec := m.ToRecording("c1", "ru1", 1024, "mp3", now)
	if rec.CreatedAt != ts || rec.UpdatedAt != now {
		t.Fatalf("unexpected timestamps: %+v", rec)
	}
	if rec.FileSize != 1024 || rec.RecordingUUID != "ru1" || rec.Format != "mp3" {
		t.Fatalf("unexpected recording: %+v", rec)
	}
	if rec.LocalFilePath != nil {
		t.Fatalf("expected no local file path")
	}
	if got := rec.Metadata(); got != m {
		t.Fatalf("expected %+v, got %+v", m, got)
	}
}
