package voicemail

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voicemail-recorder/internal/calls"
	"voicemail-recorder/internal/config"
	"voicemail-recorder/internal/enrichment"
	"voicemail-recorder/internal/telephony"
	"voicemail-recorder/internal/vonage"
	"voicemail-recorder/pkg/logger"
)

type fakeDownloader struct {
	body string
	err  error
}

func (f fakeDownloader) DownloadRecording(_ context.Context, _ string, dst io.Writer) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := io.WriteString(dst, f.body)
	return int64(n), err
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	err  error
	jobs []enrichment.Job
}

func (f *fakeEnqueuer) Submit(job enrichment.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type failingStore struct {
	*calls.MemoryRepo
}

func (failingStore) SaveCallLog(context.Context, calls.CallLog) error {
	return errors.New("storage unavailable")
}

func (failingStore) SaveRecording(context.Context, calls.Recording) error {
	return errors.New("storage unavailable")
}

func testBuilder() telephony.NCCOBuilder {
	var cfg config.Config
	cfg.Greeting = config.GreetingConfig{Message: "hello", Language: "ja-JP"}
	cfg.Recording = config.RecordingConfig{MaxDuration: 60, Format: "mp3", EndOnSilence: 3}
	cfg.Webhooks.RecordingURL = "https://example.test/webhooks/recording"
	return telephony.NewNCCOBuilder(cfg)
}

var fixedNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, store calls.Storage, d Downloader, e Enqueuer) *Orchestrator {
	t.Helper()
	mgr := NewRecordingManager(store, d, e, ManagerConfig{Dir: t.TempDir(), Format: "mp3"}, logger.Discard())
	mgr.Now = func() time.Time { return fixedNow }
	o := NewOrchestrator(store, testBuilder(), mgr, logger.Discard())
	o.Now = func() time.Time { return fixedNow }
	return o
}

func TestHandleAnswer_CreatesCallLog(t *testing.T) {
	repo := calls.NewMemoryRepo()
	o := newTestOrchestrator(t, repo, nil, nil)

	ncco, err := o.HandleAnswer(context.Background(), telephony.AnswerParams{UUID: "u1", From: "+819011112222", To: "+813033334444", ConversationUUID: "c1"})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(ncco) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(ncco))
	}

	cl, ok, _ := repo.GetCallLog(context.Background(), "u1")
	if !ok {
		t.Fatalf("expected call log")
	}
	if cl.Status != calls.StatusAnswered || cl.EndedAt != nil || cl.Direction != calls.DirectionInbound {
		t.Fatalf("unexpected call log: %+v", cl)
	}
	if cl.ConversationUUID != "c1" || !cl.StartedAt.Equal(fixedNow) {
		t.Fatalf("unexpected call log: %+v", cl)
	}
}

func TestHandleAnswer_DuplicateDeliveryCreatesSecondRow(t *testing.T) {
	repo := calls.NewMemoryRepo()
	o := newTestOrchestrator(t, repo, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := o.HandleAnswer(context.Background(), telephony.AnswerParams{UUID: "u1"}); err != nil {
			t.Fatalf("answer: %v", err)
		}
	}
	if n := len(repo.CallLogs()); n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
}

func TestHandleAnswer_StorageFailurePropagates(t *testing.T) {
	o := newTestOrchestrator(t, failingStore{calls.NewMemoryRepo()}, nil, nil)
	if _, err := o.HandleAnswer(context.Background(), telephony.AnswerParams{UUID: "u1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHandleEvent_TerminalSetsEndedAt(t *testing.T) {
	ts := "2024-01-15T10:05:00Z"
	want := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)

	for _, status := range calls.TerminalStatuses() {
		repo := calls.NewMemoryRepo()
		o := newTestOrchestrator(t, repo, nil, nil)
		_, _ = o.HandleAnswer(context.Background(), telephony.AnswerParams{UUID: "u1"})

		o.HandleEvent(context.Background(), telephony.EventPayload{UUID: "u1", Status: status, Timestamp: ts})

		cl, _, _ := repo.GetCallLog(context.Background(), "u1")
		if cl.Status != status || cl.EndedAt == nil || !cl.EndedAt.Equal(want) {
			t.Fatalf("status %s: unexpected call log %+v", status, cl)
		}
	}
}

func TestHandleEvent_NonTerminalKeepsEndedAtNil(t *testing.T) {
	for _, status := range []string{"ringing", "started", "answered", "machine", "something-new"} {
		repo := calls.NewMemoryRepo()
		o := newTestOrchestrator(t, repo, nil, nil)
		_, _ = o.HandleAnswer(context.Background(), telephony.AnswerParams{UUID: "u1"})

		o.HandleEvent(context.Background(), telephony.EventPayload{UUID: "u1", Status: status, Timestamp: "2024-01-15T10:05:00Z"})

		cl, _, _ := repo.GetCallLog(context.Background(), "u1")
		if cl.Status != status || cl.EndedAt != nil {
			t.Fatalf("status %s: unexpected call log %+v", status, cl)
		}
	}
}

func TestHandleEvent_UnknownCallIsIgnored(t *testing.T) {
	repo := calls.NewMemoryRepo()
	o := newTestOrchestrator(t, repo, nil, nil)

	o.HandleEvent(context.Background(), telephony.EventPayload{UUID: "ghost", Status: "completed"})
	o.HandleEvent(context.Background(), telephony.EventPayload{Status: "failed"})

	if n := len(repo.CallLogs()); n != 0 {
		t.Fatalf("expected no call logs, got %d", n)
	}
}

func TestHandleEvent_BadTimestampFallsBackToNow(t *testing.T) {
	repo := calls.NewMemoryRepo()
	o := newTestOrchestrator(t, repo, nil, nil)
	_, _ = o.HandleAnswer(context.Background(), telephony.AnswerParams{UUID: "u1"})

	o.HandleEvent(context.Background(), telephony.EventPayload{UUID: "u1", Status: "completed", Timestamp: "garbage"})

	cl, _, _ := repo.GetCallLog(context.Background(), "u1")
	if cl.EndedAt == nil || !cl.EndedAt.Equal(fixedNow) {
		t.Fatalf("expected ended_at = now, got %+v", cl.EndedAt)
	}
}

func TestHandleRecording_PersistsUnderConversationUUID(t *testing.T) {
	repo := calls.NewMemoryRepo()
	o := newTestOrchestrator(t, repo, nil, nil)

	o.HandleRecording(context.Background(), telephony.RecordingPayload{
		RecordingURL:     "https://x/y",
		ConversationUUID: "c1",
		Duration:         42,
		Size:             1024,
		StartTime:        "2024-01-15T09:59:00Z",
	})

	rec, ok, _ := repo.GetRecording(context.Background(), "c1")
	if !ok {
		t.Fatalf("expected recording keyed by conversation uuid")
	}
	if rec.Duration != 42 || rec.Status != calls.RecordingStatusCompleted || rec.FileSize != 1024 {
		t.Fatalf("unexpected recording: %+v", rec)
	}
	if rec.CallerNumber != "" || rec.LocalFilePath != nil {
		t.Fatalf("unexpected caller/local path: %+v", rec)
	}
	if rec.RecordingUUID == "" {
		t.Fatalf("expected a generated recording uuid")
	}
	if !rec.CreatedAt.Equal(time.Date(2024, 1, 15, 9, 59, 0, 0, time.UTC)) {
		t.Fatalf("expected created_at from start_time, got %v", rec.CreatedAt)
	}
}

func TestHandleRecording_StorageFailureIsContained(t *testing.T) {
	o := newTestOrchestrator(t, failingStore{calls.NewMemoryRepo()}, nil, nil)
	o.HandleRecording(context.Background(), telephony.RecordingPayload{ConversationUUID: "c1"})
}

func TestSaveRecording_DownloadsAndEnqueues(t *testing.T) {
	repo := calls.NewMemoryRepo()
	enq := &fakeEnqueuer{}
	o := newTestOrchestrator(t, repo, fakeDownloader{body: "audio"}, enq)

	_, _ = o.HandleAnswer(context.Background(), telephony.AnswerParams{UUID: "leg-1", From: "+819011112222", ConversationUUID: "c1"})
	o.HandleRecording(context.Background(), telephony.RecordingPayload{RecordingURL: "https://x/y", ConversationUUID: "c1", Duration: 5})

	rec, ok, _ := repo.GetRecording(context.Background(), "c1")
	if !ok || rec.LocalFilePath == nil {
		t.Fatalf("expected local file path, got %+v", rec)
	}
	if filepath.Base(*rec.LocalFilePath) != rec.ID+".mp3" {
		t.Fatalf("unexpected file name: %s", *rec.LocalFilePath)
	}
	data, err := os.ReadFile(*rec.LocalFilePath)
	if err != nil || string(data) != "audio" {
		t.Fatalf("unexpected file content: %q %v", data, err)
	}

	if len(enq.jobs) != 1 {
		t.Fatalf("expected one enrichment job, got %d", len(enq.jobs))
	}
	job := enq.jobs[0]
	if job.CallerNumber != "+819011112222" || job.AudioPath != *rec.LocalFilePath || job.RecordingID != rec.ID {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestSaveRecording_DownloadFailureKeepsMetadata(t *testing.T) {
	repo := calls.NewMemoryRepo()
	enq := &fakeEnqueuer{}
	dir := t.TempDir()
	mgr := NewRecordingManager(repo, fakeDownloader{err: errors.New("403")}, enq, ManagerConfig{Dir: dir}, logger.Discard())

	_ = repo.SaveCallLog(context.Background(), calls.CallLog{ID: "cl", CallUUID: "c1", CallerNumber: "+81"})
	meta := calls.RecordingMetadata{ID: "r1", CallUUID: "c1", RecordingURL: "https://x/y", Timestamp: fixedNow, Status: calls.RecordingStatusCompleted}
	if err := mgr.SaveRecording(context.Background(), meta, "c1", "ru", 0); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, ok, _ := repo.GetRecording(context.Background(), "c1")
	if !ok || rec.LocalFilePath != nil {
		t.Fatalf("expected metadata without local path, got %+v", rec)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no partial files, found %d", len(entries))
	}
	if len(enq.jobs) != 0 {
		t.Fatalf("enrichment requires a local file")
	}
}

func TestSaveRecording_UntrustedRecordingHostIsNotFetched(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	client, err := vonage.New(vonage.Config{APIKey: "k", APISecret: "s"})
	if err != nil {
		t.Fatalf("vonage client: %v", err)
	}
	repo := calls.NewMemoryRepo()
	enq := &fakeEnqueuer{}
	o := newTestOrchestrator(t, repo, client, enq)

	_, _ = o.HandleAnswer(context.Background(), telephony.AnswerParams{UUID: "c1", From: "+81", ConversationUUID: "c1"})
	o.HandleRecording(context.Background(), telephony.RecordingPayload{RecordingURL: srv.URL + "/rec", ConversationUUID: "c1"})

	rec, ok, _ := repo.GetRecording(context.Background(), "c1")
	if !ok || rec.LocalFilePath != nil {
		t.Fatalf("expected metadata without local path, got %+v", rec)
	}
	if hits.Load() != 0 {
		t.Fatalf("recording host outside the allowlist was contacted")
	}
	if len(enq.jobs) != 0 {
		t.Fatalf("enrichment requires a local file")
	}
}

func TestSaveRecording_UnknownCallerSkipsEnrichment(t *testing.T) {
	repo := calls.NewMemoryRepo()
	enq := &fakeEnqueuer{}
	o := newTestOrchestrator(t, repo, fakeDownloader{body: "audio"}, enq)

	o.HandleRecording(context.Background(), telephony.RecordingPayload{RecordingURL: "https://x/y", ConversationUUID: "c-unknown"})

	if _, ok, _ := repo.GetRecording(context.Background(), "c-unknown"); !ok {
		t.Fatalf("expected recording saved")
	}
	if len(enq.jobs) != 0 {
		t.Fatalf("expected enrichment skipped")
	}
}

func TestSaveRecording_QueueFullIsContained(t *testing.T) {
	repo := calls.NewMemoryRepo()
	o := newTestOrchestrator(t, repo, fakeDownloader{body: "audio"}, &fakeEnqueuer{err: enrichment.ErrQueueFull})

	_, _ = o.HandleAnswer(context.Background(), telephony.AnswerParams{UUID: "c1", From: "+81"})
	o.HandleRecording(context.Background(), telephony.RecordingPayload{RecordingURL: "https://x/y", ConversationUUID: "c1"})

	if _, ok, _ := repo.GetRecording(context.Background(), "c1"); !ok {
		t.Fatalf("expected recording saved despite full queue")
	}
}

func TestRecordingLookup(t *testing.T) {
	repo := calls.NewMemoryRepo()
	mgr := NewRecordingManager(repo, nil, nil, ManagerConfig{}, logger.Discard())

	if _, err := mgr.GetRecording(context.Background(), "missing"); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	meta := calls.RecordingMetadata{ID: "r1", CallUUID: "c1", Timestamp: fixedNow, Status: calls.RecordingStatusCompleted}
	_ = mgr.SaveRecording(context.Background(), meta, "c1", "ru", 0)

	rec, err := mgr.GetRecording(context.Background(), "c1")
	if err != nil || rec.ID != "r1" {
		t.Fatalf("unexpected lookup: %+v %v", rec, err)
	}
	list, err := mgr.ListRecordings(context.Background(), time.Time{}, time.Time{})
	if err != nil || len(list) != 1 {
		t.Fatalf("unexpected list: %v %v", list, err)
	}
}
