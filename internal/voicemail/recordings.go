package voicemail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"voicemail-recorder/internal/calls"
	"voicemail-recorder/internal/enrichment"
)

// Downloader fetches platform-hosted recording audio.
type Downloader interface {
	DownloadRecording(ctx context.Context, recordingURL string, dst io.Writer) (int64, error)
}

// Enqueuer hands a job to background enrichment without blocking.
type Enqueuer interface {
	Submit(job enrichment.Job) error
}

type ManagerConfig struct {
	Dir             string
	Format          string
	DownloadTimeout time.Duration
}

// RecordingManager persists recordings, fetches their audio, and triggers
// enrichment. Metadata is always committed before any network work.
type RecordingManager struct {
	store      calls.Storage
	downloader Downloader
	enqueuer   Enqueuer
	cfg        ManagerConfig
	log        *slog.Logger

	Now func() time.Time
}

// NewRecordingManager builds a manager. downloader and enqueuer may be nil:
// a nil downloader skips the audio fetch, a nil enqueuer disables enrichment.
func NewRecordingManager(store calls.Storage, downloader Downloader, enqueuer Enqueuer, cfg ManagerConfig, log *slog.Logger) *RecordingManager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Format == "" {
		cfg.Format = string(calls.FormatMP3)
	}
	if cfg.Dir == "" {
		cfg.Dir = "recordings"
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 60 * time.Second
	}
	return &RecordingManager{
		store:      store,
		downloader: downloader,
		enqueuer:   enqueuer,
		cfg:        cfg,
		log:        log,
		Now:        time.Now,
	}
}

// SaveRecording upserts the recording, then attempts the audio download and
// enrichment hand-off. Only the metadata save can fail the call.
func (m *RecordingManager) SaveRecording(ctx context.Context, meta calls.RecordingMetadata, conversationUUID, recordingUUID string, fileSize int64) error {
	rec := meta.ToRecording(conversationUUID, recordingUUID, fileSize, m.cfg.Format, m.Now().UTC())
	if err := m.store.SaveRecording(ctx, rec); err != nil {
		return fmt.Errorf("save recording: %w", err)
	}

	log := m.log.With("recording_id", rec.ID, "call_uuid", rec.CallUUID)

	path, ok := m.download(ctx, log, rec)
	if ok {
		rec.LocalFilePath = &path
		rec.UpdatedAt = m.Now().UTC()
		if err := m.store.SaveRecording(ctx, rec); err != nil {
			log.Error("recording_local_path_save_failed", "err", err)
		}
	}

	if m.enqueuer == nil {
		return nil
	}
	if !ok {
		log.Info("enrichment_skipped", "reason", "no_local_file")
		return nil
	}

	caller, err := m.resolveCaller(ctx, rec)
	if err != nil {
		log.Error("caller_lookup_failed", "err", err)
		return nil
	}
	if caller == "" {
		log.Info("enrichment_skipped", "reason", "caller_unknown")
		return nil
	}

	err = m.enqueuer.Submit(enrichment.Job{
		RecordingID:  rec.ID,
		CallUUID:     rec.CallUUID,
		AudioPath:    path,
		CallerNumber: caller,
	})
	switch {
	case errors.Is(err, enrichment.ErrQueueFull):
		log.Warn("enrichment_rejected", "reason", "queue_full")
	case err != nil:
		log.Error("enrichment_submit_failed", "err", err)
	default:
		log.Info("enrichment_enqueued")
	}
	return nil
}

// download stores the audio at <dir>/<recording id>.<format>. A failure
// leaves no file behind.
func (m *RecordingManager) download(ctx context.Context, log *slog.Logger, rec calls.Recording) (string, bool) {
	if m.downloader == nil || rec.RecordingURL == "" {
		return "", false
	}

	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		log.Error("recording_download_failed", "err", err)
		return "", false
	}
	path := filepath.Join(m.cfg.Dir, rec.ID+"."+rec.Format)
	tmp := path + ".part"

	f, err := os.Create(tmp)
	if err != nil {
		log.Error("recording_download_failed", "err", err)
		return "", false
	}

	dctx, cancel := context.WithTimeout(ctx, m.cfg.DownloadTimeout)
	defer cancel()

	n, err := m.downloader.DownloadRecording(dctx, rec.RecordingURL, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		log.Error("recording_download_failed", "recording_url", rec.RecordingURL, "err", err)
		return "", false
	}

	log.Info("recording_downloaded", "path", path, "bytes", n)
	return path, true
}

// resolveCaller finds the caller number by call uuid, then by conversation
// uuid, since the recording webhook only reports the latter.
func (m *RecordingManager) resolveCaller(ctx context.Context, rec calls.Recording) (string, error) {
	cl, ok, err := m.store.GetCallLog(ctx, rec.CallUUID)
	if err != nil {
		return "", err
	}
	if ok && cl.CallerNumber != "" {
		return cl.CallerNumber, nil
	}
	if rec.ConversationUUID == "" {
		return "", nil
	}
	cl, ok, err = m.store.GetCallLogByConversation(ctx, rec.ConversationUUID)
	if err != nil || !ok {
		return "", err
	}
	return cl.CallerNumber, nil
}

// GetRecording returns calls.ErrNotFound when nothing is stored for callUUID.
func (m *RecordingManager) GetRecording(ctx context.Context, callUUID string) (calls.Recording, error) {
	rec, ok, err := m.store.GetRecording(ctx, callUUID)
	if err != nil {
		return calls.Recording{}, err
	}
	if !ok {
		return calls.Recording{}, calls.ErrNotFound
	}
	return rec, nil
}

func (m *RecordingManager) ListRecordings(ctx context.Context, start, end time.Time) ([]calls.Recording, error) {
	return m.store.ListRecordings(ctx, start, end)
}
