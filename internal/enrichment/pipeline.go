package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"voicemail-recorder/internal/metrics"
)

// Transcriber turns a local audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

type TaskStatus struct {
	State TaskState
	URL   string
}

// Generator submits lyrics for music generation and reports task progress.
type Generator interface {
	Generate(ctx context.Context, lyrics, style string) (taskID string, err error)
	PollStatus(ctx context.Context, taskID string) (TaskStatus, error)
}

// Notifier delivers a text message to a phone number.
type Notifier interface {
	SendSMS(ctx context.Context, to, text string) error
}

// Job is one downloaded recording to enrich.
type Job struct {
	RecordingID  string
	CallUUID     string
	AudioPath    string
	CallerNumber string
}

const (
	MinTranscriptLength = 5
	NotificationPrefix  = "あなたの留守録が音楽になりました！🎵\n"
)

type PipelineConfig struct {
	MusicStyle            string
	GenerationMaxAttempts int
	GenerationRetryDelay  time.Duration
	PollInterval          time.Duration
	PollTimeout           time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	out := c
	if out.GenerationMaxAttempts <= 0 {
		out.GenerationMaxAttempts = 3
	}
	if out.GenerationRetryDelay <= 0 {
		out.GenerationRetryDelay = 30 * time.Second
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 10 * time.Second
	}
	if out.PollTimeout <= 0 {
		out.PollTimeout = 300 * time.Second
	}
	return out
}

// Pipeline runs transcribe → generate → poll → notify for one recording.
// Each stage contains its own failure: it logs and stops the remaining
// stages, and never returns an error to the caller.
type Pipeline struct {
	transcriber Transcriber
	generator   Generator
	notifier    Notifier
	cfg         PipelineConfig
	log         *slog.Logger
}

func NewPipeline(t Transcriber, g Generator, n Notifier, cfg PipelineConfig, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		transcriber: t,
		generator:   g,
		notifier:    n,
		cfg:         cfg.withDefaults(),
		log:         log,
	}
}

// Process returns the generated media URL, or ok=false if any stage
// stopped short of producing one. Notification failure does not change
// the result.
func (p *Pipeline) Process(ctx context.Context, job Job) (url string, ok bool) {
	log := p.log.With("recording_id", job.RecordingID, "call_uuid", job.CallUUID)
	log.Info("enrichment_started", "audio_path", job.AudioPath)

	text, err := p.transcriber.Transcribe(ctx, job.AudioPath)
	if err != nil {
		log.Error("transcription_failed", "err", err)
		metrics.ObserveEnrichmentStage("transcribe", metrics.OutcomeError)
		return "", false
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinTranscriptLength {
		log.Info("transcript_too_short", "length", utf8.RuneCountInString(text))
		metrics.ObserveEnrichmentStage("transcribe", "too_short")
		return "", false
	}
	metrics.ObserveEnrichmentStage("transcribe", metrics.OutcomeOK)
	log.Info("transcription_completed", "length", utf8.RuneCountInString(text))

	taskID, err := p.generate(ctx, log, FormatLyrics(text))
	if err != nil {
		log.Error("music_generation_failed", "err", err)
		metrics.ObserveEnrichmentStage("generate", metrics.OutcomeError)
		return "", false
	}
	metrics.ObserveEnrichmentStage("generate", metrics.OutcomeOK)
	log.Info("music_generation_started", "task_id", taskID)

	url, outcome := p.poll(ctx, log, taskID)
	metrics.ObserveEnrichmentStage("poll", outcome)
	if outcome != metrics.OutcomeOK {
		log.Error("music_generation_incomplete", "task_id", taskID, "outcome", outcome)
		return "", false
	}
	log.Info("music_generation_completed", "task_id", taskID, "url", url)

	if err := p.notifier.SendSMS(ctx, job.CallerNumber, NotificationPrefix+url); err != nil {
		log.Error("sms_send_failed", "caller_number", job.CallerNumber, "err", err)
		metrics.ObserveEnrichmentStage("notify", metrics.OutcomeError)
	} else {
		log.Info("sms_sent", "caller_number", job.CallerNumber)
		metrics.ObserveEnrichmentStage("notify", metrics.OutcomeOK)
	}
	return url, true
}

func (p *Pipeline) generate(ctx context.Context, log *slog.Logger, lyrics string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.GenerationMaxAttempts; attempt++ {
		taskID, err := p.generator.Generate(ctx, lyrics, p.cfg.MusicStyle)
		if err == nil {
			return taskID, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRateLimited) || attempt == p.cfg.GenerationMaxAttempts {
			break
		}
		log.Warn("music_generation_rate_limited",
			"attempt", attempt,
			"max_attempts", p.cfg.GenerationMaxAttempts,
			"retry_in", p.cfg.GenerationRetryDelay.String(),
		)
		if err := sleep(ctx, p.cfg.GenerationRetryDelay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// poll returns the media URL and a stage outcome: ok, failed, timeout or
// cancelled.
func (p *Pipeline) poll(ctx context.Context, log *slog.Logger, taskID string) (string, string) {
	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	defer cancel()

	for {
		st, err := p.generator.PollStatus(pollCtx, taskID)
		switch {
		case err != nil:
			log.Warn("music_status_check_failed", "task_id", taskID, "err", err)
		case st.State == TaskSucceeded && st.URL != "":
			return st.URL, metrics.OutcomeOK
		case st.State == TaskSucceeded, st.State == TaskFailed:
			return "", "failed"
		}

		if err := sleep(pollCtx, p.cfg.PollInterval); err != nil {
			if ctx.Err() != nil {
				return "", "cancelled"
			}
			return "", "timeout"
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
