package calls

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"voicemail-recorder/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a throwaway Postgres and applies migrations.
// Skipped unless TEST_INTEGRATION is set.
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("voicemail_test"),
		postgres.WithUsername("voicemail"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	if err := Migrate(dsn, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := utils.OpenPostgres(ctx, "pgx", dsn, utils.PostgresPoolConfig{})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgresRepo_RecordingUpsertAndList(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPostgresRepo(db)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	rec := Recording{
		ID: "r1", CallUUID: "c1", ConversationUUID: "c1", RecordingURL: "https://x/y",
		RecordingUUID: "ru1", Duration: 10, Format: "mp3", Status: RecordingStatusCompleted,
		CreatedAt: base, UpdatedAt: base,
	}
	if err := repo.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec.Duration = 42
	path := "/tmp/r1.mp3"
	rec.LocalFilePath = &path
	if err := repo.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, found, err := repo.GetRecording(ctx, "c1")
	if err != nil || !found {
		t.Fatalf("get: %v %v", found, err)
	}
	if got.Duration != 42 || got.LocalFilePath == nil || *got.LocalFilePath != path {
		t.Fatalf("unexpected recording: %+v", got)
	}

	for i, id := range []string{"r2", "r3"} {
		ts := base.Add(time.Duration(i+1) * time.Hour)
		if err := repo.SaveRecording(ctx, Recording{ID: id, CallUUID: id, ConversationUUID: id, Format: "mp3", Status: RecordingStatusCompleted, CreatedAt: ts, UpdatedAt: ts}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	list, err := repo.ListRecordings(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "r2" || list[1].ID != "r1" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestPostgresRepo_RecordingLargeDuration(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPostgresRepo(db)
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	const duration = 3_000_000_000
	rec := Recording{
		ID: "big", CallUUID: "c-big", ConversationUUID: "c-big", RecordingURL: "https://x/y",
		Duration: duration, FileSize: 5_000_000_000, Format: "mp3", Status: RecordingStatusCompleted,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := repo.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, found, err := repo.GetRecording(ctx, "c-big")
	if err != nil || !found {
		t.Fatalf("get: %v %v", found, err)
	}
	if got.Duration != duration || got.FileSize != 5_000_000_000 {
		t.Fatalf("unexpected sizes: duration=%d file_size=%d", got.Duration, got.FileSize)
	}
}

func TestPostgresRepo_CallLogLifecycle(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPostgresRepo(db)
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	ok, err := repo.UpdateCallLogStatus(ctx, "missing", "completed", &now)
	if err != nil || ok {
		t.Fatalf("expected false for unknown call, got %v %v", ok, err)
	}

	c := CallLog{ID: "l1", CallUUID: "u1", ConversationUUID: "c1", CallerNumber: "+819011112222", CalledNumber: "+813033334444", Status: StatusAnswered, Direction: DirectionInbound, StartedAt: now, CreatedAt: now}
	if err := repo.SaveCallLog(ctx, c); err != nil {
		t.Fatalf("save call log: %v", err)
	}

	end := now.Add(5 * time.Minute)
	ok, err = repo.UpdateCallLogStatus(ctx, "u1", "completed", &end)
	if err != nil || !ok {
		t.Fatalf("update: %v %v", ok, err)
	}

	got, found, err := repo.GetCallLogByConversation(ctx, "c1")
	if err != nil || !found {
		t.Fatalf("get by conversation: %v %v", found, err)
	}
	if got.Status != "completed" || got.EndedAt == nil || !got.EndedAt.Equal(end) {
		t.Fatalf("unexpected call log: %+v", got)
	}
}
