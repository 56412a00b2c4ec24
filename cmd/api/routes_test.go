package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voicemail-recorder/internal/calls"
	"voicemail-recorder/internal/config"
	"voicemail-recorder/internal/telephony"
	"voicemail-recorder/internal/voicemail"
	"voicemail-recorder/pkg/logger"

	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T) (*gin.Engine, *calls.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var cfg config.Config
	cfg.Greeting = config.GreetingConfig{Message: "hello", Language: "ja-JP"}
	cfg.Recording = config.RecordingConfig{MaxDuration: 60, Format: "mp3", EndOnSilence: 3, Dir: t.TempDir(), DownloadTimeout: time.Second}
	cfg.Webhooks.RecordingURL = "https://example.test/webhooks/recording"

	repo := calls.NewMemoryRepo()
	log := logger.Discard()
	mgr := voicemail.NewRecordingManager(repo, nil, nil, voicemail.ManagerConfig{Dir: cfg.Recording.Dir}, log)
	o := voicemail.NewOrchestrator(repo, telephony.NewNCCOBuilder(cfg), mgr, log)
	return newRouter(log, telephony.WebhookHandler{Hooks: o, Recordings: mgr}), repo
}

func TestRouter_PublicEndpoints(t *testing.T) {
	r, _ := newTestServer(t)

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/webhooks/answer?uuid=u1", "", http.StatusOK},
		{http.MethodPost, "/webhooks/recording", `{"conversation_uuid":"c1"}`, http.StatusOK},
		{http.MethodGet, "/webhooks/event?uuid=u1&status=ringing", "", http.StatusOK},
		{http.MethodPost, "/webhooks/event", `{"uuid":"u1","status":"completed"}`, http.StatusOK},
		{http.MethodGet, "/recordings", "", http.StatusOK},
		{http.MethodGet, "/recordings/c1", "", http.StatusOK},
		{http.MethodGet, "/recordings/none", "", http.StatusNotFound},
		{http.MethodGet, "/nowhere", "", http.StatusNotFound},
		{http.MethodPost, "/webhooks/answer", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
		if w.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.want, w.Code, w.Body.String())
		}
		if w.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s %s: expected request id header", tc.method, tc.path)
		}
	}
}

func TestRouter_PanicBecomesInternalError(t *testing.T) {
	r, _ := newTestServer(t)
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), `"internal_error"`) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}
