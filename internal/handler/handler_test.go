package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/donaman/internal/generation"
	"github.com/hitoshi/donaman/internal/logger"
	"github.com/hitoshi/donaman/internal/middleware"
	"github.com/hitoshi/donaman/internal/model"
)

// fakePoller はPollerServiceのテスト用実装。
type fakePoller struct {
	startErr  error
	started   bool
	stopped   bool
	lastToken string
	stats     model.PollerStats
	donations []model.Donation
}

func (f *fakePoller) Start(token string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	f.lastToken = token
	return nil
}

func (f *fakePoller) Stop() { f.stopped = true }

func (f *fakePoller) Stats() model.PollerStats { return f.stats }

func (f *fakePoller) RecentDonations() []model.Donation { return f.donations }

// fakeSettings はSettingsServiceのテスト用実装。
type fakeSettings struct {
	threshold float64
	token     string
	prompt    string
}

func (f *fakeSettings) Threshold() float64             { return f.threshold }
func (f *fakeSettings) SetThreshold(rub float64)       { f.threshold = rub }
func (f *fakeSettings) AccessToken() string            { return f.token }
func (f *fakeSettings) SetAccessToken(token string)    { f.token = token }
func (f *fakeSettings) ClearAccessToken()              { f.token = "" }
func (f *fakeSettings) SystemPrompt() string           { return f.prompt }
func (f *fakeSettings) SetSystemPrompt(prompt string)  { f.prompt = prompt }

// fakeGeneration はGenerationServiceのテスト用実装。
type fakeGeneration struct {
	startErr   error
	job        model.GenerationJob
	lastPrompt string
}

func (f *fakeGeneration) StartManual(prompt string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.lastPrompt = prompt
	return nil
}

func (f *fakeGeneration) Status() model.GenerationJob { return f.job }

// fakeVideos はVideoServiceのテスト用実装。
type fakeVideos struct {
	videos     []model.VideoInfo
	resolveErr error
	deleteErr  error
	path       string
	deleted    []string
}

func (f *fakeVideos) List() ([]model.VideoInfo, error) { return f.videos, nil }

func (f *fakeVideos) Latest() (model.VideoInfo, bool, error) {
	if len(f.videos) == 0 {
		return model.VideoInfo{}, false, nil
	}
	return f.videos[0], true, nil
}

func (f *fakeVideos) Resolve(filename string) (string, error) {
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return f.path, nil
}

func (f *fakeVideos) Delete(filename string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, filename)
	return nil
}

// fakePlayback はPlaybackServiceのテスト用実装。
type fakePlayback struct {
	slot      model.PlaybackSlot
	requestID string
	requested []string
}

func (f *fakePlayback) RequestPlay(videoRef string) string {
	f.requested = append(f.requested, videoRef)
	return f.requestID
}

func (f *fakePlayback) ReadLatest() model.PlaybackSlot { return f.slot }

// fakeFeed はFeedProbeのテスト用実装。
type fakeFeed struct {
	donations []model.Donation
	err       error
}

func (f *fakeFeed) FetchRecent(ctx context.Context) ([]model.Donation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.donations, nil
}

// fakeConverter はThresholdConverterのテスト用実装。
type fakeConverter struct {
	rate float64
	err  error
}

func (f *fakeConverter) Convert(ctx context.Context, amount float64, from string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if from == "RUB" {
		return amount, nil
	}
	return amount * f.rate, nil
}

// fakeLogs はLogSourceのテスト用実装。
type fakeLogs struct {
	entries []logger.Entry
}

func (f *fakeLogs) Recent(limit int) []logger.Entry {
	if limit > 0 && limit < len(f.entries) {
		return f.entries[:limit]
	}
	return f.entries
}

type testDeps struct {
	poller     *fakePoller
	feed       *fakeFeed
	settings   *fakeSettings
	converter  *fakeConverter
	generation *fakeGeneration
	videos     *fakeVideos
	playback   *fakePlayback
	logs       *fakeLogs
}

func newTestRouter(t *testing.T, d *testDeps) http.Handler {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(6000, 6000), logger)
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Logger:            logger,
		CORSAllowedOrigin: "*",
		RateLimiter:       rl,
		Poller:            d.poller,
		Feed:              d.feed,
		Settings:          d.settings,
		Converter:         d.converter,
		Generation:        d.generation,
		Videos:            d.videos,
		Playback:          d.playback,
		Logs:              d.logs,
	})
}

func defaultDeps() *testDeps {
	return &testDeps{
		poller:     &fakePoller{},
		feed:       &fakeFeed{},
		settings:   &fakeSettings{threshold: 1000},
		converter:  &fakeConverter{rate: 90},
		generation: &fakeGeneration{job: model.GenerationJob{State: model.JobStateIdle}},
		videos:     &fakeVideos{},
		playback:   &fakePlayback{requestID: "req-1"},
		logs:       &fakeLogs{},
	}
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("response body is not JSON: %v (body=%s)", err, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, defaultDeps())

	w := doJSON(t, router, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestPollingStart(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/polling/start", `{"token": "tok-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}
	if !deps.poller.started || deps.poller.lastToken != "tok-1" {
		t.Errorf("poller.Start not called with token: %+v", deps.poller)
	}

	var body map[string]string
	decodeBody(t, w, &body)
	if body["state"] != "running" {
		t.Errorf("state = %q, want running", body["state"])
	}
}

func TestPollingStart_EmptyBodyAllowed(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/polling/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}
}

func TestPollingStart_MissingToken(t *testing.T) {
	deps := defaultDeps()
	deps.poller.startErr = model.ErrMissingToken
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/polling/start", "{}")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var body middleware.ErrorResponseBody
	decodeBody(t, w, &body)
	if body.Code != "MISSING_TOKEN" {
		t.Errorf("code = %q, want MISSING_TOKEN", body.Code)
	}
}

func TestPollingStart_AlreadyRunning(t *testing.T) {
	deps := defaultDeps()
	deps.poller.startErr = model.ErrAlreadyRunning
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/polling/start", "{}")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestPollingStopAndStatus(t *testing.T) {
	deps := defaultDeps()
	now := time.Now()
	deps.poller.stats = model.PollerStats{
		State:              model.PollerStateRunning,
		HasToken:           true,
		DonationsProcessed: 7,
		LastPollAt:         &now,
	}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/polling/stop", "")
	if w.Code != http.StatusOK || !deps.poller.stopped {
		t.Errorf("stop failed: status=%d stopped=%v", w.Code, deps.poller.stopped)
	}

	w = doJSON(t, router, http.MethodGet, "/api/polling/status", "")
	var stats model.PollerStats
	decodeBody(t, w, &stats)
	if stats.DonationsProcessed != 7 {
		t.Errorf("DonationsProcessed = %d, want 7", stats.DonationsProcessed)
	}
}

func TestListDonations(t *testing.T) {
	deps := defaultDeps()
	deps.poller.donations = []model.Donation{
		{ID: "2", Username: "bob", Amount: 500, Currency: "RUB"},
		{ID: "1", Username: "alice", Amount: 20, Currency: "USD"},
	}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/api/donations", "")
	var body struct {
		Donations []donationResponse `json:"donations"`
	}
	decodeBody(t, w, &body)
	if len(body.Donations) != 2 {
		t.Fatalf("len(donations) = %d, want 2", len(body.Donations))
	}
	if body.Donations[0].ID != "2" {
		t.Errorf("first donation ID = %q, want 2 (newest first)", body.Donations[0].ID)
	}
}

func TestListDonations_Limit(t *testing.T) {
	deps := defaultDeps()
	deps.poller.donations = []model.Donation{
		{ID: "3"}, {ID: "2"}, {ID: "1"},
	}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/api/donations?limit=2", "")
	var body struct {
		Donations []donationResponse `json:"donations"`
	}
	decodeBody(t, w, &body)
	if len(body.Donations) != 2 {
		t.Fatalf("len(donations) = %d, want 2", len(body.Donations))
	}
	if body.Donations[0].ID != "3" {
		t.Errorf("first donation ID = %q, want 3", body.Donations[0].ID)
	}
}

func TestTestConnection(t *testing.T) {
	deps := defaultDeps()
	deps.feed.donations = []model.Donation{{ID: "1"}, {ID: "2"}}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/test-connection", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}

	var body map[string]any
	decodeBody(t, w, &body)
	if body["ok"] != true {
		t.Error("ok should be true")
	}
	if body["donations_visible"] != float64(2) {
		t.Errorf("donations_visible = %v, want 2", body["donations_visible"])
	}
}

func TestTestConnection_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "missing token", err: model.ErrMissingToken, wantStatus: http.StatusBadRequest},
		{name: "unauthorized", err: model.ErrUnauthorized, wantStatus: http.StatusUnauthorized},
		{name: "unavailable", err: model.ErrUnavailable, wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := defaultDeps()
			deps.feed.err = tt.err
			router := newTestRouter(t, deps)

			w := doJSON(t, router, http.MethodPost, "/api/test-connection", "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestLogs_List(t *testing.T) {
	deps := defaultDeps()
	deps.logs.entries = []logger.Entry{
		{Level: "ERROR", Message: "newest"},
		{Level: "INFO", Message: "older"},
	}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/api/logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Logs []logger.Entry `json:"logs"`
	}
	decodeBody(t, w, &body)
	if len(body.Logs) != 2 {
		t.Fatalf("len(logs) = %d, want 2", len(body.Logs))
	}
	if body.Logs[0].Message != "newest" {
		t.Errorf("first log = %q, want newest", body.Logs[0].Message)
	}
}

func TestLogs_Limit(t *testing.T) {
	deps := defaultDeps()
	deps.logs.entries = []logger.Entry{
		{Message: "a"}, {Message: "b"}, {Message: "c"},
	}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/api/logs?limit=1", "")
	var body struct {
		Logs []logger.Entry `json:"logs"`
	}
	decodeBody(t, w, &body)
	if len(body.Logs) != 1 {
		t.Fatalf("len(logs) = %d, want 1", len(body.Logs))
	}
}

func TestThreshold_GetAndUpdate(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/api/threshold", "")
	var body map[string]float64
	decodeBody(t, w, &body)
	if body["threshold_rub"] != 1000 {
		t.Errorf("threshold_rub = %v, want 1000", body["threshold_rub"])
	}

	w = doJSON(t, router, http.MethodPost, "/api/threshold", `{"threshold_rub": 2500}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if deps.settings.threshold != 2500 {
		t.Errorf("threshold = %v, want 2500", deps.settings.threshold)
	}
}

func TestThreshold_Invalid(t *testing.T) {
	router := newTestRouter(t, defaultDeps())

	tests := []struct {
		name string
		body string
	}{
		{name: "negative", body: `{"threshold_rub": -10}`},
		{name: "missing field", body: `{}`},
		{name: "not json", body: `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/threshold", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestThreshold_UpdateByCurrency(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	// 50 USD × レート90 = 4500 RUB
	w := doJSON(t, router, http.MethodPost, "/api/threshold", `{"amount": 50, "currency": "USD"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}
	if deps.settings.threshold != 4500 {
		t.Errorf("threshold = %v, want 4500", deps.settings.threshold)
	}
}

func TestThreshold_UpdateByCurrency_RateUnavailable(t *testing.T) {
	deps := defaultDeps()
	deps.converter.err = model.ErrRateUnavailable
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/threshold", `{"amount": 50, "currency": "XYZ"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}

	var body middleware.ErrorResponseBody
	decodeBody(t, w, &body)
	if body.Code != "RATE_UNAVAILABLE" {
		t.Errorf("code = %q, want RATE_UNAVAILABLE", body.Code)
	}
}

func TestThreshold_UpdateByCurrency_MissingCurrency(t *testing.T) {
	router := newTestRouter(t, defaultDeps())

	w := doJSON(t, router, http.MethodPost, "/api/threshold", `{"amount": 50}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAccessToken_UpdateAndDelete(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/access-token", `{"token": "tok-9"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if deps.settings.token != "tok-9" {
		t.Errorf("token = %q, want tok-9", deps.settings.token)
	}

	w = doJSON(t, router, http.MethodPost, "/api/access-token", `{"token": ""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty token status = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/access-token", "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", w.Code)
	}
	if deps.settings.token != "" {
		t.Errorf("token should be cleared, got %q", deps.settings.token)
	}
}

func TestAccessToken_AutoStartsAndStopsPolling(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/access-token", `{"token": "tok-9"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}
	if !deps.poller.started {
		t.Error("saving a token should start polling")
	}

	w = doJSON(t, router, http.MethodDelete, "/api/access-token", "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", w.Code)
	}
	if !deps.poller.stopped {
		t.Error("clearing the token should stop polling")
	}
}

func TestAccessToken_UpdateWhilePollingRunning(t *testing.T) {
	deps := defaultDeps()
	deps.poller.startErr = model.ErrAlreadyRunning
	router := newTestRouter(t, deps)

	// 実行中のStartはAlreadyRunningを返すが、保存自体は成功として扱う
	w := doJSON(t, router, http.MethodPost, "/api/access-token", `{"token": "tok-2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}
	if deps.settings.token != "tok-2" {
		t.Errorf("token = %q, want tok-2", deps.settings.token)
	}
}

func TestSettings_Get(t *testing.T) {
	deps := defaultDeps()
	deps.settings.token = "secret-token"
	deps.settings.prompt = "pixel art"
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/api/settings", "")
	var body map[string]any
	decodeBody(t, w, &body)

	if body["has_access_token"] != true {
		t.Error("has_access_token should be true")
	}
	if body["system_prompt"] != "pixel art" {
		t.Errorf("system_prompt = %v", body["system_prompt"])
	}
	// トークンの値そのものは返さない
	if strings.Contains(w.Body.String(), "secret-token") {
		t.Error("access token value must not appear in the response")
	}
}

func TestSystemPrompt_UpdateAndGet(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/system-prompt", `{"prompt": "cinematic"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/system-prompt", "")
	var body map[string]string
	decodeBody(t, w, &body)
	if body["prompt"] != "cinematic" {
		t.Errorf("prompt = %q, want cinematic", body["prompt"])
	}
}

func TestGenerate_Accepted(t *testing.T) {
	deps := defaultDeps()
	deps.generation.job = model.GenerationJob{State: model.JobStateSubmitting}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/generate", `{"prompt": "a cat surfing"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body=%s)", w.Code, w.Body.String())
	}
	if deps.generation.lastPrompt != "a cat surfing" {
		t.Errorf("prompt = %q", deps.generation.lastPrompt)
	}
}

func TestGenerate_Busy(t *testing.T) {
	deps := defaultDeps()
	deps.generation.startErr = model.ErrBusy
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/generate", `{"prompt": "x"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}

	var body middleware.ErrorResponseBody
	decodeBody(t, w, &body)
	if body.Code != "GENERATION_BUSY" {
		t.Errorf("code = %q, want GENERATION_BUSY", body.Code)
	}
}

func TestGenerate_InvalidPrompt(t *testing.T) {
	deps := defaultDeps()
	deps.generation.startErr = model.NewInvalidPromptError()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/generate", `{"prompt": ""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGenerationStatus_IncludesProgress(t *testing.T) {
	deps := defaultDeps()
	deps.generation.job = model.GenerationJob{State: model.JobStateGenerating, JobID: "gen-1"}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/api/generation-status", "")
	var body map[string]any
	decodeBody(t, w, &body)
	if body["state"] != "generating" {
		t.Errorf("state = %v, want generating", body["state"])
	}
	if body["progress"] != float64(70) {
		t.Errorf("progress = %v, want 70", body["progress"])
	}
}

func TestVideos_List(t *testing.T) {
	deps := defaultDeps()
	deps.videos.videos = []model.VideoInfo{
		{Filename: "celebration_2_1.mp4", Size: 10},
		{Filename: "celebration_1_1.mp4", Size: 20},
	}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/api/videos", "")
	var body struct {
		Videos []model.VideoInfo `json:"videos"`
	}
	decodeBody(t, w, &body)
	if len(body.Videos) != 2 {
		t.Fatalf("len(videos) = %d, want 2", len(body.Videos))
	}
}

func TestVideos_Delete(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodDelete, "/api/videos/celebration_1_1.mp4", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if len(deps.videos.deleted) != 1 || deps.videos.deleted[0] != "celebration_1_1.mp4" {
		t.Errorf("deleted = %v", deps.videos.deleted)
	}
}

func TestVideos_DeleteErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid filename", err: generation.ErrInvalidFilename, wantStatus: http.StatusBadRequest},
		{name: "not found", err: generation.ErrVideoNotFound, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := defaultDeps()
			deps.videos.deleteErr = tt.err
			router := newTestRouter(t, deps)

			w := doJSON(t, router, http.MethodDelete, "/api/videos/x.mp4", "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestPlay_ReturnsRequestID(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/play", `{"filename": "celebration_1_1.mp4"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}

	var body map[string]string
	decodeBody(t, w, &body)
	if body["request_id"] != "req-1" {
		t.Errorf("request_id = %q, want req-1", body["request_id"])
	}
	if len(deps.playback.requested) != 1 || deps.playback.requested[0] != "celebration_1_1.mp4" {
		t.Errorf("requested = %v", deps.playback.requested)
	}
}

func TestPlay_MissingVideo(t *testing.T) {
	deps := defaultDeps()
	deps.videos.resolveErr = generation.ErrVideoNotFound
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/play", `{"filename": "nope.mp4"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if len(deps.playback.requested) != 0 {
		t.Error("play request should not be created for a missing video")
	}
}

func TestWidgetLatest_DeliversPlayRequest(t *testing.T) {
	deps := defaultDeps()
	deps.playback.slot = model.PlaybackSlot{
		VideoRef:  "celebration_1_1.mp4",
		Requested: true,
		RequestID: "req-7",
	}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/api/widget/latest-video", "")
	var body widgetLatestResponse
	decodeBody(t, w, &body)
	if !body.PlayRequested {
		t.Error("play_requested should be true")
	}
	if body.RequestID != "req-7" {
		t.Errorf("request_id = %q, want req-7", body.RequestID)
	}
	if body.VideoURL != "/videos/celebration_1_1.mp4" {
		t.Errorf("video_url = %q", body.VideoURL)
	}
}

func TestWidgetLatest_FallsBackToDisk(t *testing.T) {
	deps := defaultDeps()
	deps.videos.videos = []model.VideoInfo{{Filename: "celebration_9_1.mp4"}}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/api/widget/latest-video", "")
	var body widgetLatestResponse
	decodeBody(t, w, &body)
	if body.Filename != "celebration_9_1.mp4" {
		t.Errorf("filename = %q, want celebration_9_1.mp4", body.Filename)
	}
	if body.PlayRequested {
		t.Error("disk fallback should not carry a play request")
	}
}

func TestServeFile_ReturnsContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "celebration_1_1.mp4")
	if err := os.WriteFile(path, []byte("mp4-data"), 0o644); err != nil {
		t.Fatal(err)
	}

	deps := defaultDeps()
	deps.videos.path = path
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/videos/celebration_1_1.mp4", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "mp4-data" {
		t.Errorf("body = %q, want mp4-data", w.Body.String())
	}
}
