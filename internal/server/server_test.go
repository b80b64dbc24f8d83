package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/micromatch/internal/config"
	"github.com/agenthands/micromatch/internal/core/model"
	"github.com/agenthands/micromatch/internal/core/notify"
	"github.com/agenthands/micromatch/internal/runlock"
	"github.com/agenthands/micromatch/internal/store"
)

type MockRunner struct {
	Result *model.Result
	Err    error
	Calls  int

	CtxErr      error
	HasDeadline bool
}

func (m *MockRunner) RunMatchingCycle(ctx context.Context) (*model.Result, error) {
	m.Calls++
	m.CtxErr = ctx.Err()
	_, m.HasDeadline = ctx.Deadline()
	return m.Result, m.Err
}

type MockNames map[string]string

func (m MockNames) UserName(ctx context.Context, userID string) string {
	if name, ok := m[userID]; ok {
		return name
	}
	return userID
}

type testServer struct {
	*Server
	runner    *MockRunner
	store     *store.MemoryStore
	messenger *notify.MockMessenger
	router    *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.CronToken = "secret"

	st := store.NewMemoryStore()
	messenger := notify.NewMockMessenger()
	runner := &MockRunner{Result: &model.Result{Created: []model.Unit{}, Unmatched: []string{}}}

	s := &Server{
		Matcher:  runner,
		Store:    st,
		Notifier: notify.New(messenger),
		Locker:   runlock.NewLocalLocker(),
		Names:    MockNames{"U1": "Ada"},
		Config:   cfg,
	}
	return &testServer{Server: s, runner: runner, store: st, messenger: messenger, router: s.SetupRouter()}
}

func (ts *testServer) do(method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func cronHeader() http.Header {
	return http.Header{"X-Cron-Token": []string{"secret"}}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRunMatch_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/match/run", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPost, "/match/run", nil, http.Header{"X-Cron-Token": []string{"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, ts.runner.Calls)

	w = ts.do(http.MethodPost, "/match/run?token=secret", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ts.runner.Calls)
}

func TestRunMatch_NoTokenConfigured(t *testing.T) {
	ts := newTestServer(t)
	ts.Config.Server.CronToken = ""

	w := ts.do(http.MethodPost, "/match/run", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRunMatch_NotifiesUnmatched(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.Result = &model.Result{
		CycleID: "c1",
		Created: []model.Unit{
			{Kind: model.KindGroup, Topic: "hiking", Members: []string{"A", "B", "C"}, RoomID: "R1"},
		},
		Unmatched: []string{"D"},
	}

	w := ts.do(http.MethodPost, "/match/run", nil, cronHeader())
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Result   model.Result `json:"result"`
		Notified int          `json:"notified"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "c1", body.Result.CycleID)
	assert.Equal(t, 1, body.Notified)
	assert.Len(t, ts.messenger.Offers["D"], 1)
}

func TestRunMatch_NotifyDisabled(t *testing.T) {
	ts := newTestServer(t)
	ts.Config.Matching.NotifyUnmatched = false
	ts.runner.Result = &model.Result{Created: []model.Unit{}, Unmatched: []string{"D"}}

	w := ts.do(http.MethodPost, "/match/run", nil, cronHeader())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, ts.messenger.Texts)
	assert.Empty(t, ts.messenger.Offers)
}

func TestRunMatch_AlreadyRunning(t *testing.T) {
	ts := newTestServer(t)

	release, err := ts.Locker.Acquire(context.Background(), cycleLockName)
	require.NoError(t, err)
	defer release()

	w := ts.do(http.MethodPost, "/match/run", nil, cronHeader())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, ts.runner.Calls)
}

func TestRunMatch_OutlivesCallerDisconnect(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/match/run", nil).WithContext(ctx)
	req.Header.Set("X-Cron-Token", "secret")
	cancel()

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, 1, ts.runner.Calls)
	assert.NoError(t, ts.runner.CtxErr)
	assert.True(t, ts.runner.HasDeadline)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRunMatch_CycleError(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.Result = nil
	ts.runner.Err = errors.New("store down")

	w := ts.do(http.MethodPost, "/match/run", nil, cronHeader())
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// The lock is released after a failed run.
	ts.runner.Err = nil
	ts.runner.Result = &model.Result{}
	w = ts.do(http.MethodPost, "/match/run", nil, cronHeader())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSaveResponse(t *testing.T) {
	ts := newTestServer(t)

	body := []byte(`{"participant_id":"U1","topics":[" Hiking ","", "Chess"],"preference":"1:1"}`)
	w := ts.do(http.MethodPost, "/responses", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	responses, err := ts.store.GetAllResponses(context.Background())
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, []string{"hiking", "chess"}, responses[0].Topics)
	assert.Equal(t, model.PreferencePairwise, responses[0].Preference)

	p, err := ts.store.GetParticipant(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResponded, p.Status)
}

func TestSaveResponse_Invalid(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{
		`{"topics":["hiking"]}`,
		`{"participant_id":"U1","topics":[]}`,
		`{"participant_id":"U1","topics":[" ", ""]}`,
		`not json`,
	} {
		w := ts.do(http.MethodPost, "/responses", []byte(body), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestSaveResponse_UsesStoredPreference(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.store.SaveParticipant(ctx, model.Participant{
		ID: "U2", Consent: true, Preference: model.PreferencePairwise,
	}))

	w := ts.do(http.MethodPost, "/responses", []byte(`{"participant_id":"U2","topics":["chess"]}`), nil)
	require.Equal(t, http.StatusOK, w.Code)

	responses, err := ts.store.GetAllResponses(ctx)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, model.PreferencePairwise, responses[0].Preference)
}

func TestWeekUnmatched(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.AddUnmatchedForWeek(context.Background(), "2026-10-12", []string{"A", "B"}))

	w := ts.do(http.MethodGet, "/weeks/2026-10-12/unmatched", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Week         string   `json:"week"`
		Participants []string `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "2026-10-12", body.Week)
	assert.ElementsMatch(t, []string{"A", "B"}, body.Participants)

	w = ts.do(http.MethodGet, "/weeks/last-week/unmatched", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPromptInterests(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.store.SaveParticipant(ctx, model.Participant{ID: "A", Consent: true}))
	require.NoError(t, ts.store.SaveParticipant(ctx, model.Participant{ID: "B", Consent: false}))

	w := ts.do(http.MethodPost, "/prompts/interests", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPost, "/prompts/interests", nil, cronHeader())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, ts.messenger.Texts["A"], 1)
	assert.Empty(t, ts.messenger.Texts["B"])
}

func TestSlackEvents_Challenge(t *testing.T) {
	ts := newTestServer(t)

	body := []byte(`{"type":"url_verification","token":"t","challenge":"abc123"}`)
	w := ts.do(http.MethodPost, "/slack/events", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc123", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func directMessage(user, text string) []byte {
	return []byte(`{"type":"event_callback","team_id":"T1","api_app_id":"A1","event":{"type":"message","channel_type":"im","channel":"D1","user":"` +
		user + `","text":"` + text + `","ts":"1.0"}}`)
}

func TestSlackEvents_DirectMessageRegistersParticipant(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	w := ts.do(http.MethodPost, "/slack/events", directMessage("U1", "Hiking, chess"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	responses, err := ts.store.GetAllResponses(ctx)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, []string{"hiking", "chess"}, responses[0].Topics)
	assert.Equal(t, model.PreferenceGroup, responses[0].Preference)

	p, err := ts.store.GetParticipant(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.Name)
	assert.True(t, p.Consent)
	assert.Equal(t, model.StatusResponded, p.Status)
}

func TestSlackEvents_IgnoresEmptyMessage(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/slack/events", directMessage("U1", " , "), nil)
	require.Equal(t, http.StatusOK, w.Code)

	responses, err := ts.store.GetAllResponses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestSlackEvents_Signature(t *testing.T) {
	ts := newTestServer(t)
	ts.Config.Slack.SigningSecret = "signing"

	body := directMessage("U1", "chess")
	w := ts.do(http.MethodPost, "/slack/events", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte("signing"))
	mac.Write([]byte("v0:" + stamp + ":" + string(body)))
	header := http.Header{
		"X-Slack-Request-Timestamp": []string{stamp},
		"X-Slack-Signature":         []string{"v0=" + hex.EncodeToString(mac.Sum(nil))},
	}
	w = ts.do(http.MethodPost, "/slack/events", body, header)
	assert.Equal(t, http.StatusOK, w.Code)
}
