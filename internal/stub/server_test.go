package stub

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat-go/internal/config"
	"shopchat-go/internal/model"
	"shopchat-go/internal/service"
	"shopchat-go/pkg/backend"
	"shopchat-go/pkg/schedule"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func post(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestResultPendingThenReady(t *testing.T) {
	s := NewServer(2, nil)
	s.newID = func() string { return "result-1" }
	r := s.Router()

	w := post(t, r, "/api/messages/receive", model.SendRequest{SessionID: "s-1", UserID: "u", Message: "hello", LanguageCode: "ko"})
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Equal(t, http.StatusAccepted, get(r, "/api/messages/result/s-1").Code)
	assert.Equal(t, http.StatusAccepted, get(r, "/api/messages/result/s-1").Code)

	w = get(r, "/api/messages/result/s-1")
	require.Equal(t, http.StatusOK, w.Code)
	var p model.ResultPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "result-1", p.ID)
	assert.Equal(t, "hello", p.Message)
	assert.Equal(t, "s-1", p.SessionID)
	assert.Equal(t, model.MessageTypeText, p.MessageType)
	assert.Empty(t, p.Products)
	require.NoError(t, p.Validate())
}

func TestUnknownSessionAndBadRequest(t *testing.T) {
	r := NewServer(0, nil).Router()
	assert.Equal(t, http.StatusNotFound, get(r, "/api/messages/result/nope").Code)
	assert.Equal(t, http.StatusBadRequest, post(t, r, "/api/messages/receive", map[string]string{"message": "x"}).Code)
}

func TestProductQueriesCarryProducts(t *testing.T) {
	r := NewServer(0, []model.Product{{ID: 1, Title: "iPhone"}}).Router()
	post(t, r, "/api/messages/receive", model.SendRequest{SessionID: "s-2", Message: "아이폰 추천해줘"})

	var p model.ResultPayload
	require.NoError(t, json.Unmarshal(get(r, "/api/messages/result/s-2").Body.Bytes(), &p))
	assert.Equal(t, model.MessageTypeShopping, p.MessageType)
	require.Len(t, p.Products, 1)
	require.NotNil(t, p.AnalysisTrace)
	assert.Equal(t, "통과", p.AnalysisTrace.SafetyNetJudgement)
}

func TestEcho(t *testing.T) {
	w := post(t, NewServer(0, nil).Router(), "/chat", map[string]string{"message": "ping"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"ping"}`, w.Body.String())
}

// 真实 HTTP 客户端 + 模拟后端 + 手动调度器的端到端流程。
func TestWorkflowAgainstStub(t *testing.T) {
	srv := httptest.NewServer(NewServer(1, nil).Router())
	defer srv.Close()

	client := backend.NewClient(config.BackendConfig{
		SendURL:        srv.URL + "/api/messages/receive",
		ResultURL:      srv.URL + "/api/messages/result",
		RequestTimeout: 2 * time.Second,
	})
	sched := schedule.NewManual()
	wf := service.NewWorkflow(client, sched, service.WorkflowOptions{
		UserID: "testUser123", LanguageCode: "ko", PollInterval: 2 * time.Second, MaxPollAttempts: 15,
	}, nil)
	defer wf.Close()

	_, err := wf.Submit(context.Background(), "안녕하세요")
	require.NoError(t, err)

	sched.Tick()
	assert.True(t, wf.Busy())
	sched.Tick()

	snap := wf.Snapshot()
	assert.False(t, snap.Busy)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "안녕하세요", snap.Entries[1].Content)
	assert.Equal(t, "bot", snap.Entries[1].Sender)
	assert.Equal(t, 0, sched.Active())
}

func TestWorkflowNotFoundAgainstStub(t *testing.T) {
	srv := httptest.NewServer(NewServer(0, nil).Router())
	defer srv.Close()

	client := backend.NewClient(config.BackendConfig{
		SendURL:   srv.URL + "/api/messages/receive",
		ResultURL: srv.URL + "/api/messages/unknown",
	})
	sched := schedule.NewManual()
	wf := service.NewWorkflow(client, sched, service.WorkflowOptions{PollInterval: time.Second, MaxPollAttempts: 3}, nil)
	defer wf.Close()

	_, err := wf.Submit(context.Background(), "hi")
	require.NoError(t, err)
	sched.Tick()

	snap := wf.Snapshot()
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, model.ErrorNotFound, snap.Entries[1].ErrorKind)
}
