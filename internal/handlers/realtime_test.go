package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/ws"
)

func setupRealtimeRouter() (*gin.Engine, *ws.Hub) {
	gin.SetMode(gin.TestMode)
	hub := ws.NewHub()
	h := NewRealtimeHandler(hub)

	r := gin.New()
	r.GET("/realtime/stats", h.GetStats)
	r.GET("/realtime/online", h.GetOnlineUsers)
	r.POST("/internal/broadcast/message-updated", h.BroadcastMessageUpdated)
	r.POST("/internal/broadcast/message-deleted", h.BroadcastMessageDeleted)
	return r, hub
}

func TestGetStatsEmptyHub(t *testing.T) {
	r, _ := setupRealtimeRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/realtime/stats", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats ws.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Zero(t, stats.Connections)
	assert.Zero(t, stats.OnlineUsers)
	assert.Zero(t, stats.ActiveRooms)
}

func TestGetOnlineUsersEmptyHub(t *testing.T) {
	r, _ := setupRealtimeRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/realtime/online", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Users []ws.OnlineUser `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Users)
}

func TestBroadcastMessageUpdated(t *testing.T) {
	r, _ := setupRealtimeRouter()

	w := httptest.NewRecorder()
	payload := `{"id":7,"chatId":3,"senderId":1,"content":"edited"}`
	req := httptest.NewRequest(http.MethodPost, "/internal/broadcast/message-updated", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestBroadcastMessageUpdatedRejectsMissingIDs(t *testing.T) {
	r, _ := setupRealtimeRouter()

	for _, payload := range []string{
		`{"chatId":3,"content":"edited"}`,
		`{"id":7,"content":"edited"}`,
		`not json`,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/internal/broadcast/message-updated", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "payload: %s", payload)
	}
}

func TestBroadcastMessageDeleted(t *testing.T) {
	r, _ := setupRealtimeRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/broadcast/message-deleted", strings.NewReader(`{"messageId":7,"chatId":3}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestBroadcastMessageDeletedRejectsIncompleteBody(t *testing.T) {
	r, _ := setupRealtimeRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/broadcast/message-deleted", strings.NewReader(`{"messageId":7}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
