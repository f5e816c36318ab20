package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldlink/meshlink/pkg/router"
	"github.com/fieldlink/meshlink/pkg/storage"
	"github.com/fieldlink/meshlink/pkg/transport"
)

func newTestServer(t *testing.T) (*Server, *router.Router) {
	t.Helper()

	store, err := storage.NewMessageStore(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := transport.NewMemoryHub()
	gateway := transport.NewMemoryGateway(true)
	node, err := router.New(router.Config{
		AuthorID:          "alice",
		Alias:             "Alice",
		MeshID:            "NOD1",
		Broadcast:         hub.Attach(),
		Online:            gateway,
		History:           store,
		HeartbeatInterval: -1,
	})
	require.NoError(t, err)
	require.NoError(t, node.Start())
	t.Cleanup(node.Stop)

	return NewServer(node, store, nil), node
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJoinAndListChannels(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, "POST", "/api/v1/channels/join", gin.H{"channel_id": "field-ops"})
	require.Equal(t, http.StatusOK, w.Code)

	var joined struct {
		ChannelID   string `json:"channel_id"`
		ChannelHash uint16 `json:"channel_hash"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &joined))
	assert.Equal(t, "field-ops", joined.ChannelID)
	assert.NotZero(t, joined.ChannelHash)

	w = doJSON(t, server, "GET", "/api/v1/channels", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Channels []string `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []string{"field-ops"}, list.Channels)
}

func TestJoinChannelValidation(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, "POST", "/api/v1/channels/join", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessage(t *testing.T) {
	server, _ := newTestServer(t)

	doJSON(t, server, "POST", "/api/v1/channels/join", gin.H{"channel_id": "field-ops"})

	w := doJSON(t, server, "POST", "/api/v1/messages", gin.H{
		"channel_id": "field-ops",
		"content":    "rally at 5",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted struct {
		MessageID string `json:"message_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.NotEmpty(t, accepted.MessageID)

	// the message lands in history and is listable
	assert.Eventually(t, func() bool {
		w := doJSON(t, server, "GET", "/api/v1/messages/field-ops", nil)
		if w.Code != http.StatusOK {
			return false
		}
		var listed struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
			return false
		}
		return listed.Count == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSendToUnjoinedChannelRejected(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, "POST", "/api/v1/messages", gin.H{
		"channel_id": "never-joined",
		"content":    "hi",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusEndpoint(t *testing.T) {
	server, node := newTestServer(t)
	node.JoinChannel("field-ops")

	w := doJSON(t, server, "GET", "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status router.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "alice", status.AuthorID)
	assert.True(t, status.Online)
	assert.Equal(t, []string{"field-ops"}, status.Channels)
}

func TestLeaveChannel(t *testing.T) {
	server, node := newTestServer(t)
	node.JoinChannel("field-ops")

	w := doJSON(t, server, "POST", "/api/v1/channels/leave", gin.H{"channel_id": "field-ops"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, node.Channels())
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

