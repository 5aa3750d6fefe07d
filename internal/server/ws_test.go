package server

import (
	"context"
	stdjson "encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserd/api/schemas"
	"github.com/xkilldash9x/browserd/internal/browser"
	"github.com/xkilldash9x/browserd/internal/config"
)

func dialWS(t *testing.T, svc BrowserService) (*websocket.Conn, func()) {
	t.Helper()
	s := New(config.NewDefaultConfig(), svc, zap.NewNop())
	ts := httptest.NewServer(s.routes())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func readResponse(t *testing.T, conn *websocket.Conn) wsResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var resp wsResponse
	require.NoError(t, json.Unmarshal(payload, &resp))
	return resp
}

func TestWSNavigate(t *testing.T) {
	conn, cleanup := dialWS(t, &mockService{})
	defer cleanup()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"id":7,"action":"navigate","sessionId":"s1","url":"https://example.com"}`)))

	resp := readResponse(t, conn)
	assert.Equal(t, "7", string(resp.ID), "the request id is echoed verbatim")
	assert.Equal(t, wsNavigate, resp.Action)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
}

func TestWSCreateAndCloseSession(t *testing.T) {
	var created schemas.CreateSessionRequest
	closed := ""
	svc := &mockService{
		createFn: func(ctx context.Context, req schemas.CreateSessionRequest) (*schemas.CreateSessionResult, error) {
			created = req
			return &schemas.CreateSessionResult{Success: true}, nil
		},
		closeFn: func(id string) bool {
			closed = id
			return true
		},
	}
	conn, cleanup := dialWS(t, svc)
	defer cleanup()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"id":"a","action":"create_session","sessionId":"s1","initialUrl":"https://example.com","headless":false}`)))
	resp := readResponse(t, conn)
	assert.True(t, resp.Success)
	assert.Equal(t, "s1", created.SessionID)
	assert.Equal(t, "https://example.com", created.InitialURL)
	require.NotNil(t, created.Headless)
	assert.False(t, *created.Headless)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"id":"b","action":"close_session","sessionId":"s1"}`)))
	resp = readResponse(t, conn)
	assert.True(t, resp.Success)
	assert.Equal(t, "s1", closed)
}

func TestWSPerformAction(t *testing.T) {
	var got schemas.BrowserAction
	svc := &mockService{
		actionFn: func(ctx context.Context, sessionID string, action schemas.BrowserAction) (*schemas.ActionResult, error) {
			got = action
			return &schemas.ActionResult{Success: true}, nil
		},
	}
	conn, cleanup := dialWS(t, svc)
	defer cleanup()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"id":1,"action":"perform_action","sessionId":"s1","actionData":{"type":"type","selector":"#q","text":"golang"}}`)))

	resp := readResponse(t, conn)
	assert.True(t, resp.Success)
	assert.Equal(t, schemas.ActionType, got.Type)
	assert.Equal(t, "golang", got.Text)
}

func TestWSUnknownActionKeepsConnectionOpen(t *testing.T) {
	conn, cleanup := dialWS(t, &mockService{})
	defer cleanup()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"id":42,"action":"teleport"}`)))

	resp := readResponse(t, conn)
	assert.Equal(t, "42", string(resp.ID))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown action")

	// The connection must survive a bogus action.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"id":43,"action":"list_sessions"}`)))
	resp = readResponse(t, conn)
	assert.Equal(t, "43", string(resp.ID))
	assert.True(t, resp.Success)
}

func TestWSMalformedMessage(t *testing.T) {
	conn, cleanup := dialWS(t, &mockService{})
	defer cleanup()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json at all`)))

	// Decode this frame with encoding/json: the package's jsoniter codec
	// unmarshals an explicit JSON null into an empty RawMessage, which would
	// hide the "id":null the server actually puts on the wire.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var resp struct {
		ID      stdjson.RawMessage `json:"id"`
		Success bool               `json:"success"`
		Error   string             `json:"error"`
	}
	require.NoError(t, stdjson.Unmarshal(payload, &resp))
	assert.Equal(t, "null", string(resp.ID), "nothing to echo, so the id is null")
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "invalid message")
}

func TestWSServiceErrorsAreReported(t *testing.T) {
	svc := &mockService{
		clickFn: func(ctx context.Context, sessionID, description string) (*schemas.LinkClickResult, error) {
			return nil, assertableError("no link matched description")
		},
	}
	conn, cleanup := dialWS(t, svc)
	defer cleanup()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"id":"x","action":"find_and_click_link","sessionId":"s1","description":"frank smith"}`)))

	resp := readResponse(t, conn)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "no link matched")
}

func TestWSGetPageInfoAdvisory(t *testing.T) {
	t.Run("extraction failure yields a null result", func(t *testing.T) {
		svc := &mockService{
			pageFn: func(ctx context.Context, sessionID string) (*schemas.PageInfo, error) {
				return nil, assertableError("execution context destroyed")
			},
		}
		conn, cleanup := dialWS(t, svc)
		defer cleanup()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"id":9,"action":"get_page_info","sessionId":"s1"}`)))

		resp := readResponse(t, conn)
		assert.True(t, resp.Success, "a failed snapshot is advisory")
		assert.Equal(t, "9", string(resp.ID))
		assert.Nil(t, resp.Result)
	})

	t.Run("unknown session yields a null result too", func(t *testing.T) {
		svc := &mockService{
			pageFn: func(ctx context.Context, sessionID string) (*schemas.PageInfo, error) {
				return nil, browser.ErrSessionNotFound
			},
		}
		conn, cleanup := dialWS(t, svc)
		defer cleanup()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"id":10,"action":"get_page_info","sessionId":"ghost"}`)))

		resp := readResponse(t, conn)
		assert.True(t, resp.Success)
		assert.Equal(t, "10", string(resp.ID))
		assert.Nil(t, resp.Result)
	})
}

// assertableError keeps error construction out of the test bodies.
type assertableError string

func (e assertableError) Error() string { return string(e) }
