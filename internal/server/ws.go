package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserd/api/schemas"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 1024 // 1MB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The channel is bound to loopback/infra networks; origin enforcement
		// belongs to the deployment's reverse proxy.
		return true
	},
}

// WebSocket control channel actions.
const (
	wsCreateSession    = "create_session"
	wsCloseSession     = "close_session"
	wsListSessions     = "list_sessions"
	wsNavigate         = "navigate"
	wsPerformAction    = "perform_action"
	wsGetPageInfo      = "get_page_info"
	wsFindAndClickLink = "find_and_click_link"
)

// wsRequest is one inbound control message. ID is opaque and echoed back
// verbatim so callers can correlate concurrent requests.
type wsRequest struct {
	ID          jsoniter.RawMessage    `json:"id"`
	Action      string                 `json:"action"`
	SessionID   string                 `json:"sessionId,omitempty"`
	URL         string                 `json:"url,omitempty"`
	InitialURL  string                 `json:"initialUrl,omitempty"`
	Headless    *bool                  `json:"headless,omitempty"`
	ActionData  *schemas.BrowserAction `json:"actionData,omitempty"`
	Description string                 `json:"description,omitempty"`
}

// wsResponse is the uniform reply shape. A request the codec could not parse
// gets id null, since there is nothing to echo.
type wsResponse struct {
	ID      jsoniter.RawMessage `json:"id"`
	Action  string              `json:"action,omitempty"`
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
	Result  any                 `json:"result,omitempty"`
}

var nullID = jsoniter.RawMessage("null")

// wsClient is one control-channel connection. done is closed by readPump on
// teardown; it releases writePump and any in-flight dispatch goroutines, so
// send itself is never closed.
type wsClient struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
}

// handleWS upgrades the request and starts the connection pumps.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed.", zap.Error(err))
		return
	}
	client := &wsClient{
		id:     uuid.New().String(),
		server: s,
		conn:   conn,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	s.logger.Info("WebSocket client connected.", zap.String("client_id", client.id))

	go client.writePump()
	go client.readPump()
}

// readPump reads control messages and dispatches each in its own goroutine so
// a slow browser operation on one session never stalls requests for another.
// Responses funnel through the send channel; only writePump touches the
// connection for writes.
func (c *wsClient) readPump() {
	defer func() {
		close(c.done)
		c.conn.Close()
		c.server.logger.Info("WebSocket client disconnected.", zap.String("client_id", c.id))
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("WebSocket read error.",
					zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.server.logger.Debug("Unparseable control message.",
				zap.String("client_id", c.id), zap.Error(err))
			c.reply(wsResponse{ID: nullID, Success: false, Error: "invalid message: " + err.Error()})
			continue
		}
		if len(req.ID) == 0 {
			req.ID = nullID
		}

		go c.dispatch(req)
	}
}

// dispatch runs one control request against the service. The connection's
// request context died at upgrade time, so operations run on a background
// context bounded by the service's own timeouts.
func (c *wsClient) dispatch(req wsRequest) {
	ctx := context.Background()
	svc := c.server.svc

	var (
		result any
		err    error
	)
	switch req.Action {
	case wsCreateSession:
		result, err = svc.CreateSession(ctx, schemas.CreateSessionRequest{
			SessionID:  req.SessionID,
			InitialURL: req.InitialURL,
			Headless:   req.Headless,
		})
	case wsCloseSession:
		result = map[string]bool{"closed": svc.CloseSession(req.SessionID)}
	case wsListSessions:
		result = svc.ActiveSessions()
	case wsNavigate:
		result, err = svc.Navigate(ctx, req.SessionID, req.URL)
	case wsPerformAction:
		var action schemas.BrowserAction
		if req.ActionData != nil {
			action = *req.ActionData
		}
		result, err = svc.PerformAction(ctx, req.SessionID, action)
	case wsGetPageInfo:
		// Advisory, like the HTTP route: any failure to snapshot, unknown
		// session included, is a null result rather than an error.
		info, infoErr := svc.GetPageInfo(ctx, req.SessionID)
		if infoErr != nil {
			c.server.logger.Warn("Page snapshot unavailable.",
				zap.String("session_id", req.SessionID), zap.Error(infoErr))
			c.reply(wsResponse{ID: req.ID, Action: req.Action, Success: true, Result: nil})
			return
		}
		result = info
	case wsFindAndClickLink:
		result, err = svc.FindAndClickLink(ctx, req.SessionID, req.Description)
	default:
		c.reply(wsResponse{
			ID: req.ID, Action: req.Action, Success: false,
			Error: fmt.Sprintf("unknown action %q", req.Action),
		})
		return
	}

	if err != nil {
		c.reply(wsResponse{ID: req.ID, Action: req.Action, Success: false, Error: err.Error()})
		return
	}
	c.reply(wsResponse{ID: req.ID, Action: req.Action, Success: true, Result: result})
}

// reply marshals and queues one response. A full send buffer drops the client
// rather than blocking a dispatch goroutine forever.
func (c *wsClient) reply(resp wsResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		c.server.logger.Error("Failed to marshal WebSocket response.",
			zap.String("client_id", c.id), zap.Error(err))
		return
	}
	select {
	case c.send <- payload:
	case <-c.done:
	default:
		c.server.logger.Warn("WebSocket send buffer full; closing connection.",
			zap.String("client_id", c.id))
		c.conn.Close()
	}
}

// writePump drains the send channel onto the connection and keeps the peer
// alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
