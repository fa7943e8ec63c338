package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type wsTransport struct {
	ws *websocket.Conn
}

// newWSTransport calls onPong for every pong so that clients which only
// answer server pings still count as active.
func newWSTransport(ws *websocket.Conn, maxFrameSize int64, readTimeout time.Duration, onPong func()) *wsTransport {
	if maxFrameSize > 0 {
		ws.SetReadLimit(maxFrameSize)
	}
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		if onPong != nil {
			onPong()
		}
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})
	return &wsTransport{ws: ws}
}

func (t *wsTransport) Kind() string { return "websocket" }

func (t *wsTransport) ReadFrame() ([]byte, error) {
	for {
		kind, data, err := t.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) WriteFrame(payload []byte) error {
	if err := t.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.ws.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) Ping() error {
	return t.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (t *wsTransport) Close(code int, reason string) error {
	_ = t.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	return t.ws.Close()
}

// tokenFromRequest reads the access token from ?token= or the Authorization header.
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// HandleWebSocket authenticates, upgrades and serves one websocket client.
// Unauthenticated peers get a plain 401 and are never upgraded.
func (g *Gateway) HandleWebSocket(c *gin.Context) {
	userID, err := g.authenticate(tokenFromRequest(c.Request))
	if err != nil {
		g.logger.Debug("WebSocket auth failed", "remote", c.ClientIP(), "error", err)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the response
		g.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	// pongs are only read inside Serve, after conn is set
	var conn *Connection
	transport := newWSTransport(ws, g.cfg.MaxFrameSize, g.cfg.HeartbeatTimeout, func() { conn.Touch() })
	conn = NewConnection(userID, transport, g.cfg.SendBuffer, g.logger)
	g.Serve(c.Request.Context(), conn)
}
