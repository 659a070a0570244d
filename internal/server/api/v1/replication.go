package v1

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"confhub/internal/metrics"
	"confhub/internal/server/api/response"
	"confhub/internal/server/replication"
	"confhub/internal/validator"
	"confhub/internal/value"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SDK clients are not browsers, so the origin is not checked
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handshake is the first frame a client sends after the upgrade
type handshake struct {
	EnvironmentID string                 `json:"environment_id" validate:"required"`
	Context       value.Value            `json:"context"`
	Current       []replication.Snapshot `json:"current" validate:"dive"`
	Required      []string               `json:"required" validate:"dive,configname"`
	Fallbacks     []replication.Snapshot `json:"fallbacks" validate:"dive"`
}

// wsStream adapts a websocket connection to replication.Stream.
// Data frames are serialized by mu; control frames may be written concurrently.
type wsStream struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func newWSStream(conn *websocket.Conn, writeTimeout time.Duration) *wsStream {
	return &wsStream{conn: conn, writeTimeout: writeTimeout}
}

// Send writes msg as a JSON text frame within the write timeout
func (s *wsStream) Send(ctx context.Context, msg *replication.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

// ping sends a keepalive ping
func (s *wsStream) ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

// Close sends a close frame and closes the connection, which unblocks a
// pending Send
func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

// openReplication upgrades the request to a websocket, performs the
// handshake and keeps the session alive until either side closes it
func (api *API) openReplication(c *gin.Context) {
	resp := response.New(c, api.logger)

	project, err := projectID(c)
	if err != nil {
		resp.FromError(err)
		return
	}

	ip := c.ClientIP()
	if !api.handshakes.Limit(ip).Allowed {
		metrics.RateLimitRejections.WithLabelValues("replication").Inc()
		resp.TooManyRequests(errors.New("too many replication handshakes"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader already replied to the client
		api.logger.Debug("Websocket upgrade failed",
			zap.Error(err),
			zap.String("ip", ip))
		return
	}
	stream := newWSStream(conn, api.config.WriteTimeout)
	conn.SetReadLimit(api.config.MaxMessageSize)

	hs, err := api.readHandshake(conn)
	if err != nil {
		api.reject(c.Request.Context(), stream, err)
		return
	}

	session, err := api.hub.Open(c.Request.Context(), replication.OpenParams{
		ProjectID:     project,
		EnvironmentID: hs.EnvironmentID,
		Context:       hs.Context,
		Current:       hs.Current,
		Required:      hs.Required,
		Fallbacks:     hs.Fallbacks,
	}, stream)
	if err != nil {
		var missing *replication.MissingConfigsError
		if errors.As(err, &missing) {
			// The hub already told the client which configs are missing
			return
		}
		api.logger.Warn("Failed to open replication session",
			zap.Error(err),
			zap.String("project_id", project),
			zap.String("ip", ip))
		api.reject(c.Request.Context(), stream, err)
		return
	}

	// Only failed handshakes count against the limit
	api.handshakes.Reset(ip)
	api.keepalive(conn, stream, session)
}

// readHandshake reads and validates the first client frame
func (api *API) readHandshake(conn *websocket.Conn) (*handshake, error) {
	if err := conn.SetReadDeadline(time.Now().Add(api.config.HandshakeTimeout)); err != nil {
		return nil, err
	}

	var hs handshake
	if err := conn.ReadJSON(&hs); err != nil {
		return nil, validator.Format(err)
	}
	if err := validator.New().Struct(hs); err != nil {
		return nil, err
	}
	if !hs.Context.IsNull() && hs.Context.Kind() != value.KindObject {
		return nil, errors.New("context must be a JSON object")
	}
	return &hs, nil
}

// reject reports a failed handshake to the client and closes the stream
func (api *API) reject(ctx context.Context, stream *wsStream, err error) {
	msg := &replication.Message{Type: replication.MessageError, Error: err.Error()}
	if sendErr := stream.Send(ctx, msg); sendErr != nil {
		api.logger.Debug("Failed to send handshake error", zap.Error(sendErr))
	}
	_ = stream.Close()
}

// keepalive pings the client and reads until the connection fails. Client
// frames after the handshake carry no meaning and are discarded.
func (api *API) keepalive(conn *websocket.Conn, stream *wsStream, session *replication.Session) {
	defer session.Close()

	_ = conn.SetReadDeadline(time.Now().Add(api.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(api.config.PongTimeout))
	})

	go func() {
		ticker := time.NewTicker(api.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-session.Done():
				return
			case <-ticker.C:
				if err := stream.ping(); err != nil {
					_ = stream.Close()
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				api.logger.Debug("Replication connection closed",
					zap.Error(err),
					zap.String("session_id", session.ID()))
			}
			return
		}
	}
}
