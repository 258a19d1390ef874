package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ridechat/internal/models"
	"ridechat/internal/utils"
	"ridechat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// TokenVerifier resolves a bearer token to a chat identity.
type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (*models.Identity, error)
}

// ChatMessenger persists chat messages.
type ChatMessenger interface {
	SendMessage(ctx context.Context, input *models.SendMessageInput) (*models.Message, error)
}

type Config struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	WriteWait         time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	MaxMessageSize    int64
	SendBufferSize    int
	HandlerTimeout    time.Duration
	EnableCompression bool
	AllowedOrigins    []string
}

func DefaultConfig() Config {
	return Config{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		WriteWait:        10 * time.Second,
		PingInterval:     54 * time.Second,
		PongTimeout:      60 * time.Second,
		MaxMessageSize:   4096,
		SendBufferSize:   256,
		HandlerTimeout:   utils.DefaultStoreLimit,
		AllowedOrigins:   []string{"*"},
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongTimeout {
		c.PingInterval = (c.PongTimeout * 9) / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = d.SendBufferSize
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = d.HandlerTimeout
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = d.AllowedOrigins
	}
	return c
}

type Handler struct {
	config   Config
	upgrader websocket.Upgrader
	registry *Registry
	verifier TokenVerifier
	chats    ChatMessenger
	logger   *logger.Logger
	metrics  *gatewayMetrics
}

// NewHandler builds the chat gateway. Metrics are registered on reg, or on
// the default Prometheus registerer when reg is nil.
func NewHandler(cfg Config, registry *Registry, verifier TokenVerifier, chats ChatMessenger, log *logger.Logger, reg prometheus.Registerer) *Handler {
	cfg = cfg.withDefaults()
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = logger.NewNop()
	}

	h := &Handler{
		config:   cfg,
		registry: registry,
		verifier: verifier,
		chats:    chats,
		logger:   log.WithField("component", "chat_gateway"),
		metrics:  newGatewayMetrics(reg, registry),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		EnableCompression: cfg.EnableCompression,
		CheckOrigin:       h.checkOrigin,
	}

	return h
}

// HandleWebSocket upgrades the request and authenticates it. Rejected
// connections are closed with 4001 or 4002 and never registered.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := tokenFromRequest(c.Request)

	var (
		identity *models.Identity
		authErr  error
	)
	if token != "" {
		identity, authErr = h.verifier.ValidateToken(c.Request.Context(), token)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	switch {
	case token == "":
		h.reject(conn, c.ClientIP(), CloseAuthRequired, reasonAuthRequired, "missing_token", utils.ErrMissingToken)
		return
	case authErr != nil:
		h.reject(conn, c.ClientIP(), CloseAuthFailed, reasonAuthFailed, "invalid_token", authErr)
		return
	}

	client := newClient(h, conn, identity)
	// Queue the greeting before the client becomes visible to other senders.
	h.send(client, newConnectionFrame(identity), "connection")

	replaced := h.registry.Register(client)
	if replaced != nil {
		replaced.Close()
		h.logger.LogConnectionEvent(replaced.UserID, replaced.Role.String(), replaced.SessionID, utils.EventClientReplaced)
	}
	h.metrics.recordConnection(replaced != nil)
	h.logger.LogConnectionEvent(client.UserID, client.Role.String(), client.SessionID, utils.EventClientConnected)

	go client.writePump()
	go client.readPump()
}

func (h *Handler) reject(conn *websocket.Conn, clientIP string, code int, reason, label string, cause error) {
	h.metrics.recordRejection(label)
	h.logger.LogSecurityEvent("websocket_auth_rejected", "medium", map[string]interface{}{
		"reason":    label,
		"client_ip": clientIP,
		"error":     cause.Error(),
	})

	deadline := time.Now().Add(h.config.WriteWait)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}

// disconnect runs when a client's read loop ends.
func (h *Handler) disconnect(client *Client) {
	if h.registry.Unregister(client) {
		h.logger.LogConnectionEvent(client.UserID, client.Role.String(), client.SessionID, utils.EventClientGone)
	}
	client.Close()
}

// send marshals v onto client's queue. A client whose queue is full is
// dropped from the registry.
func (h *Handler) send(client *Client, v interface{}, kind string) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode outbound frame")
		return false
	}

	if !client.enqueue(payload) {
		h.metrics.recordDelivery(kind, "dropped")
		if h.registry.Unregister(client) {
			h.logger.WithUserID(client.UserID).WithField("session_id", client.SessionID).Warn("Dropping slow consumer")
		}
		return false
	}

	h.metrics.recordDelivery(kind, "delivered")
	return true
}

func (h *Handler) sendError(client *Client, message, code string) {
	h.metrics.recordError(code)
	h.send(client, newErrorFrame(message, code), "error")
}

// Registry exposes the connection registry, e.g. for health reporting.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// Shutdown closes every registered connection.
func (h *Handler) Shutdown() {
	for _, client := range h.registry.Clients() {
		client.Close()
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}

	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return false
}

// tokenFromRequest reads the token query parameter, falling back to an
// Authorization bearer header for non-browser clients.
func tokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
