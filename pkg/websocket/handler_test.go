package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ridechat/internal/models"
	"ridechat/internal/repositories/memory"
	"ridechat/internal/services"
	"ridechat/internal/utils"
	"ridechat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeVerifier struct {
	identities map[string]*models.Identity
}

func (v *fakeVerifier) ValidateToken(ctx context.Context, token string) (*models.Identity, error) {
	identity, ok := v.identities[token]
	if !ok {
		return nil, errors.New("token is expired")
	}
	return identity, nil
}

type fakeMessenger struct {
	mu      sync.Mutex
	headers map[primitive.ObjectID]*models.ChatHeader
	stored  []*models.Message
	err     error
	stall   bool
}

func (m *fakeMessenger) SendMessage(ctx context.Context, input *models.SendMessageInput) (*models.Message, error) {
	m.mu.Lock()
	stall := m.stall
	m.mu.Unlock()
	if stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	header, ok := m.headers[input.ChatID]
	if !ok {
		return nil, utils.ErrChatNotFound
	}
	role, ok := header.RoleOf(input.SenderID)
	if !ok {
		return nil, utils.ErrNotParticipant
	}
	if role != input.SenderRole || header.ParticipantFor(role.Complement()) != input.ReceiverID {
		return nil, utils.ErrRoleMismatch
	}

	message := &models.Message{
		ID:           primitive.NewObjectID(),
		Sender:       input.SenderID,
		SenderRole:   input.SenderRole,
		Receiver:     input.ReceiverID,
		ReceiverRole: input.SenderRole.Complement(),
		Content:      input.Content,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	m.stored = append(m.stored, message)
	return message, nil
}

func (m *fakeMessenger) storedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

func (m *fakeMessenger) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// stallUntilDeadline makes every store call wait for its context to expire.
func (m *fakeMessenger) stallUntilDeadline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stall = true
}

type testGateway struct {
	handler   *Handler
	server    *httptest.Server
	messenger *fakeMessenger
	chatID    primitive.ObjectID
	rider     *models.Identity
	driver    *models.Identity
	stranger  *models.Identity
}

const (
	riderToken    = "rider-token"
	driverToken   = "driver-token"
	strangerToken = "stranger-token"
)

func startGateway(t *testing.T) *testGateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rider := &models.Identity{UserID: primitive.NewObjectID(), Role: models.RoleRider}
	driver := &models.Identity{UserID: primitive.NewObjectID(), Role: models.RoleDriver}
	stranger := &models.Identity{UserID: primitive.NewObjectID(), Role: models.RoleRider}
	chatID := primitive.NewObjectID()

	verifier := &fakeVerifier{identities: map[string]*models.Identity{
		riderToken:    rider,
		driverToken:   driver,
		strangerToken: stranger,
	}}
	messenger := &fakeMessenger{headers: map[primitive.ObjectID]*models.ChatHeader{
		chatID: {ID: chatID, RiderID: rider.UserID, DriverID: driver.UserID, RideID: primitive.NewObjectID()},
	}}

	handler, server := serveGateway(t, verifier, messenger, time.Second)

	return &testGateway{
		handler:   handler,
		server:    server,
		messenger: messenger,
		chatID:    chatID,
		rider:     rider,
		driver:    driver,
		stranger:  stranger,
	}
}

func serveGateway(t *testing.T, verifier TokenVerifier, chats ChatMessenger, timeout time.Duration) (*Handler, *httptest.Server) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.HandlerTimeout = timeout
	handler := NewHandler(cfg, NewRegistry(), verifier, chats, logger.NewNop(), prometheus.NewRegistry())

	engine := gin.New()
	engine.GET("/ws", handler.HandleWebSocket)
	server := httptest.NewServer(engine)
	t.Cleanup(func() {
		handler.Shutdown()
		server.Close()
	})
	return handler, server
}

func (g *testGateway) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws" + query
}

// connect dials with token and consumes the connection frame.
func (g *testGateway) connect(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(g.wsURL("?token="+token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	frame := readFrame(t, conn)
	if frame["type"] != string(FrameConnection) {
		t.Fatalf("first frame = %v, want connection", frame)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// expectSilence fails if conn receives anything soon. It leaves conn
// unusable, so it must be the last read on conn.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected frame: %s", raw)
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]interface{}) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func (g *testGateway) chatMessage(receiver *models.Identity, content string) map[string]interface{} {
	return map[string]interface{}{
		"type":              "chat_message",
		"chat_id":           g.chatID.Hex(),
		"receiver_identity": receiver.UserID.Hex(),
		"content":           content,
	}
}

func expectError(t *testing.T, conn *websocket.Conn, message, code string) {
	t.Helper()
	frame := readFrame(t, conn)
	if frame["type"] != string(FrameError) || frame["message"] != message || frame["code"] != code {
		t.Fatalf("frame = %v, want error %q (%s)", frame, message, code)
	}
}

func TestConnectionFrame(t *testing.T) {
	g := startGateway(t)

	conn, _, err := websocket.DefaultDialer.Dial(g.wsURL("?token="+driverToken), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frame := readFrame(t, conn)
	if frame["message"] != "Connected to chat server" || frame["identity"] != g.driver.UserID.Hex() || frame["role"] != "driver" {
		t.Fatalf("connection frame = %v", frame)
	}
	if g.handler.Registry().Count() != 1 {
		t.Fatalf("registry count = %d, want 1", g.handler.Registry().Count())
	}
}

func TestBearerHeaderFallback(t *testing.T) {
	g := startGateway(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+riderToken)
	conn, _, err := websocket.DefaultDialer.Dial(g.wsURL(""), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if frame := readFrame(t, conn); frame["identity"] != g.rider.UserID.Hex() {
		t.Fatalf("connection frame = %v", frame)
	}
}

func TestRoundTripBothOnline(t *testing.T) {
	g := startGateway(t)
	rider := g.connect(t, riderToken)
	driver := g.connect(t, driverToken)

	writeFrame(t, rider, g.chatMessage(g.driver, "I'm at the gate"))

	confirmation := readFrame(t, rider)
	if confirmation["type"] != "chat_message" || confirmation["is_sent_confirmation"] != true {
		t.Fatalf("confirmation = %v", confirmation)
	}

	delivered := readFrame(t, driver)
	if delivered["type"] != "chat_message" || delivered["chat_id"] != g.chatID.Hex() {
		t.Fatalf("delivered = %v", delivered)
	}
	if _, tagged := delivered["is_sent_confirmation"]; tagged {
		t.Fatalf("receiver copy carries is_sent_confirmation: %v", delivered)
	}

	message := delivered["message"].(map[string]interface{})
	if message["content"] != "I'm at the gate" || message["read"] != false {
		t.Fatalf("message = %v", message)
	}
	if message["sender"] != g.rider.UserID.Hex() || message["receiver"] != g.driver.UserID.Hex() {
		t.Fatalf("message parties = %v", message)
	}
	if confirmation["message"].(map[string]interface{})["id"] != message["id"] {
		t.Fatalf("confirmation and delivery differ")
	}
	if g.messenger.storedCount() != 1 {
		t.Fatalf("stored = %d, want 1", g.messenger.storedCount())
	}
}

func TestRoleComplementarity(t *testing.T) {
	g := startGateway(t)
	rider := g.connect(t, riderToken)
	driver := g.connect(t, driverToken)

	writeFrame(t, driver, g.chatMessage(g.rider, "Arriving in 2 minutes"))
	readFrame(t, driver)

	message := readFrame(t, rider)["message"].(map[string]interface{})
	if message["sender_role"] != "driver" || message["receiver_role"] != "rider" {
		t.Fatalf("roles = %v -> %v", message["sender_role"], message["receiver_role"])
	}
}

func TestOfflineReceiverStillPersists(t *testing.T) {
	g := startGateway(t)
	rider := g.connect(t, riderToken)

	writeFrame(t, rider, g.chatMessage(g.driver, "are you close?"))

	if frame := readFrame(t, rider); frame["is_sent_confirmation"] != true {
		t.Fatalf("confirmation = %v", frame)
	}
	if g.messenger.storedCount() != 1 {
		t.Fatalf("stored = %d, want 1", g.messenger.storedCount())
	}
	if got := testutil.ToFloat64(g.handler.metrics.deliveries.WithLabelValues("message", "offline")); got != 1 {
		t.Fatalf("offline deliveries = %v, want 1", got)
	}
	expectSilence(t, rider)
}

func TestTypingIsEphemeral(t *testing.T) {
	g := startGateway(t)
	rider := g.connect(t, riderToken)
	driver := g.connect(t, driverToken)

	writeFrame(t, rider, map[string]interface{}{
		"type":              "typing",
		"chat_id":           g.chatID.Hex(),
		"receiver_identity": g.driver.UserID.Hex(),
		"is_typing":         true,
	})

	frame := readFrame(t, driver)
	if frame["type"] != "typing" || frame["sender_identity"] != g.rider.UserID.Hex() || frame["sender_role"] != "rider" || frame["is_typing"] != true {
		t.Fatalf("typing frame = %v", frame)
	}
	if g.messenger.storedCount() != 0 {
		t.Fatalf("typing signal was persisted")
	}
	expectSilence(t, rider)
}

func TestTypingToOfflineReceiverIsDropped(t *testing.T) {
	g := startGateway(t)
	rider := g.connect(t, riderToken)

	writeFrame(t, rider, map[string]interface{}{
		"type":              "typing",
		"chat_id":           g.chatID.Hex(),
		"receiver_identity": g.driver.UserID.Hex(),
		"is_typing":         false,
	})
	expectSilence(t, rider)
}

func TestReconnectReplacesConnection(t *testing.T) {
	g := startGateway(t)
	rider := g.connect(t, riderToken)
	oldDriver := g.connect(t, driverToken)
	newDriver := g.connect(t, driverToken)

	oldDriver.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := oldDriver.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("replaced connection read err = %v, want normal close", err)
	}

	writeFrame(t, rider, g.chatMessage(g.driver, "which car?"))
	readFrame(t, rider)

	if frame := readFrame(t, newDriver); frame["type"] != "chat_message" {
		t.Fatalf("new connection got %v", frame)
	}
	if g.handler.Registry().Count() != 2 {
		t.Fatalf("registry count = %d, want 2", g.handler.Registry().Count())
	}
	if got := testutil.ToFloat64(g.handler.metrics.replacedConnections); got != 1 {
		t.Fatalf("replaced connections = %v, want 1", got)
	}
}

func TestUnauthorizedConnectRejected(t *testing.T) {
	g := startGateway(t)

	cases := []struct {
		name   string
		query  string
		code   int
		reason string
		label  string
	}{
		{"missing token", "", CloseAuthRequired, "Authentication required", "missing_token"},
		{"invalid token", "?token=forged", CloseAuthFailed, "Authentication failed", "invalid_token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, _, err := websocket.DefaultDialer.Dial(g.wsURL(tc.query), nil)
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err = conn.ReadMessage()
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				t.Fatalf("read err = %v, want close error", err)
			}
			if closeErr.Code != tc.code || closeErr.Text != tc.reason {
				t.Fatalf("close = %d %q, want %d %q", closeErr.Code, closeErr.Text, tc.code, tc.reason)
			}
			if got := testutil.ToFloat64(g.handler.metrics.handshakeRejections.WithLabelValues(tc.label)); got != 1 {
				t.Fatalf("rejections{%s} = %v, want 1", tc.label, got)
			}
		})
	}

	if g.handler.Registry().Count() != 0 {
		t.Fatalf("rejected connection was registered")
	}
}

func TestBadFramesKeepConnectionOpen(t *testing.T) {
	g := startGateway(t)
	rider := g.connect(t, riderToken)
	driver := g.connect(t, driverToken)

	if err := rider.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectError(t, rider, "failed to process message", CodeInvalidFrame)

	writeFrame(t, rider, map[string]interface{}{"type": "location_update"})
	expectError(t, rider, "unknown message type", CodeUnknownType)

	writeFrame(t, rider, map[string]interface{}{"type": "chat_message", "chat_id": g.chatID.Hex()})
	expectError(t, rider, "failed to process message", CodeInvalidFrame)

	writeFrame(t, rider, map[string]interface{}{
		"type":              "typing",
		"chat_id":           g.chatID.Hex(),
		"receiver_identity": g.driver.UserID.Hex(),
	})
	expectError(t, rider, "failed to process message", CodeInvalidFrame)

	writeFrame(t, rider, g.chatMessage(g.driver, "still here"))
	if frame := readFrame(t, rider); frame["is_sent_confirmation"] != true {
		t.Fatalf("connection unusable after bad frames: %v", frame)
	}
	readFrame(t, driver)
}

func TestChatNotFound(t *testing.T) {
	g := startGateway(t)
	rider := g.connect(t, riderToken)
	driver := g.connect(t, driverToken)

	frame := g.chatMessage(g.driver, "hello")
	frame["chat_id"] = primitive.NewObjectID().Hex()
	writeFrame(t, rider, frame)

	expectError(t, rider, "chat not found", CodeChatNotFound)
	expectSilence(t, driver)
}

func TestStoreFailureNoDelivery(t *testing.T) {
	g := startGateway(t)
	rider := g.connect(t, riderToken)
	driver := g.connect(t, driverToken)
	g.messenger.fail(errors.New("server selection timeout"))

	writeFrame(t, rider, g.chatMessage(g.driver, "hello"))

	expectError(t, rider, "failed to send message", CodePersistenceFailed)
	expectSilence(t, driver)
}

func TestStoreTimeoutIsPersistenceFailure(t *testing.T) {
	g := startGateway(t)
	rider := g.connect(t, riderToken)
	driver := g.connect(t, driverToken)
	g.messenger.stallUntilDeadline()

	started := time.Now()
	writeFrame(t, rider, g.chatMessage(g.driver, "hello?"))

	expectError(t, rider, "failed to send message", CodePersistenceFailed)
	if elapsed := time.Since(started); elapsed < g.handler.config.HandlerTimeout {
		t.Fatalf("error after %v, before the %v handler timeout", elapsed, g.handler.config.HandlerTimeout)
	}
	if g.messenger.storedCount() != 0 {
		t.Fatalf("timed out message was stored")
	}
	expectSilence(t, driver)
}

func TestRoundTripPersistsThroughChatService(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rider := &models.Identity{UserID: primitive.NewObjectID(), Role: models.RoleRider}
	driver := &models.Identity{UserID: primitive.NewObjectID(), Role: models.RoleDriver}

	repo := memory.NewChatRepository()
	chat, _, err := repo.FindOrCreateChat(context.Background(), rider.UserID, driver.UserID, primitive.NewObjectID())
	if err != nil {
		t.Fatalf("FindOrCreateChat: %v", err)
	}

	verifier := &fakeVerifier{identities: map[string]*models.Identity{riderToken: rider, driverToken: driver}}
	_, server := serveGateway(t, verifier, services.NewChatService(repo, logger.NewNop()), time.Second)
	g := &testGateway{server: server, chatID: chat.ID, rider: rider, driver: driver}

	riderConn := g.connect(t, riderToken)
	driverConn := g.connect(t, driverToken)

	writeFrame(t, riderConn, g.chatMessage(driver, "  blue sedan, plate ends 42 "))
	confirmation := readFrame(t, riderConn)
	delivered := readFrame(t, driverConn)

	writeFrame(t, driverConn, g.chatMessage(rider, "see you"))
	readFrame(t, driverConn)
	readFrame(t, riderConn)

	stored, err := repo.GetChatByID(context.Background(), chat.ID)
	if err != nil {
		t.Fatalf("GetChatByID: %v", err)
	}
	if len(stored.Messages) != 2 {
		t.Fatalf("stored %d messages, want 2", len(stored.Messages))
	}

	first := stored.Messages[0]
	if first.ID.Hex() != delivered["message"].(map[string]interface{})["id"] || first.ID.Hex() != confirmation["message"].(map[string]interface{})["id"] {
		t.Fatalf("stored id %s does not match pushed frames", first.ID.Hex())
	}
	if first.Content != "  blue sedan, plate ends 42 " || first.Read {
		t.Fatalf("first message = %+v", first)
	}
	if first.Sender != rider.UserID || first.SenderRole != models.RoleRider || first.Receiver != driver.UserID || first.ReceiverRole != models.RoleDriver {
		t.Fatalf("first message parties = %+v", first)
	}

	second := stored.Messages[1]
	if second.Sender != driver.UserID || second.ReceiverRole != models.RoleRider || second.Content != "see you" {
		t.Fatalf("second message = %+v", second)
	}
	if !stored.LastMessageAt.Equal(second.CreatedAt) {
		t.Fatalf("last_message_at = %v, want %v", stored.LastMessageAt, second.CreatedAt)
	}
}

func TestNonParticipantRejected(t *testing.T) {
	g := startGateway(t)
	stranger := g.connect(t, strangerToken)
	driver := g.connect(t, driverToken)

	writeFrame(t, stranger, g.chatMessage(g.driver, "let me in"))

	expectError(t, stranger, "failed to process message", CodeNotParticipant)
	if g.messenger.storedCount() != 0 {
		t.Fatalf("message from non-participant was stored")
	}
	expectSilence(t, driver)
}

func TestCheckOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	h := NewHandler(cfg, NewRegistry(), &fakeVerifier{}, &fakeMessenger{}, logger.NewNop(), prometheus.NewRegistry())

	cases := map[string]bool{
		"":                        true,
		"https://app.example.com": true,
		"https://evil.example":    false,
		"http://chat.local":       true,
	}
	for origin, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://chat.local/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if got := h.checkOrigin(req); got != want {
			t.Fatalf("checkOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}
