package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nanobot/internal/config"
	"nanobot/internal/domain"
	"nanobot/internal/media"

	"github.com/gorilla/websocket"
)

// zaloReconnectDelay is the fixed floor between connection attempts.
// Variable so tests can shorten it.
var zaloReconnectDelay = 5 * time.Second

// writeTimeout bounds every socket write so a wedged peer cannot hold a
// writer indefinitely.
const writeTimeout = 10 * time.Second

// sessionState tracks where the bridge session is in its lifecycle.
type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnecting
	stateAuthenticating
	stateStreaming
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticating:
		return "authenticating"
	case stateStreaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// Zalo implements domain.Channel over a WebSocket connection to the zca-js
// bridge process. The bridge owns the Zalo protocol; this side handles the
// session lifecycle, frame dispatch, typing indicators and the attachment
// pipeline.
type Zalo struct {
	cfg     config.ZaloConfig
	fetcher *media.Fetcher
	logger  *slog.Logger
	bus     domain.MessageBus
	typing  *typingManager

	mu        sync.Mutex // guards conn, connected, running, state, cancel
	conn      *websocket.Conn
	connected bool
	running   bool
	state     sessionState
	cancel    context.CancelFunc

	writeMu sync.Mutex // single writer on the socket
}

// ZaloChannelConfig wires the channel's collaborators.
type ZaloChannelConfig struct {
	Config  config.ZaloConfig
	Fetcher *media.Fetcher
	Logger  *slog.Logger
}

func NewZalo(cfg ZaloChannelConfig) *Zalo {
	z := &Zalo{
		cfg:     cfg.Config,
		fetcher: cfg.Fetcher,
		logger:  cfg.Logger,
	}
	z.typing = newTypingManager(z.writeTyping, z.isConnected, cfg.Logger)
	return z
}

func (z *Zalo) Name() string { return "zalo" }

// Start connects to the bridge and begins the session loop. It is
// idempotent: a second call while running is a no-op. The loop reconnects
// after a fixed delay for as long as the channel is running.
func (z *Zalo) Start(ctx context.Context, bus domain.MessageBus) error {
	z.mu.Lock()
	if z.running {
		z.mu.Unlock()
		return nil
	}
	z.running = true
	sessionCtx, cancel := context.WithCancel(ctx)
	z.cancel = cancel
	z.mu.Unlock()

	z.bus = bus
	bus.OnOutbound("zalo", func(msg domain.OutboundMessage) {
		if err := z.Send(sessionCtx, msg.ChatID, msg.Content); err != nil {
			z.logger.Error("zalo outbound failed", "chat_id", msg.ChatID, "err", err)
		}
	})

	z.logger.Info("starting zalo channel", "bridge_url", z.cfg.BridgeURL)

	go z.run(sessionCtx)
	return nil
}

// Stop shuts the channel down: the socket is closed, then the session
// loop, any pending reconnect delay and all typing loops end promptly.
func (z *Zalo) Stop() error {
	z.mu.Lock()
	if !z.running {
		z.mu.Unlock()
		return nil
	}
	z.running = false
	z.connected = false
	z.state = stateDisconnected
	cancel := z.cancel
	conn := z.conn
	z.conn = nil
	z.mu.Unlock()

	// Close the socket first: a typing loop blocked in a write is only
	// unblocked by the close, never by context cancellation, and StopAll
	// waits for every loop to exit.
	if conn != nil {
		conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	z.typing.StopAll()

	z.logger.Info("zalo channel stopped")
	return nil
}

// Send delivers a reply through the bridge. When the bridge is not
// connected the message is dropped with a warning. The chat's typing loop
// is stopped strictly before the frame is written, so a stale typing
// signal can never trail the actual reply. Write failures are logged, not
// propagated: the read loop is authoritative for tearing the session down.
func (z *Zalo) Send(ctx context.Context, chatID string, content string) error {
	if !z.isConnected() {
		z.logger.Warn("zalo bridge not connected, dropping message", "chat_id", chatID)
		return nil
	}

	z.typing.Stop(chatID)

	if err := z.writeFrame(BridgeSend{Type: "send", To: chatID, Text: content}); err != nil {
		z.logger.Error("error sending zalo message", "chat_id", chatID, "err", err)
	}
	return nil
}

// State returns the current session state (for status reporting and tests).
func (z *Zalo) State() string {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.state.String()
}

// run is the connect-authenticate-stream loop. One iteration per
// connection; a fixed, interruptible delay separates attempts.
func (z *Zalo) run(ctx context.Context) {
	for z.isRunning() {
		z.setState(stateConnecting)

		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, z.cfg.BridgeURL, nil)
		if err != nil {
			z.logger.Warn("zalo bridge connection error", "err", err)
			z.setState(stateDisconnected)
			if !z.waitRetry(ctx) {
				return
			}
			continue
		}

		if !z.installConn(conn) {
			conn.Close()
			return
		}

		z.logger.Info("connected to zalo bridge")
		z.sendLogin()

		z.setState(stateStreaming)
		z.readLoop(ctx, conn)

		z.teardown()
		if !z.waitRetry(ctx) {
			return
		}
	}
}

// installConn registers a freshly dialed connection. It refuses the conn
// when Stop won the race against the dial, so a stopped channel never
// starts streaming.
func (z *Zalo) installConn(conn *websocket.Conn) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	if !z.running {
		return false
	}
	z.conn = conn
	z.connected = true
	z.state = stateAuthenticating
	return true
}

// readLoop consumes frames until the connection closes or errors.
func (z *Zalo) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if z.isRunning() {
				z.logger.Warn("zalo bridge read error", "err", err)
			}
			return
		}
		z.handleBridgeFrame(ctx, data)
	}
}

// teardown discards the connection after a stream ends. Typing loops die
// with the session; they restart on the next inbound message.
func (z *Zalo) teardown() {
	z.mu.Lock()
	if z.conn != nil {
		z.conn.Close()
		z.conn = nil
	}
	z.connected = false
	z.state = stateDisconnected
	z.mu.Unlock()

	z.typing.StopAll()
}

// waitRetry sleeps the fixed reconnect delay, returning false when the
// channel stopped or the context was cancelled during the wait.
func (z *Zalo) waitRetry(ctx context.Context) bool {
	if !z.isRunning() {
		return false
	}
	z.logger.Info("reconnecting to zalo bridge", "delay", zaloReconnectDelay)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(zaloReconnectDelay):
		return z.isRunning()
	}
}

// sendLogin forwards the configured credentials to the bridge. Sent
// verbatim after every reconnect.
func (z *Zalo) sendLogin() {
	frame := BridgeLogin{
		Type:      "login",
		Cookie:    z.cfg.Cookie.Value(),
		IMEI:      z.cfg.IMEI,
		UserAgent: z.cfg.UserAgent,
	}
	if err := z.writeFrame(frame); err != nil {
		z.logger.Error("error sending login credentials", "err", err)
		return
	}
	z.logger.Info("sent login credentials to zalo bridge")
}

// handleBridgeFrame decodes and dispatches one frame. Malformed frames are
// dropped with a warning; they never affect the connection.
func (z *Zalo) handleBridgeFrame(ctx context.Context, data []byte) {
	var frame BridgeInbound
	if err := json.Unmarshal(data, &frame); err != nil {
		z.logger.Warn("invalid JSON from zalo bridge", "preview", preview(data))
		return
	}

	switch frame.Type {
	case "message":
		z.handleMessage(ctx, frame)
	case "status":
		z.handleStatus(frame)
	case "login":
		z.handleLoginResult(frame)
	case "error":
		z.logger.Error("zalo bridge error", "err", frame.Error)
	default:
		// unrecognized frame types are ignored
	}
}

// handleMessage normalizes an inbound chat message and hands it to the bus.
// The typing loop starts before attachment work so the remote peer sees
// activity immediately, even when a download or transcription is slow.
func (z *Zalo) handleMessage(ctx context.Context, frame BridgeInbound) {
	senderID := frame.SenderID
	chatID := frame.ThreadID

	if !z.isAllowed(senderID) {
		z.logger.Warn("unauthorized zalo sender blocked", "sender_id", senderID)
		return
	}

	z.typing.Start(ctx, chatID)

	content, mediaPaths := z.resolveContent(ctx, frame.Content)

	z.logger.Info("zalo message received",
		"sender_id", senderID,
		"chat_id", chatID,
		"is_group", frame.IsGroup,
	)

	z.bus.Publish(domain.InboundMessage{
		Channel:   "zalo",
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Media:     mediaPaths,
		MessageID: frame.MessageID,
		IsGroup:   frame.IsGroup,
		Timestamp: time.UnixMilli(frame.Timestamp),
	})
}

// resolveContent turns the content union (string, attachment object, or
// anything else) into display text plus fetched media paths.
func (z *Zalo) resolveContent(ctx context.Context, raw json.RawMessage) (string, []string) {
	// An absent content key means an empty text message; the placeholder is
	// reserved for content in an unrecognized shape.
	if len(raw) == 0 {
		return "", nil
	}
	if string(raw) == "null" {
		return "[empty message]", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var att BridgeAttachment
	if err := json.Unmarshal(raw, &att); err == nil && att.Type == "attachment" {
		res := z.fetcher.Fetch(ctx, att.Href)
		if res.Path != "" {
			return res.Text, []string{res.Path}
		}
		return res.Text, nil
	}

	return "[empty message]", nil
}

func (z *Zalo) handleStatus(frame BridgeInbound) {
	z.logger.Info("zalo status", "status", frame.Status)

	z.mu.Lock()
	switch frame.Status {
	case "connected":
		z.connected = true
	case "disconnected":
		z.connected = false
	}
	z.mu.Unlock()
}

// handleLoginResult logs the bridge's auth verdict. By default a failed
// login does not tear the session down (the bridge may still stream); with
// disconnectOnAuthFailure set, the socket is closed so the session loop
// reconnects and re-authenticates.
func (z *Zalo) handleLoginResult(frame BridgeInbound) {
	if frame.Success != nil && *frame.Success {
		z.logger.Info("logged in to zalo")
		return
	}

	errMsg := frame.Error
	if errMsg == "" {
		errMsg = "unknown error"
	}
	z.logger.Error("zalo login failed", "err", errMsg)

	if z.cfg.DisconnectOnAuthFailure {
		z.mu.Lock()
		conn := z.conn
		z.mu.Unlock()
		if conn != nil {
			conn.Close() // read loop unblocks and the session reconnects
		}
	}
}

// writeTyping emits one typing frame; used by the typing manager's loops.
func (z *Zalo) writeTyping(chatID string) error {
	return z.writeFrame(BridgeTyping{Type: "typing", To: chatID})
}

// writeFrame serializes one frame to the socket. Serialized by writeMu:
// gorilla/websocket allows a single concurrent writer, and both Send and
// the typing loops write.
func (z *Zalo) writeFrame(v any) error {
	z.mu.Lock()
	conn := z.conn
	z.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("zalo bridge not connected")
	}

	z.writeMu.Lock()
	defer z.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (z *Zalo) isAllowed(senderID string) bool {
	if len(z.cfg.AllowFrom) == 0 {
		return true
	}
	for _, id := range z.cfg.AllowFrom {
		if id == senderID {
			return true
		}
	}
	return false
}

func (z *Zalo) isRunning() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.running
}

func (z *Zalo) isConnected() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.conn != nil && z.connected
}

func (z *Zalo) setState(s sessionState) {
	z.mu.Lock()
	z.state = s
	z.mu.Unlock()
}

func preview(data []byte) string {
	const max = 100
	if len(data) > max {
		data = data[:max]
	}
	return string(data)
}
