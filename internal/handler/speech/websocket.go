package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/events"
	"github.com/zhouzirui/tutibot/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/tutibot/backend/internal/service/speech"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// 浏览器发来的消息类型
const (
	frameHello  = "hello"
	frameResult = "speech.result"
	frameError  = "speech.error"
	frameEnd    = "speech.end"
)

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type helloMessage struct {
	Supported bool `json:"supported"`
}

type resultMessage struct {
	Transcript string  `json:"transcript"`
	IsFinal    bool    `json:"isFinal"`
	Confidence float64 `json:"confidence,omitempty"`
}

type errorMessage struct {
	Error string `json:"error"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsClient 串行化单个连接的写入，同时作为识别中继的客户端
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// SendCommand 实现 speechsvc.Client
func (c *wsClient) SendCommand(cmd speechsvc.Command) error {
	msg := outgoingMessage{Type: cmd.Type, Timestamp: time.Now().UnixMilli()}
	if cmd.Options != nil {
		msg.Data = cmd.Options
	}
	return c.writeJSON(msg)
}

// handleWebSocket 处理WebSocket连接：推送事件，并把浏览器的识别回调交给中继
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn}
	detach := h.relay.Attach(client)
	defer detach()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}
	h.logger.Info("websocket connected", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, client)
	if h.hub != nil {
		sub, unsubscribe := h.hub.Subscribe()
		defer unsubscribe()
		go h.forwardEvents(ctx, cancel, client, sub)
	}

	h.send(client, "connected", map[string]any{"capability": h.relay.Capability()})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(client, &msg)
	}
}

func (h *Handler) handleMessage(client *wsClient, msg *inboundMessage) {
	switch msg.Type {
	case frameHello:
		var hello helloMessage
		if err := decodeData(msg.Data, &hello); err != nil {
			h.sendError(client, "invalid hello payload")
			return
		}
		h.relay.Hello(client, hello.Supported)
		h.send(client, "capability", h.relay.Capability())
	case frameResult:
		var result resultMessage
		if err := decodeData(msg.Data, &result); err != nil {
			h.sendError(client, "invalid result payload")
			return
		}
		h.relay.Deliver(client, speech.Event{
			Kind:       speech.EventResult,
			Transcript: result.Transcript,
			IsFinal:    result.IsFinal,
			Confidence: result.Confidence,
		})
	case frameError:
		var e errorMessage
		_ = decodeData(msg.Data, &e)
		h.relay.Deliver(client, speech.Event{Kind: speech.EventError, Error: e.Error})
	case frameEnd:
		h.relay.Deliver(client, speech.Event{Kind: speech.EventEnd})
	default:
		h.sendError(client, "unsupported message type: "+msg.Type)
	}
}

func decodeData(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// forwardEvents 转发事件，直到 ctx 结束或订阅关闭
func (h *Handler) forwardEvents(ctx context.Context, cancel context.CancelFunc, client *wsClient, sub <-chan events.Event) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if err := client.writeJSON(evt); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) send(client *wsClient, msgType string, data interface{}) {
	msg := outgoingMessage{Type: msgType, Data: data, Timestamp: time.Now().UnixMilli()}
	if err := client.writeJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.String("type", msgType), zap.Error(err))
	}
}

func (h *Handler) sendError(client *wsClient, message string) {
	h.send(client, "error", map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, client *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.ping(); err != nil {
				return
			}
		}
	}
}
