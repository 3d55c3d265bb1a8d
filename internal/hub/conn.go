package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Параметры WebSocket соединения.
const (
	// writeWait — таймаут записи одного фрейма.
	writeWait = 10 * time.Second

	// pongWait — сколько ждём pong от клиента.
	pongWait = 60 * time.Second

	// pingPeriod — период ping (меньше pongWait).
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize — лимит входящего сообщения.
	maxMessageSize = 1024

	// sendBuffer — размер очереди исходящих фреймов.
	sendBuffer = 64
)

// clientMessage — входящее сообщение от клиента.
type clientMessage struct {
	Type string `json:"type"`
}

// Conn — обёртка над WebSocket соединением.
//
// Запись идёт только из writePump (websocket.Conn не допускает
// конкурентную запись), остальные горутины кладут фреймы в буфер
// через trySend.
type Conn struct {
	ws     *websocket.Conn
	send   chan Frame
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewConn оборачивает установленное WebSocket соединение.
func NewConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		ws:     ws,
		send:   make(chan Frame, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// trySend ставит фрейм в очередь отправки без блокировки.
func (c *Conn) trySend(frame Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Send ставит фрейм в очередь отправки без блокировки.
// false — буфер переполнен или соединение закрыто.
func (c *Conn) Send(frame Frame) bool {
	return c.trySend(frame)
}

// shutdown закрывает соединение. Повторные вызовы безопасны.
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// Close закрывает соединение (публичная версия для вызывающего кода).
func (c *Conn) Close() {
	c.shutdown()
}

// Run запускает read/write pumps и блокируется до закрытия
// соединения любой из сторон. onClose вызывается ровно один раз.
func (c *Conn) Run(onClose func()) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.writePump()
	}()
	go func() {
		defer wg.Done()
		c.readPump()
	}()

	wg.Wait()
	if onClose != nil {
		onClose()
	}
}

// writePump пишет фреймы из очереди и шлёт ping по таймеру.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			return

		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(frame); err != nil {
				c.logger.Debug("write failed, closing connection", "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump читает клиентские сообщения (ping) и следит за pong.
func (c *Conn) readPump() {
	defer c.shutdown()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("unexpected close", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if msg.Type == "ping" {
			c.trySend(PongFrame())
		}
	}
}
