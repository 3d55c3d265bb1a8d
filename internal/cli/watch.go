package cli

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// Frame — сообщение WebSocket канала наблюдения.
// Зеркалирует фреймы hub: initial_state, progress, pong.
type Frame struct {
	Type      string            `json:"type"`
	JobID     string            `json:"job_id,omitempty"`
	State     *string           `json:"state,omitempty"`
	Progress  *float64          `json:"progress,omitempty"`
	Log       string            `json:"log,omitempty"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
	Job       *JobDetailResponse `json:"job,omitempty"`
}

// WatchJob подписывается на progress-события job и вызывает fn для
// каждого фрейма. Блокируется до отмены контекста, обрыва соединения
// или достижения job терминального состояния.
func (c *Client) WatchJob(ctx context.Context, jobID string, fn func(Frame) error) error {
	wsURL, err := c.watchURL(jobID)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial: HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Закрываем соединение при отмене контекста, чтобы прервать ReadJSON
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		if err := fn(frame); err != nil {
			return err
		}

		if frameTerminal(frame) {
			return nil
		}
	}
}

// frameTerminal определяет, достиг ли job терминального состояния.
func frameTerminal(frame Frame) bool {
	switch {
	case frame.Type == "initial_state" && frame.Job != nil:
		return frame.Job.State == "END" || frame.Job.State == "FAILED"
	case frame.State != nil:
		return *frame.State == "END" || *frame.State == "FAILED"
	}
	return false
}

// watchURL строит ws:// адрес подписки из базового адреса API.
func (c *Client) watchURL(jobID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/jobs/" + jobID + "/events"

	return u.String(), nil
}
