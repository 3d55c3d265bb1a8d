package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shaiso/Clipline/internal/hub"
)

// upgrader — параметры WebSocket handshake.
//
// CheckOrigin пропускает любые origins: API отдаётся за reverse proxy,
// который отвечает за CORS-политику.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WatchJob открывает WebSocket подписку на progress-события job.
// GET /api/v1/jobs/{id}/events
//
// Протокол: сразу после handshake клиент получает фрейм initial_state
// с полным снапшотом job, затем — поток progress-фреймов с частичными
// обновлениями. Снапшот отправляется до регистрации в Hub, поэтому
// клиент никогда не видит progress-фрейм раньше начального состояния.
func (h *Handler) WatchJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	// Снапшот читается мимо кэша: подписчик должен стартовать
	// с актуального состояния
	job, err := h.jobs.GetFresh(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "job not found") {
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже отправил HTTP ошибку клиенту
		h.logger.Debug("websocket upgrade failed", "job_id", id, "error", err)
		return
	}

	conn := hub.NewConn(ws, h.logger)
	conn.Send(hub.InitialStateFrame(job))
	h.hub.Register(id, conn)

	h.logger.Info("websocket subscriber connected", "job_id", id)

	conn.Run(func() {
		h.hub.Unregister(id, conn)
		h.logger.Info("websocket subscriber disconnected", "job_id", id)
	})
}
