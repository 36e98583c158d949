package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"pickandplay/pkg/contracts"

	"github.com/google/uuid"
	gw "github.com/gorilla/websocket"
)

type Conn = gw.Conn

var upgrader = gw.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsHandler struct {
	hub    *Hub
	book   *Book
	logger *slog.Logger
}

// ServeWS streams PaymentEvents for one order. The first frame is the
// current payment status.
func (h *wsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")
	report, err := h.book.Status(r.Header.Get("X-User-ID"), orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "order_id", orderID, "err", err)
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		orderID: orderID,
	}
	snapshot := contracts.PaymentEvent{
		EventID:   uuid.NewString(),
		OrderID:   orderID,
		Status:    report.Status,
		Verified:  report.Settled(),
		Collected: report.Collected,
		Total:     report.Total,
		Occurred:  time.Now().UTC(),
	}
	if b, err := json.Marshal(snapshot); err == nil {
		client.send <- b
	}

	if !h.hub.join(client) {
		_ = conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(gw.TextMessage, msg); err != nil {
			return
		}
	}
}
