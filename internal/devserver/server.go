package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"pickandplay/internal/order"
	"pickandplay/internal/payment"
	"pickandplay/pkg/contracts"
	"pickandplay/pkg/messaging"

	"github.com/shopspring/decimal"
)

const RoutingKeyPaymentEvent = "payments.event"

type Server struct {
	book      *Book
	hub       *Hub
	publisher messaging.Publisher
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer wires the shop endpoints. publisher may be nil; payment events
// then only reach websocket clients.
func NewServer(book *Book, hub *Hub, publisher messaging.Publisher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		book:      book,
		hub:       hub,
		publisher: publisher,
		logger:    logger,
		mux:       http.NewServeMux(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	ws := &wsHandler{hub: s.hub, book: s.book, logger: s.logger}

	s.mux.HandleFunc("POST /orders", s.createOrder)
	s.mux.HandleFunc("GET /orders/{orderID}", s.getOrder)
	s.mux.HandleFunc("PUT /orders/{orderID}/items", s.replaceItems)
	s.mux.HandleFunc("POST /orders/{orderID}/notify", s.notify)
	s.mux.HandleFunc("GET /orders/{orderID}/ws", ws.ServeWS)
	s.mux.HandleFunc("POST /payments/qr", s.mintCode)
	s.mux.HandleFunc("GET /payments/{orderID}/status", s.paymentStatus)
	s.mux.HandleFunc("POST /payments/{orderID}/scan", s.scan)
	s.mux.HandleFunc("GET /notifications", s.listNotifications)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	o, err := s.book.Create(userID(r), req)
	if err != nil {
		s.writeBookError(w, "create order", err)
		return
	}

	s.logger.Info("order created", "order_id", o.ID, "total", o.Total)
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.book.Get(userID(r), r.PathValue("orderID"))
	if err != nil {
		s.writeBookError(w, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) replaceItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []order.LineItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	o, err := s.book.ReplaceItems(userID(r), r.PathValue("orderID"), req.Items)
	if err != nil {
		s.writeBookError(w, "replace items", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) notify(w http.ResponseWriter, r *http.Request) {
	n, err := s.book.RecordNotification(userID(r), r.PathValue("orderID"), "http")
	if err != nil {
		s.writeBookError(w, "notify", err)
		return
	}
	s.logger.Info("checkout completion received", "order_id", n.OrderID, "source", n.Source)
	writeJSON(w, http.StatusAccepted, n)
}

func (s *Server) mintCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID  string          `json:"order_id"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	art, err := s.book.MintCode(userID(r), req.OrderID, req.Amount, req.Currency)
	if err != nil {
		s.writeBookError(w, "mint code", err)
		return
	}
	writeJSON(w, http.StatusCreated, art)
}

func (s *Server) paymentStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.book.Status(userID(r), r.PathValue("orderID"))
	if err != nil {
		s.writeBookError(w, "payment status", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	var req payment.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.OrderID = r.PathValue("orderID")

	report, evt, err := s.book.Scan(userID(r), req)
	if err != nil {
		s.writeBookError(w, "scan", err)
		return
	}

	s.logger.Info("payment scanned", "order_id", req.OrderID, "ref", req.TransactionRef, "status", report.Status)
	s.publish(r.Context(), evt)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"notifications": s.book.Notifications()})
}

func (s *Server) publish(ctx context.Context, evt contracts.PaymentEvent) {
	s.hub.Broadcast(evt)
	if s.publisher == nil {
		return
	}
	if err := messaging.PublishJSON(context.WithoutCancel(ctx), s.publisher, RoutingKeyPaymentEvent, evt); err != nil {
		s.logger.Warn("publish payment event", "order_id", evt.OrderID, "err", err)
	}
}

func (s *Server) writeBookError(w http.ResponseWriter, op string, err error) {
	var stockErr *StockError
	switch {
	case errors.As(err, &stockErr):
		writeError(w, http.StatusBadRequest, stockErr.Error())
	case errors.Is(err, ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, ErrNotPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrInvalidScan):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
