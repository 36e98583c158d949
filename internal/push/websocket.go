package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"pickandplay/pkg/contracts"

	gw "github.com/gorilla/websocket"
)

type WebsocketSubscriber struct {
	baseURL string
	userID  string
	dialer  *gw.Dialer
	logger  *slog.Logger
}

func NewWebsocketSubscriber(baseURL, userID string, logger *slog.Logger) *WebsocketSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketSubscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		dialer: &gw.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *WebsocketSubscriber) Subscribe(ctx context.Context, orderID string) (Subscription, error) {
	endpoint, err := websocketURL(s.baseURL, "/orders/"+url.PathEscape(orderID)+"/ws")
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if s.userID != "" {
		header.Set("X-User-ID", s.userID)
	}

	conn, _, err := s.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	sub := &wsSubscription{
		conn:   conn,
		events: make(chan contracts.PaymentEvent, 16),
		done:   make(chan struct{}),
	}
	go sub.readPump(s.logger.With("order_id", orderID))
	return sub, nil
}

type wsSubscription struct {
	conn   *gw.Conn
	events chan contracts.PaymentEvent
	done   chan struct{}
	once   sync.Once
}

func (s *wsSubscription) Events() <-chan contracts.PaymentEvent {
	return s.events
}

func (s *wsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *wsSubscription) readPump(logger *slog.Logger) {
	defer close(s.events)
	for {
		var evt contracts.PaymentEvent
		if err := s.conn.ReadJSON(&evt); err != nil {
			select {
			case <-s.done:
			default:
				logger.Warn("payment event stream dropped", "err", err)
				_ = s.Close()
			}
			return
		}
		select {
		case s.events <- evt:
		case <-s.done:
			return
		}
	}
}

func websocketURL(base, path string) (string, error) {
	u, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("parse push url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported push url scheme %q", u.Scheme)
	}
	return u.String(), nil
}
