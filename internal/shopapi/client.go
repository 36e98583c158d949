package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pickandplay/internal/order"
	"pickandplay/internal/payment"
	"pickandplay/pkg/contracts"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// Client talks to the shop backend's order and payment endpoints.
type Client struct {
	baseURL    string
	userID     string
	currency   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, userID, currency string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		userID:   userID,
		currency: currency,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	var o order.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &o); err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return &o, nil
}

func (c *Client) UpdateOrderItems(ctx context.Context, orderID string, items []order.LineItem) error {
	body := struct {
		Items []order.LineItem `json:"items"`
	}{Items: items}
	if err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(orderID)+"/items", body, nil); err != nil {
		return fmt.Errorf("update order %s items: %w", orderID, err)
	}
	return nil
}

func (c *Client) CreateOrder(ctx context.Context, req order.CreateRequest) (string, error) {
	var resp struct {
		ID      contracts.ID `json:"id"`
		OrderID contracts.ID `json:"order_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders", req, &resp); err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}

	id := string(resp.ID)
	if id == "" {
		id = string(resp.OrderID)
	}
	if id == "" {
		return "", fmt.Errorf("create order: response carries no order id")
	}
	return id, nil
}

// RequestArtifact mints a QR payment code. A response without a code is not
// an error: the artifact comes back Degraded with the raw body attached.
func (c *Client) RequestArtifact(ctx context.Context, orderID string, amount decimal.Decimal) (*payment.Artifact, error) {
	req := struct {
		OrderID  string          `json:"order_id"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}{OrderID: orderID, Amount: amount, Currency: c.currency}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/payments/qr", req, &raw); err != nil {
		return nil, fmt.Errorf("request payment code for order %s: %w", orderID, err)
	}

	artifact := &payment.Artifact{Raw: raw}
	if err := json.Unmarshal(raw, artifact); err != nil {
		c.logger.Warn("payment code response not understood", "order_id", orderID, "err", err)
	}
	if artifact.Code == "" {
		var alt struct {
			Code string `json:"code"`
		}
		if json.Unmarshal(raw, &alt) == nil {
			artifact.Code = alt.Code
		}
	}

	artifact.OrderID = orderID
	if artifact.Amount.IsZero() {
		artifact.Amount = amount
	}
	if artifact.Currency == "" {
		artifact.Currency = c.currency
	}
	artifact.Degraded = artifact.Code == ""
	return artifact, nil
}

func (c *Client) GetPaymentStatus(ctx context.Context, orderID string) (*payment.StatusReport, error) {
	var report payment.StatusReport
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(orderID)+"/status", nil, &report); err != nil {
		return nil, fmt.Errorf("payment status for order %s: %w", orderID, err)
	}
	if report.OrderID == "" {
		report.OrderID = orderID
	}
	return &report, nil
}

func (c *Client) SubmitScan(ctx context.Context, req payment.ScanRequest) error {
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(req.OrderID)+"/scan", req, nil); err != nil {
		return fmt.Errorf("submit scan for order %s: %w", req.OrderID, err)
	}
	return nil
}

func (c *Client) NotifyCompleted(ctx context.Context, orderID string) error {
	if err := c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/notify", nil, nil); err != nil {
		return fmt.Errorf("notify order %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
