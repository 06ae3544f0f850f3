// Package brokerage implements the kabu STATION order gateway client.
//
// Calls are single attempts with no retry: a failed submission is terminal for
// that trade and is reported to the caller.
package brokerage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockpulse/trading-backend/pkg/types"
	"go.uber.org/zap"
)

// Config holds the gateway connection settings.
type Config struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	APIPassword string `json:"apiPassword"`
}

// DefaultConfig returns the local gateway defaults.
func DefaultConfig() Config {
	return Config{Host: "localhost", Port: 18080}
}

var sideCodes = map[types.OrderSide]string{
	types.OrderSideBuy:  "2",
	types.OrderSideSell: "1",
}

var orderTypeCodes = map[types.OrderType]string{
	types.OrderTypeMarket: "10",
	types.OrderTypeLimit:  "20",
	types.OrderTypeStop:   "30",
}

// Client talks to a kabu STATION gateway over its local HTTP API.
type Client struct {
	baseURL  string
	password string
	token    string
	http     *http.Client
	logger   *zap.Logger
}

// NewClient creates a gateway client. Connect must be called before any
// authenticated request.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  fmt.Sprintf("http://%s:%d/kabusapi", cfg.Host, cfg.Port),
		password: cfg.APIPassword,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger.Named("brokerage"),
	}
}

// Connect obtains an API token for subsequent requests.
func (c *Client) Connect(ctx context.Context) error {
	var out struct {
		Token string `json:"Token"`
	}
	err := c.do(ctx, http.MethodPost, "/token", map[string]any{"APIPassword": c.password}, &out)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.token = out.Token
	c.logger.Info("gateway connected")
	return nil
}

// SubmitOrder sends one order and returns the gateway's order ID. Price is
// ignored for market orders.
func (c *Client) SubmitOrder(ctx context.Context, order types.Order) (string, error) {
	price := decimal.Zero
	if order.Type != types.OrderTypeMarket {
		price = order.Price
	}
	body := map[string]any{
		"Password":       c.password,
		"Symbol":         order.Security + "@1",
		"Exchange":       1,
		"SecurityType":   1,
		"Side":           sideCodes[order.Side],
		"CashMargin":     1,
		"DelivType":      2,
		"AccountType":    2,
		"Qty":            order.Quantity,
		"FrontOrderType": orderTypeCodes[order.Type],
		"Price":          price.InexactFloat64(),
		"ExpireDay":      0,
	}
	var out struct {
		OrderID string `json:"OrderId"`
	}
	if err := c.do(ctx, http.MethodPost, "/sendorder", body, &out); err != nil {
		return "", fmt.Errorf("submit order: %w", err)
	}
	c.logger.Info("order submitted",
		zap.String("security", order.Security),
		zap.String("side", string(order.Side)),
		zap.Int64("quantity", order.Quantity),
		zap.String("orderId", out.OrderID))
	return out.OrderID, nil
}

// CancelOrder cancels a previously submitted order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]any{"OrderId": orderID, "Password": c.password}
	if err := c.do(ctx, http.MethodPut, "/cancelorder", body, nil); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return nil
}

// Balance returns the cash balance reported by the gateway.
func (c *Client) Balance(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/wallet/cash", nil, &out); err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	return out, nil
}

// Positions returns the open positions reported by the gateway.
func (c *Client) Positions(ctx context.Context) ([]map[string]any, error) {
	var out []map[string]any
	if err := c.do(ctx, http.MethodGet, "/positions", nil, &out); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(encoded)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Host", "localhost")
	if c.token != "" {
		req.Header.Set("X-API-KEY", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
