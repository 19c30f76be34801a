// Package shadowfax adapts the Shadowfax hyperlocal aggregator to the
// delivery provider contract.
package shadowfax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/orderflow-backend/internal/delivery"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/retry"
)

const (
	defaultBaseURL             = "https://api.shadowfax.in"
	createOrderPath            = "/order/create/"
	cancelOrderPath            = "/order/cancel/"
	responseBodyReadLimit int64 = 1024
)

var errTokenRequired = errors.New("shadowfax api token is required")

var _ delivery.Provider = (*Client)(nil)

// Client talks to the Shadowfax order APIs and normalizes its callbacks.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	now        func() time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Shadowfax API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithClock overrides the clock used when a callback carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds the Shadowfax client given an API token.
func NewClient(token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errTokenRequired
	}

	client := &Client{
		token:      trimmed,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// NewFromConfig builds the client from the delivery settings.
func NewFromConfig(cfg config.DeliveryConfig, opts ...Option) (*Client, error) {
	timeout := cfg.ShadowfaxTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := []Option{
		WithBaseURL(cfg.ShadowfaxBaseURL),
		WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	return NewClient(cfg.ShadowfaxToken, append(base, opts...)...)
}

func (c *Client) Service() enums.DeliveryService {
	return enums.DeliveryServiceShadowfax
}

type location struct {
	Name      string   `json:"name,omitempty"`
	Address   string   `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type orderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type createOrderRequest struct {
	OrderDetails struct {
		ClientOrderID string `json:"client_order_id"`
		CustomerID    string `json:"customer_reference"`
		Paid          bool   `json:"paid"`
		OrderValue    string `json:"order_value"`
		CODAmount     string `json:"cod_amount"`
	} `json:"order_details"`
	PickupDetails location    `json:"pickup_details"`
	OrderItems    []orderItem `json:"order_items"`
}

type createOrderResponse struct {
	SFXOrderID flexibleID `json:"sfx_order_id"`
	PickupETA  *int       `json:"pickup_eta"`
	Message    string     `json:"message"`
}

// DispatchOrder creates a delivery job for the order. Client errors from
// Shadowfax are permanent; transport failures and 5xx/429 are retryable.
func (c *Client) DispatchOrder(ctx context.Context, req delivery.DispatchRequest) (*delivery.DispatchReceipt, error) {
	if c == nil {
		return nil, retry.Permanent(pkgerrors.New(pkgerrors.CodeDependency, "shadowfax client not configured"))
	}
	order := req.Order
	if order == nil {
		return nil, retry.Permanent(pkgerrors.New(pkgerrors.CodeValidation, "order is required"))
	}

	var body createOrderRequest
	body.OrderDetails.ClientOrderID = order.ID.String()
	body.OrderDetails.CustomerID = order.CustomerID.String()
	body.OrderDetails.OrderValue = order.TotalAmount.StringFixed(2)
	body.OrderDetails.CODAmount = "0.00"
	body.OrderDetails.Paid = true
	if order.PaymentMethod.CollectsCash() {
		body.OrderDetails.Paid = false
		body.OrderDetails.CODAmount = order.TotalAmount.StringFixed(2)
	}
	if v := req.Vendor; v != nil {
		body.PickupDetails = location{Name: v.Name, Latitude: v.Latitude, Longitude: v.Longitude}
		if v.Address != nil {
			body.PickupDetails.Address = *v.Address
		}
	}
	body.OrderItems = make([]orderItem, 0, len(order.Items))
	for _, item := range order.Items {
		body.OrderItems = append(body.OrderItems, orderItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    item.TotalPrice.StringFixed(2),
		})
	}

	var resp createOrderResponse
	if err := c.post(ctx, createOrderPath, body, &resp); err != nil {
		return nil, err
	}
	if resp.SFXOrderID == "" {
		return nil, retry.Permanent(pkgerrors.New(pkgerrors.CodeDependency, "shadowfax response missing sfx_order_id"))
	}
	return &delivery.DispatchReceipt{
		DeliveryOrderID:  string(resp.SFXOrderID),
		PickupETAMinutes: resp.PickupETA,
	}, nil
}

type cancelOrderRequest struct {
	SFXOrderID    string `json:"sfx_order_id"`
	ClientOrderID string `json:"client_order_id"`
	CancelReason  string `json:"cancel_reason"`
}

// CancelAtProvider cancels the Shadowfax job booked for the order.
func (c *Client) CancelAtProvider(ctx context.Context, order *models.Order, reason string) error {
	if c == nil {
		return retry.Permanent(pkgerrors.New(pkgerrors.CodeDependency, "shadowfax client not configured"))
	}
	if order == nil || order.DeliveryOrderID == nil || *order.DeliveryOrderID == "" {
		return retry.Permanent(pkgerrors.New(pkgerrors.CodeValidation, "order has no shadowfax job"))
	}
	return c.post(ctx, cancelOrderPath, cancelOrderRequest{
		SFXOrderID:    *order.DeliveryOrderID,
		ClientOrderID: order.ID.String(),
		CancelReason:  reason,
	}, nil)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal shadowfax request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(buf))
	if err != nil {
		return retry.Permanent(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build shadowfax request"))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute shadowfax request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		wrapped := pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "shadowfax request failed")
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(wrapped)
		}
		return wrapped
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode shadowfax response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
}
