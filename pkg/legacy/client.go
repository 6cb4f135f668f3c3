// Package legacy provides a typed HTTP client for the legacy order system.
// Business outcomes (order not found, cancellation refused) are typed errors;
// transport failures and 5xx responses count against a circuit breaker so a
// flapping upstream stops being hammered.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/AtendeAI/atende-mvp/engine/domain"
	"github.com/AtendeAI/atende-mvp/pkg/resilience"
)

// OrderItem is one line of an order.
type OrderItem struct {
	ItemName string  `json:"item_name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is the legacy system's order representation.
type Order struct {
	OrderID           string             `json:"order_id"`
	CustomerName      string             `json:"customer_name"`
	Status            domain.OrderStatus `json:"status"`
	Items             []OrderItem        `json:"items"`
	TotalValue        float64            `json:"total_value"`
	CreatedAt         time.Time          `json:"created_at"`
	EstimatedDelivery time.Time          `json:"estimated_delivery"`
}

// CancelResult is the legacy system's cancellation confirmation.
type CancelResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrOrderNotFound means the legacy system has no such order (404).
var ErrOrderNotFound = errors.New("order not found")

// APIError is a non-2xx upstream response carrying the upstream's own
// detail message, unchanged.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("legacy: status %d: %s", e.Status, e.Detail)
}

// Client calls the legacy order system.
type Client struct {
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// New creates a Client for the legacy API at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(20), 5),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

// detailBody is the upstream's error envelope.
type detailBody struct {
	Detail string `json:"detail"`
}

// GetOrder fetches order details. A 404 maps to ErrOrderNotFound; any other
// non-200 maps to *APIError.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/orders/%s", c.baseURL, orderID), func(resp *http.Response) error {
		switch resp.StatusCode {
		case http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(&order)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		default:
			return &APIError{Status: resp.StatusCode, Detail: readDetail(resp)}
		}
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder requests cancellation. A 404 maps to ErrOrderNotFound; a 400
// (business refusal, e.g. already delivered) maps to *APIError with the
// upstream message preserved.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*CancelResult, error) {
	var result CancelResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/orders/%s/cancel", c.baseURL, orderID), func(resp *http.Response) error {
		switch resp.StatusCode {
		case http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(&result)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		default:
			return &APIError{Status: resp.StatusCode, Detail: readDetail(resp)}
		}
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// do runs one rate-limited request through the circuit breaker. Business
// responses (404, 400) do not trip the breaker; transport failures and 5xx do.
func (c *Client) do(ctx context.Context, method, url string, handle func(*http.Response) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var handleErr error
	breakerErr := c.breaker.Call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("legacy: %s %s: %w", method, url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return &APIError{Status: resp.StatusCode, Detail: readDetail(resp)}
		}
		handleErr = handle(resp)
		return nil
	})
	if breakerErr != nil {
		return breakerErr
	}
	return handleErr
}

func readDetail(resp *http.Response) string {
	var body detailBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	return body.Detail
}
