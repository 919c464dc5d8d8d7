package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/config"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
	"github.com/pr-poehali-dev/gift-certificate-sweep/pkg/metrics"
)

const (
	registerEndpoint    = "register.do"
	orderStatusEndpoint = "getOrderStatusExtended.do"
)

// Error is a failed gateway call: a non-zero errorCode in the response, an
// HTTP failure or a transport error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// Client talks to the acquiring REST API. Requests are form encoded and
// carry the merchant credentials, responses are JSON.
type Client struct {
	baseURL    string
	token      string
	login      string
	password   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg config.GatewayConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		login:      cfg.Login,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Register creates an order and returns the hosted payment page URL.
func (c *Client) Register(ctx context.Context, order *models.RegisterOrder) (*models.RegisterResult, error) {
	form := url.Values{}
	form.Set("orderNumber", order.OrderNumber)
	form.Set("amount", strconv.FormatInt(order.Amount, 10))
	form.Set("returnUrl", order.ReturnURL)
	form.Set("description", order.Description)
	form.Set("jsonParams", order.JSONParams)

	var result models.RegisterResult
	if err := c.call(ctx, registerEndpoint, form, &result); err != nil {
		return nil, err
	}

	if code := result.ErrorCode.String(); code != "" && code != "0" {
		return nil, &Error{Code: code, Message: result.ErrorMessage}
	}

	return &result, nil
}

// OrderStatus fetches the extended status of an order, including its
// merchant params.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (*models.OrderStatus, error) {
	form := url.Values{}
	form.Set("orderId", orderID)

	var status models.OrderStatus
	if err := c.call(ctx, orderStatusEndpoint, form, &status); err != nil {
		return nil, err
	}

	if code := status.ErrorCode.String(); code != "" && code != "0" {
		return nil, &Error{Code: code, Message: status.ErrorMessage}
	}

	return &status, nil
}

func (c *Client) authenticate(form url.Values) {
	if c.token != "" {
		form.Set("token", c.token)
		return
	}
	form.Set("userName", c.login)
	form.Set("password", c.password)
}

func (c *Client) call(ctx context.Context, endpoint string, form url.Values, out interface{}) (err error) {
	started := time.Now()
	defer func() {
		metrics.ObserveUpstream("gateway", endpoint, err == nil, started)
	}()

	c.authenticate(form)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &Error{Code: "500", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gateway request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return &Error{Code: "500", Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Code: "500", Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	c.logger.Info("gateway response",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(started)))
	c.logger.Debug("gateway response body", zap.String("endpoint", endpoint), zap.ByteString("body", body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Code: strconv.Itoa(resp.StatusCode), Message: string(body)}
	}

	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Code: "500", Message: fmt.Sprintf("failed to parse response: %v", err)}
	}

	return nil
}
