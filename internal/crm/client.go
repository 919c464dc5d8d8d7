package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/config"
	"github.com/pr-poehali-dev/gift-certificate-sweep/internal/models"
	"github.com/pr-poehali-dev/gift-certificate-sweep/pkg/metrics"
)

const (
	endpointPing          = "ping"
	endpointTemplates     = "getTemplates"
	endpointClients       = "getClients"
	endpointCreateClients = "createClients"
	endpointCreateOrder   = "createOrder"
)

// Error wraps a CRM call that did not produce what the caller needed. Result
// holds the raw call outcome for diagnostics.
type Error struct {
	Op        string
	Message   string
	Result    *models.CallResult
	APIErrors []json.RawMessage
}

func (e *Error) Error() string {
	if e.Result != nil {
		return fmt.Sprintf("crm %s: %s (status %d)", e.Op, e.Message, e.Result.Status)
	}
	return fmt.Sprintf("crm %s: %s", e.Op, e.Message)
}

// Client talks to the loyalty platform's open API. The API key travels as the
// token query parameter on every request.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg config.CRMConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (c *Client) Ping(ctx context.Context) *models.CallResult {
	return c.Call(ctx, http.MethodGet, endpointPing, nil, nil)
}

func (c *Client) Templates(ctx context.Context) *models.CallResult {
	return c.Call(ctx, http.MethodGet, endpointTemplates, nil, nil)
}

func (c *Client) Clients(ctx context.Context) *models.CallResult {
	return c.Call(ctx, http.MethodGet, endpointClients, nil, nil)
}

// LookupClient fetches a single client by id.
func (c *Client) LookupClient(ctx context.Context, clientID string) *models.CallResult {
	return c.Call(ctx, http.MethodGet, endpointClients, url.Values{"clientId": {clientID}}, nil)
}

// CreateClient registers one client and returns the identifiers the CRM
// assigned to it.
func (c *Client) CreateClient(ctx context.Context, client models.CRMClient) (*models.CreatedClient, error) {
	result := c.Call(ctx, http.MethodPost, endpointCreateClients, nil, models.CreateClientsRequest{
		Clients: []models.CRMClient{client},
	})
	if !result.OK {
		return nil, &Error{Op: endpointCreateClients, Message: "failed to create client", Result: result}
	}

	var resp models.CreateClientsResponse
	if len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, &resp); err != nil {
			return nil, &Error{Op: endpointCreateClients, Message: fmt.Sprintf("unexpected response: %v", err), Result: result}
		}
	}

	if len(resp.Errors) > 0 {
		c.logger.Warn("crm reported client errors", zap.Int("count", len(resp.Errors)), zap.Any("errors", resp.Errors))
	}

	if len(resp.Response) == 0 {
		return nil, &Error{
			Op:        endpointCreateClients,
			Message:   "CRM returned no client data",
			Result:    result,
			APIErrors: resp.Errors,
		}
	}

	return &resp.Response[0], nil
}

// CreateOrder posts an order against clientID.
func (c *Client) CreateOrder(ctx context.Context, clientID string, order models.DepositOrder) (*models.CallResult, error) {
	params := url.Values{}
	params.Set("type", "clientId")
	params.Set("id", clientID)

	result := c.Call(ctx, http.MethodPost, endpointCreateOrder, params, order)
	if !result.OK {
		return result, &Error{Op: endpointCreateOrder, Message: "failed to create deposit order", Result: result}
	}
	return result, nil
}

// Call performs one request. It never returns nil: transport failures,
// non-2xx statuses and malformed bodies are all folded into the result.
func (c *Client) Call(ctx context.Context, method, endpoint string, params url.Values, payload interface{}) (result *models.CallResult) {
	started := time.Now()
	defer func() {
		metrics.ObserveUpstream("crm", endpoint, result.OK, started)
	}()

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("token", c.apiKey)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &models.CallResult{OK: false, Status: http.StatusInternalServerError, Error: err.Error()}
		}
		c.logger.Debug("crm request payload", zap.String("endpoint", endpoint), zap.ByteString("payload", data))
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint+"?"+query.Encode(), body)
	if err != nil {
		return &models.CallResult{OK: false, Status: http.StatusInternalServerError, Error: err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("crm request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return &models.CallResult{OK: false, Status: http.StatusInternalServerError, Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.CallResult{OK: false, Status: http.StatusInternalServerError, Error: err.Error()}
	}

	c.logger.Info("crm response",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(started)))
	c.logger.Debug("crm response body", zap.String("endpoint", endpoint), zap.ByteString("body", raw))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &models.CallResult{OK: false, Status: resp.StatusCode, Error: decodeErrorBody(raw)}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return &models.CallResult{OK: true, Status: resp.StatusCode, Data: json.RawMessage(`{}`)}
	}
	if !json.Valid(raw) {
		return &models.CallResult{OK: false, Status: http.StatusInternalServerError, Error: "invalid JSON response: " + string(raw)}
	}

	return &models.CallResult{OK: true, Status: resp.StatusCode, Data: json.RawMessage(raw)}
}

// decodeErrorBody keeps JSON error payloads structured and everything else as
// text.
func decodeErrorBody(raw []byte) interface{} {
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return string(raw)
}
