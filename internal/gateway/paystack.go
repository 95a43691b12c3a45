// Package gateway talks to the Paystack payment API and authenticates its
// webhook deliveries.
package gateway

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

	"auction-engine/internal/money"
)

const DefaultTimeout = 10 * time.Second

// ErrGateway is returned when the provider answers with a failure.
var ErrGateway = errors.New("payment gateway error")

// Charge states reported by verify.
const (
	ChargeSuccess   = "success"
	ChargeFailed    = "failed"
	ChargeAbandoned = "abandoned"
)

// Transfer states reported by the transfer endpoint.
const (
	TransferSuccess = "success"
	TransferPending = "pending"
	TransferFailed  = "failed"
)

type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// envelope is the wrapper Paystack puts around every response.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type InitializeRequest struct {
	Email       string
	Amount      money.Amount
	Reference   string
	CallbackURL string
}

type Initialized struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Initialize opens a checkout session and returns its payment URL.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (Initialized, error) {
	body := map[string]any{
		"email":     req.Email,
		"amount":    int64(req.Amount),
		"reference": req.Reference,
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	var out Initialized
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &out); err != nil {
		return Initialized{}, fmt.Errorf("gateway: initialize %s: %w", req.Reference, err)
	}
	return out, nil
}

type Verification struct {
	Reference string       `json:"reference"`
	Status    string       `json:"status"`
	Amount    money.Amount `json:"-"`
	Minor     int64        `json:"amount"`
}

// Verify asks the provider for the current state of a charge.
func (c *Client) Verify(ctx context.Context, reference string) (Verification, error) {
	var out Verification
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &out); err != nil {
		return Verification{}, fmt.Errorf("gateway: verify %s: %w", reference, err)
	}
	out.Amount = money.Amount(out.Minor)
	return out, nil
}

type TransferRequest struct {
	Amount    money.Amount
	Recipient string
	Reference string
	Reason    string
}

type Transfer struct {
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	TransferCode string `json:"transfer_code"`
}

// Transfer pays amount out of the platform balance to recipient.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (Transfer, error) {
	body := map[string]any{
		"source":    "balance",
		"amount":    int64(req.Amount),
		"recipient": req.Recipient,
		"reference": req.Reference,
		"reason":    req.Reason,
	}
	var out Transfer
	if err := c.do(ctx, http.MethodPost, "/transfer", body, &out); err != nil {
		return Transfer{}, fmt.Errorf("gateway: transfer %s: %w", req.Reference, err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w - status %d, undecodable body", ErrGateway, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("%w - status %d: %s", ErrGateway, resp.StatusCode, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
