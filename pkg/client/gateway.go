package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"robopay/pkg/x402"
)

// GatewayClient calls the payment gateway API on behalf of one payer.
type GatewayClient struct {
	httpClient *HttpClient
	token      string
}

func NewGatewayClient(baseURL, token string) *GatewayClient {
	return &GatewayClient{
		httpClient: NewHttpClient(baseURL, DefaultTimeout),
		token:      token,
	}
}

type VerifyResult struct {
	Verified  bool   `json:"verified"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

func (c *GatewayClient) headers() map[string]string {
	if c.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.token}
}

// Execute requests a task. When sessionID is set the paid path is used.
func (c *GatewayClient) Execute(ctx context.Context, robotID string, body any, sessionID string) (*Response, error) {
	headers := c.headers()
	if sessionID != "" {
		if headers == nil {
			headers = map[string]string{}
		}
		headers[x402.HeaderSessionID] = sessionID
	}
	path := "/api/v1/robots/" + url.PathEscape(robotID) + "/execute"
	return c.httpClient.POST(ctx, path, body, headers)
}

func (c *GatewayClient) Verify(ctx context.Context, sessionID, txSignature string) (*Response, error) {
	body := map[string]string{
		"session_id":   sessionID,
		"tx_signature": txSignature,
	}
	return c.httpClient.POST(ctx, "/api/v1/payments/verify", body, c.headers())
}

func (c *GatewayClient) Session(ctx context.Context, sessionID string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/payments/sessions/"+url.PathEscape(sessionID), c.headers())
}

func (c *GatewayClient) CancelSession(ctx context.Context, sessionID string) (*Response, error) {
	return c.httpClient.DELETE(ctx, "/api/v1/payments/sessions/"+url.PathEscape(sessionID), c.headers())
}

func (c *GatewayClient) Availability(ctx context.Context, robotID string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/robots/"+url.PathEscape(robotID)+"/availability", nil)
}

func (c *GatewayClient) Metrics(ctx context.Context, robotID string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/robots/"+url.PathEscape(robotID)+"/metrics", c.headers())
}

// DecodePaymentRequired reads a 402 challenge from the response headers.
func (c *GatewayClient) DecodePaymentRequired(resp *Response) (x402.PaymentRequired, error) {
	if resp.StatusCode != http.StatusPaymentRequired {
		return x402.PaymentRequired{}, fmt.Errorf("expected 402, got %s", resp.ToString())
	}
	pr, ok := x402.Decode(resp.Header)
	if !ok {
		return x402.PaymentRequired{}, fmt.Errorf("402 response without payment headers: %s", resp.ToString())
	}
	return pr, nil
}

func (c *GatewayClient) DecodeVerify(resp *Response) (*VerifyResult, error) {
	var result VerifyResult
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, fmt.Errorf("could not decode verify response:\n%s\n%w", resp.ToString(), err)
	}
	return &result, nil
}
