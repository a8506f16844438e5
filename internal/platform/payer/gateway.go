// Package payer provides the HTTP clients for the engine's external
// collaborators: the payer/clearinghouse submission gateway, the
// reference-data lookup service and the confidence scorer. Each client has an
// in-process sandbox counterpart used when no URL is configured.
package payer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/revcycle/revcycle/internal/domain/resubmission"
)

// IdempotencyKeyHeader carries the per-attempt key so the clearinghouse can
// deduplicate network-level retries.
const IdempotencyKeyHeader = "X-Idempotency-Key"

// GatewayOption configures a GatewayClient.
type GatewayOption func(*GatewayClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *GatewayClient) { g.httpClient = c }
}

// GatewayClient submits claims to a clearinghouse over HTTP. Transport
// failures and 5xx responses are reported as GatewayTransient rather than
// errors, since the submission may have reached the payer.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewGatewayClient(baseURL string, opts ...GatewayOption) *GatewayClient {
	g := &GatewayClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *GatewayClient) Submit(ctx context.Context, payload resubmission.Payload) (resubmission.GatewayResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return resubmission.GatewayResponse{}, fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/claims/submit", bytes.NewReader(body))
	if err != nil {
		return resubmission.GatewayResponse{}, fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyKeyHeader, payload.IdempotencyKey.String())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return resubmission.GatewayResponse{Outcome: resubmission.GatewayTransient, RawMessage: err.Error()}, nil
	}
	defer resp.Body.Close()

	return decodeGatewayResponse(resp)
}

func (g *GatewayClient) Status(ctx context.Context, idempotencyKey uuid.UUID) (resubmission.GatewayResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/claims/status/"+idempotencyKey.String(), nil)
	if err != nil {
		return resubmission.GatewayResponse{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return resubmission.GatewayResponse{}, fmt.Errorf("gateway status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// The gateway has no record of this key: the submission never arrived.
		return resubmission.GatewayResponse{Outcome: resubmission.GatewayUnknown}, nil
	}

	return decodeGatewayResponse(resp)
}

func decodeGatewayResponse(resp *http.Response) (resubmission.GatewayResponse, error) {
	if resp.StatusCode >= 500 {
		return resubmission.GatewayResponse{
			Outcome:    resubmission.GatewayTransient,
			RawMessage: fmt.Sprintf("gateway returned %d", resp.StatusCode),
		}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resubmission.GatewayResponse{}, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	var out resubmission.GatewayResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return resubmission.GatewayResponse{Outcome: resubmission.GatewayTransient, RawMessage: err.Error()}, nil
	}
	return out, nil
}
