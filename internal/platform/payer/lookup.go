package payer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/revcycle/revcycle/internal/domain/correction"
)

// LookupClient resolves correction lookup keys against the reference-data
// service. A 404 maps to correction.ErrLookupNotFound so the corrector can
// distinguish "no such record" from a transport failure.
type LookupClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewLookupClient(baseURL string) *LookupClient {
	return &LookupClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (l *LookupClient) Resolve(ctx context.Context, key string) (string, error) {
	u := l.baseURL + "/fields/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup %q: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", correction.ErrLookupNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lookup %q: service returned %d", key, resp.StatusCode)
	}

	var out struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&out); err != nil {
		return "", fmt.Errorf("lookup %q: decode response: %w", key, err)
	}
	return out.Value, nil
}

// StaticLookup is a map-backed FieldLookup for development and tests.
type StaticLookup map[string]string

func (s StaticLookup) Resolve(_ context.Context, key string) (string, error) {
	v, ok := s[key]
	if !ok {
		return "", correction.ErrLookupNotFound
	}
	return v, nil
}
