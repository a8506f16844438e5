package payer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/revcycle/revcycle/internal/domain/claims"
	"github.com/revcycle/revcycle/internal/domain/validation"
)

// ScorerClient calls the external confidence-scoring service. Callers treat
// any error as a degraded score, so this client does not retry.
type ScorerClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewScorerClient(baseURL string) *ScorerClient {
	return &ScorerClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *ScorerClient) Score(ctx context.Context, corrected *claims.CorrectedClaim) (validation.ConfidenceScore, error) {
	body, err := json.Marshal(corrected)
	if err != nil {
		return validation.ConfidenceScore{}, fmt.Errorf("marshal corrected claim: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return validation.ConfidenceScore{}, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return validation.ConfidenceScore{}, fmt.Errorf("score claim %s: %w", corrected.BaseClaimID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return validation.ConfidenceScore{}, fmt.Errorf("scorer returned %d", resp.StatusCode)
	}

	var score validation.ConfidenceScore
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&score); err != nil {
		return validation.ConfidenceScore{}, fmt.Errorf("decode score: %w", err)
	}
	if score.Score < 0 || score.Score > 1 {
		return validation.ConfidenceScore{}, fmt.Errorf("scorer returned out-of-range score %v", score.Score)
	}
	return score, nil
}
