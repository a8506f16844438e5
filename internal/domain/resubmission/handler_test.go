package resubmission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/revcycle/revcycle/internal/domain/claims"
)

func claimRequest(e *echo.Echo, method, target, id string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	return c, rec
}

func TestHandler_ResubmitAccepted(t *testing.T) {
	gw := &scriptedGateway{responses: []GatewayResponse{{Outcome: GatewayApproved, PaidAmount: 85.00}}}
	eng := newEngine(t, Config{}, gw, stubScorer{score: 0.95}, referenceLookup(), instantClock{})
	id := eng.seed(t, rejectedClaim("CO-16", "missing authorization number"))

	h := NewHandler(eng.orch)
	e := echo.New()

	c, rec := claimRequest(e, http.MethodPost, "/api/v1/claims/"+id.String()+"/resubmit", id.String())
	if err := h.Resubmit(c); err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var handle Handle
	if err := json.Unmarshal(rec.Body.Bytes(), &handle); err != nil {
		t.Fatalf("decode handle: %v", err)
	}
	if handle.ClaimID != id {
		t.Errorf("handle claim = %s, want %s", handle.ClaimID, id)
	}

	eng.waitClaimStatus(t, id, claims.StatusApproved)
}

func TestHandler_ResubmitErrors(t *testing.T) {
	eng := newEngine(t, Config{}, &scriptedGateway{}, stubScorer{score: 0.95}, referenceLookup(), instantClock{})
	h := NewHandler(eng.orch)
	e := echo.New()

	notRejected := rejectedClaim("CO-16", "")
	notRejected.Status = claims.StatusApproved
	notRejectedID := eng.seed(t, notRejected)

	locked := eng.seed(t, rejectedClaim("CO-16", "missing authorization number"))
	if !eng.orch.locks.TryAcquire(locked) {
		t.Fatal("acquire claim lock")
	}
	defer eng.orch.locks.Release(locked)

	cases := []struct {
		name string
		id   string
		want int
	}{
		{"malformed id", "nope", http.StatusBadRequest},
		{"unknown claim", uuid.NewString(), http.StatusNotFound},
		{"not rejected", notRejectedID.String(), http.StatusUnprocessableEntity},
		{"cycle in flight", locked.String(), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := claimRequest(e, http.MethodPost, "/api/v1/claims/"+tc.id+"/resubmit", tc.id)
			err := h.Resubmit(c)

			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != tc.want {
				t.Fatalf("got %v, want %d", err, tc.want)
			}
		})
	}
}

func TestHandler_ResubmitOverrideReleasesHold(t *testing.T) {
	gw := &scriptedGateway{responses: []GatewayResponse{{Outcome: GatewayApproved, PaidAmount: 85.00}}}
	eng := newEngine(t, Config{}, gw, stubScorer{score: 0.40}, referenceLookup(), instantClock{})
	id := eng.seed(t, rejectedClaim("CO-16", "missing authorization number"))

	h := NewHandler(eng.orch)
	e := echo.New()

	c, rec := claimRequest(e, http.MethodPost, "/api/v1/claims/"+id.String()+"/resubmit", id.String())
	if err := h.Resubmit(c); err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	eng.waitReviewItem(t)
	eng.waitClaimStatus(t, id, claims.StatusCorrected)

	// Held claims are refused without the override flag.
	c, _ = claimRequest(e, http.MethodPost, "/api/v1/claims/"+id.String()+"/resubmit", id.String())
	err := h.Resubmit(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnprocessableEntity {
		t.Fatalf("resubmit without override: got %v, want 422", err)
	}

	c, rec = claimRequest(e, http.MethodPost, "/api/v1/claims/"+id.String()+"/resubmit?override=true", id.String())
	if err := h.Resubmit(c); err != nil {
		t.Fatalf("Resubmit with override: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	eng.waitClaimStatus(t, id, claims.StatusApproved)
}

func TestHandler_StatusReportsAttemptHistory(t *testing.T) {
	gw := &scriptedGateway{responses: []GatewayResponse{{Outcome: GatewayApproved, PaidAmount: 85.00}}}
	eng := newEngine(t, Config{}, gw, stubScorer{score: 0.95}, referenceLookup(), instantClock{})
	id := eng.seed(t, rejectedClaim("CO-16", "missing authorization number"))

	if _, err := eng.orch.SubmitForResubmission(context.Background(), id, false); err != nil {
		t.Fatalf("SubmitForResubmission: %v", err)
	}
	eng.waitClaimStatus(t, id, claims.StatusApproved)

	h := NewHandler(eng.orch)
	e := echo.New()

	c, rec := claimRequest(e, http.MethodGet, "/api/v1/claims/"+id.String()+"/status", id.String())
	if err := h.Status(c); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got ClaimStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != string(claims.StatusApproved) {
		t.Errorf("claim status = %q, want approved", got.Status)
	}
	if len(got.Attempts) != 1 || got.Attempts[0].Outcome != OutcomeApproved {
		t.Errorf("unexpected attempt history %+v", got.Attempts)
	}
}

func TestHandler_StatusUnknownClaim(t *testing.T) {
	eng := newEngine(t, Config{}, &scriptedGateway{}, stubScorer{score: 0.95}, referenceLookup(), instantClock{})
	h := NewHandler(eng.orch)
	e := echo.New()

	id := uuid.NewString()
	c, _ := claimRequest(e, http.MethodGet, "/api/v1/claims/"+id+"/status", id)
	err := h.Status(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("got %v, want 404", err)
	}
}

func TestHandler_CancelAccepted(t *testing.T) {
	eng := newEngine(t, Config{}, &scriptedGateway{}, stubScorer{score: 0.95}, referenceLookup(), instantClock{})
	h := NewHandler(eng.orch)
	e := echo.New()

	id := uuid.NewString()
	c, rec := claimRequest(e, http.MethodPost, "/api/v1/claims/"+id+"/cancel", id)
	if err := h.Cancel(c); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
}

func TestHandler_ListReviewQueue(t *testing.T) {
	eng := newEngine(t, Config{}, &scriptedGateway{}, stubScorer{score: 0.95}, referenceLookup(), instantClock{})
	id := eng.seed(t, rejectedClaim("CO-18", "duplicate claim/service"))

	if _, err := eng.orch.SubmitForResubmission(context.Background(), id, false); err != nil {
		t.Fatalf("SubmitForResubmission: %v", err)
	}
	eng.waitReviewItem(t)

	h := NewHandler(eng.orch)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/review-queue", nil)
	rec := httptest.NewRecorder()
	if err := h.ListReviewQueue(e.NewContext(req, rec)); err != nil {
		t.Fatalf("ListReviewQueue: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Data  []ReviewItem `json:"data"`
		Total int          `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Data[0].Kind != ReviewUncorrectable {
		t.Errorf("review kind = %q, want %q", resp.Data[0].Kind, ReviewUncorrectable)
	}
}
