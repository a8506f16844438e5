package payer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/revcycle/revcycle/internal/domain/claims"
	"github.com/revcycle/revcycle/internal/domain/correction"
	"github.com/revcycle/revcycle/internal/domain/resubmission"
)

func TestGatewayClient_SubmitApproved(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/claims/submit" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotKey = r.Header.Get(IdempotencyKeyHeader)
		json.NewEncoder(w).Encode(resubmission.GatewayResponse{
			Outcome:    resubmission.GatewayApproved,
			PaidAmount: 120.50,
		})
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL)
	key := uuid.New()
	resp, err := client.Submit(context.Background(), resubmission.Payload{
		ClaimID:        uuid.New(),
		IdempotencyKey: key,
		PayerCode:      "AETNA",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != resubmission.GatewayApproved {
		t.Errorf("expected approved, got %s", resp.Outcome)
	}
	if resp.PaidAmount != 120.50 {
		t.Errorf("expected paid amount 120.50, got %v", resp.PaidAmount)
	}
	if gotKey != key.String() {
		t.Errorf("expected idempotency key header %s, got %s", key, gotKey)
	}
}

func TestGatewayClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL)
	resp, err := client.Submit(context.Background(), resubmission.Payload{IdempotencyKey: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != resubmission.GatewayTransient {
		t.Errorf("expected transient outcome for 502, got %s", resp.Outcome)
	}
}

func TestGatewayClient_ConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewGatewayClient(srv.URL)
	resp, err := client.Submit(context.Background(), resubmission.Payload{IdempotencyKey: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != resubmission.GatewayTransient {
		t.Errorf("expected transient outcome for connection failure, got %s", resp.Outcome)
	}
}

func TestGatewayClient_StatusUnknownFor404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL)
	resp, err := client.Status(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != resubmission.GatewayUnknown {
		t.Errorf("expected unknown outcome, got %s", resp.Outcome)
	}
}

func TestLookupClient_Resolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fields/auth:pat-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"value": "AUTH-99"})
	}))
	defer srv.Close()

	client := NewLookupClient(srv.URL)

	val, err := client.Resolve(context.Background(), "auth:pat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "AUTH-99" {
		t.Errorf("expected AUTH-99, got %s", val)
	}

	_, err = client.Resolve(context.Background(), "auth:missing")
	if !errors.Is(err, correction.ErrLookupNotFound) {
		t.Errorf("expected ErrLookupNotFound for 404, got %v", err)
	}
}

func TestScorerClient_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"score": 0.91, "model_id": "cm-2"})
	}))
	defer srv.Close()

	client := NewScorerClient(srv.URL)
	score, err := client.Score(context.Background(), &claims.CorrectedClaim{BaseClaimID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Score != 0.91 {
		t.Errorf("expected score 0.91, got %v", score.Score)
	}
	if score.ModelID != "cm-2" {
		t.Errorf("expected model cm-2, got %s", score.ModelID)
	}
}

func TestScorerClient_RejectsOutOfRangeScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"score": 1.7})
	}))
	defer srv.Close()

	client := NewScorerClient(srv.URL)
	_, err := client.Score(context.Background(), &claims.CorrectedClaim{BaseClaimID: uuid.New()})
	if err == nil {
		t.Fatal("expected error for out-of-range score")
	}
}

func TestSandboxGateway_StatusRemembersSubmissions(t *testing.T) {
	g := NewSandboxGateway()
	key := uuid.New()

	resp, err := g.Submit(context.Background(), resubmission.Payload{
		IdempotencyKey: key,
		Claim:          claims.Claim{TotalAmount: 50},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != resubmission.GatewayApproved {
		t.Errorf("expected approved, got %s", resp.Outcome)
	}

	status, err := g.Status(context.Background(), key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Outcome != resubmission.GatewayApproved {
		t.Errorf("expected remembered approval, got %s", status.Outcome)
	}

	status, err = g.Status(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Outcome != resubmission.GatewayUnknown {
		t.Errorf("expected unknown for unseen key, got %s", status.Outcome)
	}
}
