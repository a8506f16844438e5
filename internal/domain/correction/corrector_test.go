package correction

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/revcycle/revcycle/internal/domain/claims"
	"github.com/revcycle/revcycle/internal/domain/rejection"
)

type mapLookup map[string]string

func (m mapLookup) Resolve(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", ErrLookupNotFound
	}
	return v, nil
}

type failingLookup struct{}

func (failingLookup) Resolve(_ context.Context, _ string) (string, error) {
	return "", fmt.Errorf("connection reset")
}

func rejectedClaim() *claims.Claim {
	return &claims.Claim{
		ID:          uuid.New(),
		PayerCode:   "AETNA",
		PatientRef:  "pat-1",
		ProviderRef: "prov-1",
		Status:      claims.StatusRejected,
		TotalAmount: 90,
		Items: []claims.Item{
			{Sequence: 1, ServiceCode: "99213", Quantity: 1, UnitPrice: 85.00},
			{Sequence: 2, ServiceCode: "87880", Quantity: 1, UnitPrice: 20.25},
		},
	}
}

func correctableReason(cat rejection.Category) rejection.Reason {
	return rejection.Reason{
		RawCode:     "CO-16",
		PayerCode:   "AETNA",
		Category:    cat,
		Severity:    rejection.SeverityMedium,
		Correctable: true,
	}
}

func TestApply_LookupAndComputedFixes(t *testing.T) {
	corrector := NewCorrector(DefaultRegistry())
	lookup := mapLookup{"pos:prov-1": "11"}
	original := rejectedClaim()

	corrected, audit, err := corrector.Apply(context.Background(), original, correctableReason(rejection.CategoryInvalidCode), lookup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if corrected.BaseClaimID != original.ID {
		t.Errorf("expected base claim ID %s, got %s", original.ID, corrected.BaseClaimID)
	}
	if corrected.Payload.Status != claims.StatusCorrected {
		t.Errorf("expected corrected status, got %s", corrected.Payload.Status)
	}
	if got := corrected.Payload.Attributes["place_of_service"]; got != "11" {
		t.Errorf("expected place_of_service 11, got %q", got)
	}
	// total recomputed from lines: 85.00 + 20.25
	if corrected.Payload.TotalAmount != 105.25 {
		t.Errorf("expected recomputed total 105.25, got %v", corrected.Payload.TotalAmount)
	}

	if len(audit) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(audit))
	}
	if audit[0].Field != "attributes.place_of_service" || audit[0].NewValue != "11" {
		t.Errorf("unexpected first audit entry: %+v", audit[0])
	}
	if audit[1].Field != "total_amount" || audit[1].OldValue != "90.00" || audit[1].NewValue != "105.25" {
		t.Errorf("unexpected second audit entry: %+v", audit[1])
	}

	// The original claim is untouched.
	if original.TotalAmount != 90 || original.Status != claims.StatusRejected {
		t.Error("original claim was mutated")
	}
	if len(original.Attributes) != 0 {
		t.Error("original claim attributes were mutated")
	}
}

func TestApply_Idempotent(t *testing.T) {
	corrector := NewCorrector(DefaultRegistry())
	lookup := mapLookup{"auth:pat-1": "AUTH-42"}
	original := rejectedClaim()
	reason := correctableReason(rejection.CategoryMissingField)

	first, _, err := corrector.Apply(context.Background(), original, reason, lookup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _, err := corrector.Apply(context.Background(), original, reason, lookup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first.Payload.Attributes, second.Payload.Attributes) {
		t.Errorf("corrections differ: %v vs %v", first.Payload.Attributes, second.Payload.Attributes)
	}
	if first.Payload.TotalAmount != second.Payload.TotalAmount {
		t.Errorf("totals differ: %v vs %v", first.Payload.TotalAmount, second.Payload.TotalAmount)
	}
}

func TestApply_UncorrectableReason(t *testing.T) {
	corrector := NewCorrector(DefaultRegistry())

	reason := correctableReason(rejection.CategoryDuplicateService)
	reason.Correctable = false

	_, _, err := corrector.Apply(context.Background(), rejectedClaim(), reason, nil)
	var uncorrectable *UncorrectableReasonError
	if !errors.As(err, &uncorrectable) {
		t.Fatalf("expected UncorrectableReasonError, got %v", err)
	}
	if uncorrectable.RawCode != "CO-16" {
		t.Errorf("expected raw code in error, got %+v", uncorrectable)
	}
}

func TestApply_NoStrategyRegistered(t *testing.T) {
	corrector := NewCorrector(NewRegistry())

	_, _, err := corrector.Apply(context.Background(), rejectedClaim(), correctableReason(rejection.CategoryMissingField), nil)
	var uncorrectable *UncorrectableReasonError
	if !errors.As(err, &uncorrectable) {
		t.Fatalf("expected UncorrectableReasonError when no strategy exists, got %v", err)
	}
}

func TestApply_UnresolvedLookupAbortsWholeCorrection(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Strategy{
		Category: rejection.CategoryMissingField,
		Fixes: []FieldFix{
			{Path: "attributes.first", Source: ValueSource{Kind: SourceConstant, Constant: "ok"}},
			{Path: "attributes.authorization_number", Source: ValueSource{Kind: SourceLookup, LookupKey: "auth:{patient_ref}"}},
		},
	})
	corrector := NewCorrector(registry)

	original := rejectedClaim()
	_, _, err := corrector.Apply(context.Background(), original, correctableReason(rejection.CategoryMissingField), mapLookup{})

	var unresolved *UnresolvedFieldError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedFieldError, got %v", err)
	}
	if unresolved.Field != "attributes.authorization_number" {
		t.Errorf("error must name the failed field, got %q", unresolved.Field)
	}
	if unresolved.Key != "auth:pat-1" {
		t.Errorf("error must carry the expanded key, got %q", unresolved.Key)
	}
	// No partial correction escaped into the original.
	if len(original.Attributes) != 0 {
		t.Error("original claim carries partial corrections")
	}
}

func TestApply_LookupServiceFailureIsNotUnresolved(t *testing.T) {
	corrector := NewCorrector(DefaultRegistry())

	_, _, err := corrector.Apply(context.Background(), rejectedClaim(), correctableReason(rejection.CategoryMissingField), failingLookup{})
	if err == nil {
		t.Fatal("expected error")
	}
	var unresolved *UnresolvedFieldError
	if errors.As(err, &unresolved) {
		t.Error("service failure must not be reported as an unresolved field")
	}
}

func TestApply_ItemPathFix(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Strategy{
		Category: rejection.CategoryInvalidCode,
		Fixes: []FieldFix{
			{Path: "items.0.service_code", Source: ValueSource{Kind: SourceConstant, Constant: "99214"}},
			{Path: "items.1.quantity", Source: ValueSource{Kind: SourceConstant, Constant: "3"}},
		},
	})
	corrector := NewCorrector(registry)

	corrected, audit, err := corrector.Apply(context.Background(), rejectedClaim(), correctableReason(rejection.CategoryInvalidCode), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if corrected.Payload.Items[0].ServiceCode != "99214" {
		t.Errorf("expected service code 99214, got %s", corrected.Payload.Items[0].ServiceCode)
	}
	if corrected.Payload.Items[1].Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", corrected.Payload.Items[1].Quantity)
	}
	if audit[0].OldValue != "99213" {
		t.Errorf("expected audit to record old value 99213, got %q", audit[0].OldValue)
	}
}

func TestApply_BadPathFails(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Strategy{
		Category: rejection.CategoryInvalidCode,
		Fixes: []FieldFix{
			{Path: "items.9.service_code", Source: ValueSource{Kind: SourceConstant, Constant: "x"}},
		},
	})
	corrector := NewCorrector(registry)

	_, _, err := corrector.Apply(context.Background(), rejectedClaim(), correctableReason(rejection.CategoryInvalidCode), nil)
	if err == nil {
		t.Fatal("expected error for out-of-range item index")
	}
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Strategy{Category: rejection.CategoryMissingField, Fixes: []FieldFix{
		{Path: "attributes.a", Source: ValueSource{Kind: SourceConstant, Constant: "1"}},
	}})
	registry.Register(Strategy{Category: rejection.CategoryMissingField, Fixes: []FieldFix{
		{Path: "attributes.b", Source: ValueSource{Kind: SourceConstant, Constant: "2"}},
	}})

	s, ok := registry.Lookup(rejection.CategoryMissingField)
	if !ok {
		t.Fatal("expected strategy")
	}
	if len(s.Fixes) != 1 || s.Fixes[0].Path != "attributes.b" {
		t.Errorf("expected last registration to win, got %+v", s.Fixes)
	}
}
