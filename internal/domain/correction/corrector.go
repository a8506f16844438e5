package correction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/revcycle/revcycle/internal/domain/claims"
	"github.com/revcycle/revcycle/internal/domain/rejection"
)

// ErrLookupNotFound is returned by FieldLookup implementations when a key has
// no value.
var ErrLookupNotFound = errors.New("lookup key not found")

// FieldLookup is the external reference-data service (patient, provider and
// authorization lookups). Resolve returns ErrLookupNotFound when the key has
// no value; any other error means the service itself failed.
type FieldLookup interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// Corrector applies a strategy to a claim, producing a CorrectedClaim and a
// change audit. The original claim is never mutated, and applying the same
// strategy twice to the same original yields identical fixed fields.
type Corrector struct {
	registry *Registry
}

func NewCorrector(registry *Registry) *Corrector {
	return &Corrector{registry: registry}
}

// ChangeAudit records one applied field fix.
type ChangeAudit struct {
	Field    string     `json:"field"`
	OldValue string     `json:"old_value"`
	NewValue string     `json:"new_value"`
	Source   SourceKind `json:"source"`
}

// Apply runs the strategy registered for the reason's category against the
// claim. All fixes apply or none do: an unresolved lookup aborts the whole
// correction with UnresolvedFieldError.
func (cr *Corrector) Apply(ctx context.Context, claim *claims.Claim, reason rejection.Reason, lookup FieldLookup) (*claims.CorrectedClaim, []ChangeAudit, error) {
	if !reason.Correctable {
		return nil, nil, &UncorrectableReasonError{Category: reason.Category, RawCode: reason.RawCode}
	}
	strategy, ok := cr.registry.Lookup(reason.Category)
	if !ok {
		return nil, nil, &UncorrectableReasonError{Category: reason.Category, RawCode: reason.RawCode}
	}

	work := claim.Clone()
	var audit []ChangeAudit
	for _, fix := range strategy.Fixes {
		entry, err := applyFix(ctx, work, fix, lookup)
		if err != nil {
			return nil, nil, err
		}
		audit = append(audit, entry)
	}

	// CorrectedAt is stamped by the caller, which owns the clock.
	corrected := &claims.CorrectedClaim{
		BaseClaimID: claim.ID,
		Payload:     *work,
		Category:    string(reason.Category),
	}
	corrected.Payload.Status = claims.StatusCorrected
	return corrected, audit, nil
}

func applyFix(ctx context.Context, work *claims.Claim, fix FieldFix, lookup FieldLookup) (ChangeAudit, error) {
	value, err := sourceValue(ctx, work, fix, lookup)
	if err != nil {
		return ChangeAudit{}, err
	}
	old, err := setPath(work, fix.Path, value)
	if err != nil {
		return ChangeAudit{}, err
	}
	return ChangeAudit{Field: fix.Path, OldValue: old, NewValue: value, Source: fix.Source.Kind}, nil
}

func sourceValue(ctx context.Context, work *claims.Claim, fix FieldFix, lookup FieldLookup) (string, error) {
	switch fix.Source.Kind {
	case SourceConstant:
		return fix.Source.Constant, nil
	case SourceLookup:
		if lookup == nil {
			return "", fmt.Errorf("no field lookup configured for %s", fix.Path)
		}
		key := expandKey(fix.Source.LookupKey, work)
		value, err := lookup.Resolve(ctx, key)
		if err != nil {
			if errors.Is(err, ErrLookupNotFound) {
				return "", &UnresolvedFieldError{Field: fix.Path, Key: key}
			}
			return "", fmt.Errorf("resolve %s: %w", key, err)
		}
		return value, nil
	case SourceComputed:
		return computeValue(work, fix)
	default:
		return "", fmt.Errorf("unknown value source %q for field %s", fix.Source.Kind, fix.Path)
	}
}

func computeValue(work *claims.Claim, fix FieldFix) (string, error) {
	switch fix.Source.Compute {
	case ComputeSumOfLines:
		return formatAmount(work.SumItems()), nil
	case ComputeLineTotal:
		idx, _, err := splitItemPath(fix.Path)
		if err != nil {
			return "", err
		}
		return formatAmount(work.Items[idx].LineTotal()), nil
	default:
		return "", fmt.Errorf("unknown computation %q for field %s", fix.Source.Compute, fix.Path)
	}
}

// expandKey substitutes {patient_ref}, {provider_ref}, {payer_code} and
// {claim_id} placeholders in a lookup key template.
func expandKey(template string, c *claims.Claim) string {
	r := strings.NewReplacer(
		"{patient_ref}", c.PatientRef,
		"{provider_ref}", c.ProviderRef,
		"{payer_code}", c.PayerCode,
		"{claim_id}", c.ID.String(),
	)
	return r.Replace(template)
}

// setPath writes value into the claim at path and returns the previous value.
func setPath(c *claims.Claim, path, value string) (string, error) {
	switch {
	case strings.HasPrefix(path, "attributes."):
		name := strings.TrimPrefix(path, "attributes.")
		if name == "" {
			return "", fmt.Errorf("empty attribute name in path %q", path)
		}
		if c.Attributes == nil {
			c.Attributes = make(map[string]string)
		}
		old := c.Attributes[name]
		c.Attributes[name] = value
		return old, nil

	case path == "total_amount":
		amount, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", fmt.Errorf("total_amount: %w", err)
		}
		old := formatAmount(c.TotalAmount)
		c.TotalAmount = amount
		return old, nil

	case strings.HasPrefix(path, "items."):
		return setItemPath(c, path, value)

	default:
		return "", fmt.Errorf("unsupported field path %q", path)
	}
}

func setItemPath(c *claims.Claim, path, value string) (string, error) {
	idx, field, err := splitItemPath(path)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(c.Items) {
		return "", fmt.Errorf("item index %d out of range in path %q", idx, path)
	}
	it := &c.Items[idx]
	switch field {
	case "service_code":
		old := it.ServiceCode
		it.ServiceCode = value
		return old, nil
	case "quantity":
		q, err := strconv.Atoi(value)
		if err != nil {
			return "", fmt.Errorf("items.%d.quantity: %w", idx, err)
		}
		old := strconv.Itoa(it.Quantity)
		it.Quantity = q
		return old, nil
	case "unit_price":
		p, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", fmt.Errorf("items.%d.unit_price: %w", idx, err)
		}
		old := formatAmount(it.UnitPrice)
		it.UnitPrice = p
		return old, nil
	default:
		return "", fmt.Errorf("unsupported item field %q in path %q", field, path)
	}
}

func splitItemPath(path string) (int, string, error) {
	parts := strings.SplitN(path, ".", 3)
	if len(parts) != 3 || parts[0] != "items" {
		return 0, "", fmt.Errorf("malformed item path %q", path)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", fmt.Errorf("malformed item index in path %q", path)
	}
	return idx, parts[2], nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
