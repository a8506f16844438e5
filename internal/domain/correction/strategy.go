// Package correction turns declarative correction strategies into corrected
// claim values. A strategy is data: an ordered list of field fixes, each with
// a value source. The corrector is a pure interpreter over that data, so
// strategies are unit-testable without a live claim pipeline.
package correction

import (
	"github.com/revcycle/revcycle/internal/domain/rejection"
)

// SourceKind selects how a field fix obtains its replacement value.
type SourceKind string

const (
	// SourceConstant uses a fixed value from configuration.
	SourceConstant SourceKind = "constant"
	// SourceLookup resolves the value through the external FieldLookup
	// service using a key template.
	SourceLookup SourceKind = "lookup"
	// SourceComputed derives the value from sibling fields of the claim.
	SourceComputed SourceKind = "computed"
)

// ComputeKind names the supported sibling computations.
type ComputeKind string

const (
	// ComputeSumOfLines recomputes the claim total from its line totals.
	ComputeSumOfLines ComputeKind = "sum_of_lines"
	// ComputeLineTotal recomputes one item's quantity times unit price;
	// only meaningful for item-scoped paths.
	ComputeLineTotal ComputeKind = "line_total"
)

// ValueSource describes where a fix's replacement value comes from. Exactly
// one of Constant, LookupKey or Compute is meaningful, selected by Kind.
type ValueSource struct {
	Kind      SourceKind  `json:"kind"`
	Constant  string      `json:"constant,omitempty"`
	LookupKey string      `json:"lookup_key,omitempty"`
	Compute   ComputeKind `json:"compute,omitempty"`
}

// FieldFix is one field-path repair. Supported paths are attribute names
// ("attributes.authorization_number"), "total_amount", and item fields
// ("items.N.service_code").
type FieldFix struct {
	Path   string      `json:"path"`
	Source ValueSource `json:"source"`
}

// Strategy is the full repair recipe for one rejection category.
type Strategy struct {
	Category rejection.Category `json:"category"`
	Fixes    []FieldFix         `json:"fixes"`
}

// Registry maps rejection categories to strategies. Registration happens at
// configuration time; lookups at runtime are read-only.
type Registry struct {
	strategies map[rejection.Category]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[rejection.Category]Strategy)}
}

// Register installs a strategy for its category. Exactly one strategy exists
// per category; the last registration wins.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Category] = s
}

// Lookup returns the strategy for a category, if one is registered.
func (r *Registry) Lookup(category rejection.Category) (Strategy, bool) {
	s, ok := r.strategies[category]
	return s, ok
}

// Categories lists the registered categories, for diagnostics.
func (r *Registry) Categories() []rejection.Category {
	out := make([]rejection.Category, 0, len(r.strategies))
	for c := range r.strategies {
		out = append(out, c)
	}
	return out
}

// DefaultRegistry returns a registry preloaded with the stock strategies for
// the correctable categories.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Strategy{
		Category: rejection.CategoryMissingField,
		Fixes: []FieldFix{
			{Path: "attributes.authorization_number", Source: ValueSource{Kind: SourceLookup, LookupKey: "auth:{patient_ref}"}},
		},
	})
	r.Register(Strategy{
		Category: rejection.CategoryInvalidCode,
		Fixes: []FieldFix{
			{Path: "attributes.place_of_service", Source: ValueSource{Kind: SourceLookup, LookupKey: "pos:{provider_ref}"}},
			{Path: "total_amount", Source: ValueSource{Kind: SourceComputed, Compute: ComputeSumOfLines}},
		},
	})
	r.Register(Strategy{
		Category: rejection.CategoryAuthorizationExpired,
		Fixes: []FieldFix{
			{Path: "attributes.authorization_number", Source: ValueSource{Kind: SourceLookup, LookupKey: "auth:{patient_ref}"}},
			{Path: "attributes.authorization_status", Source: ValueSource{Kind: SourceConstant, Constant: "renewed"}},
		},
	})
	return r
}
