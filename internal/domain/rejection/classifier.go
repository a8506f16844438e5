// Package rejection normalizes payer rejection codes into structured reasons.
// Payers reuse code spaces inconsistently, so the classifier consults a
// per-payer override table before falling back to the global table.
package rejection

import "strings"

// Category is the normalized rejection category.
type Category string

const (
	CategoryMissingField         Category = "missing_field"
	CategoryInvalidCode          Category = "invalid_code"
	CategoryAuthorizationExpired Category = "authorization_expired"
	CategoryDuplicateService     Category = "duplicate_service"
	CategoryOther                Category = "other"
)

// Severity orders rejection reasons by operational impact. SeverityCritical
// forces manual review.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Reason is the structured classification of a raw payer rejection.
type Reason struct {
	RawCode     string   `json:"raw_code"`
	RawMessage  string   `json:"raw_message"`
	PayerCode   string   `json:"payer_code"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Correctable bool     `json:"correctable"`
}

// Rule maps one raw code to its classification.
type Rule struct {
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Correctable bool     `json:"correctable"`
}

// Classifier resolves raw payer codes deterministically. The zero value is not
// usable; construct with NewClassifier.
type Classifier struct {
	global map[string]Rule
	payer  map[string]map[string]Rule
}

// NewClassifier builds a classifier from a global code table and per-payer
// override tables. Both tables are configuration supplied at startup; the
// classifier itself never changes after construction.
func NewClassifier(global map[string]Rule, payerOverrides map[string]map[string]Rule) *Classifier {
	g := make(map[string]Rule, len(global))
	for code, rule := range global {
		g[normalizeCode(code)] = rule
	}
	p := make(map[string]map[string]Rule, len(payerOverrides))
	for payer, table := range payerOverrides {
		t := make(map[string]Rule, len(table))
		for code, rule := range table {
			t[normalizeCode(code)] = rule
		}
		p[payer] = t
	}
	return &Classifier{global: g, payer: p}
}

// Classify maps a raw payer rejection into a Reason. It never fails: unknown
// codes classify as CategoryOther, non-correctable, SeverityCritical so they
// are forced to manual review.
func (c *Classifier) Classify(rawCode, rawMessage, payerCode string) Reason {
	reason := Reason{
		RawCode:     rawCode,
		RawMessage:  rawMessage,
		PayerCode:   payerCode,
		Category:    CategoryOther,
		Severity:    SeverityCritical,
		Correctable: false,
	}

	code := normalizeCode(rawCode)
	if table, ok := c.payer[payerCode]; ok {
		if rule, ok := table[code]; ok {
			return applyRule(reason, rule)
		}
	}
	if rule, ok := c.global[code]; ok {
		return applyRule(reason, rule)
	}
	return reason
}

func applyRule(reason Reason, rule Rule) Reason {
	reason.Category = rule.Category
	reason.Severity = rule.Severity
	reason.Correctable = rule.Correctable
	return reason
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DefaultGlobalTable returns the built-in classification table for the common
// clearinghouse code space. Deployments extend or override it via config.
func DefaultGlobalTable() map[string]Rule {
	return map[string]Rule{
		"CO-16":  {Category: CategoryMissingField, Severity: SeverityMedium, Correctable: true},
		"MA-130": {Category: CategoryMissingField, Severity: SeverityMedium, Correctable: true},
		"CO-11":  {Category: CategoryInvalidCode, Severity: SeverityMedium, Correctable: true},
		"CO-181": {Category: CategoryInvalidCode, Severity: SeverityMedium, Correctable: true},
		"CO-197": {Category: CategoryAuthorizationExpired, Severity: SeverityHigh, Correctable: true},
		"CO-15":  {Category: CategoryAuthorizationExpired, Severity: SeverityHigh, Correctable: true},
		"CO-18":  {Category: CategoryDuplicateService, Severity: SeverityLow, Correctable: false},
		"OA-18":  {Category: CategoryDuplicateService, Severity: SeverityLow, Correctable: false},
	}
}

// DefaultPayerOverrides returns the built-in per-payer override tables for
// payers known to repurpose codes from the common space.
func DefaultPayerOverrides() map[string]map[string]Rule {
	return map[string]map[string]Rule{
		// Medicare uses CO-16 for claims that lack remark codes entirely;
		// those need a coder, not an automated fix.
		"MEDICARE": {
			"CO-16": {Category: CategoryMissingField, Severity: SeverityCritical, Correctable: false},
		},
		// UHC reports expired auth numbers under CO-181.
		"UHC": {
			"CO-181": {Category: CategoryAuthorizationExpired, Severity: SeverityHigh, Correctable: true},
		},
	}
}
