package apnformat

import (
	"strings"
	"unicode"

	"github.com/samirrijal/siteintel/internal/core/domain"
)

// Normalize strips whitespace, hyphens and dots and uppercases the rest.
func Normalize(identifier string) string {
	var b strings.Builder
	b.Grow(len(identifier))
	for _, r := range identifier {
		if unicode.IsSpace(r) || r == '-' || r == '.' {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Result is the outcome of Validate. Hint and Example describe the expected
// format when the county is known.
type Result struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Example string `json:"example,omitempty"`
}

// Validator checks identifiers against a Registry.
type Validator struct {
	registry Registry
}

// NewValidator creates a Validator. A nil registry uses the built-in table.
func NewValidator(registry Registry) *Validator {
	if registry == nil {
		registry = Default()
	}
	return &Validator{registry: registry}
}

// Registry returns the underlying registry.
func (v *Validator) Registry() Registry { return v.registry }

// Validate reports whether identifier is well-formed for county.
func (v *Validator) Validate(identifier, county string) Result {
	f, ok := v.registry.Lookup(county)
	if !ok {
		return Result{Error: "unsupported county: " + county}
	}
	n := Normalize(identifier)
	if n == "" {
		return Result{Error: "parcel id is empty", Hint: f.Hint, Example: f.Example}
	}
	if !f.Matches(n) {
		return Result{
			Error:   "parcel id does not match the " + f.Name + " County format",
			Hint:    f.Hint,
			Example: f.Example,
		}
	}
	return Result{Valid: true, Hint: f.Hint, Example: f.Example}
}

// DetectCounty returns the first county, in registry order, whose pattern
// matches the normalized identifier.
func (v *Validator) DetectCounty(identifier string) (string, bool) {
	n := Normalize(identifier)
	if n == "" {
		return "", false
	}
	for _, f := range v.registry.Counties() {
		if f.Matches(n) {
			return f.County, true
		}
	}
	return "", false
}

// Identify builds a ParcelIdentifier. A declared county wins over detection;
// County is left empty when the format is unknown.
func (v *Validator) Identify(identifier, declaredCounty string) domain.ParcelIdentifier {
	id := domain.ParcelIdentifier{Raw: identifier, Normalized: Normalize(identifier)}
	if declaredCounty != "" {
		if v.Validate(identifier, declaredCounty).Valid {
			id.County = CanonicalCounty(declaredCounty)
		}
		return id
	}
	if c, ok := v.DetectCounty(identifier); ok {
		id.County = c
	}
	return id
}
