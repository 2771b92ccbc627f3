// Package apnformat validates county parcel identifiers (APN/CAD numbers)
// against a registry of per-county formats.
package apnformat

import (
	"fmt"
	"regexp"
	"strings"
)

// RegistryVersion identifies the built-in county table.
const RegistryVersion = "2025.1"

// CountyFormat is one registry entry. Pattern is applied to the normalized
// identifier.
type CountyFormat struct {
	County  string `mapstructure:"county" json:"county"`
	Name    string `mapstructure:"name" json:"name"`
	Pattern string `mapstructure:"pattern" json:"pattern"`
	Hint    string `mapstructure:"hint" json:"hint"`
	Example string `mapstructure:"example" json:"example"`

	re *regexp.Regexp
}

// Matches reports whether the normalized identifier matches the county pattern.
func (f CountyFormat) Matches(normalized string) bool {
	return f.re != nil && f.re.MatchString(normalized)
}

// Registry looks up county formats.
type Registry interface {
	Lookup(county string) (CountyFormat, bool)
	// Counties returns every format in detection order.
	Counties() []CountyFormat
	Version() string
}

// DefaultFormats is the built-in county table, in detection order.
var DefaultFormats = []CountyFormat{
	{County: "harris", Name: "Harris", Pattern: `^\d{13}$`,
		Hint: "13 digits, dashes optional (HCAD account)", Example: "0660640130020"},
	{County: "fort_bend", Name: "Fort Bend", Pattern: `^(R?\d{6,12}|\d{13})$`,
		Hint: "6-12 digits optionally prefixed with R, or 1234-56-789-1234 (FBCAD property number)", Example: "R123456789"},
	{County: "montgomery", Name: "Montgomery", Pattern: `^([A-Z]\d{6,10}|\d{8,13})$`,
		Hint: "a letter followed by 6-10 digits, 8-12 digits, or 12-34-567-890123 (MCAD property id)", Example: "R1234567"},
	{County: "dallas", Name: "Dallas", Pattern: `^\d{17}$`,
		Hint: "17 digits (DCAD account)", Example: "00000776533000000"},
	{County: "tarrant", Name: "Tarrant", Pattern: `^\d{8}$`,
		Hint: "8 digits (TAD account)", Example: "04123456"},
	{County: "travis", Name: "Travis", Pattern: `^\d{6,10}$`,
		Hint: "6-10 digits (TCAD property id)", Example: "123456"},
}

// StaticRegistry is an immutable, ordered county table.
type StaticRegistry struct {
	version string
	formats []CountyFormat
	index   map[string]int
}

// NewRegistry compiles formats into a registry. Later entries with the same
// county key replace earlier ones in place, so overrides keep the original
// detection position.
func NewRegistry(version string, formats ...[]CountyFormat) (*StaticRegistry, error) {
	r := &StaticRegistry{version: version, index: make(map[string]int)}
	for _, set := range formats {
		for _, f := range set {
			key := CanonicalCounty(f.County)
			if key == "" {
				return nil, fmt.Errorf("county format with empty county key")
			}
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return nil, fmt.Errorf("county %s: compile pattern: %w", key, err)
			}
			f.County = key
			f.re = re
			if i, ok := r.index[key]; ok {
				r.formats[i] = f
				continue
			}
			r.index[key] = len(r.formats)
			r.formats = append(r.formats, f)
		}
	}
	return r, nil
}

// Default returns the built-in registry.
func Default() *StaticRegistry {
	r, err := NewRegistry(RegistryVersion, DefaultFormats)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the format for county, accepting any spelling CanonicalCounty understands.
func (r *StaticRegistry) Lookup(county string) (CountyFormat, bool) {
	i, ok := r.index[CanonicalCounty(county)]
	if !ok {
		return CountyFormat{}, false
	}
	return r.formats[i], true
}

func (r *StaticRegistry) Counties() []CountyFormat {
	out := make([]CountyFormat, len(r.formats))
	copy(out, r.formats)
	return out
}

func (r *StaticRegistry) Version() string { return r.version }

var nonKey = regexp.MustCompile(`[^a-z0-9]+`)

// CanonicalCounty maps county spellings ("Fort Bend County", "fort-bend",
// "FORT_BEND") to the registry key ("fort_bend").
func CanonicalCounty(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.TrimSuffix(s, " county")
	s = nonKey.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
