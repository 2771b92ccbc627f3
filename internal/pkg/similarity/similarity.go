// Package similarity scores fuzzy string agreement for owner names,
// situs addresses and subdivision names.
package similarity

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/mozillazg/go-unidecode"
	"github.com/xrash/smetrics"
)

// Documented acceptance thresholds for Score.
const (
	OwnerThreshold       = 0.85
	AddressThreshold     = 0.80
	SubdivisionThreshold = 0.80
)

// Blend weights between Jaro-Winkler and normalized Levenshtein.
const (
	jaroWeight = 0.7
	levWeight  = 0.3
)

// Func compares two strings and returns a similarity in [0, 1].
type Func func(a, b string) float64

// entitySuffixes are dropped from owner names before comparison.
var entitySuffixes = map[string]bool{
	"llc": true, "inc": true, "corp": true, "co": true, "ltd": true, "lp": true,
	"llp": true, "trust": true, "trustee": true, "trustees": true, "etal": true,
	"et": true, "al": true, "the": true, "estate": true, "of": true,
}

// addressAbbrev folds common street suffix spellings together.
var addressAbbrev = map[string]string{
	"street": "st", "avenue": "ave", "av": "ave", "road": "rd", "drive": "dr",
	"boulevard": "blvd", "lane": "ln", "court": "ct", "place": "pl",
	"parkway": "pkwy", "highway": "hwy", "freeway": "fwy", "circle": "cir",
	"trail": "trl", "north": "n", "south": "s", "east": "e", "west": "w",
}

// Normalize transliterates to ASCII, lowercases and replaces punctuation
// with single spaces.
func Normalize(s string) string {
	s = strings.ToLower(unidecode.Unidecode(s))
	var b strings.Builder
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Score blends Jaro-Winkler and normalized Levenshtein similarity of the
// normalized inputs.
func Score(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	return blend(a, b)
}

func blend(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	j := smetrics.JaroWinkler(a, b, 0.7, 4)
	ld := levenshtein.ComputeDistance(a, b)
	den := len(a)
	if len(b) > den {
		den = len(b)
	}
	lev := 1 - float64(ld)/float64(den)
	return jaroWeight*j + levWeight*lev
}

// Owner compares owner names. Token order ("SMITH JOHN" vs "John Smith") and
// entity suffixes ("LLC", "TRUST") are ignored.
func Owner(a, b string) float64 {
	return blend(tokenSet(a, func(t string) string {
		if entitySuffixes[t] {
			return ""
		}
		return t
	}), tokenSet(b, func(t string) string {
		if entitySuffixes[t] {
			return ""
		}
		return t
	}))
}

// Address compares street addresses after folding suffix abbreviations.
// House numbers must agree exactly when both sides carry one.
func Address(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	ha, hb := houseNumber(na), houseNumber(nb)
	if ha != "" && hb != "" && ha != hb {
		return 0
	}
	fold := func(t string) string {
		if v, ok := addressAbbrev[t]; ok {
			return v
		}
		return t
	}
	return blend(mapTokens(na, fold), mapTokens(nb, fold))
}

func houseNumber(s string) string {
	first, _, _ := strings.Cut(s, " ")
	for _, r := range first {
		if !unicode.IsDigit(r) {
			return ""
		}
	}
	return first
}

func mapTokens(s string, f func(string) string) string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, t := range fields {
		if t = f(t); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, " ")
}

func tokenSet(s string, f func(string) string) string {
	fields := strings.Fields(mapTokens(Normalize(s), f))
	sort.Strings(fields)
	uniq := fields[:0]
	for i, t := range fields {
		if i == 0 || t != fields[i-1] {
			uniq = append(uniq, t)
		}
	}
	return strings.Join(uniq, " ")
}
