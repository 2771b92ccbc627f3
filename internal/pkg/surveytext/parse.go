// Package surveytext pulls parcel identifying fields out of the text of a
// property survey or recorded plat. Every field is optional; a document
// that yields nothing is still a valid parse.
package surveytext

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
)

// APN confidences.
const (
	KeywordAPNConfidence = 0.95
	DashedAPNConfidence  = 0.85
)

// MaxAcreage bounds the plausible acreage of a single survey.
const MaxAcreage = 10000

// Counties recognised in survey text, in lookup order.
var Counties = []string{
	"HARRIS", "FORT BEND", "MONTGOMERY", "BRAZORIA", "GALVESTON",
	"LIBERTY", "CHAMBERS", "WALLER", "AUSTIN", "COLORADO",
	"DALLAS", "TARRANT", "TRAVIS",
}

// apnKeywords anchor identifier extraction. Longer phrases come first so
// "ACCOUNT NUMBER" wins over "ACCOUNT".
var apnKeywords = []string{
	"PARCEL NUMBER", "PARCEL NO", "PARCEL ID", "ACCOUNT NUMBER", "ACCOUNT NO",
	"ACCOUNT", "ACCT", "TAX ID", "PROPERTY ID", "HCAD", "FBCAD", "MCAD",
	"CAD", "APN",
}

// cityCounty resolves a county from a city named in the filename.
var cityCounty = []struct{ city, county string }{
	{"SUGAR LAND", "FORT BEND"}, {"SUGARLAND", "FORT BEND"},
	{"MISSOURI CITY", "FORT BEND"}, {"RICHMOND", "FORT BEND"}, {"ROSENBERG", "FORT BEND"},
	{"LEAGUE CITY", "GALVESTON"}, {"TEXAS CITY", "GALVESTON"}, {"FRIENDSWOOD", "GALVESTON"},
	{"THE WOODLANDS", "MONTGOMERY"}, {"WOODLANDS", "MONTGOMERY"}, {"CONROE", "MONTGOMERY"},
	{"PEARLAND", "BRAZORIA"}, {"ANGLETON", "BRAZORIA"}, {"FREEPORT", "BRAZORIA"}, {"CLUTE", "BRAZORIA"},
	{"HOUSTON", "HARRIS"}, {"KATY", "HARRIS"}, {"CYPRESS", "HARRIS"}, {"HUMBLE", "HARRIS"},
	{"SPRING", "HARRIS"}, {"PASADENA", "HARRIS"}, {"BAYTOWN", "HARRIS"},
	{"FORT WORTH", "TARRANT"}, {"ARLINGTON", "TARRANT"}, {"ROUND ROCK", "TRAVIS"},
}

const streetSuffix = `(?:STREET|ST|AVENUE|AVE|ROAD|RD|DRIVE|DR|LANE|LN|BLVD|BOULEVARD|WAY|CIRCLE|CIR|COURT|CT|PLACE|PL|PKWY|PARKWAY|HWY|HIGHWAY)`

var (
	keywordAPN []*regexp.Regexp
	dashedAPN  = regexp.MustCompile(`\b(\d{3,5}[-.]\d{3,5}[-.]\d{3,5})\b`)

	addressPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:SITUS|PROPERTY\s*ADDRESS|SITE\s*ADDRESS|LOCATION|STREET\s*ADDRESS)[:\s]*(\d+\s+[A-Z0-9 ]+?\b` + streetSuffix + `)\b`),
		regexp.MustCompile(`\b(\d{1,6}\s+(?:[NSEW]\s+)?(?:[A-Z]{2,}\s+)+` + streetSuffix + `(?:\s+(?:SOUTH|NORTH|EAST|WEST|S|N|E|W))?)\b`),
	}
	legalTerms = []string{" AC ", " ACRE", "TRACT ", "BLOCK ", "LOT ", "SECTION ", "ABSTRACT "}

	ownerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)OWNER[:\s]+([A-Z][A-Z &,.']+?)(?:\s*(?:LLC|LP|INC|CORP)\b|$)`),
		regexp.MustCompile(`(?m)PREPARED\s+FOR[:\s]+([A-Z][A-Z &,.']+?)(?:\s*(?:LLC|LP|INC|CORP)\b|$)`),
		regexp.MustCompile(`(?m)PROPERTY\s+OF[:\s]+([A-Z][A-Z &,.']+?)(?:\s*(?:LLC|LP|INC|CORP)\b|$)`),
		regexp.MustCompile(`(?m)SURVEYED\s+FOR[:\s]+([A-Z][A-Z &,.']+?)(?:\s*(?:LLC|LP|INC|CORP)\b|$)`),
		regexp.MustCompile(`(?m)CLIENT[:\s]+([A-Z][A-Z &,.']+?)(?:\s*(?:LLC|LP|INC|CORP)\b|$)`),
	}

	acreagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:ACRES?|AC\.?)\b`),
		regexp.MustCompile(`CONTAINING\s+(\d+(?:\.\d+)?)\s*(?:ACRES?|AC)`),
		regexp.MustCompile(`AREA[:\s]+(\d+(?:\.\d+)?)\s*(?:ACRES?|AC)`),
	}

	lotPattern    = regexp.MustCompile(`\bLOT\s+(\d+[A-Z]?)\b`)
	blockPattern  = regexp.MustCompile(`\bBLOCK\s+([A-Z0-9]+)\b`)
	subdivPattern = []*regexp.Regexp{
		regexp.MustCompile(`(?:SUBDIVISION|ADDN|ADDITION)\s+(?:OF\s+)?([A-Z][A-Z ]+?)\s*(?:,|\n|BLOCK|LOT|SECTION)`),
		regexp.MustCompile(`([A-Z][A-Z ]+?)\s+(?:SUBDIVISION|ADDN|ADDITION)`),
	}

	legalDescPattern = regexp.MustCompile(`\bLOT\s+\d+|\bBLOCK\s+[A-Z0-9]+|\bSUBDIVISION\b`)
	platPattern      = regexp.MustCompile(`RECORDED\s*PLAT|PLAT\s*OF|SUBDIVISION\s*OF\s*[\d.]+\s*ACRES|PLAT\s*RECORD`)
	bearingPattern   = regexp.MustCompile(`[NS]\s*\d+[°']\s*\d+|\bBEARING\b|\bN\s*\d+\s*DEG\s*\d+`)
	addressLead      = regexp.MustCompile(`^\d+\s+[A-Z]`)
	spaces           = regexp.MustCompile(`\s+`)
)

func init() {
	for _, kw := range apnKeywords {
		p := strings.ReplaceAll(regexp.QuoteMeta(kw), " ", `\s*`)
		keywordAPN = append(keywordAPN, regexp.MustCompile(`\b`+p+`[:\s#]*([A-Z0-9-]{8,20})\b`))
	}
}

// Parse extracts every field it can find in text. The filename is consulted
// for the county when the text names none.
func Parse(text, filename string) *domain.SurveyExtraction {
	upper := strings.ToUpper(text)
	ext := &domain.SurveyExtraction{Filename: filename, SurveyType: domain.SurveyUnknown}

	if apn, conf, ok := ExtractAPN(upper); ok {
		ext.APN = &apn
		ext.APNConfidence = conf
	}
	if addr, ok := ExtractAddress(upper); ok {
		ext.Address = &addr
	}
	if owner, ok := ExtractOwner(upper); ok {
		ext.Owner = &owner
	}
	if acres, ok := ExtractAcreage(upper); ok {
		ext.Acreage = &acres
	}
	if legal, ok := ExtractLegal(upper); ok {
		ext.Legal = &legal
	}
	county, ok := ExtractCounty(upper)
	if !ok {
		county, ok = CountyFromFilename(filename)
	}
	if ok {
		ext.County = &county
	}
	ext.SurveyType = Classify(upper, ext)
	return ext
}

// ExtractAPN finds a keyword-anchored identifier, falling back to a bare
// dash-grouped number. The identifier is returned without separators.
func ExtractAPN(text string) (string, float64, bool) {
	text = strings.ToUpper(text)
	for _, re := range keywordAPN {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			id := apnformat.Normalize(m[1])
			if len(id) >= 8 && len(id) <= 15 && strings.ContainsAny(id, "0123456789") {
				return id, KeywordAPNConfidence, true
			}
		}
	}
	for _, m := range dashedAPN.FindAllStringSubmatch(text, -1) {
		id := apnformat.Normalize(m[1])
		if len(id) >= 8 && len(id) <= 15 {
			return id, DashedAPNConfidence, true
		}
	}
	return "", 0, false
}

// ExtractAddress returns the first street address that does not read like
// a legal description.
func ExtractAddress(text string) (string, bool) {
	text = strings.ToUpper(text)
	for _, re := range addressPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			addr := strings.TrimSpace(spaces.ReplaceAllString(m[1], " "))
			if len(addr) <= 10 || containsLegalTerm(addr) {
				continue
			}
			return addr, true
		}
	}
	return "", false
}

func containsLegalTerm(addr string) bool {
	padded := " " + addr + " "
	for _, t := range legalTerms {
		if strings.Contains(padded, t) {
			return true
		}
	}
	return false
}

// ExtractOwner returns the party a survey was prepared for.
func ExtractOwner(text string) (string, bool) {
	text = strings.ToUpper(text)
	for _, re := range ownerPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		owner := strings.TrimSpace(spaces.ReplaceAllString(m[1], " "))
		owner = strings.TrimRight(owner, ",.' ")
		if len(owner) >= 3 && len(owner) <= 100 {
			return owner, true
		}
	}
	return "", false
}

// ExtractAcreage returns the first acreage in (0, MaxAcreage].
func ExtractAcreage(text string) (float64, bool) {
	text = strings.ToUpper(text)
	for _, re := range acreagePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil && v > 0 && v <= MaxAcreage {
			return v, true
		}
	}
	return 0, false
}

// ExtractLegal returns the lot, block and subdivision named in the text.
func ExtractLegal(text string) (domain.LegalDescription, bool) {
	text = strings.ToUpper(text)
	var l domain.LegalDescription
	if m := lotPattern.FindStringSubmatch(text); m != nil {
		l.Lot = m[1]
	}
	if m := blockPattern.FindStringSubmatch(text); m != nil {
		l.Block = m[1]
	}
	for _, re := range subdivPattern {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(spaces.ReplaceAllString(m[1], " "))
		if len(name) >= 3 && len(name) <= 60 {
			l.Subdivision = name
			break
		}
	}
	return l, !l.IsZero()
}

// ExtractCounty returns the canonical key of the county named in text.
// "X COUNTY" and "COUNTY OF X" take precedence over a bare name.
func ExtractCounty(text string) (string, bool) {
	text = strings.ToUpper(text)
	for _, c := range Counties {
		if strings.Contains(text, c+" COUNTY") || strings.Contains(text, "COUNTY OF "+c) {
			return apnformat.CanonicalCounty(c), true
		}
	}
	for _, c := range Counties {
		if strings.Contains(text, c) {
			return apnformat.CanonicalCounty(c), true
		}
	}
	return "", false
}

// CountyFromFilename derives a county from a county or city in the name.
func CountyFromFilename(filename string) (string, bool) {
	upper := strings.ToUpper(strings.NewReplacer("_", " ", "-", " ").Replace(filename))
	for _, c := range Counties {
		if strings.Contains(upper, c) {
			return apnformat.CanonicalCounty(c), true
		}
	}
	for _, m := range cityCounty {
		if strings.Contains(upper, m.city) {
			return apnformat.CanonicalCounty(m.county), true
		}
	}
	return "", false
}

// Classify names the survey type from its text and extracted fields.
func Classify(text string, ext *domain.SurveyExtraction) domain.SurveyType {
	text = strings.ToUpper(text)
	hasAddress := ext.Address != nil && addressLead.MatchString(*ext.Address)
	switch {
	case hasAddress && legalDescPattern.MatchString(text):
		return domain.SurveyLandTitle
	case !hasAddress && platPattern.MatchString(text):
		return domain.SurveyRecordedPlat
	case !hasAddress && ext.Owner == nil && bearingPattern.MatchString(text):
		return domain.SurveyBoundaryOnly
	default:
		return domain.SurveyUnknown
	}
}
