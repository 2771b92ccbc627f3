package surveytext

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Scanned detection thresholds.
const (
	MinTextLength    = 50
	MinReadableRatio = 0.3
)

// MaxTextPages bounds how many pages PDFTextLayer reads.
const MaxTextPages = 20

var unreadable = regexp.MustCompile(`[^a-zA-Z0-9\s.,;:'"()-]`)

// PDFTextLayer returns the plain text of a PDF's embedded text layer, page by
// page. Documents that cannot be parsed yield "", which IsScanned reports.
func PDFTextLayer(data []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage() && i <= MaxTextPages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(t)
		b.WriteByte(' ')
	}
	return strings.TrimSpace(spaces.ReplaceAllString(b.String(), " "))
}

// IsScanned reports whether text looks like it came from an image-only
// document: too short, or mostly unreadable characters.
func IsScanned(text string) bool {
	total := utf8.RuneCountInString(text)
	if total < MinTextLength {
		return true
	}
	readable := total - len(unreadable.FindAllStringIndex(text, -1))
	return float64(readable)/float64(total) < MinReadableRatio
}
