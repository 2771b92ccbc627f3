package domain

// SurveyType classifies the uploaded survey document.
type SurveyType string

const (
	SurveyLandTitle    SurveyType = "LAND_TITLE_SURVEY"
	SurveyRecordedPlat SurveyType = "RECORDED_PLAT"
	SurveyBoundaryOnly SurveyType = "BOUNDARY_ONLY"
	SurveyUnknown      SurveyType = "UNKNOWN"
)

// ExtractionSource tags where the text behind a SurveyExtraction came from.
type ExtractionSource string

const (
	SourceOCR      ExtractionSource = "ocr"
	SourcePDFText  ExtractionSource = "pdf_text"
	SourceDeclared ExtractionSource = "declared"
	SourceNone     ExtractionSource = "none"
)

// SurveyExtraction holds the structured fields pulled from a survey or plat.
// Every field may be nil; an extraction with no fields is a valid result.
type SurveyExtraction struct {
	APN           *string           `json:"apn"`
	APNConfidence float64           `json:"apn_confidence,omitempty"`
	Address       *string           `json:"address"`
	County        *string           `json:"county"`
	Owner         *string           `json:"owner"`
	Acreage       *float64          `json:"acreage"`
	Legal         *LegalDescription `json:"legal"`
	SurveyType    SurveyType        `json:"survey_type"`
	OCRUsed       bool              `json:"ocr_used"`
	Source        ExtractionSource  `json:"source"`
	Scanned       bool              `json:"scanned"`
	Filename      string            `json:"filename,omitempty"`
}

// Empty reports whether no identifying field was extracted.
func (e *SurveyExtraction) Empty() bool {
	return e == nil || (e.APN == nil && e.Address == nil && e.Owner == nil &&
		e.Acreage == nil && e.Legal == nil)
}

// Survey is an uploaded document queued for asynchronous matching.
type Survey struct {
	ID             string            `json:"id"`
	Filename       string            `json:"filename"`
	ContentType    string            `json:"content_type"`
	DeclaredCounty string            `json:"declared_county,omitempty"`
	Data           []byte            `json:"-"`
	Extraction     *SurveyExtraction `json:"extraction,omitempty"`
	Match          *MatchResult      `json:"match,omitempty"`
	Status         string            `json:"status"`
}

// Survey processing statuses.
const (
	SurveyPending = "pending"
	SurveyMatched = "matched"
	SurveyFailed  = "failed"
)

// SurveyUploadedEvent is published when a survey is stored for async matching.
type SurveyUploadedEvent struct {
	SurveyID string `json:"survey_id"`
}
