package surveytext_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/pkg/surveytext"
)

const titleSurvey = `BOUNDARY SURVEY
HCAD ACCOUNT NO: 0660640130017
SITUS: 1234 MAIN STREET HOUSTON TEXAS
PREPARED FOR: JOHN SMITH
LOT 5, BLOCK 2, OAK HOLLOW SUBDIVISION, SECTION 3
CONTAINING 0.25 ACRES
HARRIS COUNTY, TEXAS`

func TestParse_LandTitleSurvey(t *testing.T) {
	ext := surveytext.Parse(titleSurvey, "survey.pdf")

	require.NotNil(t, ext.APN)
	assert.Equal(t, "0660640130017", *ext.APN)
	assert.Equal(t, surveytext.KeywordAPNConfidence, ext.APNConfidence)

	require.NotNil(t, ext.Address)
	assert.Equal(t, "1234 MAIN STREET", *ext.Address)

	require.NotNil(t, ext.Owner)
	assert.Equal(t, "JOHN SMITH", *ext.Owner)

	require.NotNil(t, ext.Acreage)
	assert.InDelta(t, 0.25, *ext.Acreage, 1e-9)

	require.NotNil(t, ext.Legal)
	assert.Equal(t, "5", ext.Legal.Lot)
	assert.Equal(t, "2", ext.Legal.Block)
	assert.Equal(t, "OAK HOLLOW", ext.Legal.Subdivision)

	require.NotNil(t, ext.County)
	assert.Equal(t, "harris", *ext.County)
	assert.Equal(t, domain.SurveyLandTitle, ext.SurveyType)
	assert.Equal(t, "survey.pdf", ext.Filename)
}

func TestParse_RecordedPlat(t *testing.T) {
	ext := surveytext.Parse("RECORDED PLAT OF WILLOW CREEK\nSUBDIVISION OF 12.5 ACRES\nFORT BEND COUNTY", "plat.pdf")
	assert.Nil(t, ext.Address)
	require.NotNil(t, ext.Acreage)
	assert.InDelta(t, 12.5, *ext.Acreage, 1e-9)
	require.NotNil(t, ext.County)
	assert.Equal(t, "fort_bend", *ext.County)
	assert.Equal(t, domain.SurveyRecordedPlat, ext.SurveyType)
}

func TestParse_BoundaryOnlyCountyFromFilename(t *testing.T) {
	ext := surveytext.Parse("N 45°30' E 120.00 FT\nS 44°30' E 80.00 FT", "survey_sugar_land.pdf")
	assert.Nil(t, ext.Address)
	assert.Nil(t, ext.Owner)
	require.NotNil(t, ext.County)
	assert.Equal(t, "fort_bend", *ext.County)
	assert.Equal(t, domain.SurveyBoundaryOnly, ext.SurveyType)
}

func TestParse_NothingFound(t *testing.T) {
	ext := surveytext.Parse("", "scan.pdf")
	assert.True(t, ext.Empty())
	assert.Nil(t, ext.County)
	assert.Equal(t, domain.SurveyUnknown, ext.SurveyType)
}

func TestExtractAPN_DashedFallback(t *testing.T) {
	id, conf, ok := surveytext.ExtractAPN("see 1234-567-8901 for details")
	require.True(t, ok)
	assert.Equal(t, "12345678901", id)
	assert.Equal(t, surveytext.DashedAPNConfidence, conf)

	_, _, ok = surveytext.ExtractAPN("no identifiers here")
	assert.False(t, ok)
}

func TestExtractAddress_RejectsLegalTerms(t *testing.T) {
	_, ok := surveytext.ExtractAddress("5 ACRE TRACT ON OLD MILL ROAD")
	assert.False(t, ok)
}

func TestExtractAcreage_Range(t *testing.T) {
	_, ok := surveytext.ExtractAcreage("0 ACRES")
	assert.False(t, ok)
	_, ok = surveytext.ExtractAcreage("20000 ACRES")
	assert.False(t, ok)
	v, ok := surveytext.ExtractAcreage("AREA: 3.75 AC")
	require.True(t, ok)
	assert.InDelta(t, 3.75, v, 1e-9)
}

func TestIsScanned(t *testing.T) {
	assert.True(t, surveytext.IsScanned("abc"))
	assert.False(t, surveytext.IsScanned(titleSurvey))
	assert.True(t, surveytext.IsScanned(strings.Repeat("\x00\x01§", 30)))
}

func TestPDFTextLayer(t *testing.T) {
	data, err := os.ReadFile("testdata/survey_plain.pdf")
	require.NoError(t, err)
	assert.Contains(t, surveytext.PDFTextLayer(data), "Boundary Survey of Lot 5")

	assert.Empty(t, surveytext.PDFTextLayer([]byte{0x00, 0x01, 0x02}))
	assert.Empty(t, surveytext.PDFTextLayer([]byte("%PDF-1.4\n1 0 obj\nstream\nBT (Lot 5) Tj ET\n")))
}

func TestPDFTextLayer_FlateCompressed(t *testing.T) {
	data, err := os.ReadFile("testdata/survey_flate.pdf")
	require.NoError(t, err)
	require.NotContains(t, string(data), "0660640130017", "fixture content stream must be compressed")

	text := surveytext.PDFTextLayer(data)
	assert.Contains(t, text, "HCAD ACCOUNT NO: 0660640130017")
	assert.Contains(t, text, "OAK HOLLOW SUBDIVISION")
	assert.False(t, surveytext.IsScanned(text))

	ext := surveytext.Parse(text, "survey.pdf")
	require.NotNil(t, ext.APN)
	assert.Equal(t, "0660640130017", *ext.APN)
}
