package usecases

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/ports"
	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
	"github.com/samirrijal/siteintel/internal/pkg/metrics"
	"github.com/samirrijal/siteintel/internal/pkg/surveytext"
	"github.com/samirrijal/siteintel/internal/pkg/telemetry"
)

// Extraction defaults.
const (
	DefaultMaxImageDimension = 2000
	DefaultOCRTimeout        = 30 * time.Second
)

// Document is an uploaded survey or plat.
type Document struct {
	Filename       string
	Data           []byte
	DeclaredCounty string
}

// ExtractionConfig tunes document extraction.
type ExtractionConfig struct {
	MaxImageDimension int
	OCRTimeout        time.Duration
}

// ExtractionService turns survey documents into structured parcel fields.
type ExtractionService struct {
	ocr     ports.OCRProvider
	raster  ports.Rasterizer
	maxDim  int
	timeout time.Duration
}

// NewExtractionService creates an ExtractionService. Either port may be nil:
// without OCR only the PDF text layer is read, and without a rasterizer PDFs
// skip OCR.
func NewExtractionService(ocr ports.OCRProvider, raster ports.Rasterizer, cfg ExtractionConfig) *ExtractionService {
	if cfg.MaxImageDimension <= 0 {
		cfg.MaxImageDimension = DefaultMaxImageDimension
	}
	if cfg.OCRTimeout <= 0 {
		cfg.OCRTimeout = DefaultOCRTimeout
	}
	return &ExtractionService{ocr: ocr, raster: raster, maxDim: cfg.MaxImageDimension, timeout: cfg.OCRTimeout}
}

// Extract reads a document and parses the fields it carries. Missing fields
// are not errors. Errors are reserved for unreadable or unsupported input and
// for the case where OCR failed and no text layer exists to fall back on.
func (s *ExtractionService) Extract(ctx context.Context, doc Document) (*domain.SurveyExtraction, error) {
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", domain.ErrDocumentUnreadable)
	}

	mt := mimetype.Detect(doc.Data)
	ctx, span := telemetry.Tracer().Start(ctx, "extract.document")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrMIME, mt.String()))

	log := slog.With("filename", doc.Filename, "mime", mt.String())

	var (
		img       image.Image
		textLayer string
		scanned   = true
		err       error
	)
	switch {
	case mt.Is("application/pdf"):
		textLayer = surveytext.PDFTextLayer(doc.Data)
		scanned = surveytext.IsScanned(textLayer)
		if s.raster != nil && s.ocr != nil {
			img, err = s.raster.RasterizeFirstPage(ctx, doc.Data)
			if err != nil {
				log.Warn("rasterize failed, falling back to text layer", "error", err)
				img = nil
			}
		}
	case mt.Is("image/png"), mt.Is("image/jpeg"), mt.Is("image/tiff"):
		img, err = decodeImage(mt, doc.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDocumentUnreadable, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedDocument, mt.String())
	}

	var (
		ocrText  string
		ocrErr   error
		ocrTried bool
	)
	if img != nil && s.ocr != nil {
		ocrTried = true
		ocrText, ocrErr = s.recognize(ctx, img)
		if ocrErr != nil {
			log.Warn("ocr failed", "provider", s.ocr.Name(), "error", ocrErr)
		}
	}

	text, source := "", domain.SourceNone
	switch {
	case strings.TrimSpace(ocrText) != "":
		text, source = ocrText, domain.SourceOCR
	case textLayer != "" && !scanned:
		text, source = textLayer, domain.SourcePDFText
	case ocrErr != nil:
		return nil, fmt.Errorf("extract %s: %w: %v", doc.Filename, domain.ErrOCRUnavailable, ocrErr)
	}

	ext := surveytext.Parse(text, doc.Filename)
	ext.Source = source
	ext.OCRUsed = source == domain.SourceOCR
	ext.Scanned = scanned && !ocrTried
	if ext.County == nil && doc.DeclaredCounty != "" {
		c := apnformat.CanonicalCounty(doc.DeclaredCounty)
		ext.County = &c
		if ext.Source == domain.SourceNone {
			ext.Source = domain.SourceDeclared
		}
	}

	metrics.ExtractionsTotal.WithLabelValues(string(ext.Source)).Inc()
	span.SetAttributes(attribute.String(telemetry.AttrSource, string(ext.Source)))
	log.Info("survey extracted", "source", ext.Source, "survey_type", ext.SurveyType,
		"has_apn", ext.APN != nil, "has_address", ext.Address != nil)
	return ext, nil
}

func (s *ExtractionService) recognize(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, downscale(img, s.maxDim)); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.ocr.RecognizeText(ctx, buf.Bytes())
}

func decodeImage(mt *mimetype.MIME, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	switch {
	case mt.Is("image/png"):
		return png.Decode(r)
	case mt.Is("image/jpeg"):
		return jpeg.Decode(r)
	default:
		return tiff.Decode(r)
	}
}

// downscale shrinks img so its longer side is at most limit pixels.
func downscale(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if limit <= 0 || (w <= limit && h <= limit) {
		return img
	}
	scale := float64(limit) / math.Max(float64(w), float64(h))
	nw := int(math.Max(1, math.Round(float64(w)*scale)))
	nh := int(math.Max(1, math.Round(float64(h)*scale)))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
