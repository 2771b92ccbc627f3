// Package bootstrap wires adapters into the use-case services shared by the
// binaries.
package bootstrap

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/siteintel/internal/adapters/geocoder"
	natsadapter "github.com/samirrijal/siteintel/internal/adapters/nats"
	"github.com/samirrijal/siteintel/internal/adapters/postgres"
	"github.com/samirrijal/siteintel/internal/adapters/raster"
	"github.com/samirrijal/siteintel/internal/adapters/valkey"
	"github.com/samirrijal/siteintel/internal/adapters/vision"
	"github.com/samirrijal/siteintel/internal/core/ports"
	"github.com/samirrijal/siteintel/internal/core/usecases"
	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
	"github.com/samirrijal/siteintel/internal/pkg/config"
)

// Services is the set of use cases built from one configuration.
type Services struct {
	Validator   *apnformat.Validator
	Geocoder    *usecases.GeocodeService
	Extractor   *usecases.ExtractionService
	Matcher     *usecases.MatchService
	Surveys     *usecases.SurveyService
	Calibration *usecases.CalibrationService
	Selection   *usecases.SelectionService
	Parcels     *postgres.ParcelRepo
}

// Build creates the services. cache and pub may be nil.
func Build(cfg *config.Config, db *postgres.DB, cache *valkey.Cache, pub *natsadapter.Publisher) (*Services, error) {
	reg, err := cfg.Registry.Build()
	if err != nil {
		return nil, fmt.Errorf("county registry: %w", err)
	}
	validator := apnformat.NewValidator(reg)

	// typed nils must not reach the ports
	var cachePort ports.CacheService
	if cache != nil {
		cachePort = cache
	}
	var events ports.EventPublisher
	if pub != nil {
		events = pub
	}

	g := cfg.Geocoding
	providers := []ports.GeocodingProvider{geocoder.NewNominatim(g.NominatimURL, g.ContactEmail, g.Timeout())}
	var autocomplete ports.AutocompleteProvider
	if google := geocoder.NewGoogle(g.GoogleAPIKey, g.GoogleURL, g.Timeout()); google != nil {
		providers = append(providers, google)
		autocomplete = google
	} else {
		slog.Info("google geocoding disabled, no api key")
	}
	geocode := usecases.NewGeocodeService(providers, autocomplete, cachePort, validator, usecases.GeocodeConfig{
		ProviderTimeout: g.Timeout(),
		CacheTTL:        time.Duration(g.CacheTTLHours) * time.Hour,
		SessionTTL:      time.Duration(g.SessionMinutes) * time.Minute,
		PaidRate:        g.PaidRate,
		PaidBurst:       g.PaidBurst,
	})

	o := cfg.OCR
	var ocr ports.OCRProvider
	if client := vision.NewClient(o.VisionAPIKey, o.VisionURL, o.Timeout()); client != nil {
		ocr = client
	} else {
		slog.Info("ocr disabled, no vision api key")
	}
	var rasterizer ports.Rasterizer
	if pdf := raster.New(o.PdftoppmPath, o.DPI); pdf.Available() {
		rasterizer = pdf
	} else {
		slog.Warn("pdftoppm not found, scanned pdfs will not be rasterized")
	}
	extractor := usecases.NewExtractionService(ocr, rasterizer, usecases.ExtractionConfig{
		MaxImageDimension: o.MaxImageDimension,
		OCRTimeout:        o.Timeout(),
	})

	parcels := postgres.NewParcelRepo(db)
	m := cfg.Matching
	matcher := usecases.NewMatchService(parcels, geocode, validator, usecases.MatchConfig{
		StoreTimeout:     time.Duration(m.StoreTimeoutSeconds) * time.Second,
		NearbyRadius:     m.NearbyRadiusMeters,
		CandidateLimit:   m.CandidateLimit,
		HighThreshold:    m.HighThreshold,
		MediumThreshold:  m.MediumThreshold,
		AutoSelectMargin: m.AutoSelectMargin,
	})

	selection := usecases.NewSelectionService(postgres.NewLockRepo(db), events,
		time.Duration(cfg.Selection.IdleMinutes)*time.Minute)

	return &Services{
		Validator:   validator,
		Geocoder:    geocode,
		Extractor:   extractor,
		Matcher:     matcher,
		Surveys:     usecases.NewSurveyService(extractor, matcher, postgres.NewSurveyRepo(db), events),
		Calibration: usecases.NewCalibrationService(matcher, cfg.Calibration.MaxResidualMeters),
		Selection:   selection,
		Parcels:     parcels,
	}, nil
}
