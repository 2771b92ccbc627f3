package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/siteintel/internal/adapters/postgres"
	"github.com/samirrijal/siteintel/internal/adapters/valkey"
	"github.com/samirrijal/siteintel/internal/core/ports"
	"github.com/samirrijal/siteintel/internal/core/usecases"
	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Validator   *apnformat.Validator
	Geocoder    *usecases.GeocodeService
	Extractor   *usecases.ExtractionService
	Matcher     *usecases.MatchService
	Surveys     *usecases.SurveyService
	Calibration *usecases.CalibrationService
	Selection   *usecases.SelectionService
	Parcels     ports.ParcelStore
	NATS        *nats.Conn
	DB          *postgres.DB
	Cache       *valkey.Cache
}
