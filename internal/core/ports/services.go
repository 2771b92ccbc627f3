package ports

import (
	"context"
	"image"

	"github.com/samirrijal/siteintel/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishParcelLocked(ctx context.Context, lock *domain.LockedParcel) error
	PublishSurveyUploaded(ctx context.Context, event *domain.SurveyUploadedEvent) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeSurveyUploaded(ctx context.Context, handler func(ctx context.Context, event *domain.SurveyUploadedEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// GeocodingProvider turns text into address + coordinate candidates.
type GeocodingProvider interface {
	Name() string
	// CostPerRequest is the billed cost in USD of one Geocode call.
	CostPerRequest() float64
	Geocode(ctx context.Context, query string) ([]domain.GeocodeCandidate, error)
}

// AutocompleteProvider returns place predictions billed per session token.
type AutocompleteProvider interface {
	Name() string
	Autocomplete(ctx context.Context, input, sessionToken string) ([]domain.PlaceSuggestion, error)
}

// OCRProvider extracts text from a PNG-encoded image.
type OCRProvider interface {
	Name() string
	RecognizeText(ctx context.Context, png []byte) (string, error)
}

// Rasterizer renders the first page of a PDF.
type Rasterizer interface {
	RasterizeFirstPage(ctx context.Context, pdf []byte) (image.Image, error)
}

// AddressLocator resolves an address to a single point.
type AddressLocator interface {
	Locate(ctx context.Context, address string) (*domain.GeoPoint, error)
}
