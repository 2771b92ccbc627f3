package ports

import (
	"context"

	"github.com/samirrijal/siteintel/internal/core/domain"
)

// ParcelStore is the parcel data provider the matcher queries. Geometry is
// returned in lon/lat (WGS 84).
type ParcelStore interface {
	GetByID(ctx context.Context, id string) (*domain.ParcelRecord, error)
	FindByIdentifier(ctx context.Context, county, normalizedID string) ([]domain.ParcelRecord, error)
	FindByPoint(ctx context.Context, p domain.GeoPoint) ([]domain.ParcelRecord, error)
	FindByBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.ParcelRecord, error)
	FindByOwner(ctx context.Context, owner, county string, limit int) ([]domain.ParcelRecord, error)
	FindNearby(ctx context.Context, p domain.GeoPoint, radiusMeters float64, limit int) ([]domain.ParcelRecord, error)
	FindByLegalDescription(ctx context.Context, legal domain.LegalDescription, county string, limit int) ([]domain.ParcelRecord, error)
	FindByArea(ctx context.Context, county string, acreage, tolerance float64, limit int) ([]domain.ParcelRecord, error)
}

// ParcelWriter loads parcels into the store.
type ParcelWriter interface {
	UpsertBatch(ctx context.Context, parcels []domain.ParcelRecord) error
}

// LockRepository persists locked parcels.
type LockRepository interface {
	Save(ctx context.Context, lock *domain.LockedParcel) error
	GetBySession(ctx context.Context, sessionID string) (*domain.LockedParcel, error)
}

// SurveyRepository persists uploaded surveys for asynchronous matching.
type SurveyRepository interface {
	Create(ctx context.Context, s *domain.Survey) error
	GetByID(ctx context.Context, id string) (*domain.Survey, error)
	SaveResult(ctx context.Context, id string, ext *domain.SurveyExtraction, match *domain.MatchResult, status string) error
}
