package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samirrijal/siteintel/internal/core/domain"
)

// LockRepo implements ports.LockRepository with pgx.
type LockRepo struct {
	db *DB
}

// NewLockRepo creates a new LockRepo.
func NewLockRepo(db *DB) *LockRepo {
	return &LockRepo{db: db}
}

// Save records a locked parcel. A session locks at most once.
func (r *LockRepo) Save(ctx context.Context, l *domain.LockedParcel) error {
	gj, err := json.Marshal(l.Geometry)
	if err != nil {
		return fmt.Errorf("encode geometry: %w", err)
	}
	verification, err := json.Marshal(l.Verification)
	if err != nil {
		return fmt.Errorf("encode verification: %w", err)
	}
	reasons := make([]string, len(l.ReasonCodes))
	for i, c := range l.ReasonCodes {
		reasons[i] = string(c)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO parcel_locks (session_id, parcel_id, source_parcel_id, county, situs_address, acreage,
		                          geom, geometry_hash, confidence, band, reason_codes, input_method,
		                          verification, locked_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, 0),
		        ST_Multi(ST_SetSRID(ST_GeomFromGeoJSON($7), 4326)), $8, $9, $10, $11, $12, $13, $14)
	`, l.SessionID, l.ParcelID, l.SourceParcelID, l.County, l.SitusAddress, l.Acreage,
		string(gj), l.GeometryHash, l.Confidence, string(l.Band), reasons, string(l.InputMethod),
		verification, l.LockedAt)
	return err
}

// GetBySession returns the parcel a session locked.
func (r *LockRepo) GetBySession(ctx context.Context, sessionID string) (*domain.LockedParcel, error) {
	var (
		l            domain.LockedParcel
		gj, verif    []byte
		band, method string
		reasons      []string
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT session_id, parcel_id, source_parcel_id, county, COALESCE(situs_address, ''),
		       COALESCE(acreage, 0), ST_AsGeoJSON(geom), geometry_hash, confidence, band,
		       reason_codes, input_method, verification, locked_at
		FROM parcel_locks WHERE session_id = $1
	`, sessionID).Scan(&l.SessionID, &l.ParcelID, &l.SourceParcelID, &l.County, &l.SitusAddress,
		&l.Acreage, &gj, &l.GeometryHash, &l.Confidence, &band,
		&reasons, &method, &verif, &l.LockedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if l.Geometry, err = domain.ParseGeometryJSON(gj); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(verif, &l.Verification); err != nil {
		return nil, fmt.Errorf("decode verification: %w", err)
	}
	l.Band = domain.ConfidenceBand(band)
	l.InputMethod = domain.InputMethod(method)
	for _, c := range reasons {
		l.ReasonCodes = append(l.ReasonCodes, domain.ReasonCode(c))
	}
	return &l, nil
}
