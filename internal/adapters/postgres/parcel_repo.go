package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
)

// trigram similarity floor for store-side prefiltering; final scoring is done
// by the matcher.
const trigramFloor = 0.3

const parcelColumns = `
	id, source_parcel_id, county,
	COALESCE(situs_address, ''), COALESCE(owner_name, ''), COALESCE(acreage, 0),
	COALESCE(lot, ''), COALESCE(block, ''), COALESCE(subdivision, ''),
	ST_AsGeoJSON(geom), ST_X(ST_Centroid(geom)), ST_Y(ST_Centroid(geom)),
	updated_at`

// ParcelRepo implements ports.ParcelStore and ports.ParcelWriter with
// PostGIS.
type ParcelRepo struct {
	db *DB
}

// NewParcelRepo creates a new ParcelRepo.
func NewParcelRepo(db *DB) *ParcelRepo {
	return &ParcelRepo{db: db}
}

func scanParcel(row pgx.Row, withDistance bool) (domain.ParcelRecord, error) {
	var (
		p    domain.ParcelRecord
		gj   []byte
		dist float64
	)
	dest := []any{
		&p.ID, &p.SourceParcelID, &p.County,
		&p.SitusAddress, &p.OwnerName, &p.Acreage,
		&p.Legal.Lot, &p.Legal.Block, &p.Legal.Subdivision,
		&gj, &p.Centroid.Lon, &p.Centroid.Lat,
		&p.UpdatedAt,
	}
	if withDistance {
		dest = append(dest, &dist)
	}
	if err := row.Scan(dest...); err != nil {
		return p, err
	}
	g, err := domain.ParseGeometryJSON(gj)
	if err != nil {
		return p, fmt.Errorf("parcel %s geometry: %w", p.ID, err)
	}
	p.Geometry = g
	if withDistance {
		p.Distance = &dist
	}
	return p, nil
}

func (r *ParcelRepo) query(ctx context.Context, withDistance bool, sql string, args ...any) ([]domain.ParcelRecord, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parcels []domain.ParcelRecord
	for rows.Next() {
		p, err := scanParcel(rows, withDistance)
		if err != nil {
			return nil, err
		}
		parcels = append(parcels, p)
	}
	return parcels, rows.Err()
}

// GetByID returns a parcel by UUID.
func (r *ParcelRepo) GetByID(ctx context.Context, id string) (*domain.ParcelRecord, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+parcelColumns+` FROM parcels WHERE id = $1`, id)
	p, err := scanParcel(row, false)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// FindByIdentifier matches the normalized APN. An empty county searches
// every county.
func (r *ParcelRepo) FindByIdentifier(ctx context.Context, county, normalizedID string) ([]domain.ParcelRecord, error) {
	return r.query(ctx, false, `
		SELECT `+parcelColumns+`
		FROM parcels
		WHERE normalized_id = $1 AND ($2 = '' OR county = $2)
		ORDER BY updated_at DESC
		LIMIT 10
	`, normalizedID, county)
}

// FindByPoint returns parcels containing p.
func (r *ParcelRepo) FindByPoint(ctx context.Context, p domain.GeoPoint) ([]domain.ParcelRecord, error) {
	return r.query(ctx, false, `
		SELECT `+parcelColumns+`
		FROM parcels
		WHERE ST_Contains(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		LIMIT 5
	`, p.Lon, p.Lat)
}

// FindByBounds returns parcels whose bounding box intersects b.
func (r *ParcelRepo) FindByBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.ParcelRecord, error) {
	return r.query(ctx, false, `
		SELECT `+parcelColumns+`
		FROM parcels
		WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		LIMIT $5
	`, b.MinLon, b.MinLat, b.MaxLon, b.MaxLat, limit)
}

// FindByOwner prefilters owners with pg_trgm similarity.
func (r *ParcelRepo) FindByOwner(ctx context.Context, owner, county string, limit int) ([]domain.ParcelRecord, error) {
	return r.query(ctx, false, `
		SELECT `+parcelColumns+`
		FROM parcels
		WHERE county = $2 AND similarity(owner_name, $1) > $3
		ORDER BY similarity(owner_name, $1) DESC
		LIMIT $4
	`, owner, county, trigramFloor, limit)
}

// FindNearby returns parcels within radiusMeters of p using ST_DWithin,
// nearest first.
func (r *ParcelRepo) FindNearby(ctx context.Context, p domain.GeoPoint, radiusMeters float64, limit int) ([]domain.ParcelRecord, error) {
	return r.query(ctx, true, `
		SELECT `+parcelColumns+`,
		       ST_Distance(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance
		FROM parcels
		WHERE ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance
		LIMIT $4
	`, p.Lon, p.Lat, radiusMeters, limit)
}

// FindByLegalDescription matches a fuzzy subdivision name or an exact
// lot and block.
func (r *ParcelRepo) FindByLegalDescription(ctx context.Context, legal domain.LegalDescription, county string, limit int) ([]domain.ParcelRecord, error) {
	return r.query(ctx, false, `
		SELECT `+parcelColumns+`
		FROM parcels
		WHERE ($4 = '' OR county = $4)
		  AND (
		    ($3 <> '' AND similarity(subdivision, $3) > $5)
		    OR ($1 <> '' AND $2 <> '' AND lot = $1 AND block = $2 AND ($3 = '' OR similarity(subdivision, $3) > $5))
		  )
		ORDER BY similarity(subdivision, $3) DESC
		LIMIT $6
	`, legal.Lot, legal.Block, legal.Subdivision, county, trigramFloor, limit)
}

// FindByArea returns parcels whose acreage lies within tolerance of acreage,
// closest first.
func (r *ParcelRepo) FindByArea(ctx context.Context, county string, acreage, tolerance float64, limit int) ([]domain.ParcelRecord, error) {
	return r.query(ctx, false, `
		SELECT `+parcelColumns+`
		FROM parcels
		WHERE county = $1 AND acreage BETWEEN $2 * (1 - $3) AND $2 * (1 + $3)
		ORDER BY abs(acreage - $2)
		LIMIT $4
	`, county, acreage, tolerance, limit)
}

// UpsertBatch inserts or updates parcels by (county, normalized_id) using
// pgx.Batch.
func (r *ParcelRepo) UpsertBatch(ctx context.Context, parcels []domain.ParcelRecord) error {
	batch := &pgx.Batch{}
	for _, p := range parcels {
		gj, err := json.Marshal(p.Geometry)
		if err != nil {
			return fmt.Errorf("encode geometry %s: %w", p.SourceParcelID, err)
		}
		batch.Queue(`
			INSERT INTO parcels (source_parcel_id, normalized_id, county, situs_address, owner_name,
			                     acreage, lot, block, subdivision, geom, updated_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, 0),
			        NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
			        ST_Multi(ST_SetSRID(ST_GeomFromGeoJSON($10), 4326)), now())
			ON CONFLICT (county, normalized_id) DO UPDATE
			SET source_parcel_id = EXCLUDED.source_parcel_id,
			    situs_address = EXCLUDED.situs_address,
			    owner_name = EXCLUDED.owner_name,
			    acreage = EXCLUDED.acreage,
			    lot = EXCLUDED.lot, block = EXCLUDED.block, subdivision = EXCLUDED.subdivision,
			    geom = EXCLUDED.geom,
			    updated_at = now()
		`, p.SourceParcelID, apnformat.Normalize(p.SourceParcelID), apnformat.CanonicalCounty(p.County),
			p.SitusAddress, p.OwnerName, p.Acreage,
			p.Legal.Lot, p.Legal.Block, p.Legal.Subdivision, string(gj))
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range parcels {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}
