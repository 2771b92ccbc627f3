package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samirrijal/siteintel/internal/core/domain"
)

// SurveyRepo implements ports.SurveyRepository with pgx.
type SurveyRepo struct {
	db *DB
}

// NewSurveyRepo creates a new SurveyRepo.
func NewSurveyRepo(db *DB) *SurveyRepo {
	return &SurveyRepo{db: db}
}

// Create stores an uploaded survey.
func (r *SurveyRepo) Create(ctx context.Context, s *domain.Survey) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO surveys (id, filename, content_type, declared_county, data, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	`, s.ID, s.Filename, s.ContentType, s.DeclaredCounty, s.Data, s.Status)
	return err
}

// GetByID returns a survey with its stored document and result.
func (r *SurveyRepo) GetByID(ctx context.Context, id string) (*domain.Survey, error) {
	var (
		s          domain.Survey
		ext, match []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, filename, content_type, COALESCE(declared_county, ''), data, status, extraction, match
		FROM surveys WHERE id = $1
	`, id).Scan(&s.ID, &s.Filename, &s.ContentType, &s.DeclaredCounty, &s.Data, &s.Status, &ext, &match)
	if err != nil {
		return nil, notFound(err)
	}
	if len(ext) > 0 {
		if err := json.Unmarshal(ext, &s.Extraction); err != nil {
			return nil, fmt.Errorf("decode extraction: %w", err)
		}
	}
	if len(match) > 0 {
		if err := json.Unmarshal(match, &s.Match); err != nil {
			return nil, fmt.Errorf("decode match: %w", err)
		}
	}
	return &s, nil
}

// SaveResult records the extraction and match outcome.
func (r *SurveyRepo) SaveResult(ctx context.Context, id string, ext *domain.SurveyExtraction, match *domain.MatchResult, status string) error {
	var extJSON, matchJSON []byte
	var err error
	if ext != nil {
		if extJSON, err = json.Marshal(ext); err != nil {
			return fmt.Errorf("encode extraction: %w", err)
		}
	}
	if match != nil {
		if matchJSON, err = json.Marshal(match); err != nil {
			return fmt.Errorf("encode match: %w", err)
		}
	}
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE surveys SET extraction = $2, match = $3, status = $4, updated_at = now()
		WHERE id = $1
	`, id, extJSON, matchJSON, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
