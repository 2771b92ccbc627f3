package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/ports"
)

// SurveyMatch is the synchronous extract-then-match outcome.
type SurveyMatch struct {
	Extraction *domain.SurveyExtraction `json:"extraction"`
	Match      *domain.MatchResult      `json:"match"`
}

// SurveyService runs survey documents through extraction and matching,
// either inline or queued for the matcher worker.
type SurveyService struct {
	extractor *ExtractionService
	matcher   *MatchService
	surveys   ports.SurveyRepository
	events    ports.EventPublisher
}

// NewSurveyService creates a SurveyService. surveys and events may be nil
// when only synchronous matching is used.
func NewSurveyService(extractor *ExtractionService, matcher *MatchService, surveys ports.SurveyRepository, events ports.EventPublisher) *SurveyService {
	return &SurveyService{extractor: extractor, matcher: matcher, surveys: surveys, events: events}
}

// ExtractAndMatch extracts the document and matches the result.
func (s *SurveyService) ExtractAndMatch(ctx context.Context, doc Document) (*SurveyMatch, error) {
	ext, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}
	res, err := s.matcher.Match(ctx, MatchRequest{Extraction: ext, County: doc.DeclaredCounty})
	return &SurveyMatch{Extraction: ext, Match: res}, err
}

// Upload stores the document for asynchronous matching and announces it.
func (s *SurveyService) Upload(ctx context.Context, doc Document) (*domain.Survey, error) {
	if s.surveys == nil {
		return nil, fmt.Errorf("survey storage not configured")
	}
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", domain.ErrDocumentUnreadable)
	}
	sv := &domain.Survey{
		ID:             uuid.NewString(),
		Filename:       doc.Filename,
		ContentType:    mimetype.Detect(doc.Data).String(),
		DeclaredCounty: doc.DeclaredCounty,
		Data:           doc.Data,
		Status:         domain.SurveyPending,
	}
	if err := s.surveys.Create(ctx, sv); err != nil {
		return nil, fmt.Errorf("create survey: %w", err)
	}
	if s.events != nil {
		if err := s.events.PublishSurveyUploaded(ctx, &domain.SurveyUploadedEvent{SurveyID: sv.ID}); err != nil {
			// the row stays pending
			slog.Warn("failed to publish survey upload", "survey_id", sv.ID, "error", err)
		}
	}
	return sv, nil
}

// Get returns a stored survey with its result, if processed.
func (s *SurveyService) Get(ctx context.Context, id string) (*domain.Survey, error) {
	if s.surveys == nil {
		return nil, domain.ErrNotFound
	}
	return s.surveys.GetByID(ctx, id)
}

// Process extracts and matches a stored survey and records the outcome.
// Extraction and store failures mark the survey failed.
func (s *SurveyService) Process(ctx context.Context, id string) (*domain.Survey, error) {
	sv, err := s.surveys.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get survey %s: %w", id, err)
	}
	if sv.Status != domain.SurveyPending {
		return sv, nil
	}

	out, err := s.ExtractAndMatch(ctx, Document{Filename: sv.Filename, Data: sv.Data, DeclaredCounty: sv.DeclaredCounty})
	status := domain.SurveyMatched
	var (
		ext   *domain.SurveyExtraction
		match *domain.MatchResult
	)
	if out != nil {
		ext, match = out.Extraction, out.Match
	}
	if err != nil {
		status = domain.SurveyFailed
	}
	if saveErr := s.surveys.SaveResult(ctx, id, ext, match, status); saveErr != nil {
		return nil, fmt.Errorf("save survey result: %w", saveErr)
	}
	sv.Extraction, sv.Match, sv.Status = ext, match, status
	return sv, err
}
