package usecases_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/usecases"
)

// textLayerPDF is the text-layer survey fixture shared with the extraction tests.
var textLayerPDF = func() []byte {
	data, err := os.ReadFile("testdata/text_layer.pdf")
	if err != nil {
		panic(err)
	}
	return data
}()

// --- Mock SurveyRepository ---

type mockSurveyRepo struct {
	surveys map[string]*domain.Survey
	saved   string
}

func newMockSurveyRepo() *mockSurveyRepo {
	return &mockSurveyRepo{surveys: map[string]*domain.Survey{}}
}

func (m *mockSurveyRepo) Create(ctx context.Context, s *domain.Survey) error {
	cp := *s
	m.surveys[s.ID] = &cp
	return nil
}

func (m *mockSurveyRepo) GetByID(ctx context.Context, id string) (*domain.Survey, error) {
	s, ok := m.surveys[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSurveyRepo) SaveResult(ctx context.Context, id string, ext *domain.SurveyExtraction, match *domain.MatchResult, status string) error {
	s, ok := m.surveys[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Extraction, s.Match, s.Status = ext, match, status
	m.saved = status
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	locks   []*domain.LockedParcel
	uploads []*domain.SurveyUploadedEvent
	err     error
}

func (m *mockPublisher) PublishParcelLocked(ctx context.Context, lock *domain.LockedParcel) error {
	m.locks = append(m.locks, lock)
	return m.err
}

func (m *mockPublisher) PublishSurveyUploaded(ctx context.Context, event *domain.SurveyUploadedEvent) error {
	m.uploads = append(m.uploads, event)
	return m.err
}

func newSurveySvc(store *mockParcelStore, repo *mockSurveyRepo, pub *mockPublisher) *usecases.SurveyService {
	extractor := usecases.NewExtractionService(nil, nil, usecases.ExtractionConfig{})
	matcher := usecases.NewMatchService(store, nil, nil, usecases.MatchConfig{})
	return usecases.NewSurveyService(extractor, matcher, repo, pub)
}

func hcadStore() *mockParcelStore {
	return &mockParcelStore{
		byIdentifierFn: func(ctx context.Context, county, id string) ([]domain.ParcelRecord, error) {
			return []domain.ParcelRecord{parcel("p-1", id, -95.37, 29.76)}, nil
		},
	}
}

// --- Tests ---

func TestSurveyService_ExtractAndMatch(t *testing.T) {
	svc := newSurveySvc(hcadStore(), nil, nil)

	out, err := svc.ExtractAndMatch(context.Background(), usecases.Document{Filename: "survey.pdf", Data: textLayerPDF})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Extraction.APN == nil || *out.Extraction.APN != "0660640130017" {
		t.Errorf("expected extracted apn, got %v", out.Extraction.APN)
	}
	if out.Match.Status != domain.MatchAutoSelected {
		t.Errorf("expected AUTO_SELECTED, got %s", out.Match.Status)
	}
}

func TestSurveyService_UploadPublishesAndProcesses(t *testing.T) {
	repo := newMockSurveyRepo()
	pub := &mockPublisher{}
	svc := newSurveySvc(hcadStore(), repo, pub)

	sv, err := svc.Upload(context.Background(), usecases.Document{Filename: "survey.pdf", Data: textLayerPDF})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if sv.Status != domain.SurveyPending || sv.ContentType != "application/pdf" {
		t.Errorf("unexpected survey %+v", sv)
	}
	if len(pub.uploads) != 1 || pub.uploads[0].SurveyID != sv.ID {
		t.Fatalf("expected one upload event for %s, got %+v", sv.ID, pub.uploads)
	}

	done, err := svc.Process(context.Background(), sv.ID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if done.Status != domain.SurveyMatched || repo.saved != domain.SurveyMatched {
		t.Errorf("expected matched, got %s (saved %s)", done.Status, repo.saved)
	}
	if done.Match == nil || len(done.Match.Candidates) != 1 {
		t.Errorf("expected stored match result, got %+v", done.Match)
	}
}

func TestSurveyService_ProcessIsIdempotent(t *testing.T) {
	repo := newMockSurveyRepo()
	repo.surveys["s-1"] = &domain.Survey{ID: "s-1", Status: domain.SurveyMatched}
	svc := newSurveySvc(hcadStore(), repo, nil)

	sv, err := svc.Process(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sv.Status != domain.SurveyMatched || repo.saved != "" {
		t.Error("an already processed survey must not be re-run")
	}
}

func TestSurveyService_ProcessMarksFailure(t *testing.T) {
	repo := newMockSurveyRepo()
	repo.surveys["s-2"] = &domain.Survey{ID: "s-2", Filename: "notes.txt", Data: []byte("plain notes"), Status: domain.SurveyPending}
	svc := newSurveySvc(hcadStore(), repo, nil)

	sv, err := svc.Process(context.Background(), "s-2")
	if !errors.Is(err, domain.ErrUnsupportedDocument) {
		t.Fatalf("expected ErrUnsupportedDocument, got %v", err)
	}
	if sv.Status != domain.SurveyFailed || repo.saved != domain.SurveyFailed {
		t.Errorf("expected failed status, got %s", sv.Status)
	}
}

func TestSurveyService_UploadSurvivesPublishFailure(t *testing.T) {
	repo := newMockSurveyRepo()
	pub := &mockPublisher{err: errors.New("nats down")}
	svc := newSurveySvc(hcadStore(), repo, pub)

	sv, err := svc.Upload(context.Background(), usecases.Document{Filename: "survey.pdf", Data: textLayerPDF})
	if err != nil {
		t.Fatalf("publish failure should not fail the upload: %v", err)
	}
	if _, ok := repo.surveys[sv.ID]; !ok {
		t.Error("survey should be stored")
	}
}
