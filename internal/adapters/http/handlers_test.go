package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"

	handler "github.com/samirrijal/siteintel/internal/adapters/http"
	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/gate"
	"github.com/samirrijal/siteintel/internal/core/ports"
	"github.com/samirrijal/siteintel/internal/core/usecases"
	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
)

// ---- Mock repositories ----

type mockParcelStore struct {
	getByIDFn      func(ctx context.Context, id string) (*domain.ParcelRecord, error)
	byIdentifierFn func(ctx context.Context, county, normalizedID string) ([]domain.ParcelRecord, error)
}

func (m *mockParcelStore) GetByID(ctx context.Context, id string) (*domain.ParcelRecord, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}
func (m *mockParcelStore) FindByIdentifier(ctx context.Context, county, normalizedID string) ([]domain.ParcelRecord, error) {
	if m.byIdentifierFn != nil {
		return m.byIdentifierFn(ctx, county, normalizedID)
	}
	return nil, nil
}
func (m *mockParcelStore) FindByPoint(ctx context.Context, p domain.GeoPoint) ([]domain.ParcelRecord, error) {
	return nil, nil
}
func (m *mockParcelStore) FindByBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.ParcelRecord, error) {
	return nil, nil
}
func (m *mockParcelStore) FindByOwner(ctx context.Context, owner, county string, limit int) ([]domain.ParcelRecord, error) {
	return nil, nil
}
func (m *mockParcelStore) FindNearby(ctx context.Context, p domain.GeoPoint, r float64, limit int) ([]domain.ParcelRecord, error) {
	return nil, nil
}
func (m *mockParcelStore) FindByLegalDescription(ctx context.Context, l domain.LegalDescription, county string, limit int) ([]domain.ParcelRecord, error) {
	return nil, nil
}
func (m *mockParcelStore) FindByArea(ctx context.Context, county string, acreage, tol float64, limit int) ([]domain.ParcelRecord, error) {
	return nil, nil
}

type mockLockRepo struct {
	mu    sync.Mutex
	locks map[string]*domain.LockedParcel
}

func (m *mockLockRepo) Save(ctx context.Context, l *domain.LockedParcel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = map[string]*domain.LockedParcel{}
	}
	m.locks[l.SessionID] = l
	return nil
}
func (m *mockLockRepo) GetBySession(ctx context.Context, id string) (*domain.LockedParcel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[id]; ok {
		return l, nil
	}
	return nil, domain.ErrNotFound
}

type stubProvider struct {
	candidates []domain.GeocodeCandidate
}

func (s stubProvider) Name() string            { return "stub" }
func (s stubProvider) CostPerRequest() float64 { return 0 }
func (s stubProvider) Geocode(ctx context.Context, q string) ([]domain.GeocodeCandidate, error) {
	return s.candidates, nil
}

// ---- Test helpers ----

func square(lon, lat, half float64) domain.ParcelGeometry {
	return domain.NewPolygon(orb.Polygon{{
		{lon - half, lat - half}, {lon + half, lat - half},
		{lon + half, lat + half}, {lon - half, lat + half},
		{lon - half, lat - half},
	}})
}

func hcadParcel() domain.ParcelRecord {
	return domain.ParcelRecord{
		ID: "p-1", SourceParcelID: "0660640130017", County: "harris",
		SitusAddress: "1001 FANNIN ST", Geometry: square(-95.3656, 29.7571, 0.0002),
		Centroid: domain.GeoPoint{Lat: 29.7571, Lon: -95.3656},
	}
}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	validator := apnformat.NewValidator(nil)
	store := &mockParcelStore{}
	matcher := usecases.NewMatchService(store, nil, validator, usecases.MatchConfig{})
	d := &handler.Dependencies{
		Validator:   validator,
		Geocoder:    usecases.NewGeocodeService(nil, nil, nil, validator, usecases.GeocodeConfig{}),
		Extractor:   usecases.NewExtractionService(nil, nil, usecases.ExtractionConfig{}),
		Matcher:     matcher,
		Calibration: usecases.NewCalibrationService(matcher, 0),
		Selection:   usecases.NewSelectionService(&mockLockRepo{}, nil, time.Hour),
		Parcels:     store,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func withStore(store ports.ParcelStore) func(*handler.Dependencies) {
	return func(d *handler.Dependencies) {
		d.Parcels = store
		d.Matcher = usecases.NewMatchService(store, nil, d.Validator, usecases.MatchConfig{})
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*httpResponse, error) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return &httpResponse{Status: resp.StatusCode, Header: resp.Header.Get, Body: data}, nil
}

type httpResponse struct {
	Status int
	Header func(string) string
	Body   []byte
}

func (r *httpResponse) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		t.Fatalf("decode %s: %v", r.Body, err)
	}
}

func mustDo(t *testing.T, app *fiber.App, method, path string, body any) *httpResponse {
	t.Helper()
	resp, err := doJSON(t, app, method, path, body)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

type apiError struct {
	Status  int             `json:"status"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

// ---- System endpoints ----

func TestHealth_Returns200(t *testing.T) {
	resp := mustDo(t, setupApp(makeDeps()), "GET", "/v1/health", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if v := resp.Header("X-API-Version"); v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}

func TestReady_NoDB(t *testing.T) {
	resp := mustDo(t, setupApp(makeDeps()), "GET", "/v1/ready", nil)
	if resp.Status != 503 {
		t.Fatalf("expected 503 without a database, got %d", resp.Status)
	}
}

// ---- Format and geometry validation ----

func TestCounties_PaginatedWithLinks(t *testing.T) {
	resp := mustDo(t, setupApp(makeDeps()), "GET", "/v1/counties?limit=2", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	var result struct {
		Data       []apnformat.CountyFormat `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	resp.decode(t, &result)
	if len(result.Data) != 2 || result.Pagination.Total != len(apnformat.DefaultFormats) {
		t.Errorf("expected a 2-item page of %d, got %d of %d", len(apnformat.DefaultFormats), len(result.Data), result.Pagination.Total)
	}
	if link := resp.Header("Link"); !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link, got %q", link)
	}
	if resp.Header("Cache-Control") != "public, max-age=3600" {
		t.Errorf("unexpected Cache-Control %q", resp.Header("Cache-Control"))
	}
}

func TestValidateParcelID(t *testing.T) {
	app := setupApp(makeDeps())
	tests := []struct {
		name      string
		body      map[string]string
		wantCode  int
		wantValid bool
	}{
		{"dashed harris id", map[string]string{"parcel_id": "066-064-013-0017", "county": "Harris"}, 200, true},
		{"wrong length", map[string]string{"parcel_id": "12345", "county": "harris"}, 200, false},
		{"missing county", map[string]string{"parcel_id": "0660640130017"}, 400, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := mustDo(t, app, "POST", "/v1/parcel-ids/validate", tt.body)
			if resp.Status != tt.wantCode {
				t.Fatalf("expected %d, got %d (%s)", tt.wantCode, resp.Status, resp.Body)
			}
			if tt.wantCode != 200 {
				return
			}
			var out struct {
				Result apnformat.Result `json:"result"`
			}
			resp.decode(t, &out)
			if out.Result.Valid != tt.wantValid {
				t.Errorf("expected valid=%v, got %+v", tt.wantValid, out.Result)
			}
			if !tt.wantValid && out.Result.Hint == "" {
				t.Error("expected a format hint for an invalid id")
			}
		})
	}
}

func TestDetectCounty(t *testing.T) {
	resp := mustDo(t, setupApp(makeDeps()), "POST", "/v1/parcel-ids/detect", map[string]string{"parcel_id": "0660640130017"})
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	var id domain.ParcelIdentifier
	resp.decode(t, &id)
	if id.County != "harris" || id.Normalized != "0660640130017" {
		t.Errorf("unexpected identifier %+v", id)
	}
}

func TestValidateGeometry(t *testing.T) {
	app := setupApp(makeDeps())

	valid := mustDo(t, app, "POST", "/v1/geometry/validate", json.RawMessage(
		`{"type":"Polygon","coordinates":[[[-95.37,29.76],[-95.369,29.76],[-95.369,29.761],[-95.37,29.761],[-95.37,29.76]]]}`))
	var ok struct {
		Valid   bool    `json:"valid"`
		Acreage float64 `json:"acreage"`
	}
	valid.decode(t, &ok)
	if !ok.Valid || ok.Acreage <= 0 {
		t.Errorf("expected a valid polygon with area, got %s", valid.Body)
	}

	invalid := mustDo(t, app, "POST", "/v1/geometry/validate", json.RawMessage(
		`{"type":"Point","coordinates":[-95.37,29.76]}`))
	var bad struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	invalid.decode(t, &bad)
	if bad.Valid || bad.Reason == "" {
		t.Errorf("expected an invalid result with a reason, got %s", invalid.Body)
	}
}

// ---- Geocoding ----

func TestGeocode_MissingQuery(t *testing.T) {
	resp := mustDo(t, setupApp(makeDeps()), "GET", "/v1/geocode", nil)
	var e apiError
	resp.decode(t, &e)
	if resp.Status != 400 || e.Code != "bad_request" {
		t.Errorf("expected 400 bad_request, got %d %s", resp.Status, e.Code)
	}
}

func TestGeocode_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Geocoder = usecases.NewGeocodeService([]ports.GeocodingProvider{stubProvider{candidates: []domain.GeocodeCandidate{{
			FormattedAddress: "1001 Fannin St, Houston, TX", Point: domain.GeoPoint{Lat: 29.7571, Lon: -95.3656},
			Confidence: 0.9, Provider: "stub",
		}}}}, nil, nil, d.Validator, usecases.GeocodeConfig{})
	})
	resp := mustDo(t, setupApp(deps), "GET", "/v1/geocode?q=1001+Fannin+St+Houston", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d (%s)", resp.Status, resp.Body)
	}
	var res domain.GeocodeResult
	resp.decode(t, &res)
	if len(res.Candidates) != 1 || res.Provider != "stub" || resp.Header("X-Trace-ID") != res.TraceID {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestGeocode_OutsideCoverage(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Geocoder = usecases.NewGeocodeService([]ports.GeocodingProvider{stubProvider{candidates: []domain.GeocodeCandidate{{
			FormattedAddress: "Fannin St, Denver, CO", Point: domain.GeoPoint{Lat: 39.74, Lon: -104.99}, Confidence: 0.9,
		}}}}, nil, nil, d.Validator, usecases.GeocodeConfig{})
	})
	resp := mustDo(t, setupApp(deps), "GET", "/v1/geocode?q=1001+Fannin+St+Denver", nil)
	var e struct {
		Code        string   `json:"code"`
		Suggestions []string `json:"suggestions"`
	}
	resp.decode(t, &e)
	if resp.Status != 422 || e.Code != "outside_coverage" || len(e.Suggestions) == 0 {
		t.Errorf("expected 422 outside_coverage with suggestions, got %d %s", resp.Status, resp.Body)
	}
}

func TestAutocomplete_NotConfigured(t *testing.T) {
	resp := mustDo(t, setupApp(makeDeps()), "GET", "/v1/geocode/autocomplete?input=1001+Fan", nil)
	if resp.Status != 502 {
		t.Errorf("expected 502 without a provider, got %d", resp.Status)
	}
}

// ---- Parcels and matching ----

func TestGetParcel_NotFound(t *testing.T) {
	resp := mustDo(t, setupApp(makeDeps()), "GET", "/v1/parcels/missing", nil)
	var e apiError
	resp.decode(t, &e)
	if resp.Status != 404 || e.Code != "not_found" {
		t.Errorf("expected 404 not_found, got %d %s", resp.Status, e.Code)
	}
}

func TestGetParcel_Success(t *testing.T) {
	deps := makeDeps(withStore(&mockParcelStore{
		getByIDFn: func(ctx context.Context, id string) (*domain.ParcelRecord, error) {
			p := hcadParcel()
			return &p, nil
		},
	}))
	resp := mustDo(t, setupApp(deps), "GET", "/v1/parcels/p-1", nil)
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	var p domain.ParcelRecord
	resp.decode(t, &p)
	if p.SourceParcelID != "0660640130017" || p.Geometry.IsZero() {
		t.Errorf("unexpected parcel %+v", p)
	}
	if resp.Header("ETag") == "" {
		t.Error("expected an ETag on a parcel read")
	}
}

func TestMatch_APNAutoSelects(t *testing.T) {
	deps := makeDeps(withStore(&mockParcelStore{
		byIdentifierFn: func(ctx context.Context, county, id string) ([]domain.ParcelRecord, error) {
			if id != "0660640130017" {
				t.Errorf("unexpected normalized id %q", id)
			}
			return []domain.ParcelRecord{hcadParcel()}, nil
		},
	}))
	resp := mustDo(t, setupApp(deps), "POST", "/v1/match", map[string]string{"parcel_id": "066-064-013-0017", "county": "harris"})
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d (%s)", resp.Status, resp.Body)
	}
	var res domain.MatchResult
	resp.decode(t, &res)
	if res.Status != domain.MatchAutoSelected || len(res.Candidates) != 1 {
		t.Errorf("expected AUTO_SELECTED, got %s with %d candidates", res.Status, len(res.Candidates))
	}
}

func TestSearchParcels_StoreDown(t *testing.T) {
	deps := makeDeps(withStore(&mockParcelStore{
		byIdentifierFn: func(ctx context.Context, county, id string) ([]domain.ParcelRecord, error) {
			return nil, errors.New("connection refused")
		},
	}))
	resp := mustDo(t, setupApp(deps), "GET", "/v1/parcels/search?parcel_id=0660640130017", nil)
	var e apiError
	resp.decode(t, &e)
	if resp.Status != 503 || e.Code != "match_unavailable" {
		t.Fatalf("expected 503 match_unavailable, got %d %s", resp.Status, resp.Body)
	}
	var partial domain.MatchResult
	if err := json.Unmarshal(e.Details, &partial); err != nil || partial.Status != domain.MatchError {
		t.Errorf("expected ERROR result in details, got %s", e.Details)
	}
}

func TestSearchParcels_BadCoordinates(t *testing.T) {
	resp := mustDo(t, setupApp(makeDeps()), "GET", "/v1/parcels/search?lat=95&lon=-95", nil)
	if resp.Status != 400 {
		t.Errorf("expected 400, got %d", resp.Status)
	}
}

// ---- Calibration ----

func TestCalibrate_InsufficientPoints(t *testing.T) {
	body := usecases.CalibrateRequest{Points: []domain.ControlPointPair{
		{Image: domain.Pixel{X: 0, Y: 0}, Map: domain.GeoPoint{Lat: 29.76, Lon: -95.37}},
	}}
	resp := mustDo(t, setupApp(makeDeps()), "POST", "/v1/calibrations", body)
	var e apiError
	resp.decode(t, &e)
	if resp.Status != 422 || e.Code != "calibration_invalid" {
		t.Errorf("expected 422 calibration_invalid, got %d %s", resp.Status, resp.Body)
	}
}

// ---- Surveys ----

func TestExtractSurvey_MissingFile(t *testing.T) {
	resp := mustDo(t, setupApp(makeDeps()), "POST", "/v1/surveys/extract", nil)
	if resp.Status != 400 {
		t.Errorf("expected 400, got %d", resp.Status)
	}
}

// ---- Selection sessions ----

func candidate() domain.CandidateParcel {
	p := hcadParcel()
	return domain.CandidateParcel{
		ParcelID: p.ID, SourceParcelID: p.SourceParcelID, County: p.County,
		Confidence: 90, Band: domain.BandHigh, ReasonCodes: []domain.ReasonCode{domain.ReasonAPN},
		Geometry: p.Geometry,
	}
}

func TestSession_LockFlow(t *testing.T) {
	app := setupApp(makeDeps())

	start := mustDo(t, app, "POST", "/v1/sessions", map[string]any{"candidates": []domain.CandidateParcel{candidate()}})
	if start.Status != 201 {
		t.Fatalf("expected 201, got %d (%s)", start.Status, start.Body)
	}
	var snap gate.Snapshot
	start.decode(t, &snap)
	if snap.SessionID == "" || len(snap.Candidates) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	events := "/v1/sessions/" + snap.SessionID + "/events"

	if resp := mustDo(t, app, "POST", events, map[string]string{"type": "focus", "parcel_id": "p-1"}); resp.Status != 200 {
		t.Fatalf("focus: expected 200, got %d (%s)", resp.Status, resp.Body)
	}

	refused := mustDo(t, app, "POST", events, map[string]any{"type": "confirm", "parcel_id": "p-1"})
	var e apiError
	refused.decode(t, &e)
	if refused.Status != 409 || e.Code != string(domain.GateVerificationIncomplete) {
		t.Fatalf("expected 409 verification_incomplete, got %d %s", refused.Status, refused.Body)
	}
	var unchanged gate.Snapshot
	if err := json.Unmarshal(e.Details, &unchanged); err != nil || unchanged.State.State != domain.StateCandidateFocus {
		t.Errorf("expected unchanged candidate-focus state in details, got %s", e.Details)
	}

	locked := mustDo(t, app, "POST", events, map[string]any{
		"type": "confirm", "parcel_id": "p-1",
		"verification": domain.VerificationChecks{CorrectBoundary: true, LocationMatches: true, UnderstandsAnalysis: true},
	})
	if locked.Status != 200 {
		t.Fatalf("confirm: expected 200, got %d (%s)", locked.Status, locked.Body)
	}
	locked.decode(t, &snap)
	if snap.State.State != domain.StateLocked || snap.Lock == nil {
		t.Fatalf("expected locked snapshot, got %+v", snap.State)
	}

	lock := mustDo(t, app, "GET", "/v1/sessions/"+snap.SessionID+"/lock", nil)
	if lock.Status != 200 {
		t.Fatalf("lock: expected 200, got %d", lock.Status)
	}

	again := mustDo(t, app, "POST", events, map[string]string{"type": "blur"})
	again.decode(t, &e)
	if again.Status != 409 || e.Code != string(domain.GateSessionLocked) {
		t.Errorf("expected 409 session_locked, got %d %s", again.Status, again.Body)
	}

	next := mustDo(t, app, "POST", "/v1/sessions/"+snap.SessionID+"/change-parcel", nil)
	if next.Status != 201 {
		t.Fatalf("change parcel: expected 201, got %d", next.Status)
	}
	if old := mustDo(t, app, "GET", "/v1/sessions/"+snap.SessionID, nil); old.Status != 404 {
		t.Errorf("old session should be gone, got %d", old.Status)
	}
}

func TestSession_UnknownEventType(t *testing.T) {
	app := setupApp(makeDeps())
	start := mustDo(t, app, "POST", "/v1/sessions", nil)
	var snap gate.Snapshot
	start.decode(t, &snap)

	resp := mustDo(t, app, "POST", "/v1/sessions/"+snap.SessionID+"/events", map[string]string{"type": "teleport"})
	if resp.Status != 400 {
		t.Errorf("expected 400, got %d", resp.Status)
	}
}

func TestSession_NotFound(t *testing.T) {
	app := setupApp(makeDeps())
	if resp := mustDo(t, app, "DELETE", "/v1/sessions/missing", nil); resp.Status != 404 {
		t.Errorf("expected 404, got %d", resp.Status)
	}
}

// ---- GraphQL ----

func TestGraphQL_ValidateParcelID(t *testing.T) {
	resp := mustDo(t, setupApp(makeDeps()), "POST", "/graphql", map[string]string{
		"query": `{ validateParcelId(parcel_id: "0660640130017", county: "harris") { valid } classifyInput(text: "29.76, -95.37") }`,
	})
	var out struct {
		Data struct {
			ValidateParcelID struct {
				Valid bool `json:"valid"`
			} `json:"validateParcelId"`
			ClassifyInput string `json:"classifyInput"`
		} `json:"data"`
	}
	resp.decode(t, &out)
	if !out.Data.ValidateParcelID.Valid || out.Data.ClassifyInput != string(domain.InputCoordinates) {
		t.Errorf("unexpected graphql response %s", resp.Body)
	}
}

// TestAccessLogMiddleware verifies structured access logging passes responses through.
func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(handler.AccessLogMiddleware())
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
