package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/ports"
	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
	"github.com/samirrijal/siteintel/internal/pkg/geometry"
	"github.com/samirrijal/siteintel/internal/pkg/metrics"
	"github.com/samirrijal/siteintel/internal/pkg/similarity"
	"github.com/samirrijal/siteintel/internal/pkg/telemetry"
)

// Signal weights on the 0-100 confidence scale. Every non-identifier signal
// combined stays below WeightAPN, so an identifier match always outranks a
// candidate without one.
const (
	WeightAPN      = 70.0
	WeightAddress  = 20.0
	WeightLocation = 20.0
	WeightOwner    = 10.0
	WeightLegal    = 8.0
	WeightArea     = 5.0
	WeightCounty   = 2.0

	// spatial signals below this do not produce a reason code
	minSpatialPoints = 8.0

	// OCR text is noisier than a native text layer.
	ocrQuality = 0.9

	areaTolerance = 0.20
)

// Matcher defaults.
const (
	DefaultStoreTimeout     = 10 * time.Second
	DefaultNearbyRadius     = 75.0
	DefaultCandidateLimit   = 10
	DefaultHighThreshold    = 70.0
	DefaultMediumThreshold  = 40.0
	DefaultAutoSelectMargin = 15.0

	// geometry re-query after calibration
	boundarySearchPadding = 50.0
	overlapWeight         = 0.85
	proximityWeight       = 0.15
	proximityFalloff      = 100.0
	minOverlapPercent     = 10.0
	maxCentroidMeters     = 25.0
	geometryHighBand      = 80.0
	geometryMediumBand    = 50.0
)

// MatchConfig tunes the matcher.
type MatchConfig struct {
	StoreTimeout     time.Duration
	NearbyRadius     float64
	CandidateLimit   int
	HighThreshold    float64
	MediumThreshold  float64
	AutoSelectMargin float64
}

// MatchRequest carries every signal available for one match. Any field may
// be empty.
type MatchRequest struct {
	Extraction *domain.SurveyExtraction
	Point      *domain.GeoPoint
	County     string
	Identifier string
	Address    string
	Owner      string
}

// MatchService nominates candidate parcels from several independent
// strategies, scores each candidate on every signal and classifies the result.
type MatchService struct {
	parcels   ports.ParcelStore
	locator   ports.AddressLocator
	validator *apnformat.Validator
	cfg       MatchConfig
}

// NewMatchService creates a MatchService. locator may be nil, in which case
// addresses are scored on text only.
func NewMatchService(parcels ports.ParcelStore, locator ports.AddressLocator, validator *apnformat.Validator, cfg MatchConfig) *MatchService {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.NearbyRadius <= 0 {
		cfg.NearbyRadius = DefaultNearbyRadius
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.HighThreshold <= 0 {
		cfg.HighThreshold = DefaultHighThreshold
	}
	if cfg.MediumThreshold <= 0 {
		cfg.MediumThreshold = DefaultMediumThreshold
	}
	if cfg.AutoSelectMargin <= 0 {
		cfg.AutoSelectMargin = DefaultAutoSelectMargin
	}
	if validator == nil {
		validator = apnformat.NewValidator(nil)
	}
	return &MatchService{parcels: parcels, locator: locator, validator: validator, cfg: cfg}
}

// signals is the normalized view of a MatchRequest.
type signals struct {
	apn       string
	address   string
	addrPoint *domain.GeoPoint
	point     *domain.GeoPoint
	owner     string
	legal     domain.LegalDescription
	acreage   float64
	county    string
	quality   float64
	scanned   bool
}

func (s *MatchService) collect(req MatchRequest) signals {
	sig := signals{
		apn:     apnformat.Normalize(req.Identifier),
		address: strings.TrimSpace(req.Address),
		owner:   strings.TrimSpace(req.Owner),
		point:   req.Point,
		county:  apnformat.CanonicalCounty(req.County),
		quality: 1,
	}
	if ext := req.Extraction; ext != nil {
		if sig.apn == "" && ext.APN != nil {
			sig.apn = apnformat.Normalize(*ext.APN)
		}
		if sig.address == "" && ext.Address != nil {
			sig.address = *ext.Address
		}
		if sig.owner == "" && ext.Owner != nil {
			sig.owner = *ext.Owner
		}
		if ext.Legal != nil {
			sig.legal = *ext.Legal
		}
		if ext.Acreage != nil {
			sig.acreage = *ext.Acreage
		}
		if sig.county == "" && ext.County != nil {
			sig.county = apnformat.CanonicalCounty(*ext.County)
		}
		if ext.OCRUsed {
			sig.quality = ocrQuality
		}
		sig.scanned = ext.Scanned
	}
	if sig.county == "" && sig.apn != "" {
		if c, ok := s.validator.DetectCounty(sig.apn); ok {
			sig.county = c
		}
	}
	return sig
}

func (sig signals) summary() domain.MatchSignals {
	return domain.MatchSignals{
		HasAPN:       sig.apn != "",
		HasAddress:   sig.address != "",
		HasPoint:     sig.point != nil,
		HasOwner:     sig.owner != "",
		HasLegal:     !sig.legal.IsZero(),
		HasAcreage:   sig.acreage > 0,
		HasCounty:    sig.county != "",
		ScannedNoOCR: sig.scanned,
	}
}

// nominations de-duplicates records by parcel id across strategies.
type nominations struct {
	mu      sync.Mutex
	records map[string]domain.ParcelRecord
	via     map[string]string
}

func (n *nominations) add(strategy string, recs []domain.ParcelRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range recs {
		if existing, ok := n.records[r.ID]; ok {
			if existing.Distance == nil && r.Distance != nil {
				existing.Distance = r.Distance
				n.records[r.ID] = existing
			}
			continue
		}
		n.records[r.ID] = r
		n.via[r.ID] = strategy
	}
}

// Match runs every applicable nomination strategy, scores and ranks the
// candidates, and classifies the outcome. A store failure yields an ERROR
// result together with an error wrapping ErrMatchUnavailable.
func (s *MatchService) Match(ctx context.Context, req MatchRequest) (*domain.MatchResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "match.candidates")
	defer span.End()
	start := time.Now()

	sig := s.collect(req)
	res := &domain.MatchResult{Signals: sig.summary(), Candidates: []domain.CandidateParcel{}}
	span.SetAttributes(attribute.String(telemetry.AttrCounty, sig.county))

	if sig.address != "" && s.locator != nil {
		if p, err := s.locator.Locate(ctx, sig.address); err == nil {
			sig.addrPoint = p
		} else {
			slog.Debug("address did not locate", "address", sig.address, "error", err)
		}
	}

	noms := &nominations{records: map[string]domain.ParcelRecord{}, via: map[string]string{}}
	if err := s.nominate(ctx, sig, noms); err != nil {
		return s.fail(span, res, err)
	}
	if len(noms.records) == 0 && sig.acreage > 0 {
		if err := s.areaFallback(ctx, sig, noms); err != nil {
			return s.fail(span, res, err)
		}
	}

	for id, rec := range noms.records {
		if c, ok := s.score(rec, sig, noms.via[id]); ok {
			res.Candidates = append(res.Candidates, c)
		}
	}
	RankCandidates(res.Candidates)
	if len(res.Candidates) > s.cfg.CandidateLimit {
		res.Candidates = res.Candidates[:s.cfg.CandidateLimit]
	}
	res.Status = s.classify(res)

	metrics.MatchOutcomes.WithLabelValues(string(res.Status)).Inc()
	metrics.MatchDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String(telemetry.AttrMatchStatus, string(res.Status)),
		attribute.Int(telemetry.AttrCandidates, len(res.Candidates)),
	)
	return res, nil
}

func (s *MatchService) fail(span trace.Span, res *domain.MatchResult, err error) (*domain.MatchResult, error) {
	res.Status = domain.MatchError
	res.Candidates = []domain.CandidateParcel{}
	res.Error = err.Error()
	metrics.MatchOutcomes.WithLabelValues(string(res.Status)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "parcel store failure")
	return res, fmt.Errorf("%w: %v", domain.ErrMatchUnavailable, err)
}

func (s *MatchService) nominate(ctx context.Context, sig signals, noms *nominations) error {
	g, ctx := errgroup.WithContext(ctx)
	run := func(strategy string, fn func(ctx context.Context) ([]domain.ParcelRecord, error)) {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
			defer cancel()
			recs, err := fn(ctx)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s strategy: %w", strategy, err)
			}
			noms.add(strategy, recs)
			return nil
		})
	}

	if sig.apn != "" {
		run("APN_EXACT", func(ctx context.Context) ([]domain.ParcelRecord, error) {
			return s.parcels.FindByIdentifier(ctx, sig.county, sig.apn)
		})
	}
	for strategy, p := range map[string]*domain.GeoPoint{"ADDRESS_SPATIAL": sig.addrPoint, "POINT_SPATIAL": sig.point} {
		if p == nil {
			continue
		}
		pt := *p
		run(strategy, func(ctx context.Context) ([]domain.ParcelRecord, error) {
			inside, err := s.parcels.FindByPoint(ctx, pt)
			if err != nil {
				return nil, err
			}
			near, err := s.parcels.FindNearby(ctx, pt, s.cfg.NearbyRadius, s.cfg.CandidateLimit)
			if err != nil {
				return nil, err
			}
			return append(inside, near...), nil
		})
	}
	if sig.owner != "" && sig.county != "" {
		run("OWNER_FUZZY", func(ctx context.Context) ([]domain.ParcelRecord, error) {
			return s.parcels.FindByOwner(ctx, sig.owner, sig.county, s.cfg.CandidateLimit)
		})
	}
	if sig.legal.Subdivision != "" || (sig.legal.Lot != "" && sig.legal.Block != "") {
		run("LEGAL_DESC", func(ctx context.Context) ([]domain.ParcelRecord, error) {
			return s.parcels.FindByLegalDescription(ctx, sig.legal, sig.county, s.cfg.CandidateLimit)
		})
	}
	return g.Wait()
}

// areaFallback searches by acreage when no other strategy nominated anything.
// Without a county every registered county is searched with a smaller limit.
func (s *MatchService) areaFallback(ctx context.Context, sig signals, noms *nominations) error {
	counties := []string{sig.county}
	limit := s.cfg.CandidateLimit
	strategy := "AREA_FALLBACK"
	if sig.county == "" {
		counties = counties[:0]
		for _, f := range s.validator.Registry().Counties() {
			counties = append(counties, f.County)
		}
		limit = 3
		strategy = "AREA_MULTI_COUNTY"
	}
	for _, c := range counties {
		actx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
		recs, err := s.parcels.FindByArea(actx, c, sig.acreage, areaTolerance, limit)
		cancel()
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("area strategy: %w", err)
		}
		noms.add(strategy, recs)
	}
	return nil
}

// score evaluates rec on every signal. ok is false when no signal fired.
func (s *MatchService) score(rec domain.ParcelRecord, sig signals, via string) (domain.CandidateParcel, bool) {
	var (
		total float64
		rc    []domain.ReasonCode
	)
	add := func(code domain.ReasonCode, pts float64) {
		total += pts
		rc = append(rc, code)
	}

	if sig.apn != "" && apnformat.Normalize(rec.SourceParcelID) == sig.apn {
		add(domain.ReasonAPN, WeightAPN)
	}
	if sig.address != "" {
		spatial := 0.0
		if sig.addrPoint != nil {
			spatial = s.spatial(rec, *sig.addrPoint)
		}
		text := similarity.Address(sig.address, rec.SitusAddress) * sig.quality
		if pts := WeightAddress * (0.6*spatial + 0.4*text); pts >= minSpatialPoints {
			add(domain.ReasonAddress, pts)
		}
	}
	if sig.point != nil {
		if pts := WeightLocation * s.spatial(rec, *sig.point); pts >= minSpatialPoints {
			add(domain.ReasonLocation, pts)
		}
	}
	if sig.owner != "" && rec.OwnerName != "" {
		if sim := similarity.Owner(sig.owner, rec.OwnerName); sim >= similarity.OwnerThreshold {
			add(domain.ReasonOwner, WeightOwner*sim*sig.quality)
		}
	}
	if pts, ok := legalPoints(sig.legal, rec.Legal); ok {
		add(domain.ReasonLegal, pts*sig.quality)
	}
	if sig.acreage > 0 && rec.Acreage > 0 {
		if diff := math.Abs(rec.Acreage-sig.acreage) / sig.acreage; diff <= areaTolerance {
			add(domain.ReasonArea, WeightArea*(1-diff/(2*areaTolerance)))
		}
	}
	if len(rc) == 0 {
		return domain.CandidateParcel{}, false
	}
	if sig.county != "" && apnformat.CanonicalCounty(rec.County) == sig.county {
		add(domain.ReasonCounty, WeightCounty)
	}

	conf := math.Round(math.Min(total, 100)*100) / 100
	c := domain.CandidateParcel{
		ParcelID:       rec.ID,
		SourceParcelID: rec.SourceParcelID,
		Confidence:     conf,
		Band:           s.band(conf),
		ReasonCodes:    rc,
		SitusAddress:   rec.SitusAddress,
		OwnerName:      rec.OwnerName,
		Acreage:        rec.Acreage,
		County:         rec.County,
		Geometry:       rec.Geometry,
		UpdatedAt:      rec.UpdatedAt,
		Debug: &domain.MatchDebug{
			MatchType:        via,
			ExtractedAPN:     sig.apn,
			ExtractedAddress: sig.address,
			ExtractedOwner:   sig.owner,
		},
	}
	return c, true
}

// spatial maps distance to a 0-1 score: 1 inside the parcel, falling
// linearly to 0 at the nearby radius.
func (s *MatchService) spatial(rec domain.ParcelRecord, p domain.GeoPoint) float64 {
	var d float64
	switch {
	case !rec.Geometry.IsZero():
		d = geometry.DistanceMeters(rec.Geometry, p)
	case rec.Distance != nil:
		d = *rec.Distance
	default:
		return 0
	}
	return math.Max(0, 1-d/s.cfg.NearbyRadius)
}

func legalPoints(want, have domain.LegalDescription) (float64, bool) {
	if want.IsZero() || have.IsZero() {
		return 0, false
	}
	var pts float64
	subMatch := false
	if want.Subdivision != "" && have.Subdivision != "" {
		if sim := similarity.Score(want.Subdivision, have.Subdivision); sim >= similarity.SubdivisionThreshold {
			pts += 4 * sim
			subMatch = true
		}
	}
	lot := want.Lot != "" && strings.EqualFold(want.Lot, have.Lot)
	block := want.Block != "" && strings.EqualFold(want.Block, have.Block)
	if lot {
		pts += 2
	}
	if block {
		pts += 2
	}
	if !subMatch && !(lot && block) {
		return 0, false
	}
	return math.Min(pts, WeightLegal), true
}

func (s *MatchService) band(conf float64) domain.ConfidenceBand {
	switch {
	case conf >= s.cfg.HighThreshold:
		return domain.BandHigh
	case conf >= s.cfg.MediumThreshold:
		return domain.BandMedium
	default:
		return domain.BandLow
	}
}

func (s *MatchService) classify(res *domain.MatchResult) domain.MatchStatus {
	if len(res.Candidates) == 0 {
		if res.Signals.Any() || res.Signals.ScannedNoOCR {
			return domain.MatchNeedsReview
		}
		return domain.MatchNoMatch
	}
	top := res.Candidates[0]
	deterministic := false
	for _, r := range top.ReasonCodes {
		if r.Deterministic() {
			deterministic = true
			break
		}
	}
	if top.Band != domain.BandHigh || !deterministic {
		return domain.MatchNeedsReview
	}
	if len(res.Candidates) == 1 || top.Confidence-res.Candidates[1].Confidence >= s.cfg.AutoSelectMargin {
		return domain.MatchAutoSelected
	}
	return domain.MatchNeedsReview
}

// RankCandidates orders candidates best first: confidence, then number of
// reason codes, then most recently updated, then parcel id.
func RankCandidates(cs []domain.CandidateParcel) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if len(a.ReasonCodes) != len(b.ReasonCodes) {
			return len(a.ReasonCodes) > len(b.ReasonCodes)
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ParcelID < b.ParcelID
	})
}

// MatchGeometry finds the parcels a projected survey boundary lands on. It
// scores by area overlap and centroid proximity.
func (s *MatchService) MatchGeometry(ctx context.Context, boundary domain.ParcelGeometry, county string) (*domain.MatchResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "match.geometry")
	defer span.End()

	res := &domain.MatchResult{
		Signals:    domain.MatchSignals{HasPoint: true, HasCounty: county != ""},
		Candidates: []domain.CandidateParcel{},
	}
	if boundary.IsZero() {
		res.Status = domain.MatchNoMatch
		return res, nil
	}

	box := geometry.ExpandBounds(geometry.Bounds(boundary), boundarySearchPadding)
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	recs, err := s.parcels.FindByBounds(sctx, box, s.cfg.CandidateLimit*5)
	cancel()
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return s.fail(span, res, err)
	}

	want := apnformat.CanonicalCounty(county)
	for _, rec := range recs {
		if want != "" && apnformat.CanonicalCounty(rec.County) != want {
			continue
		}
		overlap := geometry.OverlapPercent(boundary, rec.Geometry)
		dist := geometry.CentroidDistance(boundary, rec.Geometry)
		var rc []domain.ReasonCode
		if overlap >= minOverlapPercent {
			rc = append(rc, domain.ReasonOverlap)
		}
		if dist <= maxCentroidMeters {
			rc = append(rc, domain.ReasonCentroid)
		}
		if len(rc) == 0 {
			continue
		}
		proximity := math.Max(0, 100*(1-dist/proximityFalloff))
		conf := math.Round((overlapWeight*overlap+proximityWeight*proximity)*100) / 100
		band := domain.BandLow
		switch {
		case conf >= geometryHighBand:
			band = domain.BandHigh
		case conf >= geometryMediumBand:
			band = domain.BandMedium
		}
		o, d := math.Round(overlap*10)/10, math.Round(dist*10)/10
		res.Candidates = append(res.Candidates, domain.CandidateParcel{
			ParcelID:       rec.ID,
			SourceParcelID: rec.SourceParcelID,
			Confidence:     conf,
			Band:           band,
			ReasonCodes:    rc,
			SitusAddress:   rec.SitusAddress,
			OwnerName:      rec.OwnerName,
			Acreage:        rec.Acreage,
			County:         rec.County,
			Geometry:       rec.Geometry,
			UpdatedAt:      rec.UpdatedAt,
			Debug:          &domain.MatchDebug{MatchType: "GEOMETRY_OVERLAP", OverlapPercent: &o, CentroidDistance: &d},
		})
	}
	RankCandidates(res.Candidates)
	if len(res.Candidates) > s.cfg.CandidateLimit {
		res.Candidates = res.Candidates[:s.cfg.CandidateLimit]
	}

	switch {
	case len(res.Candidates) == 0:
		res.Status = domain.MatchNeedsReview
	case res.Candidates[0].Band == domain.BandHigh &&
		(len(res.Candidates) == 1 || res.Candidates[0].Confidence-res.Candidates[1].Confidence >= s.cfg.AutoSelectMargin):
		res.Status = domain.MatchAutoSelected
	default:
		res.Status = domain.MatchNeedsReview
	}
	metrics.MatchOutcomes.WithLabelValues(string(res.Status)).Inc()
	return res, nil
}
