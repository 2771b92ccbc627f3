package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/ports"
	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
	"github.com/samirrijal/siteintel/internal/pkg/geospatial"
	"github.com/samirrijal/siteintel/internal/pkg/metrics"
)

// Resolver defaults.
const (
	MinQueryLength         = 3
	DefaultProviderTimeout = 15 * time.Second
	DefaultGeocodeCacheTTL = 30 * 24 * time.Hour

	// Two top candidates closer than this in confidence but farther apart
	// than ambiguousDistance make a query ambiguous.
	ambiguousConfidenceGap = 0.05
	ambiguousDistance      = 50.0
)

// Coverage is the supported service area (Texas).
var Coverage = domain.Bounds{MinLat: 25.5, MinLon: -107, MaxLat: 37, MaxLon: -93}

var (
	coordinatesPattern  = regexp.MustCompile(`^(-?\d{1,3}(?:\.\d+)?)\s*[,\s]\s*(-?\d{1,3}(?:\.\d+)?)$`)
	intersectionPattern = regexp.MustCompile(`(?i)^.+\s+(&|and)\s+.+$`)
	dashedIDPattern     = regexp.MustCompile(`^[A-Za-z0-9]+(-[A-Za-z0-9]+)+$`)
	addressPattern      = regexp.MustCompile(`^\d+\s+\S+`)
)

// ClassifyInput labels free text. The first matching rule wins: coordinates,
// intersection, parcel identifier, street address.
func ClassifyInput(text string, v *apnformat.Validator) domain.InputType {
	s := strings.TrimSpace(text)
	if coordinatesPattern.MatchString(s) && strings.Contains(s, ".") {
		return domain.InputCoordinates
	}
	if intersectionPattern.MatchString(s) {
		return domain.InputIntersection
	}
	if dashedIDPattern.MatchString(s) && strings.ContainsAny(s, "0123456789") {
		return domain.InputAPN
	}
	if v != nil && !strings.Contains(s, " ") {
		if _, ok := v.DetectCounty(s); ok {
			return domain.InputAPN
		}
	}
	if addressPattern.MatchString(s) {
		return domain.InputAddress
	}
	return domain.InputUnknown
}

// NormalizeQuery lowercases and collapses whitespace. It is the cache key
// basis, so equivalent spellings share an entry.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// GeocodeCacheKey builds the versioned cache key of a normalized query.
func GeocodeCacheKey(t domain.InputType, normalized string) string {
	sum := sha256.Sum256([]byte(string(t) + ":" + normalized))
	return "geocode:v1:" + hex.EncodeToString(sum[:])
}

// GeocodeConfig tunes the resolver.
type GeocodeConfig struct {
	ProviderTimeout time.Duration
	CacheTTL        time.Duration
	SessionTTL      time.Duration
	// PaidRate limits calls to providers that bill per request. Zero
	// disables the limiter.
	PaidRate  float64
	PaidBurst int
}

// ResolveOptions adjusts a single Resolve call.
type ResolveOptions struct {
	SkipCache bool
}

// GeocodeService resolves text to candidate locations through an ordered
// provider chain, with caching and request coalescing.
type GeocodeService struct {
	providers    []ports.GeocodingProvider
	autocomplete ports.AutocompleteProvider
	cache        ports.CacheService
	validator    *apnformat.Validator
	limiter      *rate.Limiter
	sessions     *SessionTokens
	seq          *Sequencer
	lookups      singleflight.Group
	suggestions  singleflight.Group
	timeout      time.Duration
	cacheTTL     time.Duration
}

// NewGeocodeService creates a GeocodeService. Providers are tried in order.
func NewGeocodeService(
	providers []ports.GeocodingProvider,
	autocomplete ports.AutocompleteProvider,
	cache ports.CacheService,
	validator *apnformat.Validator,
	cfg GeocodeConfig,
) *GeocodeService {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultGeocodeCacheTTL
	}
	if validator == nil {
		validator = apnformat.NewValidator(nil)
	}
	s := &GeocodeService{
		providers:    providers,
		autocomplete: autocomplete,
		cache:        cache,
		validator:    validator,
		sessions:     NewSessionTokens(cfg.SessionTTL),
		seq:          NewSequencer(cfg.SessionTTL),
		timeout:      cfg.ProviderTimeout,
		cacheTTL:     cfg.CacheTTL,
	}
	if cfg.PaidRate > 0 {
		burst := cfg.PaidBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.PaidRate), burst)
	}
	return s
}

// Sessions exposes the autocomplete session registry.
func (s *GeocodeService) Sessions() *SessionTokens { return s.sessions }

type cachedLookup struct {
	Candidates []domain.GeocodeCandidate `json:"candidates"`
	Provider   string                    `json:"provider"`
}

type lookupResult struct {
	cachedLookup
	cost float64
}

// Resolve classifies and geocodes query. Coordinates are parsed locally and
// parcel identifiers are returned unresolved for the matcher.
func (s *GeocodeService) Resolve(ctx context.Context, query string, opts ResolveOptions) (*domain.GeocodeResult, error) {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < MinQueryLength {
		metrics.GeocodeRequests.WithLabelValues("input", "invalid").Inc()
		return nil, domain.NewGeocodeError(domain.GeocodeInvalidInput,
			fmt.Sprintf("query must be at least %d characters", MinQueryLength), nil)
	}

	res := &domain.GeocodeResult{
		Query:           q,
		NormalizedQuery: NormalizeQuery(q),
		InputType:       ClassifyInput(q, s.validator),
		TraceID:         uuid.NewString(),
		Candidates:      []domain.GeocodeCandidate{},
	}
	log := slog.With("trace_id", res.TraceID, "input_type", res.InputType)

	switch res.InputType {
	case domain.InputAPN:
		return res, nil
	case domain.InputCoordinates:
		return s.resolveCoordinates(res)
	}

	key := GeocodeCacheKey(res.InputType, res.NormalizedQuery)
	if !opts.SkipCache {
		if hit, ok := s.cached(ctx, key); ok {
			metrics.CacheHits.WithLabelValues("geocode").Inc()
			metrics.GeocodeRequests.WithLabelValues(hit.Provider, "cache_hit").Inc()
			res.CacheHit = true
			res.Provider = hit.Provider
			res.Candidates = hit.Candidates
			return s.finish(res)
		}
		metrics.CacheMisses.WithLabelValues("geocode").Inc()
	}

	// The shared lookup outlives any single caller; each caller stops
	// waiting on its own context.
	ch := s.lookups.DoChan(key, func() (any, error) {
		return s.lookup(context.WithoutCancel(ctx), q, log)
	})
	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return nil, domain.NewGeocodeError(domain.GeocodeServiceFailure, "request cancelled", ctx.Err())
	}
	if r.Err != nil {
		return nil, r.Err
	}
	lr := r.Val.(*lookupResult)
	res.Provider = lr.Provider
	res.Candidates = append([]domain.GeocodeCandidate(nil), lr.Candidates...)
	if !r.Shared {
		res.CostUSD = lr.cost
	}

	if s.cache != nil {
		if data, err := json.Marshal(lr.cachedLookup); err == nil {
			_ = s.cache.Set(ctx, key, data, int(s.cacheTTL.Seconds()))
		}
	}
	return s.finish(res)
}

func (s *GeocodeService) cached(ctx context.Context, key string) (*cachedLookup, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil || data == nil {
		return nil, false
	}
	var c cachedLookup
	if err := json.Unmarshal(data, &c); err != nil || len(c.Candidates) == 0 {
		return nil, false
	}
	return &c, true
}

// lookup walks the provider chain, falling through on error or empty result.
func (s *GeocodeService) lookup(ctx context.Context, q string, log *slog.Logger) (*lookupResult, error) {
	var (
		cost                         float64
		sawEmpty, sawLimit, sawError bool
		lastErr                      error
	)
	for _, p := range s.providers {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewGeocodeError(domain.GeocodeServiceFailure, "request cancelled", err)
		}
		if p.CostPerRequest() > 0 && s.limiter != nil && !s.limiter.Allow() {
			log.Warn("paid geocoder rate limited locally", "provider", p.Name())
			sawLimit = true
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		start := time.Now()
		cands, err := p.Geocode(pctx, q)
		cancel()
		metrics.GeocodeDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

		cost += p.CostPerRequest()
		metrics.GeocodeCostUSD.WithLabelValues(p.Name()).Add(p.CostPerRequest())

		switch {
		case errors.Is(err, domain.ErrRateLimited):
			log.Warn("geocoder rate limited", "provider", p.Name())
			metrics.GeocodeRequests.WithLabelValues(p.Name(), "rate_limited").Inc()
			sawLimit = true
			continue
		case err != nil:
			log.Warn("geocoder failed", "provider", p.Name(), "error", err)
			metrics.GeocodeRequests.WithLabelValues(p.Name(), "error").Inc()
			sawError, lastErr = true, err
			continue
		case len(cands) == 0:
			metrics.GeocodeRequests.WithLabelValues(p.Name(), "empty").Inc()
			sawEmpty = true
			continue
		}

		metrics.GeocodeRequests.WithLabelValues(p.Name(), "ok").Inc()
		for i := range cands {
			if cands[i].Provider == "" {
				cands[i].Provider = p.Name()
			}
		}
		return &lookupResult{cachedLookup: cachedLookup{Candidates: cands, Provider: p.Name()}, cost: cost}, nil
	}

	switch {
	case sawEmpty:
		return nil, domain.NewGeocodeError(domain.GeocodeNotFound, "no location matched the query", nil)
	case sawLimit && !sawError:
		return nil, domain.NewGeocodeError(domain.GeocodeRateLimited, "geocoding quota exhausted", domain.ErrRateLimited)
	case len(s.providers) == 0:
		return nil, domain.NewGeocodeError(domain.GeocodeServiceFailure, "no geocoding provider configured", nil)
	default:
		return nil, domain.NewGeocodeError(domain.GeocodeServiceFailure, "all geocoding providers failed", lastErr)
	}
}

func (s *GeocodeService) resolveCoordinates(res *domain.GeocodeResult) (*domain.GeocodeResult, error) {
	m := coordinatesPattern.FindStringSubmatch(res.Query)
	lat, _ := strconv.ParseFloat(m[1], 64)
	lon, _ := strconv.ParseFloat(m[2], 64)
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, domain.NewGeocodeError(domain.GeocodeInvalidInput, "coordinates out of range", nil)
	}
	res.Provider = "input"
	res.Candidates = []domain.GeocodeCandidate{{
		FormattedAddress: fmt.Sprintf("%.6f, %.6f", lat, lon),
		Point:            domain.GeoPoint{Lat: lat, Lon: lon},
		Confidence:       1,
		Provider:         "input",
	}}
	metrics.GeocodeRequests.WithLabelValues("input", "ok").Inc()
	return s.finish(res)
}

// finish drops out-of-coverage candidates, ranks the rest and flags
// ambiguity.
func (s *GeocodeService) finish(res *domain.GeocodeResult) (*domain.GeocodeResult, error) {
	in := res.Candidates[:0:0]
	for _, c := range res.Candidates {
		if Coverage.Contains(c.Point) {
			in = append(in, c)
		}
	}
	if len(in) == 0 {
		return nil, domain.NewGeocodeError(domain.GeocodeOutsideCoverage,
			"location is outside the supported service area", nil)
	}
	sort.SliceStable(in, func(i, j int) bool { return in[i].Confidence > in[j].Confidence })
	res.Candidates = in

	if len(in) > 1 {
		a, b := in[0], in[1]
		d := geospatial.Haversine(a.Point.Lat, a.Point.Lon, b.Point.Lat, b.Point.Lon)
		if a.Confidence-b.Confidence < ambiguousConfidenceGap && d > ambiguousDistance {
			res.Issue = domain.NewGeocodeError(domain.GeocodeAmbiguous,
				fmt.Sprintf("%d locations match the query equally well", len(in)), nil)
		}
	}
	return res, nil
}

// Locate resolves an address to its best point. It backs the matcher's
// address strategy.
func (s *GeocodeService) Locate(ctx context.Context, address string) (*domain.GeoPoint, error) {
	res, err := s.Resolve(ctx, address, ResolveOptions{})
	if err != nil {
		return nil, err
	}
	if len(res.Candidates) == 0 {
		return nil, domain.ErrNotFound
	}
	p := res.Candidates[0].Point
	return &p, nil
}

// Autocomplete returns predictions for a partially typed address. Requests
// from the same client share a billing session token, identical concurrent
// requests share one provider call, and a response overtaken by a newer
// request from the client returns ErrStaleResponse.
func (s *GeocodeService) Autocomplete(ctx context.Context, client, input string) (*domain.AutocompleteResult, error) {
	seq := s.seq.Next(client)

	in := strings.TrimSpace(input)
	if utf8.RuneCountInString(in) < MinQueryLength {
		return nil, domain.NewGeocodeError(domain.GeocodeInvalidInput,
			fmt.Sprintf("type at least %d characters", MinQueryLength), nil)
	}
	if s.autocomplete == nil {
		return nil, domain.NewGeocodeError(domain.GeocodeServiceFailure, "autocomplete is not configured", nil)
	}

	token, fresh := s.sessions.Token(client)
	if fresh {
		metrics.AutocompleteSessions.Inc()
	}

	key := token + "\x00" + NormalizeQuery(in)
	ch := s.suggestions.DoChan(key, func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.autocomplete.Autocomplete(pctx, in, token)
	})
	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return nil, domain.NewGeocodeError(domain.GeocodeServiceFailure, "request cancelled", ctx.Err())
	}
	v, err := r.Val, r.Err

	if !s.seq.IsLatest(client, seq) {
		return nil, domain.ErrStaleResponse
	}
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			return nil, domain.NewGeocodeError(domain.GeocodeRateLimited, "autocomplete quota exhausted", err)
		}
		return nil, domain.NewGeocodeError(domain.GeocodeServiceFailure, "autocomplete provider failed", err)
	}

	suggestions, _ := v.([]domain.PlaceSuggestion)
	if suggestions == nil {
		suggestions = []domain.PlaceSuggestion{}
	}
	return &domain.AutocompleteResult{
		Input:        in,
		SessionToken: token,
		Sequence:     seq,
		Suggestions:  suggestions,
		Provider:     s.autocomplete.Name(),
	}, nil
}

// EndSession closes the client's autocomplete billing session, typically
// after a suggestion was picked.
func (s *GeocodeService) EndSession(client string) {
	s.sessions.Reset(client)
	s.seq.Forget(client)
}
