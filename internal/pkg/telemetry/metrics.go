package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Resolution quality
	MetricGeocodeCacheHitRatio = "geocode.cache_hit_ratio"
	MetricAutoSelectRate       = "match.auto_select_rate"
	MetricCalibrationRMS       = "calibration.rms_error_meters"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Business
	MetricParcelsLocked = "business.parcels_locked"
	MetricGeocodeSpend  = "business.geocode_spend_usd"
)

// Span attribute keys.
const (
	AttrCounty      = "siteintel.county"
	AttrMatchStatus = "siteintel.match.status"
	AttrCandidates  = "siteintel.match.candidates"
	AttrSource      = "siteintel.extract.source"
	AttrMIME        = "siteintel.extract.mime"
)
