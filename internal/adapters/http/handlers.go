package http

import (
	"errors"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/usecases"
	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
	"github.com/samirrijal/siteintel/internal/pkg/geometry"
)

// MaxUploadBytes caps survey uploads.
const MaxUploadBytes = 25 << 20

// CountiesHandler lists the supported county identifier formats.
func CountiesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reg := deps.Validator.Registry()
		counties := reg.Counties()
		page, pg := paginate(c, counties, 50)
		c.Set("X-Registry-Version", reg.Version())
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

type parcelIDRequest struct {
	ParcelID string `json:"parcel_id"`
	County   string `json:"county"`
}

// ValidateParcelIDHandler checks an identifier against a county format.
func ValidateParcelIDHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req parcelIDRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.County == "" {
			return errBadRequest(c, "county is required")
		}
		res := deps.Validator.Validate(req.ParcelID, req.County)
		return c.JSON(fiber.Map{
			"result":     res,
			"normalized": apnformat.Normalize(req.ParcelID),
			"county":     apnformat.CanonicalCounty(req.County),
		})
	}
}

// DetectCountyHandler infers the county from an identifier's shape.
func DetectCountyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req parcelIDRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if strings.TrimSpace(req.ParcelID) == "" {
			return errBadRequest(c, "parcel_id is required")
		}
		return c.JSON(deps.Validator.Identify(req.ParcelID, req.County))
	}
}

// ValidateGeometryHandler checks a GeoJSON Polygon or MultiPolygon.
func ValidateGeometryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var raw geometry.RawGeometry
		if err := c.BodyParser(&raw); err != nil {
			return errBadRequest(c, "invalid GeoJSON body")
		}
		g, err := geometry.Parse(raw)
		if err != nil {
			return c.JSON(geometry.Validate(raw))
		}
		return c.JSON(fiber.Map{
			"valid":    true,
			"acreage":  geometry.Acres(g),
			"centroid": geometry.Centroid(g),
			"hash":     geometry.Hash(g),
		})
	}
}

// GeocodeHandler resolves free text to candidate locations.
func GeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := c.Query("q")
		if q == "" {
			return errBadRequest(c, "q query parameter is required")
		}
		if len(q) > 300 {
			return errBadRequest(c, "query too long (max 300 characters)")
		}
		res, err := deps.Geocoder.Resolve(c.UserContext(), q, usecases.ResolveOptions{SkipCache: c.QueryBool("skip_cache")})
		if err != nil {
			return handleError(c, err, nil)
		}
		c.Set("X-Trace-ID", res.TraceID)
		return c.JSON(res)
	}
}

// clientKey identifies the caller for autocomplete sessions and sequencing.
func clientKey(c *fiber.Ctx) string {
	if id := c.Get("X-Client-ID"); id != "" {
		return id
	}
	return c.IP()
}

// AutocompleteHandler returns address predictions.
func AutocompleteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := deps.Geocoder.Autocomplete(c.UserContext(), clientKey(c), c.Query("input"))
		if err != nil {
			return handleError(c, err, nil)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(res)
	}
}

// EndAutocompleteSessionHandler closes the caller's billing session.
func EndAutocompleteSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deps.Geocoder.EndSession(clientKey(c))
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GetParcelHandler returns one parcel record.
func GetParcelHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := deps.Parcels.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return handleError(c, err, nil)
		}
		return c.JSON(p)
	}
}

type matchRequest struct {
	ParcelID   string                   `json:"parcel_id"`
	County     string                   `json:"county"`
	Address    string                   `json:"address"`
	Owner      string                   `json:"owner"`
	Point      *domain.GeoPoint         `json:"point"`
	Extraction *domain.SurveyExtraction `json:"extraction"`
}

func (r matchRequest) toUsecase() usecases.MatchRequest {
	return usecases.MatchRequest{
		Extraction: r.Extraction,
		Point:      r.Point,
		County:     r.County,
		Identifier: r.ParcelID,
		Address:    r.Address,
		Owner:      r.Owner,
	}
}

func writeMatch(c *fiber.Ctx, res *domain.MatchResult, err error) error {
	if err != nil {
		return handleError(c, err, res)
	}
	return c.JSON(res)
}

// SearchParcelsHandler matches query parameters against the parcel store.
func SearchParcelsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := matchRequest{
			ParcelID: c.Query("parcel_id"),
			County:   c.Query("county"),
			Address:  c.Query("address"),
			Owner:    c.Query("owner"),
		}
		lat, lon := c.QueryFloat("lat", 0), c.QueryFloat("lon", 0)
		if lat != 0 || lon != 0 {
			if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
				return errBadRequest(c, "lat/lon out of range")
			}
			req.Point = &domain.GeoPoint{Lat: lat, Lon: lon}
		}
		res, err := deps.Matcher.Match(c.UserContext(), req.toUsecase())
		return writeMatch(c, res, err)
	}
}

// MatchHandler scores candidates for a JSON match request.
func MatchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req matchRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		res, err := deps.Matcher.Match(c.UserContext(), req.toUsecase())
		return writeMatch(c, res, err)
	}
}

func readDocument(c *fiber.Ctx) (usecases.Document, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return usecases.Document{}, errors.New("multipart field \"file\" is required")
	}
	if fh.Size > MaxUploadBytes {
		return usecases.Document{}, errors.New("upload exceeds 25 MB")
	}
	data, err := readFormFile(fh)
	if err != nil {
		return usecases.Document{}, err
	}
	return usecases.Document{Filename: fh.Filename, Data: data, DeclaredCounty: c.FormValue("county")}, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, MaxUploadBytes))
}

// ExtractSurveyHandler extracts parcel fields from an uploaded document.
func ExtractSurveyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		doc, err := readDocument(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		ext, err := deps.Extractor.Extract(c.UserContext(), doc)
		if err != nil {
			return handleError(c, err, nil)
		}
		return c.JSON(ext)
	}
}

// MatchSurveyHandler extracts and matches an uploaded document in one call.
func MatchSurveyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		doc, err := readDocument(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		res, err := deps.Surveys.ExtractAndMatch(c.UserContext(), doc)
		if err != nil {
			return handleError(c, err, res)
		}
		return c.JSON(res)
	}
}

// UploadSurveyHandler stores a document for asynchronous matching.
func UploadSurveyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		doc, err := readDocument(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		sv, err := deps.Surveys.Upload(c.UserContext(), doc)
		if err != nil {
			return handleError(c, err, nil)
		}
		c.Location("/v1/surveys/" + sv.ID)
		return c.Status(fiber.StatusAccepted).JSON(sv)
	}
}

// GetSurveyHandler returns an uploaded survey and its match once processed.
func GetSurveyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sv, err := deps.Surveys.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return handleError(c, err, nil)
		}
		if sv.Status == domain.SurveyPending {
			c.Set("Cache-Control", "no-store")
		}
		return c.JSON(sv)
	}
}

// CalibrateHandler solves control points and matches the projected boundary.
func CalibrateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req usecases.CalibrateRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		res, err := deps.Calibration.Calibrate(c.UserContext(), req)
		if err != nil {
			return handleError(c, err, res)
		}
		return c.JSON(res)
	}
}
