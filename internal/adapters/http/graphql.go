package http

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/usecases"
)

// geometryJSON exposes a parcel boundary as a GeoJSON string.
var geometryJSON = &graphql.Field{
	Type: graphql.String,
	Resolve: func(p graphql.ResolveParams) (interface{}, error) {
		rec, ok := p.Source.(*domain.ParcelRecord)
		if !ok {
			return nil, nil
		}
		data, err := json.Marshal(rec.Geometry)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	},
}

// buildSchema creates the read-only GraphQL schema.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	countyFormatType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CountyFormat",
		Fields: graphql.Fields{
			"county":  &graphql.Field{Type: graphql.String},
			"name":    &graphql.Field{Type: graphql.String},
			"pattern": &graphql.Field{Type: graphql.String},
			"hint":    &graphql.Field{Type: graphql.String},
			"example": &graphql.Field{Type: graphql.String},
		},
	})

	validationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "FormatValidation",
		Fields: graphql.Fields{
			"valid":   &graphql.Field{Type: graphql.Boolean},
			"error":   &graphql.Field{Type: graphql.String},
			"hint":    &graphql.Field{Type: graphql.String},
			"example": &graphql.Field{Type: graphql.String},
		},
	})

	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	parcelType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Parcel",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"source_parcel_id": &graphql.Field{Type: graphql.String},
			"county":           &graphql.Field{Type: graphql.String},
			"situs_address":    &graphql.Field{Type: graphql.String},
			"owner_name":       &graphql.Field{Type: graphql.String},
			"acreage":          &graphql.Field{Type: graphql.Float},
			"centroid":         &graphql.Field{Type: geoPointType},
			"geometry":         geometryJSON,
		},
	})

	sessionStateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SelectionState",
		Fields: graphql.Fields{
			"state":              &graphql.Field{Type: graphql.String},
			"selected_parcel_id": &graphql.Field{Type: graphql.String},
			"band":               &graphql.Field{Type: graphql.String},
			"post_confirmation":  &graphql.Field{Type: graphql.Boolean},
		},
	})

	warningType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SelectionWarning",
		Fields: graphql.Fields{
			"code":         &graphql.Field{Type: graphql.String},
			"message":      &graphql.Field{Type: graphql.String},
			"acknowledged": &graphql.Field{Type: graphql.Boolean},
		},
	})

	candidateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Candidate",
		Fields: graphql.Fields{
			"parcel_id":        &graphql.Field{Type: graphql.String},
			"source_parcel_id": &graphql.Field{Type: graphql.String},
			"confidence":       &graphql.Field{Type: graphql.Float},
			"band":             &graphql.Field{Type: graphql.String},
			"reason_codes":     &graphql.Field{Type: graphql.NewList(graphql.String)},
			"county":           &graphql.Field{Type: graphql.String},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"session_id":   &graphql.Field{Type: graphql.String},
			"state":        &graphql.Field{Type: sessionStateType},
			"candidates":   &graphql.Field{Type: graphql.NewList(candidateType)},
			"warnings":     &graphql.Field{Type: graphql.NewList(warningType)},
			"input_method": &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"countyFormats": &graphql.Field{
				Type:        graphql.NewList(countyFormatType),
				Description: "Supported county parcel identifier formats",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Validator.Registry().Counties(), nil
				},
			},
			"validateParcelId": &graphql.Field{
				Type:        validationType,
				Description: "Check a parcel identifier against a county format",
				Args: graphql.FieldConfigArgument{
					"parcel_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"county":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Validator.Validate(p.Args["parcel_id"].(string), p.Args["county"].(string)), nil
				},
			},
			"classifyInput": &graphql.Field{
				Type:        graphql.String,
				Description: "Classify free-text location input",
				Args: graphql.FieldConfigArgument{
					"text": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(usecases.ClassifyInput(p.Args["text"].(string), deps.Validator)), nil
				},
			},
			"parcel": &graphql.Field{
				Type:        parcelType,
				Description: "Get a parcel by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Parcels.GetByID(p.Context, p.Args["id"].(string))
				},
			},
			"session": &graphql.Field{
				Type:        sessionType,
				Description: "Current state of a selection session",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sess, err := deps.Selection.Get(p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return sess.Snapshot(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})
		return c.JSON(result)
	}
}
