package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/Mortvola/tracker/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	extentsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Extents",
		Fields: graphql.Fields{
			"north": &graphql.Field{Type: graphql.Float},
			"south": &graphql.Field{Type: graphql.Float},
			"east":  &graphql.Field{Type: graphql.Float},
			"west":  &graphql.Field{Type: graphql.Float},
		},
	})

	segmentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TrailSegment",
		Fields: graphql.Fields{
			"points":   &graphql.Field{Type: graphql.Int},
			"extents":  &graphql.Field{Type: extentsType},
			"polyline": &graphql.Field{Type: graphql.String},
		},
	})

	trailType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Trail",
		Fields: graphql.Fields{
			"name":     &graphql.Field{Type: graphql.String},
			"extents":  &graphql.Field{Type: extentsType},
			"segments": &graphql.Field{Type: graphql.NewList(segmentType)},
		},
	})

	propertiesType := graphql.NewObject(graphql.ObjectConfig{
		Name: "IncidentProperties",
		Fields: graphql.Fields{
			"name":                  &graphql.Field{Type: graphql.String},
			"discovered_at":         &graphql.Field{Type: graphql.DateTime},
			"modified_at":           &graphql.Field{Type: graphql.DateTime},
			"category":              &graphql.Field{Type: graphql.String},
			"size":                  &graphql.Field{Type: graphql.Float, Description: "Acres"},
			"percent_contained":     &graphql.Field{Type: graphql.Float},
			"containment_date_time": &graphql.Field{Type: graphql.DateTime},
			"lat":                   &graphql.Field{Type: graphql.Float},
			"lng":                   &graphql.Field{Type: graphql.Float},
			"distance":              &graphql.Field{Type: graphql.Float, Description: "Meters to the trail"},
		},
	})

	versionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "IncidentVersion",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.Int},
			"global_id":       &graphql.Field{Type: graphql.String},
			"irwin_id":        &graphql.Field{Type: graphql.String},
			"perimeter_id":    &graphql.Field{Type: graphql.Int},
			"properties":      &graphql.Field{Type: propertiesType},
			"start_timestamp": &graphql.Field{Type: graphql.DateTime},
			"end_timestamp":   &graphql.Field{Type: graphql.DateTime},
		},
	})

	perimeterType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Perimeter",
		Fields: graphql.Fields{
			"id": &graphql.Field{Type: graphql.Int},
			"rings": &graphql.Field{
				Type:        graphql.NewList(graphql.NewList(graphql.NewList(graphql.Float))),
				Description: "Rings of [lng, lat] pairs",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					per := p.Source.(*domain.Perimeter)
					rings := make([][][]float64, len(per.Geometry.Rings))
					for i, r := range per.Geometry.Rings {
						rings[i] = make([][]float64, len(r))
						for j, pt := range r {
							rings[i][j] = []float64{pt.Lon(), pt.Lat()}
						}
					}
					return rings, nil
				},
			},
			"created_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"incidents": &graphql.Field{
				Type:        graphql.NewList(versionType),
				Description: "Open version of every tracked incident",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.History.ListOpen(p.Context)
				},
			},
			"incident": &graphql.Field{
				Type:        versionType,
				Description: "Open or most recent version of an incident",
				Args: graphql.FieldConfigArgument{
					"global_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.History.Current(p.Context, p.Args["global_id"].(string))
				},
			},
			"history": &graphql.Field{
				Type:        graphql.NewList(versionType),
				Description: "Every version of an incident, oldest first",
				Args: graphql.FieldConfigArgument{
					"global_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.History.History(p.Context, p.Args["global_id"].(string))
				},
			},
			"activeOn": &graphql.Field{
				Type:        graphql.NewList(versionType),
				Description: "Versions active at the end of a day (YYYY-MM-DD)",
				Args: graphql.FieldConfigArgument{
					"date": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.History.ActiveOn(p.Context, p.Args["date"].(string))
				},
			},
			"perimeter": &graphql.Field{
				Type: perimeterType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.History.Perimeter(p.Context, int64(p.Args["id"].(int)))
				},
			},
			"trail": &graphql.Field{
				Type:        trailType,
				Description: "Trail extents and encoded segments; defaults to the tracked trail",
				Args: graphql.FieldConfigArgument{
					"name": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					name, _ := p.Args["name"].(string)
					if name == "" {
						name = deps.TrailName
					}
					t, err := deps.Trails.GetByName(p.Context, name)
					if err != nil {
						return nil, err
					}
					return newTrailResponse(t)
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
		// This would be a programming error in the schema definition
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
		if req.Query == "" {
			return errBadRequest(c, "query is required")
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
