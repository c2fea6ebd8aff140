package search

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	q "github.com/blevesearch/bleve/v2/search/query"
)

const defaultRadiusKm = 5

func buildQuery(req Query) q.Query {
	var must []q.Query

	if text := strings.TrimSpace(req.Text); text != "" {
		mq := bleve.NewMatchQuery(text)
		mq.SetField("message")
		must = append(must, mq)
	}

	if status := strings.TrimSpace(req.Status); status != "" {
		tq := bleve.NewTermQuery(status)
		tq.SetField("status")
		must = append(must, tq)
	}

	if req.Near != nil {
		radius := req.RadiusKm
		if radius <= 0 {
			radius = defaultRadiusKm
		}
		gq := bleve.NewGeoDistanceQuery(req.Near.Lon, req.Near.Lat, fmt.Sprintf("%gkm", radius))
		gq.SetField("location")
		must = append(must, gq)
	}

	if len(must) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(must...)
}

func docFields(d AlertDoc) map[string]any {
	return map[string]any{
		"type":      docType,
		"message":   d.Message,
		"status":    d.Status,
		"location":  map[string]any{"lat": d.Latitude, "lon": d.Longitude},
		"createdAt": d.CreatedAt.UTC(),
	}
}
