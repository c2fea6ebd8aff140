package search

import (
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

const docType = "alert"

// BuildIndexMapping maps alerts: analysed message, keyword status,
// geopoint location and a sortable creation time.
func BuildIndexMapping() *mapping.IndexMappingImpl {
	idx := mapping.NewIndexMapping()
	idx.DefaultAnalyzer = standard.Name
	idx.TypeField = "type"

	// text
	text := mapping.NewTextFieldMapping()
	text.Store = false
	text.Index = true
	text.Analyzer = standard.Name
	text.IncludeTermVectors = true

	// keywords
	kw := mapping.NewTextFieldMapping()
	kw.Store = true
	kw.Index = true
	kw.Analyzer = keyword.Name

	geo := mapping.NewGeoPointFieldMapping()
	geo.Index = true

	dt := mapping.NewDateTimeFieldMapping()
	dt.Store = true
	dt.Index = true

	alert := mapping.NewDocumentMapping()
	alert.Dynamic = false
	alert.AddFieldMappingsAt("message", text)
	alert.AddFieldMappingsAt("status", kw)
	alert.AddFieldMappingsAt("location", geo)
	alert.AddFieldMappingsAt("createdAt", dt)
	idx.AddDocumentMapping(docType, alert)

	def := mapping.NewDocumentMapping()
	def.Dynamic = false
	idx.DefaultMapping = def
	return idx
}
