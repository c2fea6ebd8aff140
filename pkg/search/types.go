package search

import "time"

type Config struct {
	// IndexPath of the on-disk index; empty keeps the index in memory.
	IndexPath    string
	QueryTimeout time.Duration
	BatchSize    int
}

// AlertDoc is the indexed projection of an alert.
type AlertDoc struct {
	ID        string
	Message   string
	Status    string
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
}

type GeoPoint struct {
	Lat float64
	Lon float64
}

// Query combines full text, status and a geo radius filter.
type Query struct {
	Text     string
	Status   string
	Near     *GeoPoint
	RadiusKm float64
	From     int
	Size     int
}

type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type Result struct {
	Total uint64        `json:"total"`
	Took  time.Duration `json:"took"`
	Hits  []Hit         `json:"hits"`
}
