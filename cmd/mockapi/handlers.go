package main

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shtetl-dev/shtetl-browse/pkg/common"
	"github.com/shtetl-dev/shtetl-browse/pkg/geo"
	"github.com/shtetl-dev/shtetl-browse/pkg/query"
	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mockapi_requests_total",
	Help: "The total number of listing requests served, by domain",
}, []string{"domain"})

// listingQuery is the wire query decoded with gorilla/schema, mirroring the
// parameters the browse query builder emits. The shape parameter exists for
// exercising the client's tolerant envelope decoding.
type listingQuery struct {
	Query     string   `schema:"q"`
	Category  string   `schema:"category"`
	Agency    string   `schema:"agency"`
	PriceMin  int      `schema:"priceMin"`
	PriceMax  int      `schema:"priceMax"`
	RatingMin float64  `schema:"ratingMin"`
	RadiusM   float64  `schema:"radius_m"`
	Lat       *float64 `schema:"lat"`
	Lng       *float64 `schema:"lng"`
	OpenNow   bool     `schema:"openNow"`
	NearMe    bool     `schema:"nearMe"`
	Hours     string   `schema:"hours"`
	Sort      string   `schema:"sort"`
	Page      int      `schema:"page"`
	Offset    int      `schema:"offset"`
	Limit     int      `schema:"limit,default:20"`
	Shape     string   `schema:"shape"`
}

var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
}

func (q *listingQuery) sanitize() {
	q.Limit = clamp(q.Limit, 1, 100)
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type mockAPI struct {
	data []record
}

func (m *mockAPI) handleDomain(domain types.Domain) http.HandlerFunc {
	return common.JsonHandler(func(w http.ResponseWriter, r *http.Request, enc *json.Encoder) error {
		requestsTotal.WithLabelValues(string(domain)).Inc()

		lq := &listingQuery{}
		if err := decodeQuery(r.URL.Query(), lq); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return enc.Encode(map[string]any{"success": false, "error": err.Error()})
		}
		lq.sanitize()

		matched := m.filter(domain, lq)
		if lq.Sort == query.SortDistanceAsc && lq.Lat != nil && lq.Lng != nil {
			geo.SortByDistance(matched, geo.Point{Lat: *lq.Lat, Lng: *lq.Lng})
		}

		total := len(matched)
		offset := lq.Offset
		if lq.Page > 0 {
			offset = (lq.Page - 1) * lq.Limit
		}
		page := slicePage(matched, offset, lq.Limit)

		switch lq.Shape {
		case "bare":
			return enc.Encode(page)
		case "legacy":
			return enc.Encode(map[string]any{"success": true, "restaurants": page})
		default:
			return enc.Encode(map[string]any{
				"success": true,
				"data": map[string]any{
					"listings": page,
					"total":    total,
					"hasNext":  offset+len(page) < total,
				},
			})
		}
	})
}

func decodeQuery(values url.Values, lq *listingQuery) error {
	return decoder.Decode(lq, values)
}

func (m *mockAPI) filter(domain types.Domain, lq *listingQuery) []types.Listing {
	out := make([]types.Listing, 0, len(m.data))
	for i := range m.data {
		rec := &m.data[i]
		if rec.Domain != domain {
			continue
		}
		if !matchesText(&rec.Listing, lq.Query) {
			continue
		}
		if lq.Category != "" && rec.Category != lq.Category {
			continue
		}
		if lq.Agency != "" && rec.Agency != lq.Agency {
			continue
		}
		if lq.PriceMin > 0 && rec.PriceLevel < lq.PriceMin {
			continue
		}
		if lq.PriceMax > 0 && rec.PriceLevel > lq.PriceMax {
			continue
		}
		if lq.RatingMin > 0 && rec.Rating < lq.RatingMin {
			continue
		}
		if lq.OpenNow && !rec.OpenNow {
			continue
		}
		if lq.Hours != "" && !matchesHours(rec, lq.Hours) {
			continue
		}
		if lq.RadiusM > 0 && lq.Lat != nil && lq.Lng != nil {
			if !rec.HasCoordinates() {
				continue
			}
			miles := geo.Distance(*lq.Lat, *lq.Lng, *rec.Latitude, *rec.Longitude)
			if miles*query.MetersPerMile > lq.RadiusM {
				continue
			}
		}
		out = append(out, rec.Listing)
	}
	return out
}

func matchesHours(rec *record, bucket string) bool {
	if bucket == "openNow" {
		return rec.OpenNow
	}
	return slices.Contains(rec.Buckets, bucket)
}

func slicePage(listings []types.Listing, offset, limit int) []types.Listing {
	if offset >= len(listings) {
		return []types.Listing{}
	}
	end := offset + limit
	if end > len(listings) {
		end = len(listings)
	}
	return listings[offset:end]
}
