package query

import (
	"math"
	"net/url"
	"reflect"
	"strconv"

	"github.com/gorilla/schema"

	"github.com/shtetl-dev/shtetl-browse/pkg/filters"
	"github.com/shtetl-dev/shtetl-browse/pkg/geo"
)

const (
	// MetersPerMile converts the user-facing radius to the backend's
	// radius_m parameter.
	MetersPerMile = 1609.34

	SortDistanceAsc  = "distance_asc"
	SortCreatedDesc  = "created_at_desc"
	DefaultPageLimit = 20
)

// Options carry the per-request knobs: pagination, sorting and the device
// location. Exactly one of page or offset goes on the wire, selected by
// UseOffset.
type Options struct {
	UserLocation *geo.Point
	Limit        int
	Page         int
	Offset       int
	UseOffset    bool
	DefaultSort  string
}

// wireFilters mirrors Filters with the backend's parameter names; encoding
// goes through gorilla/schema so the struct tags are the single source of
// naming.
type wireFilters struct {
	Query     string  `schema:"q,omitempty"`
	Category  string  `schema:"category,omitempty"`
	Agency    string  `schema:"agency,omitempty"`
	PriceMin  int     `schema:"priceMin,omitempty"`
	PriceMax  int     `schema:"priceMax,omitempty"`
	RatingMin float64 `schema:"ratingMin,omitempty"`
	OpenNow   bool    `schema:"openNow,omitempty"`
	NearMe    bool    `schema:"nearMe,omitempty"`
	Hours     string  `schema:"hours,omitempty"`
}

var encoder = schema.NewEncoder()

func init() {
	// Floats render in the shortest round-trip form everywhere, so the default
	// %f padding never leaks into the query string.
	encoder.RegisterEncoder(float64(0), func(v reflect.Value) string {
		return formatFloat(v.Float())
	})
}

// Build maps the committed filter state plus pagination onto the wire query.
// Every active filter becomes exactly one parameter; inactive filters are
// never serialized. The output is deterministic: url.Values.Encode sorts
// keys, and float rendering uses the shortest round-trip form, so identical
// input yields a byte-identical query string.
func Build(f filters.Filters, opts Options) (url.Values, error) {
	values := url.Values{}
	wire := wireFilters{
		Query:     f.Query,
		Category:  f.Category,
		Agency:    f.Agency,
		PriceMin:  f.PriceMin,
		PriceMax:  f.PriceMax,
		RatingMin: f.RatingMin,
		OpenNow:   f.OpenNow,
		NearMe:    f.NearMe,
		Hours:     string(f.Hours),
	}
	if err := encoder.Encode(&wire, values); err != nil {
		return nil, err
	}

	if f.DistanceMi > 0 {
		values.Set("radius_m", formatFloat(f.DistanceMi*MetersPerMile))
	}

	if lat, lng, ok := resolveLocation(f, opts.UserLocation); ok {
		values.Set("lat", formatFloat(lat))
		values.Set("lng", formatFloat(lng))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	values.Set("limit", strconv.Itoa(limit))
	if opts.UseOffset {
		values.Set("offset", strconv.Itoa(max(opts.Offset, 0)))
	} else {
		page := opts.Page
		if page <= 0 {
			page = 1
		}
		values.Set("page", strconv.Itoa(page))
	}

	sort := opts.DefaultSort
	if sort == "" {
		sort = SortCreatedDesc
	}
	if opts.UserLocation != nil && f.NearMe {
		sort = SortDistanceAsc
	}
	values.Set("sort", sort)

	return values, nil
}

// String renders the deterministic query string used both on the wire and as
// the page-cache key.
func String(f filters.Filters, opts Options) (string, error) {
	values, err := Build(f, opts)
	if err != nil {
		return "", err
	}
	return values.Encode(), nil
}

// resolveLocation picks the coordinates for the request: an explicit filter
// location wins, otherwise the device location is used when near-me intent is
// present. Both components must be finite or nothing is sent.
func resolveLocation(f filters.Filters, user *geo.Point) (float64, float64, bool) {
	if f.HasLocation() {
		return finitePair(*f.Lat, *f.Lng)
	}
	if user != nil && f.NearMe {
		return finitePair(user.Lat, user.Lng)
	}
	return 0, 0, false
}

func finitePair(lat, lng float64) (float64, float64, bool) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return 0, 0, false
	}
	return lat, lng, true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
