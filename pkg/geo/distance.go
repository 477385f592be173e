package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

const (
	earthRadiusMi = 3959.0
	feetPerMile   = 5280.0
)

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

// Distance returns the great-circle (Haversine) distance between two points
// in miles. It is symmetric and zero when both points coincide.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	deltaLat := toRadians(lat2 - lat1)
	deltaLng := toRadians(lng2 - lng1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMi * c
}

// FormatDistance renders a distance for listing cards. Below 0.1 miles it
// switches to whole feet, everything else is one decimal of miles.
func FormatDistance(miles float64) string {
	if miles < 0.1 {
		return fmt.Sprintf("%dft", int(math.Round(miles*feetPerMile)))
	}
	return fmt.Sprintf("%.1fmi", miles)
}

// Annotate computes and attaches the distance from origin to every listing
// that carries coordinates. Listings without coordinates are left untouched.
func Annotate(listings []types.Listing, origin Point) {
	for i := range listings {
		l := &listings[i]
		if !l.HasCoordinates() {
			continue
		}
		l.DistanceMi = Distance(origin.Lat, origin.Lng, *l.Latitude, *l.Longitude)
		l.Distance = FormatDistance(l.DistanceMi)
	}
}

// SortByDistance orders listings ascending by proximity to origin. The sort
// is stable: listings without coordinates keep their relative order and sink
// to the end. Sorting an already-sorted slice again is a no-op.
func SortByDistance(listings []types.Listing, origin Point) {
	type keyed struct {
		key     float64
		listing types.Listing
	}
	pairs := make([]keyed, len(listings))
	for i := range listings {
		l := &listings[i]
		key := math.Inf(1)
		if l.HasCoordinates() {
			key = Distance(origin.Lat, origin.Lng, *l.Latitude, *l.Longitude)
		}
		pairs[i] = keyed{key: key, listing: *l}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].key < pairs[j].key
	})
	for i := range pairs {
		listings[i] = pairs[i].listing
	}
}
