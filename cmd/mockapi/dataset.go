package main

import (
	"strings"

	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

// record is a dataset row: a listing plus the serving-side attributes the
// real backend filters on.
type record struct {
	types.Listing
	Domain  types.Domain
	Buckets []string // hours buckets the venue is open
	OpenNow bool
}

func coord(v float64) *float64 { return &v }

// seedListings is a small Brooklyn-area dataset covering all four domains.
func seedListings() []record {
	return []record{
		{
			Listing: types.Listing{
				Id: "r1", Name: "Mendel's Pizza", Category: "Pizza", Agency: "OU",
				Address: "501 Kingston Ave", Rating: 4.4, PriceLevel: 2,
				Latitude: coord(40.6684), Longitude: coord(-73.9422),
				Hours: "11:00-23:00",
			},
			Domain:  types.DomainRestaurants,
			Buckets: []string{"morning", "afternoon", "evening"},
			OpenNow: true,
		},
		{
			Listing: types.Listing{
				Id: "r2", Name: "Grill Point", Category: "Grill", Agency: "OK",
				Address: "1123 Avenue J", Rating: 4.1, PriceLevel: 3,
				Latitude: coord(40.6251), Longitude: coord(-73.9631),
				Hours: "12:00-22:00",
			},
			Domain:  types.DomainRestaurants,
			Buckets: []string{"afternoon", "evening"},
			OpenNow: true,
		},
		{
			Listing: types.Listing{
				Id: "r3", Name: "Bagel Hole", Category: "Bakery", Agency: "OU",
				Address: "400 Avenue P", Rating: 4.8, PriceLevel: 1,
				Latitude: coord(40.6095), Longitude: coord(-73.9656),
				Hours: "06:00-15:00",
			},
			Domain:  types.DomainRestaurants,
			Buckets: []string{"morning", "afternoon"},
			OpenNow: false,
		},
		{
			Listing: types.Listing{
				Id: "r4", Name: "Sushi Tokyo South", Category: "Sushi", Agency: "Star-K",
				Address: "1917 Coney Island Ave", Rating: 3.9, PriceLevel: 4,
				Hours: "17:00-01:00",
			},
			Domain:  types.DomainRestaurants,
			Buckets: []string{"evening", "lateNight"},
			OpenNow: true,
		},
		{
			Listing: types.Listing{
				Id: "r5", Name: "Pizza Time", Category: "Pizza", Agency: "OK",
				Address: "367 Central Ave", Rating: 4.0, PriceLevel: 1,
				Latitude: coord(40.6829), Longitude: coord(-73.9108),
				Hours: "10:00-23:30",
			},
			Domain:  types.DomainRestaurants,
			Buckets: []string{"morning", "afternoon", "evening", "lateNight"},
			OpenNow: true,
		},
		{
			Listing: types.Listing{
				Id: "s1", Name: "Congregation Beth Shalom", Category: "Ashkenaz",
				Address: "890 Eastern Pkwy",
				Latitude: coord(40.6690), Longitude: coord(-73.9390),
			},
			Domain:  types.DomainSynagogues,
			Buckets: []string{"morning", "evening"},
			OpenNow: true,
		},
		{
			Listing: types.Listing{
				Id: "s2", Name: "Sephardic Center", Category: "Sephard",
				Address: "2030 Ocean Pkwy",
				Latitude: coord(40.5998), Longitude: coord(-73.9687),
			},
			Domain:  types.DomainSynagogues,
			Buckets: []string{"morning", "afternoon", "evening"},
			OpenNow: true,
		},
		{
			Listing: types.Listing{
				Id: "m1", Name: "Mikvah Israel", Address: "1574 53rd St",
				Latitude: coord(40.6330), Longitude: coord(-73.9920),
			},
			Domain:  types.DomainMikvah,
			Buckets: []string{"evening", "lateNight"},
			OpenNow: false,
		},
		{
			Listing: types.Listing{
				Id: "g1", Name: "Stroller Gemach", Category: "Baby", Gemach: true,
				Address: "1410 48th St",
				Latitude: coord(40.6372), Longitude: coord(-73.9851),
			},
			Domain:  types.DomainMarketplace,
			Buckets: []string{"morning", "afternoon"},
			OpenNow: true,
		},
		{
			Listing: types.Listing{
				Id: "g2", Name: "Used Seforim Sale", Category: "Books", PriceLevel: 1,
				Address: "820 Avenue L",
			},
			Domain:  types.DomainMarketplace,
			Buckets: []string{"afternoon", "evening"},
			OpenNow: true,
		},
	}
}

func matchesText(l *types.Listing, q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(l.Name), q) ||
		strings.Contains(strings.ToLower(l.Category), q) ||
		strings.Contains(strings.ToLower(l.Address), q)
}
