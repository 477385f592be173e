package types

// Domain selects which listing collection a query targets.
type Domain string

const (
	DomainRestaurants Domain = "restaurants"
	DomainSynagogues  Domain = "synagogues"
	DomainMikvah      Domain = "mikvah"
	DomainMarketplace Domain = "shtel-listings"
)

// Path returns the API path for the domain.
func (d Domain) Path() string {
	return "/api/" + string(d)
}

// Listing is one directory entry as delivered by the backend. The payload is
// treated as opaque apart from the fields below; the only client-side
// mutation is attaching the computed distance.
type Listing struct {
	Id         string   `json:"id"`
	Name       string   `json:"name"`
	Category   string   `json:"category,omitempty"`
	Agency     string   `json:"agency,omitempty"`
	Address    string   `json:"address,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Rating     float64  `json:"rating,omitempty"`
	PriceLevel int      `json:"price_level,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Hours      string   `json:"hours,omitempty"`
	Gemach     bool     `json:"gemach,omitempty"`

	// DistanceMi and Distance are computed client side when a user location
	// is known. Distance is the formatted card label.
	DistanceMi float64 `json:"distance_mi,omitempty"`
	Distance   string  `json:"distance,omitempty"`
}

func (l *Listing) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}
