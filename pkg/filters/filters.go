package filters

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

// Filter keys as they appear in the URL side channel and the filter UI.
// distanceMi is canonical; the two max* keys are legacy aliases still seen in
// saved links.
const (
	KeyQuery         = "q"
	KeyCategory      = "category"
	KeyAgency        = "agency"
	KeyPriceMin      = "priceMin"
	KeyPriceMax      = "priceMax"
	KeyRatingMin     = "ratingMin"
	KeyDistance      = "distanceMi"
	KeyMaxDistanceMi = "maxDistanceMi"
	KeyMaxDistance   = "maxDistance"
	KeyLat           = "lat"
	KeyLng           = "lng"
	KeyOpenNow       = "openNow"
	KeyNearMe        = "nearMe"
	KeyHours         = "hours"
)

// DefaultNearMeDistanceMi is applied only when nearMe is set without an
// explicit radius.
const DefaultNearMeDistanceMi = 25.0

// HoursBucket narrows results to venues open during part of the day.
type HoursBucket string

const (
	HoursMorning   HoursBucket = "morning"
	HoursAfternoon HoursBucket = "afternoon"
	HoursEvening   HoursBucket = "evening"
	HoursLateNight HoursBucket = "lateNight"
	HoursOpenNow   HoursBucket = "openNow"
)

func validHoursBucket(s string) bool {
	switch HoursBucket(s) {
	case HoursMorning, HoursAfternoon, HoursEvening, HoursLateNight, HoursOpenNow:
		return true
	}
	return false
}

// Raw is an uncommitted filter map as it arrives from a query string or the
// filter UI. Absent, empty-string and empty-slice values count as "not set".
type Raw map[string]any

func (r Raw) clone() Raw {
	out := make(Raw, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	}
	return false, false
}

// Normalize returns a copy of raw with inactive entries dropped and known
// numeric fields coerced to numbers. Out-of-range values are rejected with a
// ValidationError naming the key. Normalize is idempotent: running it over
// its own output changes nothing.
func Normalize(raw Raw) (Raw, error) {
	out := make(Raw, len(raw))
	for key, value := range raw {
		if isEmpty(value) {
			continue
		}
		switch key {
		case KeyPriceMin, KeyPriceMax:
			n, ok := toInt(value)
			if !ok {
				return nil, &types.ValidationError{Field: key, Reason: "not a whole number"}
			}
			if n < 1 || n > 4 {
				return nil, &types.ValidationError{Field: key, Reason: "must be between 1 and 4"}
			}
			out[key] = n
		case KeyRatingMin:
			f, ok := toFloat(value)
			if !ok {
				return nil, &types.ValidationError{Field: key, Reason: "not a number"}
			}
			if f < 0 || f > 5 {
				return nil, &types.ValidationError{Field: key, Reason: "must be between 0 and 5"}
			}
			out[key] = f
		case KeyDistance, KeyMaxDistanceMi, KeyMaxDistance:
			f, ok := toFloat(value)
			if !ok {
				return nil, &types.ValidationError{Field: key, Reason: "not a number"}
			}
			if f <= 0 {
				return nil, &types.ValidationError{Field: key, Reason: "must be greater than zero"}
			}
			out[key] = f
		case KeyLat, KeyLng:
			f, ok := toFloat(value)
			if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, &types.ValidationError{Field: key, Reason: "not a finite number"}
			}
			out[key] = f
		case KeyOpenNow, KeyNearMe:
			b, ok := toBool(value)
			if !ok {
				return nil, &types.ValidationError{Field: key, Reason: "not a boolean"}
			}
			if b {
				out[key] = true
			}
		case KeyHours:
			s := strings.TrimSpace(fmt.Sprint(value))
			if !validHoursBucket(s) {
				return nil, &types.ValidationError{Field: key, Reason: "unknown hours bucket"}
			}
			out[key] = s
		default:
			out[key] = value
		}
	}

	if minV, ok := out[KeyPriceMin]; ok {
		if maxV, ok := out[KeyPriceMax]; ok {
			if minV.(int) > maxV.(int) {
				return nil, &types.ValidationError{Field: KeyPriceMin, Reason: "minimum exceeds maximum"}
			}
		}
	}
	_, hasLat := out[KeyLat]
	_, hasLng := out[KeyLng]
	if hasLat != hasLng {
		return nil, &types.ValidationError{Field: "lat/lng", Reason: "latitude and longitude must appear together"}
	}
	return out, nil
}

// CanonicalDistance resolves the single effective radius among the legacy
// aliases, preferring the most specific key. The 25 mile default applies only
// when nearMe is set and no explicit value exists.
func CanonicalDistance(raw Raw) (float64, bool) {
	for _, key := range []string{KeyDistance, KeyMaxDistanceMi, KeyMaxDistance} {
		if v, ok := raw[key]; ok {
			if f, ok := toFloat(v); ok && f > 0 {
				return f, true
			}
		}
	}
	if v, ok := raw[KeyNearMe]; ok {
		if b, _ := toBool(v); b {
			return DefaultNearMeDistanceMi, true
		}
	}
	return 0, false
}

// Filters is the committed, typed filter state the query builder reads.
// Zero values mean "not set"; DistanceMi already carries the resolved
// canonical radius.
type Filters struct {
	Query      string      `json:"q,omitempty"`
	Category   string      `json:"category,omitempty"`
	Agency     string      `json:"agency,omitempty"`
	PriceMin   int         `json:"priceMin,omitempty"`
	PriceMax   int         `json:"priceMax,omitempty"`
	RatingMin  float64     `json:"ratingMin,omitempty"`
	DistanceMi float64     `json:"distanceMi,omitempty"`
	Lat        *float64    `json:"lat,omitempty"`
	Lng        *float64    `json:"lng,omitempty"`
	OpenNow    bool        `json:"openNow,omitempty"`
	NearMe     bool        `json:"nearMe,omitempty"`
	Hours      HoursBucket `json:"hours,omitempty"`
}

func (f *Filters) HasLocation() bool {
	return f.Lat != nil && f.Lng != nil
}

// FromRaw normalizes and binds a raw filter map.
func FromRaw(raw Raw) (Filters, error) {
	norm, err := Normalize(raw)
	if err != nil {
		return Filters{}, err
	}
	var f Filters
	if v, ok := norm[KeyQuery]; ok {
		f.Query = strings.TrimSpace(fmt.Sprint(v))
	}
	if v, ok := norm[KeyCategory]; ok {
		f.Category = strings.TrimSpace(fmt.Sprint(v))
	}
	if v, ok := norm[KeyAgency]; ok {
		f.Agency = strings.TrimSpace(fmt.Sprint(v))
	}
	if v, ok := norm[KeyPriceMin]; ok {
		f.PriceMin = v.(int)
	}
	if v, ok := norm[KeyPriceMax]; ok {
		f.PriceMax = v.(int)
	}
	if v, ok := norm[KeyRatingMin]; ok {
		f.RatingMin = v.(float64)
	}
	if v, ok := norm[KeyLat]; ok {
		lat := v.(float64)
		f.Lat = &lat
	}
	if v, ok := norm[KeyLng]; ok {
		lng := v.(float64)
		f.Lng = &lng
	}
	if _, ok := norm[KeyOpenNow]; ok {
		f.OpenNow = true
	}
	if _, ok := norm[KeyNearMe]; ok {
		f.NearMe = true
	}
	if v, ok := norm[KeyHours]; ok {
		f.Hours = HoursBucket(v.(string))
	}
	if d, ok := CanonicalDistance(norm); ok {
		f.DistanceMi = d
	}
	return f, nil
}

// RawFromQuery extracts the active entries of a URL query into a raw filter
// map. Repeated keys keep their first value; empty values count as "not set".
func RawFromQuery(values url.Values) Raw {
	raw := Raw{}
	for key, vals := range values {
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		raw[key] = vals[0]
	}
	return raw
}

// FromQuery hydrates filters from a URL query string (the page-load path).
// Unknown keys pass through Normalize untouched and are ignored downstream.
func FromQuery(values url.Values) (Filters, error) {
	return FromRaw(RawFromQuery(values))
}
