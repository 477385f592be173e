package types

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"
)

// Page is one page of listings in normalized form, whatever envelope the
// backend wrapped it in.
type Page struct {
	Listings []Listing `json:"listings"`
	// Total is -1 when the backend did not supply a count.
	Total int `json:"total"`
	// HasNext is nil when the backend did not state it; the caller falls back
	// to total arithmetic or the page-size heuristic.
	HasNext *bool `json:"hasNext,omitempty"`
}

// envelope covers the response shapes the listing backends are known to
// produce: {success,data:{listings,total}}, {success,restaurants:[...]},
// {listings:[...],total,hasNext} and variants with hasMore.
type envelope struct {
	Success     *bool         `json:"success"`
	Data        *envelopeData `json:"data"`
	Listings    []Listing     `json:"listings"`
	Restaurants []Listing     `json:"restaurants"`
	Total       *int          `json:"total"`
	HasNext     *bool         `json:"hasNext"`
	HasMore     *bool         `json:"hasMore"`
}

type envelopeData struct {
	Listings []Listing `json:"listings"`
	Total    *int      `json:"total"`
	HasNext  *bool     `json:"hasNext"`
}

// DecodePage normalizes any known response envelope into a Page. A payload
// matching none of the shapes yields a ResponseShapeError, never a panic.
func DecodePage(data []byte) (*Page, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, &ResponseShapeError{Err: fmt.Errorf("empty body")}
	}
	if trimmed[0] == '[' {
		var listings []Listing
		if err := sonic.Unmarshal(trimmed, &listings); err != nil {
			return nil, &ResponseShapeError{Err: err}
		}
		return &Page{Listings: listings, Total: -1}, nil
	}

	var env envelope
	if err := sonic.Unmarshal(trimmed, &env); err != nil {
		return nil, &ResponseShapeError{Err: err}
	}

	page := &Page{Total: -1}
	switch {
	case env.Data != nil:
		page.Listings = env.Data.Listings
		if env.Data.Total != nil {
			page.Total = *env.Data.Total
		}
		page.HasNext = env.Data.HasNext
	case env.Listings != nil:
		page.Listings = env.Listings
	case env.Restaurants != nil:
		page.Listings = env.Restaurants
	default:
		return nil, &ResponseShapeError{Err: fmt.Errorf("no listing array in payload")}
	}

	if page.Total < 0 && env.Total != nil {
		page.Total = *env.Total
	}
	if page.HasNext == nil {
		if env.HasNext != nil {
			page.HasNext = env.HasNext
		} else {
			page.HasNext = env.HasMore
		}
	}
	if page.Listings == nil {
		page.Listings = []Listing{}
	}
	return page, nil
}
