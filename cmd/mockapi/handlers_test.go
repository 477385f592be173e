package main

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

func serve(t *testing.T, domain types.Domain, rawQuery string) *types.Page {
	t.Helper()
	api := &mockAPI{data: seedListings()}
	req := httptest.NewRequest("GET", domain.Path()+"?"+rawQuery, nil)
	rec := httptest.NewRecorder()
	api.handleDomain(domain)(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body, _ := io.ReadAll(rec.Body)
	page, err := types.DecodePage(body)
	if err != nil {
		t.Fatalf("undecodable response: %v", err)
	}
	return page
}

func ids(page *types.Page) []string {
	out := make([]string, 0, len(page.Listings))
	for _, l := range page.Listings {
		out = append(out, l.Id)
	}
	return out
}

func TestHandleDomain_FiltersByCategoryAndRating(t *testing.T) {
	page := serve(t, types.DomainRestaurants, "category=Pizza&ratingMin=4.2")
	if len(page.Listings) != 1 || page.Listings[0].Id != "r1" {
		t.Errorf("expected only r1, got %v", ids(page))
	}
	if page.Total != 1 {
		t.Errorf("total = %d, want 1", page.Total)
	}
}

func TestHandleDomain_DomainsAreDisjoint(t *testing.T) {
	page := serve(t, types.DomainMarketplace, "")
	for _, l := range page.Listings {
		if l.Id[0] != 'g' {
			t.Errorf("foreign listing %q in marketplace", l.Id)
		}
	}
	if len(page.Listings) != 2 {
		t.Errorf("expected 2 marketplace listings, got %v", ids(page))
	}
}

func TestHandleDomain_RadiusFilter(t *testing.T) {
	// 1 mile around Crown Heights keeps r1 and drops the Midwood venues and
	// everything without coordinates.
	page := serve(t, types.DomainRestaurants, "lat=40.6684&lng=-73.9422&radius_m=1609")
	got := ids(page)
	if len(got) != 1 || got[0] != "r1" {
		t.Errorf("expected only r1 within a mile, got %v", got)
	}
}

func TestHandleDomain_DistanceSort(t *testing.T) {
	page := serve(t, types.DomainRestaurants, "lat=40.6684&lng=-73.9422&sort=distance_asc")
	got := ids(page)
	if len(got) == 0 || got[0] != "r1" {
		t.Errorf("nearest venue should lead, got %v", got)
	}
	if got[len(got)-1] != "r4" {
		t.Errorf("venue without coordinates should trail, got %v", got)
	}
}

func TestHandleDomain_Pagination(t *testing.T) {
	first := serve(t, types.DomainRestaurants, "limit=2&page=1")
	second := serve(t, types.DomainRestaurants, "limit=2&page=2")
	if len(first.Listings) != 2 || len(second.Listings) != 2 {
		t.Fatalf("expected two listings per page, got %v and %v", ids(first), ids(second))
	}
	if first.Listings[0].Id == second.Listings[0].Id {
		t.Errorf("pages overlap: %v vs %v", ids(first), ids(second))
	}
	if first.HasNext == nil || !*first.HasNext {
		t.Errorf("first of three pages should have a next")
	}
	last := serve(t, types.DomainRestaurants, "limit=2&page=3")
	if last.HasNext == nil || *last.HasNext {
		t.Errorf("last page should not have a next")
	}
}

func TestHandleDomain_HoursBucket(t *testing.T) {
	page := serve(t, types.DomainRestaurants, "hours=lateNight")
	got := ids(page)
	if len(got) != 2 {
		t.Errorf("expected r4 and r5 late night, got %v", got)
	}
	page = serve(t, types.DomainRestaurants, "hours=openNow")
	for _, l := range page.Listings {
		if l.Id == "r3" {
			t.Errorf("closed venue matched openNow: %v", ids(page))
		}
	}
}

func TestHandleDomain_AlternateShapes(t *testing.T) {
	bare := serve(t, types.DomainRestaurants, "shape=bare")
	if bare.Total != -1 {
		t.Errorf("bare array carries no total, got %d", bare.Total)
	}
	legacy := serve(t, types.DomainRestaurants, "shape=legacy")
	if len(legacy.Listings) != len(bare.Listings) {
		t.Errorf("shapes disagree: %d vs %d", len(legacy.Listings), len(bare.Listings))
	}
}

func TestHandleDomain_BadQueryRejected(t *testing.T) {
	api := &mockAPI{data: seedListings()}
	req := httptest.NewRequest("GET", "/api/restaurants?ratingMin=high", nil)
	rec := httptest.NewRecorder()
	api.handleDomain(types.DomainRestaurants)(rec, req)
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
