package browse

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shtetl-dev/shtetl-browse/pkg/filters"
	"github.com/shtetl-dev/shtetl-browse/pkg/geo"
	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

type fetchResult struct {
	page *types.Page
	err  error
}

type fetchCall struct {
	params  url.Values
	respond chan fetchResult
}

// fakeSource hands every fetch to the test, which decides when and how it
// resolves. That makes in-flight ordering (the stale-response cases)
// deterministic.
type fakeSource struct {
	calls chan fetchCall
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: make(chan fetchCall, 8)}
}

func (f *fakeSource) FetchPage(ctx context.Context, params url.Values) (*types.Page, error) {
	call := fetchCall{params: params, respond: make(chan fetchResult, 1)}
	f.calls <- call
	select {
	case res := <-call.respond:
		return res.page, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSource) expectCall(t *testing.T) fetchCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fetch but none arrived")
		return fetchCall{}
	}
}

func (f *fakeSource) expectNoCall(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-f.calls:
		t.Fatal("unexpected fetch")
	case <-time.After(within):
	}
}

func pageOf(n int, prefix string) *types.Page {
	listings := make([]types.Listing, n)
	for i := range listings {
		listings[i] = types.Listing{Id: fmt.Sprintf("%s%d", prefix, i), Name: fmt.Sprintf("%s %d", prefix, i)}
	}
	return &types.Page{Listings: listings, Total: -1}
}

type fakeTracker struct {
	mu       sync.Mutex
	sessions int
	searches int
}

func (f *fakeTracker) TrackSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
}

func (f *fakeTracker) TrackSearch(types.Domain, filters.Filters, string, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
}

func (f *fakeTracker) Close() error { return nil }

func (f *fakeTracker) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions, f.searches
}

// blockingTracker stalls every search publish until released, standing in for
// a wedged broker.
type blockingTracker struct {
	fakeTracker
	release chan struct{}
}

func (b *blockingTracker) TrackSearch(d types.Domain, f filters.Filters, q string, page, results int) {
	<-b.release
	b.fakeTracker.TrackSearch(d, f, q, page, results)
}

func newTestSession(t *testing.T, src Source, tweak func(*Options)) *Session {
	t.Helper()
	opts := Options{
		Domain:        types.DomainRestaurants,
		Limit:         20,
		DebounceDelay: 20 * time.Millisecond,
		FetchTimeout:  2 * time.Second,
	}
	if tweak != nil {
		tweak(&opts)
	}
	s := NewSession(src, opts)
	t.Cleanup(s.Close)
	return s
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestApplyFilters_DebouncedPageOneFetch(t *testing.T) {
	src := newFakeSource()
	s := newTestSession(t, src, nil)

	s.SetFilter(filters.KeyCategory, "Pizza")
	s.SetFilter(filters.KeyRatingMin, "4")
	require.NoError(t, s.ApplyFilters())

	call := src.expectCall(t)
	assert.Equal(t, "Pizza", call.params.Get("category"))
	assert.Equal(t, "4", call.params.Get("ratingMin"))
	assert.Equal(t, "20", call.params.Get("limit"))
	assert.Equal(t, "1", call.params.Get("page"))
	call.respond <- fetchResult{page: pageOf(20, "r")}

	eventually(t, func() bool { return len(s.Snapshot().Listings) == 20 }, "page one should land")
	snap := s.Snapshot()
	assert.True(t, snap.HasMore, "a full page implies more")
	assert.False(t, snap.Loading)
	assert.NoError(t, snap.Err)
}

func TestApplyFilters_CoalescesRapidCommits(t *testing.T) {
	src := newFakeSource()
	s := newTestSession(t, src, func(o *Options) { o.DebounceDelay = 60 * time.Millisecond })

	s.SetFilter(filters.KeyQuery, "piz")
	require.NoError(t, s.ApplyFilters())
	s.SetFilter(filters.KeyQuery, "pizza")
	require.NoError(t, s.ApplyFilters())

	call := src.expectCall(t)
	assert.Equal(t, "pizza", call.params.Get("q"), "only the last commit goes on the wire")
	call.respond <- fetchResult{page: pageOf(3, "r")}

	src.expectNoCall(t, 150*time.Millisecond)
}

func TestApplyFilters_ValidationErrorChangesNothing(t *testing.T) {
	src := newFakeSource()
	s := newTestSession(t, src, nil)

	s.SetFilter(filters.KeyCategory, "Pizza")
	require.NoError(t, s.ApplyFilters())
	src.expectCall(t).respond <- fetchResult{page: pageOf(2, "r")}
	eventually(t, func() bool { return len(s.Snapshot().Listings) == 2 }, "initial page")

	s.SetFilter(filters.KeyRatingMin, 9)
	err := s.ApplyFilters()
	require.Error(t, err)
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, filters.KeyRatingMin, ve.Field)

	assert.Equal(t, "Pizza", s.ActiveFilters().Category, "committed state untouched")
	assert.Len(t, s.Snapshot().Listings, 2, "list state untouched")
	src.expectNoCall(t, 100*time.Millisecond)
}

func TestSentinel_AppendsNextPage(t *testing.T) {
	src := newFakeSource()
	s := newTestSession(t, src, nil)

	require.NoError(t, s.ApplyFilters())
	src.expectCall(t).respond <- fetchResult{page: pageOf(20, "a")}
	eventually(t, func() bool { return len(s.Snapshot().Listings) == 20 }, "page one")

	s.SentinelVisible()
	call := src.expectCall(t)
	assert.Equal(t, "2", call.params.Get("page"))
	call.respond <- fetchResult{page: pageOf(5, "b")}

	eventually(t, func() bool { return len(s.Snapshot().Listings) == 25 }, "page two appended")
	snap := s.Snapshot()
	assert.False(t, snap.HasMore, "a short page ends pagination")
	assert.Equal(t, "a0", snap.Listings[0].Id)
	assert.Equal(t, "b0", snap.Listings[20].Id)

	s.SentinelVisible()
	src.expectNoCall(t, 100*time.Millisecond)
}

func TestStaleResponse_DiscardedAfterFilterChange(t *testing.T) {
	src := newFakeSource()
	s := newTestSession(t, src, func(o *Options) { o.DebounceDelay = 10 * time.Millisecond })

	s.SetFilter(filters.KeyCategory, "Pizza")
	require.NoError(t, s.ApplyFilters())
	stale := src.expectCall(t)

	s.SetFilter(filters.KeyCategory, "Bakery")
	require.NoError(t, s.ApplyFilters())
	fresh := src.expectCall(t)
	assert.Equal(t, "Bakery", fresh.params.Get("category"))

	// The superseded request resolves first; its result must vanish without a
	// trace.
	stale.respond <- fetchResult{page: pageOf(20, "stale")}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, s.Snapshot().Listings, "stale page must not render")

	fresh.respond <- fetchResult{page: pageOf(5, "fresh")}
	eventually(t, func() bool { return len(s.Snapshot().Listings) == 5 }, "fresh page lands")
	assert.Equal(t, "fresh0", s.Snapshot().Listings[0].Id)
}

func TestStaleFailure_DoesNotChargeNewGeneration(t *testing.T) {
	src := newFakeSource()
	s := newTestSession(t, src, func(o *Options) { o.DebounceDelay = 10 * time.Millisecond })

	require.NoError(t, s.ApplyFilters())
	stale := src.expectCall(t)

	s.SetFilter(filters.KeyCategory, "Bakery")
	require.NoError(t, s.ApplyFilters())
	fresh := src.expectCall(t)

	stale.respond <- fetchResult{err: &types.NetworkError{Status: 502}}
	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, s.Snapshot().Err, "a stale failure must not surface")

	fresh.respond <- fetchResult{page: pageOf(5, "b")}
	eventually(t, func() bool { return len(s.Snapshot().Listings) == 5 }, "fresh page lands")
}

func TestShapeError_DegradesToEmptyList(t *testing.T) {
	src := newFakeSource()
	s := newTestSession(t, src, nil)

	require.NoError(t, s.ApplyFilters())
	src.expectCall(t).respond <- fetchResult{err: &types.ResponseShapeError{Err: fmt.Errorf("no listing array")}}

	eventually(t, func() bool { return s.Snapshot().Err != nil }, "error surfaces")
	snap := s.Snapshot()
	assert.Empty(t, snap.Listings)
	assert.False(t, snap.HasMore)
	assert.False(t, snap.Loading)
	var shape *types.ResponseShapeError
	assert.ErrorAs(t, snap.Err, &shape)
}

func TestFailure_BackoffThenManualLoad(t *testing.T) {
	src := newFakeSource()
	s := newTestSession(t, src, func(o *Options) { o.DebounceDelay = 10 * time.Millisecond })

	require.NoError(t, s.ApplyFilters())
	src.expectCall(t).respond <- fetchResult{err: &types.NetworkError{Status: 502}}
	eventually(t, func() bool { return s.Snapshot().Err != nil }, "first failure surfaces")

	// The sentinel is ignored during the backoff window; only the explicit
	// control may retry.
	s.SentinelVisible()
	src.expectNoCall(t, 100*time.Millisecond)

	s.ManualLoad()
	src.expectCall(t).respond <- fetchResult{err: &types.NetworkError{Status: 502}}
	time.Sleep(30 * time.Millisecond)
	assert.False(t, s.Snapshot().ShowManualLoad, "two failures stay within tolerance")

	s.ManualLoad()
	src.expectCall(t).respond <- fetchResult{err: &types.NetworkError{Status: 502}}
	eventually(t, func() bool { return s.Snapshot().ShowManualLoad }, "third failure shows the affordance")

	s.ManualLoad()
	src.expectCall(t).respond <- fetchResult{page: pageOf(5, "r")}
	eventually(t, func() bool { return len(s.Snapshot().Listings) == 5 }, "recovery lands")
	snap := s.Snapshot()
	assert.NoError(t, snap.Err)
	assert.False(t, snap.ShowManualLoad)
}

func TestGeolocationDenied_BrowseStillWorks(t *testing.T) {
	src := newFakeSource()
	s := newTestSession(t, src, func(o *Options) {
		o.Location = &geo.Static{Err: &types.GeolocationError{Code: types.GeoPermissionDenied}}
	})

	eventually(t, func() bool { return s.Snapshot().GeoErr != nil }, "denial surfaces")
	assert.Nil(t, s.UserLocation())

	require.NoError(t, s.ApplyFilters())
	call := src.expectCall(t)
	assert.Empty(t, call.params.Get("lat"))
	assert.Empty(t, call.params.Get("lng"))
	call.respond <- fetchResult{page: pageOf(3, "r")}

	eventually(t, func() bool { return len(s.Snapshot().Listings) == 3 }, "backend order renders")
	snap := s.Snapshot()
	assert.Equal(t, "r0", snap.Listings[0].Id, "no distance reorder without a fix")
	assert.NotNil(t, snap.GeoErr)
}

func TestNearMe_SortsByDistance(t *testing.T) {
	origin := geo.Point{Lat: 40.6684, Lng: -73.9422}
	src := newFakeSource()
	s := newTestSession(t, src, func(o *Options) {
		o.Location = &geo.Static{Pos: geo.Position{Point: origin, At: time.Now()}}
	})
	eventually(t, func() bool { return s.UserLocation() != nil }, "position fix arrives")

	s.SetFilter(filters.KeyNearMe, true)
	require.NoError(t, s.ApplyFilters())

	call := src.expectCall(t)
	assert.Equal(t, "distance_asc", call.params.Get("sort"))
	assert.Equal(t, "40.6684", call.params.Get("lat"))
	assert.Equal(t, "-73.9422", call.params.Get("lng"))
	radius, err := strconv.ParseFloat(call.params.Get("radius_m"), 64)
	require.NoError(t, err)
	assert.InDelta(t, 25*1609.34, radius, 1e-6, "the 25mi default radius in meters")

	far, farLng := 40.6095, -73.9656
	near, nearLng := 40.6690, -73.9390
	call.respond <- fetchResult{page: &types.Page{Total: -1, Listings: []types.Listing{
		{Id: "far", Latitude: &far, Longitude: &farLng},
		{Id: "near", Latitude: &near, Longitude: &nearLng},
	}}}

	eventually(t, func() bool { return len(s.Snapshot().Listings) == 2 }, "page lands")
	snap := s.Snapshot()
	assert.Equal(t, "near", snap.Listings[0].Id, "client-side distance sort applies")
	assert.Greater(t, snap.Listings[1].DistanceMi, snap.Listings[0].DistanceMi)
	assert.NotEmpty(t, snap.Listings[0].Distance)
	assert.NotEmpty(t, s.DistanceFor(snap.Listings[0]))
}

func TestHydrate_SeedsFromQueryString(t *testing.T) {
	src := newFakeSource()
	s := newTestSession(t, src, nil)

	values, _ := url.ParseQuery("category=Pizza&maxDistance=8&utm_source=share")
	require.NoError(t, s.Hydrate(values))

	call := src.expectCall(t)
	assert.Equal(t, "Pizza", call.params.Get("category"))
	assert.Equal(t, "12874.72", call.params.Get("radius_m"))
	call.respond <- fetchResult{page: pageOf(1, "r")}

	f := s.ActiveFilters()
	assert.Equal(t, "Pizza", f.Category)
	assert.Equal(t, 8.0, f.DistanceMi)
}

func TestTotalAndHasNext_FromEnvelope(t *testing.T) {
	src := newFakeSource()
	s := newTestSession(t, src, nil)

	require.NoError(t, s.ApplyFilters())
	hasNext := true
	src.expectCall(t).respond <- fetchResult{page: &types.Page{Listings: pageOf(20, "a").Listings, Total: 23, HasNext: &hasNext}}
	eventually(t, func() bool { return s.Snapshot().Total == 23 }, "total carried through")
	require.True(t, s.Snapshot().HasMore)

	s.SentinelVisible()
	noNext := false
	src.expectCall(t).respond <- fetchResult{page: &types.Page{Listings: pageOf(3, "b").Listings, Total: 23, HasNext: &noNext}}
	eventually(t, func() bool { return len(s.Snapshot().Listings) == 23 }, "remainder appended")
	assert.False(t, s.Snapshot().HasMore)
}

func TestInferHasMore_Precedence(t *testing.T) {
	yes, no := true, false

	assert.True(t, inferHasMore(&types.Page{Listings: nil, Total: 0, HasNext: &yes}, 20, 0), "explicit hasNext wins")
	assert.False(t, inferHasMore(&types.Page{Listings: pageOf(20, "r").Listings, Total: 100, HasNext: &no}, 20, 0), "explicit hasNext wins over arithmetic")

	assert.True(t, inferHasMore(&types.Page{Listings: pageOf(20, "r").Listings, Total: 21}, 20, 0), "total arithmetic")
	assert.False(t, inferHasMore(&types.Page{Listings: pageOf(20, "r").Listings, Total: 20}, 20, 0), "total reached")
	assert.False(t, inferHasMore(&types.Page{Listings: pageOf(3, "r").Listings, Total: 23}, 20, 20), "offset counts")

	assert.True(t, inferHasMore(&types.Page{Listings: pageOf(20, "r").Listings, Total: -1}, 20, 0), "full page heuristic")
	assert.False(t, inferHasMore(&types.Page{Listings: pageOf(5, "r").Listings, Total: -1}, 20, 0), "short page ends it")
}

func TestTracking_SessionAndSearches(t *testing.T) {
	src := newFakeSource()
	trk := &fakeTracker{}
	s := newTestSession(t, src, func(o *Options) { o.Tracking = trk })

	sessions, _ := trk.counts()
	assert.Equal(t, 1, sessions, "session tracked once at start")

	s.SetFilter(filters.KeyQuery, "pizza")
	require.NoError(t, s.ApplyFilters())
	src.expectCall(t).respond <- fetchResult{page: pageOf(4, "r")}

	eventually(t, func() bool { _, searches := trk.counts(); return searches == 1 }, "search tracked on completion")
}

func TestTracking_SlowBrokerDoesNotDelaySnapshot(t *testing.T) {
	src := newFakeSource()
	trk := &blockingTracker{release: make(chan struct{})}
	defer close(trk.release)
	s := newTestSession(t, src, func(o *Options) { o.Tracking = trk })

	require.NoError(t, s.ApplyFilters())
	src.expectCall(t).respond <- fetchResult{page: pageOf(4, "r")}

	eventually(t, func() bool { return len(s.Snapshot().Listings) == 4 }, "snapshot lands while the publish is stuck")
	_, searches := trk.counts()
	assert.Equal(t, 0, searches, "publish still pending behind the broker")
}

func TestClose_StopsPendingFetch(t *testing.T) {
	src := newFakeSource()
	s := NewSession(src, Options{Domain: types.DomainRestaurants, DebounceDelay: 30 * time.Millisecond})

	require.NoError(t, s.ApplyFilters())
	s.Close()
	src.expectNoCall(t, 100*time.Millisecond)
}
