package browse

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shtetl-dev/shtetl-browse/pkg/filters"
	"github.com/shtetl-dev/shtetl-browse/pkg/geo"
	"github.com/shtetl-dev/shtetl-browse/pkg/pager"
	"github.com/shtetl-dev/shtetl-browse/pkg/query"
	"github.com/shtetl-dev/shtetl-browse/pkg/tracking"
	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

var searchesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "shtetl_browse_searches_total",
	Help: "The total number of committed filter searches",
})

const (
	// DefaultDebounce coalesces rapid successive filter commits into one
	// request.
	DefaultDebounce = 300 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// Source delivers one page of listings for a built query. pkg/client is the
// HTTP implementation; pkg/cache decorates it.
type Source interface {
	FetchPage(ctx context.Context, params url.Values) (*types.Page, error)
}

// Options configure a browse session.
type Options struct {
	Domain        types.Domain
	Limit         int
	DefaultSort   string
	UseOffset     bool
	DebounceDelay time.Duration
	FetchTimeout  time.Duration
	// Location, when set, feeds the session position fixes; the watch is
	// released on Close.
	Location geo.Provider
	// Tracking, when set, receives committed searches. Never blocks a fetch.
	Tracking tracking.Tracking
}

// Snapshot is the render-facing view of a session. The list view always has
// something to show: data, a loading flag, or an error with its retry
// affordance.
type Snapshot struct {
	Listings       []types.Listing
	Total          int
	Loading        bool
	HasMore        bool
	ShowManualLoad bool
	Err            error
	GeoErr         error
	Filters        filters.Filters
	UserLocation   *geo.Point
}

// Session is the per-page orchestrator: it owns the list state and the
// pagination cursor, and is the only thing that mutates them. All fetch
// lifecycle goes through the pager's transitions; ordering across in-flight
// requests is enforced by the epoch captured at fetch start.
type Session struct {
	source Source
	opts   Options

	mu           sync.Mutex
	draft        *filters.Draft
	committed    filters.Filters
	pager        *pager.Controller
	listings     []types.Listing
	total        int
	err          error
	geoErr       error
	userLocation *geo.Point
	debounce     *time.Timer
	closed       bool

	listeners      map[int]func(Snapshot)
	nextListenerID int

	stopWatch func()
}

func NewSession(source Source, opts Options) *Session {
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = DefaultDebounce
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultTimeout
	}
	if opts.DefaultSort == "" {
		opts.DefaultSort = query.SortCreatedDesc
	}
	s := &Session{
		source:    source,
		opts:      opts,
		draft:     filters.NewDraft(),
		pager:     pager.NewController(opts.Limit),
		listings:  []types.Listing{},
		total:     -1,
		listeners: make(map[int]func(Snapshot)),
	}
	if opts.Tracking != nil {
		opts.Tracking.TrackSession()
	}
	if opts.Location != nil {
		s.stopWatch = opts.Location.Watch(s.onPosition)
	}
	return s
}

// Hydrate seeds the draft from a URL query string (the page-load path) and
// commits it. Unknown keys are ignored.
func (s *Session) Hydrate(values url.Values) error {
	raw := filters.RawFromQuery(values)
	s.mu.Lock()
	s.draft = filters.DraftFrom(raw)
	s.mu.Unlock()
	return s.ApplyFilters()
}

func (s *Session) SetFilter(key string, value any) {
	s.mu.Lock()
	draft := s.draft
	s.mu.Unlock()
	draft.Set(key, value)
}

func (s *Session) ClearFilter(key string) {
	s.mu.Lock()
	draft := s.draft
	s.mu.Unlock()
	draft.Clear(key)
}

func (s *Session) ClearAllFilters() {
	s.mu.Lock()
	draft := s.draft
	s.mu.Unlock()
	draft.ClearAll()
}

// ApplyFilters validates and commits the draft. A validation error is
// returned to the caller for inline display and changes nothing downstream.
// A successful commit is the single notification point: it resets the
// pagination cursor, invalidates in-flight requests via the epoch bump, and
// schedules a debounced page-1 fetch.
func (s *Session) ApplyFilters() error {
	s.mu.Lock()
	committed, err := s.draft.Apply()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.committed = committed
	s.pager.ResetForFilters()
	s.err = nil
	searchesTotal.Inc()
	s.scheduleRefetchLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Session) scheduleRefetchLocked() {
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.opts.DebounceDelay, func() { s.begin(false) })
}

// LoadMore requests the next page. It is a no-op while a fetch is in flight,
// when there is nothing more, or during a backoff window.
func (s *Session) LoadMore() { s.begin(false) }

// SentinelVisible is the viewport-proximity signal from the infinite-scroll
// sentinel. Gating lives in the pager.
func (s *Session) SentinelVisible() { s.begin(false) }

// ManualLoad is the explicit retry control: it bypasses the backoff window
// for this one attempt but never allows a concurrent double-fetch.
func (s *Session) ManualLoad() { s.begin(true) }

func (s *Session) begin(manual bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	attempt, ok := s.pager.TryBegin(manual)
	if !ok {
		s.mu.Unlock()
		return
	}
	committed := s.committed
	loc := s.userLocation
	limit := s.pager.Limit()
	params, err := query.Build(committed, query.Options{
		UserLocation: loc,
		Limit:        limit,
		Page:         attempt.Offset/limit + 1,
		Offset:       attempt.Offset,
		UseOffset:    s.opts.UseOffset,
		DefaultSort:  s.opts.DefaultSort,
	})
	if err != nil {
		s.pager.Fail(attempt, err)
		s.err = err
		s.mu.Unlock()
		s.notify()
		return
	}
	s.mu.Unlock()
	s.notify()
	go s.fetch(attempt, params, committed, loc)
}

func (s *Session) fetch(attempt pager.Attempt, params url.Values, committed filters.Filters, loc *geo.Point) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.FetchTimeout)
	defer cancel()

	page, err := s.source.FetchPage(ctx, params)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	limit := s.pager.Limit()
	if err != nil {
		var shapeErr *types.ResponseShapeError
		if errors.As(err, &shapeErr) {
			// Malformed envelope degrades to an empty page with a reported
			// error; it never reaches the render tree as a panic.
			log.Printf("discarding malformed response: %v", err)
			if s.pager.Complete(attempt, false) {
				if attempt.Offset == 0 {
					s.listings = []types.Listing{}
					s.total = -1
				}
				s.err = err
			}
		} else {
			if s.pager.Fail(attempt, err) {
				s.err = err
			}
		}
		s.mu.Unlock()
		s.notify()
		return
	}

	hasMore := inferHasMore(page, limit, attempt.Offset)
	if !s.pager.Complete(attempt, hasMore) {
		// Filters changed while this request was in flight; the result is
		// discarded without touching list state or the cursor.
		s.mu.Unlock()
		return
	}

	items := page.Listings
	if loc != nil {
		geo.Annotate(items, *loc)
		if committed.NearMe {
			geo.SortByDistance(items, *loc)
		}
	}
	if attempt.Offset == 0 {
		s.listings = items
	} else {
		s.listings = append(s.listings, items...)
	}
	if page.Total >= 0 {
		s.total = page.Total
	} else if attempt.Offset == 0 {
		s.total = -1
	}
	s.err = nil
	trk := s.opts.Tracking
	s.mu.Unlock()

	if trk != nil {
		// Telemetry rides its own goroutine so a slow broker cannot hold up
		// the snapshot notification.
		go trk.TrackSearch(s.opts.Domain, committed, committed.Query, attempt.Offset/limit+1, len(items))
	}
	s.notify()
}

// inferHasMore derives pagination when the backend is not explicit: hasNext
// wins, then total arithmetic, then the full-page heuristic.
func inferHasMore(page *types.Page, limit, offset int) bool {
	if page.HasNext != nil {
		return *page.HasNext
	}
	if page.Total >= 0 {
		return offset+len(page.Listings) < page.Total
	}
	return len(page.Listings) >= limit
}

func (s *Session) onPosition(pos geo.Position, err error) {
	s.mu.Lock()
	if err != nil {
		s.geoErr = err
		s.userLocation = nil
		s.mu.Unlock()
		s.notify()
		return
	}
	point := pos.Point
	s.userLocation = &point
	s.geoErr = nil
	geo.Annotate(s.listings, point)
	s.mu.Unlock()
	s.notify()
}

// Subscribe registers a snapshot listener. The returned function removes it,
// is safe to call more than once, and must be called on unmount regardless of
// exit path.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	listings := make([]types.Listing, len(s.listings))
	copy(listings, s.listings)
	return Snapshot{
		Listings:       listings,
		Total:          s.total,
		Loading:        s.pager.Loading(),
		HasMore:        s.pager.HasMore(),
		ShowManualLoad: s.pager.ShowManualLoad(),
		Err:            s.err,
		GeoErr:         s.geoErr,
		Filters:        s.committed,
		UserLocation:   s.userLocation,
	}
}

// ActiveFilters returns the committed filter state.
func (s *Session) ActiveFilters() filters.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

func (s *Session) UserLocation() *geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userLocation
}

// DistanceFor formats the distance from the current user location to a
// listing, or "" when either side has no coordinates.
func (s *Session) DistanceFor(l types.Listing) string {
	s.mu.Lock()
	loc := s.userLocation
	s.mu.Unlock()
	if loc == nil || !l.HasCoordinates() {
		return ""
	}
	return geo.FormatDistance(geo.Distance(loc.Lat, loc.Lng, *l.Latitude, *l.Longitude))
}

// Close releases the debounce timer and the geolocation watch. In-flight
// fetches see the closed flag on completion and are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.debounce != nil {
		s.debounce.Stop()
	}
	stop := s.stopWatch
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}
