package pager

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shtetl_browse_fetch_attempts_total",
		Help: "The total number of page fetches begun",
	})
	staleDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shtetl_browse_stale_drops_total",
		Help: "The total number of in-flight results discarded after a filter change",
	})
	failuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shtetl_browse_fetch_failures_total",
		Help: "The total number of failed page fetches",
	})
)

// State of the fetch lifecycle. Backoff is derived: the controller reports it
// while a failure delay is still running.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateBackoff
)

const (
	// DefaultLimit is the page size requested when the caller sets none.
	DefaultLimit = 20
	// failureThreshold is how many consecutive failures are tolerated before
	// the manual-load affordance is shown.
	failureThreshold = 2

	baseBackoff = time.Second
	maxBackoff  = 30 * time.Second
)

// Attempt identifies one in-flight fetch. The epoch is captured when the
// fetch begins and compared again at completion; a mismatch means filters
// changed while the request was in flight and its result must be discarded.
type Attempt struct {
	Offset int
	Epoch  uint64
}

// Controller owns the pagination cursor and retry state. All mutation goes
// through the transitions below; the browse session never touches the cursor
// directly.
type Controller struct {
	mu                  sync.Mutex
	loading             bool
	offset              int
	limit               int
	epoch               uint64
	hasMore             bool
	consecutiveFailures int
	backoffUntil        time.Time
	showManualLoad      bool

	now func() time.Time
}

func NewController(limit int) *Controller {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Controller{
		limit:   limit,
		hasMore: true,
		now:     time.Now,
	}
}

// TryBegin starts a fetch if the controller allows one. The sentinel signal
// and LoadMore pass manual=false and are refused while a fetch is in flight,
// when there is nothing more to load, or while the backoff window is open. A
// manual load bypasses the backoff window only; the in-flight guard always
// holds, so no double-fetch is possible.
func (c *Controller) TryBegin(manual bool) (Attempt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading || !c.hasMore {
		return Attempt{}, false
	}
	if !manual && c.now().Before(c.backoffUntil) {
		return Attempt{}, false
	}
	c.loading = true
	attemptsTotal.Inc()
	return Attempt{Offset: c.offset, Epoch: c.epoch}, true
}

// Complete records a finished fetch. When the attempt's epoch no longer
// matches (filters changed mid-flight) the result is discarded entirely and
// false is returned; no state moves.
func (c *Controller) Complete(a Attempt, hasMore bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.Epoch != c.epoch {
		staleDropsTotal.Inc()
		return false
	}
	c.loading = false
	c.offset += c.limit
	c.hasMore = hasMore
	c.consecutiveFailures = 0
	c.showManualLoad = false
	c.backoffUntil = time.Time{}
	return true
}

// Fail records a failed fetch and arms the backoff window. Stale failures are
// discarded like stale successes: they must not charge the failure counter of
// the filter generation that superseded them.
func (c *Controller) Fail(a Attempt, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.Epoch != c.epoch {
		staleDropsTotal.Inc()
		return false
	}
	c.loading = false
	c.consecutiveFailures++
	failuresTotal.Inc()
	c.backoffUntil = c.now().Add(backoffDelay(c.consecutiveFailures))
	if c.consecutiveFailures > failureThreshold {
		c.showManualLoad = true
	}
	return true
}

// ResetForFilters invalidates every in-flight request and rewinds the cursor.
// Called on each committed filter change.
func (c *Controller) ResetForFilters() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.offset = 0
	c.loading = false
	c.hasMore = true
	c.consecutiveFailures = 0
	c.showManualLoad = false
	c.backoffUntil = time.Time{}
	return c.epoch
}

func backoffDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	shift := failures - 1
	if shift > 5 {
		shift = 5
	}
	d := baseBackoff << uint(shift)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.loading:
		return StateLoading
	case c.now().Before(c.backoffUntil):
		return StateBackoff
	}
	return StateIdle
}

func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

func (c *Controller) ShowManualLoad() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.showManualLoad
}

func (c *Controller) Offset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

func (c *Controller) Limit() int {
	return c.limit
}

func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func (c *Controller) ConsecutiveFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveFailures
}

func (c *Controller) BackoffUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoffUntil
}
