package tracking

import (
	"github.com/shtetl-dev/shtetl-browse/pkg/filters"
	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

// Tracking receives browse telemetry. Implementations must never block a
// fetch; publishing failures are logged and dropped.
type Tracking interface {
	TrackSession()
	TrackSearch(domain types.Domain, f filters.Filters, query string, page int, results int)
	Close() error
}

// NoOp is used when no broker is configured.
type NoOp struct{}

func (NoOp) TrackSession() {}

func (NoOp) TrackSearch(types.Domain, filters.Filters, string, int, int) {}

func (NoOp) Close() error { return nil }
