package geo

import (
	"context"
	"sync"
	"time"
)

// Position is one device location fix.
type Position struct {
	Point
	Accuracy float64
	At       time.Time
}

// Provider supplies the device position. Current blocks until a fix arrives
// or the context ends. Watch delivers fixes (or a GeolocationError) to fn
// until the returned stop function is called; stop is safe to call more than
// once and must be called on teardown regardless of exit path.
type Provider interface {
	Current(ctx context.Context) (Position, error)
	Watch(fn func(Position, error)) (stop func())
}

// Static is a fixed-position provider used by the CLI and in tests. Err, when
// set, simulates a denied or unavailable geolocation.
type Static struct {
	Pos Position
	Err error
}

func (s *Static) Current(ctx context.Context) (Position, error) {
	if s.Err != nil {
		return Position{}, s.Err
	}
	return s.Pos, nil
}

func (s *Static) Watch(fn func(Position, error)) (stop func()) {
	var mu sync.Mutex
	stopped := false
	go func() {
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			fn(s.Pos, s.Err)
		}
	}()
	// Stop takes the same lock the delivery holds: once it returns, fn has
	// either already run or never will.
	return func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
	}
}
