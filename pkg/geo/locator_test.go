package geo

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestStaticWatch_DeliversOneFix(t *testing.T) {
	s := &Static{Pos: Position{Point: Point{Lat: 40.66, Lng: -73.94}}}
	got := make(chan Position, 1)
	stop := s.Watch(func(pos Position, err error) {
		if err != nil {
			t.Errorf("unexpected error %v", err)
		}
		got <- pos
	})
	defer stop()

	select {
	case pos := <-got:
		if pos.Lat != 40.66 {
			t.Errorf("unexpected fix %+v", pos)
		}
	case <-time.After(time.Second):
		t.Fatal("no fix delivered")
	}
}

func TestStaticWatch_NoDeliveryAfterStopReturns(t *testing.T) {
	for i := 0; i < 200; i++ {
		var calls atomic.Int32
		s := &Static{Pos: Position{Point: Point{Lat: 1, Lng: 2}}}
		stop := s.Watch(func(Position, error) { calls.Add(1) })
		stop()
		settled := calls.Load()
		time.Sleep(time.Millisecond)
		if calls.Load() != settled {
			t.Fatal("fix delivered after stop returned")
		}
		stop()
	}
}
