package vkr_test

import (
	"testing"

	"github.com/danielchristiancazares/freespace2/gfx/vkr"
)

func TestDeferredReleaseTiming(t *testing.T) {
	var q vkr.DeferredReleaseQueue

	released := false
	q.Enqueue(10, func() { released = true })

	q.Collect(5)
	if released {
		t.Error("released at serial 5, entry gated on 10")
	}
	q.Collect(9)
	if released {
		t.Error("released at serial 9, entry gated on 10")
	}
	q.Collect(10)
	if !released {
		t.Error("not released at serial 10")
	}
	if q.Len() != 0 {
		t.Errorf("queue still holds %d entries", q.Len())
	}
}

func TestDeferredReleaseBatch(t *testing.T) {
	var q vkr.DeferredReleaseQueue

	var order []int
	q.Enqueue(10, func() { order = append(order, 10) })
	q.Enqueue(15, func() { order = append(order, 15) })
	q.Enqueue(20, func() { order = append(order, 20) })

	q.Collect(20)
	if len(order) != 3 {
		t.Fatalf("released %d of 3", len(order))
	}
	for i, want := range []int{10, 15, 20} {
		if order[i] != want {
			t.Errorf("release order[%d] = %d, want %d", i, order[i], want)
		}
	}
}

func TestDeferredReleasePartial(t *testing.T) {
	var q vkr.DeferredReleaseQueue

	var count int
	q.Enqueue(3, func() { count++ })
	q.Enqueue(7, func() { count++ })
	q.Enqueue(7, func() { count++ })
	q.Enqueue(12, func() { count++ })

	q.Collect(7)
	if count != 3 {
		t.Errorf("released %d, want 3", count)
	}
	if q.Len() != 1 {
		t.Errorf("queue holds %d entries, want 1", q.Len())
	}

	// A second collect at the same serial must not run anything twice.
	q.Collect(7)
	if count != 3 {
		t.Errorf("re-collect released again, count %d", count)
	}
}

func TestDeferredReleaseClear(t *testing.T) {
	var q vkr.DeferredReleaseQueue

	var count int
	q.Enqueue(100, func() { count++ })
	q.Enqueue(200, func() { count++ })

	q.Clear()
	if count != 2 {
		t.Errorf("Clear released %d, want 2", count)
	}
	if q.Len() != 0 {
		t.Error("queue not empty after Clear")
	}
}
