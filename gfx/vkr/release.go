package vkr

// DeferredReleaseQueue collects release closures for device objects that
// may still be referenced by in-flight GPU work. Every entry carries the
// submit serial of the last command buffer that could reference it; the
// closure runs once the GPU has provably passed that serial.
//
// Every component that retires device objects owns one of these and is
// driven by the renderer with the completed serial once per frame.
type DeferredReleaseQueue struct {
	pending []deferredRelease
}

type deferredRelease struct {
	serial  uint64
	release func()
}

// Enqueue schedules release to run once the completed serial reaches serial.
// Release closures must not fail; they run during frame setup and shutdown.
func (q *DeferredReleaseQueue) Enqueue(serial uint64, release func()) {
	q.pending = append(q.pending, deferredRelease{serial: serial, release: release})
}

// Collect runs and removes every entry whose serial is at or below
// completedSerial, preserving enqueue order. Later entries stay put.
func (q *DeferredReleaseQueue) Collect(completedSerial uint64) {
	kept := q.pending[:0]
	for _, entry := range q.pending {
		if entry.serial <= completedSerial {
			entry.release()
		} else {
			kept = append(kept, entry)
		}
	}
	// Drop released closures so they cannot be retained.
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = deferredRelease{}
	}
	q.pending = kept
}

// Clear runs every pending release immediately. Only valid once the device
// is idle, on the shutdown path.
func (q *DeferredReleaseQueue) Clear() {
	for _, entry := range q.pending {
		entry.release()
	}
	q.pending = nil
}

// Len reports the number of pending releases.
func (q *DeferredReleaseQueue) Len() int {
	return len(q.pending)
}
