package core_test

import (
	"testing"
	"time"

	"github.com/danielchristiancazares/freespace2/core"
)

func TestFrameInterval(t *testing.T) {
	if got := core.FrameInterval(60); got != time.Second/60 {
		t.Errorf("60 fps interval = %v", got)
	}
	if got := core.FrameInterval(0); got != time.Nanosecond {
		t.Errorf("uncapped interval = %v, want 1ns", got)
	}
	if got := core.FrameInterval(-5); got != time.Nanosecond {
		t.Errorf("negative cap interval = %v, want 1ns", got)
	}
}

func TestEventInterval(t *testing.T) {
	if got := core.EventInterval(5); got != 5*time.Millisecond {
		t.Errorf("5ms delay interval = %v", got)
	}
	if got := core.EventInterval(0); got != time.Millisecond {
		t.Errorf("zero delay interval = %v, want 1ms", got)
	}
}

func TestNewTimeTickers(t *testing.T) {
	clock := core.NewTime(core.TimeConfiguration{FramesPerSecond: 60, EventPollDelay: 5})
	defer clock.Stop()

	if clock.Fps() != 60 {
		t.Errorf("fps = %d, want 60", clock.Fps())
	}
	if clock.FpsTicker() == nil || clock.EventTicker() == nil {
		t.Fatal("tickers not initialized")
	}
}
