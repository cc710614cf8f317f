package core

import "time"

// NewTime builds the pacing tickers for the render loop: one at the
// frame-rate cap, one at the input polling cadence.
func NewTime(cfg TimeConfiguration) Time {
	return Time{
		fps:         cfg.FramesPerSecond,
		fpsTicker:   time.NewTicker(FrameInterval(cfg.FramesPerSecond)),
		eventTicker: time.NewTicker(EventInterval(cfg.EventPollDelay)),
	}
}

// FrameInterval converts a frame-rate cap into a ticker period. Zero or
// negative means uncapped; the ticker then fires as fast as it can.
func FrameInterval(fps int) time.Duration {
	if fps <= 0 {
		return time.Nanosecond
	}
	return time.Second / time.Duration(fps)
}

// EventInterval converts the polling delay in milliseconds into a
// ticker period, clamped to at least one millisecond.
func EventInterval(delayMs int) time.Duration {
	if delayMs <= 0 {
		delayMs = 1
	}
	return time.Duration(delayMs) * time.Millisecond
}

// Time paces the render loop and input polling.
type Time struct {
	fps         int
	fpsTicker   *time.Ticker
	eventTicker *time.Ticker
}

// Fps returns the configured frame-rate cap, zero when uncapped.
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker fires once per target frame.
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// EventTicker fires at the input polling cadence.
func (t *Time) EventTicker() *time.Ticker {
	return t.eventTicker
}

// Stop halts both tickers.
func (t *Time) Stop() {
	t.fpsTicker.Stop()
	t.eventTicker.Stop()
}
