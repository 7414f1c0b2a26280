package workflow

import (
	"sync"
	"time"
)

// DefaultRatingDebounce is the quiet period before a changed prompt is sent
// for rating. Matches the original UI behaviour.
const DefaultRatingDebounce = 500 * time.Millisecond

// Debouncer delays a callback until the trigger has been quiet for the
// configured period. Every Trigger restarts the timer; only the last
// scheduled callback runs.
type Debouncer struct {
	mu    sync.Mutex
	quiet time.Duration
	timer *time.Timer
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(quiet time.Duration) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultRatingDebounce
	}
	return &Debouncer{quiet: quiet}
}

// Trigger schedules fn after the quiet period, cancelling any previously
// scheduled callback. fn runs on a timer goroutine.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, fn)
}

// Stop cancels any pending callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
