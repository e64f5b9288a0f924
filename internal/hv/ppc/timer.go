package ppc

import (
	"sync"
	"time"
)

// WatchdogAction is what happens to a partition when its watchdog timer
// expires without being kicked, per the partition's configured policy.
type WatchdogAction uint8

const (
	WatchdogNotify WatchdogAction = iota // deliver a VPIC/error-queue event only
	WatchdogStop                          // stop the partition
	WatchdogReset                         // restart the partition
)

// TimerEvents is the set of callbacks the Timer block raises events
// through; normally *GuestCPU.Raise plus a partition-level watchdog
// action callback, kept as an interface so timer.go has no import-time
// dependency on the partition package.
type TimerEvents interface {
	Raise(ev GuestEvent)
	Watchdog(action WatchdogAction)
}

// Timer emulates one vCPU's decrementer, fixed-interval timer, and
// watchdog, all of which on e500mc hardware are just down-counters clocked
// off the time base that raise an interrupt at zero. Running them as Go
// timers rather than trapping on every guest read of TBL/TBU keeps the
// guest's view of elapsed time accurate without forcing a trap per tick.
type Timer struct {
	mu sync.Mutex

	events TimerEvents

	dec     *time.Timer
	fit     *time.Timer
	wdog    *time.Timer
	wdogAction WatchdogAction

	stopped bool
}

// NewTimer returns a Timer with no counters yet armed.
func NewTimer(events TimerEvents) *Timer {
	return &Timer{events: events}
}

// SetDecrementer arms the decrementer to fire once after d, matching a
// guest mtspr to DEC. Writing a new value always replaces any pending
// fire, matching real Book-E semantics (DEC is a simple down-counter, not
// a retriggering timer).
func (t *Timer) SetDecrementer(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if t.dec != nil {
		t.dec.Stop()
	}
	t.dec = time.AfterFunc(d, func() { t.events.Raise(EventDecrementer) })
}

// SetFIT arms the fixed-interval timer, which (unlike DEC) auto-reloads
// from the configured period on every fire.
func (t *Timer) SetFIT(period time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if t.fit != nil {
		t.fit.Stop()
	}
	if period <= 0 {
		t.fit = nil
		return
	}
	var arm func()
	arm = func() {
		t.events.Raise(EventFIT)
		t.mu.Lock()
		if !t.stopped {
			t.fit = time.AfterFunc(period, arm)
		}
		t.mu.Unlock()
	}
	t.fit = time.AfterFunc(period, arm)
}

// ArmWatchdog starts (or restarts, on a Kick) the watchdog with the given
// timeout and configured expiry action.
func (t *Timer) ArmWatchdog(timeout time.Duration, action WatchdogAction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wdogAction = action
	if t.stopped {
		return
	}
	if t.wdog != nil {
		t.wdog.Stop()
	}
	t.wdog = time.AfterFunc(timeout, func() {
		t.events.Raise(EventWatchdog)
		t.events.Watchdog(action)
	})
}

// Kick restarts the watchdog's countdown with the given timeout, keeping
// its configured action, matching a guest's periodic watchdog-service
// hypercall.
func (t *Timer) Kick(timeout time.Duration) {
	t.mu.Lock()
	action := t.wdogAction
	t.mu.Unlock()
	t.ArmWatchdog(timeout, action)
}

// Stop cancels every armed counter, e.g. when the owning vCPU's partition
// is stopped.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for _, tm := range []*time.Timer{t.dec, t.fit, t.wdog} {
		if tm != nil {
			tm.Stop()
		}
	}
}
