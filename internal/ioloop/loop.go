package ioloop

import (
	"context"
	"time"
)

// Loop drives a single poller in a blocking Run call. It has no fast path,
// promise machinery, or cross-goroutine submission queue: every registration
// and every tick callback executes on the goroutine that calls Run, matching
// the dispatch engine's single-threaded-per-worker concurrency model (see
// internal/dispatch).
type Loop struct {
	poller   Poller
	nextTick time.Time
	tickFn   func()
	interval time.Duration
}

// New creates and initializes a Loop backed by the platform poller.
func New() (*Loop, error) {
	l := &Loop{}
	if err := l.poller.Init(); err != nil {
		return nil, err
	}
	return l, nil
}

// RegisterFD registers fd for events, invoking cb on readiness. See
// ioloop.IOCallback for the one-shot re-arm contract callbacks must honor.
func (l *Loop) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	return l.poller.RegisterFD(fd, events, cb)
}

// UnregisterFD removes fd from monitoring.
func (l *Loop) UnregisterFD(fd int) error {
	return l.poller.UnregisterFD(fd)
}

// ModifyFD updates the interest set monitored for fd.
func (l *Loop) ModifyFD(fd int, events IOEvents) error {
	return l.poller.ModifyFD(fd, events)
}

// Close releases the poller's underlying resources.
func (l *Loop) Close() error {
	return l.poller.Close()
}

// ScheduleTick arms a single recurring callback, fired every interval. Each
// firing re-arms the next deadline as time.Now()+interval (absolute re-arm,
// not drift-compensated), matching the dispatch engine's tick policy.
func (l *Loop) ScheduleTick(interval time.Duration, fn func()) {
	l.interval = interval
	l.tickFn = fn
	l.nextTick = time.Now().Add(interval)
}

// Run polls for I/O and fires the scheduled tick until ctx is done or a
// poll error occurs.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		timeoutMs := l.calculateTimeout()
		if _, err := l.poller.PollIO(timeoutMs); err != nil {
			return err
		}

		if l.tickFn != nil && !l.nextTick.After(time.Now()) {
			l.tickFn()
			l.nextTick = time.Now().Add(l.interval)
		}
	}
}

// calculateTimeout bounds the next PollIO call by the time remaining until
// the scheduled tick, capped at 10s so ctx cancellation is still noticed
// promptly even with a long check_interval.
func (l *Loop) calculateTimeout() int {
	maxDelay := 10 * time.Second

	if l.tickFn != nil {
		delay := time.Until(l.nextTick)
		if delay < 0 {
			delay = 0
		}
		if delay < maxDelay {
			maxDelay = delay
		}
	}

	if maxDelay > 0 && maxDelay < time.Millisecond {
		return 1
	}
	return int(maxDelay.Milliseconds())
}
