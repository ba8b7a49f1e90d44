// Package health implements the per-backend TCP probe state machine:
// connect -> send probe -> read reply -> classify -> re-arm. Verdicts
// (failure/success counters) are consumed by the dispatch engine's tick
// handler, which owns ring membership; the FSM itself never touches the
// ring.
package health

import (
	"bytes"
	"time"

	"github.com/maralla/udphashproxy/internal/backend"
	"github.com/maralla/udphashproxy/internal/ioloop"
	"github.com/maralla/udphashproxy/internal/sock"
)

// probeBufSize is the fixed receive buffer size per health connection.
const probeBufSize = 1024

// readAccumulateDeadline bounds how long a Reading-state connection may
// accumulate partial reply bytes before the tick forces a classification.
// This addresses the "probe framing" open question: a reply whose
// "health: up" marker is split across TCP segments must still be read in
// full rather than misclassified off the first short read.
const readAccumulateDeadline = 2 * time.Second

var (
	healthProbe    = []byte("health\r\n")
	healthUpPrefix = []byte("health: up")
)

// State is one state of the per-backend probe FSM.
type State int

const (
	// StateClosed is both the initial state and the state reached after
	// any probe error; the next tick rebuilds the socket from here.
	StateClosed State = iota
	StateConnecting
	StateReading
	StateWriting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateReading:
		return "reading"
	case StateWriting:
		return "writing"
	default:
		return "unknown"
	}
}

// Connection is the mutable per-backend health-probe record. It is owned
// solely by one dispatch engine and must only be touched from that engine's
// goroutine.
type Connection struct {
	Backend *backend.Backend
	Token   int

	stream *sock.TCPStream
	State  State

	FailureCount int
	SuccessCount int
	LastReset    time.Time

	buf         [probeBufSize]byte
	bufLen      int
	readStarted time.Time

	// OnVerdict, if set, is invoked with each classified probe reply before
	// the counters it just updated are observed by the dispatch engine.
	OnVerdict func(success bool)
}

// New creates a health connection for b, registered under token. It starts
// Closed; the dispatch engine's first tick rebuilds the socket and begins
// probing.
func New(b *backend.Backend, token int) *Connection {
	return &Connection{
		Backend:   b,
		Token:     token,
		State:     StateClosed,
		LastReset: time.Now(),
	}
}

// FD returns the current stream's file descriptor, or -1 if the connection
// is Closed.
func (c *Connection) FD() int {
	if c.stream == nil {
		return -1
	}
	return c.stream.FD
}

// Reconnect opens a fresh TCP socket to the backend's admin port and
// registers it for writable readiness, transitioning Closed -> Connecting. A
// synchronous dial failure (e.g. connection refused) counts as a probe
// failure, the same as a failure discovered after connecting: otherwise a
// backend whose admin port refuses connections outright would sit at
// FailureCount 0 forever and never get evicted.
// Called by the dispatch engine's tick handler when it finds this
// connection Closed.
func (c *Connection) Reconnect(loop *ioloop.Loop) error {
	stream, err := sock.DialTCP(c.Backend.Host, c.Backend.AdminPort)
	if err != nil {
		c.FailureCount++
		return err
	}
	c.stream = stream
	c.bufLen = 0
	c.State = StateConnecting

	return loop.RegisterFD(stream.FD, ioloop.EventWrite|ioloop.EventError|ioloop.EventHangup, func(events ioloop.IOEvents) {
		c.onEvent(loop, events)
	})
}

// AdvanceOnTick performs the single FSM transition driven by the tick
// itself rather than by I/O readiness: a connection sitting in Writing
// state sends its next probe now and re-arms for the reply.
func (c *Connection) AdvanceOnTick(loop *ioloop.Loop) {
	if c.State != StateWriting {
		return
	}
	c.writeProbe(loop)
}

func (c *Connection) writeProbe(loop *ioloop.Loop) {
	if _, err := c.stream.Send(healthProbe); err != nil && err != sock.ErrNotReady {
		c.onFailure(loop)
		return
	}
	c.bufLen = 0
	c.readStarted = time.Now()
	c.State = StateReading
	_ = loop.ModifyFD(c.stream.FD, ioloop.EventRead|ioloop.EventError|ioloop.EventHangup)
}

func (c *Connection) onEvent(loop *ioloop.Loop, events ioloop.IOEvents) {
	if events&(ioloop.EventError|ioloop.EventHangup) != 0 {
		c.onFailure(loop)
		return
	}

	switch c.State {
	case StateConnecting:
		if events&ioloop.EventWrite != 0 {
			c.writeProbe(loop)
		}
	case StateReading:
		if events&ioloop.EventRead != 0 {
			c.onReadable(loop)
		}
	case StateWriting:
		// No readiness transition is defined for Writing: the next probe
		// is only sent on a tick (see AdvanceOnTick), so a writable event
		// here is simply ignored.
	case StateClosed:
		// A stale event for an already-shutdown socket; ignore.
	}
}

// onReadable accumulates one read into buf and classifies once either the
// buffer fills or a newline-delimited reply is seen.
func (c *Connection) onReadable(loop *ioloop.Loop) {
	n, err := c.stream.Recv(c.buf[c.bufLen:])
	if err != nil {
		if err == sock.ErrNotReady {
			return
		}
		c.onFailure(loop)
		return
	}
	if n == 0 {
		// EOF read of 0 bytes: treat as not-ready, not a verdict. A real
		// peer close is detected via EventHangup/EventError instead.
		if time.Since(c.readStarted) > readAccumulateDeadline {
			c.classify(loop)
		}
		return
	}

	c.bufLen += n
	if bytes.IndexByte(c.buf[:c.bufLen], '\n') >= 0 ||
		c.bufLen >= len(c.buf) ||
		time.Since(c.readStarted) > readAccumulateDeadline {
		c.classify(loop)
		return
	}
	// Still short of a full line: stay in Reading, re-armed for more.
	_ = loop.ModifyFD(c.stream.FD, ioloop.EventRead|ioloop.EventError|ioloop.EventHangup)
}

func (c *Connection) classify(loop *ioloop.Loop) {
	success := bytes.HasPrefix(c.buf[:c.bufLen], healthUpPrefix)
	if success {
		c.SuccessCount++
	} else {
		c.FailureCount++
	}
	if c.OnVerdict != nil {
		c.OnVerdict(success)
	}
	c.State = StateWriting
	// No read or write interest while idle in Writing: the admin socket is
	// level-triggered, and a connected idle TCP socket is always writable,
	// so registering EventWrite here would fire on every poll until the next
	// tick. AdvanceOnTick writes the next probe directly; only hang-up/error
	// need to wake the loop early.
	_ = loop.ModifyFD(c.stream.FD, ioloop.EventError|ioloop.EventHangup)
}

func (c *Connection) onFailure(loop *ioloop.Loop) {
	c.FailureCount++
	c.shutdown(loop)
}

func (c *Connection) shutdown(loop *ioloop.Loop) {
	if c.stream == nil {
		return
	}
	_ = c.stream.Shutdown()
	_ = loop.UnregisterFD(c.stream.FD)
	_ = c.stream.Close()
	c.stream = nil
	c.State = StateClosed
}

// ForceClose closes the underlying socket, if any, without touching the
// loop's registration table. Used during worker shutdown, when the poller
// itself is being torn down immediately afterwards.
func (c *Connection) ForceClose() {
	if c.stream == nil {
		return
	}
	_ = c.stream.Shutdown()
	_ = c.stream.Close()
	c.stream = nil
	c.State = StateClosed
}
