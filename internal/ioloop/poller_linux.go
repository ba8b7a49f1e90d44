// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

// Package ioloop provides the single-threaded, epoll/kqueue-backed poller
// that the dispatch engine multiplexes the ingress UDP socket and every
// health-connection TCP socket over.
package ioloop

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Poller is driven exclusively from the goroutine that calls PollIO: no
// callback ever runs concurrently with, or re-enters, a Wait in progress.
// Registration methods (RegisterFD/ModifyFD/UnregisterFD) are still
// synchronized for the benefit of callers outside that goroutine, but no
// poll-in-progress version guard is needed here, unlike a poller shared by
// multiple concurrent waiters.

// maxFDs bounds direct array indexing of registered file descriptors.
const maxFDs = 65536

// IOEvents is the set of I/O readiness conditions a registration may fire on.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

var (
	ErrFDOutOfRange        = errors.New("ioloop: fd out of range")
	ErrFDAlreadyRegistered = errors.New("ioloop: fd already registered")
	ErrFDNotRegistered     = errors.New("ioloop: fd not registered")
	ErrPollerClosed        = errors.New("ioloop: poller closed")
)

// IOCallback is invoked once per delivered event with the event set that
// fired. Registration is one-shot by convention: the callback is expected to
// call ModifyFD (or UnregisterFD) before returning to re-arm whatever
// interest it needs next; see dispatch.Engine for the re-arm discipline.
type IOCallback func(IOEvents)

type fdInfo struct {
	callback IOCallback
	events   IOEvents
	active   bool
}

// Poller manages FD readiness registration using epoll.
type Poller struct {
	epfd     int32
	eventBuf [256]unix.EpollEvent
	fds      [maxFDs]fdInfo
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

// Init creates the epoll instance backing the poller.
func (p *Poller) Init() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = int32(epfd)
	return nil
}

// Close closes the epoll instance.
func (p *Poller) Close() error {
	p.closed.Store(true)
	if p.epfd > 0 {
		return unix.Close(int(p.epfd))
	}
	return nil
}

// RegisterFD registers fd for the given interest set.
func (p *Poller) RegisterFD(fd int, events IOEvents, cb IOCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

// UnregisterFD removes fd from monitoring.
func (p *Poller) UnregisterFD(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()

	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_DEL, fd, nil)
}

// ModifyFD updates the interest set monitored for fd, implementing the
// one-shot re-arm discipline the dispatch engine relies on.
func (p *Poller) ModifyFD(fd int, events IOEvents) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd].events = events
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_MOD, fd, ev)
}

// PollIO blocks for up to timeoutMs milliseconds and dispatches ready events.
// A negative timeoutMs blocks indefinitely.
func (p *Poller) PollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	n, err := unix.EpollWait(int(p.epfd), p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	p.dispatchEvents(n)
	return n, nil
}

func (p *Poller) dispatchEvents(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 || fd >= maxFDs {
			continue
		}
		p.fdMu.RLock()
		info := p.fds[fd]
		p.fdMu.RUnlock()

		if info.active && info.callback != nil {
			info.callback(epollToEvents(p.eventBuf[i].Events))
		}
	}
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
