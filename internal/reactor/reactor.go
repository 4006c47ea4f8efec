// Package reactor is a thin, non-allocating wrapper over epoll, the
// multiplexor the connection engine polls for read/write/hangup readiness.
package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/tinywebd/internal/constants"
)

// Reactor wraps one epoll instance.
type Reactor struct {
	epfd   int
	events []unix.EpollEvent
}

// New creates a Reactor whose Wait call returns at most maxEvents at a
// time.
func New(maxEvents int) (*Reactor, error) {
	if maxEvents <= 0 {
		maxEvents = constants.DefaultEpollMaxEvents
	}
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Reactor{epfd: fd, events: make([]unix.EpollEvent, maxEvents)}, nil
}

// AddFd registers fd for the given event mask (e.g. unix.EPOLLIN|unix.EPOLLET).
func (r *Reactor) AddFd(fd int, events uint32) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: events}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// ModFd changes the event mask for an already-registered fd.
func (r *Reactor) ModFd(fd int, events uint32) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: events}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// DelFd deregisters fd.
func (r *Reactor) DelFd(fd int) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until at least one registered fd is ready or timeoutMs
// elapses (-1 disables the timeout). It returns the number of
// ready events, accessible via EventFd/Events.
func (r *Reactor) Wait(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(r.epfd, r.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// EventFd returns the fd associated with the i-th ready event from the last
// Wait call.
func (r *Reactor) EventFd(i int) int { return int(r.events[i].Fd) }

// Events returns the event mask of the i-th ready event from the last Wait
// call.
func (r *Reactor) Events(i int) uint32 { return r.events[i].Events }

// Close releases the underlying epoll fd.
func (r *Reactor) Close() error {
	return unix.Close(r.epfd)
}
