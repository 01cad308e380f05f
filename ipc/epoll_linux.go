//go:build linux

package ipc

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// MaxEpollEvents bounds how many ready events a single epoll_wait call
// drains before returning control to the caller.
const MaxEpollEvents = 64

// epollDesc describes a file descriptor registered with an Epoll.
type epollDesc struct {
	fd       int
	events   uint32
	callback func(uint32)
}

// Epoll multiplexes readiness across the request pipes the router watches
// and the broadcast pipe plus shared-region event counters the controller's
// Waiter watches, both via a single kernel wait per iteration.
type Epoll struct {
	epfd   int
	wakefd int

	mu      sync.Mutex
	fds     map[int]*epollDesc
	running bool
	done    chan struct{}
}

// NewEpoll creates an epoll instance with an internal eventfd registered so
// that a blocked Wait can always be interrupted by Wake.
func NewEpoll() (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	p := &Epoll{
		epfd:   epfd,
		wakefd: wakefd,
		fds:    make(map[int]*epollDesc),
		done:   make(chan struct{}),
	}

	if err := p.Add(wakefd, unix.EPOLLIN, nil); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}

	return p, nil
}

// Close shuts down the epoll and wake file descriptors.
func (p *Epoll) Close() error {
	p.mu.Lock()
	if p.running {
		close(p.done)
		p.wakeLocked()
	}
	p.mu.Unlock()

	var err error
	if p.wakefd >= 0 {
		if cerr := unix.Close(p.wakefd); cerr != nil {
			err = cerr
		}
	}
	if p.epfd >= 0 {
		if cerr := unix.Close(p.epfd); cerr != nil {
			err = cerr
		}
	}
	return err
}

// Add registers fd for the given event mask. callback, if non-nil, is
// invoked from Wait/Run with the ready event mask when fd becomes actionable.
func (p *Epoll) Add(fd int, events uint32, callback func(uint32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	event := unix.EpollEvent{Events: events, Fd: int32(fd)}

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return err
	}

	p.fds[fd] = &epollDesc{fd: fd, events: events, callback: callback}
	return nil
}

// Mod changes the event mask for an already-registered fd.
func (p *Epoll) Mod(fd int, events uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	desc, ok := p.fds[fd]
	if !ok {
		return unix.ENOENT
	}

	event := unix.EpollEvent{Events: events, Fd: int32(fd)}

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &event); err != nil {
		return err
	}

	desc.events = events
	return nil
}

// Remove unregisters fd.
func (p *Epoll) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.fds, fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wake interrupts a blocked Wait/Run, used when a new fd needs registering
// or on shutdown.
func (p *Epoll) Wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wakeLocked()
}

func (p *Epoll) wakeLocked() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wakefd, buf[:])
	return err
}

// Wait performs one epoll_wait iteration, invoking the callback of every fd
// that became ready, and reports how many callbacks ran. timeout <0 blocks
// indefinitely; 0 polls without blocking. EINTR is retried transparently.
func (p *Epoll) Wait(timeout time.Duration) (int, error) {
	var events [MaxEpollEvents]unix.EpollEvent

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	for {
		n, err := unix.EpollWait(p.epfd, events[:], ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}

		processed := 0
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			evts := events[i].Events

			if fd == p.wakefd {
				var buf [8]byte
				unix.Read(p.wakefd, buf[:])
				continue
			}

			p.mu.Lock()
			desc, ok := p.fds[fd]
			p.mu.Unlock()

			if ok && desc.callback != nil {
				desc.callback(evts)
				processed++
			}
		}
		return processed, nil
	}
}

// Run loops Wait with an infinite timeout until Close is called.
func (p *Epoll) Run() error {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for {
		select {
		case <-p.done:
			return nil
		default:
		}

		if _, err := p.Wait(-1); err != nil {
			return err
		}
	}
}
