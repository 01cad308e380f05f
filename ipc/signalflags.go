//go:build linux

package ipc

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// SignalFlags tracks process signals the server must notice between epoll
// wakeups — Go delivers them asynchronously to a channel, but the router's
// event loop checkpoints them synchronously once per Wait (§6's "SIGCHLD,
// SIGINT, SIGHUP, and SIGQUIT are polled at the top of every iteration").
type SignalFlags struct {
	Child     atomic.Bool
	Interrupt atomic.Bool
	Hangup    atomic.Bool
	Quit      atomic.Bool

	ch chan os.Signal
}

// NewSignalFlags starts relaying SIGCHLD, SIGINT, SIGHUP, and SIGQUIT into
// the returned SignalFlags. Call Stop to release the underlying channel.
func NewSignalFlags() *SignalFlags {
	f := &SignalFlags{ch: make(chan os.Signal, 16)}
	signal.Notify(f.ch, syscall.SIGCHLD, syscall.SIGINT, syscall.SIGHUP, syscall.SIGQUIT)
	go f.run()
	return f
}

func (f *SignalFlags) run() {
	for sig := range f.ch {
		switch sig {
		case syscall.SIGCHLD:
			f.Child.Store(true)
		case syscall.SIGINT:
			f.Interrupt.Store(true)
		case syscall.SIGHUP:
			f.Hangup.Store(true)
		case syscall.SIGQUIT:
			f.Quit.Store(true)
		}
	}
}

// Stop stops relaying signals and releases the channel. Previously set
// flags remain readable.
func (f *SignalFlags) Stop() {
	signal.Stop(f.ch)
	close(f.ch)
}

// TakeChild reports whether SIGCHLD has fired since the last TakeChild call,
// clearing the flag atomically.
func (f *SignalFlags) TakeChild() bool {
	return f.Child.Swap(false)
}

// TakeShutdown reports whether any of SIGINT, SIGHUP, or SIGQUIT has fired
// since the last TakeShutdown call, clearing all three atomically.
func (f *SignalFlags) TakeShutdown() bool {
	i := f.Interrupt.Swap(false)
	h := f.Hangup.Swap(false)
	q := f.Quit.Swap(false)
	return i || h || q
}
