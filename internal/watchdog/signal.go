package watchdog

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	// SigHeartbeat tells the receiver its counterpart is alive.
	SigHeartbeat = unix.SIGUSR1
	// SigShutdown asks the watchdog to tear down.
	SigShutdown = unix.SIGUSR2
)

// Signaler sends signals to other processes and routes incoming ones.
type Signaler interface {
	Kill(pid int, sig syscall.Signal) error
	Notify(ch chan<- os.Signal, sigs ...os.Signal)
	Stop(ch chan<- os.Signal)
	// Ignore discards sigs until the next Notify for them.
	Ignore(sigs ...os.Signal)
}

// UnixSignaler uses kill(2) and os/signal.
type UnixSignaler struct{}

func (UnixSignaler) Kill(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return ErrNoPeer
	}
	return unix.Kill(pid, sig)
}

func (UnixSignaler) Notify(ch chan<- os.Signal, sigs ...os.Signal) { signal.Notify(ch, sigs...) }

func (UnixSignaler) Stop(ch chan<- os.Signal) { signal.Stop(ch) }

func (UnixSignaler) Ignore(sigs ...os.Signal) { signal.Ignore(sigs...) }
