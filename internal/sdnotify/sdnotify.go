// Package sdnotify reports watchdog lifecycle changes to systemd.
//
// Outside a systemd unit NOTIFY_SOCKET is unset and every call is a no-op.
package sdnotify

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

type Notifier struct {
	enabled bool
	send    func(state string) (bool, error)
}

func New(enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		send:    func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) notify(state string) error {
	if n == nil || !n.enabled {
		return nil
	}
	_, err := n.send(state)
	return err
}

func (n *Notifier) Ready() error    { return n.notify(daemon.SdNotifyReady) }
func (n *Notifier) Watchdog() error { return n.notify(daemon.SdNotifyWatchdog) }
func (n *Notifier) Stopping() error { return n.notify(daemon.SdNotifyStopping) }
