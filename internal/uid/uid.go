// Package uid generates identifiers that are unique per host, process, time
// and call sequence.
package uid

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// ErrNoAddress is returned when no IPv4 address could be read from the
// local network interfaces.
var ErrNoAddress = errors.New("uid: no ipv4 address available")

// UID identifies a scheduled unit of work.
//
// The zero value is the Bad sentinel.
type UID struct {
	Seq       uint64
	CreatedAt int64 // unix seconds
	PID       int
	Host      string
}

// Bad is the invalid identifier returned on generation failure.
var Bad = UID{}

// IsSame reports whether a and b are equal in every field.
func IsSame(a, b UID) bool {
	return a.Seq == b.Seq &&
		a.CreatedAt == b.CreatedAt &&
		a.PID == b.PID &&
		a.Host == b.Host
}

// Equal is the method form of IsSame.
func (u UID) Equal(other UID) bool { return IsSame(u, other) }

// IsBad reports whether u is the sentinel.
func (u UID) IsBad() bool { return IsSame(u, Bad) }

func (u UID) String() string {
	if u.IsBad() {
		return "bad-uid"
	}
	return fmt.Sprintf("%d-%d-%d@%s", u.Seq, u.CreatedAt, u.PID, u.Host)
}

// Generator produces UIDs. Create is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	counter uint64

	now    func() time.Time
	pid    func() int
	lookup func() (string, error)
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithNow overrides the time source.
func WithNow(fn func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if fn != nil {
			g.now = fn
		}
	}
}

// WithPID overrides the process id source.
func WithPID(fn func() int) GeneratorOption {
	return func(g *Generator) {
		if fn != nil {
			g.pid = fn
		}
	}
}

// WithAddressLookup overrides the host address lookup.
func WithAddressLookup(fn func() (string, error)) GeneratorOption {
	return func(g *Generator) {
		if fn != nil {
			g.lookup = fn
		}
	}
}

func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		now:    time.Now,
		pid:    os.Getpid,
		lookup: LocalIPv4,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Create returns a new UID, or Bad and an error if the host address could
// not be read. The counter is only consumed on success.
func (g *Generator) Create() (UID, error) {
	host, err := g.lookup()
	if err != nil {
		return Bad, err
	}
	if host == "" {
		return Bad, ErrNoAddress
	}

	g.mu.Lock()
	seq := g.counter
	g.counter++
	g.mu.Unlock()

	return UID{
		Seq:       seq,
		CreatedAt: g.now().Unix(),
		PID:       g.pid(),
		Host:      host,
	}, nil
}

// LocalIPv4 returns the first IPv4 address found on the local interfaces.
// Loopback addresses qualify.
func LocalIPv4() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("uid: interface addrs: %w", err)
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", ErrNoAddress
}
