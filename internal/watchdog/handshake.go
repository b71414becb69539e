package watchdog

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Handshake is the child side of the readiness protocol.
type Handshake struct {
	mu sync.Mutex
	f  *os.File
}

// HandshakeFromEnv opens the descriptor named by ReadyFDEnv and removes the
// variable so it does not leak into grandchildren. It returns an inert
// handshake when nothing was inherited.
func HandshakeFromEnv(env Environment) (*Handshake, error) {
	v, ok := env.Lookup(ReadyFDEnv)
	if !ok || v == "" {
		return &Handshake{}, nil
	}
	_ = env.Unset(ReadyFDEnv)
	fd, err := strconv.Atoi(v)
	if err != nil || fd < 0 {
		return &Handshake{}, fmt.Errorf("watchdog: bad %s=%q", ReadyFDEnv, v)
	}
	return &Handshake{f: os.NewFile(uintptr(fd), "wd-ready")}, nil
}

// Post tells the parent this process is ready. Only the first call writes.
func (h *Handshake) Post() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.f == nil {
		return nil
	}
	_, err := h.f.Write([]byte{1})
	_ = h.f.Close()
	h.f = nil
	return err
}

// Close releases the descriptor without posting.
func (h *Handshake) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.f == nil {
		return nil
	}
	err := h.f.Close()
	h.f = nil
	return err
}
