package watchdog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// Spec describes a process to launch.
type Spec struct {
	Path string
	Args []string
	// Env is the complete child environment.
	Env []string
}

// Launcher starts processes that take part in the readiness handshake.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Process, error)
}

// Process is a launched child.
type Process interface {
	Pid() int
	// WaitReady blocks until the child posted its handshake, exited or ctx
	// is done.
	WaitReady(ctx context.Context) error
	// Wait blocks until the child exited.
	Wait() error
}

// readyFD is the descriptor number the handshake pipe gets in the child:
// ExtraFiles start right after stdin, stdout and stderr.
const readyFD = 3

// ExecLauncher starts children with os/exec and hands them the write end of
// a pipe as descriptor 3. Each child is reaped by its own goroutine.
type ExecLauncher struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (l ExecLauncher) Launch(ctx context.Context, spec Spec) (Process, error) {
	if spec.Path == "" {
		return nil, errors.New("launch: empty path")
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("launch: handshake pipe: %w", err)
	}

	// The child outlives ctx; only the handshake wait is bound to it.
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = childEnv(spec.Env, ReadyFDEnv, strconv.Itoa(readyFD))
	cmd.ExtraFiles = []*os.File{w}
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("launch %s: %w", spec.Path, err)
	}
	// Only the child holds the write end now, so its exit ends the read.
	_ = w.Close()

	p := &execProcess{cmd: cmd, ready: r, exited: make(chan struct{})}
	go p.reap()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	ready  *os.File
	exited chan struct{}
	err    error

	readyOnce sync.Once
	readyErr  error
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) reap() {
	p.err = p.cmd.Wait()
	close(p.exited)
}

func (p *execProcess) Wait() error {
	<-p.exited
	return p.err
}

func (p *execProcess) WaitReady(ctx context.Context) error {
	p.readyOnce.Do(func() { p.readyErr = p.waitReady(ctx) })
	return p.readyErr
}

func (p *execProcess) waitReady(ctx context.Context) error {
	defer p.ready.Close()

	got := make(chan error, 1)
	go func() {
		var b [1]byte
		_, err := p.ready.Read(b[:])
		got <- err
	}()

	select {
	case err := <-got:
		if err != nil {
			return fmt.Errorf("%w: pid %d: %v", ErrNotReady, p.Pid(), err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: pid %d: %v", ErrNotReady, p.Pid(), ctx.Err())
	}
}
