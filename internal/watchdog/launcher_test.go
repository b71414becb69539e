package watchdog

import (
	"context"
	"io"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func requireShell(t *testing.T) string {
	t.Helper()
	const sh = "/bin/sh"
	if _, err := os.Stat(sh); err != nil {
		t.Skip("no /bin/sh available")
	}
	return sh
}

func TestExecLauncherHandshake(t *testing.T) {
	sh := requireShell(t)
	tests := []struct {
		name    string
		script  string
		wantErr bool
	}{
		{name: "posts", script: `[ "$WD_READY_FD" = 3 ] && printf x >&3`},
		{name: "exits_silently", script: `exit 0`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ExecLauncher{Stdout: io.Discard, Stderr: io.Discard}
			p, err := l.Launch(context.Background(), Spec{Path: sh, Args: []string{"-c", tt.script}, Env: os.Environ()})
			require.NoError(t, err)
			assert.Positive(t, p.Pid())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = p.WaitReady(ctx)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotReady)
			} else {
				assert.NoError(t, err)
			}
			_ = p.Wait()
		})
	}
}

func TestExecLauncherHandshakeTimeout(t *testing.T) {
	sh := requireShell(t)
	l := ExecLauncher{}
	p, err := l.Launch(context.Background(), Spec{Path: sh, Args: []string{"-c", "exec sleep 5"}, Env: os.Environ()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Kill(p.Pid(), unix.SIGKILL)
		_ = p.Wait()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitReady(ctx), ErrNotReady)
}

func TestExecLauncherMissingBinary(t *testing.T) {
	_, err := ExecLauncher{}.Launch(context.Background(), Spec{Path: "/nonexistent/wd"})
	assert.Error(t, err)
	_, err = ExecLauncher{}.Launch(context.Background(), Spec{})
	assert.Error(t, err)
}

func TestHandshakePost(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	fd, err := unix.Dup(int(w.Fd()))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	env := newFakeEnv(ReadyFDEnv, strconv.Itoa(fd))
	hs, err := HandshakeFromEnv(env)
	require.NoError(t, err)
	_, ok := env.Lookup(ReadyFDEnv)
	assert.False(t, ok, "descriptor variable is consumed")

	require.NoError(t, hs.Post())
	require.NoError(t, hs.Post(), "second post is a no-op")

	buf := make([]byte, 2)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF, "write end closed after post")
}

func TestHandshakeWithoutDescriptor(t *testing.T) {
	hs, err := HandshakeFromEnv(newFakeEnv())
	require.NoError(t, err)
	assert.NoError(t, hs.Post())
	assert.NoError(t, hs.Close())

	_, err = HandshakeFromEnv(newFakeEnv(ReadyFDEnv, "x"))
	assert.Error(t, err)
}
