package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestWaitReportsReadableFd(t *testing.T) {
	r, err := New(8)
	require.NoError(t, err)
	defer r.Close()

	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	require.NoError(t, r.AddFd(fds[0], unix.EPOLLIN))

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	n, err := r.Wait(1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, fds[0], r.EventFd(0))
	require.NotZero(t, r.Events(0)&unix.EPOLLIN)
}

func TestDelFdStopsNotifications(t *testing.T) {
	r, err := New(8)
	require.NoError(t, err)
	defer r.Close()

	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	require.NoError(t, r.AddFd(fds[0], unix.EPOLLIN))
	require.NoError(t, r.DelFd(fds[0]))

	unix.Write(fds[1], []byte("x"))
	n, err := r.Wait(50)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
