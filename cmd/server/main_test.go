package main

import (
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datetime_nexus/internal/testutil"
)

func baseArgs(t *testing.T) []string {
	t.Helper()
	t.Setenv("DATETIME_HOST", "127.0.0.1")
	return []string{"-configdir", t.TempDir(), "-port", "0"}
}

func waitExit(t *testing.T, codeCh <-chan int, within time.Duration) int {
	t.Helper()
	select {
	case code := <-codeCh:
		return code
	case <-time.After(within):
		t.Fatalf("server did not exit within %s", within)
		return -1
	}
}

func TestRun_QuitStopsServer(t *testing.T) {
	stdin, typed := io.Pipe()
	defer typed.Close()
	stderr := testutil.NewSyncBuffer()

	codeCh := make(chan int, 1)
	go func() { codeCh <- run(baseArgs(t), stdin, io.Discard, stderr) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stderr.String(), "Type 'quit'")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, stderr.String(), "Server listening on 127.0.0.1:")
	assert.Contains(t, stderr.String(), "addr=127.0.0.1:")

	_, err := io.WriteString(typed, "quit\n")
	require.NoError(t, err)

	assert.Equal(t, 0, waitExit(t, codeCh, 2*time.Second))
	out := stderr.String()
	assert.Contains(t, out, "Shutting down server...")
	assert.Contains(t, out, "Server stopped.")
}

func TestRun_QuitBeforeFirstConnection(t *testing.T) {
	stderr := testutil.NewSyncBuffer()
	codeCh := make(chan int, 1)
	go func() { codeCh <- run(baseArgs(t), strings.NewReader("QUIT\n"), io.Discard, stderr) }()

	assert.Equal(t, 0, waitExit(t, codeCh, 2*time.Second))
	assert.Contains(t, stderr.String(), "Server stopped.")
}

func TestRun_BindFailureExitsNonZero(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)

	stderr := testutil.NewSyncBuffer()
	args := []string{"-configdir", t.TempDir(), "-host", "127.0.0.1", "-port", port}
	code := run(args, strings.NewReader(""), io.Discard, stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Server bootstrap failed")
	assert.NotContains(t, stderr.String(), "Server stopped.")
}

func TestRun_BadFlag(t *testing.T) {
	stderr := testutil.NewSyncBuffer()
	assert.Equal(t, 2, run([]string{"-nope"}, strings.NewReader(""), io.Discard, stderr))
}
