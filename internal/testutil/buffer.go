// Package testutil holds helpers shared by package tests. Nothing outside
// _test.go files imports it.
package testutil

import (
	"bytes"
	"strings"
	"sync"
)

// SyncBuffer is a bytes.Buffer safe for concurrent writers, used as a log
// sink where several goroutines share one logger.
type SyncBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func NewSyncBuffer() *SyncBuffer {
	return &SyncBuffer{}
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String returns a copy of everything written so far.
func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Lines splits the content on newlines, dropping the trailing empty line.
func (b *SyncBuffer) Lines() []string {
	s := strings.TrimRight(b.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func (b *SyncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.b.Reset()
}
