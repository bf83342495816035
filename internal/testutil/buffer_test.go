package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncBuffer_Lines(t *testing.T) {
	b := NewSyncBuffer()
	assert.Nil(t, b.Lines())
	_, _ = b.Write([]byte("one\ntwo\n"))
	assert.Equal(t, []string{"one", "two"}, b.Lines())
	b.Reset()
	assert.Empty(t, b.String())
}
