package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func entry(msg string) zapcore.Entry {
	return zapcore.Entry{Level: zapcore.InfoLevel, Time: time.Now(), Message: msg}
}

func TestRingKeepsInsertionOrder(t *testing.T) {
	r := NewRing(3)
	r.Add(entry("a"))
	r.Add(entry("b"))

	lines := r.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].Message)
	assert.Equal(t, "b", lines[1].Message)
	assert.Equal(t, "info", lines[0].Level)
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing(3)
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		r.Add(entry(m))
	}

	lines := r.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"c", "d", "e"}, []string{lines[0].Message, lines[1].Message, lines[2].Message})
}

func TestRingClear(t *testing.T) {
	r := NewRing(2)
	r.Add(entry("a"))
	r.Add(entry("b"))
	r.Add(entry("c"))
	r.Clear()

	assert.Empty(t, r.Lines())
	r.Add(entry("d"))
	require.Len(t, r.Lines(), 1)
	assert.Equal(t, "d", r.Lines()[0].Message)
}
