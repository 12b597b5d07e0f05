package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLazyLogger_FollowsOutput(t *testing.T) {
	defer SetLevels(Levels{Default: slog.LevelInfo})

	log := Logger("test")

	buf := &bytes.Buffer{}
	SetOutput(buf)

	log.Info("after switch", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "after switch")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "component=test")
}

func TestLazyLogger_ComponentLevel(t *testing.T) {
	defer SetLevels(Levels{Default: slog.LevelInfo})

	buf := &bytes.Buffer{}
	SetOutput(buf)
	SetLevels(ParseLevels("net=debug,warn"))

	Logger("net/channel").Debug("visible")
	Logger("p2p").Info("hidden")

	out := buf.String()
	assert.Contains(t, out, "visible")
	assert.NotContains(t, out, "hidden")
}

func TestParseLevels(t *testing.T) {
	l := ParseLevels("net/channel=debug, p2p=error ,bogus=xx,warn")

	assert.Equal(t, slog.LevelWarn, l.Default)
	assert.Equal(t, slog.LevelDebug, l.LevelFor("net/channel"))
	assert.Equal(t, slog.LevelError, l.LevelFor("p2p/seed"))
	assert.Equal(t, slog.LevelWarn, l.LevelFor("net/hosts"))
	_, ok := l.Components["bogus"]
	assert.False(t, ok)
}
