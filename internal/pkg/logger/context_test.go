package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandlerAddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo).With(slog.String("module", "test"))

	ctx := WithAttrs(context.Background(), slog.String("account", "me@example.com"))
	log.InfoContext(ctx, "scanning", slog.Any("error", errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "module=test")
	assert.Contains(t, out, "account=me@example.com")
	assert.Contains(t, out, "error=boom")
}

func TestWithAttrsDoesNotShareAttrs(t *testing.T) {
	parent := WithAttrs(context.Background(), slog.String("a", "1"))
	first := WithAttrs(parent, slog.String("b", "2"))
	second := WithAttrs(parent, slog.String("c", "3"))

	assert.Len(t, parent.Value(ctxKey{}), 1)
	assert.Equal(t, []slog.Attr{slog.String("a", "1"), slog.String("b", "2")}, first.Value(ctxKey{}))
	assert.Equal(t, []slog.Attr{slog.String("a", "1"), slog.String("c", "3")}, second.Value(ctxKey{}))
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
