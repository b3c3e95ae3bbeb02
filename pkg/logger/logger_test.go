package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLogger_WritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelDebug, AddCaller: true})

	log.With(Component("admission")).Info("student admitted",
		RollNumber("BT2024001"),
		JoinYear(2024),
		Err(errors.New("boom")),
	)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "student admitted", e["message"])
	assert.Equal(t, "admission", e["component"])
	assert.Equal(t, "BT2024001", e["roll_number"])
	assert.Equal(t, float64(2024), e["join_year"])
	assert.Equal(t, "boom", e["error"])
	assert.Contains(t, e["caller"], "logger_test.go:")
	assert.NotEmpty(t, e["timestamp"])
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	log.Error("also shown", Int("attempt", 2))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "also shown", entries[1]["message"])
}

func TestLogger_FatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})
	code := -1
	log.exit = func(c int) { code = c }

	log.Fatal("cannot continue")

	assert.Equal(t, 1, code)
	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "FATAL", entries[0]["level"])
}

func TestLogger_SlogSharesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo}).With(Component("eventbus"))

	log.Slog().Info("published", "event_type", "student.admitted")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "eventbus", entries[0]["component"])
	assert.Equal(t, "student.admitted", entries[0]["event_type"])
}

func TestContextRoundTrip(t *testing.T) {
	log := Nop().WithRequestID("req-1")
	ctx := WithContext(context.Background(), log)

	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"fatal":   LevelFatal,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
