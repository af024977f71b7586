package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 9, 14, 5, 7, 123_456_789, time.FixedZone("X", 3600))
	require.Equal(t, "2024-03-09T13:05:07.123Z", formatRFC3339Millis(ts))
}

func TestLogger_DropsEmptyStringAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)
	log.Info("hello", "empty", "", "kept", "value")

	out := buf.String()
	require.Contains(t, out, "hello")
	require.Contains(t, out, "kept=value")
	require.NotContains(t, out, "empty=")
}

func TestLogger_VerboseEnablesDebug(t *testing.T) {
	t.Parallel()

	var quiet, verbose bytes.Buffer
	NewWithWriter(&quiet, false).Debug("debug line")
	NewWithWriter(&verbose, true).Debug("debug line")

	require.Empty(t, quiet.String())
	require.Contains(t, verbose.String(), "debug line")
}
