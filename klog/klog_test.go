package klog

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerWritesThroughSharedSink(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	l := New("hal/test", DEBUG)
	l.Info("core booted", Int("core", 2), String("state", "idle"))

	out := buf.String()
	require.Contains(t, out, "hal/test")
	require.Contains(t, out, "core booted")
	require.Contains(t, out, "core=2")
	require.Contains(t, out, `state="idle"`)
}

func TestLoggerRespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	l := New("hal/test", WARN)
	l.Debug("should not appear")
	l.Info("also should not appear")
	l.Warn("should appear")

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "\n"))
	require.Contains(t, out, "should appear")
}

func TestPanicHaltsWithoutExitingProcess(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	l := New("hal/test", DEBUG)
	halted := false
	l.Panic(func() { halted = true }, "invariant violated")

	require.True(t, halted)
	require.Contains(t, buf.String(), "FATAL")
}

func TestWithChangesComponentKeepsLevel(t *testing.T) {
	l := New("hal/root", WARN)
	child := l.With("hal/child")
	require.Equal(t, WARN, child.level)
	require.Equal(t, "hal/child", child.component)
}
