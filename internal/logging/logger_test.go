package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

func TestComponentLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetDefaultOutput(&buf)
	SetDefaultLevel(LevelWarn)
	defer func() {
		SetDefaultOutput(os.Stderr)
		SetDefaultLevel(LevelInfo)
	}()

	logger := NewComponentLogger("hub")
	logger.Debug("dropped %d", 1)
	logger.Info("dropped too")
	logger.Warn("kept %s", "warning")
	logger.Error("kept error")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "[WARN] [hub] kept warning")
	assert.Contains(t, out, "[ERROR] [hub] kept error")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	logger := NewComponentLogger("x")
	assert.Equal(t, logger, OrNop(logger))

	var typed *componentLogger
	var iface Logger = typed
	assert.True(t, IsNil(iface))
}

func TestMultiFlattensAndFansOut(t *testing.T) {
	var a, b bytes.Buffer
	SetDefaultLevel(LevelDebug)
	defer func() {
		SetDefaultOutput(os.Stderr)
		SetDefaultLevel(LevelInfo)
	}()

	SetDefaultOutput(&a)
	first := NewComponentLogger("first")
	SetDefaultOutput(&b)
	second := NewComponentLogger("second")

	combined := Multi(first, nil, Multi(second))
	combined.Info("hello")

	assert.Contains(t, a.String(), "hello")
	assert.Contains(t, b.String(), "hello")

	assert.Equal(t, Nop(), Multi(nil, nil))
	assert.Equal(t, first, Multi(first))
}
