package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// newTestLogger returns a Logger writing JSON entries to an in-memory buffer.
func newTestLogger(t *testing.T) (Logger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), buf, zapcore.DebugLevel)
	return &zapLogger{z: zap.New(core)}, buf
}

func TestNewLogger_JSONFormat(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewLogger_DefaultsApplied(t *testing.T) {
	l, err := NewLogger(LogConfig{})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewDefaultLogger_NotNil(t *testing.T) {
	assert.NotNil(t, NewDefaultLogger())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestZapLogger_WritesLevelsAndMessage(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Debug("debug msg")
	l.Info("info msg")
	l.Warn("warn msg")
	l.Error("error msg")

	out := buf.String()
	assert.Contains(t, out, "debug msg")
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, "warn msg")
	assert.Contains(t, out, `"level":"error"`)
}

func TestZapLogger_FieldsAreEncoded(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Info("lookup",
		String("acct", "0660640130020"),
		Int("comparables", 4),
		Float64("median", 225000),
		Bool("reliable", true),
		Duration("elapsed", 150*time.Millisecond),
	)

	out := buf.String()
	assert.Contains(t, out, `"acct":"0660640130020"`)
	assert.Contains(t, out, `"comparables":4`)
	assert.Contains(t, out, `"reliable":true`)
}

func TestErrField(t *testing.T) {
	assert.Equal(t, "error", Err(errors.New("boom")).Key)
	assert.Equal(t, "boom", Err(errors.New("boom")).Value)
	assert.Equal(t, "<nil>", Err(nil).Value)
}

func TestZapLogger_WithAddsPersistentFields(t *testing.T) {
	l, buf := newTestLogger(t)

	child := l.With(String("session_id", "abc"))
	child.Info("first")
	child.Info("second")

	lines := buf.Lines()
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, `"session_id":"abc"`)
	}
}

func TestZapLogger_NamedAppendsName(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Named("workflow").Info("advancing")
	assert.Contains(t, buf.String(), `"logger":"workflow"`)
}

func TestNopLogger_AllMethodsNoOp(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("msg")
		l.Info("msg")
		l.Warn("msg")
		l.Error("msg")
	})
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.Equal(t, l, l.Named("x"))
}

func TestDefaultLogger_SetAndGet(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	l, buf := newTestLogger(t)
	SetDefault(l)
	Default().Info("via default")
	assert.Contains(t, buf.String(), "via default")

	// nil must be ignored
	SetDefault(nil)
	assert.Equal(t, l, Default())
}
