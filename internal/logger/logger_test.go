package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wheelhouse.log")
	require.NoError(t, InitWithConfig("warn", path, "text"))

	Info.Printf("scan started for %s", "AAPL")
	Warn.Printf("chain missing for %s", "MSFT")
	Always("run %d saved", 7)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "scan started")
	assert.Contains(t, out, "chain missing for MSFT")
	assert.Contains(t, out, "run 7 saved")
}

func TestVerboseMapsToTrace(t *testing.T) {
	require.NoError(t, InitWithConfig("verbose", "", "json"))
	assert.Equal(t, logrus.TraceLevel, L().GetLevel())

	require.NoError(t, InitWithConfig("nonsense", "", "text"))
	assert.Equal(t, logrus.InfoLevel, L().GetLevel())
}

func TestStderrHookCopiesErrors(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})
	l.AddHook(&stderrHook{out: &buf})

	l.Warn("quiet")
	l.Error("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}
