package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("vaultd", "test", WithWriter(&buf), WithLevel(slog.LevelInfo))
	logger.Debug("hidden")
	logger.Info("committed", "entry", "deposit", "refreshToken", "r-1", slog.String("authorization", "Bearer abc"),
		MaskField("fingerprint", "s3cret"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	require.Equal(t, "committed", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "vaultd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "deposit", line["entry"])
	require.Equal(t, RedactedValue, line["authorization"])
	require.Equal(t, RedactedValue, line["refreshToken"])
	require.Equal(t, RedactedValue, line["fingerprint"])
	require.Contains(t, line, "timestamp")
}

func TestSetupTeesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultd.log")
	var buf bytes.Buffer
	logger := Setup("vaultd", "", WithWriter(&buf), WithFile(path, 1, 1))
	logger.Warn("paused")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"message":"paused"`)
	require.Contains(t, buf.String(), `"severity":"WARN"`)
}

func TestRedaction(t *testing.T) {
	require.True(t, IsSensitive("JWTSecret"))
	require.True(t, IsSensitive(" Authorization "))
	require.False(t, IsSensitive("requestId"))
	require.Equal(t, "deposit", redact(slog.String("entry", "deposit")).Value.String())
	require.Equal(t, RedactedValue, redact(slog.String("token", "abc")).Value.String())
	require.Equal(t, "", redact(slog.String("token", "")).Value.String())
	require.Equal(t, RedactedValue, MaskField("anything", "abc").Value.String())
	require.Equal(t, "", MaskField("anything", "").Value.String())
	require.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
