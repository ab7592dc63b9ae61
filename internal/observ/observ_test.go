package observ

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_WritesEventLine(t *testing.T) {
	var buf bytes.Buffer
	Setup("debug", "json", &buf)
	defer Setup("info", "json", os.Stdout)

	Log("guardrail_pause", map[string]any{"reason": "daily_loss", "dd": 0.07})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "guardrail_pause", line["event"])
	assert.Equal(t, "daily_loss", line["reason"])
	assert.Equal(t, "info", line["level"])
	assert.Contains(t, line, "time")
}

func TestSetup_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := Setup("warn", "json", &buf)
	defer Setup("info", "json", os.Stdout)

	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	l.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")

	Setup("nonsense", "json", &buf)
	assert.Equal(t, "info", Logger().GetLevel().String())
}

func TestHandler_ExposesGuardrailMetrics(t *testing.T) {
	DecisionsTotal.WithLabelValues("pause").Inc()
	Latch.WithLabelValues("paused_due_to_dd").Set(BoolGauge(true))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `guardrail_decisions_total{kind="pause"}`)
	assert.Contains(t, string(body), `guardrail_latch{name="paused_due_to_dd"} 1`)
}
