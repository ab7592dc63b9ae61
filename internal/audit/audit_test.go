package audit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_AppendCreatesDirAndLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "audit.jsonl")
	f := NewFile(path)
	vol := 0.07

	require.NoError(t, f.Append(Record{TS: 200, Equity: 10000, Volatility: &vol,
		Decision: []byte(`{"pause_bot":"daily_loss"}`), Mode: "live"}))
	require.NoError(t, f.Append(Record{TS: 100, Symbol: "ETH",
		Decision: []byte(`{"adjust":{"long.grid_spacing_pct":0.016}}`), Mode: "live"}))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 100.0, records[0].TS)
	assert.Equal(t, "ETH", records[0].Symbol)
	assert.Equal(t, 0.016, records[0].View().Adjust["long.grid_spacing_pct"])

	assert.Equal(t, "multi", records[1].Symbol)
	assert.NotEmpty(t, records[1].ID)
	assert.Equal(t, "daily_loss", records[1].View().PauseBot)
	require.NotNil(t, records[1].Volatility)
	assert.Equal(t, 0.07, *records[1].Volatility)
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	body := "not json\n\n{\"ts\":5,\"decision\":{\"block_entry\":true}}\n{\"ts\":\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].View().BlockEntry)
}

func TestLoad_EmptyAndMissing(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o644))

	_, err := Load(empty)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Load(filepath.Join(dir, "missing.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTailAndSince(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	f := NewFile(path)
	for _, ts := range []float64{10, 20, 30, 40} {
		require.NoError(t, f.Append(Record{TS: ts, Decision: []byte(`{"info":"cooldown"}`)}))
	}

	lines, err := Tail(path, 2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"ts":40`)

	records, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, Since(records, 25), 2)
	assert.Len(t, Since(records, 50), 0)
}

func TestMemory(t *testing.T) {
	m := &Memory{}
	require.NoError(t, m.Append(Record{TS: 1}))
	assert.Len(t, m.Records, 1)

	m.Err = os.ErrPermission
	assert.ErrorIs(t, m.Append(Record{TS: 2}), os.ErrPermission)
	assert.Len(t, m.Records, 1)
}
