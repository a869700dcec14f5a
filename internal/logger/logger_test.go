package logger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec), "line: %s", scanner.Text())
		out = append(out, rec)
	}
	return out
}

func TestModuleLoggerFieldsAndHierarchy(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelDebug).Module("datastore").Module("sqlite")

	log.With(String("component", "findings")).Info("row inserted",
		Int64("finding_id", 42),
		Bool("verified", false),
		Duration("elapsed", 1500*time.Millisecond),
		Error(errors.New("none")))

	recs := decodeLines(t, buf.Bytes())
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "row inserted", rec["msg"])
	assert.Equal(t, "datastore.sqlite", rec["module"])
	assert.Equal(t, "findings", rec["component"])
	assert.InDelta(t, 42, rec["finding_id"], 0)
	assert.Equal(t, false, rec["verified"])
	assert.Equal(t, "1.5s", rec["elapsed"])
	assert.Equal(t, "none", rec["error"])
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelWarn)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	log.Log(LogLevelError, "shown too")

	recs := decodeLines(t, buf.Bytes())
	require.Len(t, recs, 2)
	assert.Equal(t, "WARN", recs[0]["level"])
	assert.Equal(t, "ERROR", recs[1]["level"])
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo)

	ctx := WithTraceID(context.Background(), "req-123")
	log.WithContext(ctx).Info("handled")
	log.WithContext(context.Background()).Info("untraced")

	recs := decodeLines(t, buf.Bytes())
	require.Len(t, recs, 2)
	assert.Equal(t, "req-123", recs[0]["trace_id"])
	assert.NotContains(t, recs[1], "trace_id")
}

func TestCentralLoggerRoutesModuleToOwnFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mainPath := filepath.Join(dir, "main.log")
	accessPath := filepath.Join(dir, "sub", "access.log")

	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: mainPath, Level: "debug", MaxSize: 1},
		ModuleOutputs: map[string]ModuleOutput{
			"access": {Enabled: true, FilePath: accessPath, Level: "info"},
		},
		ModuleLevels: map[string]string{"reporting": "warn"},
	})
	require.NoError(t, err)

	cl.Module("verification").Info("decided", String("decision", "verified"))
	cl.Module("access").Info("GET /api/v2/findings")
	cl.Module("access").Debug("dropped by module level")
	cl.Module("reporting").Info("dropped by module level")
	require.NoError(t, cl.Close())

	mainData, err := os.ReadFile(mainPath)
	require.NoError(t, err)
	mainRecs := decodeLines(t, mainData)
	require.Len(t, mainRecs, 1)
	assert.Equal(t, "verification", mainRecs[0]["module"])
	assert.Equal(t, "verified", mainRecs[0]["decision"])
	_, err = time.Parse(time.RFC3339, mainRecs[0]["time"].(string))
	require.NoError(t, err)

	accessData, err := os.ReadFile(accessPath)
	require.NoError(t, err)
	accessRecs := decodeLines(t, accessData)
	require.Len(t, accessRecs, 1)
	assert.Equal(t, "access", accessRecs[0]["module"])
}

func TestNewCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}

func TestTraceLevelName(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelTrace)
	log.Trace("very chatty")

	recs := decodeLines(t, buf.Bytes())
	require.Len(t, recs, 1)
	assert.Equal(t, "very chatty", recs[0]["msg"])
}

func TestGormAdapterTrace(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	adapter := NewGormLoggerAdapter(NewSlogLogger(buf, LogLevelTrace), 50*time.Millisecond)
	sqlFn := func() (string, int64) { return "SELECT 1", 1 }

	adapter.Trace(context.Background(), time.Now(), sqlFn, nil)
	adapter.Trace(context.Background(), time.Now(), sqlFn, gorm.ErrRecordNotFound)
	adapter.Trace(context.Background(), time.Now(), sqlFn, errors.New("disk I/O error"))
	adapter.Trace(context.Background(), time.Now().Add(-time.Second), sqlFn, nil)

	recs := decodeLines(t, buf.Bytes())
	require.Len(t, recs, 4)
	assert.Equal(t, "sql query", recs[0]["msg"])
	assert.Equal(t, "sql query", recs[1]["msg"], "record-not-found is not a query error")
	assert.Equal(t, "query error", recs[2]["msg"])
	assert.Equal(t, "slow query", recs[3]["msg"])
	assert.Equal(t, "SELECT 1", recs[3]["sql"])
}
