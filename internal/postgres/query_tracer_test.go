package postgres

import (
	"database/sql"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestQueryTracerLevels(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		slow    time.Duration
		level   zapcore.Level
		message string
	}{
		{"success", nil, time.Hour, zapcore.DebugLevel, "database query completed"},
		{"no rows", errors.Wrap(sql.ErrNoRows, "get entitlement"), time.Hour, zapcore.DebugLevel, "database query returned no rows"},
		{"transient", &pq.Error{Code: "40001"}, time.Hour, zapcore.WarnLevel, "database query failed, transient"},
		{"permanent", &pq.Error{Code: "23505"}, time.Hour, zapcore.ErrorLevel, "database query failed"},
		{"slow", nil, time.Nanosecond, zapcore.WarnLevel, "slow database query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, logs := observedLogger()

			tracer := NewQueryTracer(log, "SELECT 1", 0, "", tt.slow)
			time.Sleep(time.Millisecond)
			tracer.Done(tt.err)

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.Equal(t, tt.message, entries[0].Message)
		})
	}
}

func TestQueryTracerNeverLogsArguments(t *testing.T) {
	log, logs := observedLogger()

	tq := NewTracedQuerier(nil, log, "tx-1", 0)
	tq.trace(`
		INSERT INTO webhook_records (raw_payload)
		VALUES ($1)`, []interface{}{`{"secret":"payload"}`}).Done(nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(1), fields["args"])
	assert.Equal(t, "tx-1", fields["tx_id"])
	assert.Equal(t, "INSERT INTO webhook_records (raw_payload) VALUES ($1)", fields["query"])
	assert.NotContains(t, entries[0].Message+fmtFields(fields), "secret")
}

func fmtFields(fields map[string]interface{}) string {
	var out string
	for k, v := range fields {
		if s, ok := v.(string); ok {
			out += k + "=" + s + " "
		}
	}
	return out
}
