package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/user"
)

func TestRollbarLogger(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	conf := appConfig()
	l := NewRollbarLogger(zap.New(obs), conf)

	usr := user.User{ID: "u1", FullName: "Ada", Email: "ada@test.com"}
	l.Error("boom", errors.New("failed"), map[string]interface{}{"course_id": 3}, usr)
	l.Info("hello")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "boom", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "failed", fields["error"])
	assert.EqualValues(t, 3, fields["course_id"])
	assert.Equal(t, "u1", fields["user_id"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Empty(t, entries[1].Context)
}

func appConfig() *core.Config {
	conf := core.NewConfig()
	conf.TestMode = true
	return conf
}
