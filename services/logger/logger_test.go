package logsvc

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/user"
	"github.com/trezcool/warsha/tests"
)

func newTestLogger(buf *bytes.Buffer, debug bool) *RollbarLogger {
	conf := &core.Config{Env: "TEST", Debug: debug}
	l := NewRollbarLogger(NewZerolog(buf, "TEST", conf), conf)
	l.Enable(false)
	return l
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	var out []map[string]interface{}
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		m := make(map[string]interface{})
		require.NoError(t, json.Unmarshal([]byte(ln), &m))
		out = append(out, m)
	}
	return out
}

func TestRollbarLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	l := newTestLogger(buf, false)

	l.Debug("hidden")
	l.Info("dispatched", map[string]interface{}{"kind": "seminar.reminder"}, user.User{ID: "u1"})
	l.Error("job failed", errors.New("smtp down"))

	got := lines(t, buf)
	require.Len(t, got, 2, "debug lines are dropped outside debug mode")

	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "dispatched", got[0]["message"])
	assert.Equal(t, "seminar.reminder", got[0]["kind"])
	assert.Equal(t, "u1", got[0]["user_id"])
	assert.Equal(t, "TEST", got[0]["logger"])

	assert.Equal(t, "error", got[1]["level"])
	assert.Equal(t, "smtp down", got[1]["error"])
}

func TestRollbarLogger_Fatal(t *testing.T) {
	buf := new(bytes.Buffer)
	l := newTestLogger(buf, true)
	var code int
	l.exit = func(c int) { code = c }

	l.Fatal("cannot start")
	assert.Equal(t, 1, code)
	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "fatal", got[0]["level"])
}

func TestWatermillAdapter(t *testing.T) {
	log := new(testutil.Logger)
	a := NewWatermillAdapter(log, false).With(watermill.LogFields{"topic": "warsha.jobs"})

	a.Trace("trace", nil)
	a.Debug("debug", nil)
	a.Info("info", nil)
	a.Error("handler failed", errors.New("boom"), watermill.LogFields{"uuid": "1"})

	assert.Equal(t, []string{"handler failed"}, log.Errors)
}
