package cli

import (
	"bytes"
	"strings"
	"testing"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

func TestHandler_HandleLog(t *testing.T) {
	t.Run("prints request fields first", func(t *testing.T) {
		buf := &bytes.Buffer{}
		h := New(buf, false)

		l := &log.Logger{Handler: h, Level: log.DebugLevel}
		l.WithFields(log.Fields{"path": "docs", "user": "u1", "request_id": "abc", "source": "ignored"}).Info("listing folder")

		out := buf.String()
		assert.Contains(t, out, "listing folder")
		assert.NotContains(t, out, "source=")
		assert.True(t, strings.Index(out, "request_id=abc") < strings.Index(out, "user=u1"))
		assert.True(t, strings.Index(out, "user=u1") < strings.Index(out, "path=docs"))
	})

	t.Run("prints a stacktrace for errors", func(t *testing.T) {
		buf := &bytes.Buffer{}
		h := New(buf, false)

		l := &log.Logger{Handler: h, Level: log.DebugLevel}
		e := l.WithField("error", errors.New("boom"))
		e.Error("failed")
		assert.Contains(t, buf.String(), "failed")
		assert.Contains(t, buf.String(), "Stacktrace:")
		assert.Contains(t, buf.String(), "boom")

		buf.Reset()
		e.Debug("failed")
		assert.Contains(t, buf.String(), "failed")
		assert.NotContains(t, buf.String(), "Stacktrace:")
	})
}
