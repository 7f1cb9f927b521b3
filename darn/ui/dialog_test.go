package ui

import (
	"bytes"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLogDialog(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	logger := log.New()
	logger.SetOutput(buf)
	logger.SetFormatter(&log.TextFormatter{DisableTimestamp: true, DisableColors: true})

	d := NewLogDialog(logger)
	d.Warning("newer edition", map[string]any{"edition": "07"})
	d.Corruption(100, 42, errors.New("bad signature"))

	out := buf.String()
	assert.Contains(t, out, "level=warning")
	assert.Contains(t, out, "edition=07")
	assert.Contains(t, out, "offset=100")
	assert.Contains(t, out, "skipped=42")
	assert.Contains(t, out, `error="bad signature"`)
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		Discard.Warning("x", nil)
		Discard.Corruption(0, 0, nil)
	})
	assert.NotNil(t, NewLogDialog(nil).Logger)
}
