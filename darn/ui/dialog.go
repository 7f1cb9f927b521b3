// Package ui carries diagnostics from the archive codecs to the user. The
// codecs only emit; a Dialog must never block them.
package ui

import (
	log "github.com/sirupsen/logrus"
)

// Dialog receives diagnostics.
type Dialog interface {
	// Warning reports a condition the read or write survived.
	Warning(msg string, fields map[string]any)
	// Corruption reports a region skipped while recovering.
	Corruption(offset, skipped uint64, err error)
}

// LogDialog reports through a logrus logger.
type LogDialog struct {
	Logger *log.Logger
}

// NewLogDialog returns a dialog writing to logger, or to the standard
// logrus logger when logger is nil.
func NewLogDialog(logger *log.Logger) *LogDialog {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogDialog{Logger: logger}
}

func (d *LogDialog) Warning(msg string, fields map[string]any) {
	d.Logger.WithFields(log.Fields(fields)).Warn(msg)
}

func (d *LogDialog) Corruption(offset, skipped uint64, err error) {
	d.Logger.WithFields(log.Fields{
		"offset":  offset,
		"skipped": skipped,
	}).WithError(err).Error("skipped corrupted data")
}

type discard struct{}

func (discard) Warning(string, map[string]any)    {}
func (discard) Corruption(uint64, uint64, error) {}

// Discard drops every diagnostic.
var Discard Dialog = discard{}
