// Package logging builds the process loggers.
package logging

import (
	"io"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/hashicorp/go-hclog"
)

// Options selects logger name, level and encoding
type Options struct {
	Name   string
	Level  string
	JSON   bool
	Output io.Writer
}

// New returns a root logger; unknown levels fall back to info
func New(opts Options) hclog.Logger {
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      level,
		Output:     out,
		JSONFormat: opts.JSON,
	})
}

// Watermill adapts an hclog logger for the watermill pub/sub
func Watermill(l hclog.Logger) watermill.LoggerAdapter {
	return &watermillAdapter{log: l}
}

type watermillAdapter struct {
	log    hclog.Logger
	fields watermill.LogFields
}

func (a *watermillAdapter) args(fields watermill.LogFields) []any {
	merged := a.fields.Add(fields)
	out := make([]any, 0, len(merged)*2)
	for k, v := range merged {
		out = append(out, k, v)
	}
	return out
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, append(a.args(fields), "error", err)...)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(msg, a.args(fields)...)
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(msg, a.args(fields)...)
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Trace(msg, a.args(fields)...)
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{log: a.log, fields: a.fields.Add(fields)}
}
