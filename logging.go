// Copyright 2026 The haku Authors
// SPDX-License-Identifier: Apache-2.0

package haku

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the logr.Logger every Engine logs through, backed by
// zap. verbosity follows the CLI's repeatable -v: 0 is warn-and-above, 1 is
// info, 2 or more is debug (matching logr's convention that higher V()
// numbers are more verbose).
func NewLogger(verbosity int) logr.Logger {
	level := zapcore.WarnLevel
	switch {
	case verbosity >= 2:
		level = zapcore.DebugLevel
	case verbosity == 1:
		level = zapcore.InfoLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = ""

	zl, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than fail the whole run over
		// a logging misconfiguration.
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}
