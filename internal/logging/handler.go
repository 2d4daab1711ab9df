// Package logging sets up the process-wide go-ethereum/log handler used by
// cmd/precompiled. It is ambient infrastructure: nothing in core/vm touches
// it directly, but every log.Debug/log.Trace call the precompiles make ends
// up flowing through whatever handler this package installed.
package logging

import (
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup installs a glog-style verbosity filter in front of a terminal
// handler. verbosity uses the legacy 0 (crit) through 5 (trace) scale.
// When logFile is non-empty, output is also rotated through lumberjack
// instead of going straight to stderr.
func Setup(verbosity int, logFile string) error {
	var writer io.Writer = os.Stderr
	useColor := isatty.IsTerminal(os.Stderr.Fd())

	if logFile != "" {
		writer = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
		}
		useColor = false
	} else if useColor {
		writer = colorable.NewColorable(os.Stderr)
	}

	handler := log.NewTerminalHandler(writer, useColor)
	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(log.FromLegacyLevel(verbosity))
	log.SetDefault(log.NewLogger(glogger))
	return nil
}
