package cli

import (
	glog "github.com/goliatone/go-logger/glog"
)

// newLogger builds the root go-logger logger for a command. Verbose output
// enables debug messages; otherwise only warnings and errors are shown.
func newLogger(verbose bool, format string) *glog.BaseLogger {
	options := []glog.Option{glog.WithLevel(glog.Warn)}
	if verbose {
		options = []glog.Option{glog.WithLevel(glog.Debug), glog.WithAddSource(true)}
	}
	switch format {
	case "json":
		options = append(options, glog.WithLoggerTypeJSON())
	case "pretty":
		options = append(options, glog.WithLoggerTypePretty())
	default:
		options = append(options, glog.WithLoggerTypeConsole())
	}
	return glog.NewLogger(options...)
}
