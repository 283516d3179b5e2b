// Package utils provides shared process utilities.
package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger named "graphrag". When debug is true it uses
// the development config (console encoding, debug level); otherwise the
// production config (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Named("graphrag"), nil
}
