package logging

import "go.uber.org/zap"

// New returns a zap logger. Debug mode uses the human-readable development
// config at debug level; otherwise JSON at info level.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
