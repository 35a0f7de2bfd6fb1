// Package logger constructs the structured logger shared by every
// subsystem of the merge index.
package logger

import "go.uber.org/zap"

// New builds a production zap logger tagged with the given service name and
// returns its sugared form, matching the logging style used throughout this
// module's Config structs.
func New(service string) *zap.SugaredLogger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Sugar().With("service", service)
}
