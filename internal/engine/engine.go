// Package engine provides the top-level entry point that the public ignite
// client wraps (spec §4.7). It owns the single coordinator for a data
// directory and translates its lifecycle into a simple open/close surface.
package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ignitedb/mergeindex/internal/coordinator"
	"github.com/ignitedb/mergeindex/pkg/options"
	"go.uber.org/zap"
)

var (
	// ErrEngineClosed is returned when attempting to perform operations on a closed engine.
	ErrEngineClosed = errors.New("operation failed: cannot access closed engine")
)

// Engine owns the coordinator for one data directory and tracks its own
// lifecycle so that Close is idempotent and safe under concurrent callers.
type Engine struct {
	options     *options.Options
	log         *zap.SugaredLogger
	closed      atomic.Bool
	coordinator *coordinator.Coordinator
	cancel      context.CancelFunc
}

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// New creates and initializes a new Engine instance with the provided configuration.
// The engine derives its own cancellable context so Close can deterministically
// stop the coordinator's message loop regardless of the caller's context lifecycle.
func New(ctx context.Context, config *Config) (*Engine, error) {
	derived, cancel := context.WithCancel(ctx)

	coord, err := coordinator.New(derived, config.Options.DataDir, config.Options, config.Logger)
	if err != nil {
		cancel()
		return nil, err
	}

	return &Engine{
		options:     config.Options,
		log:         config.Logger,
		coordinator: coord,
		cancel:      cancel,
	}, nil
}

// Coordinator returns the engine's underlying coordinator, which exposes the
// full client protocol (Index, Stream, Range, Fold, Info, IsEmpty, Drop,
// StartCompaction, Stats).
func (e *Engine) Coordinator() *coordinator.Coordinator {
	return e.coordinator
}

// Close gracefully shuts down the engine and releases all associated resources.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}
	e.coordinator.Stop()
	e.cancel()
	return nil
}
