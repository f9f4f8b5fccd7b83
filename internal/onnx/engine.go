package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// GraphRunner executes one stage graph. *Runner is the ORT implementation;
// tests substitute fakes.
type GraphRunner interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Name() string
	Close()
}

// Engine owns one runner per stage graph.
type Engine struct {
	runners map[string]GraphRunner
}

// NewEngineWithRunners builds an Engine over caller-owned runners keyed by
// graph name. Nil entries are dropped, so the stage reports "not loaded".
func NewEngineWithRunners(runners map[string]GraphRunner) *Engine {
	e := &Engine{runners: make(map[string]GraphRunner, len(runners))}

	for name, r := range runners {
		if r != nil {
			e.runners[name] = r
		}
	}

	return e
}

// NewEngine creates an ORT runner for every session in sm.
func NewEngine(sm *SessionManager, cfg RunnerConfig) (*Engine, error) {
	if sm == nil {
		return nil, errors.New("session manager is required")
	}

	e := &Engine{runners: make(map[string]GraphRunner, len(Graphs))}

	for _, s := range sm.Sessions() {
		r, err := NewRunner(s, cfg)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("create runner %q: %w", s.Name, err)
		}

		e.runners[s.Name] = r
		slog.Debug("onnx runner ready", "graph", s.Name)
	}

	return e, nil
}

// Close releases every runner. Safe to call multiple times.
func (e *Engine) Close() {
	for name, r := range e.runners {
		r.Close()
		delete(e.runners, name)
	}
}

func (e *Engine) graph(name string) (GraphRunner, error) {
	r, ok := e.runners[name]
	if !ok {
		return nil, fmt.Errorf("%s graph not loaded", name)
	}

	return r, nil
}
