// Package mock provides a scripted textgen.Generator for tests.
package mock

import (
	"context"
	"sync"

	"github.com/chenxu-corpus/chenxuvox/pkg/textgen"
)

// Generator is a textgen.Generator whose responses are scripted by tests.
// It records every request it receives.
type Generator struct {
	mu sync.Mutex

	// Response is returned by Generate when Err is nil.
	Response *textgen.Response

	// Err, when set, is returned by every Generate call.
	Err error

	// Requests accumulates every request passed to Generate.
	Requests []textgen.Request

	// BackendName is returned by Name. Defaults to "mock".
	BackendName string
}

// Compile-time interface check.
var _ textgen.Generator = (*Generator)(nil)

// Generate implements textgen.Generator.
func (g *Generator) Generate(ctx context.Context, req textgen.Request) (*textgen.Response, error) {
	g.mu.Lock()
	g.Requests = append(g.Requests, req)
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.Err != nil {
		return nil, g.Err
	}
	if g.Response != nil {
		return g.Response, nil
	}
	return &textgen.Response{}, nil
}

// Name implements textgen.Generator.
func (g *Generator) Name() string {
	if g.BackendName == "" {
		return "mock"
	}
	return g.BackendName
}
