package export

import (
	"context"
	"sync"
)

// MemoryClient records writes instead of sending them anywhere.
type MemoryClient struct {
	mu     sync.Mutex
	writes []ExecutedQuery
	err    error
}

// ExecutedQuery captures a cypher statement and its parameters.
type ExecutedQuery struct {
	Query  string
	Params map[string]any
}

// NewMemoryClient creates an empty recording client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{}
}

// WithError makes subsequent writes fail with err.
func (m *MemoryClient) WithError(err error) *MemoryClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MemoryClient) ExecuteWrite(_ context.Context, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return Result{}, m.err
	}
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	m.writes = append(m.writes, ExecutedQuery{Query: cypher, Params: copied})
	return Result{}, nil
}

func (m *MemoryClient) VerifyConnectivity(context.Context) error {
	return nil
}

func (m *MemoryClient) Close(context.Context) error {
	return nil
}

// WriteCalls returns a snapshot of executed writes.
func (m *MemoryClient) WriteCalls() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedQuery(nil), m.writes...)
}
