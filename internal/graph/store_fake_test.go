package graph

import (
	"context"
	"strings"
	"sync"
)

type storeCall struct {
	cypher string
	params map[string]any
}

// fakeStore records every statement and answers through respond, treating
// index DDL as a silent success so repo tests see only their own queries.
type fakeStore struct {
	mu      sync.Mutex
	calls   []storeCall
	respond func(cypher string, params map[string]any) ([]map[string]any, error)
}

func (s *fakeStore) Run(_ context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, storeCall{cypher: cypher, params: params})
	s.mu.Unlock()
	if isIndexDDL(cypher) {
		return nil, nil
	}
	if s.respond != nil {
		return s.respond(cypher, params)
	}
	return nil, nil
}

func isIndexDDL(cypher string) bool {
	t := strings.TrimSpace(cypher)
	return strings.HasPrefix(t, "CREATE FULLTEXT INDEX") || strings.HasPrefix(t, "CREATE VECTOR INDEX")
}

// queries returns the recorded statements with index DDL filtered out.
func (s *fakeStore) queries() []storeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storeCall, 0, len(s.calls))
	for _, c := range s.calls {
		if !isIndexDDL(c.cypher) {
			out = append(out, c)
		}
	}
	return out
}

func nodeRow(elementID string, id int64, p map[string]any) map[string]any {
	return map[string]any{"props": p, "element_id": elementID, "id": id}
}
