package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

func TestProjectionExists(t *testing.T) {
	store := &fakeStore{
		respond: func(cypher string, params map[string]any) ([]map[string]any, error) {
			return []map[string]any{{"exists": true}}, nil
		},
	}
	repo := NewSimilarityRepo(store, logger.NewNop())

	exists, err := repo.ProjectionExists(context.Background(), "wisenet_similarity")
	if err != nil || !exists {
		t.Fatalf("exists=%v err=%v", exists, err)
	}
	if store.queries()[0].params["name"] != "wisenet_similarity" {
		t.Fatalf("params: %v", store.queries()[0].params)
	}
}

func TestProjectionExistsEmptyResult(t *testing.T) {
	repo := NewSimilarityRepo(&fakeStore{}, logger.NewNop())
	exists, err := repo.ProjectionExists(context.Background(), "missing")
	if err != nil || exists {
		t.Fatalf("exists=%v err=%v", exists, err)
	}
}

func TestRebuildProjectionDropsThenBuilds(t *testing.T) {
	store := &fakeStore{}
	repo := NewSimilarityRepo(store, logger.NewNop())

	if err := repo.RebuildProjection(context.Background(), "wisenet_similarity"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	calls := store.queries()
	if len(calls) != 2 {
		t.Fatalf("calls: %d", len(calls))
	}
	if !strings.Contains(calls[0].cypher, "gds.graph.drop") {
		t.Fatalf("first call must drop: %s", calls[0].cypher)
	}
	if !strings.Contains(calls[1].cypher, "gds.graph.project") {
		t.Fatalf("second call must project: %s", calls[1].cypher)
	}
	if !strings.Contains(calls[1].cypher, "UNDIRECTED") {
		t.Fatalf("projection must be undirected: %s", calls[1].cypher)
	}
}

func TestSimilarNodesQuery(t *testing.T) {
	store := &fakeStore{}
	repo := NewSimilarityRepo(store, logger.NewNop())

	_, err := repo.SimilarNodes(context.Background(), SimilarQuery{
		Projection: "wisenet_similarity", LibID: 4, SourceElementID: "4:n:1",
		TopK: 10, Cutoff: 0.5,
	})
	if err != nil {
		t.Fatalf("similar nodes: %v", err)
	}
	call := store.queries()[0]
	if !strings.Contains(call.cypher, "gds.nodeSimilarity.filtered.stream") {
		t.Fatalf("cypher: %s", call.cypher)
	}
	if !strings.Contains(call.cypher, "node.type IN ['INFO', 'HUMAN']") {
		t.Fatalf("results must be limited to terminal types: %s", call.cypher)
	}
	if call.params["limit"] != 10 {
		t.Fatalf("limit must default to topK: %v", call.params["limit"])
	}
}
