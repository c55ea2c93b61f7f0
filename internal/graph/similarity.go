package graph

import (
	"context"

	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// SimilarityRepo maintains the out-of-band similarity projection and
// queries it for nearest neighbors. The projection is a derived index,
// rebuilt when a library's publish status toggles, never touched by the
// mutation path.
type SimilarityRepo interface {
	ProjectionExists(ctx context.Context, name string) (bool, error)
	ListProjections(ctx context.Context) ([]string, error)
	BuildProjection(ctx context.Context, name string) error
	DropProjection(ctx context.Context, name string) error
	RebuildProjection(ctx context.Context, name string) error
	SimilarNodes(ctx context.Context, q SimilarQuery) ([]Node, error)
}

// SimilarQuery asks for the nearest neighbors of one source node,
// filtered to a library and to terminal node types.
type SimilarQuery struct {
	Projection      string
	LibID           int64
	SourceElementID string
	TopK            int
	Cutoff          float64
	Limit           int
}

type similarityRepo struct {
	store Store
	log   *logger.Logger
}

func NewSimilarityRepo(store Store, baseLog *logger.Logger) SimilarityRepo {
	return &similarityRepo{store: store, log: baseLog.With("repo", "similarity")}
}

func (r *similarityRepo) ProjectionExists(ctx context.Context, name string) (bool, error) {
	rows, err := r.store.Run(ctx, `
		CALL gds.graph.exists($name) YIELD exists RETURN exists`,
		map[string]any{"name": name})
	if err != nil {
		return false, StoreErr("check projection", err)
	}
	if len(rows) == 0 {
		return false, nil
	}
	exists, _ := rows[0]["exists"].(bool)
	return exists, nil
}

func (r *similarityRepo) ListProjections(ctx context.Context) ([]string, error) {
	rows, err := r.store.Run(ctx, `
		CALL gds.graph.list() YIELD graphName RETURN graphName`, nil)
	if err != nil {
		return nil, StoreErr("list projections", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, asString(row["graphName"]))
	}
	return out, nil
}

// BuildProjection projects every tree node plus both edge types. The
// vector properties ride along as node features.
func (r *similarityRepo) BuildProjection(ctx context.Context, name string) error {
	_, err := r.store.Run(ctx, `
		CALL gds.graph.project(
			$name,
			{Node: {properties: {
				title_vector: {defaultValue: null},
				content_vector: {defaultValue: null}
			}}},
			{HAS_CHILD: {orientation: 'UNDIRECTED'}, RELATED_TO: {orientation: 'UNDIRECTED'}}
		) YIELD graphName RETURN graphName`,
		map[string]any{"name": name})
	if err != nil {
		return StoreErr("build projection", err)
	}
	r.log.Info("similarity projection built", "name", name)
	return nil
}

func (r *similarityRepo) DropProjection(ctx context.Context, name string) error {
	_, err := r.store.Run(ctx, `
		CALL gds.graph.drop($name, false) YIELD graphName RETURN graphName`,
		map[string]any{"name": name})
	if err != nil {
		return StoreErr("drop projection", err)
	}
	return nil
}

func (r *similarityRepo) RebuildProjection(ctx context.Context, name string) error {
	if err := r.DropProjection(ctx, name); err != nil {
		return err
	}
	return r.BuildProjection(ctx, name)
}

// SimilarNodes streams filtered node similarity from the projection and
// keeps INFO/HUMAN neighbors of the same library, ordered by similarity.
func (r *similarityRepo) SimilarNodes(ctx context.Context, q SimilarQuery) ([]Node, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = q.TopK
	}
	rows, err := r.store.Run(ctx, `
		MATCH (source:Node) WHERE elementId(source) = $source_element_id
		CALL gds.nodeSimilarity.filtered.stream($projection, {
			topK: $top_k,
			similarityCutoff: $cutoff,
			sourceNodeFilter: source
		}) YIELD node2, similarity
		WITH gds.util.asNode(node2) AS node, similarity AS score
		WHERE node.lib_id = $lib_id AND node.type IN ['INFO', 'HUMAN']
		RETURN `+returnClause("node")+`, score
		ORDER BY score DESC LIMIT $limit`,
		map[string]any{
			"source_element_id": q.SourceElementID,
			"projection":        q.Projection,
			"top_k":             q.TopK,
			"cutoff":            q.Cutoff,
			"lib_id":            q.LibID,
			"limit":             limit,
		})
	if err != nil {
		return nil, StoreErr("similar nodes", err)
	}
	return decodeNodes(rows), nil
}
