package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// SatelliteRepo is shared by the Entity, Keyword and Tag labels. Content
// is unique per lib_id; attaching existing content reuses the satellite
// node and only adds an edge.
type SatelliteRepo interface {
	Attach(ctx context.Context, libID int64, nodeElementID, content string) (*Satellite, error)
	FindByContent(ctx context.Context, libID int64, content string) (*Satellite, bool, error)
	ListForNode(ctx context.Context, nodeElementID string) ([]Satellite, error)
	List(ctx context.Context, libID int64) ([]Satellite, error)
	Detach(ctx context.Context, satelliteElementID, nodeElementID string) error
	DetachAll(ctx context.Context, nodeElementID string) error
}

type satelliteRepo struct {
	store Store
	idx   *IndexManager
	label string
	log   *logger.Logger
}

func newSatelliteRepo(store Store, idx *IndexManager, baseLog *logger.Logger, label string) SatelliteRepo {
	return &satelliteRepo{
		store: store,
		idx:   idx,
		label: label,
		log:   baseLog.With("repo", strings.ToLower(label)),
	}
}

func NewEntityRepo(store Store, idx *IndexManager, baseLog *logger.Logger) SatelliteRepo {
	return newSatelliteRepo(store, idx, baseLog, LabelEntity)
}

func NewKeywordRepo(store Store, idx *IndexManager, baseLog *logger.Logger) SatelliteRepo {
	return newSatelliteRepo(store, idx, baseLog, LabelKeyword)
}

func NewTagRepo(store Store, idx *IndexManager, baseLog *logger.Logger) SatelliteRepo {
	return newSatelliteRepo(store, idx, baseLog, LabelTag)
}

// Attach upserts the satellite by (lib_id, content) and merges the edge
// to the owning node. MERGE on both keeps the uniqueness invariant even
// when two analyses race on the same content.
func (r *satelliteRepo) Attach(ctx context.Context, libID int64, nodeElementID, content string) (*Satellite, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, Validationf("%s content must not be empty", strings.ToLower(r.label))
	}
	if err := r.idx.Ensure(ctx, r.label); err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	rows, err := r.store.Run(ctx, fmt.Sprintf(`
		MATCH (n:Node) WHERE elementId(n) = $node_element_id
		MERGE (s:%s {lib_id: $lib_id, content: $content})
		ON CREATE SET s.created_at = $now, s.updated_at = $now
		MERGE (s)-[:HAS_CHILD]->(n)
		RETURN %s`, r.label, returnClause("s")),
		map[string]any{
			"node_element_id": nodeElementID,
			"lib_id":          libID,
			"content":         content,
			"now":             now,
		})
	if err != nil {
		return nil, StoreErr("attach "+strings.ToLower(r.label), err)
	}
	if len(rows) == 0 {
		return nil, NotFoundf("node %s", nodeElementID)
	}
	s := decodeSatellite(rows[0])
	return &s, nil
}

func (r *satelliteRepo) FindByContent(ctx context.Context, libID int64, content string) (*Satellite, bool, error) {
	rows, err := r.store.Run(ctx, fmt.Sprintf(`
		MATCH (s:%s {lib_id: $lib_id, content: $content})
		RETURN %s LIMIT 1`, r.label, returnClause("s")),
		map[string]any{"lib_id": libID, "content": strings.TrimSpace(content)})
	if err != nil {
		return nil, false, StoreErr("find "+strings.ToLower(r.label)+" by content", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	s := decodeSatellite(rows[0])
	return &s, true, nil
}

func (r *satelliteRepo) ListForNode(ctx context.Context, nodeElementID string) ([]Satellite, error) {
	rows, err := r.store.Run(ctx, fmt.Sprintf(`
		MATCH (s:%s)-[:HAS_CHILD]->(n:Node) WHERE elementId(n) = $node_element_id
		RETURN %s ORDER BY s.created_at`, r.label, returnClause("s")),
		map[string]any{"node_element_id": nodeElementID})
	if err != nil {
		return nil, StoreErr("list "+strings.ToLower(r.label)+"s for node", err)
	}
	return decodeSatellites(rows), nil
}

func (r *satelliteRepo) List(ctx context.Context, libID int64) ([]Satellite, error) {
	rows, err := r.store.Run(ctx, fmt.Sprintf(`
		MATCH (s:%s {lib_id: $lib_id})
		RETURN %s ORDER BY s.created_at`, r.label, returnClause("s")),
		map[string]any{"lib_id": libID})
	if err != nil {
		return nil, StoreErr("list "+strings.ToLower(r.label)+"s", err)
	}
	return decodeSatellites(rows), nil
}

// Detach removes the edge to one node and drops the satellite itself once
// nothing else references it.
func (r *satelliteRepo) Detach(ctx context.Context, satelliteElementID, nodeElementID string) error {
	_, err := r.store.Run(ctx, fmt.Sprintf(`
		MATCH (s:%s)-[e:HAS_CHILD]->(n:Node)
		WHERE elementId(s) = $satellite_element_id AND elementId(n) = $node_element_id
		DELETE e
		WITH s
		WHERE NOT (s)--()
		DELETE s`, r.label),
		map[string]any{
			"satellite_element_id": satelliteElementID,
			"node_element_id":      nodeElementID,
		})
	if err != nil {
		return StoreErr("detach "+strings.ToLower(r.label), err)
	}
	return nil
}

// DetachAll removes every edge from this label to the node, dropping
// satellites that end up orphaned. Analysis uses this before rebuilding
// the node's set.
func (r *satelliteRepo) DetachAll(ctx context.Context, nodeElementID string) error {
	_, err := r.store.Run(ctx, fmt.Sprintf(`
		MATCH (s:%s)-[e:HAS_CHILD]->(n:Node) WHERE elementId(n) = $node_element_id
		DELETE e
		WITH DISTINCT s
		WHERE NOT (s)--()
		DELETE s`, r.label),
		map[string]any{"node_element_id": nodeElementID})
	if err != nil {
		return StoreErr("detach "+strings.ToLower(r.label)+"s", err)
	}
	return nil
}

func decodeSatellites(rows []map[string]any) []Satellite {
	out := make([]Satellite, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeSatellite(row))
	}
	return out
}
