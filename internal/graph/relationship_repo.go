package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// RelationshipRepo covers typed edges between tree nodes.
type RelationshipRepo interface {
	Create(ctx context.Context, rel *Relationship) (*Relationship, error)
	GetByElementID(ctx context.Context, elementID string) (*Relationship, bool, error)
	UpdateContent(ctx context.Context, elementID, content string) (*Relationship, error)
	SetContentVector(ctx context.Context, elementID string, vector []float32, embeddingModel string) error
	Delete(ctx context.Context, elementID string) error
	DeleteBetween(ctx context.Context, sourceElementID, targetElementID string) error
	ListBySource(ctx context.Context, sourceElementID string, t RelationshipType) ([]Relationship, error)
	ListByLib(ctx context.Context, libID, subjectID int64) ([]Relationship, error)
	Overview(ctx context.Context, libID, subjectID int64) ([]Overview, error)
}

type relationshipRepo struct {
	store Store
	log   *logger.Logger
}

func NewRelationshipRepo(store Store, baseLog *logger.Logger) RelationshipRepo {
	return &relationshipRepo{store: store, log: baseLog.With("repo", "relationship")}
}

const relReturn = `properties(r) AS props, elementId(r) AS element_id, id(r) AS id,
	type(r) AS type, elementId(a) AS source_element_id, elementId(b) AS target_element_id`

func (r *relationshipRepo) Create(ctx context.Context, rel *Relationship) (*Relationship, error) {
	if !ValidRelationshipType(rel.Type) {
		return nil, Validationf("unknown relationship type %q", rel.Type)
	}
	if rel.SourceElementID == "" || rel.TargetElementID == "" {
		return nil, Validationf("relationship endpoints are required")
	}
	now := time.Now().Unix()
	rows, err := r.store.Run(ctx, fmt.Sprintf(`
		MATCH (a:Node) WHERE elementId(a) = $source
		MATCH (b:Node) WHERE elementId(b) = $target
		CREATE (a)-[r:%s {
			lib_id: $lib_id, subject_id: $subject_id, content: $content,
			created_at: $now, updated_at: $now
		}]->(b)
		RETURN `+relReturn, rel.Type),
		map[string]any{
			"source":     rel.SourceElementID,
			"target":     rel.TargetElementID,
			"lib_id":     rel.LibID,
			"subject_id": rel.SubjectID,
			"content":    rel.Content,
			"now":        now,
		})
	if err != nil {
		return nil, StoreErr("create relationship", err)
	}
	if len(rows) == 0 {
		return nil, NotFoundf("relationship endpoint %s or %s", rel.SourceElementID, rel.TargetElementID)
	}
	created := decodeRelationship(rows[0])
	return &created, nil
}

func (r *relationshipRepo) GetByElementID(ctx context.Context, elementID string) (*Relationship, bool, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (a:Node)-[r]->(b:Node) WHERE elementId(r) = $element_id
		RETURN `+relReturn,
		map[string]any{"element_id": elementID})
	if err != nil {
		return nil, false, StoreErr("get relationship", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	rel := decodeRelationship(rows[0])
	return &rel, true, nil
}

func (r *relationshipRepo) UpdateContent(ctx context.Context, elementID, content string) (*Relationship, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (a:Node)-[r]->(b:Node) WHERE elementId(r) = $element_id
		SET r.content = $content, r.updated_at = $now
		RETURN `+relReturn,
		map[string]any{"element_id": elementID, "content": content, "now": time.Now().Unix()})
	if err != nil {
		return nil, StoreErr("update relationship", err)
	}
	if len(rows) == 0 {
		return nil, NotFoundf("relationship %s", elementID)
	}
	rel := decodeRelationship(rows[0])
	return &rel, nil
}

// SetContentVector writes the edge's content vector together with the
// producing model name.
func (r *relationshipRepo) SetContentVector(ctx context.Context, elementID string, vector []float32, embeddingModel string) error {
	if vector == nil {
		return nil
	}
	rows, err := r.store.Run(ctx, `
		MATCH (a:Node)-[r]->(b:Node) WHERE elementId(r) = $element_id
		SET r.embedding_model = $embedding_model, r.updated_at = $now
		WITH r CALL db.create.setRelationshipVectorProperty(r, 'content_vector', $vector)
		RETURN elementId(r) AS element_id`,
		map[string]any{
			"element_id":      elementID,
			"vector":          vector,
			"embedding_model": embeddingModel,
			"now":             time.Now().Unix(),
		})
	if err != nil {
		return StoreErr("set relationship vector", err)
	}
	if len(rows) == 0 {
		return NotFoundf("relationship %s", elementID)
	}
	return nil
}

func (r *relationshipRepo) Delete(ctx context.Context, elementID string) error {
	_, err := r.store.Run(ctx, `
		MATCH ()-[r]->() WHERE elementId(r) = $element_id DELETE r`,
		map[string]any{"element_id": elementID})
	if err != nil {
		return StoreErr("delete relationship", err)
	}
	return nil
}

func (r *relationshipRepo) DeleteBetween(ctx context.Context, sourceElementID, targetElementID string) error {
	_, err := r.store.Run(ctx, `
		MATCH (a)-[r]->(b)
		WHERE elementId(a) = $source AND elementId(b) = $target
		DELETE r`,
		map[string]any{"source": sourceElementID, "target": targetElementID})
	if err != nil {
		return StoreErr("delete relationships between nodes", err)
	}
	return nil
}

func (r *relationshipRepo) ListBySource(ctx context.Context, sourceElementID string, t RelationshipType) ([]Relationship, error) {
	filter := ""
	params := map[string]any{"source": sourceElementID}
	if t != "" {
		filter = " AND type(r) = $type"
		params["type"] = string(t)
	}
	rows, err := r.store.Run(ctx, `
		MATCH (a:Node)-[r]->(b:Node)
		WHERE elementId(a) = $source`+filter+`
		RETURN `+relReturn+` ORDER BY r.created_at`,
		params)
	if err != nil {
		return nil, StoreErr("list relationships", err)
	}
	out := make([]Relationship, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeRelationship(row))
	}
	return out, nil
}

// ListByLib returns every edge of the library, paired with ListByLib on
// the node repo for graph views.
func (r *relationshipRepo) ListByLib(ctx context.Context, libID, subjectID int64) ([]Relationship, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (a:Node)-[r]->(b:Node)
		WHERE r.lib_id = $lib_id AND ($subject_id = 0 OR r.subject_id = $subject_id)
		RETURN `+relReturn+` ORDER BY r.created_at`,
		map[string]any{"lib_id": libID, "subject_id": subjectID})
	if err != nil {
		return nil, StoreErr("list library relationships", err)
	}
	out := make([]Relationship, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeRelationship(row))
	}
	return out, nil
}

func (r *relationshipRepo) Overview(ctx context.Context, libID, subjectID int64) ([]Overview, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (:Node)-[r]->(:Node)
		WHERE r.lib_id = $lib_id AND ($subject_id = 0 OR r.subject_id = $subject_id)
		RETURN type(r) AS type, count(r) AS count ORDER BY count DESC`,
		map[string]any{"lib_id": libID, "subject_id": subjectID})
	if err != nil {
		return nil, StoreErr("relationship overview", err)
	}
	out := make([]Overview, 0, len(rows))
	for _, row := range rows {
		out = append(out, Overview{Type: asString(row["type"]), Count: asInt64(row["count"])})
	}
	return out, nil
}
