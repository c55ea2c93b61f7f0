package graph

import (
	"context"
	"strings"
	"time"

	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// WebPageRepo covers crawled URLs attached to tree nodes.
type WebPageRepo interface {
	Create(ctx context.Context, libID int64, nodeElementID, url string) (*WebPage, error)
	GetByElementID(ctx context.Context, elementID string) (*WebPage, bool, error)
	Update(ctx context.Context, w *WebPage) (*WebPage, error)
	SetVectors(ctx context.Context, elementID string, titleVector, contentVector []float32, embeddingModel string) error
	Delete(ctx context.Context, elementID string) error
	ListForNode(ctx context.Context, nodeElementID string) ([]WebPage, error)
	List(ctx context.Context, libID int64) ([]WebPage, error)
	OwnerNode(ctx context.Context, webPageElementID string) (*Node, bool, error)
	FulltextSearch(ctx context.Context, q LibSearch) ([]WebPage, error)
	VectorSearch(ctx context.Context, q LibSearch) ([]WebPage, error)
}

type webPageRepo struct {
	store Store
	idx   *IndexManager
	log   *logger.Logger
}

func NewWebPageRepo(store Store, idx *IndexManager, baseLog *logger.Logger) WebPageRepo {
	return &webPageRepo{store: store, idx: idx, log: baseLog.With("repo", "webpage")}
}

func (r *webPageRepo) Create(ctx context.Context, libID int64, nodeElementID, url string) (*WebPage, error) {
	if strings.TrimSpace(url) == "" {
		return nil, Validationf("webpage url must not be empty")
	}
	if err := r.idx.Ensure(ctx, LabelWebPage); err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	rows, err := r.store.Run(ctx, `
		MATCH (n:Node) WHERE elementId(n) = $node_element_id
		CREATE (w:WebPage {
			lib_id: $lib_id, url: $url, title: '', content: '',
			embedding_model: '', created_at: $now, updated_at: $now
		})
		CREATE (w)-[:HAS_CHILD]->(n)
		RETURN `+returnClause("w"),
		map[string]any{
			"node_element_id": nodeElementID,
			"lib_id":          libID,
			"url":             url,
			"now":             now,
		})
	if err != nil {
		return nil, StoreErr("create webpage", err)
	}
	if len(rows) == 0 {
		return nil, NotFoundf("node %s", nodeElementID)
	}
	w := decodeWebPage(rows[0])
	return &w, nil
}

func (r *webPageRepo) GetByElementID(ctx context.Context, elementID string) (*WebPage, bool, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (w:WebPage) WHERE elementId(w) = $element_id
		RETURN `+returnClause("w"),
		map[string]any{"element_id": elementID})
	if err != nil {
		return nil, false, StoreErr("get webpage", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	w := decodeWebPage(rows[0])
	return &w, true, nil
}

func (r *webPageRepo) Update(ctx context.Context, w *WebPage) (*WebPage, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (w:WebPage) WHERE elementId(w) = $element_id
		SET w.title = $title, w.content = $content,
			w.embedding_model = $embedding_model, w.updated_at = $now
		RETURN `+returnClause("w"),
		map[string]any{
			"element_id":      w.ElementID,
			"title":           w.Title,
			"content":         w.Content,
			"embedding_model": w.EmbeddingModel,
			"now":             time.Now().Unix(),
		})
	if err != nil {
		return nil, StoreErr("update webpage", err)
	}
	if len(rows) == 0 {
		return nil, NotFoundf("webpage %s", w.ElementID)
	}
	updated := decodeWebPage(rows[0])
	return &updated, nil
}

func (r *webPageRepo) SetVectors(ctx context.Context, elementID string, titleVector, contentVector []float32, embeddingModel string) error {
	return setLabelVectors(ctx, r.store, LabelWebPage, elementID, titleVector, contentVector, embeddingModel)
}

func (r *webPageRepo) Delete(ctx context.Context, elementID string) error {
	_, err := r.store.Run(ctx, `
		MATCH (w:WebPage) WHERE elementId(w) = $element_id
		DETACH DELETE w`,
		map[string]any{"element_id": elementID})
	if err != nil {
		return StoreErr("delete webpage", err)
	}
	return nil
}

func (r *webPageRepo) ListForNode(ctx context.Context, nodeElementID string) ([]WebPage, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (w:WebPage)-[:HAS_CHILD]->(n:Node) WHERE elementId(n) = $node_element_id
		RETURN `+returnClause("w")+` ORDER BY w.created_at`,
		map[string]any{"node_element_id": nodeElementID})
	if err != nil {
		return nil, StoreErr("list webpages for node", err)
	}
	return decodeWebPages(rows), nil
}

func (r *webPageRepo) List(ctx context.Context, libID int64) ([]WebPage, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (w:WebPage {lib_id: $lib_id})
		RETURN `+returnClause("w")+` ORDER BY w.created_at`,
		map[string]any{"lib_id": libID})
	if err != nil {
		return nil, StoreErr("list webpages", err)
	}
	return decodeWebPages(rows), nil
}

func (r *webPageRepo) OwnerNode(ctx context.Context, webPageElementID string) (*Node, bool, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (w:WebPage)-[:HAS_CHILD]->(n:Node) WHERE elementId(w) = $element_id
		RETURN `+returnClause("n")+` LIMIT 1`,
		map[string]any{"element_id": webPageElementID})
	if err != nil {
		return nil, false, StoreErr("get webpage owner", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	n := decodeNode(rows[0])
	return &n, true, nil
}

func (r *webPageRepo) FulltextSearch(ctx context.Context, q LibSearch) ([]WebPage, error) {
	rows, err := runLibFulltext(ctx, r.store, LabelWebPage, q)
	if err != nil {
		return nil, StoreErr("fulltext webpage search", err)
	}
	return decodeWebPages(rows), nil
}

func (r *webPageRepo) VectorSearch(ctx context.Context, q LibSearch) ([]WebPage, error) {
	rows, err := runLibVector(ctx, r.store, LabelWebPage, q)
	if err != nil {
		return nil, StoreErr("vector webpage search", err)
	}
	return decodeWebPages(rows), nil
}

func decodeWebPages(rows []map[string]any) []WebPage {
	out := make([]WebPage, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeWebPage(row))
	}
	return out
}
