package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// LibSearch is one index query against a library-scoped satellite label
// (Document, DocumentPage, WebPage).
type LibSearch struct {
	LibID  int64
	Field  string // "title" or "content"
	Query  string
	Vector []float32
	Cutoff float64
	TopK   int
	Limit  int
}

func (q LibSearch) params(index string) map[string]any {
	limit := q.Limit
	if limit <= 0 {
		limit = 1
	}
	topK := q.TopK
	if topK <= 0 {
		topK = limit
	}
	return map[string]any{
		"index":  index,
		"query":  q.Query,
		"vector": q.Vector,
		"lib_id": q.LibID,
		"cutoff": q.Cutoff,
		"top_k":  topK,
		"limit":  limit,
	}
}

// DocumentRepo covers uploaded documents and their ordered page slices.
type DocumentRepo interface {
	Create(ctx context.Context, libID int64, nodeElementID, name, savedPath string) (*Document, error)
	GetByElementID(ctx context.Context, elementID string) (*Document, bool, error)
	Update(ctx context.Context, d *Document) (*Document, error)
	SetVectors(ctx context.Context, elementID string, titleVector, contentVector []float32, embeddingModel string) error
	Delete(ctx context.Context, elementID string) error
	ListForNode(ctx context.Context, nodeElementID string) ([]Document, error)
	List(ctx context.Context, libID int64) ([]Document, error)
	OwnerNode(ctx context.Context, docElementID string) (*Node, bool, error)
	ReplacePages(ctx context.Context, docElementID string, libID int64, pages []DocumentPage) error
	Pages(ctx context.Context, docElementID string) ([]DocumentPage, error)
	PageOwner(ctx context.Context, pageElementID string) (*Document, bool, error)
	FulltextSearch(ctx context.Context, q LibSearch) ([]Document, error)
	VectorSearch(ctx context.Context, q LibSearch) ([]Document, error)
	PageFulltextSearch(ctx context.Context, q LibSearch) ([]DocumentPage, error)
	PageVectorSearch(ctx context.Context, q LibSearch) ([]DocumentPage, error)
}

type documentRepo struct {
	store Store
	idx   *IndexManager
	log   *logger.Logger
}

func NewDocumentRepo(store Store, idx *IndexManager, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{store: store, idx: idx, log: baseLog.With("repo", "document")}
}

func (r *documentRepo) Create(ctx context.Context, libID int64, nodeElementID, name, savedPath string) (*Document, error) {
	if name == "" {
		return nil, Validationf("document name must not be empty")
	}
	if err := r.idx.Ensure(ctx, LabelDocument); err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	rows, err := r.store.Run(ctx, `
		MATCH (n:Node) WHERE elementId(n) = $node_element_id
		CREATE (d:Document {
			lib_id: $lib_id, name: $name, saved_path: $saved_path,
			title: '', content: '', embedding_model: '',
			created_at: $now, updated_at: $now
		})
		CREATE (d)-[:HAS_CHILD]->(n)
		RETURN `+returnClause("d"),
		map[string]any{
			"node_element_id": nodeElementID,
			"lib_id":          libID,
			"name":            name,
			"saved_path":      savedPath,
			"now":             now,
		})
	if err != nil {
		return nil, StoreErr("create document", err)
	}
	if len(rows) == 0 {
		return nil, NotFoundf("node %s", nodeElementID)
	}
	d := decodeDocument(rows[0])
	return &d, nil
}

func (r *documentRepo) GetByElementID(ctx context.Context, elementID string) (*Document, bool, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (d:Document) WHERE elementId(d) = $element_id
		RETURN `+returnClause("d"),
		map[string]any{"element_id": elementID})
	if err != nil {
		return nil, false, StoreErr("get document", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	d := decodeDocument(rows[0])
	return &d, true, nil
}

func (r *documentRepo) Update(ctx context.Context, d *Document) (*Document, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (d:Document) WHERE elementId(d) = $element_id
		SET d.title = $title, d.content = $content,
			d.embedding_model = $embedding_model, d.updated_at = $now
		RETURN `+returnClause("d"),
		map[string]any{
			"element_id":      d.ElementID,
			"title":           d.Title,
			"content":         d.Content,
			"embedding_model": d.EmbeddingModel,
			"now":             time.Now().Unix(),
		})
	if err != nil {
		return nil, StoreErr("update document", err)
	}
	if len(rows) == 0 {
		return nil, NotFoundf("document %s", d.ElementID)
	}
	updated := decodeDocument(rows[0])
	return &updated, nil
}

func (r *documentRepo) SetVectors(ctx context.Context, elementID string, titleVector, contentVector []float32, embeddingModel string) error {
	return setLabelVectors(ctx, r.store, LabelDocument, elementID, titleVector, contentVector, embeddingModel)
}

func (r *documentRepo) Delete(ctx context.Context, elementID string) error {
	_, err := r.store.Run(ctx, `
		MATCH (d:Document) WHERE elementId(d) = $element_id
		OPTIONAL MATCH (p:DocumentPage)-[:HAS_CHILD]->(d)
		DETACH DELETE p, d`,
		map[string]any{"element_id": elementID})
	if err != nil {
		return StoreErr("delete document", err)
	}
	return nil
}

func (r *documentRepo) ListForNode(ctx context.Context, nodeElementID string) ([]Document, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (d:Document)-[:HAS_CHILD]->(n:Node) WHERE elementId(n) = $node_element_id
		RETURN `+returnClause("d")+` ORDER BY d.created_at`,
		map[string]any{"node_element_id": nodeElementID})
	if err != nil {
		return nil, StoreErr("list documents for node", err)
	}
	return decodeDocuments(rows), nil
}

func (r *documentRepo) List(ctx context.Context, libID int64) ([]Document, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (d:Document {lib_id: $lib_id})
		RETURN `+returnClause("d")+` ORDER BY d.created_at`,
		map[string]any{"lib_id": libID})
	if err != nil {
		return nil, StoreErr("list documents", err)
	}
	return decodeDocuments(rows), nil
}

// OwnerNode back-traverses to the tree node the document hangs under.
func (r *documentRepo) OwnerNode(ctx context.Context, docElementID string) (*Node, bool, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (d:Document)-[:HAS_CHILD]->(n:Node) WHERE elementId(d) = $element_id
		RETURN `+returnClause("n")+` LIMIT 1`,
		map[string]any{"element_id": docElementID})
	if err != nil {
		return nil, false, StoreErr("get document owner", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	n := decodeNode(rows[0])
	return &n, true, nil
}

// ReplacePages drops any prior slices and writes the new ordered set.
// Page vectors are attached per page in a second statement so the vector
// write uses the store's vector property procedure.
func (r *documentRepo) ReplacePages(ctx context.Context, docElementID string, libID int64, pages []DocumentPage) error {
	if err := r.idx.Ensure(ctx, LabelDocumentPage); err != nil {
		return err
	}
	_, err := r.store.Run(ctx, `
		MATCH (p:DocumentPage)-[:HAS_CHILD]->(d:Document) WHERE elementId(d) = $element_id
		DETACH DELETE p`,
		map[string]any{"element_id": docElementID})
	if err != nil {
		return StoreErr("delete document pages", err)
	}
	now := time.Now().Unix()
	for _, page := range pages {
		rows, err := r.store.Run(ctx, `
			MATCH (d:Document) WHERE elementId(d) = $element_id
			CREATE (p:DocumentPage {
				lib_id: $lib_id, page_no: $page_no, content: $content,
				embedding_model: $embedding_model, created_at: $now, updated_at: $now
			})
			CREATE (p)-[:HAS_CHILD]->(d)
			RETURN elementId(p) AS element_id`,
			map[string]any{
				"element_id":      docElementID,
				"lib_id":          libID,
				"page_no":         page.PageNo,
				"content":         page.Content,
				"embedding_model": page.EmbeddingModel,
				"now":             now,
			})
		if err != nil {
			return StoreErr("create document page", err)
		}
		if len(rows) == 0 {
			return NotFoundf("document %s", docElementID)
		}
		if page.ContentVector != nil {
			pageElementID := asString(rows[0]["element_id"])
			if err := setLabelVectors(ctx, r.store, LabelDocumentPage, pageElementID, nil, page.ContentVector, page.EmbeddingModel); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *documentRepo) Pages(ctx context.Context, docElementID string) ([]DocumentPage, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (p:DocumentPage)-[:HAS_CHILD]->(d:Document) WHERE elementId(d) = $element_id
		RETURN `+returnClause("p")+` ORDER BY p.page_no`,
		map[string]any{"element_id": docElementID})
	if err != nil {
		return nil, StoreErr("list document pages", err)
	}
	out := make([]DocumentPage, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeDocumentPage(row))
	}
	return out, nil
}

func (r *documentRepo) PageOwner(ctx context.Context, pageElementID string) (*Document, bool, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (p:DocumentPage)-[:HAS_CHILD]->(d:Document) WHERE elementId(p) = $element_id
		RETURN `+returnClause("d")+` LIMIT 1`,
		map[string]any{"element_id": pageElementID})
	if err != nil {
		return nil, false, StoreErr("get page owner", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	d := decodeDocument(rows[0])
	return &d, true, nil
}

func (r *documentRepo) FulltextSearch(ctx context.Context, q LibSearch) ([]Document, error) {
	rows, err := runLibFulltext(ctx, r.store, LabelDocument, q)
	if err != nil {
		return nil, StoreErr("fulltext document search", err)
	}
	return decodeDocuments(rows), nil
}

func (r *documentRepo) VectorSearch(ctx context.Context, q LibSearch) ([]Document, error) {
	rows, err := runLibVector(ctx, r.store, LabelDocument, q)
	if err != nil {
		return nil, StoreErr("vector document search", err)
	}
	return decodeDocuments(rows), nil
}

func (r *documentRepo) PageFulltextSearch(ctx context.Context, q LibSearch) ([]DocumentPage, error) {
	rows, err := runLibFulltext(ctx, r.store, LabelDocumentPage, q)
	if err != nil {
		return nil, StoreErr("fulltext page search", err)
	}
	out := make([]DocumentPage, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeDocumentPage(row))
	}
	return out, nil
}

func (r *documentRepo) PageVectorSearch(ctx context.Context, q LibSearch) ([]DocumentPage, error) {
	rows, err := runLibVector(ctx, r.store, LabelDocumentPage, q)
	if err != nil {
		return nil, StoreErr("vector page search", err)
	}
	out := make([]DocumentPage, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeDocumentPage(row))
	}
	return out, nil
}

func decodeDocuments(rows []map[string]any) []Document {
	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeDocument(row))
	}
	return out
}

// ---- shared label helpers ----

func setLabelVectors(ctx context.Context, store Store, label, elementID string, titleVector, contentVector []float32, embeddingModel string) error {
	if titleVector == nil && contentVector == nil {
		return nil
	}
	var calls []string
	params := map[string]any{
		"element_id":      elementID,
		"embedding_model": embeddingModel,
		"now":             time.Now().Unix(),
	}
	if titleVector != nil {
		calls = append(calls, "CALL db.create.setNodeVectorProperty(n, 'title_vector', $title_vector)")
		params["title_vector"] = titleVector
	}
	if contentVector != nil {
		calls = append(calls, "CALL db.create.setNodeVectorProperty(n, 'content_vector', $content_vector)")
		params["content_vector"] = contentVector
	}
	cypher := fmt.Sprintf(`
		MATCH (n:%s) WHERE elementId(n) = $element_id
		SET n.embedding_model = $embedding_model, n.updated_at = $now
		WITH n %s
		RETURN elementId(n) AS element_id`, label, joinWithN(calls))
	rows, err := store.Run(ctx, cypher, params)
	if err != nil {
		return StoreErr("set "+label+" vectors", err)
	}
	if len(rows) == 0 {
		return NotFoundf("%s %s", label, elementID)
	}
	return nil
}

func joinWithN(calls []string) string {
	out := ""
	for i, c := range calls {
		if i > 0 {
			out += " WITH n "
		}
		out += c
	}
	return out
}

func runLibFulltext(ctx context.Context, store Store, label string, q LibSearch) ([]map[string]any, error) {
	index := ContentFulltextIndex(label)
	if q.Field == "title" {
		index = TitleFulltextIndex(label)
	}
	return store.Run(ctx, `
		CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
		WHERE node.lib_id = $lib_id AND score >= $cutoff
		RETURN `+returnClause("node")+`, score
		ORDER BY score DESC LIMIT $limit`,
		q.params(index))
}

func runLibVector(ctx context.Context, store Store, label string, q LibSearch) ([]map[string]any, error) {
	index := ContentVectorIndex(label)
	if q.Field == "title" {
		index = TitleVectorIndex(label)
	}
	return store.Run(ctx, `
		CALL db.index.vector.queryNodes($index, $top_k, $vector) YIELD node, score
		WHERE node.lib_id = $lib_id AND score >= $cutoff
		RETURN `+returnClause("node")+`, score
		ORDER BY score DESC LIMIT $limit`,
		q.params(index))
}
