package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// NodeRepo covers the tree-node category of the graph: creation, detail
// fetch with transient satellite aggregates, index-backed search, child
// traversal and cascading delete.
type NodeRepo interface {
	Create(ctx context.Context, n *Node) (*Node, error)
	EnsureRoot(ctx context.Context, libID int64) (*Node, error)
	GetByElementID(ctx context.Context, elementID string) (*Node, bool, error)
	GetDetail(ctx context.Context, elementID string) (*Node, bool, error)
	Update(ctx context.Context, n *Node) (*Node, error)
	SetVectors(ctx context.Context, elementID string, titleVector, contentVector []float32, embeddingModel string) error
	Delete(ctx context.Context, elementID string) error
	DeletePosterity(ctx context.Context, elementID string) error
	DeleteSubjectTree(ctx context.Context, libID, subjectID int64) error
	DeleteLibrary(ctx context.Context, libID int64) error
	ListByType(ctx context.Context, libID, subjectID int64, t NodeType) ([]Node, error)
	ListByLib(ctx context.Context, libID, subjectID int64) ([]Node, error)
	Children(ctx context.Context, elementID string, t NodeType) ([]Node, error)
	FirstChild(ctx context.Context, elementID string) (*Node, bool, error)
	Parent(ctx context.Context, elementID string) (*Node, bool, error)
	HumanNeighbors(ctx context.Context, libID, subjectID int64, elementID string) ([]Node, error)
	Overview(ctx context.Context, libID, subjectID int64) ([]Overview, error)
	FulltextSearch(ctx context.Context, q NodeSearch) ([]Node, error)
	VectorSearch(ctx context.Context, q NodeSearch) ([]Node, error)
}

// NodeSearch is one index query against the Node label. Field selects the
// title or content index pair; SubjectID 0 means any subject.
type NodeSearch struct {
	LibID     int64
	SubjectID int64
	Field     string // "title" or "content"
	Query     string
	Vector    []float32
	Types     []NodeType
	Cutoff    float64
	TopK      int
	Limit     int
}

type nodeRepo struct {
	store Store
	idx   *IndexManager
	log   *logger.Logger
}

func NewNodeRepo(store Store, idx *IndexManager, baseLog *logger.Logger) NodeRepo {
	return &nodeRepo{store: store, idx: idx, log: baseLog.With("repo", "node")}
}

func (r *nodeRepo) Create(ctx context.Context, n *Node) (*Node, error) {
	if strings.TrimSpace(n.Content) == "" {
		return nil, Validationf("node content must not be empty")
	}
	if !ValidNodeType(n.Type) {
		return nil, Validationf("unknown node type %q", n.Type)
	}
	if err := r.idx.Ensure(ctx, LabelNode); err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	rows, err := r.store.Run(ctx, `
		CREATE (n:Node {
			lib_id: $lib_id, subject_id: $subject_id, type: $type,
			content: $content, title: $title, embedding_model: '',
			depth: $depth, created_at: $now, updated_at: $now
		})
		RETURN `+returnClause("n"),
		map[string]any{
			"lib_id":     n.LibID,
			"subject_id": n.SubjectID,
			"type":       string(n.Type),
			"content":    n.Content,
			"title":      n.Title,
			"depth":      n.Depth,
			"now":        now,
		})
	if err != nil {
		return nil, StoreErr("create node", err)
	}
	if len(rows) == 0 {
		return nil, StoreErr("create node", fmt.Errorf("no row returned"))
	}
	created := decodeNode(rows[0])
	return &created, nil
}

// EnsureRoot returns the library's ROOT node, creating it when absent.
// MERGE keeps the at-most-one-per-library invariant under concurrency.
func (r *nodeRepo) EnsureRoot(ctx context.Context, libID int64) (*Node, error) {
	if err := r.idx.Ensure(ctx, LabelNode); err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	rows, err := r.store.Run(ctx, `
		MERGE (n:Node {lib_id: $lib_id, type: 'ROOT'})
		ON CREATE SET n.subject_id = 0, n.content = 'ROOT', n.title = '',
			n.embedding_model = '', n.depth = 0, n.created_at = $now, n.updated_at = $now
		RETURN `+returnClause("n"),
		map[string]any{"lib_id": libID, "now": now})
	if err != nil {
		return nil, StoreErr("ensure root node", err)
	}
	if len(rows) == 0 {
		return nil, StoreErr("ensure root node", fmt.Errorf("no row returned"))
	}
	root := decodeNode(rows[0])
	return &root, nil
}

func (r *nodeRepo) GetByElementID(ctx context.Context, elementID string) (*Node, bool, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (n:Node) WHERE elementId(n) = $element_id
		RETURN `+returnClause("n"),
		map[string]any{"element_id": elementID})
	if err != nil {
		return nil, false, StoreErr("get node", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	n := decodeNode(rows[0])
	return &n, true, nil
}

// GetDetail fetches the node plus its transient satellite aggregates.
func (r *nodeRepo) GetDetail(ctx context.Context, elementID string) (*Node, bool, error) {
	n, found, err := r.GetByElementID(ctx, elementID)
	if err != nil || !found {
		return nil, found, err
	}
	if n.Entities, err = r.attachedSatellites(ctx, elementID, LabelEntity); err != nil {
		return nil, false, err
	}
	if n.Keywords, err = r.attachedSatellites(ctx, elementID, LabelKeyword); err != nil {
		return nil, false, err
	}
	if n.Tags, err = r.attachedSatellites(ctx, elementID, LabelTag); err != nil {
		return nil, false, err
	}
	if n.Docs, err = r.attachedDocuments(ctx, elementID); err != nil {
		return nil, false, err
	}
	if n.WebPages, err = r.attachedWebPages(ctx, elementID); err != nil {
		return nil, false, err
	}
	return n, true, nil
}

func (r *nodeRepo) attachedSatellites(ctx context.Context, elementID, label string) ([]Satellite, error) {
	rows, err := r.store.Run(ctx, fmt.Sprintf(`
		MATCH (s:%s)-[:HAS_CHILD]->(n:Node) WHERE elementId(n) = $element_id
		RETURN %s ORDER BY s.created_at`, label, returnClause("s")),
		map[string]any{"element_id": elementID})
	if err != nil {
		return nil, StoreErr("list attached "+strings.ToLower(label)+"s", err)
	}
	out := make([]Satellite, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeSatellite(row))
	}
	return out, nil
}

func (r *nodeRepo) attachedDocuments(ctx context.Context, elementID string) ([]Document, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (d:Document)-[:HAS_CHILD]->(n:Node) WHERE elementId(n) = $element_id
		RETURN `+returnClause("d")+` ORDER BY d.created_at`,
		map[string]any{"element_id": elementID})
	if err != nil {
		return nil, StoreErr("list attached documents", err)
	}
	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeDocument(row))
	}
	return out, nil
}

func (r *nodeRepo) attachedWebPages(ctx context.Context, elementID string) ([]WebPage, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (w:WebPage)-[:HAS_CHILD]->(n:Node) WHERE elementId(n) = $element_id
		RETURN `+returnClause("w")+` ORDER BY w.created_at`,
		map[string]any{"element_id": elementID})
	if err != nil {
		return nil, StoreErr("list attached webpages", err)
	}
	out := make([]WebPage, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeWebPage(row))
	}
	return out, nil
}

// Update persists content, title and embedding model. Vectors go through
// SetVectors so a vector and its model name change together.
func (r *nodeRepo) Update(ctx context.Context, n *Node) (*Node, error) {
	if strings.TrimSpace(n.Content) == "" {
		return nil, Validationf("node content must not be empty")
	}
	rows, err := r.store.Run(ctx, `
		MATCH (n:Node) WHERE elementId(n) = $element_id
		SET n.content = $content, n.title = $title,
			n.embedding_model = $embedding_model, n.updated_at = $now
		RETURN `+returnClause("n"),
		map[string]any{
			"element_id":      n.ElementID,
			"content":         n.Content,
			"title":           n.Title,
			"embedding_model": n.EmbeddingModel,
			"now":             time.Now().Unix(),
		})
	if err != nil {
		return nil, StoreErr("update node", err)
	}
	if len(rows) == 0 {
		return nil, NotFoundf("node %s", n.ElementID)
	}
	updated := decodeNode(rows[0])
	return &updated, nil
}

// SetVectors writes vectors with db.create.setNodeVectorProperty and tags
// the producing model in the same statement. A nil vector leaves that
// field untouched.
func (r *nodeRepo) SetVectors(ctx context.Context, elementID string, titleVector, contentVector []float32, embeddingModel string) error {
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
	cypher := `
		MATCH (n:Node) WHERE elementId(n) = $element_id
		SET n.embedding_model = $embedding_model, n.updated_at = $now
		WITH n ` + strings.Join(calls, " WITH n ") + `
		RETURN elementId(n) AS element_id`
	rows, err := r.store.Run(ctx, cypher, params)
	if err != nil {
		return StoreErr("set node vectors", err)
	}
	if len(rows) == 0 {
		return NotFoundf("node %s", elementID)
	}
	return nil
}

// Delete removes the node, its exclusively-owned documents, webpages and
// their pages, and every inbound and outbound edge. Shared satellites
// lose only their edge to this node.
func (r *nodeRepo) Delete(ctx context.Context, elementID string) error {
	_, err := r.store.Run(ctx, `
		MATCH (n:Node) WHERE elementId(n) = $element_id
		OPTIONAL MATCH (d:Document)-[:HAS_CHILD]->(n)
		OPTIONAL MATCH (p:DocumentPage)-[:HAS_CHILD]->(d)
		OPTIONAL MATCH (w:WebPage)-[:HAS_CHILD]->(n)
		DETACH DELETE p, d, w, n`,
		map[string]any{"element_id": elementID})
	if err != nil {
		return StoreErr("delete node", err)
	}
	return nil
}

// DeletePosterity removes the node and every HAS_CHILD descendant, with
// the same attachment cascade as Delete.
func (r *nodeRepo) DeletePosterity(ctx context.Context, elementID string) error {
	_, err := r.store.Run(ctx, `
		MATCH (n:Node) WHERE elementId(n) = $element_id
		MATCH (n)-[:HAS_CHILD*0..]->(m:Node)
		OPTIONAL MATCH (d:Document)-[:HAS_CHILD]->(m)
		OPTIONAL MATCH (p:DocumentPage)-[:HAS_CHILD]->(d)
		OPTIONAL MATCH (w:WebPage)-[:HAS_CHILD]->(m)
		DETACH DELETE p, d, w, m`,
		map[string]any{"element_id": elementID})
	if err != nil {
		return StoreErr("delete node posterity", err)
	}
	return nil
}

// DeleteSubjectTree removes every non-ROOT tree node for (libID, subjectID)
// along with attached documents, pages and webpages. Re-generation calls
// this first, so running it against an absent subject is a no-op.
func (r *nodeRepo) DeleteSubjectTree(ctx context.Context, libID, subjectID int64) error {
	_, err := r.store.Run(ctx, `
		MATCH (n:Node {lib_id: $lib_id, subject_id: $subject_id})
		WHERE n.type <> 'ROOT'
		OPTIONAL MATCH (d:Document)-[:HAS_CHILD]->(n)
		OPTIONAL MATCH (p:DocumentPage)-[:HAS_CHILD]->(d)
		OPTIONAL MATCH (w:WebPage)-[:HAS_CHILD]->(n)
		DETACH DELETE p, d, w, n`,
		map[string]any{"lib_id": libID, "subject_id": subjectID})
	if err != nil {
		return StoreErr("delete subject tree", err)
	}
	return nil
}

// DeleteLibrary removes every graph node carrying the library id: the
// whole tree including ROOT, all satellites, documents, pages and
// webpages. Used when the relational KnowledgeLib row is dropped.
func (r *nodeRepo) DeleteLibrary(ctx context.Context, libID int64) error {
	for _, label := range []string{
		LabelDocumentPage, LabelDocument, LabelWebPage,
		LabelEntity, LabelKeyword, LabelTag, LabelNode,
	} {
		_, err := r.store.Run(ctx, fmt.Sprintf(`
			MATCH (n:%s {lib_id: $lib_id}) DETACH DELETE n`, label),
			map[string]any{"lib_id": libID})
		if err != nil {
			return StoreErr("delete library "+strings.ToLower(label)+"s", err)
		}
	}
	return nil
}

func (r *nodeRepo) ListByType(ctx context.Context, libID, subjectID int64, t NodeType) ([]Node, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (n:Node {lib_id: $lib_id, type: $type})
		WHERE $subject_id = 0 OR n.subject_id = $subject_id
		RETURN `+returnClause("n")+` ORDER BY n.created_at`,
		map[string]any{"lib_id": libID, "subject_id": subjectID, "type": string(t)})
	if err != nil {
		return nil, StoreErr("list nodes by type", err)
	}
	return decodeNodes(rows), nil
}

// ListByLib returns every tree node of the library, the raw material for
// nodes-and-links graph views.
func (r *nodeRepo) ListByLib(ctx context.Context, libID, subjectID int64) ([]Node, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (n:Node {lib_id: $lib_id})
		WHERE $subject_id = 0 OR n.subject_id = $subject_id OR n.type = 'ROOT'
		RETURN `+returnClause("n")+` ORDER BY n.depth, n.created_at`,
		map[string]any{"lib_id": libID, "subject_id": subjectID})
	if err != nil {
		return nil, StoreErr("list library nodes", err)
	}
	return decodeNodes(rows), nil
}

// Children lists direct HAS_CHILD targets, optionally filtered by type.
func (r *nodeRepo) Children(ctx context.Context, elementID string, t NodeType) ([]Node, error) {
	filter := ""
	params := map[string]any{"element_id": elementID}
	if t != "" {
		filter = " AND c.type = $type"
		params["type"] = string(t)
	}
	rows, err := r.store.Run(ctx, `
		MATCH (n:Node)-[:HAS_CHILD]->(c:Node)
		WHERE elementId(n) = $element_id`+filter+`
		RETURN `+returnClause("c")+` ORDER BY c.created_at`,
		params)
	if err != nil {
		return nil, StoreErr("list node children", err)
	}
	return decodeNodes(rows), nil
}

func (r *nodeRepo) FirstChild(ctx context.Context, elementID string) (*Node, bool, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (n:Node)-[:HAS_CHILD]->(c:Node)
		WHERE elementId(n) = $element_id
		RETURN `+returnClause("c")+` ORDER BY c.created_at LIMIT 1`,
		map[string]any{"element_id": elementID})
	if err != nil {
		return nil, false, StoreErr("get first child", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	c := decodeNode(rows[0])
	return &c, true, nil
}

func (r *nodeRepo) Parent(ctx context.Context, elementID string) (*Node, bool, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (p:Node)-[:HAS_CHILD]->(n:Node)
		WHERE elementId(n) = $element_id
		RETURN `+returnClause("p")+` LIMIT 1`,
		map[string]any{"element_id": elementID})
	if err != nil {
		return nil, false, StoreErr("get parent", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	p := decodeNode(rows[0])
	return &p, true, nil
}

// HumanNeighbors lists HUMAN nodes directly connected in either direction.
func (r *nodeRepo) HumanNeighbors(ctx context.Context, libID, subjectID int64, elementID string) ([]Node, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (n:Node)-[]-(h:Node {type: 'HUMAN', lib_id: $lib_id})
		WHERE elementId(n) = $element_id
		AND ($subject_id = 0 OR h.subject_id = $subject_id)
		RETURN DISTINCT `+returnClause("h")+` ORDER BY h.created_at`,
		map[string]any{"element_id": elementID, "lib_id": libID, "subject_id": subjectID})
	if err != nil {
		return nil, StoreErr("list human neighbors", err)
	}
	return decodeNodes(rows), nil
}

func (r *nodeRepo) Overview(ctx context.Context, libID, subjectID int64) ([]Overview, error) {
	rows, err := r.store.Run(ctx, `
		MATCH (n:Node {lib_id: $lib_id})
		WHERE $subject_id = 0 OR n.subject_id = $subject_id
		RETURN n.type AS type, count(n) AS count ORDER BY count DESC`,
		map[string]any{"lib_id": libID, "subject_id": subjectID})
	if err != nil {
		return nil, StoreErr("node overview", err)
	}
	out := make([]Overview, 0, len(rows))
	for _, row := range rows {
		out = append(out, Overview{Type: asString(row["type"]), Count: asInt64(row["count"])})
	}
	return out, nil
}

// FulltextSearch queries the label's Lucene index for q.Field.
func (r *nodeRepo) FulltextSearch(ctx context.Context, q NodeSearch) ([]Node, error) {
	index := ContentFulltextIndex(LabelNode)
	if q.Field == "title" {
		index = TitleFulltextIndex(LabelNode)
	}
	rows, err := r.store.Run(ctx, `
		CALL db.index.fulltext.queryNodes($index, $query) YIELD node, score
		WHERE node.lib_id = $lib_id
		AND ($subject_id = 0 OR node.subject_id = $subject_id)
		AND ($types = [] OR node.type IN $types)
		AND score >= $cutoff
		RETURN `+returnClause("node")+`, score
		ORDER BY score DESC LIMIT $limit`,
		q.params(index))
	if err != nil {
		return nil, StoreErr("fulltext node search", err)
	}
	return decodeNodes(rows), nil
}

// VectorSearch queries the label's nearest-neighbor index for q.Field.
func (r *nodeRepo) VectorSearch(ctx context.Context, q NodeSearch) ([]Node, error) {
	index := ContentVectorIndex(LabelNode)
	if q.Field == "title" {
		index = TitleVectorIndex(LabelNode)
	}
	rows, err := r.store.Run(ctx, `
		CALL db.index.vector.queryNodes($index, $top_k, $vector) YIELD node, score
		WHERE node.lib_id = $lib_id
		AND ($subject_id = 0 OR node.subject_id = $subject_id)
		AND ($types = [] OR node.type IN $types)
		AND score >= $cutoff
		RETURN `+returnClause("node")+`, score
		ORDER BY score DESC LIMIT $limit`,
		q.params(index))
	if err != nil {
		return nil, StoreErr("vector node search", err)
	}
	return decodeNodes(rows), nil
}

func (q NodeSearch) params(index string) map[string]any {
	types := make([]string, 0, len(q.Types))
	for _, t := range q.Types {
		types = append(types, string(t))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 1
	}
	topK := q.TopK
	if topK <= 0 {
		topK = limit
	}
	return map[string]any{
		"index":      index,
		"query":      q.Query,
		"vector":     q.Vector,
		"lib_id":     q.LibID,
		"subject_id": q.SubjectID,
		"types":      types,
		"cutoff":     q.Cutoff,
		"top_k":      topK,
		"limit":      limit,
	}
}

func decodeNodes(rows []map[string]any) []Node {
	out := make([]Node, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeNode(row))
	}
	return out
}
