package graph

import (
	"context"
	"fmt"
	"strings"
)

// Store is the capability the repositories need from a property-graph
// database: parametrized query execution returning rows of properties.
// Satisfied by *neo4jdb.Client.
type Store interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// NodeType discriminates the tree-node categories sharing the Node label.
type NodeType string

const (
	TypeRoot     NodeType = "ROOT"
	TypeSubject  NodeType = "SUBJECT"
	TypePrompt   NodeType = "PROMPT"
	TypeInfo     NodeType = "INFO"
	TypeHuman    NodeType = "HUMAN"
	TypeQuestion NodeType = "QUESTION"
)

func ValidNodeType(t NodeType) bool {
	switch t {
	case TypeRoot, TypeSubject, TypePrompt, TypeInfo, TypeHuman, TypeQuestion:
		return true
	}
	return false
}

// RelationshipType is the edge discriminator.
type RelationshipType string

const (
	RelHasChild  RelationshipType = "HAS_CHILD"
	RelRelatedTo RelationshipType = "RELATED_TO"
)

func ValidRelationshipType(t RelationshipType) bool {
	return t == RelHasChild || t == RelRelatedTo
}

// Node labels as persisted in the store.
const (
	LabelNode         = "Node"
	LabelEntity       = "Entity"
	LabelKeyword      = "Keyword"
	LabelTag          = "Tag"
	LabelDocument     = "Document"
	LabelDocumentPage = "DocumentPage"
	LabelWebPage      = "WebPage"
)

// Node is a tree node. The satellite slices are transient aggregates,
// populated only by detail fetches, never by list or search operations.
type Node struct {
	ID             int64     `json:"id"`
	ElementID      string    `json:"element_id"`
	LibID          int64     `json:"lib_id"`
	SubjectID      int64     `json:"subject_id"`
	Type           NodeType  `json:"type"`
	Content        string    `json:"content"`
	Title          string    `json:"title,omitempty"`
	TitleVector    []float32 `json:"-"`
	ContentVector  []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	Depth          int       `json:"depth"`
	CreatedAt      int64     `json:"created_at"`
	UpdatedAt      int64     `json:"updated_at"`

	Score float64 `json:"score,omitempty"`

	Entities []Satellite `json:"entities,omitempty"`
	Keywords []Satellite `json:"keywords,omitempty"`
	Tags     []Satellite `json:"tags,omitempty"`
	Docs     []Document  `json:"documents,omitempty"`
	WebPages []WebPage   `json:"webpages,omitempty"`
}

// Relationship is a directed edge between two nodes.
type Relationship struct {
	ID              int64            `json:"id"`
	ElementID       string           `json:"element_id"`
	LibID           int64            `json:"lib_id"`
	SubjectID       int64            `json:"subject_id"`
	Type            RelationshipType `json:"type"`
	Content         string           `json:"content,omitempty"`
	ContentVector   []float32        `json:"-"`
	SourceElementID string           `json:"source_element_id"`
	TargetElementID string           `json:"target_element_id"`
	CreatedAt       int64            `json:"created_at"`
	UpdatedAt       int64            `json:"updated_at"`
}

// Satellite is a content-addressed Entity, Keyword or Tag node, unique
// per (lib_id, content) and shared across owning nodes.
type Satellite struct {
	ID        int64  `json:"id"`
	ElementID string `json:"element_id"`
	LibID     int64  `json:"lib_id"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Document is an uploaded file attached to a node. Its text lives in
// ordered DocumentPage slices.
type Document struct {
	ID             int64     `json:"id"`
	ElementID      string    `json:"element_id"`
	LibID          int64     `json:"lib_id"`
	Name           string    `json:"name"`
	SavedPath      string    `json:"saved_path,omitempty"`
	Title          string    `json:"title,omitempty"`
	TitleVector    []float32 `json:"-"`
	Content        string    `json:"content,omitempty"`
	ContentVector  []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	CreatedAt      int64     `json:"created_at"`
	UpdatedAt      int64     `json:"updated_at"`

	Score float64 `json:"score,omitempty"`
}

// DocumentPage is one ordered slice of a Document's text.
type DocumentPage struct {
	ID             int64     `json:"id"`
	ElementID      string    `json:"element_id"`
	LibID          int64     `json:"lib_id"`
	PageNo         int       `json:"page_no"`
	Content        string    `json:"content"`
	ContentVector  []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	CreatedAt      int64     `json:"created_at"`
	UpdatedAt      int64     `json:"updated_at"`

	Score float64 `json:"score,omitempty"`
}

// WebPage is a crawled URL attached to a node.
type WebPage struct {
	ID             int64     `json:"id"`
	ElementID      string    `json:"element_id"`
	LibID          int64     `json:"lib_id"`
	URL            string    `json:"url"`
	Title          string    `json:"title,omitempty"`
	TitleVector    []float32 `json:"-"`
	Content        string    `json:"content,omitempty"`
	ContentVector  []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	CreatedAt      int64     `json:"created_at"`
	UpdatedAt      int64     `json:"updated_at"`

	Score float64 `json:"score,omitempty"`
}

// Overview is a derived (type, count) aggregate, computed per query.
type Overview struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// Index names are deterministic per label.
func TitleFulltextIndex(label string) string {
	return strings.ToLower(label) + "_title_full_text_index"
}

func ContentFulltextIndex(label string) string {
	return strings.ToLower(label) + "_content_full_text_index"
}

func TitleVectorIndex(label string) string {
	return strings.ToLower(label) + "_title_vector_index"
}

func ContentVectorIndex(label string) string {
	return strings.ToLower(label) + "_content_vector_index"
}

// ---- record decoding ----

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func asVector(v any) []float32 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(raw))
	for _, item := range raw {
		out = append(out, float32(asFloat64(item)))
	}
	return out
}

func props(row map[string]any, key string) map[string]any {
	m, _ := row[key].(map[string]any)
	return m
}

func decodeNode(row map[string]any) Node {
	p := props(row, "props")
	return Node{
		ID:             asInt64(row["id"]),
		ElementID:      asString(row["element_id"]),
		LibID:          asInt64(p["lib_id"]),
		SubjectID:      asInt64(p["subject_id"]),
		Type:           NodeType(asString(p["type"])),
		Content:        asString(p["content"]),
		Title:          asString(p["title"]),
		TitleVector:    asVector(p["title_vector"]),
		ContentVector:  asVector(p["content_vector"]),
		EmbeddingModel: asString(p["embedding_model"]),
		Depth:          int(asInt64(p["depth"])),
		CreatedAt:      asInt64(p["created_at"]),
		UpdatedAt:      asInt64(p["updated_at"]),
		Score:          asFloat64(row["score"]),
	}
}

func decodeRelationship(row map[string]any) Relationship {
	p := props(row, "props")
	return Relationship{
		ID:              asInt64(row["id"]),
		ElementID:       asString(row["element_id"]),
		LibID:           asInt64(p["lib_id"]),
		SubjectID:       asInt64(p["subject_id"]),
		Type:            RelationshipType(asString(row["type"])),
		Content:         asString(p["content"]),
		ContentVector:   asVector(p["content_vector"]),
		SourceElementID: asString(row["source_element_id"]),
		TargetElementID: asString(row["target_element_id"]),
		CreatedAt:       asInt64(p["created_at"]),
		UpdatedAt:       asInt64(p["updated_at"]),
	}
}

func decodeSatellite(row map[string]any) Satellite {
	p := props(row, "props")
	return Satellite{
		ID:        asInt64(row["id"]),
		ElementID: asString(row["element_id"]),
		LibID:     asInt64(p["lib_id"]),
		Content:   asString(p["content"]),
		CreatedAt: asInt64(p["created_at"]),
		UpdatedAt: asInt64(p["updated_at"]),
	}
}

func decodeDocument(row map[string]any) Document {
	p := props(row, "props")
	return Document{
		ID:             asInt64(row["id"]),
		ElementID:      asString(row["element_id"]),
		LibID:          asInt64(p["lib_id"]),
		Name:           asString(p["name"]),
		SavedPath:      asString(p["saved_path"]),
		Title:          asString(p["title"]),
		TitleVector:    asVector(p["title_vector"]),
		Content:        asString(p["content"]),
		ContentVector:  asVector(p["content_vector"]),
		EmbeddingModel: asString(p["embedding_model"]),
		CreatedAt:      asInt64(p["created_at"]),
		UpdatedAt:      asInt64(p["updated_at"]),
		Score:          asFloat64(row["score"]),
	}
}

func decodeDocumentPage(row map[string]any) DocumentPage {
	p := props(row, "props")
	return DocumentPage{
		ID:             asInt64(row["id"]),
		ElementID:      asString(row["element_id"]),
		LibID:          asInt64(p["lib_id"]),
		PageNo:         int(asInt64(p["page_no"])),
		Content:        asString(p["content"]),
		ContentVector:  asVector(p["content_vector"]),
		EmbeddingModel: asString(p["embedding_model"]),
		CreatedAt:      asInt64(p["created_at"]),
		UpdatedAt:      asInt64(p["updated_at"]),
		Score:          asFloat64(row["score"]),
	}
}

func decodeWebPage(row map[string]any) WebPage {
	p := props(row, "props")
	return WebPage{
		ID:             asInt64(row["id"]),
		ElementID:      asString(row["element_id"]),
		LibID:          asInt64(p["lib_id"]),
		URL:            asString(p["url"]),
		Title:          asString(p["title"]),
		TitleVector:    asVector(p["title_vector"]),
		Content:        asString(p["content"]),
		ContentVector:  asVector(p["content_vector"]),
		EmbeddingModel: asString(p["embedding_model"]),
		CreatedAt:      asInt64(p["created_at"]),
		UpdatedAt:      asInt64(p["updated_at"]),
		Score:          asFloat64(row["score"]),
	}
}

const nodeReturn = "properties(%s) AS props, elementId(%s) AS element_id, id(%s) AS id"

// returnClause renders the standard props/element_id/id projection for var v.
func returnClause(v string) string {
	return fmt.Sprintf(nodeReturn, v, v, v)
}
