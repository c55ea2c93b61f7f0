package graph

import "testing"

func TestIndexNames(t *testing.T) {
	cases := []struct {
		label string
		fn    func(string) string
		want  string
	}{
		{LabelNode, TitleFulltextIndex, "node_title_full_text_index"},
		{LabelNode, ContentFulltextIndex, "node_content_full_text_index"},
		{LabelNode, TitleVectorIndex, "node_title_vector_index"},
		{LabelNode, ContentVectorIndex, "node_content_vector_index"},
		{LabelDocumentPage, ContentFulltextIndex, "documentpage_content_full_text_index"},
		{LabelWebPage, TitleVectorIndex, "webpage_title_vector_index"},
	}
	for _, tc := range cases {
		if got := tc.fn(tc.label); got != tc.want {
			t.Fatalf("%s: want=%q got=%q", tc.label, tc.want, got)
		}
	}
}

func TestValidNodeType(t *testing.T) {
	for _, valid := range []NodeType{TypeRoot, TypeSubject, TypePrompt, TypeInfo, TypeHuman, TypeQuestion} {
		if !ValidNodeType(valid) {
			t.Fatalf("%s should be valid", valid)
		}
	}
	for _, invalid := range []NodeType{"", "root", "OTHER"} {
		if ValidNodeType(invalid) {
			t.Fatalf("%q should be invalid", invalid)
		}
	}
}

func TestValidRelationshipType(t *testing.T) {
	if !ValidRelationshipType(RelHasChild) || !ValidRelationshipType(RelRelatedTo) {
		t.Fatal("known relationship types should be valid")
	}
	if ValidRelationshipType("PARENT_OF") {
		t.Fatal("unknown relationship type should be invalid")
	}
}

func TestDecodeNode(t *testing.T) {
	row := nodeRow("4:abc:12", 12, map[string]any{
		"lib_id":          int64(7),
		"subject_id":      int64(3),
		"type":            "INFO",
		"content":         "body",
		"title":           "head",
		"title_vector":    []any{0.1, 0.2},
		"content_vector":  []any{float64(1)},
		"embedding_model": "nomic-embed-text",
		"depth":           int64(4),
		"created_at":      int64(100),
		"updated_at":      int64(200),
	})
	row["score"] = 0.91

	n := decodeNode(row)
	if n.ID != 12 || n.ElementID != "4:abc:12" {
		t.Fatalf("identity: %+v", n)
	}
	if n.LibID != 7 || n.SubjectID != 3 || n.Type != TypeInfo || n.Depth != 4 {
		t.Fatalf("fields: %+v", n)
	}
	if n.Content != "body" || n.Title != "head" || n.EmbeddingModel != "nomic-embed-text" {
		t.Fatalf("text fields: %+v", n)
	}
	if len(n.TitleVector) != 2 || len(n.ContentVector) != 1 {
		t.Fatalf("vectors: %+v", n)
	}
	if n.CreatedAt != 100 || n.UpdatedAt != 200 || n.Score != 0.91 {
		t.Fatalf("timestamps/score: %+v", n)
	}
}

func TestDecodeNodeToleratesMissingProps(t *testing.T) {
	n := decodeNode(map[string]any{"element_id": "x"})
	if n.ElementID != "x" || n.LibID != 0 || n.Type != "" || n.TitleVector != nil {
		t.Fatalf("zero-value decode: %+v", n)
	}
}

func TestDecodeRelationship(t *testing.T) {
	row := map[string]any{
		"props":             map[string]any{"lib_id": int64(1), "subject_id": int64(2), "content": "similar diets", "created_at": int64(5), "updated_at": int64(6)},
		"element_id":        "5:rel:9",
		"id":                int64(9),
		"type":              "RELATED_TO",
		"source_element_id": "4:a:1",
		"target_element_id": "4:b:2",
	}
	r := decodeRelationship(row)
	if r.Type != RelRelatedTo || r.SourceElementID != "4:a:1" || r.TargetElementID != "4:b:2" {
		t.Fatalf("relationship: %+v", r)
	}
	if r.LibID != 1 || r.Content != "similar diets" {
		t.Fatalf("relationship props: %+v", r)
	}
}

func TestAsInt64Conversions(t *testing.T) {
	if asInt64(int64(5)) != 5 || asInt64(5) != 5 || asInt64(float64(5)) != 5 || asInt64("5") != 0 {
		t.Fatal("asInt64 conversions")
	}
}

func TestAsVector(t *testing.T) {
	if asVector("nope") != nil {
		t.Fatal("non-list should decode to nil")
	}
	v := asVector([]any{float64(0.5), int64(2)})
	if len(v) != 2 || v[0] != 0.5 || v[1] != 2 {
		t.Fatalf("vector: %v", v)
	}
}

func TestReturnClause(t *testing.T) {
	want := "properties(n) AS props, elementId(n) AS element_id, id(n) AS id"
	if got := returnClause("n"); got != want {
		t.Fatalf("want=%q got=%q", want, got)
	}
}
