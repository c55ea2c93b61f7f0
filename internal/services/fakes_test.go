package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wisenet/wisenet-backend/internal/graph"
)

// fakeGraph is the shared in-memory store behind the repo fakes.
type fakeGraph struct {
	mu    sync.Mutex
	seq   int64
	nodes map[string]*graph.Node
	order []string
	edges []*graph.Relationship
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{nodes: map[string]*graph.Node{}}
}

func (g *fakeGraph) nextID(prefix string) (int64, string) {
	g.seq++
	return g.seq, fmt.Sprintf("%s%d", prefix, g.seq)
}

func (g *fakeGraph) snapshot() []graph.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]graph.Node, 0, len(g.order))
	for _, id := range g.order {
		if n, ok := g.nodes[id]; ok {
			out = append(out, *n)
		}
	}
	return out
}

type fakeNodeRepo struct {
	g *fakeGraph

	fulltextFn func(q graph.NodeSearch) []graph.Node
	vectorFn   func(q graph.NodeSearch) []graph.Node
	createErr  error
}

func (r *fakeNodeRepo) Create(_ context.Context, n *graph.Node) (*graph.Node, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	if n.Content == "" {
		return nil, graph.Validationf("node content must not be empty")
	}
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	id, elementID := r.g.nextID("n")
	created := *n
	created.ID = id
	created.ElementID = elementID
	r.g.nodes[elementID] = &created
	r.g.order = append(r.g.order, elementID)
	out := created
	return &out, nil
}

func (r *fakeNodeRepo) EnsureRoot(ctx context.Context, libID int64) (*graph.Node, error) {
	r.g.mu.Lock()
	for _, n := range r.g.nodes {
		if n.LibID == libID && n.Type == graph.TypeRoot {
			out := *n
			r.g.mu.Unlock()
			return &out, nil
		}
	}
	r.g.mu.Unlock()
	return r.Create(ctx, &graph.Node{LibID: libID, Type: graph.TypeRoot, Content: "ROOT", Depth: 0})
}

func (r *fakeNodeRepo) GetByElementID(_ context.Context, elementID string) (*graph.Node, bool, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	n, ok := r.g.nodes[elementID]
	if !ok {
		return nil, false, nil
	}
	out := *n
	return &out, true, nil
}

func (r *fakeNodeRepo) GetDetail(ctx context.Context, elementID string) (*graph.Node, bool, error) {
	return r.GetByElementID(ctx, elementID)
}

func (r *fakeNodeRepo) Update(_ context.Context, n *graph.Node) (*graph.Node, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	stored, ok := r.g.nodes[n.ElementID]
	if !ok {
		return nil, graph.NotFoundf("node %s", n.ElementID)
	}
	stored.Content = n.Content
	stored.Title = n.Title
	stored.EmbeddingModel = n.EmbeddingModel
	out := *stored
	return &out, nil
}

func (r *fakeNodeRepo) SetVectors(_ context.Context, elementID string, titleVector, contentVector []float32, embeddingModel string) error {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	stored, ok := r.g.nodes[elementID]
	if !ok {
		return graph.NotFoundf("node %s", elementID)
	}
	if titleVector != nil {
		stored.TitleVector = titleVector
	}
	if contentVector != nil {
		stored.ContentVector = contentVector
	}
	stored.EmbeddingModel = embeddingModel
	return nil
}

func (r *fakeNodeRepo) Delete(_ context.Context, elementID string) error {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	delete(r.g.nodes, elementID)
	return nil
}

func (r *fakeNodeRepo) DeleteSubjectTree(_ context.Context, libID, subjectID int64) error {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	for id, n := range r.g.nodes {
		if n.LibID == libID && n.SubjectID == subjectID && n.Type != graph.TypeRoot {
			delete(r.g.nodes, id)
		}
	}
	kept := r.g.edges[:0]
	for _, e := range r.g.edges {
		_, srcOK := r.g.nodes[e.SourceElementID]
		_, dstOK := r.g.nodes[e.TargetElementID]
		if srcOK && dstOK {
			kept = append(kept, e)
		}
	}
	r.g.edges = kept
	return nil
}

func (r *fakeNodeRepo) DeletePosterity(ctx context.Context, elementID string) error {
	children, err := r.Children(ctx, elementID, "")
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := r.DeletePosterity(ctx, c.ElementID); err != nil {
			return err
		}
	}
	return r.Delete(ctx, elementID)
}

func (r *fakeNodeRepo) DeleteLibrary(_ context.Context, libID int64) error {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	for id, n := range r.g.nodes {
		if n.LibID == libID {
			delete(r.g.nodes, id)
		}
	}
	kept := r.g.edges[:0]
	for _, e := range r.g.edges {
		if e.LibID != libID {
			kept = append(kept, e)
		}
	}
	r.g.edges = kept
	return nil
}

func (r *fakeNodeRepo) ListByLib(_ context.Context, libID, subjectID int64) ([]graph.Node, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	var out []graph.Node
	for _, id := range r.g.order {
		n, ok := r.g.nodes[id]
		if !ok || n.LibID != libID {
			continue
		}
		if subjectID != 0 && n.SubjectID != subjectID && n.Type != graph.TypeRoot {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (r *fakeNodeRepo) ListByType(_ context.Context, libID, subjectID int64, t graph.NodeType) ([]graph.Node, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	var out []graph.Node
	for _, id := range r.g.order {
		n, ok := r.g.nodes[id]
		if !ok || n.LibID != libID || n.Type != t {
			continue
		}
		if subjectID != 0 && n.SubjectID != subjectID {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (r *fakeNodeRepo) Children(_ context.Context, elementID string, t graph.NodeType) ([]graph.Node, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	var out []graph.Node
	for _, e := range r.g.edges {
		if e.Type != graph.RelHasChild || e.SourceElementID != elementID {
			continue
		}
		child, ok := r.g.nodes[e.TargetElementID]
		if !ok {
			continue
		}
		if t != "" && child.Type != t {
			continue
		}
		out = append(out, *child)
	}
	return out, nil
}

func (r *fakeNodeRepo) FirstChild(ctx context.Context, elementID string) (*graph.Node, bool, error) {
	children, err := r.Children(ctx, elementID, "")
	if err != nil || len(children) == 0 {
		return nil, false, err
	}
	return &children[0], true, nil
}

func (r *fakeNodeRepo) Parent(_ context.Context, elementID string) (*graph.Node, bool, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	for _, e := range r.g.edges {
		if e.Type == graph.RelHasChild && e.TargetElementID == elementID {
			if p, ok := r.g.nodes[e.SourceElementID]; ok {
				out := *p
				return &out, true, nil
			}
		}
	}
	return nil, false, nil
}

func (r *fakeNodeRepo) HumanNeighbors(_ context.Context, libID, subjectID int64, elementID string) ([]graph.Node, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	var out []graph.Node
	for _, e := range r.g.edges {
		other := ""
		if e.SourceElementID == elementID {
			other = e.TargetElementID
		} else if e.TargetElementID == elementID {
			other = e.SourceElementID
		} else {
			continue
		}
		n, ok := r.g.nodes[other]
		if !ok || n.Type != graph.TypeHuman || n.LibID != libID {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (r *fakeNodeRepo) Overview(_ context.Context, libID, subjectID int64) ([]graph.Overview, error) {
	counts := map[string]int64{}
	for _, n := range r.g.snapshot() {
		if n.LibID == libID {
			counts[string(n.Type)]++
		}
	}
	var out []graph.Overview
	for t, c := range counts {
		out = append(out, graph.Overview{Type: t, Count: c})
	}
	return out, nil
}

func (r *fakeNodeRepo) FulltextSearch(_ context.Context, q graph.NodeSearch) ([]graph.Node, error) {
	if r.fulltextFn == nil {
		return nil, nil
	}
	return r.fulltextFn(q), nil
}

func (r *fakeNodeRepo) VectorSearch(_ context.Context, q graph.NodeSearch) ([]graph.Node, error) {
	if r.vectorFn == nil {
		return nil, nil
	}
	return r.vectorFn(q), nil
}

type fakeRelRepo struct {
	g *fakeGraph
}

func (r *fakeRelRepo) Create(_ context.Context, rel *graph.Relationship) (*graph.Relationship, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	if _, ok := r.g.nodes[rel.SourceElementID]; !ok {
		return nil, graph.NotFoundf("node %s", rel.SourceElementID)
	}
	if _, ok := r.g.nodes[rel.TargetElementID]; !ok {
		return nil, graph.NotFoundf("node %s", rel.TargetElementID)
	}
	id, elementID := r.g.nextID("r")
	created := *rel
	created.ID = id
	created.ElementID = elementID
	r.g.edges = append(r.g.edges, &created)
	out := created
	return &out, nil
}

func (r *fakeRelRepo) GetByElementID(_ context.Context, elementID string) (*graph.Relationship, bool, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	for _, e := range r.g.edges {
		if e.ElementID == elementID {
			out := *e
			return &out, true, nil
		}
	}
	return nil, false, nil
}

func (r *fakeRelRepo) UpdateContent(_ context.Context, elementID, content string) (*graph.Relationship, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	for _, e := range r.g.edges {
		if e.ElementID == elementID {
			e.Content = content
			out := *e
			return &out, nil
		}
	}
	return nil, graph.NotFoundf("relationship %s", elementID)
}

func (r *fakeRelRepo) SetContentVector(_ context.Context, elementID string, vector []float32, _ string) error {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	for _, e := range r.g.edges {
		if e.ElementID == elementID {
			e.ContentVector = vector
			return nil
		}
	}
	return graph.NotFoundf("relationship %s", elementID)
}

func (r *fakeRelRepo) ListByLib(_ context.Context, libID, subjectID int64) ([]graph.Relationship, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	var out []graph.Relationship
	for _, e := range r.g.edges {
		if e.LibID != libID {
			continue
		}
		if subjectID != 0 && e.SubjectID != subjectID {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *fakeRelRepo) Delete(_ context.Context, elementID string) error {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	kept := r.g.edges[:0]
	for _, e := range r.g.edges {
		if e.ElementID != elementID {
			kept = append(kept, e)
		}
	}
	r.g.edges = kept
	return nil
}

func (r *fakeRelRepo) DeleteBetween(_ context.Context, sourceElementID, targetElementID string) error {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	kept := r.g.edges[:0]
	for _, e := range r.g.edges {
		if e.SourceElementID != sourceElementID || e.TargetElementID != targetElementID {
			kept = append(kept, e)
		}
	}
	r.g.edges = kept
	return nil
}

func (r *fakeRelRepo) ListBySource(_ context.Context, sourceElementID string, t graph.RelationshipType) ([]graph.Relationship, error) {
	r.g.mu.Lock()
	defer r.g.mu.Unlock()
	var out []graph.Relationship
	for _, e := range r.g.edges {
		if e.SourceElementID != sourceElementID {
			continue
		}
		if t != "" && e.Type != t {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *fakeRelRepo) Overview(_ context.Context, libID, subjectID int64) ([]graph.Overview, error) {
	return nil, nil
}

// fakeSatelliteRepo keeps (lib, content) uniqueness like the real repo.
type fakeSatelliteRepo struct {
	mu    sync.Mutex
	seq   int64
	byKey map[string]*graph.Satellite
	edges map[string]map[string]bool // satellite element id -> node element ids
}

func newFakeSatelliteRepo() *fakeSatelliteRepo {
	return &fakeSatelliteRepo{byKey: map[string]*graph.Satellite{}, edges: map[string]map[string]bool{}}
}

func satKey(libID int64, content string) string {
	return fmt.Sprintf("%d|%s", libID, content)
}

func (r *fakeSatelliteRepo) Attach(_ context.Context, libID int64, nodeElementID, content string) (*graph.Satellite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := satKey(libID, content)
	s, ok := r.byKey[key]
	if !ok {
		r.seq++
		s = &graph.Satellite{ID: r.seq, ElementID: fmt.Sprintf("s%d", r.seq), LibID: libID, Content: content}
		r.byKey[key] = s
		r.edges[s.ElementID] = map[string]bool{}
	}
	r.edges[s.ElementID][nodeElementID] = true
	out := *s
	return &out, nil
}

func (r *fakeSatelliteRepo) FindByContent(_ context.Context, libID int64, content string) (*graph.Satellite, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byKey[satKey(libID, content)]
	if !ok {
		return nil, false, nil
	}
	out := *s
	return &out, true, nil
}

func (r *fakeSatelliteRepo) ListForNode(_ context.Context, nodeElementID string) ([]graph.Satellite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []graph.Satellite
	for _, s := range r.byKey {
		if r.edges[s.ElementID][nodeElementID] {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSatelliteRepo) List(_ context.Context, libID int64) ([]graph.Satellite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []graph.Satellite
	for _, s := range r.byKey {
		if s.LibID == libID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSatelliteRepo) Detach(_ context.Context, satelliteElementID, nodeElementID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.edges[satelliteElementID], nodeElementID)
	r.dropOrphansLocked()
	return nil
}

func (r *fakeSatelliteRepo) DetachAll(_ context.Context, nodeElementID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, owners := range r.edges {
		delete(owners, nodeElementID)
	}
	r.dropOrphansLocked()
	return nil
}

func (r *fakeSatelliteRepo) dropOrphansLocked() {
	for key, s := range r.byKey {
		if len(r.edges[s.ElementID]) == 0 {
			delete(r.edges, s.ElementID)
			delete(r.byKey, key)
		}
	}
}

func (r *fakeSatelliteRepo) edgeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, owners := range r.edges {
		total += len(owners)
	}
	return total
}

type fakeDocumentRepo struct {
	docs      map[string]*graph.Document
	pages     map[string][]graph.DocumentPage
	owner     map[string]string // doc element id -> node element id
	pageOwner map[string]string // page element id -> doc element id

	fulltextFn     func(q graph.LibSearch) []graph.Document
	vectorFn       func(q graph.LibSearch) []graph.Document
	pageFulltextFn func(q graph.LibSearch) []graph.DocumentPage
	pageVectorFn   func(q graph.LibSearch) []graph.DocumentPage

	nodes *fakeNodeRepo
}

func newFakeDocumentRepo(nodes *fakeNodeRepo) *fakeDocumentRepo {
	return &fakeDocumentRepo{
		docs:      map[string]*graph.Document{},
		pages:     map[string][]graph.DocumentPage{},
		owner:     map[string]string{},
		pageOwner: map[string]string{},
		nodes:     nodes,
	}
}

func (r *fakeDocumentRepo) Create(_ context.Context, libID int64, nodeElementID, name, savedPath string) (*graph.Document, error) {
	id := fmt.Sprintf("d%d", len(r.docs)+1)
	d := &graph.Document{ElementID: id, LibID: libID, Name: name, SavedPath: savedPath}
	r.docs[id] = d
	r.owner[id] = nodeElementID
	out := *d
	return &out, nil
}

func (r *fakeDocumentRepo) GetByElementID(_ context.Context, elementID string) (*graph.Document, bool, error) {
	d, ok := r.docs[elementID]
	if !ok {
		return nil, false, nil
	}
	out := *d
	return &out, true, nil
}

func (r *fakeDocumentRepo) Update(_ context.Context, d *graph.Document) (*graph.Document, error) {
	stored, ok := r.docs[d.ElementID]
	if !ok {
		return nil, graph.NotFoundf("document %s", d.ElementID)
	}
	stored.Title = d.Title
	stored.Content = d.Content
	stored.EmbeddingModel = d.EmbeddingModel
	out := *stored
	return &out, nil
}

func (r *fakeDocumentRepo) SetVectors(_ context.Context, elementID string, titleVector, contentVector []float32, embeddingModel string) error {
	stored, ok := r.docs[elementID]
	if !ok {
		return graph.NotFoundf("document %s", elementID)
	}
	if titleVector != nil {
		stored.TitleVector = titleVector
	}
	if contentVector != nil {
		stored.ContentVector = contentVector
	}
	stored.EmbeddingModel = embeddingModel
	return nil
}

func (r *fakeDocumentRepo) Delete(_ context.Context, elementID string) error {
	delete(r.docs, elementID)
	delete(r.pages, elementID)
	delete(r.owner, elementID)
	return nil
}

func (r *fakeDocumentRepo) ListForNode(_ context.Context, nodeElementID string) ([]graph.Document, error) {
	var out []graph.Document
	for id, node := range r.owner {
		if node == nodeElementID {
			out = append(out, *r.docs[id])
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) List(_ context.Context, libID int64) ([]graph.Document, error) {
	var out []graph.Document
	for _, d := range r.docs {
		if d.LibID == libID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) OwnerNode(ctx context.Context, docElementID string) (*graph.Node, bool, error) {
	nodeID, ok := r.owner[docElementID]
	if !ok {
		return nil, false, nil
	}
	return r.nodes.GetByElementID(ctx, nodeID)
}

func (r *fakeDocumentRepo) ReplacePages(_ context.Context, docElementID string, libID int64, pages []graph.DocumentPage) error {
	for i := range pages {
		pages[i].ElementID = fmt.Sprintf("%s-p%d", docElementID, i+1)
		r.pageOwner[pages[i].ElementID] = docElementID
	}
	r.pages[docElementID] = pages
	return nil
}

func (r *fakeDocumentRepo) Pages(_ context.Context, docElementID string) ([]graph.DocumentPage, error) {
	return r.pages[docElementID], nil
}

func (r *fakeDocumentRepo) PageOwner(_ context.Context, pageElementID string) (*graph.Document, bool, error) {
	docID, ok := r.pageOwner[pageElementID]
	if !ok {
		return nil, false, nil
	}
	d, ok := r.docs[docID]
	if !ok {
		return nil, false, nil
	}
	out := *d
	return &out, true, nil
}

func (r *fakeDocumentRepo) FulltextSearch(_ context.Context, q graph.LibSearch) ([]graph.Document, error) {
	if r.fulltextFn == nil {
		return nil, nil
	}
	return r.fulltextFn(q), nil
}

func (r *fakeDocumentRepo) VectorSearch(_ context.Context, q graph.LibSearch) ([]graph.Document, error) {
	if r.vectorFn == nil {
		return nil, nil
	}
	return r.vectorFn(q), nil
}

func (r *fakeDocumentRepo) PageFulltextSearch(_ context.Context, q graph.LibSearch) ([]graph.DocumentPage, error) {
	if r.pageFulltextFn == nil {
		return nil, nil
	}
	return r.pageFulltextFn(q), nil
}

func (r *fakeDocumentRepo) PageVectorSearch(_ context.Context, q graph.LibSearch) ([]graph.DocumentPage, error) {
	if r.pageVectorFn == nil {
		return nil, nil
	}
	return r.pageVectorFn(q), nil
}

type fakeWebPageRepo struct {
	pages map[string]*graph.WebPage
	owner map[string]string

	fulltextFn func(q graph.LibSearch) []graph.WebPage
	vectorFn   func(q graph.LibSearch) []graph.WebPage

	nodes *fakeNodeRepo
}

func newFakeWebPageRepo(nodes *fakeNodeRepo) *fakeWebPageRepo {
	return &fakeWebPageRepo{pages: map[string]*graph.WebPage{}, owner: map[string]string{}, nodes: nodes}
}

func (r *fakeWebPageRepo) Create(_ context.Context, libID int64, nodeElementID, url string) (*graph.WebPage, error) {
	id := fmt.Sprintf("w%d", len(r.pages)+1)
	w := &graph.WebPage{ElementID: id, LibID: libID, URL: url}
	r.pages[id] = w
	r.owner[id] = nodeElementID
	out := *w
	return &out, nil
}

func (r *fakeWebPageRepo) GetByElementID(_ context.Context, elementID string) (*graph.WebPage, bool, error) {
	w, ok := r.pages[elementID]
	if !ok {
		return nil, false, nil
	}
	out := *w
	return &out, true, nil
}

func (r *fakeWebPageRepo) Update(_ context.Context, w *graph.WebPage) (*graph.WebPage, error) {
	stored, ok := r.pages[w.ElementID]
	if !ok {
		return nil, graph.NotFoundf("webpage %s", w.ElementID)
	}
	stored.Title = w.Title
	stored.Content = w.Content
	stored.EmbeddingModel = w.EmbeddingModel
	out := *stored
	return &out, nil
}

func (r *fakeWebPageRepo) SetVectors(_ context.Context, elementID string, titleVector, contentVector []float32, embeddingModel string) error {
	stored, ok := r.pages[elementID]
	if !ok {
		return graph.NotFoundf("webpage %s", elementID)
	}
	if titleVector != nil {
		stored.TitleVector = titleVector
	}
	if contentVector != nil {
		stored.ContentVector = contentVector
	}
	stored.EmbeddingModel = embeddingModel
	return nil
}

func (r *fakeWebPageRepo) Delete(_ context.Context, elementID string) error {
	delete(r.pages, elementID)
	delete(r.owner, elementID)
	return nil
}

func (r *fakeWebPageRepo) ListForNode(_ context.Context, nodeElementID string) ([]graph.WebPage, error) {
	var out []graph.WebPage
	for id, node := range r.owner {
		if node == nodeElementID {
			out = append(out, *r.pages[id])
		}
	}
	return out, nil
}

func (r *fakeWebPageRepo) List(_ context.Context, libID int64) ([]graph.WebPage, error) {
	var out []graph.WebPage
	for _, w := range r.pages {
		if w.LibID == libID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *fakeWebPageRepo) OwnerNode(ctx context.Context, webPageElementID string) (*graph.Node, bool, error) {
	nodeID, ok := r.owner[webPageElementID]
	if !ok {
		return nil, false, nil
	}
	return r.nodes.GetByElementID(ctx, nodeID)
}

func (r *fakeWebPageRepo) FulltextSearch(_ context.Context, q graph.LibSearch) ([]graph.WebPage, error) {
	if r.fulltextFn == nil {
		return nil, nil
	}
	return r.fulltextFn(q), nil
}

func (r *fakeWebPageRepo) VectorSearch(_ context.Context, q graph.LibSearch) ([]graph.WebPage, error) {
	if r.vectorFn == nil {
		return nil, nil
	}
	return r.vectorFn(q), nil
}

type fakeSimilarityRepo struct {
	exists    bool
	neighbors []graph.Node
	rebuilds  int
}

func (r *fakeSimilarityRepo) ProjectionExists(context.Context, string) (bool, error) {
	return r.exists, nil
}

func (r *fakeSimilarityRepo) ListProjections(context.Context) ([]string, error) {
	if r.exists {
		return []string{ProjectionName}, nil
	}
	return nil, nil
}

func (r *fakeSimilarityRepo) BuildProjection(context.Context, string) error {
	r.exists = true
	return nil
}

func (r *fakeSimilarityRepo) DropProjection(context.Context, string) error {
	r.exists = false
	return nil
}

func (r *fakeSimilarityRepo) RebuildProjection(context.Context, string) error {
	r.rebuilds++
	r.exists = true
	return nil
}

func (r *fakeSimilarityRepo) SimilarNodes(context.Context, graph.SimilarQuery) ([]graph.Node, error) {
	return r.neighbors, nil
}

// fakeStatus pops scripted statuses in order, repeating the last one.
type fakeStatus struct {
	mu       sync.Mutex
	statuses []string
	calls    int
}

func (s *fakeStatus) Status(context.Context, int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.statuses) == 0 {
		return "", graph.NotFoundf("knowledge lib")
	}
	if len(s.statuses) > 1 {
		next := s.statuses[0]
		s.statuses = s.statuses[1:]
		return next, nil
	}
	return s.statuses[0], nil
}

func (s *fakeStatus) SetStatus(_ context.Context, _ int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = []string{status}
	return nil
}

func (s *fakeStatus) Publish(ctx context.Context, libID int64) error {
	return s.SetStatus(ctx, libID, "PUBLISHED")
}

func (s *fakeStatus) Unpublish(ctx context.Context, libID int64) error {
	return s.SetStatus(ctx, libID, "PENDING")
}

type fakeLLM struct {
	completeFn func(prompt, modelName string) (string, error)
	jsonFn     func(prompt, modelName string) (json.RawMessage, error)
}

func (f *fakeLLM) Complete(_ context.Context, prompt, modelName string) (string, error) {
	if f.completeFn == nil {
		return "", nil
	}
	return f.completeFn(prompt, modelName)
}

func (f *fakeLLM) CompleteJSON(_ context.Context, prompt, modelName string) (json.RawMessage, error) {
	if f.jsonFn == nil {
		return nil, nil
	}
	return f.jsonFn(prompt, modelName)
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, text, _ string, _ int) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

type fakeNLP struct {
	entities []string
	err      error
}

func (f *fakeNLP) ExtractEntities(context.Context, string, string) ([]string, error) {
	return f.entities, f.err
}

type fakeExtractor struct {
	fileText string
	urlText  string
	err      error
}

func (f *fakeExtractor) ExtractFile(context.Context, string) (string, error) {
	return f.fileText, f.err
}

func (f *fakeExtractor) ExtractURL(context.Context, string) (string, error) {
	return f.urlText, f.err
}
