package services

import (
	"context"
	"strings"

	"github.com/wisenet/wisenet-backend/internal/graph"
	"github.com/wisenet/wisenet-backend/internal/platform/embedding"
	"github.com/wisenet/wisenet-backend/internal/platform/envutil"
	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// Search scopes, evaluated in the order the caller lists them. The
// first scope with a hit wins.
const (
	ScopeQuestion = "question"
	ScopePage     = "page"
	ScopeDocument = "document"
	ScopeWebPage  = "webpage"
	ScopeNode     = "node"
)

// Search strategies. Hybrid runs vector first and falls back to
// full-text only on an empty vector result.
const (
	SearchVector   = "vector"
	SearchFulltext = "fulltext"
	SearchHybrid   = "hybrid"
)

func defaultScopes() []string {
	return []string{ScopeQuestion, ScopePage, ScopeDocument, ScopeWebPage, ScopeNode}
}

// RetrievalService resolves a user message (or an explicit element id)
// to a result bundle: one main node plus its satellites, prompt children
// and related nodes.
type RetrievalService interface {
	Search(ctx context.Context, in SearchInput) (*QueryResult, bool, error)
	SearchByPrompt(ctx context.Context, promptElementID string, limit int) (*QueryResult, bool, error)
	SearchByNode(ctx context.Context, nodeElementID string, limit int) (*QueryResult, bool, error)
	RelatedNodes(ctx context.Context, libID, subjectID int64, nodeElementID string, limit int) ([]graph.Node, error)
	Graph(ctx context.Context, libID, subjectID int64) (*GraphView, error)
}

// GraphView is the nodes-and-links snapshot of a library, the shape the
// frontend renders directly.
type GraphView struct {
	Nodes []graph.Node         `json:"nodes"`
	Links []graph.Relationship `json:"links"`
}

type SearchInput struct {
	LibID             int64
	SubjectID         int64
	Message           string
	Scopes            []string
	SearchType        string
	OnlyTitle         bool
	Limit             int
	EmbeddingModel    string
	MaxTokensPerChunk int
}

// QueryResult is the assembled answer bundle. Scope and Score record
// which scope produced the hit and how strong it was.
type QueryResult struct {
	MainNode *graph.Node       `json:"main_node"`
	Prompts  []graph.Node      `json:"prompts"`
	Entities []graph.Satellite `json:"entities"`
	Keywords []graph.Satellite `json:"keywords"`
	Tags     []graph.Satellite `json:"tags"`
	Related  []graph.Node      `json:"related"`
	Document *graph.Document   `json:"document,omitempty"`
	WebPage  *graph.WebPage    `json:"webpage,omitempty"`
	Scope    string            `json:"scope"`
	Score    float64           `json:"score"`
}

// RetrievalConfig carries the score floors. Title matches must clear the
// stricter TitleCutoff; satellite scopes clear max(SimilarityCutoff,
// SatelliteCutoff).
type RetrievalConfig struct {
	TopK             int
	SimilarityCutoff float64
	TitleCutoff      float64
	SatelliteCutoff  float64
	GDSTopK          int
	GDSCutoff        float64
	DefaultLimit     int
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:             envutil.Int("TOP_K", 30),
		SimilarityCutoff: envutil.Float("SIMILARITY_CUTOFF", 0.75),
		TitleCutoff:      envutil.Float("TITLE_CUTOFF", 0.90),
		SatelliteCutoff:  envutil.Float("SATELLITE_CUTOFF", 0.85),
		GDSTopK:          envutil.Int("GDS_TOP_K", 10),
		GDSCutoff:        envutil.Float("GDS_SIMILARITY_CUTOFF", 0.5),
		DefaultLimit:     envutil.Int("RELATED_NODES_LIMIT", 5),
	}
}

type retrievalService struct {
	nodes      graph.NodeRepo
	rels       graph.RelationshipRepo
	entities   graph.SatelliteRepo
	keywords   graph.SatelliteRepo
	tags       graph.SatelliteRepo
	docs       graph.DocumentRepo
	webpages   graph.WebPageRepo
	similarity graph.SimilarityRepo
	embedder   embedding.Embedder
	cfg        RetrievalConfig
	log        *logger.Logger
}

func NewRetrievalService(
	nodes graph.NodeRepo,
	rels graph.RelationshipRepo,
	entities, keywords, tags graph.SatelliteRepo,
	docs graph.DocumentRepo,
	webpages graph.WebPageRepo,
	similarity graph.SimilarityRepo,
	embedder embedding.Embedder,
	cfg RetrievalConfig,
	baseLog *logger.Logger,
) RetrievalService {
	return &retrievalService{
		nodes:      nodes,
		rels:       rels,
		entities:   entities,
		keywords:   keywords,
		tags:       tags,
		docs:       docs,
		webpages:   webpages,
		similarity: similarity,
		embedder:   embedder,
		cfg:        cfg,
		log:        baseLog.With("service", "retrieval"),
	}
}

// Search walks the scopes in priority order and stops at the first hit.
// A miss across all scopes is (nil, false, nil), never an error.
func (s *retrievalService) Search(ctx context.Context, in SearchInput) (*QueryResult, bool, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, false, graph.Validationf("search message must not be empty")
	}
	if in.LibID <= 0 {
		return nil, false, graph.Validationf("lib id is required")
	}
	switch in.SearchType {
	case "":
		in.SearchType = SearchHybrid
	case SearchVector, SearchFulltext, SearchHybrid:
	default:
		return nil, false, graph.Validationf("unknown search type %q", in.SearchType)
	}
	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes()
	}
	if in.Limit <= 0 {
		in.Limit = s.cfg.DefaultLimit
	}

	var vector []float32
	if in.SearchType != SearchFulltext {
		vec, err := s.embedder.Embed(ctx, in.Message, in.EmbeddingModel, in.MaxTokensPerChunk)
		if err != nil {
			if in.SearchType == SearchVector {
				return nil, false, graph.Upstream("embed search message", err)
			}
			// Hybrid degrades to full-text when embedding is down.
			s.log.Warn("search embedding failed, using fulltext only", "error", err)
			in.SearchType = SearchFulltext
		} else {
			vector = vec
		}
	}

	for _, scope := range scopes {
		result, found, err := s.searchScope(ctx, scope, in, vector)
		if err != nil {
			return nil, false, err
		}
		if found {
			return result, true, nil
		}
	}
	return nil, false, nil
}

func (s *retrievalService) searchScope(ctx context.Context, scope string, in SearchInput, vector []float32) (*QueryResult, bool, error) {
	switch scope {
	case ScopeQuestion:
		return s.searchQuestions(ctx, in, vector)
	case ScopePage:
		return s.searchPages(ctx, in, vector)
	case ScopeDocument:
		return s.searchDocuments(ctx, in, vector)
	case ScopeWebPage:
		return s.searchWebPages(ctx, in, vector)
	case ScopeNode:
		return s.searchNodes(ctx, in, vector)
	default:
		return nil, false, graph.Validationf("unknown search scope %q", scope)
	}
}

func (s *retrievalService) satelliteFloor() float64 {
	if s.cfg.SimilarityCutoff > s.cfg.SatelliteCutoff {
		return s.cfg.SimilarityCutoff
	}
	return s.cfg.SatelliteCutoff
}

// searchQuestions matches QUESTION node content and resolves the hit to
// the question's first child, its stored answer. Remaining children
// seed the related set.
func (s *retrievalService) searchQuestions(ctx context.Context, in SearchInput, vector []float32) (*QueryResult, bool, error) {
	q := graph.NodeSearch{
		LibID:     in.LibID,
		SubjectID: in.SubjectID,
		Field:     "content",
		Query:     in.Message,
		Vector:    vector,
		Types:     []graph.NodeType{graph.TypeQuestion},
		Cutoff:    s.satelliteFloor(),
		TopK:      s.cfg.TopK,
		Limit:     1,
	}
	hits, err := s.runNodeSearch(ctx, in.SearchType, q)
	if err != nil {
		return nil, false, err
	}
	if len(hits) == 0 {
		return nil, false, nil
	}
	question := hits[0]
	children, err := s.nodes.Children(ctx, question.ElementID, "")
	if err != nil {
		return nil, false, err
	}
	if len(children) == 0 {
		return nil, false, nil
	}
	main := children[0]
	main.Score = question.Score
	extra := children[1:]
	result, err := s.assemble(ctx, &main, in, ScopeQuestion, extra)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func (s *retrievalService) searchPages(ctx context.Context, in SearchInput, vector []float32) (*QueryResult, bool, error) {
	q := graph.LibSearch{
		LibID:  in.LibID,
		Field:  "content",
		Query:  in.Message,
		Vector: vector,
		Cutoff: s.satelliteFloor(),
		TopK:   s.cfg.TopK,
		Limit:  1,
	}
	pages, err := runSearch(in.SearchType,
		func() ([]graph.DocumentPage, error) { return s.docs.PageVectorSearch(ctx, q) },
		func() ([]graph.DocumentPage, error) { return s.docs.PageFulltextSearch(ctx, q) })
	if err != nil || len(pages) == 0 {
		return nil, false, err
	}
	doc, found, err := s.docs.PageOwner(ctx, pages[0].ElementID)
	if err != nil || !found {
		return nil, false, err
	}
	return s.resolveDocument(ctx, doc, pages[0].Score, in, ScopePage)
}

func (s *retrievalService) searchDocuments(ctx context.Context, in SearchInput, vector []float32) (*QueryResult, bool, error) {
	doc, score, found, err := titleThenContent(s.cfg, in, vector,
		func(q graph.LibSearch) ([]graph.Document, error) { return s.docs.VectorSearch(ctx, q) },
		func(q graph.LibSearch) ([]graph.Document, error) { return s.docs.FulltextSearch(ctx, q) },
		func(d graph.Document) float64 { return d.Score })
	if err != nil || !found {
		return nil, false, err
	}
	return s.resolveDocument(ctx, &doc, score, in, ScopeDocument)
}

func (s *retrievalService) searchWebPages(ctx context.Context, in SearchInput, vector []float32) (*QueryResult, bool, error) {
	page, score, found, err := titleThenContent(s.cfg, in, vector,
		func(q graph.LibSearch) ([]graph.WebPage, error) { return s.webpages.VectorSearch(ctx, q) },
		func(q graph.LibSearch) ([]graph.WebPage, error) { return s.webpages.FulltextSearch(ctx, q) },
		func(w graph.WebPage) float64 { return w.Score })
	if err != nil || !found {
		return nil, false, err
	}
	owner, found, err := s.webpages.OwnerNode(ctx, page.ElementID)
	if err != nil || !found {
		return nil, false, err
	}
	owner.Score = score
	result, err := s.assemble(ctx, owner, in, ScopeWebPage, nil)
	if err != nil {
		return nil, false, err
	}
	result.WebPage = &page
	return result, true, nil
}

// searchNodes matches tree nodes, title first. A PROMPT hit is redirected
// to its first child; only INFO and HUMAN nodes terminate the search.
func (s *retrievalService) searchNodes(ctx context.Context, in SearchInput, vector []float32) (*QueryResult, bool, error) {
	types := []graph.NodeType{graph.TypeInfo, graph.TypeHuman, graph.TypePrompt}

	run := func(field string, cutoff float64) ([]graph.Node, error) {
		return s.runNodeSearch(ctx, in.SearchType, graph.NodeSearch{
			LibID:     in.LibID,
			SubjectID: in.SubjectID,
			Field:     field,
			Query:     in.Message,
			Vector:    vector,
			Types:     types,
			Cutoff:    cutoff,
			TopK:      s.cfg.TopK,
			Limit:     1,
		})
	}

	hits, err := run("title", s.cfg.TitleCutoff)
	if err != nil {
		return nil, false, err
	}
	if len(hits) == 0 && !in.OnlyTitle {
		if hits, err = run("content", s.cfg.SimilarityCutoff); err != nil {
			return nil, false, err
		}
	}
	if len(hits) == 0 {
		return nil, false, nil
	}

	main := hits[0]
	if main.Type == graph.TypePrompt {
		child, found, err := s.nodes.FirstChild(ctx, main.ElementID)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, nil
		}
		child.Score = main.Score
		main = *child
	}
	if main.Type != graph.TypeInfo && main.Type != graph.TypeHuman {
		return nil, false, nil
	}
	result, err := s.assemble(ctx, &main, in, ScopeNode, nil)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// SearchByPrompt resolves an existing prompt node to its first child and
// assembles the bundle around that child.
func (s *retrievalService) SearchByPrompt(ctx context.Context, promptElementID string, limit int) (*QueryResult, bool, error) {
	prompt, found, err := s.nodes.GetByElementID(ctx, promptElementID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, graph.NotFoundf("prompt node %s", promptElementID)
	}
	child, found, err := s.nodes.FirstChild(ctx, prompt.ElementID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	in := SearchInput{LibID: prompt.LibID, SubjectID: prompt.SubjectID, Limit: limit}
	if in.Limit <= 0 {
		in.Limit = s.cfg.DefaultLimit
	}
	result, err := s.assemble(ctx, child, in, ScopeNode, nil)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// SearchByNode uses the node itself as the main result.
func (s *retrievalService) SearchByNode(ctx context.Context, nodeElementID string, limit int) (*QueryResult, bool, error) {
	node, found, err := s.nodes.GetByElementID(ctx, nodeElementID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, graph.NotFoundf("node %s", nodeElementID)
	}
	in := SearchInput{LibID: node.LibID, SubjectID: node.SubjectID, Limit: limit}
	if in.Limit <= 0 {
		in.Limit = s.cfg.DefaultLimit
	}
	result, err := s.assemble(ctx, node, in, ScopeNode, nil)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// RelatedNodes unions directly linked HUMAN nodes with similarity
// neighbors from the projection, human links first, deduplicated by
// element id.
func (s *retrievalService) RelatedNodes(ctx context.Context, libID, subjectID int64, nodeElementID string, limit int) ([]graph.Node, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	humans, err := s.nodes.HumanNeighbors(ctx, libID, subjectID, nodeElementID)
	if err != nil {
		return nil, err
	}

	exists, err := s.similarity.ProjectionExists(ctx, ProjectionName)
	if err != nil {
		return nil, err
	}
	var neighbors []graph.Node
	if exists {
		neighbors, err = s.similarity.SimilarNodes(ctx, graph.SimilarQuery{
			Projection:      ProjectionName,
			LibID:           libID,
			SourceElementID: nodeElementID,
			TopK:            s.cfg.GDSTopK,
			Cutoff:          s.cfg.GDSCutoff,
			Limit:           limit,
		})
		if err != nil {
			return nil, err
		}
	}

	seen := map[string]struct{}{nodeElementID: {}}
	out := make([]graph.Node, 0, limit)
	for _, lists := range [][]graph.Node{humans, neighbors} {
		for _, n := range lists {
			if len(out) >= limit {
				return out, nil
			}
			if _, ok := seen[n.ElementID]; ok {
				continue
			}
			seen[n.ElementID] = struct{}{}
			out = append(out, n)
		}
	}
	return out, nil
}

// Graph snapshots the library's nodes and edges for rendering.
func (s *retrievalService) Graph(ctx context.Context, libID, subjectID int64) (*GraphView, error) {
	if libID <= 0 {
		return nil, graph.Validationf("lib id is required")
	}
	nodes, err := s.nodes.ListByLib(ctx, libID, subjectID)
	if err != nil {
		return nil, err
	}
	links, err := s.rels.ListByLib(ctx, libID, subjectID)
	if err != nil {
		return nil, err
	}
	return &GraphView{Nodes: nodes, Links: links}, nil
}

// ---- assembly and shared search plumbing ----

// assemble attaches prompt children, satellite sets and related nodes
// around a resolved main node. extraRelated is prepended before
// discovered related nodes.
func (s *retrievalService) assemble(ctx context.Context, main *graph.Node, in SearchInput, scope string, extraRelated []graph.Node) (*QueryResult, error) {
	prompts, err := s.nodes.Children(ctx, main.ElementID, graph.TypePrompt)
	if err != nil {
		return nil, err
	}
	entities, err := s.entities.ListForNode(ctx, main.ElementID)
	if err != nil {
		return nil, err
	}
	keywords, err := s.keywords.ListForNode(ctx, main.ElementID)
	if err != nil {
		return nil, err
	}
	tags, err := s.tags.ListForNode(ctx, main.ElementID)
	if err != nil {
		return nil, err
	}
	discovered, err := s.RelatedNodes(ctx, in.LibID, in.SubjectID, main.ElementID, in.Limit)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{main.ElementID: {}}
	related := make([]graph.Node, 0, in.Limit)
	for _, lists := range [][]graph.Node{extraRelated, discovered} {
		for _, n := range lists {
			if len(related) >= in.Limit {
				break
			}
			if _, ok := seen[n.ElementID]; ok {
				continue
			}
			seen[n.ElementID] = struct{}{}
			related = append(related, n)
		}
	}

	return &QueryResult{
		MainNode: main,
		Prompts:  prompts,
		Entities: entities,
		Keywords: keywords,
		Tags:     tags,
		Related:  related,
		Scope:    scope,
		Score:    main.Score,
	}, nil
}

func (s *retrievalService) resolveDocument(ctx context.Context, doc *graph.Document, score float64, in SearchInput, scope string) (*QueryResult, bool, error) {
	owner, found, err := s.docs.OwnerNode(ctx, doc.ElementID)
	if err != nil || !found {
		return nil, false, err
	}
	owner.Score = score
	result, err := s.assemble(ctx, owner, in, scope, nil)
	if err != nil {
		return nil, false, err
	}
	result.Document = doc
	return result, true, nil
}

func (s *retrievalService) runNodeSearch(ctx context.Context, searchType string, q graph.NodeSearch) ([]graph.Node, error) {
	return runSearch(searchType,
		func() ([]graph.Node, error) { return s.nodes.VectorSearch(ctx, q) },
		func() ([]graph.Node, error) { return s.nodes.FulltextSearch(ctx, q) })
}

// runSearch applies the strategy: single query for vector/fulltext,
// vector-then-fulltext for hybrid.
func runSearch[T any](searchType string, vectorFn, fulltextFn func() ([]T, error)) ([]T, error) {
	switch searchType {
	case SearchVector:
		return vectorFn()
	case SearchFulltext:
		return fulltextFn()
	default:
		hits, err := vectorFn()
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			return hits, nil
		}
		return fulltextFn()
	}
}

// titleThenContent runs the title index first under the stricter floor,
// falling back to the content index when the title search misses.
func titleThenContent[T any](
	cfg RetrievalConfig,
	in SearchInput,
	vector []float32,
	vectorFn func(graph.LibSearch) ([]T, error),
	fulltextFn func(graph.LibSearch) ([]T, error),
	score func(T) float64,
) (T, float64, bool, error) {
	var zero T
	base := graph.LibSearch{
		LibID:  in.LibID,
		Query:  in.Message,
		Vector: vector,
		TopK:   cfg.TopK,
		Limit:  1,
	}
	floor := cfg.SatelliteCutoff
	if cfg.SimilarityCutoff > floor {
		floor = cfg.SimilarityCutoff
	}

	titleQ := base
	titleQ.Field = "title"
	titleQ.Cutoff = cfg.TitleCutoff
	hits, err := runSearch(in.SearchType,
		func() ([]T, error) { return vectorFn(titleQ) },
		func() ([]T, error) { return fulltextFn(titleQ) })
	if err != nil {
		return zero, 0, false, err
	}
	if len(hits) == 0 && !in.OnlyTitle {
		contentQ := base
		contentQ.Field = "content"
		contentQ.Cutoff = floor
		hits, err = runSearch(in.SearchType,
			func() ([]T, error) { return vectorFn(contentQ) },
			func() ([]T, error) { return fulltextFn(contentQ) })
		if err != nil {
			return zero, 0, false, err
		}
	}
	if len(hits) == 0 {
		return zero, 0, false, nil
	}
	return hits[0], score(hits[0]), true, nil
}
